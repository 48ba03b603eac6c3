package xattr

import "sync"

// Memory is an in-process fake of Interface, used by tests that run on
// filesystems (tmpfs, overlay in CI) where real extended attributes are
// unreliable or unsupported.
type Memory struct {
	mu    sync.Mutex
	sizes map[string]uint64
	deny  map[string]bool
}

var _ Interface = (*Memory)(nil)

// NewMemory returns an empty in-memory xattr fake.
func NewMemory() *Memory {
	return &Memory{sizes: make(map[string]uint64), deny: make(map[string]bool)}
}

// DenySupport makes Supported return false for path, simulating a
// filesystem without xattr support.
func (m *Memory) DenySupport(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deny[path] = true
}

func (m *Memory) Supported(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.deny[path]
}

func (m *Memory) GetSize(path string) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.sizes[path]
	return v, ok, nil
}

func (m *Memory) SetSize(path string, value uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes[path] = value
	return nil
}
