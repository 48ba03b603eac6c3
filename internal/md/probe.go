package md

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/p1nky/sheepdog/internal/xattr"
)

// StaleDir is the per-path subdirectory holding historical object copies.
const StaleDir = ".stale"

// probe initializes a newly added path per spec.md §4.3: confirm xattr
// support, create .stale/, then read or establish the cached weight hint.
// Any step failing returns weight 0, which the registry treats as "broken,
// remove" — no error is surfaced past this boundary (spec.md §7 taxonomy:
// broken path).
func probe(path string, xi xattr.Interface) uint64 {
	if !xi.Supported(path) {
		return 0
	}
	if err := os.MkdirAll(filepath.Join(path, StaleDir), 0o755); err != nil {
		return 0
	}

	if value, ok, err := xi.GetSize(path); err != nil {
		return 0
	} else if ok {
		// Trust the stored value: it is not refreshed on every init, a
		// deliberate stability choice so ring geometry survives restarts
		// (spec.md §4.3, §9).
		return value
	}

	free, err := diskFreeBytes(path)
	if err != nil {
		return 0
	}
	if err := xi.SetSize(path, free); err != nil {
		return 0
	}
	return free
}

// diskFreeBytes computes available bytes via statfs, used only the first
// time a path is probed (subsequent probes trust the cached xattr value).
func diskFreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}

// usedBytes computes current used space for admin reporting (§4.9); unlike
// probe's cached weight this is always fresh, since it never overwrites
// the registry's stored weight.
func usedBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	total := uint64(st.Blocks) * uint64(st.Bsize)
	free := uint64(st.Bavail) * uint64(st.Bsize)
	if free > total {
		return 0, nil
	}
	return total - free, nil
}
