package md

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/p1nky/sheepdog/internal/errs"
	"github.com/p1nky/sheepdog/internal/telemetry"
	"github.com/p1nky/sheepdog/internal/xattr"
)

// Registry is the owned, process-wide cell holding the active disk set and
// the vdisk ring built from it. Disk-registry mutations and ring mutations
// happen together under mu so readers never see a mixed state (spec.md §3
// invariants). It plays the role of the teacher's Service struct
// (s.Disks + s.lock), generalized from a fixed disk-ID map to an ordered,
// index-addressable slice as the ring requires.
type Registry struct {
	mu   sync.RWMutex
	disk []Disk
	ring []Vdisk

	enableMultiDisk atomic.Bool
	objectPath      string // single-disk fallback path

	xattrIface xattr.Interface
	recoverer  Recoverer
	logger     *zap.Logger

	eioQueue Submitter
	eioGroup singleflight.Group
}

// NewRegistry constructs an empty registry. objectPath is used for all
// placement while multi-disk mode hasn't latched on (or has no disks).
func NewRegistry(objectPath string, xi xattr.Interface, rec Recoverer, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = NopRecoverer{}
	}
	telemetry.Register()
	return &Registry{
		objectPath: objectPath,
		xattrIface: xi,
		recoverer:  rec,
		logger:     logger.Named("md"),
	}
}

// SetEIOQueue wires the work queue the EIO dispatcher submits remap jobs
// to. Must be called once before HandleEIO is used.
func (r *Registry) SetEIOQueue(q Submitter) {
	r.eioQueue = q
}

// MultiDiskEnabled reports the one-way latch (spec.md §3, §9): once true it
// never reverts.
func (r *Registry) MultiDiskEnabled() bool {
	return r.enableMultiDisk.Load()
}

// Add rejects duplicate paths (exact string match), creates the directory
// tree, and appends a new disk slot. It does not rebuild the ring — callers
// batch adds/removes and invoke Reinit (spec.md §4.4).
func (r *Registry) Add(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(path)
}

func (r *Registry) addLocked(path string) error {
	for _, d := range r.disk {
		if d.Path == path {
			// Programmer error: duplicate add, logged, no state change,
			// no failure surfaced (spec.md §7 taxonomy #5).
			r.logger.Info("duplicate disk add ignored", zap.String("path", path))
			return nil
		}
	}
	if len(r.disk) >= MaxDisk {
		r.logger.Error("disk registry full", zap.Int("max", MaxDisk))
		return errs.New(errs.EIO, "Add", path, nil)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		r.logger.Error("failed to create disk path", zap.String("path", path), zap.Error(err))
		return err
	}
	r.disk = append(r.disk, Disk{Path: path})
	return nil
}

// Remove shift-deletes the disk at idx, preserving the relative order of
// the remaining disks (spec.md §4.4, P3). The ring must be rebuilt
// afterward by the caller.
func (r *Registry) Remove(idx int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(idx)
}

func (r *Registry) removeLocked(idx int) error {
	if idx < 0 || idx >= len(r.disk) {
		r.logger.Info("unplug of unknown disk ignored", zap.Int("index", idx))
		return nil
	}
	r.disk = append(r.disk[:idx], r.disk[idx+1:]...)
	return nil
}

func (r *Registry) indexOfLocked(path string) int {
	for i, d := range r.disk {
		if d.Path == path {
			return i
		}
	}
	return -1
}

// Reinit re-probes every disk, dropping any that return a zero weight and
// restarting until the set is stable, then recomputes vdisk counts and
// rebuilds the ring. Returns total registry capacity (spec.md §4.4).
func (r *Registry) Reinit() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reinitLocked()
}

func (r *Registry) reinitLocked() uint64 {
restart:
	for i := range r.disk {
		w := probe(r.disk[i].Path, r.xattrIface)
		if w == 0 {
			r.logger.Error("disk probe failed, removing", zap.String("path", r.disk[i].Path))
			telemetry.DiskBroken.WithLabelValues(r.disk[i].Path, "probe_failed").Inc()
			_ = r.removeLocked(i)
			goto restart
		}
		r.disk[i].Weight = w
		telemetry.DiskWeight.WithLabelValues(r.disk[i].Path).Set(float64(w))
	}

	assignVdiskCounts(r.disk)
	r.ring = buildRing(r.disk)
	telemetry.RingSize.Set(float64(len(r.ring)))

	if len(r.disk) > 0 {
		r.enableMultiDisk.Store(true)
	}

	var total uint64
	for _, d := range r.disk {
		total += d.Weight
	}
	return total
}

// PlugCSV parses a comma-separated list of paths, adds each, and — if the
// disk count actually changed — reinits and kicks recovery (spec.md §4.4).
func (r *Registry) PlugCSV(csv string) error {
	r.mu.Lock()
	before := len(r.disk)
	beforeRing := r.ring
	for _, p := range splitCSV(csv) {
		if err := r.addLocked(p); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	if len(r.disk) == before {
		r.mu.Unlock()
		return nil
	}
	r.reinitLocked()
	afterRing := r.ring
	hasDisks := len(r.disk) > 0
	r.mu.Unlock()

	if hasDisks {
		r.recoverer.StartRecovery(beforeRing, afterRing)
	}
	return nil
}

// UnplugCSV parses a comma-separated list of paths, removes each known
// path, and — if the disk count actually changed — reinits and kicks
// recovery (spec.md §4.4).
func (r *Registry) UnplugCSV(csv string) error {
	r.mu.Lock()
	before := len(r.disk)
	beforeRing := r.ring
	for _, p := range splitCSV(csv) {
		idx := r.indexOfLocked(p)
		if idx < 0 {
			r.logger.Info("unplug of unknown disk ignored", zap.String("path", p))
			continue
		}
		_ = r.removeLocked(idx)
	}
	if len(r.disk) == before {
		r.mu.Unlock()
		return nil
	}
	r.reinitLocked()
	afterRing := r.ring
	hasDisks := len(r.disk) > 0
	r.mu.Unlock()

	if hasDisks {
		r.recoverer.StartRecovery(beforeRing, afterRing)
	}
	return nil
}

// Info returns the admin-surface disk listing (spec.md §6).
func (r *Registry) Info() []DiskInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DiskInfo, 0, len(r.disk))
	for i, d := range r.disk {
		used, err := usedBytes(d.Path)
		if err != nil {
			used = 0
		}
		out = append(out, DiskInfo{
			Index:     i,
			Path:      d.Path,
			SizeBytes: d.Weight,
			UsedBytes: used,
		})
	}
	return out
}

func splitCSV(csv string) []string {
	var out []string
	for _, p := range strings.Split(csv, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
