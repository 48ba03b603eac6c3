package md

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// checkAndMoveLocked renames an object found at from into its ring-assigned
// location at to, mirroring check_and_move in original_source/sheep/md.c.
// Callers hold at least r.mu.RLock(); renaming a file touches no registry
// state so the read lock is sufficient. A rename failure is logged and the
// original location is returned instead of failing the lookup outright —
// the object is still reachable there, just not yet relocated.
func (r *Registry) checkAndMoveLocked(from, to string) string {
	if from == to {
		return to
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		r.logger.Error("scan move mkdir failed", zap.String("path", to), zap.Error(err))
		return from
	}
	if err := os.Rename(from, to); err != nil {
		r.logger.Error("scan move rename failed", zap.String("from", from), zap.String("to", to), zap.Error(err))
		return from
	}
	return to
}

// Migrate atomically moves oid from its current location to the path the
// ring currently assigns it, using rename rather than copy+delete so a
// crash mid-migration never leaves a torn object (spec.md §4.5,
// original_source/sheep/md.c's md_move_disk-equivalent behavior).
// It is a no-op, not an error, if oid is already at its target path.
func (r *Registry) Migrate(oid uint64) error {
	from, ok := r.Exists(oid)
	if !ok {
		return nil
	}
	to := filepath.Join(r.GetObjectPath(oid), objectFilename(oid))
	if from == to {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		r.logger.Error("migrate mkdir failed", zap.String("path", to), zap.Error(err))
		return err
	}
	if err := os.Rename(from, to); err != nil {
		r.logger.Error("migrate rename failed", zap.String("from", from), zap.String("to", to), zap.Error(err))
		return err
	}
	return nil
}

// ScanForObject walks every registered disk looking for oid, used by
// read paths after a ring change before recovery has caught up (spec.md
// §4.2). It checks disks in registry order, skipping the "try the
// ring-assigned disk first" fast path, and returns the first path holding
// the object. Unlike Exists it never moves a hit into its ring-assigned
// location.
func (r *Registry) ScanForObject(oid uint64) (path string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name := objectFilename(oid)
	for _, d := range r.disk {
		if p := filepath.Join(d.Path, name); fileExists(p) {
			return p, true
		}
	}
	return "", false
}
