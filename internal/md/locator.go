package md

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/p1nky/sheepdog/internal/errs"
)

// objectFilename renders an oid as the fixed-width hex filename used on
// disk (spec.md §4.2).
func objectFilename(oid uint64) string {
	return fmt.Sprintf("%016x", oid)
}

// GetObjectPath returns the path the object would live at if placed fresh
// right now: the single fallback path if multi-disk mode hasn't latched
// on, otherwise the ring lookup's disk (spec.md §4.2, P1).
func (r *Registry) GetObjectPath(oid uint64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.objectDirLocked(oid)
}

func (r *Registry) objectDirLocked(oid uint64) string {
	if !r.enableMultiDisk.Load() || len(r.ring) == 0 {
		return r.objectPath
	}
	v := lookup(r.ring, oid)
	return r.disk[v.DiskIndex].Path
}

// Exists reports whether oid is present anywhere reachable: first the
// ring-assigned disk, then — since a ring change can strand an object on
// its old disk before recovery physically migrates it — every other disk
// in turn (spec.md §4.2 cross-disk scan fallback, P4). A hit on a
// non-primary disk is renamed into its ring-assigned location before
// returning, mirroring original_source/sheep/md.c's md_exist -> scan_wd ->
// check_and_move chain: both paths never co-exist after a successful scan
// (spec.md §4.6, P7).
func (r *Registry) Exists(oid uint64) (path string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary := r.objectDirLocked(oid)
	name := objectFilename(oid)
	primaryPath := filepath.Join(primary, name)
	if fileExists(primaryPath) {
		return primaryPath, true
	}

	for _, d := range r.disk {
		if d.Path == primary {
			continue
		}
		if p := filepath.Join(d.Path, name); fileExists(p) {
			return r.checkAndMoveLocked(p, primaryPath), true
		}
	}
	return "", false
}

// StalePath returns where a stale (pre-recovery) epoch copy of oid would
// be stored under the given disk's .stale directory (spec.md §4.2).
func StalePath(diskPath string, oid uint64, epoch uint32) string {
	return filepath.Join(diskPath, StaleDir, fmt.Sprintf("%s.%d", objectFilename(oid), epoch))
}

// GetStalePath resolves the stale (pre-recovery) epoch copy of oid,
// mirroring original_source/sheep/md.c's md_get_stale_path: check the
// ring-assigned disk's .stale directory first, then fall back to scanning
// every disk and moving a hit into place before returning it (spec.md
// §4.5, P7). epoch must be non-zero — md_get_stale_path is only ever
// called for a prior epoch, never the current one, and asserts as much.
func (r *Registry) GetStalePath(oid uint64, epoch uint32) (string, error) {
	if epoch == 0 {
		return "", errs.New(errs.NoObject, "GetStalePath", objectFilename(oid), nil)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	primary := r.objectDirLocked(oid)
	primaryStale := StalePath(primary, oid, epoch)
	if fileExists(primaryStale) {
		return primaryStale, nil
	}

	for _, d := range r.disk {
		if d.Path == primary {
			continue
		}
		if p := StalePath(d.Path, oid, epoch); fileExists(p) {
			return r.checkAndMoveLocked(p, primaryStale), nil
		}
	}
	return "", errs.New(errs.NoObject, "GetStalePath", objectFilename(oid), nil)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
