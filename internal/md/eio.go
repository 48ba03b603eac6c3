package md

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/p1nky/sheepdog/internal/errs"
	"github.com/p1nky/sheepdog/internal/telemetry"
)

// HandleEIO is the async remap dispatcher (spec.md §4.7). A caller that
// observes EIO on disk path calls this once per occurrence; concurrent
// reports for the same path are collapsed onto a single in-flight job via
// singleflight, mirroring the teacher's s.groupRun.Do pattern in
// handleDiskIOError — duplicate reports while a remap is already running
// do no extra work and all callers see the same outcome.
//
// Once a job is submitted the caller gets errs.NetworkError back: the actual remap runs in
// the background and the caller must retry the original operation once it
// completes, never trust the immediate return value as the op's result
// (spec.md §4.7, §7 taxonomy).
//
// Two conditions short-circuit straight to errs.EIO, with no job submitted,
// mirroring original_source/sheep/md.c's md_handle_eio: multi-disk mode
// never latched on, and no disks left to remap onto (spec.md §8 scenario 4,
// "last-disk policy" — once the only remaining disk is gone, subsequent
// reports must not keep queuing jobs). A registry with no queue wired via
// SetEIOQueue also returns errs.EIO.
func (r *Registry) HandleEIO(path string) error {
	if !r.MultiDiskEnabled() {
		return errs.New(errs.EIO, "HandleEIO", path, nil)
	}

	r.mu.RLock()
	online := len(r.disk)
	r.mu.RUnlock()
	if online == 0 {
		return errs.New(errs.EIO, "HandleEIO", path, nil)
	}

	if r.eioQueue == nil {
		r.logger.Error("HandleEIO called with no queue wired", zap.String("path", path))
		return errs.New(errs.EIO, "HandleEIO", path, nil)
	}

	_, _, _ = r.eioGroup.Do(path, func() (any, error) {
		r.eioQueue.Submit(&Item{
			Run: func() any {
				return r.remapBrokenDisk(path)
			},
			Done: func(res any) {
				outcome := "removed"
				if res == nil {
					outcome = "already_gone"
				}
				telemetry.EIOEvents.WithLabelValues(outcome).Inc()
			},
		})
		return nil, nil
	})

	return errs.New(errs.NetworkError, "HandleEIO", path, nil)
}

// remapBrokenDisk removes the failing disk, reinits the ring, and kicks
// recovery. Runs on the "md" work queue, never on the caller's goroutine.
// A disk already removed by a prior report (the common case once
// singleflight collapses duplicates) is a no-op, reported via a nil
// result rather than an error — the disk being gone is success, not
// failure (spec.md §4.7).
func (r *Registry) remapBrokenDisk(path string) any {
	span := telemetry.NewSpan("md.remap_broken_disk").Tag("path", path)

	r.mu.Lock()
	idx := r.indexOfLocked(path)
	if idx < 0 {
		r.mu.Unlock()
		r.logger.Info("EIO remap: disk already removed", zap.String("path", path))
		return nil
	}
	span.Tag("index", strconv.Itoa(idx))

	beforeRing := r.ring
	_ = r.removeLocked(idx)
	r.reinitLocked()
	afterRing := r.ring
	hasDisks := len(r.disk) > 0
	r.mu.Unlock()

	r.logger.Error("disk removed after EIO", zap.String("path", path), zap.Int("index", idx),
		zap.String("span", span.Name))
	telemetry.DiskBroken.WithLabelValues(path, "eio").Inc()

	if hasDisks {
		r.recoverer.StartRecovery(beforeRing, afterRing)
	}
	return strconv.Itoa(idx)
}
