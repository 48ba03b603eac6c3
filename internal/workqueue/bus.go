package workqueue

import "go.uber.org/zap"

// Bus is the shared completion delivery mechanism: every Pool calls
// Notify() after appending to its finished list, and a single cooperative
// main loop goroutine wakes on that signal, drains every registered pool's
// finished list, and invokes each item's Done callback outside any pool
// lock — so completions may safely submit new work.
//
// Concretely this is a single descriptor registered with an OS-level
// readiness mechanism (register_event(fd, handler) in spec.md §6); see
// bus_linux.go for the eventfd+epoll realization and bus_other.go for the
// portable channel-based fallback used off Linux.
type Bus struct {
	logger *zap.Logger
	pools  []*Pool
	wake   wakeable
}

// wakeable abstracts the OS-specific wake primitive so Bus itself stays
// platform independent.
type wakeable interface {
	// signal wakes a blocked Wait call at least once (coalescing is fine).
	signal()
	// wait blocks until signal has been called since the last wait, or
	// stop is closed.
	wait(stop <-chan struct{}) (ok bool)
	// close releases any OS resources (fds).
	close() error
}

// NewBus constructs a Bus using the platform's preferred wake primitive.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger, wake: newWakeable()}
}

// Register adds a pool to the set this bus fans completions in from.
func (b *Bus) Register(p *Pool) {
	b.pools = append(b.pools, p)
}

// Notify implements Notifier for Pool: wake the main loop.
func (b *Bus) Notify() {
	b.wake.signal()
}

// Run is the cooperative main loop: it blocks on the wake primitive and,
// each time it's woken, drains every registered pool's finished list and
// runs each item's Done callback. It returns when stop is closed.
func (b *Bus) Run(stop <-chan struct{}) {
	for {
		if ok := b.wake.wait(stop); !ok {
			return
		}
		b.drainOnce()
	}
}

func (b *Bus) drainOnce() {
	for _, p := range b.pools {
		items := p.DrainFinished()
		for _, item := range items {
			if item.Done != nil {
				item.Done(item.result)
			}
		}
	}
}

// Close releases the bus's OS resources.
func (b *Bus) Close() error {
	return b.wake.close()
}
