// Package workqueue implements the spec's adaptive work-queue scheduler: a
// goroutine pool per named queue with three scheduling policies (Ordered,
// Dynamic, Unlimited), autoscaling with a post-grow protection period, and
// completion delivery through a shared event bus that wakes a single
// cooperative main loop. Structurally this mirrors original_source/sheep/
// work.c's worker_routine/queue_work pair, adapted from pthreads to
// goroutines: "detach on shrink" becomes "return from the goroutine", and
// the condition-variable wait/signal protocol is kept as-is since sync.Cond
// is the direct idiomatic analog.
package workqueue

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/p1nky/sheepdog/internal/telemetry"
)

// Policy determines a pool's thread-count ceiling (its "roof").
type Policy int

const (
	// Ordered limits a pool to a single worker so items complete in
	// strict submission order.
	Ordered Policy = iota
	// Dynamic scales the ceiling to 2x the current cluster node count.
	Dynamic
	// Unlimited imposes no practical ceiling.
	Unlimited
)

func (p Policy) String() string {
	switch p {
	case Ordered:
		return "ordered"
	case Dynamic:
		return "dynamic"
	case Unlimited:
		return "unlimited"
	default:
		return "unknown"
	}
}

// unlimitedRoof stands in for "effectively unbounded" without risking
// integer overflow in 2x-doubling arithmetic.
const unlimitedRoof = math.MaxInt32 / 4

// protectionPeriod is the spec's fixed 1000ms post-grow shrink inhibitor.
const protectionPeriod = 1000 * time.Millisecond

// Item is a unit of work submitted to a Pool. Run executes on a worker
// goroutine and its return value is passed to Done, which runs on the
// completion bus's goroutine outside any pool lock, so Done may safely
// submit new work.
type Item struct {
	Run  func() any
	Done func(any)

	result any
	next   *Item
}

// Pool is a named goroutine pool with one of the three scheduling policies.
type Pool struct {
	name   string
	policy Policy
	roofFn func() int // for Dynamic: cluster node count (Roof doubles it), recomputed per grow decision
	bus    Notifier
	logger *zap.Logger
	clock  func() time.Time // injectable monotonic clock

	startupMu sync.Mutex // serializes Grow so workers see a consistent count

	pendingMu          sync.Mutex
	cond               *sync.Cond
	pendingHead        *Item
	pendingTail        *Item
	pendingCount       int
	running            int
	threadsTotal       int
	protectionDeadline time.Time
	closed             bool

	finishedMu   sync.Mutex
	finishedHead *Item
	finishedTail *Item

	stopReap chan struct{}
}

// Notifier is the narrow interface a Pool needs from the shared completion
// bus: wake the main loop after appending to the finished list.
type Notifier interface {
	Notify()
}

// NewPool creates a pool with one worker already running that calls
// bus.Notify after each completion. It does not register the pool with a
// Bus; the caller does that with Bus.Register. roofFn is consulted on every
// grow decision; for Ordered/Unlimited pools it may be nil.
func NewPool(name string, policy Policy, roofFn func() int, bus Notifier, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		name:   name,
		policy: policy,
		roofFn: roofFn,
		bus:    bus,
		logger: logger.With(zap.String("pool", name), zap.String("policy", policy.String())),
		clock:  time.Now,
	}
	p.cond = sync.NewCond(&p.pendingMu)
	p.growLocked(1)
	p.stopReap = make(chan struct{})
	go p.reap(p.stopReap, protectionPeriod/4)
	return p
}

// Roof returns the current ceiling for this pool's policy.
func (p *Pool) Roof() int {
	switch p.policy {
	case Ordered:
		return 1
	case Unlimited:
		return unlimitedRoof
	case Dynamic:
		n := 1
		if p.roofFn != nil {
			n = p.roofFn()
		}
		r := 2 * n
		if r < 1 {
			r = 1
		}
		return r
	default:
		return 1
	}
}

// ThreadsTotal reports the current worker count (P5: always <= Roof()).
func (p *Pool) ThreadsTotal() int {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return p.threadsTotal
}

// Submit enqueues item for execution, growing the pool first if the new
// backlog exceeds capacity and doubling stays within the policy's roof.
func (p *Pool) Submit(item *Item) {
	p.pendingMu.Lock()
	p.pendingCount++
	roof := p.Roof()
	if p.pendingCount+p.running > p.threadsTotal && 2*p.threadsTotal <= roof {
		target := 2 * p.threadsTotal
		p.growLocked(target)
		p.protectionDeadline = p.clock().Add(protectionPeriod)
	}
	p.appendPendingLocked(item)
	telemetry.PoolPending.WithLabelValues(p.name).Set(float64(p.pendingCount))
	p.pendingMu.Unlock()
	p.cond.Signal()
}

func (p *Pool) appendPendingLocked(item *Item) {
	item.next = nil
	if p.pendingTail == nil {
		p.pendingHead, p.pendingTail = item, item
		return
	}
	p.pendingTail.next = item
	p.pendingTail = item
}

func (p *Pool) popPendingLocked() *Item {
	item := p.pendingHead
	if item == nil {
		return nil
	}
	p.pendingHead = item.next
	if p.pendingHead == nil {
		p.pendingTail = nil
	}
	item.next = nil
	return item
}

// growLocked spawns goroutines up to target, under the startup lock so
// workers observe a consistent threadsTotal. Must be called with pendingMu
// held (mirrors the spec's nested startup-lock-under-pending-lock grow).
func (p *Pool) growLocked(target int) {
	p.startupMu.Lock()
	defer p.startupMu.Unlock()
	if target > p.Roof() {
		target = p.Roof()
	}
	n := target - p.threadsTotal
	for i := 0; i < n; i++ {
		p.threadsTotal++
		p.running++
		go p.worker()
	}
	telemetry.PoolThreadsTotal.WithLabelValues(p.name).Set(float64(p.threadsTotal))
}

// Grow is the exported, self-locking form used by tests and by explicit
// operator-driven scale requests.
func (p *Pool) Grow(target int) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	p.growLocked(target)
}

func (p *Pool) worker() {
	for {
		p.pendingMu.Lock()
		if p.shouldShrinkLocked() {
			p.threadsTotal--
			p.running--
			telemetry.PoolThreadsTotal.WithLabelValues(p.name).Set(float64(p.threadsTotal))
			telemetry.PoolRunning.WithLabelValues(p.name).Set(float64(p.running))
			p.pendingMu.Unlock()
			return
		}

		for p.pendingHead == nil && !p.closed {
			p.running--
			telemetry.PoolRunning.WithLabelValues(p.name).Set(float64(p.running))
			p.cond.Wait()
			p.running++
			telemetry.PoolRunning.WithLabelValues(p.name).Set(float64(p.running))
			if p.shouldShrinkLocked() {
				p.threadsTotal--
				p.running--
				telemetry.PoolThreadsTotal.WithLabelValues(p.name).Set(float64(p.threadsTotal))
				telemetry.PoolRunning.WithLabelValues(p.name).Set(float64(p.running))
				p.pendingMu.Unlock()
				return
			}
		}
		if p.closed && p.pendingHead == nil {
			p.running--
			p.threadsTotal--
			p.pendingMu.Unlock()
			return
		}

		item := p.popPendingLocked()
		p.pendingCount--
		telemetry.PoolPending.WithLabelValues(p.name).Set(float64(p.pendingCount))
		p.pendingMu.Unlock()

		if item == nil {
			continue
		}

		result := safeRun(item.Run, p.logger)

		p.finishedMu.Lock()
		item.result = result
		item.next = nil
		if p.finishedTail == nil {
			p.finishedHead, p.finishedTail = item, item
		} else {
			p.finishedTail.next = item
			p.finishedTail = item
		}
		p.finishedMu.Unlock()

		p.bus.Notify()
	}
}

// safeRun executes fn, converting a panicking work item into a logged
// failure instead of propagating it: the scheduler never lets a worker
// exception escape, so the completion callback always runs (spec.md §7).
func safeRun(fn func() any, logger *zap.Logger) (result any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("work item panicked", zap.Any("panic", r))
			result = nil
		}
	}()
	return fn()
}

// shouldShrinkLocked implements the spec's shrink-eligibility rule,
// requiring pendingMu already held. A pool never shrinks below one worker,
// so a Submit always has somewhere to wake.
func (p *Pool) shouldShrinkLocked() bool {
	if p.threadsTotal <= 1 {
		return false
	}
	if p.pendingCount+p.running <= p.threadsTotal/2 {
		if !p.clock().Before(p.protectionDeadline) {
			return true
		}
		return false
	}
	p.protectionDeadline = p.clock().Add(protectionPeriod)
	return false
}

// DrainFinished splices the finished list out under the finished lock and
// returns it as a slice, oldest first. Called by the completion bus.
func (p *Pool) DrainFinished() []*Item {
	p.finishedMu.Lock()
	head := p.finishedHead
	p.finishedHead, p.finishedTail = nil, nil
	p.finishedMu.Unlock()

	var items []*Item
	for n := head; n != nil; n = n.next {
		items = append(items, n)
	}
	return items
}

// Close marks the pool closed and wakes all workers so they can exit once
// the pending list drains. Submit does not check the closed flag, so an
// item submitted after Close is still queued and may still grow the pool.
// Close does not wait for workers to exit
// (detach semantics are preserved — no caller joins a worker goroutine).
func (p *Pool) Close() {
	p.pendingMu.Lock()
	p.closed = true
	p.pendingMu.Unlock()
	close(p.stopReap)
	p.cond.Broadcast()
}

// reap runs a periodic no-op broadcast so idle workers blocked in Wait get
// a chance to re-evaluate shrink eligibility even with no new submissions.
// sync.Cond has no timed wait, unlike pthread_cond_timedwait which the
// original worker_routine relies on, so an external ticker is the
// idiomatic Go substitute for the same externally observable behavior.
func (p *Pool) reap(stop <-chan struct{}, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			p.cond.Broadcast()
		}
	}
}
