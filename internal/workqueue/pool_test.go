package workqueue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopNotifier discards Notify calls; tests that don't need the bus use it
// so pools never block trying to reach a real Bus.
type noopNotifier struct{}

func (noopNotifier) Notify() {}

// fakeClock lets shrink-protection tests control elapsed time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(0, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestPool(policy Policy, roofFn func() int) *Pool {
	p := NewPool("test", policy, roofFn, noopNotifier{}, nil)
	return p
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Fail(t, "condition never became true")
}

func TestOrderedPoolNeverGrowsBeyondOneWorker(t *testing.T) {
	p := newTestPool(Ordered, nil)
	defer p.Close()

	for i := 0; i < 20; i++ {
		p.Submit(&Item{Run: func() any { return nil }})
	}
	assert.Equal(t, 1, p.ThreadsTotal())
}

func TestOrderedPoolRunsItemsInSubmissionOrder(t *testing.T) {
	p := newTestPool(Ordered, nil)
	defer p.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		i := i
		p.Submit(&Item{
			Run: func() any { return i },
			Done: func(res any) {
				mu.Lock()
				order = append(order, res.(int))
				mu.Unlock()
				wg.Done()
			},
		})
	}

	// Drain completions manually since there's no bus wired in this test;
	// in real use the Bus does this after Notify.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, it := range p.DrainFinished() {
				if it.Done != nil {
					it.Done(it.result)
				}
			}
			time.Sleep(time.Millisecond)
		}
	}()

	wg.Wait()
	require.Len(t, order, 10)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestDynamicPoolRoofTracksClusterNodeCount(t *testing.T) {
	count := int32(2)
	p := newTestPool(Dynamic, func() int { return int(atomic.LoadInt32(&count)) })
	defer p.Close()
	assert.Equal(t, 4, p.Roof())

	atomic.StoreInt32(&count, 5)
	assert.Equal(t, 10, p.Roof())
}

func TestUnlimitedPoolRoofIsVeryLarge(t *testing.T) {
	p := newTestPool(Unlimited, nil)
	defer p.Close()
	assert.Greater(t, p.Roof(), 1<<20)
}

func TestDynamicPoolGrowsUnderBacklog(t *testing.T) {
	p := newTestPool(Dynamic, func() int { return 8 })
	defer p.Close()

	release := make(chan struct{})
	var started sync.WaitGroup
	for i := 0; i < 4; i++ {
		started.Add(1)
		p.Submit(&Item{Run: func() any {
			started.Done()
			<-release
			return nil
		}})
	}
	started.Wait()

	waitForCondition(t, func() bool { return p.ThreadsTotal() > 1 })
	close(release)
}

func TestPoolNeverShrinksBelowOneWorker(t *testing.T) {
	p := newTestPool(Dynamic, func() int { return 1 })
	defer p.Close()
	assert.GreaterOrEqual(t, p.ThreadsTotal(), 1)
	time.Sleep(50 * time.Millisecond)
	assert.GreaterOrEqual(t, p.ThreadsTotal(), 1)
}

func TestPoolShrinksOnlyAfterProtectionPeriodElapses(t *testing.T) {
	clk := newFakeClock()
	p := newTestPool(Dynamic, func() int { return 8 })
	defer p.Close()
	p.pendingMu.Lock()
	p.clock = clk.Now
	p.pendingMu.Unlock()

	release := make(chan struct{})
	var started sync.WaitGroup
	for i := 0; i < 4; i++ {
		started.Add(1)
		p.Submit(&Item{Run: func() any {
			started.Done()
			<-release
			return nil
		}})
	}
	started.Wait()
	grown := p.ThreadsTotal()
	require.Greater(t, grown, 1)
	close(release)

	// Finished work drops load, but the protection period hasn't elapsed
	// on the fake clock yet, so workers must not have shrunk.
	waitForCondition(t, func() bool { return p.ThreadsTotal() == grown })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, grown, p.ThreadsTotal())

	clk.Advance(2 * protectionPeriod)
	waitForCondition(t, func() bool { return p.ThreadsTotal() < grown })
}

func TestGrowRespectsRoofCeiling(t *testing.T) {
	p := newTestPool(Ordered, nil)
	defer p.Close()
	p.Grow(100)
	assert.Equal(t, 1, p.ThreadsTotal(), "Ordered pools must never exceed a roof of 1")
}

func TestSafeRunRecoversPanicAndReturnsNilResult(t *testing.T) {
	var got any = "unset"
	var wg sync.WaitGroup
	wg.Add(1)
	p := newTestPool(Unlimited, nil)
	defer p.Close()

	p.Submit(&Item{
		Run: func() any { panic("boom") },
		Done: func(res any) {
			got = res
			wg.Done()
		},
	})

	// Manually pump completions since no bus is wired in this test.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, it := range p.DrainFinished() {
				if it.Done != nil {
					it.Done(it.result)
				}
			}
			time.Sleep(time.Millisecond)
		}
	}()

	wg.Wait()
	assert.Nil(t, got)
}
