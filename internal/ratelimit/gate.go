package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/sunsavvy/internal/observability"
)

// Gate spaces calls at least interval apart across every caller in the
// process. Callers reserve a slot and sleep until it arrives.
type Gate struct {
	interval time.Duration
	clock    clockwork.Clock
	metrics  *observability.Metrics

	mu   sync.Mutex
	next time.Time
}

// NewGate creates a gate. A nil clock uses real time.
func NewGate(interval time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *Gate {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Gate{interval: interval, clock: clock, metrics: metrics}
}

// Wait blocks until the caller's slot opens or ctx is done. A caller whose
// deadline falls before the next free slot is refused without reserving,
// and a caller that gives up hands back the slot when nobody queued behind it.
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil || g.interval <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = g.clock.Now().Add(time.Until(d))
	}

	slot, delay, ok := g.reserve(deadline)
	if !ok {
		return fmt.Errorf("%w: next geocoding slot in %s", context.DeadlineExceeded, delay)
	}
	g.metrics.GateWaited(delay)
	if delay <= 0 {
		return nil
	}

	timer := g.clock.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		g.release(slot)
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

// reserve claims the next free slot and returns it with the wait until it
// opens. A non-zero deadline earlier than the slot leaves the gate untouched.
func (g *Gate) reserve(deadline time.Time) (time.Time, time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	slot := g.next
	if slot.Before(now) {
		slot = now
	}
	delay := slot.Sub(now)
	if !deadline.IsZero() && slot.After(deadline) {
		return slot, delay, false
	}
	g.next = slot.Add(g.interval)
	return slot, delay, true
}

// release returns slot to the gate if it is still the last one handed out.
func (g *Gate) release(slot time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.next.Equal(slot.Add(g.interval)) {
		g.next = slot
	}
}
