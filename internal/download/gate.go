package download

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate bounds how many units run at once and records the high-water mark.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	active   atomic.Int64
	peak     atomic.Int64
}

// NewGate creates a gate admitting capacity holders. Values below one are
// raised to one.
func NewGate(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.enter()
	return nil
}

// TryAcquire takes a slot without blocking.
func (g *Gate) TryAcquire() bool {
	if !g.sem.TryAcquire(1) {
		return false
	}
	g.enter()
	return true
}

func (g *Gate) enter() {
	n := g.active.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (g *Gate) Release() {
	g.active.Add(-1)
	g.sem.Release(1)
}

// Active returns the number of slots currently held.
func (g *Gate) Active() int { return int(g.active.Load()) }

// Peak returns the largest number of slots ever held at once.
func (g *Gate) Peak() int { return int(g.peak.Load()) }

// Capacity returns the configured number of slots.
func (g *Gate) Capacity() int { return int(g.capacity) }
