package crawler

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// DefaultMaxConcurrentCategories bounds how many categories crawl at once.
const DefaultMaxConcurrentCategories = 10

// Gate is a counting admission gate. Waiters are admitted in FIFO order.
// It tracks the number of holders and the highest value that number reached.
type Gate struct {
	sem    *semaphore.Weighted
	limit  int64
	active atomic.Int64
	peak   atomic.Int64
}

// NewGate creates a Gate with limit slots; limit <= 0 falls back to the default.
func NewGate(limit int) *Gate {
	n := int64(limit)
	if n <= 0 {
		n = DefaultMaxConcurrentCategories
	}
	return &Gate{
		sem:   semaphore.NewWeighted(n),
		limit: n,
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("gate acquire: %w", err)
	}
	n := g.active.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	metrics.SetActiveCategories(n)
	return nil
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	n := g.active.Add(-1)
	metrics.SetActiveCategories(n)
	g.sem.Release(1)
}

// Limit returns the number of slots.
func (g *Gate) Limit() int64 { return g.limit }

// Active returns the number of current holders.
func (g *Gate) Active() int64 { return g.active.Load() }

// Peak returns the highest number of simultaneous holders observed.
func (g *Gate) Peak() int64 { return g.peak.Load() }
