package crawler

import (
	"context"
	"time"
)

// pauseController abstracts how the crawler waits between pages.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration) bool
}

type timerPauseController struct{}

// Pause sleeps for delay and returns false if ctx finished first.
func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// visitTracker remembers which pages of a single category were already fetched.
// It is task-local and needs no locking.
type visitTracker struct {
	seen map[string]struct{}
}

func newVisitTracker() *visitTracker {
	return &visitTracker{seen: make(map[string]struct{})}
}

// MarkIfNew stores the URL if it has not been seen before and returns true.
func (t *visitTracker) MarkIfNew(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	key, err := URLKey(rawURL)
	if err != nil {
		key = rawURL
	}
	if _, ok := t.seen[key]; ok {
		return false
	}
	t.seen[key] = struct{}{}
	return true
}
