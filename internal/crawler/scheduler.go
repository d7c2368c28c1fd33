package crawler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	"github.com/JakeFAU/catalog-crawler/internal/progress"
)

// Scheduler fans category crawls out behind an admission Gate.
type Scheduler struct {
	runner CategoryRunner
	gate   *Gate
	logger *zap.Logger

	runID    string
	progress progress.Emitter
	now      func() time.Time
}

// NewScheduler creates a Scheduler. A nil gate gets the default limit.
func NewScheduler(runner CategoryRunner, gate *Gate, logger *zap.Logger) *Scheduler {
	if gate == nil {
		gate = NewGate(DefaultMaxConcurrentCategories)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		runner: runner,
		gate:   gate,
		logger: logger,
		now:    time.Now,
	}
}

// WithProgress makes the scheduler emit run and category milestones tagged
// with runID. It returns s for chaining.
func (s *Scheduler) WithProgress(runID string, emitter progress.Emitter) *Scheduler {
	s.runID = runID
	s.progress = emitter
	return s
}

func (s *Scheduler) emit(evt progress.Event) {
	if s.progress == nil {
		return
	}
	evt.RunID = s.runID
	evt.TS = s.now()
	s.progress.Emit(evt)
}

// Run crawls every category and blocks until all of them finish. Each task
// writes only its own result slot; totals are computed after the join.
func (s *Scheduler) Run(ctx context.Context, categories []CategoryLink) RunSummary {
	s.logger.Info("scheduling categories",
		zap.Int("categories", len(categories)),
		zap.Int64("max_concurrent", s.gate.Limit()),
	)
	runStart := s.now()
	s.emit(progress.Event{Stage: progress.StageRunStart, Categories: len(categories)})

	results := make([]CategoryResult, len(categories))
	var g errgroup.Group
	for i, category := range categories {
		g.Go(func() error {
			results[i] = s.runOne(ctx, category)
			r := results[i]
			s.emit(progress.Event{
				Stage:    progress.StageCategoryDone,
				Category: category.Label,
				URL:      category.URL,
				Outcome:  r.Outcome(),
				Pages:    r.Pages,
				Found:    r.Found,
				Written:  r.Written,
				Dur:      r.Duration,
				Note:     firstNonEmpty(r.Panic, r.StoreErr, r.FetchErr),
			})
			return nil
		})
	}
	_ = g.Wait() // tasks never return errors

	summary := RunSummary{Results: results, PeakActive: s.gate.Peak()}
	for _, r := range results {
		summary.TotalFound += r.Found
		summary.TotalWritten += r.Written
		metrics.ObserveCategory(r.Outcome())
	}
	s.logger.Info("all categories finished",
		zap.Int("total_found", summary.TotalFound),
		zap.Int("total_written", summary.TotalWritten),
		zap.Int64("peak_active", summary.PeakActive),
	)
	s.emit(progress.Event{
		Stage:      progress.StageRunDone,
		Categories: len(categories),
		Found:      summary.TotalFound,
		Written:    summary.TotalWritten,
		Dur:        s.now().Sub(runStart),
	})
	return summary
}

func (s *Scheduler) runOne(ctx context.Context, category CategoryLink) (result CategoryResult) {
	result.Category = category
	if err := s.gate.Acquire(ctx); err != nil {
		result.FetchErr = err.Error()
		s.logger.Warn("category not admitted", zap.String("category", category.Label), zap.Error(err))
		return result
	}
	defer s.gate.Release()
	s.emit(progress.Event{Stage: progress.StageCategoryStart, Category: category.Label, URL: category.URL})
	defer func() {
		if r := recover(); r != nil {
			result.Panic = fmt.Sprint(r)
			s.logger.Error("category crawl panicked",
				zap.String("category", category.Label),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	return s.runner.Crawl(ctx, category)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
