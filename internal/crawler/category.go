package crawler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Category crawl defaults.
const (
	DefaultPageDelay            = 1500 * time.Millisecond
	DefaultMaxPagesPerCategory  = 500
	stopReasonFetchFailed       = "fetch_failed"
	stopReasonEmptyPage         = "empty_page"
	stopReasonLastPage          = "last_page"
	stopReasonPageCap           = "page_cap"
	stopReasonPaginationRevisit = "pagination_loop"
	stopReasonCanceled          = "canceled"
)

// CategoryConfig controls a CategoryCrawler.
type CategoryConfig struct {
	// PageDelay is slept between consecutive pages of one category.
	PageDelay time.Duration
	// MaxPages caps the pagination chain of a single category.
	MaxPages int
}

// CategoryCrawler walks the pagination chain of one category and persists
// everything it found in a single batch.
type CategoryCrawler struct {
	fetcher   Fetcher
	extractor Extractor
	store     ProductStore
	pauser    pauseController
	cfg       CategoryConfig
	logger    *zap.Logger
}

// NewCategoryCrawler constructs a CategoryCrawler.
func NewCategoryCrawler(
	fetcher Fetcher,
	extractor Extractor,
	store ProductStore,
	cfg CategoryConfig,
	logger *zap.Logger,
) *CategoryCrawler {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPagesPerCategory
	}
	if cfg.PageDelay < 0 {
		cfg.PageDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryCrawler{
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		pauser:    &timerPauseController{},
		cfg:       cfg,
		logger:    logger,
	}
}

// Crawl runs the category to completion. It never returns an error: failures
// are recorded on the result and whatever was accumulated is still persisted.
func (c *CategoryCrawler) Crawl(ctx context.Context, category CategoryLink) CategoryResult {
	start := time.Now()
	log := c.logger.With(zap.String("category", category.Label), zap.String("url", category.URL))
	log.Info("category crawl started")

	result := CategoryResult{Category: category}
	records, reason := c.walk(ctx, category, &result, log)
	result.Found = len(records)

	if len(records) > 0 {
		written, err := c.store.UpsertBatch(ctx, records)
		if err != nil {
			log.Error("category batch upsert failed", zap.Int("found", len(records)), zap.Error(err))
			result.StoreErr = err.Error()
			written = 0
		}
		result.Written = written
	}
	result.Duration = time.Since(start)

	log.Info("category crawl finished",
		zap.Int("pages", result.Pages),
		zap.Int("found", result.Found),
		zap.Int("written", result.Written),
		zap.String("stop_reason", reason),
		zap.Duration("duration", result.Duration),
	)
	return result
}

func (c *CategoryCrawler) walk(
	ctx context.Context,
	category CategoryLink,
	result *CategoryResult,
	log *zap.Logger,
) ([]ProductRecord, string) {
	var records []ProductRecord
	visited := newVisitTracker()
	current := category.URL
	visited.MarkIfNew(current)

	for pageNumber := 1; ; pageNumber++ {
		page, err := c.fetcher.Fetch(ctx, current)
		if err != nil {
			result.FetchErr = err.Error()
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return records, stopReasonCanceled
			}
			log.Warn("category page fetch failed; keeping partial results",
				zap.Int("page", pageNumber),
				zap.String("page_url", current),
				zap.Int("kept", len(records)),
				zap.Error(err),
			)
			return records, stopReasonFetchFailed
		}
		result.Pages++

		extraction := c.extractor.Extract(page, category)
		if len(extraction.Products) == 0 {
			if pageNumber == 1 {
				log.Info("category has no products on its first page")
			} else {
				log.Debug("empty page ends pagination", zap.Int("page", pageNumber))
			}
			return records, stopReasonEmptyPage
		}
		records = append(records, extraction.Products...)
		log.Debug("category page extracted",
			zap.Int("page", pageNumber),
			zap.Int("products", len(extraction.Products)),
		)

		if extraction.NextURL == "" {
			return records, stopReasonLastPage
		}
		if pageNumber >= c.cfg.MaxPages {
			log.Warn("category page cap reached", zap.Int("max_pages", c.cfg.MaxPages))
			return records, stopReasonPageCap
		}
		if !visited.MarkIfNew(extraction.NextURL) {
			log.Warn("next link points at an already visited page", zap.String("next_url", extraction.NextURL))
			return records, stopReasonPaginationRevisit
		}
		if !c.pauser.Pause(ctx, c.cfg.PageDelay) {
			return records, stopReasonCanceled
		}
		current = extraction.NextURL
	}
}
