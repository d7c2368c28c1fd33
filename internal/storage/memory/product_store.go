package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// ProductStore is an in-memory upsert table keyed by SourceURL.
type ProductStore struct {
	mu       sync.RWMutex
	products map[string]crawler.ProductRecord
	// FailWith, when set, makes every UpsertBatch fail without writing.
	FailWith error
}

// NewProductStore constructs an empty ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{products: make(map[string]crawler.ProductRecord)}
}

// UpsertBatch stores every record, replacing earlier records with the same
// SourceURL. It returns the number of distinct source URLs in the batch.
func (s *ProductStore) UpsertBatch(_ context.Context, records []crawler.ProductRecord) (int, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		metrics.ObserveUpsert("memory", 0, s.FailWith, time.Since(start))
		return 0, s.FailWith
	}
	distinct := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if rec.SourceURL == "" {
			continue
		}
		s.products[rec.SourceURL] = rec
		distinct[rec.SourceURL] = struct{}{}
	}
	metrics.ObserveUpsert("memory", len(distinct), nil, time.Since(start))
	return len(distinct), nil
}

// Get returns the stored record for sourceURL.
func (s *ProductStore) Get(sourceURL string) (crawler.ProductRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.products[sourceURL]
	return rec, ok
}

// Len returns the number of stored products.
func (s *ProductStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)
}

// All returns every stored record ordered by SourceURL.
func (s *ProductStore) All() []crawler.ProductRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.ProductRecord, 0, len(s.products))
	for _, rec := range s.products {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceURL < out[j].SourceURL })
	return out
}
