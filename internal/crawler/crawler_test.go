package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// scriptedSite serves a fixed set of listing pages keyed by URL. A URL mapped to
// an error fails the fetch.
type scriptedSite struct {
	mu      sync.Mutex
	pages   map[string]PageExtraction
	fail    map[string]error
	fetched []string
}

func newScriptedSite() *scriptedSite {
	return &scriptedSite{
		pages: make(map[string]PageExtraction),
		fail:  make(map[string]error),
	}
}

// chain registers a category whose pages hold the given product counts, each
// page linking to the next one.
func (s *scriptedSite) chain(base string, counts ...int) {
	for i, n := range counts {
		url := pageURL(base, i+1)
		ext := PageExtraction{Products: products(base, i+1, n)}
		if i < len(counts)-1 {
			ext.NextURL = pageURL(base, i+2)
		}
		s.pages[url] = ext
	}
}

func (s *scriptedSite) Fetch(_ context.Context, url string) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, url)
	if err, ok := s.fail[url]; ok {
		return Page{}, &FetchError{URL: url, Kind: FetchErrorNetwork, Err: err}
	}
	if _, ok := s.pages[url]; !ok {
		return Page{}, &FetchError{URL: url, Kind: FetchErrorStatus, StatusCode: 404}
	}
	return Page{URL: url, StatusCode: 200}, nil
}

func (s *scriptedSite) Extract(page Page, _ CategoryLink) PageExtraction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[page.URL]
}

func (s *scriptedSite) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fetched)
}

func pageURL(base string, n int) string {
	if n == 1 {
		return base
	}
	return fmt.Sprintf("%s?p=%d", base, n)
}

func products(base string, page, n int) []ProductRecord {
	out := make([]ProductRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ProductRecord{
			Name:      fmt.Sprintf("product %d-%d", page, i),
			SourceURL: fmt.Sprintf("%s/item-%d-%d", base, page, i),
			ScrapedAt: time.Unix(1700000000, 0).UTC(),
		})
	}
	return out
}

// recordingStore keeps every upserted batch keyed by SourceURL.
type recordingStore struct {
	mu      sync.Mutex
	rows    map[string]ProductRecord
	batches int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{rows: make(map[string]ProductRecord)}
}

func (s *recordingStore) UpsertBatch(_ context.Context, records []ProductRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	for _, r := range records {
		s.rows[r.SourceURL] = r
	}
	return len(records), nil
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// MockProductStore is a mock implementation of the ProductStore interface.
type MockProductStore struct {
	mock.Mock
}

func (m *MockProductStore) UpsertBatch(ctx context.Context, records []ProductRecord) (int, error) {
	args := m.Called(ctx, records)
	return args.Int(0), args.Error(1)
}

// recordingPauser replaces the timer so tests run instantly.
type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(ctx context.Context, delay time.Duration) bool {
	p.mu.Lock()
	p.delays = append(p.delays, delay)
	p.mu.Unlock()
	return ctx.Err() == nil
}

func newTestCategoryCrawler(site *scriptedSite, store ProductStore, cfg CategoryConfig) (*CategoryCrawler, *recordingPauser) {
	c := NewCategoryCrawler(site, site, store, cfg, nil)
	p := &recordingPauser{}
	c.pauser = p
	return c, p
}

var errConnRefused = errors.New("connection refused")
