package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCategoryCrawlerFollowsPaginationUntilNoNextLink(t *testing.T) {
	t.Parallel()

	site := newScriptedSite()
	site.chain("https://shop.example/tools", 4, 4, 2)
	store := newRecordingStore()
	c, pauser := newTestCategoryCrawler(site, store, CategoryConfig{PageDelay: 1500 * time.Millisecond})

	res := c.Crawl(context.Background(), CategoryLink{Label: "Tools", URL: "https://shop.example/tools"})

	require.Equal(t, 3, site.fetchCount(), "page 3 has no next link, so exactly 3 pages are visited")
	require.Equal(t, 3, res.Pages)
	require.Equal(t, 10, res.Found)
	require.Equal(t, 10, res.Written)
	require.Empty(t, res.FetchErr)
	require.Equal(t, 1, store.batches, "a category is persisted in a single batch")
	require.Equal(t, []time.Duration{1500 * time.Millisecond, 1500 * time.Millisecond}, pauser.delays)
	require.Equal(t, "ok", res.Outcome())
}

func TestCategoryCrawlerStopsOnEmptyPageWithoutFollowingNext(t *testing.T) {
	t.Parallel()

	site := newScriptedSite()
	site.chain("https://shop.example/paint", 5, 0, 5)
	// The empty page still advertises a next link; it must be ignored.
	empty := site.pages["https://shop.example/paint?p=2"]
	require.NotEmpty(t, empty.NextURL)

	store := newRecordingStore()
	c, _ := newTestCategoryCrawler(site, store, CategoryConfig{})

	res := c.Crawl(context.Background(), CategoryLink{Label: "Paint", URL: "https://shop.example/paint"})

	require.Equal(t, 2, site.fetchCount())
	require.Equal(t, 5, res.Found)
	require.Equal(t, 5, store.count())
}

func TestCategoryCrawlerEmptyFirstPageSkipsStore(t *testing.T) {
	t.Parallel()

	site := newScriptedSite()
	site.chain("https://shop.example/empty", 0)
	store := new(MockProductStore)
	c, _ := newTestCategoryCrawler(site, store, CategoryConfig{})

	res := c.Crawl(context.Background(), CategoryLink{Label: "Empty", URL: "https://shop.example/empty"})

	require.Equal(t, 1, res.Pages)
	require.Zero(t, res.Found)
	require.Equal(t, "empty", res.Outcome())
	store.AssertNotCalled(t, "UpsertBatch", mock.Anything, mock.Anything)
}

func TestCategoryCrawlerKeepsPartialResultsOnFetchFailure(t *testing.T) {
	t.Parallel()

	site := newScriptedSite()
	site.chain("https://shop.example/garden", 3, 3, 3, 3, 3)
	site.fail["https://shop.example/garden?p=2"] = errConnRefused
	store := newRecordingStore()
	c, _ := newTestCategoryCrawler(site, store, CategoryConfig{})

	res := c.Crawl(context.Background(), CategoryLink{Label: "Garden", URL: "https://shop.example/garden"})

	require.Equal(t, 1, res.Pages)
	require.Equal(t, 3, res.Found)
	require.Equal(t, 3, res.Written)
	require.Contains(t, res.FetchErr, "connection refused")
	require.Equal(t, "partial", res.Outcome())
	require.Equal(t, 3, store.count())
}

func TestCategoryCrawlerStoreFailureReportsZeroWritten(t *testing.T) {
	t.Parallel()

	site := newScriptedSite()
	site.chain("https://shop.example/lamps", 2, 2)
	store := new(MockProductStore)
	store.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(recs []ProductRecord) bool {
		return len(recs) == 4
	})).Return(0, errors.New("db down")).Once()
	c, _ := newTestCategoryCrawler(site, store, CategoryConfig{})

	res := c.Crawl(context.Background(), CategoryLink{Label: "Lamps", URL: "https://shop.example/lamps"})

	require.Equal(t, 4, res.Found, "found count survives a store failure")
	require.Zero(t, res.Written)
	require.Equal(t, "db down", res.StoreErr)
	require.Equal(t, "store_error", res.Outcome())
	store.AssertExpectations(t)
}

func TestCategoryCrawlerHonorsPageCap(t *testing.T) {
	t.Parallel()

	site := newScriptedSite()
	site.chain("https://shop.example/endless", 1, 1, 1, 1, 1, 1)
	store := newRecordingStore()
	c, _ := newTestCategoryCrawler(site, store, CategoryConfig{MaxPages: 4})

	res := c.Crawl(context.Background(), CategoryLink{Label: "Endless", URL: "https://shop.example/endless"})

	require.Equal(t, 4, site.fetchCount())
	require.Equal(t, 4, res.Found)
}

func TestCategoryCrawlerDetectsPaginationLoop(t *testing.T) {
	t.Parallel()

	site := newScriptedSite()
	site.chain("https://shop.example/loop", 2, 2)
	second := site.pages["https://shop.example/loop?p=2"]
	second.NextURL = "https://shop.example/loop/"
	site.pages["https://shop.example/loop?p=2"] = second
	store := newRecordingStore()
	c, _ := newTestCategoryCrawler(site, store, CategoryConfig{})

	res := c.Crawl(context.Background(), CategoryLink{Label: "Loop", URL: "https://shop.example/loop"})

	require.Equal(t, 2, site.fetchCount())
	require.Equal(t, 4, res.Found)
}

func TestCategoryCrawlerStopsWhenContextEndsDuringDelay(t *testing.T) {
	t.Parallel()

	site := newScriptedSite()
	site.chain("https://shop.example/slow", 2, 2, 2)
	store := newRecordingStore()
	c := NewCategoryCrawler(site, site, store, CategoryConfig{PageDelay: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan CategoryResult, 1)
	go func() { done <- c.Crawl(ctx, CategoryLink{Label: "Slow", URL: "https://shop.example/slow"}) }()

	select {
	case res := <-done:
		require.Equal(t, 1, res.Pages)
		require.Equal(t, 2, res.Found)
	case <-time.After(5 * time.Second):
		t.Fatal("crawl did not stop after context cancel")
	}
}

func TestTimerPauseControllerHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pauser := &timerPauseController{}
	start := time.Now()
	require.False(t, pauser.Pause(ctx, 5*time.Second))
	require.Less(t, time.Since(start), time.Second, "pause should exit immediately when context is done")
}

func TestVisitTrackerNormalizesURLs(t *testing.T) {
	t.Parallel()

	tracker := newVisitTracker()
	require.True(t, tracker.MarkIfNew("https://Shop.example/a/"))
	require.False(t, tracker.MarkIfNew("https://shop.example/a"))
	require.True(t, tracker.MarkIfNew("https://shop.example/a?p=2"))
	require.False(t, tracker.MarkIfNew(""))
}
