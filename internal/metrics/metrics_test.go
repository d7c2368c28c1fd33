package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if crawlerPagesTotal == nil || crawlerProductsTotal == nil ||
		crawlerCategoriesTotal == nil || storeUpsertDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()
	pages := crawlerPagesTotal.WithLabelValues("metrics-test.example", "200")
	before := testutil.ToFloat64(pages)
	ObserveFetch("https://metrics-test.example/a", "200", 10*time.Millisecond)
	if got := testutil.ToFloat64(pages); got != before+1 {
		t.Errorf("expected pages counter to increase by 1, got %f -> %f", before, got)
	}

	writtenBefore := testutil.ToFloat64(storeRecordsWrittenTotal.WithLabelValues("metrics-test"))
	ObserveUpsert("metrics-test", 4, nil, time.Millisecond)
	ObserveUpsert("metrics-test", 9, errors.New("boom"), time.Millisecond)
	if got := testutil.ToFloat64(storeRecordsWrittenTotal.WithLabelValues("metrics-test")); got != writtenBefore+4 {
		t.Errorf("expected only successful upserts to count, got %f", got-writtenBefore)
	}

	SetActiveCategories(3)
	if got := testutil.ToFloat64(crawlerActiveCategories); got != 3 {
		t.Errorf("expected active categories gauge 3, got %f", got)
	}
	SetActiveCategories(0)
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
