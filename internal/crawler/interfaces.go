package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the parsed document.
// Failures are reported as *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Extractor turns a category listing page into product records.
type Extractor interface {
	Extract(page Page, category CategoryLink) PageExtraction
}

// ProductStore persists product batches keyed by SourceURL.
// UpsertBatch is all-or-nothing: on error nothing from the batch is written.
type ProductStore interface {
	UpsertBatch(ctx context.Context, records []ProductRecord) (int, error)
}

// CategoryRunner crawls a single category to completion.
type CategoryRunner interface {
	Crawl(ctx context.Context, category CategoryLink) CategoryResult
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
