// Package crawler defines core types shared across subsystems.
package crawler

import (
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// CategoryLink is one resolved category entry point.
type CategoryLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// PriceStatus records how the tax-exclusive price of a product was obtained.
type PriceStatus string

// Price outcomes attached to every ProductRecord.
const (
	PriceAbsent     PriceStatus = "absent"
	PriceParsed     PriceStatus = "parsed"
	PriceUnparsable PriceStatus = "unparsable"
)

// ProductRecord is a single product card observed on a category listing page.
// SourceURL is the identity key; a later record with the same SourceURL replaces
// an earlier one.
type ProductRecord struct {
	SourceSite   string              `json:"source_site"`
	Name         string              `json:"name"`
	PriceExclTax decimal.NullDecimal `json:"price_excl_tax"`
	PriceStatus  PriceStatus         `json:"price_status"`
	RawPrice     string              `json:"raw_price,omitempty"`
	CategoryPath string              `json:"category_path"`
	ImageURL     string              `json:"image_url,omitempty"`
	SourceURL    string              `json:"source_url"`
	SKU          string              `json:"sku,omitempty"`
	ScrapedAt    time.Time           `json:"scraped_at"`
}

// Page is a fetched and parsed HTML document.
type Page struct {
	URL        string
	StatusCode int
	Doc        *goquery.Document
}

// PageExtraction is what the extractor finds on a single listing page.
type PageExtraction struct {
	Products []ProductRecord
	NextURL  string
}

// CategoryResult summarizes one category crawl.
type CategoryResult struct {
	Category CategoryLink  `json:"category"`
	Pages    int           `json:"pages"`
	Found    int           `json:"found"`
	Written  int           `json:"written"`
	Duration time.Duration `json:"duration_ns"`
	FetchErr string        `json:"fetch_error,omitempty"`
	StoreErr string        `json:"store_error,omitempty"`
	Panic    string        `json:"panic,omitempty"`
}

// Failed reports whether anything went wrong during the category crawl.
func (r CategoryResult) Failed() bool {
	return r.FetchErr != "" || r.StoreErr != "" || r.Panic != ""
}

// Outcome returns a coarse label for metrics and logs.
func (r CategoryResult) Outcome() string {
	switch {
	case r.Panic != "":
		return "panic"
	case r.StoreErr != "":
		return "store_error"
	case r.FetchErr != "" && r.Found == 0:
		return "fetch_error"
	case r.FetchErr != "":
		return "partial"
	case r.Found == 0:
		return "empty"
	default:
		return "ok"
	}
}

// RunSummary is the join-point aggregate produced by the Scheduler.
type RunSummary struct {
	Results      []CategoryResult `json:"categories"`
	TotalFound   int              `json:"total_found"`
	TotalWritten int              `json:"total_written"`
	PeakActive   int64            `json:"peak_active_categories"`
}

// RunReport describes a complete crawl run.
type RunReport struct {
	RunID      string    `json:"run_id"`
	Site       string    `json:"site"`
	BaseURL    string    `json:"base_url"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	RunSummary
}
