package catalog

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// Extractor reads product cards and the next-page link from listing pages.
type Extractor struct {
	base     *url.URL
	siteName string
	sel      Selectors
	clock    crawler.Clock
	logger   *zap.Logger
}

// NewExtractor builds an Extractor. Relative links resolve against baseURL.
func NewExtractor(baseURL, siteName string, sel Selectors, clock crawler.Clock, logger *zap.Logger) (*Extractor, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		base:     base,
		siteName: siteName,
		sel:      sel.WithDefaults(),
		clock:    clock,
		logger:   logger,
	}, nil
}

// Extract implements crawler.Extractor.
func (e *Extractor) Extract(page crawler.Page, category crawler.CategoryLink) crawler.PageExtraction {
	if page.Doc == nil {
		return crawler.PageExtraction{}
	}
	scrapedAt := e.clock.Now()

	var out crawler.PageExtraction
	skipped := 0
	page.Doc.Find(e.sel.ProductCard).Each(func(_ int, card *goquery.Selection) {
		rec, ok := e.product(card, category, scrapedAt)
		if !ok {
			skipped++
			return
		}
		metrics.ObserveProduct(string(rec.PriceStatus))
		out.Products = append(out.Products, rec)
	})
	if skipped > 0 {
		e.logger.Debug("skipped product cards without a usable name link",
			zap.String("page_url", page.URL),
			zap.Int("skipped", skipped),
		)
	}

	if href, ok := page.Doc.Find(e.sel.NextPage).First().Attr("href"); ok {
		out.NextURL = e.absolute(href)
	}
	return out
}

func (e *Extractor) product(card *goquery.Selection, category crawler.CategoryLink, scrapedAt time.Time) (crawler.ProductRecord, bool) {
	nameLink := card.Find(e.sel.NameLink).First()
	href, ok := nameLink.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return crawler.ProductRecord{}, false
	}
	name := cleanText(nameLink.Text())
	sourceURL := e.absolute(href)
	if name == "" || sourceURL == "" {
		return crawler.ProductRecord{}, false
	}

	rec := crawler.ProductRecord{
		SourceSite:   e.siteName,
		Name:         name,
		CategoryPath: category.Label,
		SourceURL:    sourceURL,
		ScrapedAt:    scrapedAt,
		PriceStatus:  crawler.PriceAbsent,
	}

	if priceEl := card.Find(e.sel.Price).First(); priceEl.Length() > 0 {
		rec.RawPrice = cleanText(priceEl.Text())
		rec.PriceExclTax, rec.PriceStatus = ParsePrice(rec.RawPrice, e.sel.DecimalSeparator)
	}

	if img := card.Find(e.sel.Image).First(); img.Length() > 0 {
		src := img.AttrOr("src", "")
		if strings.TrimSpace(src) == "" {
			src = img.AttrOr("data-src", "")
		}
		if strings.TrimSpace(src) != "" {
			rec.ImageURL = e.absolute(src)
		}
	}

	rec.SKU = e.sku(card)
	if rec.SKU == "" {
		rec.SKU = crawler.LastPathSegment(sourceURL)
	}
	return rec, true
}

func (e *Extractor) sku(card *goquery.Selection) string {
	if e.sel.SKU == "" && e.sel.SKUAttr == "" {
		return ""
	}
	el := card
	if e.sel.SKU != "" {
		el = card.Find(e.sel.SKU).First()
		if el.Length() == 0 {
			return ""
		}
	}
	if e.sel.SKUAttr != "" {
		return strings.TrimSpace(el.AttrOr(e.sel.SKUAttr, ""))
	}
	return cleanText(el.Text())
}

// absolute resolves href against the site base URL and normalizes it.
func (e *Extractor) absolute(href string) string {
	u, err := e.base.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	normalized, err := crawler.NormalizeURL(u.String())
	if err != nil {
		return ""
	}
	return normalized
}
