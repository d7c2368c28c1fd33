package catalog

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Resolver extracts the leaf-most category links from a homepage menu.
type Resolver struct {
	base   *url.URL
	sel    Selectors
	logger *zap.Logger
}

// NewResolver builds a Resolver that resolves hrefs against baseURL.
func NewResolver(baseURL string, sel Selectors, logger *zap.Logger) (*Resolver, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{base: base, sel: sel.WithDefaults(), logger: logger}, nil
}

type candidate struct {
	link crawler.CategoryLink
	key  string
	url  *url.URL
}

// Resolve returns the category links to crawl, in menu order.
func (r *Resolver) Resolve(doc *goquery.Document) ([]crawler.CategoryLink, error) {
	menu := doc.Find(r.sel.NavContainer).First()
	if menu.Length() == 0 {
		return nil, crawler.ErrNoNavigationMenu
	}

	candidates := r.candidates(menu)
	links := make([]crawler.CategoryLink, 0, len(candidates))
	for _, c := range filterAncestors(candidates) {
		links = append(links, c.link)
	}
	r.logger.Info("categories resolved",
		zap.Int("candidates", len(candidates)),
		zap.Int("categories", len(links)),
	)
	if len(links) == 0 {
		return nil, crawler.ErrNoCategories
	}
	return links, nil
}

// candidates collects leaf and index links in document order, deduplicated by
// URL key. The last label seen for a key wins; the first position is kept.
func (r *Resolver) candidates(menu *goquery.Selection) []candidate {
	selector := r.sel.LeafLinks
	if r.sel.IndexLinks != "" {
		selector += ", " + r.sel.IndexLinks
	}

	var out []candidate
	index := make(map[string]int)
	menu.Find(selector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || isPlaceholderHref(href) {
			return
		}
		abs, err := r.base.Parse(strings.TrimSpace(href))
		if err != nil {
			r.logger.Debug("skipping unparsable menu href", zap.String("href", href), zap.Error(err))
			return
		}
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		absURL, err := crawler.NormalizeURL(abs.String())
		if err != nil {
			return
		}
		key, err := crawler.URLKey(absURL)
		if err != nil {
			return
		}
		parsed, err := url.Parse(absURL)
		if err != nil {
			return
		}
		c := candidate{
			link: crawler.CategoryLink{Label: r.label(a), URL: absURL},
			key:  key,
			url:  parsed,
		}
		if i, seen := index[key]; seen {
			out[i].link.Label = c.link.Label
			return
		}
		index[key] = len(out)
		out = append(out, c)
	})
	return out
}

// label is "<heading> > <text>" for links under a column heading, and the
// link text alone for the heading links themselves or links with no heading.
func (r *Resolver) label(a *goquery.Selection) string {
	text := cleanText(a.Text())
	if a.Closest(r.sel.Heading).Length() > 0 {
		return text
	}
	column := a.Closest(r.sel.MenuColumn)
	if column.Length() == 0 {
		return text
	}
	heading := cleanText(column.Find(r.sel.Heading).First().Text())
	if heading == "" || heading == text {
		return text
	}
	return heading + " > " + text
}

// FilterAncestors drops every link whose path is a segment-wise ancestor of
// another link on the same host. Order is preserved and the result is a fixed
// point: filtering it again changes nothing.
func FilterAncestors(links []crawler.CategoryLink) []crawler.CategoryLink {
	candidates := make([]candidate, 0, len(links))
	for _, l := range links {
		u, err := url.Parse(l.URL)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{link: l, url: u})
	}
	kept := filterAncestors(candidates)
	out := make([]crawler.CategoryLink, 0, len(kept))
	for _, c := range kept {
		out = append(out, c.link)
	}
	return out
}

func filterAncestors(candidates []candidate) []candidate {
	out := make([]candidate, 0, len(candidates))
	for i, c := range candidates {
		ancestor := false
		for j, other := range candidates {
			if i != j && crawler.IsPathAncestor(c.url, other.url) {
				ancestor = true
				break
			}
		}
		if !ancestor {
			out = append(out, c)
		}
	}
	return out
}

func isPlaceholderHref(href string) bool {
	h := strings.TrimSpace(href)
	if h == "" || h == "#" || h == "/" || strings.HasPrefix(h, "#") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(h), "javascript:")
}

func parseBase(raw string) (*url.URL, error) {
	base, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", raw)
	}
	return base, nil
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
