// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// DefaultTimeout bounds a single GET, including reading the body.
const DefaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// Headers are added to every request.
	Headers http.Header
}

// Waiter delays a request until the target host may be contacted again.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLimiter throttles every fetch through w.
func WithLimiter(w Waiter) Option {
	return func(f *Fetcher) { f.limiter = w }
}

// WithLogger sets the logger used for fetch warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithTransport replaces the HTTP transport. Mostly useful in tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) { f.transport = rt }
}

// Fetcher implements crawler.Fetcher using the Colly collector.
// It is safe for concurrent use: every fetch runs on its own clone of the base
// collector and only touches that clone's fields.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	limiter       Waiter
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// capture collects what the collector callbacks observed for one fetch.
type capture struct {
	finalURL   string
	statusCode int
	body       []byte
	err        error
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	f := &Fetcher{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	if f.transport == nil {
		f.transport = newHTTPTransport()
	}
	f.transport = newRobotsAwareTransport(f.transport, f.logger)

	// Pagination chains and the homepage may be fetched more than once per run;
	// the visited set is owned by the category crawler. Status codes are judged
	// by Fetch, so colly must hand every response to OnResponse.
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit(), colly.ParseHTTPErrorResponse())
	// Clones share the base collector's HTTP backend: client-level settings are
	// applied here once and never on a clone.
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(f.transport)
	f.baseCollector = c
	return f
}

// Fetch performs a single GET and parses the body into a document.
// Non-2xx responses, transport failures and robots.txt refusals are reported as
// *crawler.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.Page, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return crawler.Page{}, &crawler.FetchError{URL: rawURL, Kind: crawler.FetchErrorNetwork, Err: err}
		}
	}

	start := time.Now()
	var got capture
	collector := f.buildCollector(ctx)
	f.configureCollectorHooks(collector, &got)

	runErr := f.runCollector(ctx, collector, rawURL)
	duration := time.Since(start)
	if runErr != nil {
		if ctx.Err() != nil {
			// the visit goroutine may still be writing got
			return crawler.Page{}, f.fail(&crawler.FetchError{URL: rawURL, Kind: crawler.FetchErrorNetwork, Err: runErr}, duration)
		}
		return crawler.Page{}, f.fail(classify(rawURL, &got, runErr), duration)
	}
	if fetchErr := checkStatus(rawURL, got.statusCode); fetchErr != nil {
		return crawler.Page{}, f.fail(fetchErr, duration)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(got.body))
	if err != nil {
		metrics.ObserveFetch(rawURL, "parse_error", duration)
		return crawler.Page{}, &crawler.FetchError{
			URL:  rawURL,
			Kind: crawler.FetchErrorNetwork,
			Err:  fmt.Errorf("parse html: %w", err),
		}
	}
	pageURL := got.finalURL
	if pageURL == "" {
		pageURL = rawURL
	}
	if u, err := url.Parse(pageURL); err == nil {
		doc.Url = u
	}

	metrics.ObserveFetch(rawURL, strconv.Itoa(got.statusCode), duration)
	f.logger.Debug("page fetched",
		zap.String("url", pageURL),
		zap.Int("status", got.statusCode),
		zap.Int("bytes", len(got.body)),
		zap.Duration("duration", duration),
	)
	return crawler.Page{URL: pageURL, StatusCode: got.statusCode, Doc: doc}, nil
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.ParseHTTPErrorResponse = true
	return collector
}

func (f *Fetcher) fail(fetchErr *crawler.FetchError, duration time.Duration) *crawler.FetchError {
	metrics.ObserveFetch(fetchErr.URL, statusLabel(fetchErr), duration)
	f.logger.Warn("page fetch failed",
		zap.String("url", fetchErr.URL),
		zap.String("kind", string(fetchErr.Kind)),
		zap.Int("status", fetchErr.StatusCode),
		zap.Duration("duration", duration),
		zap.Error(fetchErr),
	)
	return fetchErr
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, got *capture) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range f.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		got.statusCode = r.StatusCode
		got.body = append([]byte(nil), r.Body...)
		if r.Request != nil && r.Request.URL != nil {
			got.finalURL = r.Request.URL.String()
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			got.statusCode = r.StatusCode
		}
		got.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, rawURL string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// classify maps a collector failure onto the crawler's FetchError kinds.
func classify(rawURL string, got *capture, err error) *crawler.FetchError {
	switch {
	case errors.Is(err, colly.ErrRobotsTxtBlocked):
		return &crawler.FetchError{URL: rawURL, Kind: crawler.FetchErrorBlocked, Err: err}
	case got.statusCode != 0 && (got.statusCode < 200 || got.statusCode > 299):
		return &crawler.FetchError{URL: rawURL, Kind: crawler.FetchErrorStatus, StatusCode: got.statusCode, Err: err}
	default:
		return &crawler.FetchError{URL: rawURL, Kind: crawler.FetchErrorNetwork, Err: err}
	}
}

// checkStatus fails any response outside 2xx. A zero code means no response
// was recorded and is treated as a network failure.
func checkStatus(rawURL string, code int) *crawler.FetchError {
	switch {
	case code == 0:
		return &crawler.FetchError{URL: rawURL, Kind: crawler.FetchErrorNetwork, Err: errors.New("no response received")}
	case code < 200 || code > 299:
		return &crawler.FetchError{
			URL:        rawURL,
			Kind:       crawler.FetchErrorStatus,
			StatusCode: code,
			Err:        errors.New(http.StatusText(code)),
		}
	default:
		return nil
	}
}

func statusLabel(err *crawler.FetchError) string {
	if err.Kind == crawler.FetchErrorStatus {
		return strconv.Itoa(err.StatusCode)
	}
	return string(err.Kind)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
