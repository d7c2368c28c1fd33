// Package app wires configuration into a complete crawl run: it builds the
// fetcher, stores, report sinks and ops server, then resolves categories,
// schedules them and archives the run report.
package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/api"
	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	"github.com/JakeFAU/catalog-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/catalog-crawler/internal/progress"
	"github.com/JakeFAU/catalog-crawler/internal/progress/sinks"
	pubsubPublisher "github.com/JakeFAU/catalog-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/catalog-crawler/internal/storage/chain"
	"github.com/JakeFAU/catalog-crawler/internal/storage/csvfile"
	"github.com/JakeFAU/catalog-crawler/internal/storage/gcs"
	"github.com/JakeFAU/catalog-crawler/internal/storage/local"
	"github.com/JakeFAU/catalog-crawler/internal/storage/memory"
	"github.com/JakeFAU/catalog-crawler/internal/storage/postgres"
)

const reportContentType = "application/json"

// RunNotice is published once per run. ReportURI and ReportSHA256 are set when
// the report was archived.
type RunNotice struct {
	crawler.RunReport
	ReportURI    string `json:"report_uri,omitempty"`
	ReportSHA256 string `json:"report_sha256,omitempty"`
}

// Deps are the collaborators a Runner needs. Reports and Publisher are
// optional.
type Deps struct {
	Fetcher   crawler.Fetcher
	Store     crawler.ProductStore
	Reports   crawler.BlobStore
	Publisher crawler.Publisher
	IDs       crawler.IDGenerator
	Clock     crawler.Clock
}

// Runner executes one crawl run.
type Runner struct {
	cfg      config.Config
	deps     Deps
	snapshot *sinks.SnapshotSink
	closers  []func() error
	logger   *zap.Logger
}

// New builds every dependency from cfg. The caller must Close the Runner.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var closers []func() error
	fail := func(err error) (*Runner, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	store, storeClosers, err := buildStore(ctx, cfg, logger)
	closers = append(closers, storeClosers...)
	if err != nil {
		return fail(err)
	}

	reports, reportCloser, err := buildReportStore(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	if reportCloser != nil {
		closers = append(closers, reportCloser)
	}

	var publisher crawler.Publisher
	if cfg.PubSub.TopicName != "" {
		p, err := pubsubPublisher.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, p.Close)
		publisher = p
	}

	var fetchOpts []collyfetcher.Option
	fetchOpts = append(fetchOpts, collyfetcher.WithLogger(logger.Named("fetcher")))
	if cfg.Crawler.RequestsPerSecond > 0 {
		fetchOpts = append(fetchOpts, collyfetcher.WithLimiter(ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Crawler.RequestsPerSecond,
			DefaultBurst: cfg.Crawler.Burst,
		})))
	}
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.RequestTimeout(),
	}, fetchOpts...)

	r := NewRunner(cfg, Deps{
		Fetcher:   fetcher,
		Store:     store,
		Reports:   reports,
		Publisher: publisher,
		IDs:       uuid.New(),
		Clock:     system.New(),
	}, logger)
	r.closers = closers
	return r, nil
}

// NewRunner assembles a Runner from explicit dependencies. Missing IDs and
// Clock get the production implementations.
func NewRunner(cfg config.Config, deps Deps, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	return &Runner{
		cfg:      cfg,
		deps:     deps,
		snapshot: sinks.NewSnapshotSink(),
		logger:   logger,
	}
}

// Status returns the live run snapshot.
func (r *Runner) Status() sinks.RunStatus {
	return r.snapshot.Status()
}

// Run crawls the configured site once. Homepage, menu and category failures
// are returned as errors wrapping the crawler sentinels; everything after
// scheduling is best effort and only logged.
func (r *Runner) Run(ctx context.Context) (crawler.RunReport, error) {
	runID, err := r.deps.IDs.NewID()
	if err != nil {
		return crawler.RunReport{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := r.logger.With(zap.String("run_id", runID), zap.String("site", r.cfg.Site.Name))
	report := crawler.RunReport{
		RunID:     runID,
		Site:      r.cfg.Site.Name,
		BaseURL:   r.cfg.Site.BaseURL,
		StartedAt: r.deps.Clock.Now(),
	}

	hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger.Named("progress")), r.snapshot)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	ops, stopOps := r.startOpsServer(ctx, logger)
	defer stopOps()

	categories, err := r.resolve(ctx, logger)
	if err != nil {
		return report, err
	}
	if ops != nil {
		ops.SetReady(true)
	}

	extractor, err := catalog.NewExtractor(r.cfg.Site.BaseURL, r.cfg.Site.Name, r.cfg.Selectors, r.deps.Clock, logger.Named("extractor"))
	if err != nil {
		return report, fmt.Errorf("build extractor: %w", err)
	}
	categoryCrawler := crawler.NewCategoryCrawler(r.deps.Fetcher, extractor, r.deps.Store, crawler.CategoryConfig{
		PageDelay: r.cfg.Crawler.PageDelay,
		MaxPages:  r.cfg.Crawler.MaxPagesPerCategory,
	}, logger.Named("category"))
	gate := crawler.NewGate(r.cfg.Crawler.MaxConcurrentCategories)
	scheduler := crawler.NewScheduler(categoryCrawler, gate, logger.Named("scheduler")).WithProgress(runID, hub)

	report.RunSummary = scheduler.Run(ctx, categories)
	report.FinishedAt = r.deps.Clock.Now()

	notice := RunNotice{RunReport: report}
	notice.ReportURI, notice.ReportSHA256 = r.archive(ctx, report, logger)
	r.announce(ctx, notice, logger)
	return report, nil
}

func (r *Runner) resolve(ctx context.Context, logger *zap.Logger) ([]crawler.CategoryLink, error) {
	home, err := r.deps.Fetcher.Fetch(ctx, r.cfg.Site.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrHomepageUnreachable, err)
	}
	resolver, err := catalog.NewResolver(r.cfg.Site.BaseURL, r.cfg.Selectors, logger.Named("resolver"))
	if err != nil {
		return nil, fmt.Errorf("build resolver: %w", err)
	}
	categories, err := resolver.Resolve(home.Doc)
	if err != nil {
		return nil, fmt.Errorf("resolve categories: %w", err)
	}
	for _, c := range categories {
		logger.Debug("category", zap.String("label", c.Label), zap.String("url", c.URL))
	}
	return categories, nil
}

// archive writes the report JSON to <prefix>/<run id>.json and returns its URI
// and digest. Both are empty when nothing was archived.
func (r *Runner) archive(ctx context.Context, report crawler.RunReport, logger *zap.Logger) (string, string) {
	if r.deps.Reports == nil {
		return "", ""
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Error("encode run report failed", zap.Error(err))
		return "", ""
	}
	digest := sha256.New().Hash(body)
	objectPath := report.RunID + ".json"
	if r.cfg.Report.Prefix != "" {
		objectPath = path.Join(r.cfg.Report.Prefix, objectPath)
	}
	uri, err := r.deps.Reports.PutObject(ctx, objectPath, reportContentType, bytes.NewReader(body))
	if err != nil {
		logger.Error("archive run report failed", zap.String("path", objectPath), zap.Error(err))
		return "", ""
	}
	logger.Info("run report archived", zap.String("uri", uri), zap.String("sha256", digest))
	return uri, digest
}

func (r *Runner) announce(ctx context.Context, notice RunNotice, logger *zap.Logger) {
	if r.deps.Publisher == nil || r.cfg.PubSub.TopicName == "" {
		return
	}
	id, err := r.deps.Publisher.Publish(ctx, r.cfg.PubSub.TopicName, notice)
	if err != nil {
		logger.Error("publish run report failed", zap.String("topic", r.cfg.PubSub.TopicName), zap.Error(err))
		return
	}
	logger.Info("run report published", zap.String("topic", r.cfg.PubSub.TopicName), zap.String("message_id", id))
}

// startOpsServer serves /metrics, /healthz, /readyz and /v1/run while the run
// is in progress. It is a no-op when metrics.addr is empty.
func (r *Runner) startOpsServer(ctx context.Context, logger *zap.Logger) (*api.Server, func()) {
	if r.cfg.Metrics.Addr == "" {
		return nil, func() {}
	}
	metrics.Init()
	server := api.NewServer(r.snapshot, logger.Named("api"))
	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Serve(serveCtx, r.cfg.Metrics.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("ops server stopped", zap.Error(err))
		}
	}()
	return server, func() {
		cancel()
		<-done
	}
}

// Close releases pools and clients in reverse construction order.
func (r *Runner) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawler.ProductStore, []func() error, error) {
	var (
		members []chain.Named
		closers []func() error
	)
	if cfg.DB.DSN != "" {
		pg, err := postgres.NewProductStore(ctx, postgres.ProductStoreConfig{
			DSN:          cfg.DB.DSN,
			Table:        cfg.DB.Table,
			MaxConns:     cfg.DB.MaxConns,
			EnsureSchema: cfg.DB.EnsureSchema,
			ChunkSize:    cfg.DB.ChunkSize,
		}, logger.Named("postgres"))
		if err != nil {
			return nil, closers, fmt.Errorf("open postgres store: %w", err)
		}
		closers = append(closers, func() error { pg.Close(); return nil })
		members = append(members, chain.Named{Name: "postgres", Store: pg})
	}
	if cfg.Output.CSVPath != "" {
		csvStore, err := csvfile.Open(cfg.Output.CSVPath, logger.Named("csv"))
		if err != nil {
			return nil, closers, fmt.Errorf("open csv store: %w", err)
		}
		members = append(members, chain.Named{Name: "csv", Store: csvStore})
	}

	switch len(members) {
	case 0:
		logger.Warn("no product store configured; products are kept in memory only")
		return memory.NewProductStore(), closers, nil
	case 1:
		return members[0].Store, closers, nil
	default:
		store, err := chain.New(logger.Named("store"), members...)
		if err != nil {
			return nil, closers, fmt.Errorf("build store chain: %w", err)
		}
		return store, closers, nil
	}
}

func buildReportStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawler.BlobStore, func() error, error) {
	switch cfg.Report.Store {
	case config.ReportStoreLocal:
		store, err := local.New(local.Config{BaseDir: cfg.Report.LocalDir})
		if err != nil {
			return nil, nil, fmt.Errorf("open local report store: %w", err)
		}
		return store, nil, nil
	case config.ReportStoreGCS:
		// the run report path carries the prefix already
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Report.GCSBucket}, logger.Named("gcs"))
		if err != nil {
			return nil, nil, fmt.Errorf("open gcs report store: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, nil
	}
}
