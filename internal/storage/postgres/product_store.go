// Package postgres provides the Postgres-backed product store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

const (
	defaultTable     = "products"
	defaultChunkSize = 500
	storeLabel       = "postgres"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// productColumns is the insert column order; argsFor must match it.
var productColumns = []string{
	"website_name",
	"product_name",
	"price_excl_tax",
	"price_raw",
	"category_path",
	"image_url",
	"source_url",
	"scraped_at",
	"sku",
}

// ProductStoreConfig controls the Postgres connection pool used for product rows.
type ProductStoreConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
	// ChunkSize is the number of rows per INSERT statement.
	ChunkSize int `mapstructure:"chunk_size"`
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ProductStore upserts product records keyed by source_url.
type ProductStore struct {
	pool      pool
	table     string
	chunkSize int
	logger    *zap.Logger
}

// NewProductStore connects to Postgres and optionally bootstraps the schema.
func NewProductStore(ctx context.Context, cfg ProductStoreConfig, logger *zap.Logger) (*ProductStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := NewProductStoreWithPool(p, cfg.Table, cfg.ChunkSize, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	if cfg.EnsureSchema {
		if err := s.EnsureSchema(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewProductStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewProductStoreWithPool(p pool, table string, chunkSize int, logger *zap.Logger) (*ProductStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductStore{pool: p, table: table, chunkSize: chunkSize, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *ProductStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the product table when it does not exist yet.
func (s *ProductStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id SERIAL PRIMARY KEY,
	website_name TEXT NOT NULL,
	product_name TEXT NOT NULL,
	price_excl_tax NUMERIC(10,2),
	price_raw TEXT,
	category_path TEXT,
	image_url TEXT,
	source_url TEXT NOT NULL UNIQUE,
	scraped_at TIMESTAMPTZ NOT NULL,
	sku TEXT
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// UpsertBatch writes records in one transaction. Rows that share a source_url
// overwrite everything but the key. The batch is deduplicated first with the
// last occurrence winning, so the returned count is the number of distinct
// source URLs written.
func (s *ProductStore) UpsertBatch(ctx context.Context, records []crawler.ProductRecord) (written int, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveUpsert(storeLabel, written, err, time.Since(start))
	}()

	rows := Dedupe(records)
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	total := 0
	for offset := 0; offset < len(rows); offset += s.chunkSize {
		end := min(offset+s.chunkSize, len(rows))
		query, args := s.upsertStatement(rows[offset:end])
		tag, execErr := tx.Exec(ctx, query, args...)
		if execErr != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Warn("rollback after failed upsert", zap.Error(rbErr))
			}
			return 0, fmt.Errorf("upsert products: %w", execErr)
		}
		total += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	s.logger.Debug("product batch upserted",
		zap.String("table", s.table),
		zap.Int("records", len(records)),
		zap.Int("written", total),
	)
	return total, nil
}

func (s *ProductStore) upsertStatement(rows []crawler.ProductRecord) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", s.table, strings.Join(productColumns, ", "))

	args := make([]any, 0, len(rows)*len(productColumns))
	for i, rec := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range productColumns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", len(args)+j+1)
		}
		b.WriteByte(')')
		args = append(args, argsFor(rec)...)
	}

	b.WriteString(" ON CONFLICT (source_url) DO UPDATE SET ")
	first := true
	for _, col := range productColumns {
		if col == "source_url" {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%s = EXCLUDED.%s", col, col)
	}
	return b.String(), args
}

func argsFor(rec crawler.ProductRecord) []any {
	return []any{
		rec.SourceSite,
		rec.Name,
		rec.PriceExclTax,
		nullable(rec.RawPrice),
		nullable(rec.CategoryPath),
		nullable(rec.ImageURL),
		rec.SourceURL,
		rec.ScrapedAt,
		nullable(rec.SKU),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Dedupe drops earlier records that share a SourceURL with a later one. The
// surviving record keeps the position of the first occurrence.
func Dedupe(records []crawler.ProductRecord) []crawler.ProductRecord {
	index := make(map[string]int, len(records))
	out := make([]crawler.ProductRecord, 0, len(records))
	for _, rec := range records {
		if rec.SourceURL == "" {
			continue
		}
		if i, ok := index[rec.SourceURL]; ok {
			out[i] = rec
			continue
		}
		index[rec.SourceURL] = len(out)
		out = append(out, rec)
	}
	return out
}
