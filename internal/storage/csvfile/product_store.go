// Package csvfile keeps a CSV snapshot of every product seen, one row per
// source URL.
package csvfile

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

const storeLabel = "csv"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Columns is the header row of the snapshot file.
var Columns = []string{
	"website_name",
	"product_name",
	"price_excl_tax",
	"price_status",
	"price_raw",
	"category_path",
	"image_url",
	"source_url",
	"sku",
	"scraped_at",
}

// ProductStore upserts products into an in-memory table and rewrites the
// snapshot file after every batch. Rows already in the file when the store is
// opened are kept unless a later batch replaces them.
type ProductStore struct {
	mu     sync.Mutex
	path   string
	rows   map[string]crawler.ProductRecord
	logger *zap.Logger
}

// Open loads an existing snapshot at path, if any.
func Open(path string, logger *zap.Logger) (*ProductStore, error) {
	if path == "" {
		return nil, errors.New("csv path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ProductStore{path: path, rows: make(map[string]crawler.ProductRecord), logger: logger}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Len returns the number of rows in the snapshot.
func (s *ProductStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// UpsertBatch merges records into the snapshot and rewrites the file. When the
// write fails the in-memory table is left as it was.
func (s *ProductStore) UpsertBatch(_ context.Context, records []crawler.ProductRecord) (written int, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveUpsert(storeLabel, written, err, time.Since(start))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]crawler.ProductRecord, len(s.rows)+len(records))
	for k, v := range s.rows {
		next[k] = v
	}
	distinct := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if rec.SourceURL == "" {
			continue
		}
		next[rec.SourceURL] = rec
		distinct[rec.SourceURL] = struct{}{}
	}
	if len(distinct) == 0 {
		return 0, nil
	}
	if err := writeSnapshot(s.path, next); err != nil {
		return 0, err
	}
	s.rows = next
	return len(distinct), nil
}

func (s *ProductStore) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open csv snapshot: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if head, _ := br.Peek(len(utf8BOM)); string(head) == string(utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	r := csv.NewReader(br)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	if _, ok := idx["source_url"]; !ok {
		return fmt.Errorf("csv snapshot %s has no source_url column", s.path)
	}

	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read csv row %d: %w", line, err)
		}
		rec := fromRow(row, idx)
		if rec.SourceURL == "" {
			continue
		}
		s.rows[rec.SourceURL] = rec
	}
	s.logger.Info("csv snapshot loaded", zap.String("path", s.path), zap.Int("rows", len(s.rows)))
	return nil
}

func writeSnapshot(path string, rows map[string]crawler.ProductRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create csv directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create csv temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if err := encode(tmp, rows); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync csv snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close csv snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace csv snapshot: %w", err)
	}
	return nil
}

func encode(w io.Writer, rows map[string]crawler.ProductRecord) error {
	// BOM for spreadsheet tools that otherwise guess the wrong encoding.
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write csv bom: %w", err)
	}
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, k := range keys {
		if err := cw.Write(toRow(rows[k])); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func toRow(rec crawler.ProductRecord) []string {
	price := ""
	if rec.PriceExclTax.Valid {
		price = rec.PriceExclTax.Decimal.String()
	}
	return []string{
		rec.SourceSite,
		rec.Name,
		price,
		string(rec.PriceStatus),
		rec.RawPrice,
		rec.CategoryPath,
		rec.ImageURL,
		rec.SourceURL,
		rec.SKU,
		rec.ScrapedAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromRow(row []string, idx map[string]int) crawler.ProductRecord {
	get := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	rec := crawler.ProductRecord{
		SourceSite:   get("website_name"),
		Name:         get("product_name"),
		PriceStatus:  crawler.PriceStatus(get("price_status")),
		RawPrice:     get("price_raw"),
		CategoryPath: get("category_path"),
		ImageURL:     get("image_url"),
		SourceURL:    get("source_url"),
		SKU:          get("sku"),
	}
	if d, err := decimal.NewFromString(get("price_excl_tax")); err == nil {
		rec.PriceExclTax = decimal.NewNullDecimal(d)
	}
	if rec.PriceStatus == "" {
		rec.PriceStatus = crawler.PriceAbsent
	}
	if ts, err := time.Parse(time.RFC3339Nano, get("scraped_at")); err == nil {
		rec.ScrapedAt = ts
	}
	return rec
}
