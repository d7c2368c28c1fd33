package csvfile

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

func record(url, name, price string) crawler.ProductRecord {
	rec := crawler.ProductRecord{
		SourceSite:   "shop",
		Name:         name,
		PriceStatus:  crawler.PriceAbsent,
		CategoryPath: "Tools > Hammers",
		SourceURL:    url,
		ScrapedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	if price != "" {
		rec.PriceExclTax = decimal.NewNullDecimal(decimal.RequireFromString(price))
		rec.PriceStatus = crawler.PriceParsed
	}
	return rec
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), string(utf8BOM)))
	rows, err := csv.NewReader(strings.NewReader(string(data[len(utf8BOM):]))).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestUpsertBatchWritesSnapshot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "products.csv")
	store, err := Open(path, zap.NewNop())
	require.NoError(t, err)

	n, err := store.UpsertBatch(context.Background(), []crawler.ProductRecord{
		record("https://shop.example/b.html", "B", "2.50"),
		record("https://shop.example/a.html", "A", ""),
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	require.Equal(t, Columns, rows[0])
	require.Equal(t, "https://shop.example/a.html", rows[1][7])
	require.Equal(t, "", rows[1][2])
	require.Equal(t, "absent", rows[1][3])
	require.Equal(t, "2.5", rows[2][2])
}

func TestUpsertBatchLastWriteWinsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "products.csv")
	store, err := Open(path, nil)
	require.NoError(t, err)
	_, err = store.UpsertBatch(context.Background(), []crawler.ProductRecord{
		record("https://shop.example/claw.html", "Claw Hammer", "12.50"),
		record("https://shop.example/mallet.html", "Mallet", "8"),
	})
	require.NoError(t, err)

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	require.Equal(t, 2, reopened.Len())

	n, err := reopened.UpsertBatch(context.Background(), []crawler.ProductRecord{
		record("https://shop.example/claw.html", "Claw Hammer", "14.00"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 2, reopened.Len())

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	require.Equal(t, "https://shop.example/claw.html", rows[1][7])
	require.Equal(t, "14", rows[1][2])
	require.Equal(t, "8", rows[2][2])
}

func TestFromRowRoundTripsRecord(t *testing.T) {
	t.Parallel()

	rec := record("https://shop.example/claw.html", "Claw Hammer", "12.50")
	rec.RawPrice = "€ 12,50"
	rec.SKU = "CH-1"
	idx := make(map[string]int, len(Columns))
	for i, c := range Columns {
		idx[c] = i
	}
	got := fromRow(toRow(rec), idx)
	require.True(t, rec.PriceExclTax.Decimal.Equal(got.PriceExclTax.Decimal))
	got.PriceExclTax = rec.PriceExclTax
	require.Equal(t, rec, got)
}

func TestOpenRejectsForeignCSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "other.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,x\n"), 0o600))
	_, err := Open(path, nil)
	require.ErrorContains(t, err, "source_url")

	_, err = Open("", nil)
	require.Error(t, err)
}
