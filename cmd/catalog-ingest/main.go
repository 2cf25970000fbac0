// Command catalog-ingest loads gzipped supplier price feeds into the catalog.
//
// Feeds are CSV files (id,barcode,name,price,currency,tax_rate) read in name
// order; when a barcode is listed by more than one feed, the last feed wins.
// Cross-feed duplicates are found in two passes: pass 1 builds one bloom
// filter of barcodes per feed, pass 2 re-streams each feed and holds back only
// the rows whose barcode may appear in another feed.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/oolio-pos/internal/domain/currency"
	"github.com/xenking/oolio-pos/internal/domain/product"
	"github.com/xenking/oolio-pos/internal/storage/postgres"
)

const (
	bloomCapacity = 5_000_000
	bloomFPR      = 0.001
	maxFeeds      = 64
	batchSize     = 1000
	progressEvery = 100_000
	numColumns    = 6
)

// catalogWriter stores a batch of products.
type catalogWriter interface {
	Upsert(ctx context.Context, products []product.Product) error
}

// held is a row withheld during pass 2 because its barcode may be listed by
// another feed.
type held struct {
	mask uint64
	feed int
	p    product.Product
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data/feeds", "directory containing *.csv.gz supplier feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "list feeds")
	}
	if len(files) == 0 {
		return errors.Errorf("no feeds in %s", dataDir)
	}
	if len(files) > maxFeeds {
		return errors.Errorf("too many feeds: %d > %d", len(files), maxFeeds)
	}
	slices.Sort(files)

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	n, err := ingest(ctx, files, postgres.NewCatalogRepository(pool))
	if err != nil {
		return err
	}
	slog.Info("products written", slog.Int("count", n))
	return nil
}

// ingest runs both passes and returns the number of products written.
func ingest(ctx context.Context, files []string, w catalogWriter) (int, error) {
	slog.Info("pass 1: building bloom filters", slog.Int("feeds", len(files)))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return 0, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: loading feeds")

	out := make(chan product.Product, batchSize)
	var written int
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := writeBatches(gCtx, w, out)
		written = n
		return err
	})

	var (
		mu    sync.Mutex
		holds = make(map[string]*held)
	)
	var load errgroup.Group
	for i, f := range files {
		load.Go(func() error {
			return loadFeed(gCtx, i, f, filters, out, func(p product.Product) {
				mu.Lock()
				defer mu.Unlock()
				h, ok := holds[p.Barcode]
				if !ok {
					h = &held{feed: -1}
					holds[p.Barcode] = h
				}
				h.mask |= 1 << uint(i)
				if i > h.feed {
					h.feed, h.p = i, p
				}
			})
		})
	}
	g.Go(func() error {
		defer close(out)
		if err := load.Wait(); err != nil {
			return err
		}

		var dupes int
		for code, h := range holds {
			if bits.OnesCount64(h.mask) >= 2 {
				dupes++
				slog.Debug("barcode in several feeds",
					slog.String("barcode", code),
					slog.String("winner", files[h.feed]),
				)
			}
			select {
			case out <- h.p:
			case <-gCtx.Done():
				return gCtx.Err()
			}
		}
		slog.Info("pass 2 complete", slog.Int("held", len(holds)), slog.Int("duplicates", dupes))
		return nil
	})

	if err := g.Wait(); err != nil {
		return written, err
	}
	return written, nil
}

// buildBloomFilters creates one bloom filter of barcodes per feed, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count uint64
			if err := streamFeed(ctx, f, func(p product.Product) {
				if p.Barcode == "" {
					return
				}
				filter.AddString(p.Barcode)
				count++
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", f)
			}

			slog.Info("pass 1 complete", slog.String("feed", f), slog.Uint64("barcodes", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// loadFeed sends rows with a barcode unique to this feed to out and passes
// the others to hold.
func loadFeed(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	out chan<- product.Product,
	hold func(product.Product),
) error {
	var count uint64
	var sendErr error
	err := streamFeed(ctx, path, func(p product.Product) {
		if sendErr != nil {
			return
		}
		count++
		if count%progressEvery == 0 {
			slog.Info("pass 2 progress", slog.String("feed", path), slog.Uint64("rows", count))
		}

		if p.Barcode != "" {
			for j, f := range filters {
				if j != idx && f.TestString(p.Barcode) {
					hold(p)
					return
				}
			}
		}
		select {
		case out <- p:
		case <-ctx.Done():
			sendErr = ctx.Err()
		}
	})
	if err != nil {
		return errors.Wrapf(err, "load %s", path)
	}
	return sendErr
}

// writeBatches upserts products from in, batchSize at a time.
func writeBatches(ctx context.Context, w catalogWriter, in <-chan product.Product) (int, error) {
	batch := make([]product.Product, 0, batchSize)
	var written int
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.Upsert(ctx, batch); err != nil {
			return err
		}
		written += len(batch)
		slog.Info("write progress", slog.Int("written", written))
		batch = batch[:0]
		return nil
	}

	for p := range in {
		batch = append(batch, p)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	return written, flush()
}

// streamFeed opens a gzip-compressed CSV feed and calls fn for each valid
// row. Malformed rows are logged and skipped.
func streamFeed(ctx context.Context, path string, fn func(p product.Product)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = numColumns
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				slog.Warn("skipping malformed row", slog.String("feed", path), slog.Int("line", line), slog.String("error", err.Error()))
				continue
			}
			return errors.Wrapf(err, "read %s", path)
		}
		if line == 1 && strings.EqualFold(rec[0], "id") {
			continue
		}
		p, err := parseRecord(rec)
		if err != nil {
			slog.Warn("skipping invalid row", slog.String("feed", path), slog.Int("line", line), slog.String("error", err.Error()))
			continue
		}
		fn(p)
	}
}

// parseRecord converts id,barcode,name,price,currency,tax_rate into a product.
func parseRecord(rec []string) (product.Product, error) {
	if len(rec) != numColumns {
		return product.Product{}, errors.Errorf("want %d columns, got %d", numColumns, len(rec))
	}
	id := strings.TrimSpace(rec[0])
	if id == "" {
		return product.Product{}, errors.New("empty id")
	}
	price, err := decimal.NewFromString(strings.TrimSpace(rec[3]))
	if err != nil {
		return product.Product{}, errors.Wrap(err, "price")
	}
	if price.IsNegative() {
		return product.Product{}, errors.New("negative price")
	}
	cur, err := currency.Parse(rec[4])
	if err != nil {
		return product.Product{}, err
	}
	tax := decimal.Zero
	if s := strings.TrimSpace(rec[5]); s != "" {
		if tax, err = decimal.NewFromString(s); err != nil {
			return product.Product{}, errors.Wrap(err, "tax rate")
		}
		if tax.IsNegative() {
			return product.Product{}, errors.New("negative tax rate")
		}
	}
	return product.Product{
		ID:       id,
		Barcode:  strings.TrimSpace(rec[1]),
		Name:     strings.TrimSpace(rec[2]),
		Price:    price,
		Currency: cur,
		TaxRate:  tax,
		Active:   true,
	}, nil
}
