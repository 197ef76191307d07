package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/tshirt-store/internal/domain/product"
	"github.com/xenking/tshirt-store/internal/storage/postgres"
)

const (
	bloomCapacity    = 2_000_000
	bloomFPR         = 0.001
	defaultBatchSize = 500
	progressEvery    = 100_000
	maxLineBytes     = 1 << 20
	filePattern      = "catalog*.ndjson.gz"
)

var hundred = decimal.NewFromInt(100)

// catalogRecord is one line of a catalogue file.
type catalogRecord struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Discount    decimal.Decimal `json:"discount"`
	Category    string          `json:"category"`
	Variants    json.RawMessage `json:"variants"`
	Featured    bool            `json:"featured"`
	Images      []string        `json:"images"`
}

// importStats counts what happened to the records of one run.
type importStats struct {
	read       atomic.Int64
	invalid    atomic.Int64
	duplicates atomic.Int64
	written    atomic.Int64
}

type productUpserter interface {
	Upsert(ctx context.Context, products []product.Product) error
}

func main() {
	var (
		dataDir     string
		databaseURL string
		batchSize   int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalogN.ndjson.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", defaultBatchSize, "products per upsert batch")
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

	if err := run(ctx, dataDir, databaseURL, batchSize); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, batchSize int) error {
	files, err := filepath.Glob(filepath.Join(dataDir, filePattern))
	if err != nil {
		return errors.Wrap(err, "list catalog files")
	}
	if len(files) == 0 {
		return errors.Errorf("no %s files in %s", filePattern, dataDir)
	}
	sort.Strings(files)

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	stats, err := importCatalog(ctx, files, postgres.NewProductRepository(pool), batchSize)
	if err != nil {
		return err
	}

	slog.Info("import summary",
		slog.Int64("read", stats.read.Load()),
		slog.Int64("invalid", stats.invalid.Load()),
		slog.Int64("duplicates", stats.duplicates.Load()),
		slog.Int64("written", stats.written.Load()),
	)
	return nil
}

// importCatalog streams every file concurrently, drops products already
// seen in any file and upserts the rest in batches.
func importCatalog(ctx context.Context, files []string, repo productUpserter, batchSize int) (*importStats, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	stats := &importStats{}
	seen := newDeduper(bloomCapacity, bloomFPR)
	records := make(chan product.Product, batchSize)
	now := time.Now().UTC()

	g, ctx := errgroup.WithContext(ctx)
	readers, rctx := errgroup.WithContext(ctx)
	for i, f := range files {
		readers.Go(readCatalogFile(rctx, i, f, now, seen, records, stats))
	}
	g.Go(func() error {
		defer close(records)
		return readers.Wait()
	})
	g.Go(func() error {
		return writeBatches(ctx, repo, records, batchSize, stats)
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

func readCatalogFile(
	ctx context.Context,
	idx int,
	path string,
	now time.Time,
	seen *deduper,
	out chan<- product.Product,
	stats *importStats,
) func() error {
	return func() error {
		var lineNo, accepted int64

		err := streamGzFile(ctx, path, func(line []byte) error {
			lineNo++
			if len(bytes.TrimSpace(line)) == 0 {
				return nil
			}
			if n := stats.read.Add(1); n%progressEvery == 0 {
				slog.Info("read progress", slog.Int64("records", n))
			}

			p, err := parseRecord(line, now)
			if err != nil {
				stats.invalid.Add(1)
				slog.Warn("skipping invalid record",
					slog.Int("file", idx+1),
					slog.Int64("line", lineNo),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if !seen.Add(p.ID) {
				stats.duplicates.Add(1)
				return nil
			}

			accepted++
			select {
			case out <- p:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			return errors.Wrapf(err, "import file %d", idx+1)
		}

		slog.Info("file complete",
			slog.Int("file", idx+1),
			slog.String("path", path),
			slog.Int64("lines", lineNo),
			slog.Int64("accepted", accepted),
		)
		return nil
	}
}

// parseRecord decodes and validates one catalogue line. The product id is
// derived from name and category so reruns update instead of duplicating.
func parseRecord(line []byte, now time.Time) (product.Product, error) {
	var rec catalogRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return product.Product{}, errors.Wrap(err, "decode")
	}

	name := strings.TrimSpace(rec.Name)
	switch {
	case name == "":
		return product.Product{}, errors.New("name is required")
	case rec.Price.IsNegative():
		return product.Product{}, errors.New("price must not be negative")
	case rec.Discount.IsNegative() || rec.Discount.GreaterThan(hundred):
		return product.Product{}, errors.New("discount must be between 0 and 100")
	}

	variants := []product.Variant{}
	if raw := bytes.TrimSpace(rec.Variants); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		v, err := product.ParseVariants(raw)
		if err != nil {
			return product.Product{}, errors.Wrap(err, "variants")
		}
		variants = v
	}
	images := rec.Images
	if images == nil {
		images = []string{}
	}

	category := strings.TrimSpace(rec.Category)
	return product.Product{
		ID:          product.CatalogID(name, category),
		Name:        name,
		Description: rec.Description,
		Price:       rec.Price,
		Discount:    rec.Discount,
		Category:    category,
		Variants:    variants,
		Featured:    rec.Featured,
		Images:      images,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// deduper remembers product keys across all files. A key the bloom filter
// has never seen is new; filter positives are confirmed against the exact
// set.
type deduper struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	exact  map[string]struct{}
}

func newDeduper(capacity uint, fpr float64) *deduper {
	return &deduper{
		filter: bloom.NewWithEstimates(capacity, fpr),
		exact:  make(map[string]struct{}),
	}
}

// Add records key and reports whether it was new.
func (d *deduper) Add(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.filter.TestString(key) {
		if _, ok := d.exact[key]; ok {
			return false
		}
	}
	d.filter.AddString(key)
	d.exact[key] = struct{}{}
	return true
}

func writeBatches(ctx context.Context, repo productUpserter, in <-chan product.Product, batchSize int, stats *importStats) error {
	batch := make([]product.Product, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := repo.Upsert(ctx, batch); err != nil {
			return errors.Wrapf(err, "upsert batch of %d", len(batch))
		}
		written := stats.written.Add(int64(len(batch)))
		slog.Info("write progress", slog.Int64("written", written))
		batch = batch[:0]
		return nil
	}

	for p := range in {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch = append(batch, p)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return flush()
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
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

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
