// Command discount-import loads single-use promo codes from gzipped batch
// files. A code that shows up in more than one batch was issued twice and is
// skipped, so every imported code can be redeemed exactly once.
package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/joho/godotenv"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/food-checkout/internal/domain/discount"
	"github.com/xenking/food-checkout/internal/domain/money"
	"github.com/xenking/food-checkout/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	minCodeLen    = 6
	maxCodeLen    = 16
	writeBatch    = 1000
)

// upserter stores discount codes. *postgres.DiscountRepository implements it.
type upserter interface {
	Upsert(ctx context.Context, codes ...discount.Code) error
}

// rule is applied to every imported code.
type rule struct {
	Type        discount.Type
	Value       decimal.Decimal
	Description string
	MinOrder    money.Amount
	ValidFrom   time.Time
	ValidUntil  *time.Time
}

func (r rule) code(c string) discount.Code {
	return discount.Code{
		Code:              c,
		Type:              r.Type,
		Value:             r.Value,
		Description:       r.Description,
		Active:            true,
		ValidFrom:         r.ValidFrom,
		ValidUntil:        r.ValidUntil,
		MinimumOrderValue: r.MinOrder,
		TotalUsageLimit:   1,
	}
}

func main() {
	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		lg.Fatal("Load .env", zap.Error(err))
	}

	var (
		pattern     string
		databaseURL string
		typ         string
		value       string
		minOrder    string
		description string
		validDays   int
		capacity    uint
	)

	flag.StringVar(&pattern, "files", "data/promo*.gz", "glob of gzipped batch files, one code per line")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&typ, "type", string(discount.Percentage), "discount type: percentage or fixed")
	flag.StringVar(&value, "value", "10", "percent off, or amount off for fixed codes")
	flag.StringVar(&minOrder, "min-order", "0", "minimum order value")
	flag.StringVar(&description, "description", "Single-use promo code", "code description")
	flag.IntVar(&validDays, "valid-days", 90, "days the codes stay valid, 0 for no expiry")
	flag.UintVar(&capacity, "capacity", 10_000_000, "expected codes per batch, sizes the bloom filters")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	r, err := parseRule(typ, value, minOrder, description, validDays, time.Now().UTC())
	if err != nil {
		lg.Fatal("Invalid rule", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, pattern, databaseURL, capacity, r); err != nil {
		lg.Error("Discount import failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}

	lg.Info("Discount import completed successfully")
}

func parseRule(typ, value, minOrder, description string, validDays int, now time.Time) (rule, error) {
	r := rule{
		Type:        discount.Type(typ),
		Description: description,
		ValidFrom:   now,
	}
	if r.Type != discount.Percentage && r.Type != discount.Fixed {
		return r, errors.Errorf("unknown discount type %q", typ)
	}
	v, err := decimal.NewFromString(value)
	if err != nil || !v.IsPositive() {
		return r, errors.Errorf("value %q must be a positive number", value)
	}
	if r.Type == discount.Percentage && v.GreaterThan(decimal.NewFromInt(100)) {
		return r, errors.New("percentage must not exceed 100")
	}
	r.Value = v
	if r.MinOrder, err = money.Parse(minOrder); err != nil {
		return r, errors.Wrap(err, "parse min order")
	}
	if validDays > 0 {
		until := now.AddDate(0, 0, validDays)
		r.ValidUntil = &until
	}
	return r, nil
}

func run(ctx context.Context, pattern, databaseURL string, capacity uint, r rule) error {
	lg := zctx.From(ctx)

	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrap(err, "glob batch files")
	}
	if len(files) == 0 {
		return errors.Errorf("no batch files match %q", pattern)
	}
	slices.Sort(files)

	codes, err := uniqueCodes(ctx, files, capacity)
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		lg.Info("No codes to import")
		return nil
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeCodes(ctx, postgres.NewDiscountRepository(pool), codes, r)
}

// uniqueCodes returns the codes that appear in exactly one batch, sorted.
func uniqueCodes(ctx context.Context, files []string, capacity uint) ([]string, error) {
	lg := zctx.From(ctx)

	// Pass 1: Build bloom filters concurrently.
	lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters, err := buildBloomFilters(ctx, files, capacity)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: Keep codes no other batch may contain.
	lg.Info("Pass 2: filtering codes shared between batches")
	sets := make([]map[string]struct{}, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			set, err := keepUnique(gctx, i, f, filters)
			sets[i] = set
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "filter codes")
	}

	var out []string
	for _, set := range sets {
		for c := range set {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	lg.Info("Unique codes found", zap.Int("count", len(out)))
	return out, nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			var count uint64
			err := streamGzFile(ctx, f, func(code string) {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					zctx.From(ctx).Info("Pass 1 progress", zap.String("file", f), zap.Uint64("codes", count))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", f)
			}
			zctx.From(ctx).Info("Pass 1 complete", zap.String("file", f), zap.Uint64("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// keepUnique streams file idx and keeps the codes absent from every other
// batch's filter. Bloom false positives only ever drop a code.
func keepUnique(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	var shared int
	err := streamGzFile(ctx, path, func(code string) {
		for j, f := range filters {
			if j != idx && f.TestString(code) {
				shared++
				return
			}
		}
		set[code] = struct{}{}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s", path)
	}
	zctx.From(ctx).Info("Pass 2 complete",
		zap.String("file", path),
		zap.Int("unique", len(set)),
		zap.Int("shared", shared),
	)
	return set, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each normalized
// code of acceptable length.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
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
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := discount.NormalizeCode(scanner.Text())
		if len(code) < minCodeLen || len(code) > maxCodeLen {
			continue
		}
		fn(code)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// writeCodes upserts codes in batches.
func writeCodes(ctx context.Context, repo upserter, codes []string, r rule) error {
	lg := zctx.From(ctx)
	lg.Info("Writing codes to database", zap.Int("count", len(codes)))

	var written int
	for chunk := range slices.Chunk(codes, writeBatch) {
		batch := make([]discount.Code, len(chunk))
		for i, c := range chunk {
			batch[i] = r.code(c)
		}
		if err := repo.Upsert(ctx, batch...); err != nil {
			return errors.Wrapf(err, "upsert batch starting at %s", chunk[0])
		}
		written += len(batch)
		lg.Info("Write progress", zap.Int("written", written), zap.Int("total", len(codes)))
	}
	return nil
}
