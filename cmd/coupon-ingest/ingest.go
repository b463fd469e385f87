package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-engine/internal/domain/coupon"
)

const (
	minCodeLen    = 4
	maxCodeLen    = 32
	revokedFPR    = 0.0001
	progressEvery = 100_000
)

// couponSink is implemented by *postgres.CouponRepository.
type couponSink interface {
	UpsertMany(ctx context.Context, coupons []coupon.Coupon, batchSize int) error
}

type importStats struct {
	Imported   int
	Duplicates int
	Revoked    int
	Malformed  int
}

// importer streams campaign files concurrently into a single writer that
// deduplicates codes, drops revoked ones and upserts the rest in batches.
type importer struct {
	files       []string
	revokedFile string
	template    coupon.Coupon
	batchSize   int
	sink        couponSink
}

func (imp *importer) Run(ctx context.Context) (importStats, error) {
	if imp.batchSize <= 0 {
		imp.batchSize = 1000
	}
	revoked, err := loadRevoked(ctx, imp.revokedFile)
	if err != nil {
		return importStats{}, errors.Wrap(err, "load revoked codes")
	}

	var (
		stats     importStats
		lines     = make(chan string, 4096)
		producers sync.WaitGroup
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, path := range imp.files {
		producers.Add(1)
		g.Go(func() error {
			defer producers.Done()
			return streamGz(gctx, path, func(line string) error {
				select {
				case lines <- line:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		})
	}
	g.Go(func() error {
		producers.Wait()
		close(lines)
		return nil
	})
	g.Go(func() error {
		var err error
		stats, err = imp.write(gctx, lines, revoked)
		return err
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (imp *importer) write(ctx context.Context, lines <-chan string, revoked *bloom.BloomFilter) (importStats, error) {
	var (
		stats importStats
		seen  = make(map[string]struct{})
		batch = make([]coupon.Coupon, 0, imp.batchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := imp.sink.UpsertMany(ctx, batch, imp.batchSize); err != nil {
			return errors.Wrap(err, "upsert coupons")
		}
		stats.Imported += len(batch)
		batch = batch[:0]
		return nil
	}

	var read int
	for line := range lines {
		read++
		if read%progressEvery == 0 {
			slog.Info("ingest progress", slog.Int("read", read), slog.Int("imported", stats.Imported))
		}

		code := coupon.NormalizeCode(line)
		switch {
		case !validCode(code):
			stats.Malformed++
			continue
		case revoked != nil && revoked.TestString(code):
			stats.Revoked++
			continue
		}
		if _, dup := seen[code]; dup {
			stats.Duplicates++
			continue
		}
		seen[code] = struct{}{}

		c := imp.template
		c.Code = code
		batch = append(batch, c)
		if len(batch) == imp.batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	return stats, flush()
}

// loadRevoked builds a bloom filter sized for the revocation list. A false
// positive skips a valid code, which the FPR keeps rare.
func loadRevoked(ctx context.Context, path string) (*bloom.BloomFilter, error) {
	if path == "" {
		return nil, nil
	}
	var n uint
	if err := streamGz(ctx, path, func(string) error { n++; return nil }); err != nil {
		return nil, err
	}
	filter := bloom.NewWithEstimates(max(n, 1), revokedFPR)
	if err := streamGz(ctx, path, func(line string) error {
		if code := coupon.NormalizeCode(line); code != "" {
			filter.AddString(code)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	slog.Info("revocation list loaded", slog.Uint64("codes", uint64(n)))
	return filter, nil
}

// streamGz calls fn for every line of a gzip-compressed file.
func streamGz(ctx context.Context, path string, fn func(line string) error) error {
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
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

func validCode(code string) bool {
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return false
	}
	for i := range len(code) {
		switch ch := code[i]; {
		case ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
		default:
			return false
		}
	}
	return true
}
