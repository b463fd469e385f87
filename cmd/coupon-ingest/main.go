// Command coupon-ingest imports the codes of a coupon campaign from
// gzip-compressed files, one code per line, skipping codes listed in an
// optional revocation list.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-engine/internal/domain/coupon"
	"github.com/xenking/order-engine/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		files        string
		revokedFile  string
		discountType string
		value        string
		minPurchase  string
		maxDiscount  string
		usageLimit   int
		validFor     time.Duration
		description  string
		batchSize    int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&files, "files", "", "comma-separated campaign .gz files")
	flag.StringVar(&revokedFile, "revoked", "", "optional .gz file of revoked codes to skip")
	flag.StringVar(&discountType, "type", "PERCENTAGE", "discount type: PERCENTAGE or FIXED")
	flag.StringVar(&value, "value", "10", "discount value (percent or amount)")
	flag.StringVar(&minPurchase, "min-purchase", "", "minimum subtotal, empty for none")
	flag.StringVar(&maxDiscount, "max-discount", "", "discount cap, empty for none")
	flag.IntVar(&usageLimit, "usage-limit", 1, "redemptions per code, 0 for unlimited")
	flag.DurationVar(&validFor, "valid-for", 30*24*time.Hour, "campaign duration from now, 0 for open-ended")
	flag.StringVar(&description, "description", "", "coupon description")
	flag.IntVar(&batchSize, "batch-size", 1000, "coupons per database batch")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if files == "" {
		slog.Error("at least one campaign file is required: set --files")
		os.Exit(1)
	}

	tmpl, err := campaignTemplate(discountType, value, minPurchase, maxDiscount, usageLimit, validFor, description)
	if err != nil {
		slog.Error("invalid campaign rule", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, strings.Split(files, ","), revokedFile, tmpl, batchSize); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, revokedFile string, tmpl coupon.Coupon, batchSize int) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolConfig{})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	repo := postgres.NewCouponRepository(postgres.NewDB(pool, postgres.TxConfig{}, nil))

	imp := importer{files: files, revokedFile: revokedFile, template: tmpl, batchSize: batchSize, sink: repo}
	stats, err := imp.Run(ctx)
	if err != nil {
		return err
	}
	slog.Info("import finished",
		slog.Int("imported", stats.Imported),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("revoked", stats.Revoked),
		slog.Int("malformed", stats.Malformed),
	)
	return nil
}

// campaignTemplate builds the rule shared by every imported code.
func campaignTemplate(
	discountType, value, minPurchase, maxDiscount string,
	usageLimit int,
	validFor time.Duration,
	description string,
) (coupon.Coupon, error) {
	dt, err := coupon.ParseDiscountType(discountType)
	if err != nil {
		return coupon.Coupon{}, err
	}
	v, err := decimal.NewFromString(value)
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse value")
	}
	if !v.IsPositive() {
		return coupon.Coupon{}, errors.New("value must be positive")
	}
	if dt == coupon.DiscountPercentage && v.GreaterThan(decimal.NewFromInt(100)) {
		return coupon.Coupon{}, errors.New("percentage must not exceed 100")
	}

	now := time.Now().UTC()
	c := coupon.Coupon{
		DiscountType:  dt,
		DiscountValue: v,
		ValidFrom:     now,
		Active:        true,
		Description:   description,
	}
	if c.MinPurchaseAmount, err = optionalDecimal(minPurchase); err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse min-purchase")
	}
	if c.MaxDiscountAmount, err = optionalDecimal(maxDiscount); err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse max-discount")
	}
	if usageLimit > 0 {
		c.UsageLimit = &usageLimit
	}
	if validFor > 0 {
		until := now.Add(validFor)
		c.ValidUntil = &until
	}
	return c, nil
}

func optionalDecimal(s string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
