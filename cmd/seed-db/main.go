package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-engine/internal/domain/coupon"
	"github.com/xenking/order-engine/internal/domain/product"
	"github.com/xenking/order-engine/internal/handler"
	"github.com/xenking/order-engine/internal/storage/postgres"
)

type productJSON struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

var defaultCatalog = []productJSON{
	{ID: "1", Name: "Waffle with Berries", Price: decimal.RequireFromString("6.50"), Stock: 40},
	{ID: "2", Name: "Vanilla Bean Crème Brûlée", Price: decimal.RequireFromString("7.00"), Stock: 25},
	{ID: "3", Name: "Macaron Mix of Five", Price: decimal.RequireFromString("8.00"), Stock: 30},
	{ID: "4", Name: "Classic Tiramisu", Price: decimal.RequireFromString("5.50"), Stock: 20},
	{ID: "5", Name: "Pistachio Baklava", Price: decimal.RequireFromString("4.00"), Stock: 50},
	{ID: "6", Name: "Lemon Meringue Pie", Price: decimal.RequireFromString("5.00"), Stock: 1},
}

func main() {
	var (
		databaseURL  string
		productsFile string
		jwtSecret    string
		devUser      string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "optional products JSON file, built-in catalog when empty")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "print development tokens signed with this secret (or ORDERS_JWT_SECRET env)")
	flag.StringVar(&devUser, "dev-user", "user-1", "user id for the printed development token")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("ORDERS_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if jwtSecret != "" {
		if err := printTokens([]byte(jwtSecret), devUser); err != nil {
			slog.Error("issue tokens", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolConfig{})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	db := postgres.NewDB(pool, postgres.TxConfig{}, nil)

	catalog, err := loadCatalog(productsFile)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}
	if err := seedProducts(ctx, postgres.NewProductRepository(db), catalog); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, postgres.NewCouponRepository(db)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

func loadCatalog(path string) ([]productJSON, error) {
	if path == "" {
		return defaultCatalog, nil
	}
	slog.Info("reading products file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}
	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}
	return products, nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, catalog []productJSON) error {
	slog.Info("upserting products", slog.Int("count", len(catalog)))

	for _, p := range catalog {
		if err := repo.Upsert(ctx, product.Product{
			ID:    p.ID,
			Name:  p.Name,
			Price: p.Price,
			Stock: p.Stock,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.Int("stock", p.Stock))
	}
	return nil
}

func seedCoupons(ctx context.Context, repo *postgres.CouponRepository) error {
	slog.Info("seeding coupons")

	now := time.Now().UTC()
	expired := now.Add(-24 * time.Hour)
	one := 1
	coupons := []coupon.Coupon{
		{
			Code:              "SAVE10",
			DiscountType:      coupon.DiscountPercentage,
			DiscountValue:     decimal.NewFromInt(10),
			MaxDiscountAmount: decimal.NewNullDecimal(decimal.NewFromInt(20)),
			ValidFrom:         now,
			Active:            true,
			Description:       "10% off, capped at 20",
		},
		{
			Code:              "FIVEOFF",
			DiscountType:      coupon.DiscountFixed,
			DiscountValue:     decimal.NewFromInt(5),
			MinPurchaseAmount: decimal.NewNullDecimal(decimal.NewFromInt(15)),
			ValidFrom:         now,
			Active:            true,
			Description:       "5 off orders of 15 or more",
		},
		{
			Code:          "FIRSTONLY",
			DiscountType:  coupon.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(50),
			UsageLimit:    &one,
			ValidFrom:     now,
			Active:        true,
			Description:   "Half off, single use across all users",
		},
		{
			Code:          "LASTYEAR",
			DiscountType:  coupon.DiscountFixed,
			DiscountValue: decimal.NewFromInt(3),
			ValidFrom:     expired.Add(-30 * 24 * time.Hour),
			ValidUntil:    &expired,
			Active:        true,
			Description:   "Expired campaign",
		},
	}

	for _, c := range coupons {
		if err := repo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("description", c.Description))
	}
	return nil
}

func printTokens(secret []byte, userID string) error {
	sec := handler.NewSecurity(secret)
	user, err := sec.Issue(userID, false, 24*time.Hour)
	if err != nil {
		return err
	}
	admin, err := sec.Issue("admin", true, 24*time.Hour)
	if err != nil {
		return err
	}
	slog.Info("development tokens", slog.String("user", user), slog.String("admin", admin))
	return nil
}
