// Package app wires the order engine together.
package app

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/order-engine/internal/domain/cancellation"
	"github.com/xenking/order-engine/internal/domain/cart"
	"github.com/xenking/order-engine/internal/domain/checkout"
	"github.com/xenking/order-engine/internal/domain/coupon"
	"github.com/xenking/order-engine/internal/domain/order"
	"github.com/xenking/order-engine/internal/domain/payment"
	"github.com/xenking/order-engine/internal/domain/product"
	"github.com/xenking/order-engine/internal/handler"
	"github.com/xenking/order-engine/internal/storage/postgres"
	"github.com/xenking/order-engine/internal/storage/spool"
	"github.com/xenking/order-engine/internal/telemetry"
	"github.com/xenking/order-engine/pkg/health"
	"github.com/xenking/order-engine/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))
	ctx = zctx.Base(ctx, lg)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxConns:        cfg.DB.MaxConns,
		MaxConnIdleTime: cfg.DB.MaxConnIdleTime,
	})
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	db := postgres.NewDB(pool, postgres.TxConfig{
		LockTimeout:      cfg.Tx.LockTimeout,
		StatementTimeout: cfg.Tx.StatementTimeout,
	}, m.TracerProvider())

	// Notification spool, drained in the background.
	notifications, err := spool.Open(cfg.Notify.SpoolPath)
	if err != nil {
		return errors.Wrap(err, "open notification spool")
	}
	defer func() { _ = notifications.Close() }()

	relayCtx, stopRelay := context.WithCancel(ctx)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		notifications.Relay(relayCtx, cfg.Notify.RelayInterval, spool.LogDeliver)
	}()
	defer func() {
		stopRelay()
		<-relayDone
	}()

	metrics, err := telemetry.New(m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create metrics")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("postgres_pool", time.Second, health.PoolSaturationCheck(func() (int32, int32) {
		st := pool.Stat()
		return st.AcquiredConns(), st.MaxConns()
	}, cfg.DB.SaturationRatio))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	products := postgres.NewProductRepository(db)
	carts := postgres.NewCartRepository(db)
	coupons := postgres.NewCouponRepository(db)
	orders := postgres.NewOrderRepository(db)
	requests := postgres.NewCancellationRepository(db)

	// Domain services.
	stock := product.NewStock(products)
	ledger := coupon.NewLedger(coupons)
	orderSvc := order.NewService(orders, stock, db, notifications)
	h := handler.New(handler.Services{
		Checkout: checkout.NewService(checkout.Deps{
			Tx:        db,
			Carts:     carts,
			Stock:     stock,
			Coupons:   ledger,
			Orders:    orders,
			Payments:  payment.NewFormatAuthorizer(),
			Publisher: notifications,
		}),
		Orders:        orderSvc,
		Cancellations: cancellation.NewWorkflow(db, orders, requests, orderSvc, notifications),
		Coupons:       ledger,
		Carts:         cart.NewService(carts, products, db),
		Products:      products,
	}, metrics)

	// Router: health endpoints + API routes on one engine.
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
		httpmiddleware.Route(),
		httpmiddleware.LogRequests(),
		cors.New(corsConfig(cfg.CORS)),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
	)
	healthSvc.Register(engine)
	h.Register(engine, handler.NewSecurity([]byte(cfg.JWTSecret)))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(engine, "orders-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

func corsConfig(c CORSConfig) cors.Config {
	cc := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", handler.HeaderSessionID, httpmiddleware.HeaderRequestID},
		ExposeHeaders:    []string{httpmiddleware.HeaderRequestID, "Retry-After"},
		AllowCredentials: c.AllowCredentials,
		MaxAge:           24 * time.Hour,
	}
	if len(c.Origins) == 0 || slices.Contains(c.Origins, "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = c.Origins
	}
	return cc
}
