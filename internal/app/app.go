package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/product-catalog/internal/domain/product"
	"github.com/xenking/product-catalog/internal/handler"
	"github.com/xenking/product-catalog/internal/storage/postgres"
	"github.com/xenking/product-catalog/internal/storage/s3"
	"github.com/xenking/product-catalog/pkg/health"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("bucket", cfg.Storage.Bucket),
	)

	pool, err := postgres.NewPool(ctx, cfg.Database.DSN())
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return errors.Wrap(err, "ensure schema")
	}

	blobs, err := s3.New(ctx, cfg.Storage.S3())
	if err != nil {
		return errors.Wrap(err, "create blob store")
	}

	products, err := product.NewService(postgres.NewProductRepository(pool), blobs, product.Config{
		URLTTL:         cfg.Storage.URLTTL,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create product service")
	}

	healthSvc := health.New()
	healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.Add(health.Readiness, "bucket", 5*time.Second, health.PingCheck(blobs))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Add(health.Liveness, "gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	h := handler.NewHandler(handler.HandlerConfig{
		MaxRequestBody:     cfg.Upload.MaxRequestBodyMB << 20,
		MaxMultipartMemory: cfg.Upload.MaxMultipartMemoryMB << 20,
	}, products)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: newRouter(ctx, routerDeps{
			Logger:         zctx.From(ctx),
			TracerProvider: m.TracerProvider(),
			MeterProvider:  m.MeterProvider(),
			RateLimit:      cfg.RateLimit,
			Health:         healthSvc,
			Products:       h,
		}),
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
