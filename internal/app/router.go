package app

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/product-catalog/internal/handler"
	"github.com/xenking/product-catalog/pkg/health"
	"github.com/xenking/product-catalog/pkg/httpmiddleware"
)

const serviceName = "catalog-api"

// probePaths are neither rate limited nor access logged.
var probePaths = []string{"/health", "/livez", "/readyz"}

type routerDeps struct {
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	RateLimit      RateLimitConfig
	Health         *health.Health
	Products       *handler.Handler
}

// newRouter builds the full HTTP handler. The server span is outermost so
// it covers rate limited requests; route-aware middleware and Recovery run
// inside the router, where the matched pattern is known and a recovered
// panic still reaches the access log and the span as a 500.
func newRouter(ctx context.Context, deps routerDeps) http.Handler {
	router := chi.NewRouter()
	router.Use(
		httpmiddleware.LogRequests(handler.RoutePattern, probePaths...),
		httpmiddleware.Labeler(handler.RoutePattern),
		httpmiddleware.Recovery(),
	)
	router.Get("/health", health.HealthEndpoint)
	router.Get("/livez", deps.Health.LiveEndpoint)
	router.Get("/readyz", deps.Health.ReadyEndpoint)
	deps.Products.Register(router)

	return httpmiddleware.Wrap(router,
		httpmiddleware.Instrument(serviceName, deps.TracerProvider, deps.MeterProvider),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(deps.Logger),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			RPS:        deps.RateLimit.RPS,
			Burst:      deps.RateLimit.Burst,
			TrustProxy: deps.RateLimit.TrustProxy,
			Skip:       probePaths,
		}),
	)
}
