// Package handler maps the catalog HTTP routes onto the product service.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/product-catalog/internal/domain/product"
	"github.com/xenking/product-catalog/pkg/httpmiddleware"
)

const (
	defaultMaxRequestBody     = 10 << 20
	defaultMaxMultipartMemory = 8 << 20
)

// ProductService is the product workflow used by the handler.
type ProductService interface {
	List(ctx context.Context) ([]product.View, error)
	Get(ctx context.Context, id int64) (*product.View, error)
	Create(ctx context.Context, req product.CreateRequest) (*product.View, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// MaxRequestBody limits the size of a create request body in bytes.
	MaxRequestBody int64
	// MaxMultipartMemory is the part of a multipart body kept in memory;
	// the rest spills to temporary files.
	MaxMultipartMemory int64
}

// Handler serves the /api/products routes.
type Handler struct {
	products           ProductService
	maxRequestBody     int64
	maxMultipartMemory int64
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg HandlerConfig, products ProductService) *Handler {
	if cfg.MaxRequestBody <= 0 {
		cfg.MaxRequestBody = defaultMaxRequestBody
	}
	if cfg.MaxMultipartMemory <= 0 {
		cfg.MaxMultipartMemory = defaultMaxMultipartMemory
	}
	return &Handler{
		products:           products,
		maxRequestBody:     cfg.MaxRequestBody,
		maxMultipartMemory: cfg.MaxMultipartMemory,
	}
}

// Register mounts the product routes and JSON fallbacks on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/{id}", h.GetProduct)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpmiddleware.WriteError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpmiddleware.WriteError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// RoutePattern returns the chi route pattern matched by r, or an empty
// string outside a chi router.
func RoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}
