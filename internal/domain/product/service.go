package product

import (
	"context"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultURLTTL is the lifetime of signed image URLs when none is configured.
	DefaultURLTTL = time.Hour

	// signConcurrency bounds the number of URLs minted in parallel for a list.
	signConcurrency = 8
)

// maxPrice is the exclusive upper bound of a NUMERIC(10,2) column.
var maxPrice = decimal.New(1, 8)

// CreateRequest holds the input for creating a product. Price is kept in its
// textual form and parsed during validation. Only plain decimal notation is
// accepted: exponents would let decimal rescale to arbitrary precision.
type CreateRequest struct {
	Name        string `validate:"required,max=255"`
	Description string `validate:"max=4096"`
	Price       string `validate:"required,max=32,numeric"`
	Image       *Image
}

// Config holds non-dependency settings for the Service.
type Config struct {
	// URLTTL is the lifetime of signed image URLs. Zero means DefaultURLTTL.
	URLTTL         time.Duration
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service sequences blob store and repository calls and shapes the views
// returned to clients.
type Service struct {
	repo     Repository
	blobs    BlobStore
	urlTTL   time.Duration
	validate *validator.Validate
	tracer   trace.Tracer

	created      metric.Int64Counter
	signFailures metric.Int64Counter
}

// NewService creates a product Service.
func NewService(repo Repository, blobs BlobStore, cfg Config) (*Service, error) {
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = DefaultURLTTL
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}

	meter := cfg.MeterProvider.Meter("catalog/product")
	created, err := meter.Int64Counter("catalog.products.created",
		metric.WithDescription("Number of products created"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "created counter")
	}
	signFailures, err := meter.Int64Counter("catalog.images.sign_failures",
		metric.WithDescription("Number of image URLs that could not be signed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "sign failures counter")
	}

	return &Service{
		repo:         repo,
		blobs:        blobs,
		urlTTL:       cfg.URLTTL,
		validate:     validator.New(),
		tracer:       cfg.TracerProvider.Tracer("catalog/product"),
		created:      created,
		signFailures: signFailures,
	}, nil
}

// List returns every product with a freshly signed image URL. A signing
// failure only clears the URL of the affected product.
func (s *Service) List(ctx context.Context) ([]View, error) {
	ctx, span := s.tracer.Start(ctx, "product.List")
	defer span.End()

	products, err := s.repo.List(ctx)
	if err != nil {
		fail(span, err)
		return nil, errors.Wrap(err, "list products")
	}

	views := make([]View, len(products))
	var g errgroup.Group
	g.SetLimit(signConcurrency)
	for i, p := range products {
		g.Go(func() error {
			views[i] = s.view(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(attribute.Int("catalog.products.count", len(views)))
	return views, nil
}

// Get returns a single product by ID. It returns an error wrapping
// ErrNotFound if no such product exists.
func (s *Service) Get(ctx context.Context, id int64) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "product.Get",
		trace.WithAttributes(attribute.Int64("catalog.product.id", id)),
	)
	defer span.End()

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			fail(span, err)
		}
		return nil, errors.Wrap(err, "get product")
	}

	v := s.view(ctx, *p)
	return &v, nil
}

// Create validates the request, uploads the image if present, and inserts
// the row. The upload happens before the insert so that a row never
// references a blob whose upload failed. A blob whose row insert failed is
// left in the store.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "product.Create")
	defer span.End()

	in, err := s.validateCreate(req)
	if err != nil {
		return nil, err
	}

	var imageKey *string
	if req.Image != nil {
		key, err := s.blobs.Store(ctx, req.Image.Data, req.Image.Filename, in.contentType)
		if err != nil {
			fail(span, err)
			return nil, errors.Wrap(err, "store image")
		}
		imageKey = &key
	}

	id, err := s.repo.Insert(ctx, in.name, req.Description, in.price, imageKey)
	if err != nil {
		fail(span, err)
		if imageKey != nil {
			zctx.From(ctx).Warn("Image stored without product row",
				zap.String("image_key", *imageKey),
				zap.Error(err),
			)
		}
		return nil, errors.Wrap(err, "insert product")
	}

	s.created.Add(ctx, 1, metric.WithAttributes(attribute.Bool("with_image", imageKey != nil)))
	span.SetAttributes(attribute.Int64("catalog.product.id", id))

	v := s.view(ctx, Product{
		ID:          id,
		Name:        in.name,
		Description: req.Description,
		Price:       in.price,
		ImageKey:    imageKey,
	})
	return &v, nil
}

// view attaches a signed URL to p when it has an image.
func (s *Service) view(ctx context.Context, p Product) View {
	v := View{Product: p}
	if p.ImageKey == nil {
		return v
	}

	u, err := s.blobs.SignedReadURL(ctx, *p.ImageKey, s.urlTTL)
	if err != nil || u == "" {
		s.signFailures.Add(ctx, 1)
		zctx.From(ctx).Warn("Sign image URL",
			zap.Int64("product_id", p.ID),
			zap.String("image_key", *p.ImageKey),
			zap.Error(err),
		)
		return v
	}
	v.ImageURL = &u
	return v
}

type createInput struct {
	name        string
	price       decimal.Decimal
	contentType string
}

// validateCreate checks req and returns its normalized values. All failures
// are *InvalidInputError.
func (s *Service) validateCreate(req CreateRequest) (createInput, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Price = strings.TrimSpace(req.Price)

	if err := s.validate.Struct(req); err != nil {
		return createInput{}, toInvalidInput(err)
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return createInput{}, &InvalidInputError{Field: "price", Reason: "must be a decimal number"}
	}
	if !price.Equal(price.Round(2)) {
		return createInput{}, &InvalidInputError{Field: "price", Reason: "must have at most 2 decimal places"}
	}
	if price.Abs().GreaterThanOrEqual(maxPrice) {
		return createInput{}, &InvalidInputError{Field: "price", Reason: "is out of range"}
	}

	in := createInput{name: req.Name, price: price}
	if req.Image != nil {
		if len(req.Image.Data) == 0 {
			return createInput{}, &InvalidInputError{Field: "image", Reason: "is empty"}
		}
		in.contentType = detectContentType(req.Image)
		if !strings.HasPrefix(in.contentType, "image/") {
			return createInput{}, &InvalidInputError{Field: "image", Reason: "must be an image, got " + in.contentType}
		}
	}
	return in, nil
}

// detectContentType trusts the declared type unless it is missing or generic.
func detectContentType(img *Image) string {
	ct := strings.TrimSpace(img.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		return mimetype.Detect(img.Data).String()
	}
	return ct
}

func toInvalidInput(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &InvalidInputError{Reason: err.Error()}
	}

	e := verrs[0]
	field := strings.ToLower(e.Field())
	switch e.Tag() {
	case "required":
		return &InvalidInputError{Field: field, Reason: "is required"}
	case "max":
		return &InvalidInputError{Field: field, Reason: "exceeds maximum length"}
	case "numeric":
		return &InvalidInputError{Field: field, Reason: "must be a decimal number"}
	default:
		return &InvalidInputError{Field: field, Reason: "is invalid"}
	}
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
