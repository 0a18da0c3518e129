package product

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors shared by the catalog storage adapters and the service.
var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")

	// ErrStoreUnavailable wraps failures of the database or the blob store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// InvalidInputError indicates a malformed create request or path parameter.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Product is a catalog row.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	// ImageKey references a blob in the object store, nil when the product
	// was created without an image.
	ImageKey *string
}

// View is the API representation of a Product. ImageURL is minted per
// request and never persisted.
type View struct {
	Product
	ImageURL *string
}

// Image is an uploaded file attached to a create request.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Repository defines persistence operations for the product table.
type Repository interface {
	Insert(ctx context.Context, name, description string, price decimal.Decimal, imageKey *string) (int64, error)
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
}

// BlobStore stores image payloads and issues time-limited read URLs.
type BlobStore interface {
	Store(ctx context.Context, payload []byte, originalName, contentType string) (string, error)
	SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
