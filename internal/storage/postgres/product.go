package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/product-catalog/internal/domain/product"
)

const (
	insertProductSQL = `INSERT INTO products (name, description, price, image_key)
		VALUES ($1, $2, $3, $4) RETURNING id`

	listProductsSQL = `SELECT id, name, description, price, image_key
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, description, price, image_key
		FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Insert appends a product row and returns its generated identifier.
func (r *ProductRepository) Insert(ctx context.Context, name, description string, price decimal.Decimal, imageKey *string) (int64, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, insertProductSQL, name, description, price, imageKey).Scan(&id); err != nil {
		return 0, unavailable("inserting product", err)
	}
	return id, nil
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, unavailable("listing products", err)
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, unavailable("listing products", err)
	}
	return products, nil
}

// GetByID returns a single product by its identifier or product.ErrNotFound.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("getting product %d", id), err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, unavailable(fmt.Sprintf("getting product %d", id), err)
	}
	return &p, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageKey)
	return p, err
}
