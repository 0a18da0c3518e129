package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/product-catalog/internal/app"
	"github.com/xenking/product-catalog/internal/domain/product"
	"github.com/xenking/product-catalog/internal/storage/postgres"
	"github.com/xenking/product-catalog/internal/storage/s3"
)

// seedProduct is one entry of the products file. Image is a file path
// relative to the products file, empty for no image.
type seedProduct struct {
	Name        string
	Description string
	Price       string
	Image       string
}

func main() {
	fs := flag.NewFlagSet("seed-db", flag.ExitOnError)
	productsFile := fs.String("products-file", "db/seed/products.json", "path to products JSON file")
	_ = fs.Parse(os.Args[1:])

	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadConfigFromArgs(fs.Args())
		if err != nil {
			return err
		}
		return run(ctx, lg, m, cfg, *productsFile)
	})
}

func run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *appkg.Config, productsFile string) error {
	entries, err := readProducts(productsFile)
	if err != nil {
		return err
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, cfg.Database.DSN())
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return errors.Wrap(err, "ensure schema")
	}

	blobs, err := s3.New(ctx, cfg.Storage.S3())
	if err != nil {
		return errors.Wrap(err, "create blob store")
	}

	svc, err := product.NewService(postgres.NewProductRepository(pool), blobs, product.Config{
		URLTTL:         cfg.Storage.URLTTL,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create product service")
	}

	lg.Info("Seeding products", zap.Int("count", len(entries)))
	baseDir := filepath.Dir(productsFile)
	for _, e := range entries {
		req := product.CreateRequest{
			Name:        e.Name,
			Description: e.Description,
			Price:       e.Price,
		}
		if e.Image != "" {
			data, err := os.ReadFile(filepath.Join(baseDir, e.Image))
			if err != nil {
				return errors.Wrapf(err, "read image for %q", e.Name)
			}
			req.Image = &product.Image{Filename: filepath.Base(e.Image), Data: data}
		}

		v, err := svc.Create(ctx, req)
		if err != nil {
			return errors.Wrapf(err, "create %q", e.Name)
		}
		lg.Info("Created product",
			zap.Int64("id", v.ID),
			zap.String("name", v.Name),
			zap.Stringp("image_key", v.ImageKey),
		)
	}

	lg.Info("Seed completed")
	return nil
}

func readProducts(path string) ([]seedProduct, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}

	var out []seedProduct
	if err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p seedProduct
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "name":
				p.Name, err = d.Str()
			case "description":
				p.Description, err = d.Str()
			case "price":
				p.Price, err = decodePrice(d)
			case "image":
				p.Image, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "parse products file")
	}
	return out, nil
}

func decodePrice(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Number {
		n, err := d.Num()
		return n.String(), err
	}
	return d.Str()
}
