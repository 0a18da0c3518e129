// Package s3 implements the product image blob store on S3-compatible object
// storage.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/product-catalog/internal/domain/product"
)

// DefaultKeyPrefix is the namespace under which product images are stored.
const DefaultKeyPrefix = "products/"

var _ product.BlobStore = (*BlobStore)(nil)

// Config describes the bucket and how to reach it.
type Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint for S3-compatible services
	// (MinIO, R2). Empty means AWS.
	Endpoint  string
	PathStyle bool
	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
	KeyPrefix       string
}

// BlobStore uploads images and presigns read URLs for them.
type BlobStore struct {
	bucket  string
	prefix  string
	client  *s3.Client
	presign *s3.PresignClient
	newID   func() string
}

// New loads AWS configuration and creates a BlobStore for cfg.Bucket.
func New(ctx context.Context, cfg Config) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return NewFromClient(client, cfg), nil
}

// NewFromClient creates a BlobStore around an existing S3 client.
func NewFromClient(client *s3.Client, cfg Config) *BlobStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &BlobStore{
		bucket:  cfg.Bucket,
		prefix:  prefix,
		client:  client,
		presign: s3.NewPresignClient(client),
		newID:   uuid.NewString,
	}
}

// Store uploads payload under a fresh key derived from originalName and
// returns the key.
func (s *BlobStore) Store(ctx context.Context, payload []byte, originalName, contentType string) (string, error) {
	key := s.prefix + s.newID() + "-" + SanitizeName(originalName)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %q: %w: %w", key, product.ErrStoreUnavailable, err)
	}
	return key, nil
}

// SignedReadURL returns a presigned GET URL for key valid for ttl.
func (s *BlobStore) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presigning %q: %w", key, err)
	}
	return req.URL, nil
}

// Ping checks that the bucket exists and is reachable with the configured
// credentials.
func (s *BlobStore) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("head bucket %q: %w: %w", s.bucket, product.ErrStoreUnavailable, err)
	}
	return nil
}

var whitespace = regexp.MustCompile(`\s+`)

// SanitizeName reduces an uploaded file name to a single key segment with no
// whitespace.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = whitespace.ReplaceAllString(strings.TrimSpace(name), "_")
	switch name {
	case "", ".", "..", "/":
		return "image"
	}
	return name
}
