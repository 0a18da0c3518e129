package app

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/product-catalog/internal/storage/s3"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CATALOG_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Database  DatabaseConfig
	Storage   StorageConfig
	Upload    UploadConfig
	RateLimit RateLimitConfig
	Graceful  GracefulConfig
}

// DatabaseConfig selects the PostgreSQL database either by URL or by parts.
type DatabaseConfig struct {
	URL        string `usage:"PostgreSQL connection URL (CATALOG_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Host       string `usage:"PostgreSQL host, used when URL is empty"`
	Port       int    `default:"5432" usage:"PostgreSQL port"`
	User       string `usage:"PostgreSQL user"`
	Password   string `usage:"PostgreSQL password"`
	Name       string `usage:"PostgreSQL database name"`
	RequireTLS bool   `default:"false" usage:"Use sslmode=require instead of disable"`
}

// StorageConfig describes the image bucket.
type StorageConfig struct {
	Bucket          string        `usage:"Image bucket name" flag:"bucket"`
	Region          string        `usage:"Bucket region (falls back to AWS_REGION, then us-east-1)"`
	Endpoint        string        `usage:"Custom S3 endpoint for MinIO or R2"`
	PathStyle       bool          `default:"false" usage:"Use path-style bucket addressing"`
	AccessKeyID     string        `usage:"Static access key, default credential chain when empty"`
	SecretAccessKey string        `usage:"Static secret key"`
	KeyPrefix       string        `default:"products/" usage:"Object key prefix for product images"`
	URLTTL          time.Duration `default:"1h" usage:"Lifetime of signed image URLs" flag:"url-ttl"`
}

// UploadConfig bounds create requests.
type UploadConfig struct {
	MaxRequestBodyMB     int64 `default:"10" usage:"Maximum create request body size in MiB"`
	MaxMultipartMemoryMB int64 `default:"8" usage:"Multipart bytes kept in memory before spilling to disk, MiB"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	RPS        float64 `default:"50" usage:"Sustained requests per second per client, 0 disables"`
	Burst      int     `default:"100" usage:"Burst size per client"`
	TrustProxy bool    `default:"false" usage:"Key clients by the last X-Forwarded-For hop, only behind a load balancer"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return LoadConfigFromArgs(os.Args[1:])
}

// LoadConfigFromArgs is LoadConfig with explicit command-line arguments, for
// tools that consume some flags themselves.
func LoadConfigFromArgs(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CATALOG",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/catalog/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the conventional PORT, DATABASE_URL and
// AWS_REGION variables onto the CATALOG_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Database.URL == "" {
		c.Database.URL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Storage.Region == "" {
		c.Storage.Region = os.Getenv("AWS_REGION")
	}
	if c.Storage.Region == "" {
		c.Storage.Region = "us-east-1"
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" && c.Database.Host == "" {
		return errors.New("database is required: set CATALOG_DATABASE_URL, DATABASE_URL or CATALOG_DATABASE_HOST")
	}
	if c.Storage.Bucket == "" {
		return errors.New("bucket is required: set CATALOG_STORAGE_BUCKET")
	}
	if c.Storage.URLTTL <= 0 {
		return errors.Errorf("storage URL TTL must be positive, got %s", c.Storage.URLTTL)
	}
	if c.Upload.MaxRequestBodyMB <= 0 || c.Upload.MaxMultipartMemoryMB <= 0 {
		return errors.New("upload limits must be positive")
	}
	return nil
}

// DSN returns Database.URL, or a postgres URL assembled from the parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	switch {
	case d.User != "" && d.Password != "":
		u.User = url.UserPassword(d.User, d.Password)
	case d.User != "":
		u.User = url.User(d.User)
	}

	mode := "disable"
	if d.RequireTLS {
		mode = "require"
	}
	u.RawQuery = url.Values{"sslmode": {mode}}.Encode()
	return u.String()
}

// S3 converts the storage section to the blob store configuration.
func (s StorageConfig) S3() s3.Config {
	return s3.Config{
		Bucket:          s.Bucket,
		Region:          s.Region,
		Endpoint:        s.Endpoint,
		PathStyle:       s.PathStyle,
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
		KeyPrefix:       s.KeyPrefix,
	}
}
