// Package config centralizes how FitSpo reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Store backends for post records.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config represents runtime configuration for every FitSpo binary. Not every
// binary reads every field.
type Config struct {
	Address        string        `validate:"required"`
	PublicURL      string        `validate:"required,url"`
	MaxImageSize   int64         `validate:"gt=0"`
	AllowedTypes   []string      `validate:"min=1,dive,required"`
	SigningSecret  []byte        `validate:"required"`
	SignedURLTTL   time.Duration `validate:"gt=0"`
	ProcessingPool int           `validate:"gt=0"`
	LogLevel       string        `validate:"oneof=debug info warn error"`

	// SecretGenerated is set when FITSPO_SIGNING_SECRET was absent and a
	// per-process secret was drawn instead.
	SecretGenerated bool

	Store       string `validate:"oneof=memory sqlite postgres"`
	SQLitePath  string `validate:"required_if=Store sqlite"`
	DatabaseURL string `validate:"required_if=Store postgres"`
	UploadDir   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3Region    string
	ImageBucket string

	ScanAPIURL       string
	ScanAPIToken     string
	ScanPollInterval time.Duration `validate:"gt=0"`
	ScanMaxAttempts  int           `validate:"gt=0"`
	ScanRate         float64       `validate:"gte=0"`
	ScanTimeout      time.Duration `validate:"gt=0"`
	ScanLockTTL      time.Duration `validate:"gt=0"`

	NATSURL string
}

const (
	defaultAddress      = ":8080"
	defaultPublicURL    = "http://localhost:8080"
	defaultMaxImageSize = 15 << 20 // 15 MiB
	defaultAllowedTypes = "image/jpeg,image/png,image/webp"
	defaultSignedTTL    = 15 * time.Minute
	defaultWorkerCount  = 4
	defaultLogLevel     = "info"
	defaultStore        = StoreMemory
	defaultSQLitePath   = "fitspo.db"
	defaultRedisAddr    = "localhost:6379"
	defaultS3Region     = "us-east-1"
	defaultImageBucket  = "fitspo-images"
	defaultPollInterval = 2 * time.Second
	defaultMaxAttempts  = 15
	defaultScanTimeout  = 20 * time.Second
	defaultScanLockTTL  = 2 * time.Minute
)

// Load reads configuration from environment variables falling back to
// defaults, then validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Address:        readEnv("FITSPO_ADDRESS", defaultAddress),
		PublicURL:      readEnv("FITSPO_PUBLIC_URL", defaultPublicURL),
		MaxImageSize:   parseInt64("FITSPO_MAX_IMAGE_BYTES", defaultMaxImageSize),
		AllowedTypes:   parseList("FITSPO_ALLOWED_TYPES", defaultAllowedTypes),
		SigningSecret:  parseSecret("FITSPO_SIGNING_SECRET"),
		SignedURLTTL:   parseDuration("FITSPO_SIGNED_TTL", defaultSignedTTL),
		ProcessingPool: parseInt("FITSPO_WORKERS", defaultWorkerCount),
		LogLevel:       strings.ToLower(readEnv("FITSPO_LOG_LEVEL", defaultLogLevel)),

		Store:       strings.ToLower(readEnv("FITSPO_STORE", defaultStore)),
		SQLitePath:  readEnv("FITSPO_SQLITE_PATH", defaultSQLitePath),
		DatabaseURL: readEnv("FITSPO_DATABASE_URL", ""),
		UploadDir:   readEnv("FITSPO_UPLOAD_DIR", ""),

		RedisAddr:     readEnv("FITSPO_REDIS_ADDR", defaultRedisAddr),
		RedisPassword: readEnv("FITSPO_REDIS_PASSWORD", ""),
		RedisDB:       parseInt("FITSPO_REDIS_DB", 0),

		S3Endpoint:  readEnv("FITSPO_S3_ENDPOINT", ""),
		S3AccessKey: readEnv("FITSPO_S3_ACCESS_KEY", ""),
		S3SecretKey: readEnv("FITSPO_S3_SECRET_KEY", ""),
		S3UseSSL:    parseBool("FITSPO_S3_USE_SSL", false),
		S3Region:    readEnv("FITSPO_S3_REGION", defaultS3Region),
		ImageBucket: readEnv("FITSPO_IMAGE_BUCKET", defaultImageBucket),

		ScanAPIURL:       readEnv("FITSPO_SCAN_API_URL", ""),
		ScanAPIToken:     readEnv("FITSPO_SCAN_API_TOKEN", ""),
		ScanPollInterval: parseDuration("FITSPO_SCAN_POLL_INTERVAL", defaultPollInterval),
		ScanMaxAttempts:  parseInt("FITSPO_SCAN_MAX_ATTEMPTS", defaultMaxAttempts),
		ScanRate:         parseFloat("FITSPO_SCAN_RATE", 0),
		ScanTimeout:      parseDuration("FITSPO_SCAN_TIMEOUT", defaultScanTimeout),
		ScanLockTTL:      parseDuration("FITSPO_SCAN_LOCK_TTL", defaultScanLockTTL),

		NATSURL: readEnv("FITSPO_NATS_URL", ""),
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
		cfg.SecretGenerated = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// UseS3 reports whether images go to S3/MinIO rather than local disk.
func (c *Config) UseS3() bool {
	return c.S3Endpoint != ""
}

// RequireScanAPI returns an error when the scan service is not configured.
// Only binaries that run scans call it.
func (c *Config) RequireScanAPI() error {
	if c.ScanAPIURL == "" {
		return fmt.Errorf("invalid config: FITSPO_SCAN_API_URL is required")
	}
	return nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key, def string) []string {
	val := readEnv(key, def)
	parts := strings.Split(val, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	// time.ParseDuration understands inputs like "5m" or "30s".
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte(hex.EncodeToString([]byte("fallbacksecret")))
	}
	return buf
}
