// Package config loads the process-wide settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendDatabase = "database"
	BackendS3       = "s3"
	BackendGCS      = "gcs"
	BackendMemory   = "memory"
)

type Config struct {
	Port           int           `env:"PORT" envDefault:"1337"`
	StorageBackend string        `env:"STORAGE_BACKEND" envDefault:"database"`
	BlobToken      string        `env:"BLOB_READ_WRITE_TOKEN"`
	LegacyToken    string        `env:"VERCEL_BLOB_READ_WRITE_TOKEN"`
	PublicOrigin   string        `env:"PUBLIC_ORIGIN"`
	RelayCeiling   int64         `env:"RELAY_CEILING_BYTES" envDefault:"4718592"`
	GrantTTL       time.Duration `env:"UPLOAD_GRANT_TTL" envDefault:"5m"`
	HTMLRewriter   string        `env:"HTML_REWRITER" envDefault:"pattern"`
	AuditSchedule  string        `env:"AUDIT_SCHEDULE" envDefault:"@daily"`

	Database Database
	S3       S3
	GCS      GCS
}

type Database struct {
	Driver     string `env:"DB_DRIVER" envDefault:"postgres"`
	Hostname   string `env:"DB_HOSTNAME"`
	Username   string `env:"DB_USERNAME"`
	Password   string `env:"DB_PASSWORD"`
	Name       string `env:"DB_DBNAME"`
	Schema     string `env:"DB_SCHEMA"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"invites.db"`
}

type S3 struct {
	Bucket          string `env:"S3_BUCKET"`
	Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	Endpoint        string `env:"S3_ENDPOINT"`
	PublicBaseURL   string `env:"S3_PUBLIC_BASE_URL"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
}

type GCS struct {
	Bucket          string `env:"GCS_BUCKET"`
	CredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
	PublicBaseURL   string `env:"GCS_PUBLIC_BASE_URL"`
}

// Load reads an optional .env file and parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse parses the environment without touching .env files.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	cfg.PublicOrigin = strings.TrimRight(cfg.PublicOrigin, "/")
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StorageBackend {
	case BackendDatabase, BackendS3, BackendGCS, BackendMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}
	switch c.HTMLRewriter {
	case "pattern", "document":
	default:
		return fmt.Errorf("unknown HTML_REWRITER %q", c.HTMLRewriter)
	}
	if c.RelayCeiling <= 0 {
		return fmt.Errorf("RELAY_CEILING_BYTES must be positive")
	}
	if c.PublicOrigin != "" {
		u, err := url.Parse(c.PublicOrigin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("PUBLIC_ORIGIN must be an absolute URL, got %q", c.PublicOrigin)
		}
	}
	return nil
}

// Token returns the store credential, falling back to the legacy variable name.
func (c Config) Token() string {
	if c.BlobToken != "" {
		return c.BlobToken
	}
	return c.LegacyToken
}

// StorageConfigured reports whether the selected backend has what it needs to reach storage.
func (c Config) StorageConfigured() bool {
	switch c.StorageBackend {
	case BackendMemory:
		return true
	case BackendS3:
		return c.S3.Bucket != ""
	case BackendGCS:
		return c.GCS.Bucket != ""
	case BackendDatabase:
		if c.Database.Driver == "sqlite" {
			return c.Database.SQLitePath != ""
		}
		return c.Database.Hostname != "" && c.Database.Name != ""
	}
	return false
}

// DSN builds the connection string for the configured SQL driver.
func (d Database) DSN() string {
	if d.Driver == "sqlite" {
		return d.SQLitePath
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.Username, d.Password),
		Host:   d.Hostname,
		Path:   "/" + d.Name,
	}
	if d.Schema != "" {
		u.RawQuery = "search_path=" + url.QueryEscape(d.Schema)
	}
	return u.String()
}
