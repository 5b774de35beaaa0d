package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port            string `env:"PORT"              envDefault:"8080"`
	DBUrl           string `env:"DB_URL"`
	DBMaxConns      int32  `env:"DB_MAX_CONNS"      envDefault:"10"`
	JWTSecret       string `env:"JWT_SECRET"`
	AppEnv          string `env:"APP_ENV"           envDefault:"production"`
	StoreDriver     string `env:"STORE_DRIVER"      envDefault:"postgres"`
	LogLevel        string `env:"LOG_LEVEL"         envDefault:"info"`
	LogFormat       string `env:"LOG_FORMAT"        envDefault:"text"`
	EnableDocs      bool   `env:"ENABLE_API_DOCS"   envDefault:"false"`
	InvoiceDueDays  int    `env:"INVOICE_DUE_DAYS"  envDefault:"30"`
	DefaultCurrency string `env:"DEFAULT_CURRENCY"  envDefault:"USD"`
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}
	return Parse()
}

// Parse reads the process environment without touching .env files.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.AppEnv = normalizeEnv(cfg.AppEnv)
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.DefaultCurrency = strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DBUrl == "" {
			return errors.New("DB_URL is required for the postgres store")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.DBMaxConns <= 0 {
		return errors.New("DB_MAX_CONNS must be positive")
	}
	if c.InvoiceDueDays <= 0 {
		return errors.New("INVOICE_DUE_DAYS must be positive")
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY must be a three-letter code, got %q", c.DefaultCurrency)
	}
	return nil
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) DocsEnabled() bool {
	return c != nil && c.EnableDocs && c.AppEnv == "development"
}
