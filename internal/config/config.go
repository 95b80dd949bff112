package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Postgres PostgresConfig `yaml:"postgres"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Payment  PaymentConfig  `yaml:"payment"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type AppConfig struct {
	Name  string `yaml:"name"`
	Port  string `yaml:"port"`
	Debug bool   `yaml:"debug"`
	// Storage selects the persistence backend: "postgres" or "memory".
	Storage string `yaml:"storage"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	Schema          string        `yaml:"schema"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

// PricingConfig holds money values in minor units. TaxRate is a decimal
// fraction such as "0.18".
type PricingConfig struct {
	Currency         string `yaml:"currency"`
	TaxRate          string `yaml:"tax_rate"`
	ShippingFlat     int64  `yaml:"shipping_flat"`
	FreeShippingOver int64  `yaml:"free_shipping_over"`
}

type PaymentConfig struct {
	BaseURL       string        `yaml:"base_url"`
	KeyID         string        `yaml:"key_id"`
	KeySecret     string        `yaml:"key_secret"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Timeout       time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PagesTTL time.Duration `yaml:"pages_ttl"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Load reads the optional YAML file at path, then applies .env and process
// environment overrides, then defaults. It does not validate.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("invalid config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.App.Port, "APP_PORT")
	setBool(&cfg.App.Debug, "APP_DEBUG")
	setString(&cfg.App.Storage, "APP_STORAGE")

	setString(&cfg.Postgres.Host, "DB_HOST")
	setString(&cfg.Postgres.Port, "DB_PORT")
	setString(&cfg.Postgres.User, "DB_USER")
	setString(&cfg.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Postgres.DBName, "DB_NAME")
	setString(&cfg.Postgres.SSLMode, "DB_SSLMODE")
	setString(&cfg.Postgres.MigrationsPath, "DB_MIGRATIONS_PATH")

	setString(&cfg.Pricing.Currency, "PRICING_CURRENCY")
	setString(&cfg.Pricing.TaxRate, "PRICING_TAX_RATE")
	setInt64(&cfg.Pricing.ShippingFlat, "PRICING_SHIPPING_FLAT")
	setInt64(&cfg.Pricing.FreeShippingOver, "PRICING_FREE_SHIPPING_OVER")

	setString(&cfg.Payment.BaseURL, "PAYMENT_BASE_URL")
	setString(&cfg.Payment.KeyID, "PAYMENT_KEY_ID")
	setString(&cfg.Payment.KeySecret, "PAYMENT_KEY_SECRET")
	setString(&cfg.Payment.WebhookSecret, "PAYMENT_WEBHOOK_SECRET")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setString(&cfg.Kafka.Topic, "KAFKA_TOPIC")
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "storefront"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.App.Storage == "" {
		cfg.App.Storage = StoragePostgres
	}
	if cfg.Postgres.Port == "" {
		cfg.Postgres.Port = "5432"
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.Schema == "" {
		cfg.Postgres.Schema = "storefront"
	}
	if cfg.Postgres.MaxConns == 0 {
		cfg.Postgres.MaxConns = 10
	}
	if cfg.Postgres.MinConns == 0 {
		cfg.Postgres.MinConns = 2
	}
	if cfg.Postgres.MaxConnLifetime == 0 {
		cfg.Postgres.MaxConnLifetime = 30 * time.Minute
	}
	if cfg.Postgres.MigrationsPath == "" {
		cfg.Postgres.MigrationsPath = "migrations"
	}
	if cfg.Pricing.Currency == "" {
		cfg.Pricing.Currency = "INR"
	}
	if cfg.Pricing.TaxRate == "" {
		cfg.Pricing.TaxRate = "0"
	}
	if cfg.Payment.BaseURL == "" {
		cfg.Payment.BaseURL = "https://api.razorpay.com"
	}
	if cfg.Payment.Timeout == 0 {
		cfg.Payment.Timeout = 10 * time.Second
	}
	if cfg.Redis.PagesTTL == 0 {
		cfg.Redis.PagesTTL = 10 * time.Minute
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "storefront.orders"
	}
}

// Validate checks everything the HTTP server needs.
func (c *Config) Validate() error {
	if err := c.ValidateStorage(); err != nil {
		return err
	}

	var missing []string
	if c.Payment.KeyID == "" {
		missing = append(missing, "PAYMENT_KEY_ID")
	}
	if c.Payment.KeySecret == "" {
		missing = append(missing, "PAYMENT_KEY_SECRET")
	}
	if c.Payment.WebhookSecret == "" {
		missing = append(missing, "PAYMENT_WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required values: %s", strings.Join(missing, ", "))
	}

	rate, err := c.Pricing.Rate()
	if err != nil {
		return err
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("config: tax rate must be in [0, 1), got %s", rate)
	}
	if c.Pricing.ShippingFlat < 0 || c.Pricing.FreeShippingOver < 0 {
		return errors.New("config: shipping amounts cannot be negative")
	}

	return nil
}

// ValidateStorage checks only the persistence settings, for commands that
// never serve requests.
func (c *Config) ValidateStorage() error {
	switch c.App.Storage {
	case StoragePostgres:
		var missing []string
		if c.Postgres.Host == "" {
			missing = append(missing, "DB_HOST")
		}
		if c.Postgres.User == "" {
			missing = append(missing, "DB_USER")
		}
		if c.Postgres.DBName == "" {
			missing = append(missing, "DB_NAME")
		}
		if len(missing) > 0 {
			return fmt.Errorf("config: missing required values: %s", strings.Join(missing, ", "))
		}
		return nil
	case StorageMemory:
		return nil
	default:
		return fmt.Errorf("config: unknown storage %q", c.App.Storage)
	}
}

// Rate parses TaxRate.
func (p PricingConfig) Rate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(p.TaxRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: invalid tax rate %q: %w", p.TaxRate, err)
	}
	return rate, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
