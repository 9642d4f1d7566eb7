package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Values resolve in three layers:
// built-in defaults, then an optional YAML file, then environment variables.
// Environment wins so deployments can override a checked-in file.
type Config struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`

	Book            string          `yaml:"book"`
	CheckInterval   time.Duration   `yaml:"check_interval"`
	TradeAmount     decimal.Decimal `yaml:"trade_amount"`
	Strategy        string          `yaml:"strategy"`
	TargetProfit    decimal.Decimal `yaml:"target_profit"`
	FeeFallback     decimal.Decimal `yaml:"fee_fallback"`
	MaxActiveOrders int             `yaml:"max_active_orders"`
	MaxSellFactor   decimal.Decimal `yaml:"max_sell_factor"`
	PriceUndercut   decimal.Decimal `yaml:"price_undercut"`
	FixedMargin     decimal.Decimal `yaml:"fixed_margin"`
	DriftThreshold  decimal.Decimal `yaml:"drift_threshold"`

	DatabasePath    string `yaml:"database_path"`
	LogLevel        string `yaml:"log_level"`
	LogFile         string `yaml:"log_file"`
	DryRun          bool   `yaml:"dry_run"`
	StatusAddr      string `yaml:"status_addr"`
	SecretStorePath string `yaml:"secret_store_path"`
}

func defaults() Config {
	return Config{
		Book:            "usdt_mxn",
		CheckInterval:   60 * time.Second,
		TradeAmount:     decimal.NewFromInt(1),
		Strategy:        "fee-relative",
		TargetProfit:    mustDecimal("0.0005"),
		FeeFallback:     mustDecimal("0.015"),
		MaxActiveOrders: 5,
		MaxSellFactor:   mustDecimal("1.10"),
		PriceUndercut:   mustDecimal("0.001"),
		FixedMargin:     mustDecimal("0.05"),
		DriftThreshold:  mustDecimal("0.01"),
		DatabasePath:    "orders.db",
		LogLevel:        "info",
	}
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Load builds the configuration. A missing .env file is not an error; a
// named YAML file that fails to load is.
func Load(yamlPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.APIKey = getEnv("BITSO_API_KEY", c.APIKey)
	c.APISecret = getEnv("BITSO_API_SECRET", c.APISecret)
	c.Book = getEnv("BOOK", c.Book)
	c.Strategy = getEnv("STRATEGY", c.Strategy)
	c.DatabasePath = getEnv("DATABASE_PATH", c.DatabasePath)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.StatusAddr = getEnv("STATUS_ADDR", c.StatusAddr)
	c.SecretStorePath = getEnv("SECRETSTORE_PATH", c.SecretStorePath)

	var err error
	if c.CheckInterval, err = getEnvSeconds("CHECK_INTERVAL", c.CheckInterval); err != nil {
		return err
	}
	if c.MaxActiveOrders, err = getEnvInt("MAX_ACTIVE_ORDERS", c.MaxActiveOrders); err != nil {
		return err
	}
	if c.DryRun, err = getEnvBool("DRY_RUN", c.DryRun); err != nil {
		return err
	}

	for _, d := range []struct {
		key string
		dst *decimal.Decimal
	}{
		{"TRADE_AMOUNT", &c.TradeAmount},
		{"TARGET_PROFIT", &c.TargetProfit},
		{"FEE_FALLBACK", &c.FeeFallback},
		{"MAX_SELL_FACTOR", &c.MaxSellFactor},
		{"PRICE_UNDERCUT", &c.PriceUndercut},
		{"FIXED_MARGIN", &c.FixedMargin},
		{"DRIFT_THRESHOLD", &c.DriftThreshold},
	} {
		if err := getEnvDecimal(d.key, d.dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects configurations the bot cannot safely run with. API
// credentials are only required for live trading; dry runs and a configured
// secret store defer the check.
func (c *Config) Validate() error {
	if !c.DryRun && c.SecretStorePath == "" {
		if c.APIKey == "" || c.APISecret == "" {
			return fmt.Errorf("BITSO_API_KEY and BITSO_API_SECRET are required")
		}
	}
	if c.Book == "" {
		return fmt.Errorf("book is required")
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive: %s", c.CheckInterval)
	}
	if !c.TradeAmount.IsPositive() {
		return fmt.Errorf("trade amount must be positive: %s", c.TradeAmount)
	}
	if c.MaxActiveOrders <= 0 {
		return fmt.Errorf("max active orders must be positive: %d", c.MaxActiveOrders)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

// getEnvSeconds reads an interval given as a plain number of seconds.
func getEnvSeconds(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return time.Duration(n) * time.Second, nil
}

func getEnvDecimal(key string, dst *decimal.Decimal) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}
