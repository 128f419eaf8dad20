package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. It is loaded once and passed to
// every component at construction.
type Config struct {
	Cryptolens CryptolensConfig `yaml:"cryptolens"`
	Cache      CacheConfig      `yaml:"cache"`
	Source     SourceConfig     `yaml:"source"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Report     ReportConfig     `yaml:"report"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type CryptolensConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type CacheConfig struct {
	DataDir        string `yaml:"data_dir"`
	StaleAfterDays int    `yaml:"stale_after_days"`
	CoinPrefix     string `yaml:"coin_prefix"`
	CategoryPrefix string `yaml:"category_prefix"`
	Timezone       string `yaml:"timezone"`
	Compression    string `yaml:"compression"`
}

// StaleAfter returns the staleness threshold as a duration.
func (c CacheConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterDays) * 24 * time.Hour
}

type SourceConfig struct {
	Bybit     BybitSourceConfig     `yaml:"bybit"`
	Coingecko CoingeckoSourceConfig `yaml:"coingecko"`
}

type BybitSourceConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Category        string        `yaml:"category"`
	InstrumentLimit int           `yaml:"instrument_limit"`
	QuoteCoin       string        `yaml:"quote_coin"`
	ContractType    string        `yaml:"contract_type"`
	Status          string        `yaml:"status"`
	RatioPeriod     string        `yaml:"ratio_period"`
	RatioLimit      int           `yaml:"ratio_limit"`
	RatioDelay      time.Duration `yaml:"ratio_delay"`
	Timeout         time.Duration `yaml:"timeout"`
}

type CoingeckoSourceConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	APIKeyHeader string        `yaml:"api_key_header"`
	DetailDelay  time.Duration `yaml:"detail_delay"`
	Timeout      time.Duration `yaml:"timeout"`
}

type ReconcileConfig struct {
	// SampleLimit keeps only the last N merged symbols and coin ids before the
	// per-item fetches. Zero or negative disables sampling.
	SampleLimit int `yaml:"sample_limit"`
}

type ReportConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Dir            string `yaml:"dir"`
	CoinsFile      string `yaml:"coins_file"`
	CategoriesFile string `yaml:"categories_file"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the configuration used when no file is present. Values
// match the historic behaviour of the batch job.
func Default() *Config {
	return &Config{
		Cryptolens: CryptolensConfig{Name: "cryptolens", Version: "1.0.0"},
		Cache: CacheConfig{
			DataDir:        "./data",
			StaleAfterDays: 5,
			CoinPrefix:     "df_coins",
			CategoryPrefix: "df_categories",
			Timezone:       "Asia/Tokyo",
			Compression:    "snappy",
		},
		Source: SourceConfig{
			Bybit: BybitSourceConfig{
				BaseURL:         "https://api.bybit.com",
				Category:        "linear",
				InstrumentLimit: 1000,
				QuoteCoin:       "USDT",
				ContractType:    "LinearPerpetual",
				Status:          "Trading",
				RatioPeriod:     "1d",
				RatioLimit:      1,
				RatioDelay:      50 * time.Millisecond,
				Timeout:         10 * time.Second,
			},
			Coingecko: CoingeckoSourceConfig{
				BaseURL:      "https://api.coingecko.com/api/v3",
				APIKeyHeader: "x-cg-demo-api-key",
				DetailDelay:  2050 * time.Millisecond,
				Timeout:      30 * time.Second,
			},
		},
		Reconcile: ReconcileConfig{SampleLimit: 10},
		Report: ReportConfig{
			Enabled:        true,
			CoinsFile:      "df_coins.xlsx",
			CategoriesFile: "df_categories.xlsx",
		},
		Metrics: MetricsConfig{
			CloudWatch: CloudWatchConfig{Namespace: "CryptoLens", Dashboard: "CryptoLens"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// LoadConfig reads the YAML file at path on top of Default, applies
// environment overrides and validates the result. A missing file yields the
// defaults with overrides applied.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnvOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		config.Source.Coingecko.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("CRYPTOLENS_DATA_DIR"); v != "" {
		config.Cache.DataDir = strings.TrimSpace(v)
	}

	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
	if config.Report.Dir == "" {
		config.Report.Dir = config.Cache.DataDir
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Cryptolens.Name == "" {
		return fmt.Errorf("cryptolens.name is required")
	}
	if cfg.Cache.DataDir == "" {
		return fmt.Errorf("cache.data_dir is required")
	}
	if cfg.Cache.StaleAfterDays < 0 {
		return fmt.Errorf("cache.stale_after_days must not be negative")
	}
	if cfg.Cache.CoinPrefix == "" || cfg.Cache.CategoryPrefix == "" {
		return fmt.Errorf("cache.coin_prefix and cache.category_prefix are required")
	}
	if cfg.Cache.CoinPrefix == cfg.Cache.CategoryPrefix {
		return fmt.Errorf("cache.coin_prefix and cache.category_prefix must differ")
	}
	switch strings.ToLower(cfg.Cache.Compression) {
	case "snappy", "gzip", "none", "uncompressed", "":
	default:
		return fmt.Errorf("cache.compression '%s' is not supported", cfg.Cache.Compression)
	}
	if _, err := time.LoadLocation(cfg.Cache.Timezone); err != nil {
		return fmt.Errorf("cache.timezone '%s' is invalid: %w", cfg.Cache.Timezone, err)
	}

	if cfg.Source.Bybit.BaseURL == "" {
		return fmt.Errorf("source.bybit.base_url is required")
	}
	if cfg.Source.Bybit.RatioDelay < 0 {
		return fmt.Errorf("source.bybit.ratio_delay must not be negative")
	}
	if cfg.Source.Coingecko.BaseURL == "" {
		return fmt.Errorf("source.coingecko.base_url is required")
	}
	if cfg.Source.Coingecko.DetailDelay < 0 {
		return fmt.Errorf("source.coingecko.detail_delay must not be negative")
	}

	if cfg.Report.Enabled && (cfg.Report.CoinsFile == "" || cfg.Report.CategoriesFile == "") {
		return fmt.Errorf("report.coins_file and report.categories_file are required when reports are enabled")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
