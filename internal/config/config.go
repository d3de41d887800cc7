// Package config defines the top-level configuration for the indexer and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYMIND_* environment
// variables.
type Config struct {
	Chain     ChainConfig     `toml:"chain"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Indexer   IndexerConfig   `toml:"indexer"`
	Analytics AnalyticsConfig `toml:"analytics"`
	Gamma     GammaConfig     `toml:"gamma"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	LogLevel  string          `toml:"log_level"`
}

// ChainConfig holds the Polygon RPC endpoint and the contracts to index.
type ChainConfig struct {
	RPCURL       string   `toml:"rpc_url"`
	Contracts    []string `toml:"contracts"`
	FetchTimeout duration `toml:"fetch_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; an
// empty Addr disables the price cache and the live stream.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters. Optional; an
// empty Bucket disables archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// IndexerConfig holds the ingestion loop parameters.
type IndexerConfig struct {
	StartBlock      uint64   `toml:"start_block"`
	BatchSize       uint64   `toml:"batch_size"`
	PollInterval    duration `toml:"poll_interval"`
	MaxPollInterval duration `toml:"max_poll_interval"`
	BackoffBase     duration `toml:"backoff_base"`
	BackoffMax      duration `toml:"backoff_max"`
}

// AnalyticsConfig holds the analytics engine thresholds.
type AnalyticsConfig struct {
	ArbThreshold        float64  `toml:"arb_threshold"`
	SmartMoneyWindow    duration `toml:"smart_money_window"`
	SmartMoneyMinTrades int      `toml:"smart_money_min_trades"`
}

// GammaConfig holds the metadata enrichment endpoint. Optional; an empty
// Host disables enrichment.
type GammaConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
}

// ArchiveConfig holds cold storage retention parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Cooldown          duration `toml:"cooldown"`
}

// duration wraps time.Duration so TOML strings like "5m" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with production defaults. These
// match config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:       "https://polygon-rpc.com",
			FetchTimeout: duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "polymind",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Indexer: IndexerConfig{
			BatchSize:       1000,
			PollInterval:    duration{3 * time.Second},
			MaxPollInterval: duration{60 * time.Second},
			BackoffBase:     duration{time.Second},
			BackoffMax:      duration{2 * time.Minute},
		},
		Analytics: AnalyticsConfig{
			ArbThreshold:        0.02,
			SmartMoneyWindow:    duration{30 * 24 * time.Hour},
			SmartMoneyMinTrades: 5,
		},
		Gamma: GammaConfig{
			Enabled: true,
			Host:    "https://gamma-api.polymarket.com",
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Notify: NotifyConfig{
			Cooldown: duration{5 * time.Minute},
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for fatal mistakes. It returns the
// first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return fmt.Errorf("config: chain.rpc_url is required")
	}
	if c.Postgres.DSN == "" && c.Postgres.Database == "" {
		return fmt.Errorf("config: postgres.dsn or postgres.database is required")
	}
	if c.Indexer.BatchSize == 0 {
		return fmt.Errorf("config: indexer.batch_size must be positive")
	}
	if c.Analytics.ArbThreshold <= 0 || c.Analytics.ArbThreshold >= 1 {
		return fmt.Errorf("config: analytics.arb_threshold must be in (0,1)")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			return fmt.Errorf("config: archive requires s3.bucket")
		}
		if c.Archive.RetentionDays <= 0 {
			return fmt.Errorf("config: archive.retention_days must be positive")
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
