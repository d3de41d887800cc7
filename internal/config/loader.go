package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYMIND_* environment variable overrides,
// and returns the final Config. The caller should invoke Validate after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env if present, silently ignore when missing.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYMIND_* environment variables and
// overwrites the corresponding fields when set. Operators inject secrets
// at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Chain.RPCURL, "POLYMIND_CHAIN_RPC_URL")
	setStringSlice(&cfg.Chain.Contracts, "POLYMIND_CHAIN_CONTRACTS")
	setDuration(&cfg.Chain.FetchTimeout, "POLYMIND_CHAIN_FETCH_TIMEOUT")

	setStr(&cfg.Postgres.DSN, "POLYMIND_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYMIND_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYMIND_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYMIND_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYMIND_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYMIND_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYMIND_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYMIND_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYMIND_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYMIND_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "POLYMIND_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYMIND_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYMIND_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYMIND_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYMIND_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYMIND_REDIS_TLS_ENABLED")

	setStr(&cfg.S3.Endpoint, "POLYMIND_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYMIND_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYMIND_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYMIND_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYMIND_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYMIND_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYMIND_S3_FORCE_PATH_STYLE")

	setUint64(&cfg.Indexer.StartBlock, "POLYMIND_INDEXER_START_BLOCK")
	setUint64(&cfg.Indexer.BatchSize, "POLYMIND_INDEXER_BATCH_SIZE")
	setDuration(&cfg.Indexer.PollInterval, "POLYMIND_INDEXER_POLL_INTERVAL")
	setDuration(&cfg.Indexer.MaxPollInterval, "POLYMIND_INDEXER_MAX_POLL_INTERVAL")
	setDuration(&cfg.Indexer.BackoffBase, "POLYMIND_INDEXER_BACKOFF_BASE")
	setDuration(&cfg.Indexer.BackoffMax, "POLYMIND_INDEXER_BACKOFF_MAX")

	setFloat64(&cfg.Analytics.ArbThreshold, "POLYMIND_ANALYTICS_ARB_THRESHOLD")
	setDuration(&cfg.Analytics.SmartMoneyWindow, "POLYMIND_ANALYTICS_SMART_MONEY_WINDOW")
	setInt(&cfg.Analytics.SmartMoneyMinTrades, "POLYMIND_ANALYTICS_SMART_MONEY_MIN_TRADES")

	setBool(&cfg.Gamma.Enabled, "POLYMIND_GAMMA_ENABLED")
	setStr(&cfg.Gamma.Host, "POLYMIND_GAMMA_HOST")

	setBool(&cfg.Archive.Enabled, "POLYMIND_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "POLYMIND_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "POLYMIND_ARCHIVE_INTERVAL")

	setBool(&cfg.Server.Enabled, "POLYMIND_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYMIND_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYMIND_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POLYMIND_SERVER_API_KEY")

	setStr(&cfg.Notify.TelegramToken, "POLYMIND_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYMIND_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYMIND_NOTIFY_DISCORD_WEBHOOK_URL")
	setDuration(&cfg.Notify.Cooldown, "POLYMIND_NOTIFY_COOLDOWN")

	setStr(&cfg.LogLevel, "POLYMIND_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
