package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[chain]
rpc_url = "https://polygon.example.com"

[postgres]
host = "db.internal"
password = "hunter2"

[indexer]
start_block = 42000000
poll_interval = "5s"

[analytics]
arb_threshold = 0.05
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Chain.RPCURL != "https://polygon.example.com" {
		t.Errorf("rpc_url = %q", cfg.Chain.RPCURL)
	}
	if cfg.Postgres.Host != "db.internal" || cfg.Postgres.Password != "hunter2" {
		t.Errorf("postgres = %q/%q", cfg.Postgres.Host, cfg.Postgres.Password)
	}
	if cfg.Indexer.StartBlock != 42_000_000 {
		t.Errorf("start_block = %d", cfg.Indexer.StartBlock)
	}
	if cfg.Indexer.PollInterval.Duration != 5*time.Second {
		t.Errorf("poll_interval = %v", cfg.Indexer.PollInterval.Duration)
	}
	if cfg.Analytics.ArbThreshold != 0.05 {
		t.Errorf("arb_threshold = %f", cfg.Analytics.ArbThreshold)
	}

	// Untouched fields keep their defaults.
	if cfg.Postgres.Port != 5432 {
		t.Errorf("postgres port = %d, want default 5432", cfg.Postgres.Port)
	}
	if cfg.Indexer.BatchSize != 1000 {
		t.Errorf("batch_size = %d, want default 1000", cfg.Indexer.BatchSize)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[chain]
rpc_url = "https://from-file.example.com"

[redis]
addr = "file:6379"
`)

	t.Setenv("POLYMIND_CHAIN_RPC_URL", "https://from-env.example.com")
	t.Setenv("POLYMIND_REDIS_ADDR", "env:6379")
	t.Setenv("POLYMIND_POSTGRES_PASSWORD", "secret")
	t.Setenv("POLYMIND_INDEXER_BATCH_SIZE", "250")
	t.Setenv("POLYMIND_INDEXER_BACKOFF_BASE", "2s")
	t.Setenv("POLYMIND_SERVER_CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("POLYMIND_ARCHIVE_ENABLED", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Chain.RPCURL != "https://from-env.example.com" {
		t.Errorf("rpc_url = %q, env must beat file", cfg.Chain.RPCURL)
	}
	if cfg.Redis.Addr != "env:6379" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.Postgres.Password != "secret" {
		t.Errorf("password = %q", cfg.Postgres.Password)
	}
	if cfg.Indexer.BatchSize != 250 {
		t.Errorf("batch_size = %d", cfg.Indexer.BatchSize)
	}
	if cfg.Indexer.BackoffBase.Duration != 2*time.Second {
		t.Errorf("backoff_base = %v", cfg.Indexer.BackoffBase.Duration)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != want[0] || cfg.Server.CORSOrigins[1] != want[1] {
		t.Errorf("cors_origins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	if !cfg.Archive.Enabled {
		t.Error("archive not enabled by env")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("Load on a missing file succeeded")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing rpc url",
			mutate:  func(c *Config) { c.Chain.RPCURL = " " },
			wantErr: "rpc_url",
		},
		{
			name: "missing database",
			mutate: func(c *Config) {
				c.Postgres.DSN = ""
				c.Postgres.Database = ""
			},
			wantErr: "postgres",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Indexer.BatchSize = 0 },
			wantErr: "batch_size",
		},
		{
			name:    "threshold too high",
			mutate:  func(c *Config) { c.Analytics.ArbThreshold = 1.5 },
			wantErr: "arb_threshold",
		},
		{
			name:    "threshold zero",
			mutate:  func(c *Config) { c.Analytics.ArbThreshold = 0 },
			wantErr: "arb_threshold",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "port",
		},
		{
			name: "archive without bucket",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.S3.Bucket = ""
			},
			wantErr: "s3.bucket",
		},
		{
			name: "archive without retention",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.S3.Bucket = "polymind-archive"
				c.Archive.RetentionDays = 0
			},
			wantErr: "retention_days",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
