package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/polymind/polymind/internal/blob/s3"
	"github.com/polymind/polymind/internal/cache/redis"
	"github.com/polymind/polymind/internal/chain"
	"github.com/polymind/polymind/internal/config"
	"github.com/polymind/polymind/internal/domain"
	"github.com/polymind/polymind/internal/notify"
	"github.com/polymind/polymind/internal/platform/gamma"
	"github.com/polymind/polymind/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the application
// needs. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Chain access
	Chain *chain.Client

	// Stores
	PGClient    *postgres.Client
	MarketStore domain.MarketStore
	TradeStore  *postgres.TradeStore
	CursorStore domain.CursorStore

	// Caches (nil when Redis is not configured)
	Redis      *redis.Client
	PriceCache domain.PriceCache
	SignalBus  domain.SignalBus

	// Blob storage (nil when archival is disabled)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Metadata enrichment (nil when disabled)
	Gamma *gamma.Client

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs the concrete dependency implementations from the
// configuration and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// Polygon RPC.
	chainClient, err := chain.Dial(ctx, chain.Config{
		RPCURL:       cfg.Chain.RPCURL,
		Contracts:    cfg.Chain.Contracts,
		FetchTimeout: cfg.Chain.FetchTimeout.Duration,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, chainClient.Close)
	deps.Chain = chainClient

	// PostgreSQL.
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.PGClient = pgClient

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.CursorStore = postgres.NewCursorStore(pool)

	// Redis is optional: without it the API still serves, only the live
	// price cache and WebSocket stream go dark.
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Redis = redisClient
		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// S3 archival.
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.TradeStore)
	}

	// Gamma enrichment.
	if cfg.Gamma.Enabled {
		deps.Gamma = gamma.New(cfg.Gamma.Host)
	}

	// Notifications.
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Cooldown.Duration, logger)

	return deps, cleanup, nil
}
