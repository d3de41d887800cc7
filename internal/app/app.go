// Package app owns the application lifecycle: it wires the infrastructure,
// rebuilds the in-memory analytics state from the database, and runs the
// indexer, API server and archiver until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polymind/polymind/internal/analytics"
	"github.com/polymind/polymind/internal/config"
	"github.com/polymind/polymind/internal/decoder"
	"github.com/polymind/polymind/internal/indexer"
	"github.com/polymind/polymind/internal/registry"
	"github.com/polymind/polymind/internal/server"
	"github.com/polymind/polymind/internal/server/handler"
	"github.com/polymind/polymind/internal/server/ws"
)

// App is the root application object.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, replays persisted state, starts the worker
// goroutines and blocks until the context is cancelled or a worker fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// Core analytics state.
	reg := registry.New()
	dec := decoder.New(reg)
	engine := analytics.NewEngine(analytics.Config{
		ArbThreshold:        a.cfg.Analytics.ArbThreshold,
		SmartMoneyWindow:    a.cfg.Analytics.SmartMoneyWindow.Duration,
		SmartMoneyMinTrades: a.cfg.Analytics.SmartMoneyMinTrades,
	}, a.logger)

	if err := a.replay(ctx, deps, reg, engine); err != nil {
		return fmt.Errorf("app: replay: %w", err)
	}

	ixDeps := indexer.Deps{
		Source:   deps.Chain,
		Decoder:  dec,
		Registry: reg,
		Engine:   engine,
		Markets:  deps.MarketStore,
		Trades:   deps.TradeStore,
		Cursors:  deps.CursorStore,
		Prices:   deps.PriceCache,
		Bus:      deps.SignalBus,
		Alerter:  deps.Notifier,
	}
	if deps.Gamma != nil {
		ixDeps.Enricher = deps.Gamma
	}
	ix := indexer.New(ixDeps, indexer.Config{
		BatchSize:       a.cfg.Indexer.BatchSize,
		PollInterval:    a.cfg.Indexer.PollInterval.Duration,
		MaxPollInterval: a.cfg.Indexer.MaxPollInterval.Duration,
		BackoffBase:     a.cfg.Indexer.BackoffBase.Duration,
		BackoffMax:      a.cfg.Indexer.BackoffMax.Duration,
		StartBlock:      a.cfg.Indexer.StartBlock,
	}, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ix.Run(ctx)
	})

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		srv := a.buildServer(deps, engine, reg, ix, hub)
		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps)
		})
	}

	return g.Wait()
}

// buildServer assembles the HTTP handlers over the wired dependencies.
func (a *App) buildServer(deps *Dependencies, engine *analytics.Engine, reg *registry.Registry, ix *indexer.Indexer, hub *ws.Hub) *server.Server {
	pings := map[string]handler.Pinger{
		"postgres": handler.PingerFunc(func(ctx context.Context) error {
			return deps.PGClient.Pool().Ping(ctx)
		}),
	}
	if deps.Redis != nil {
		pings["redis"] = handler.PingerFunc(deps.Redis.Ping)
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(pings, ix.Status),
		Markets:   handler.NewMarketHandler(deps.MarketStore, deps.TradeStore, engine, deps.PriceCache, reg, a.logger),
		Traders:   handler.NewTraderHandler(engine, deps.TradeStore, analytics.DefaultLabelPolicy(), a.logger),
		Analytics: handler.NewAnalyticsHandler(engine, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	return server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)
}

// runArchiver periodically pages trades older than the retention window
// out to object storage.
func (a *App) runArchiver(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			archived, err := deps.Archiver.ArchiveTrades(ctx, cutoff)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				a.logger.Error("trade archival failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if archived > 0 {
				a.logger.Info("trades archived",
					slog.Int64("count", archived),
					slog.Time("cutoff", cutoff),
				)
			}
		}
	}
}

// Close tears down all resources in reverse registration order.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
