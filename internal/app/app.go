package app

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"nostrly/internal/retention"
	"nostrly/pkg/config"
	"nostrly/pkg/fetch"
	"nostrly/pkg/logger"
	"nostrly/pkg/state"
	"nostrly/pkg/store"
	"nostrly/pkg/thread"
	"nostrly/pkg/transport"
)

// App groups the daemon's components.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string
	paths     state.Paths

	db      *store.DB
	events  *store.EventStore
	threads *store.ThreadStore
	relays  transport.Transport
	dedup   *fetch.Deduplicator
	engine  *thread.Engine
	sweeper *retention.Sweeper

	sweeperCancel context.CancelFunc
	srvFast       *fasthttp.Server
	state         string
}

// New prepares the directory layout, opens the store and builds the engine.
// It does not start the sweeper or the HTTP server; Run does.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	if eff.Config == nil {
		return nil, fmt.Errorf("effective config missing")
	}
	cfg := eff.Config

	paths, err := state.Ensure(eff.DBPath)
	if err != nil {
		return nil, fmt.Errorf("ensure state directories under %s: %w", eff.DBPath, err)
	}
	db, err := store.Open(paths.Store, store.Options{BlockCacheSize: cfg.Cache.BlockCacheSize.Int64()})
	if err != nil {
		return nil, err
	}

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		paths:     paths,
		db:        db,
		events:    store.NewEventStore(db, cfg.Cache.EventTTL.Duration()),
		threads:   store.NewThreadStore(db, cfg.Cache.ThreadTTL.Duration()),
		state:     "initialized",
	}

	if len(cfg.Relays.URLs) == 0 {
		logger.Warn("no_relays_configured", "hint", "set relays.urls, NOSTRLY_RELAYS or --relay")
		a.relays = transport.Unavailable{}
	} else {
		a.relays = transport.NewPool(transport.PoolConfig{
			URLs:        cfg.Relays.URLs,
			RPS:         cfg.Relays.RPS,
			Burst:       cfg.Relays.Burst,
			DialTimeout: cfg.Relays.DialTimeout.Duration(),
		})
	}

	a.dedup = fetch.New(a.events, a.relays, fetch.Options{
		Timeout:  cfg.Fetch.EventTimeout.Duration(),
		Grace:    cfg.Fetch.InflightGrace.Duration(),
		Capacity: cfg.Fetch.InflightCapacity,
	})
	a.engine = thread.NewEngine(a.events, a.threads, a.dedup, a.relays, thread.Config{
		SubtreeTimeout:   cfg.Fetch.SubtreeTimeout.Duration(),
		ChainTimeout:     cfg.Fetch.ChainTimeout.Duration(),
		MaxHops:          cfg.Fetch.MaxHops,
		MaxChainRounds:   cfg.Fetch.MaxChainRounds,
		BackgroundEnsure: true,
	})
	a.sweeper = retention.New(a.events, a.threads, retention.Config{
		Cron:         cfg.Cache.SweepCron,
		StartupDelay: cfg.Cache.StartupSweepDelay.Duration(),
		Disabled:     cfg.Cache.SweepDisabled,
	})
	setStatsSource(db)
	return a, nil
}

func (a *App) Engine() *thread.Engine            { return a.engine }
func (a *App) Sweeper() *retention.Sweeper       { return a.sweeper }
func (a *App) DB() *store.DB                     { return a.db }
func (a *App) Paths() state.Paths                { return a.paths }
func (a *App) Events() *store.EventStore         { return a.events }
func (a *App) Threads() *store.ThreadStore       { return a.threads }
func (a *App) Deduplicator() *fetch.Deduplicator { return a.dedup }

// Run starts the sweeper and HTTP server and blocks until ctx is cancelled
// or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	cancel, err := a.sweeper.Start(ctx)
	if err != nil {
		return err
	}
	a.sweeperCancel = cancel

	errCh := a.startHTTP(ctx)
	a.state = "running"
	logger.Info("app_running", "addr", a.eff.Addr)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the sweeper and the HTTP server, then closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	if a.sweeperCancel != nil {
		a.sweeperCancel()
	}

	var firstErr error
	if a.srvFast != nil {
		done := make(chan error, 1)
		go func() { done <- a.srvFast.Shutdown() }()
		select {
		case err := <-done:
			if err != nil {
				firstErr = fmt.Errorf("http shutdown: %w", err)
			}
		case <-ctx.Done():
			firstErr = fmt.Errorf("http shutdown: %w", ctx.Err())
		}
	}

	a.engine.Wait()
	setStatsSource(nil)
	start := time.Now()
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close store: %w", err)
	}
	logger.Info("app_stopped", "store_close", time.Since(start), "error", firstErr)
	if firstErr == nil {
		a.state = "stopped"
	}
	return firstErr
}
