package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/valyala/fasthttp"

	"nostrly/pkg/api"
	"nostrly/pkg/logger"
	"nostrly/pkg/router"
	"nostrly/pkg/store"
)

var statsDB atomic.Pointer[store.DB]

func setStatsSource(db *store.DB) { statsDB.Store(db) }

func dbStat(f func(store.Stats) float64) func() float64 {
	return func() float64 {
		db := statsDB.Load()
		if db == nil {
			return 0
		}
		return f(db.Stats())
	}
}

var (
	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "nostrly_pebble_disk_usage_bytes",
		Help: "Disk space used by the pebble store.",
	}, dbStat(func(s store.Stats) float64 { return float64(s.DiskSpaceUsage) }))

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "nostrly_pebble_l0_files",
		Help: "Number of L0 sstables.",
	}, dbStat(func(s store.Stats) float64 { return float64(s.L0Files) }))

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "nostrly_pebble_wal_bytes",
		Help: "Size of the live WAL.",
	}, dbStat(func(s store.Stats) float64 { return float64(s.WALBytes) }))
)

// printBanner prints the startup summary and build info.
func (a *App) printBanner() {
	cfg := a.eff.Config
	ver := a.version
	if a.commit != "" && a.commit != "none" {
		ver += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		ver += " @ " + a.buildDate
	}
	relays := "none (offline, cache only)"
	if len(cfg.Relays.URLs) > 0 {
		relays = strings.Join(cfg.Relays.URLs, ", ")
	}
	sweep := cfg.Cache.SweepCron
	if cfg.Cache.SweepDisabled {
		sweep = "disabled"
	}
	logger.LogConfigSummary("nostrly", []string{
		"version: " + ver,
		"listen: " + a.eff.Addr,
		"db_path: " + a.eff.DBPath,
		"config: " + a.eff.Source,
		"relays: " + relays,
		fmt.Sprintf("relay_budget: %s req/s, burst %s", humanize.Ftoa(cfg.Relays.RPS), humanize.Comma(int64(cfg.Relays.Burst))),
		"event_ttl: " + logger.HumanDuration(cfg.Cache.EventTTL.Duration()),
		"thread_ttl: " + logger.HumanDuration(cfg.Cache.ThreadTTL.Duration()),
		"sweep: " + sweep,
		"block_cache: " + cfg.Cache.BlockCacheSize.String(),
		fmt.Sprintf("fetch_timeouts: event %s, subtree %s, chain %s",
			cfg.Fetch.EventTimeout.Duration(), cfg.Fetch.SubtreeTimeout.Duration(), cfg.Fetch.ChainTimeout.Duration()),
	})
}

// readyzHandler reports whether the store is open.
func (a *App) readyzHandler(ctx *fasthttp.RequestCtx) {
	if !a.db.Ready() {
		router.WriteJSONStatus(ctx, fasthttp.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	st := a.db.Stats()
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, map[string]any{
		"status":     "ok",
		"version":    ver,
		"disk_usage": humanize.IBytes(st.DiskSpaceUsage),
		"inflight":   a.dedup.InFlight(),
		"threads":    a.engine.Cache().Len(),
	})
}

func (a *App) healthzHandler(ctx *fasthttp.RequestCtx) {
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

// Handler builds the full request handler: health probes plus the API.
func (a *App) Handler() fasthttp.RequestHandler {
	r := router.New()
	r.GET("/healthz", a.healthzHandler)
	r.GET("/readyz", a.readyzHandler)

	// engine budgets bound each call; the extra second covers encoding
	timeout := a.eff.Config.Fetch.ChainTimeout.Duration() + time.Second
	api.New(a.engine, timeout).RegisterRoutes(r)
	return r.Handler
}

// startHTTP builds and starts the fasthttp server, returning a channel that
// delivers its terminal error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	const (
		readBufferSize     = 16 * 1024
		maxRequestBodySize = 1 * 1024 * 1024 // events are small
		readTimeout        = 10 * time.Second
		writeTimeout       = 30 * time.Second // ensure can take a full chain budget
		idleTimeout        = 60 * time.Second
	)
	a.srvFast = &fasthttp.Server{
		Name:               "nostrly",
		Handler:            a.Handler(),
		ReadBufferSize:     readBufferSize,
		MaxRequestBodySize: maxRequestBodySize,
		ReadTimeout:        readTimeout,
		WriteTimeout:       writeTimeout,
		IdleTimeout:        idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.srvFast.ListenAndServe(a.eff.Addr)
	}()
	return errCh
}
