package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/valyala/fasthttp"

	"nostrly/pkg/config"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.DBPath = t.TempDir()
	cfg.Cache.SweepDisabled = true
	if err := cfg.ValidateConfig(); err != nil {
		t.Fatalf("ValidateConfig: %v", err)
	}
	eff := config.EffectiveConfigResult{Config: cfg, Addr: cfg.Addr(), DBPath: cfg.Server.DBPath, Source: "defaults"}
	a, err := New(eff, "test", "none", "unknown")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func get(h fasthttp.RequestHandler, uri string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod("GET")
	ctx.Request.SetRequestURI(uri)
	h(&ctx)
	return &ctx
}

func TestApp_Probes(t *testing.T) {
	a := newTestApp(t)
	h := a.Handler()

	if ctx := get(h, "/healthz"); ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("healthz status %d", ctx.Response.StatusCode())
	}
	ctx := get(h, "/readyz")
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("readyz status %d", ctx.Response.StatusCode())
	}
	var body map[string]any
	if err := json.Unmarshal(ctx.Response.Body(), &body); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if body["version"] != "test" {
		t.Fatalf("unexpected readyz body %v", body)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if ctx := get(h, "/readyz"); ctx.Response.StatusCode() != fasthttp.StatusServiceUnavailable {
		t.Fatalf("readyz after shutdown should be 503, got %d", ctx.Response.StatusCode())
	}
}

func TestApp_OfflineEngine(t *testing.T) {
	a := newTestApp(t)
	defer func() { _ = a.Shutdown(context.Background()) }()

	if _, ok := a.Engine().GetEvent(context.Background(), "missing"); ok {
		t.Fatalf("offline engine should not resolve unknown events")
	}
	td := a.Engine().GetThread(context.Background(), "missing")
	if td.RootID != "missing" || len(td.Items) != 0 {
		t.Fatalf("unexpected thread %+v", td)
	}
	res, err := a.Sweeper().RunImmediate()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Events != 0 || res.Threads != 0 {
		t.Fatalf("unexpected sweep result %+v", res)
	}
}
