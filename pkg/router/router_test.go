package router

import (
	"encoding/json"
	"testing"

	"github.com/valyala/fasthttp"
)

func serve(r *Router, method, uri string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	r.Handler(&ctx)
	return &ctx
}

func TestRouter_ParamsAndMethods(t *testing.T) {
	r := New()
	r.GET("/v1/threads/{root}", func(ctx *fasthttp.RequestCtx) {
		_ = WriteJSON(ctx, map[string]string{"root": PathParam(ctx, "root")})
	})
	r.POST("/v1/threads/{root}/ensure", func(ctx *fasthttp.RequestCtx) {
		_ = WriteJSON(ctx, map[string]string{"opener": QueryParam(ctx, "opener")})
	})

	ctx := serve(r, "GET", "/v1/threads/abc")
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200 got %d", ctx.Response.StatusCode())
	}
	var out map[string]string
	if err := json.Unmarshal(ctx.Response.Body(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["root"] != "abc" {
		t.Fatalf("unexpected root param %q", out["root"])
	}

	ctx = serve(r, "POST", "/v1/threads/abc/ensure?opener=xyz")
	out = nil
	if err := json.Unmarshal(ctx.Response.Body(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["opener"] != "xyz" {
		t.Fatalf("unexpected opener %q", out["opener"])
	}
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	r := New()
	r.GET("/v1/events/{id}", func(ctx *fasthttp.RequestCtx) {})

	if ctx := serve(r, "GET", "/v1/nope"); ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("expected 404 got %d", ctx.Response.StatusCode())
	}
	if ctx := serve(r, "GET", "/v1/events/"); ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("empty param should not match, got %d", ctx.Response.StatusCode())
	}
	ctx := serve(r, "DELETE", "/v1/events/x")
	if ctx.Response.StatusCode() != fasthttp.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", ctx.Response.StatusCode())
	}
	if got := string(ctx.Response.Header.Peek("Allow")); got != "GET" {
		t.Fatalf("unexpected Allow header %q", got)
	}

	r.NotFound(func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusTeapot) })
	if ctx := serve(r, "GET", "/missing"); ctx.Response.StatusCode() != fasthttp.StatusTeapot {
		t.Fatalf("custom not found not used, got %d", ctx.Response.StatusCode())
	}
}
