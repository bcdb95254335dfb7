package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"nostrly/pkg/models"
	"nostrly/pkg/router"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nostrly_api_requests_total",
		Help: "API requests by route and status code.",
	}, []string{"route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nostrly_api_request_duration_seconds",
		Help:    "API request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// Engine is the thread engine surface the API serves.
type Engine interface {
	GetEvent(ctx context.Context, id string) (nostr.Event, bool)
	StoreEvent(ev nostr.Event)
	GetThread(ctx context.Context, rootID string) models.ThreadData
	EnsureThread(ctx context.Context, rootID, openerID string) models.ThreadData
}

// Server holds the handlers for the JSON API.
type Server struct {
	engine  Engine
	timeout time.Duration
}

// New returns a Server. timeout bounds the work done for one request; zero
// leaves requests bounded only by the engine's own budgets.
func New(engine Engine, timeout time.Duration) *Server {
	return &Server{engine: engine, timeout: timeout}
}

// wrapHTTPHandler wraps an http.Handler to work with fasthttp.
func wrapHTTPHandler(h http.Handler) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(h)
}

// instrument records count and latency for a route.
func instrument(name string, h fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		h(ctx)
		requestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		requestsTotal.WithLabelValues(name, strconv.Itoa(ctx.Response.StatusCode())).Inc()
	}
}

// RegisterRoutes wires the API routes onto r.
func (s *Server) RegisterRoutes(r *router.Router) {
	r.GET("/v1/events/{id}", instrument("get_event", s.GetEvent))
	r.POST("/v1/events", instrument("store_event", s.StoreEvent))

	r.GET("/v1/threads/{root}", instrument("get_thread", s.GetThread))
	r.POST("/v1/threads/{root}/ensure", instrument("ensure_thread", s.EnsureThread))

	r.GET("/metrics", wrapHTTPHandler(promhttp.Handler()))
}

// Handler returns a fasthttp handler serving only the API routes.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()
	s.RegisterRoutes(r)
	return r.Handler
}

// requestContext returns the context for engine calls. It is not derived from
// the fasthttp.RequestCtx, which is recycled once the handler returns while
// background work started by the engine may still hold the context.
func (s *Server) requestContext() (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), s.timeout)
}
