package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/time/rate"

	"nostrly/pkg/logger"
)

// PoolConfig configures a relay Pool.
type PoolConfig struct {
	URLs        []string
	RPS         float64
	Burst       int
	DialTimeout time.Duration
}

// Pool queries every configured relay in parallel and merges the results.
type Pool struct {
	urls    []string
	dialer  *websocket.Dialer
	limiter *rate.Limiter
}

func NewPool(cfg PoolConfig) *Pool {
	dialer := *websocket.DefaultDialer
	if cfg.DialTimeout > 0 {
		dialer.HandshakeTimeout = cfg.DialTimeout
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Pool{
		urls:    append([]string(nil), cfg.URLs...),
		dialer:  &dialer,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (p *Pool) Relays() []string {
	return append([]string(nil), p.urls...)
}

// FetchEvents sends filter to all relays and returns the union of their
// events, deduplicated by id. It fails only when no relay produced anything
// and at least one relay errored.
func (p *Pool) FetchEvents(ctx context.Context, filter nostr.Filter) ([]nostr.Event, error) {
	if len(p.urls) == 0 {
		return nil, ErrNoRelays
	}

	type result struct {
		url    string
		events []nostr.Event
		err    error
	}
	results := make(chan result, len(p.urls))
	var wg sync.WaitGroup
	for _, url := range p.urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			if err := p.limiter.Wait(ctx); err != nil {
				results <- result{url: url, err: err}
				return
			}
			start := time.Now()
			evs, err := query(ctx, p.dialer, url, filter)
			reqDuration.WithLabelValues(url).Observe(time.Since(start).Seconds())
			results <- result{url: url, events: evs, err: err}
		}(url)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	seen := make(map[string]struct{})
	var out []nostr.Event
	var errs []error
	for r := range results {
		eventsTotal.WithLabelValues(r.url).Add(float64(len(r.events)))
		if r.err != nil {
			reqTotal.WithLabelValues(r.url, "error").Inc()
			logger.Warn("relay_req_failed", "relay", r.url, "events", len(r.events), "error", r.err)
			errs = append(errs, r.err)
		} else {
			reqTotal.WithLabelValues(r.url, "ok").Inc()
		}
		for _, ev := range r.events {
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}
			out = append(out, ev)
		}
	}

	if len(out) == 0 && len(errs) == len(p.urls) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
