package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/nbd-wtf/go-nostr"

	"nostrly/pkg/logger"
	"nostrly/pkg/transport"
)

// EventCache is the slice of the event store the deduplicator needs.
type EventCache interface {
	Get(id string) (nostr.Event, bool)
	GetMany(ids []string) map[string]nostr.Event
	PutMany(evs []nostr.Event)
}

// Options tunes a Deduplicator.
type Options struct {
	// Timeout bounds each transport request.
	Timeout time.Duration
	// Grace is how long a resolved entry stays in the in-flight table so that
	// late callers share its result. The table TTL starts at registration, so
	// Grace is raised to Timeout plus graceMargin when it is shorter; otherwise
	// an entry could expire while its request is still outstanding.
	Grace time.Duration
	// Capacity caps the in-flight table; zero means unbounded. With a cap, an
	// entry evicted under pressure can lead to a second fetch for the same id.
	Capacity int
}

// graceMargin covers the gap between a request timing out and its entry
// being resolved.
const graceMargin = 250 * time.Millisecond

type pending struct {
	done  chan struct{}
	ev    nostr.Event
	found bool
}

// Deduplicator guarantees at most one outstanding transport request per
// event id. Concurrent callers for the same id share one pending result.
type Deduplicator struct {
	cache     EventCache
	transport transport.Transport
	timeout   time.Duration

	mu       sync.Mutex
	inflight *expirable.LRU[string, *pending]
}

func New(cache EventCache, t transport.Transport, opts Options) *Deduplicator {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.Grace <= 0 {
		opts.Grace = 5 * time.Minute
	}
	if floor := opts.Timeout + graceMargin; opts.Grace < floor {
		logger.Warn("inflight_grace_raised", "grace", opts.Grace, "timeout", opts.Timeout, "raised_to", floor)
		opts.Grace = floor
	}
	return &Deduplicator{
		cache:     cache,
		transport: t,
		timeout:   opts.Timeout,
		inflight:  expirable.NewLRU[string, *pending](opts.Capacity, nil, opts.Grace),
	}
}

// FetchByID returns the event for id from the store, an in-flight fetch, or a
// new transport request. Failures and timeouts resolve to absent.
func (d *Deduplicator) FetchByID(ctx context.Context, id string) (nostr.Event, bool) {
	if id == "" {
		return nostr.Event{}, false
	}
	if ev, ok := d.cache.Get(id); ok {
		cacheHits.Inc()
		return ev, true
	}
	cacheMisses.Inc()

	d.mu.Lock()
	p, ok := d.inflight.Get(id)
	if ok {
		requestsCoalesced.Inc()
		d.mu.Unlock()
	} else {
		p = &pending{done: make(chan struct{})}
		d.inflight.Add(id, p)
		d.mu.Unlock()
		go d.run(ctx, map[string]*pending{id: p})
	}
	return wait(ctx, p)
}

// FetchMany resolves a batch of ids. Cached ids come from the store, ids
// already in flight are awaited, and the rest go out in one combined request.
// The result only holds ids that were found.
func (d *Deduplicator) FetchMany(ctx context.Context, ids []string) map[string]nostr.Event {
	ids = unique(ids)
	out := d.cache.GetMany(ids)
	cacheHits.Add(float64(len(out)))

	waits := make(map[string]*pending)
	mine := make(map[string]*pending)
	d.mu.Lock()
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		cacheMisses.Inc()
		if p, ok := d.inflight.Get(id); ok {
			requestsCoalesced.Inc()
			waits[id] = p
			continue
		}
		p := &pending{done: make(chan struct{})}
		d.inflight.Add(id, p)
		mine[id] = p
		waits[id] = p
	}
	d.mu.Unlock()

	if len(mine) > 0 {
		go d.run(ctx, mine)
	}
	for id, p := range waits {
		if ev, ok := wait(ctx, p); ok {
			out[id] = ev
		}
	}
	return out
}

// InFlight returns the number of entries in the in-flight table, resolved
// entries still inside their grace window included.
func (d *Deduplicator) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight.Len()
}

// run performs one transport request for every id in batch and resolves the
// pending entries. It is detached from the caller's cancellation so an
// abandoned request still fills the cache.
func (d *Deduplicator) run(ctx context.Context, batch map[string]*pending) {
	ids := make([]string, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	evs, err := d.transport.FetchEvents(wctx, nostr.Filter{IDs: ids, Limit: len(ids)})
	if err != nil {
		transportCalls.WithLabelValues("error").Inc()
		logger.Warn("event_fetch_failed", "ids", len(ids), "error", err)
	} else {
		transportCalls.WithLabelValues("ok").Inc()
	}

	found := make(map[string]nostr.Event, len(evs))
	for _, ev := range evs {
		if _, want := batch[ev.ID]; want {
			found[ev.ID] = ev
		}
	}
	if len(found) > 0 {
		toStore := make([]nostr.Event, 0, len(found))
		for _, ev := range found {
			toStore = append(toStore, ev)
		}
		d.cache.PutMany(toStore)
	}
	logger.Debug("event_fetch_resolved", "requested", len(ids), "found", len(found))

	d.mu.Lock()
	for id, p := range batch {
		if ev, ok := found[id]; ok {
			p.ev, p.found = ev, true
		}
		close(p.done)
		// restart the grace window from resolution
		if cur, ok := d.inflight.Peek(id); ok && cur == p {
			d.inflight.Add(id, p)
		}
	}
	d.mu.Unlock()
}

func wait(ctx context.Context, p *pending) (nostr.Event, bool) {
	select {
	case <-p.done:
		return p.ev, p.found
	case <-ctx.Done():
		return nostr.Event{}, false
	}
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
