package thread

import (
	"context"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/errgroup"

	"nostrly/pkg/logger"
	"nostrly/pkg/models"
	"nostrly/pkg/transport"
)

// Config tunes an Engine.
type Config struct {
	SubtreeTimeout time.Duration
	ChainTimeout   time.Duration
	MaxHops        int
	MaxChainRounds int
	// BackgroundEnsure makes GetThread start an EnsureThread for roots it
	// has no state for, so a first read is enriched without the reader
	// waiting.
	BackgroundEnsure bool
}

// Engine assembles threads from the root, its subtree and the opener's
// parent chain, and keeps the merged result for the session.
type Engine struct {
	events  EventStore
	index   ThreadIndex
	fetcher Fetcher
	subtree *SubtreeFetcher
	chain   *ChainResolver
	cache   *Cache
	cfg     Config

	// roots with a background ensure running
	pending sync.Map
	bg      sync.WaitGroup
}

func NewEngine(events EventStore, index ThreadIndex, fetcher Fetcher, t transport.Transport, cfg Config) *Engine {
	return &Engine{
		events:  events,
		index:   index,
		fetcher: fetcher,
		subtree: NewSubtreeFetcher(events, index, t, cfg.SubtreeTimeout),
		chain:   NewChainResolver(events, fetcher, cfg.MaxHops, cfg.MaxChainRounds, cfg.ChainTimeout),
		cache:   NewCache(),
		cfg:     cfg,
	}
}

// Cache exposes the in-memory thread cache.
func (e *Engine) Cache() *Cache { return e.cache }

// EnsureThread fetches everything known about rootID, merges it into the
// session state and returns the result. An empty rootID is a no-op.
//
// Every call asks the relays again. The merge is a union, so items seen
// earlier are kept even when a refresh returns less. Nothing is cached for a
// root when no event at all could be found for it.
func (e *Engine) EnsureThread(ctx context.Context, rootID, openerID string) models.ThreadData {
	if rootID == "" {
		return models.ThreadData{}
	}
	start := time.Now()
	defer func() { ensureDuration.Observe(time.Since(start).Seconds()) }()

	var (
		root     nostr.Event
		rootOK   bool
		sub      []nostr.Event
		opener   nostr.Event
		openerOK bool
		chain    []nostr.Event
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		root, rootOK = e.fetcher.FetchByID(gctx, rootID)
		return nil
	})
	g.Go(func() error {
		sub = e.subtree.Fetch(gctx, rootID, SubtreeOptions{Refresh: true})
		return nil
	})
	if openerID != "" && openerID != rootID {
		g.Go(func() error {
			opener, openerOK = e.fetcher.FetchByID(gctx, openerID)
			if openerOK {
				chain = e.chain.Resolve(gctx, opener)
			}
			return nil
		})
	}
	_ = g.Wait()

	candidates := make([]nostr.Event, 0, len(sub)+len(chain)+2)
	if rootOK {
		candidates = append(candidates, root)
	}
	candidates = append(candidates, sub...)
	candidates = append(candidates, chain...)
	if openerOK {
		candidates = append(candidates, opener)
	}
	fresh := dedupeSorted(candidates)
	if len(fresh) == 0 {
		if td, ok := e.cache.Get(rootID); ok {
			return td
		}
		logger.Debug("thread_unresolved", "root", rootID, "opener", openerID)
		return models.ThreadData{RootID: rootID, OpenerID: openerID, Items: []nostr.Event{}}
	}

	merged := e.cache.Merge(rootID, fresh, openerID)

	members := make([]string, 0, len(merged.Items))
	for _, ev := range merged.Items {
		if ev.ID != rootID {
			members = append(members, ev.ID)
		}
	}
	if len(members) > 0 {
		e.index.AddThreadMembers(rootID, members)
	}

	threadItems.Observe(float64(len(merged.Items)))
	logger.Debug("thread_ensured", "root", rootID, "opener", openerID,
		"root_found", rootOK, "subtree", len(sub), "chain", len(chain), "items", len(merged.Items))
	return merged
}

// GetThread returns the session state for rootID. When none exists it seeds
// one holding just the root event, if it can be resolved. With
// BackgroundEnsure set a full ensure is started either way, since replies
// may be reachable even when the root is not.
func (e *Engine) GetThread(ctx context.Context, rootID string) models.ThreadData {
	if rootID == "" {
		return models.ThreadData{}
	}
	if td, ok := e.cache.Get(rootID); ok {
		return td
	}
	root, ok := e.fetcher.FetchByID(ctx, rootID)
	td := models.ThreadData{RootID: rootID, Items: []nostr.Event{}}
	if ok {
		td = e.cache.SeedIfAbsent(root)
	}
	if e.cfg.BackgroundEnsure {
		e.ensureInBackground(context.WithoutCancel(ctx), rootID)
	}
	return td
}

// ensureInBackground runs at most one EnsureThread per root at a time.
func (e *Engine) ensureInBackground(ctx context.Context, rootID string) {
	if _, running := e.pending.LoadOrStore(rootID, struct{}{}); running {
		return
	}
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		defer e.pending.Delete(rootID)
		e.EnsureThread(ctx, rootID, "")
	}()
}

// Wait blocks until every background ensure has returned.
func (e *Engine) Wait() { e.bg.Wait() }

// GetEvent resolves a single event through the deduplicator.
func (e *Engine) GetEvent(ctx context.Context, id string) (nostr.Event, bool) {
	return e.fetcher.FetchByID(ctx, id)
}

// StoreEvent persists ev, plus the embedded original when ev is a repost.
func (e *Engine) StoreEvent(ev nostr.Event) {
	if ev.ID == "" {
		return
	}
	e.events.Put(ev)
	if !models.IsRepost(ev.Kind) {
		return
	}
	emb := models.ParseEmbedded(ev.Content)
	if !emb.Ok() {
		logger.Debug("repost_embedded_skipped", "id", ev.ID, "error", emb.Err)
		return
	}
	e.events.Put(emb.Event)
}
