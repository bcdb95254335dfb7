package thread

import (
	"context"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"nostrly/pkg/logger"
	"nostrly/pkg/models"
)

// ChainResolver walks reply-parent links from a leaf toward its root.
type ChainResolver struct {
	events    EventStore
	fetcher   Fetcher
	maxHops   int
	maxRounds int
	timeout   time.Duration
}

func NewChainResolver(events EventStore, fetcher Fetcher, maxHops, maxRounds int, timeout time.Duration) *ChainResolver {
	if maxHops <= 0 {
		maxHops = 100
	}
	if maxRounds <= 0 {
		maxRounds = 3
	}
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &ChainResolver{events: events, fetcher: fetcher, maxHops: maxHops, maxRounds: maxRounds, timeout: timeout}
}

// Resolve returns the ancestors of leaf, nearest parent first. The leaf is
// not included. A parent that cannot be found ends the chain.
//
// Each round walks as far as local data allows, then fetches the missing
// parent together with the declared root in one batched request. If a
// round's fetch yields nothing the chain collected so far is returned.
func (r *ChainResolver) Resolve(ctx context.Context, leaf nostr.Event) []nostr.Event {
	if leaf.ID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	known := map[string]nostr.Event{leaf.ID: leaf}
	chain, missing := r.walk(leaf, known)
	rounds := 0
	for missing != "" && rounds < r.maxRounds && ctx.Err() == nil {
		rounds++
		batch := []string{missing}
		if root := models.RootID(&leaf); root != "" {
			if _, ok := known[root]; !ok && root != missing {
				batch = append(batch, root)
			}
		}
		got := r.fetcher.FetchMany(ctx, batch)
		if _, ok := got[missing]; !ok {
			logger.Debug("chain_parent_unresolved", "leaf", leaf.ID, "parent", missing, "depth", len(chain))
			for id, ev := range got {
				known[id] = ev
			}
			break
		}
		for id, ev := range got {
			known[id] = ev
		}
		chain, missing = r.walk(leaf, known)
	}
	chainRounds.Observe(float64(rounds))
	return chain
}

// walk follows parent links using known and the local store only. It
// returns the chain built so far and the first parent id that could not be
// resolved locally, or "" when the walk ended for another reason.
func (r *ChainResolver) walk(leaf nostr.Event, known map[string]nostr.Event) ([]nostr.Event, string) {
	var chain []nostr.Event
	seen := map[string]struct{}{leaf.ID: {}}
	cur := leaf
	for hops := 0; hops < r.maxHops; hops++ {
		pid := models.ReplyParentID(&cur)
		if pid == "" {
			return chain, ""
		}
		if _, dup := seen[pid]; dup {
			logger.Debug("chain_cycle_detected", "leaf", leaf.ID, "at", pid)
			return chain, ""
		}
		seen[pid] = struct{}{}

		parent, ok := known[pid]
		if !ok {
			parent, ok = r.events.Get(pid)
			if !ok {
				return chain, pid
			}
			known[pid] = parent
		}
		chain = append(chain, parent)
		cur = parent
	}
	logger.Warn("chain_hop_limit", "leaf", leaf.ID, "hops", r.maxHops)
	return chain, ""
}
