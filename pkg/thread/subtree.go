package thread

import (
	"context"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"nostrly/pkg/logger"
	"nostrly/pkg/models"
	"nostrly/pkg/transport"
)

// SubtreeOptions controls one subtree lookup.
type SubtreeOptions struct {
	// Since limits the relay query to events created at or after it.
	Since *nostr.Timestamp
	// Refresh skips the cached member list and always asks the relays.
	Refresh bool
}

// SubtreeFetcher returns the events that declare a given root as their
// thread root.
type SubtreeFetcher struct {
	events    EventStore
	index     ThreadIndex
	transport transport.Transport
	timeout   time.Duration
}

func NewSubtreeFetcher(events EventStore, index ThreadIndex, t transport.Transport, timeout time.Duration) *SubtreeFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SubtreeFetcher{events: events, index: index, transport: t, timeout: timeout}
}

// Fetch never fails; relay errors yield an empty subtree.
func (f *SubtreeFetcher) Fetch(ctx context.Context, rootID string, opts SubtreeOptions) []nostr.Event {
	if rootID == "" {
		return nil
	}

	if opts.Since == nil && !opts.Refresh {
		if ids, ok := f.index.GetThreadMembers(rootID); ok && len(ids) > 0 {
			found := f.events.GetMany(ids)
			out := make([]nostr.Event, 0, len(found))
			for _, id := range ids {
				if ev, ok := found[id]; ok {
					out = append(out, ev)
				}
			}
			subtreeFetches.WithLabelValues("index").Inc()
			logger.Debug("subtree_from_index", "root", rootID, "members", len(ids), "found", len(out))
			return out
		}
	}

	filter := nostr.Filter{Tags: nostr.TagMap{"e": []string{rootID}}, Since: opts.Since}
	qctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	evs, err := f.transport.FetchEvents(qctx, filter)
	if err != nil {
		subtreeFetches.WithLabelValues("error").Inc()
		logger.Warn("subtree_fetch_failed", "root", rootID, "error", err)
		return nil
	}
	subtreeFetches.WithLabelValues("relay").Inc()

	out := make([]nostr.Event, 0, len(evs))
	ids := make([]string, 0, len(evs))
	for _, ev := range evs {
		if !belongsToRoot(&ev, rootID) {
			subtreeRejected.Inc()
			continue
		}
		out = append(out, ev)
		ids = append(ids, ev.ID)
	}
	if len(out) > 0 {
		f.events.PutMany(out)
		f.index.AddThreadMembers(rootID, ids)
	}
	logger.Debug("subtree_from_relays", "root", rootID, "received", len(evs), "kept", len(out))
	return out
}

// belongsToRoot keeps only events that are not the root itself and name it
// with the "root" marker.
func belongsToRoot(ev *nostr.Event, rootID string) bool {
	if ev.ID == "" || ev.ID == rootID {
		return false
	}
	return models.MarksRoot(ev, rootID)
}
