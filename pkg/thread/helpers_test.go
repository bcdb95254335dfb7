package thread

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"nostrly/pkg/fetch"
	"nostrly/pkg/store"
)

// fakeRelays serves id lookups from byID and answers tag queries with the
// next queued subtree response (the last one repeats).
type fakeRelays struct {
	mu           sync.Mutex
	byID         map[string]nostr.Event
	subtree      [][]nostr.Event
	subtreeCalls int
	idCalls      int
	failIDs      bool
	failSubtree  bool
}

func newFakeRelays(evs ...nostr.Event) *fakeRelays {
	f := &fakeRelays{byID: map[string]nostr.Event{}}
	for _, ev := range evs {
		f.byID[ev.ID] = ev
	}
	return f
}

func (f *fakeRelays) queueSubtree(evs ...nostr.Event) {
	f.mu.Lock()
	f.subtree = append(f.subtree, evs)
	f.mu.Unlock()
}

func (f *fakeRelays) FetchEvents(_ context.Context, filter nostr.Filter) ([]nostr.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(filter.IDs) > 0 {
		f.idCalls++
		if f.failIDs {
			return nil, errors.New("relay down")
		}
		var out []nostr.Event
		for _, id := range filter.IDs {
			if ev, ok := f.byID[id]; ok {
				out = append(out, ev)
			}
		}
		return out, nil
	}
	f.subtreeCalls++
	if f.failSubtree {
		return nil, errors.New("relay down")
	}
	if len(f.subtree) == 0 {
		return nil, nil
	}
	resp := f.subtree[0]
	if len(f.subtree) > 1 {
		f.subtree = f.subtree[1:]
	}
	return append([]nostr.Event(nil), resp...), nil
}

type harness struct {
	db      *store.DB
	events  *store.EventStore
	threads *store.ThreadStore
	relays  *fakeRelays
	dedup   *fetch.Deduplicator
}

func newHarness(t *testing.T, relays *fakeRelays) *harness {
	t.Helper()
	db, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	h := &harness{
		db:      db,
		events:  store.NewEventStore(db, time.Hour),
		threads: store.NewThreadStore(db, time.Hour),
		relays:  relays,
	}
	h.dedup = fetch.New(h.events, relays, fetch.Options{Timeout: time.Second, Grace: 2 * time.Second})
	return h
}

func (h *harness) engine() *Engine {
	return NewEngine(h.events, h.threads, h.dedup, h.relays, Config{
		SubtreeTimeout: time.Second,
		ChainTimeout:   2 * time.Second,
	})
}

func event(id string, createdAt int64, tags ...nostr.Tag) nostr.Event {
	return nostr.Event{ID: id, PubKey: "pk", CreatedAt: nostr.Timestamp(createdAt), Kind: 1, Tags: nostr.Tags(tags)}
}

func rootTag(id string) nostr.Tag  { return nostr.Tag{"e", id, "", "root"} }
func replyTag(id string) nostr.Tag { return nostr.Tag{"e", id, "", "reply"} }

func ids(evs []nostr.Event) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.ID)
	}
	return out
}
