package thread

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostrly/pkg/models"
)

func TestEnsureThread_RootAndReply(t *testing.T) {
	r1 := event("r1", 100)
	c1 := event("c1", 150, rootTag("r1"))
	relays := newFakeRelays(r1)
	relays.queueSubtree(c1)
	e := newHarness(t, relays).engine()

	td := e.EnsureThread(context.Background(), "r1", "")
	assert.Equal(t, []string{"r1", "c1"}, td.IDs())
	assert.Equal(t, "r1", td.RootID)
}

func TestEnsureThread_SecondFetchOutageKeepsItems(t *testing.T) {
	r1 := event("r1", 100)
	c1 := event("c1", 150, rootTag("r1"))
	relays := newFakeRelays(r1)
	relays.queueSubtree(c1)
	relays.queueSubtree() // outage: empty result
	h := newHarness(t, relays)
	e := h.engine()

	e.EnsureThread(context.Background(), "r1", "")
	td := e.EnsureThread(context.Background(), "r1", "")
	assert.Equal(t, []string{"r1", "c1"}, td.IDs())
	assert.Equal(t, 2, relays.subtreeCalls, "second call re-fetches")

	members, ok := h.threads.GetThreadMembers("r1")
	require.True(t, ok)
	assert.Equal(t, []string{"c1"}, members, "persisted index does not regress")
}

func TestEnsureThread_FirstCallRevalidatesPersistedIndex(t *testing.T) {
	relays := newFakeRelays(event("r", 1))
	relays.queueSubtree(event("new", 3, rootTag("r")))
	h := newHarness(t, relays)
	h.events.Put(event("old", 2, rootTag("r")))
	h.threads.AddThreadMembers("r", []string{"old"})

	td := h.engine().EnsureThread(context.Background(), "r", "")
	assert.Equal(t, 1, relays.subtreeCalls, "a fresh session still asks the relays")
	assert.Contains(t, td.IDs(), "new")

	members, ok := h.threads.GetThreadMembers("r")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"old", "new"}, members)
}

func TestEnsureThread_NothingFoundIsNotCached(t *testing.T) {
	relays := newFakeRelays()
	e := newHarness(t, relays).engine()

	td := e.EnsureThread(context.Background(), "ghost", "op")
	assert.Equal(t, "ghost", td.RootID)
	assert.Equal(t, "op", td.OpenerID)
	assert.NotNil(t, td.Items)
	assert.Empty(t, td.Items)
	assert.Zero(t, e.Cache().Len())
}

func TestEnsureThread_OpenerChain(t *testing.T) {
	r1 := event("r1", 100)
	c1 := event("c1", 150, rootTag("r1"), replyTag("r1"))
	// c2 names its root without a marker, so the subtree filter misses it
	c2 := event("c2", 160, []string{"e", "r1"}, []string{"e", "c1"})
	relays := newFakeRelays(r1, c1, c2)
	relays.queueSubtree(c1, c2)
	e := newHarness(t, relays).engine()

	td := e.EnsureThread(context.Background(), "r1", "c2")
	assert.Equal(t, []string{"r1", "c1", "c2"}, td.IDs())
	assert.Equal(t, "c2", td.OpenerID)
	assert.True(t, td.Has(td.OpenerID))

	td = e.EnsureThread(context.Background(), "r1", "")
	assert.Equal(t, "c2", td.OpenerID, "opener survives a call without one")
}

func TestEnsureThread_SortsWithTiebreak(t *testing.T) {
	relays := newFakeRelays(event("r", 100))
	relays.queueSubtree(
		event("b", 200, rootTag("r")),
		event("a", 200, rootTag("r")),
		event("early", 50, rootTag("r")), // authors can lie about time
	)
	e := newHarness(t, relays).engine()

	td := e.EnsureThread(context.Background(), "r", "")
	assert.Equal(t, []string{"early", "r", "a", "b"}, td.IDs())
}

func TestEnsureThread_EmptyRootIsNoop(t *testing.T) {
	relays := newFakeRelays()
	e := newHarness(t, relays).engine()

	td := e.EnsureThread(context.Background(), "", "x")
	assert.Empty(t, td.Items)
	assert.Zero(t, relays.idCalls+relays.subtreeCalls)
	assert.Zero(t, e.Cache().Len())
}

func TestEnsureThread_ConcurrentCallsComposeMonotonically(t *testing.T) {
	relays := newFakeRelays(event("r", 1))
	relays.queueSubtree(event("a", 2, rootTag("r")))
	relays.queueSubtree(event("b", 3, rootTag("r")))
	relays.queueSubtree(event("c", 4, rootTag("r")))
	e := newHarness(t, relays).engine()

	e.EnsureThread(context.Background(), "r", "")
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.EnsureThread(context.Background(), "r", "")
		}()
	}
	wg.Wait()

	td, ok := e.Cache().Get("r")
	require.True(t, ok)
	assert.Equal(t, []string{"r", "a", "b", "c"}, td.IDs())
}

func TestMergeIsMonotonic(t *testing.T) {
	c := NewCache()
	s := []nostr.Event{event("s1", 5), event("s2", 1)}
	a := []nostr.Event{event("a1", 3), event("s1", 5)}
	b := []nostr.Event{event("b1", 9), event("", 2)}

	c.Merge("r", s, "")
	c.Merge("r", a, "")
	td := c.Merge("r", b, "")
	c.Merge("r", nil, "")

	got, _ := c.Get("r")
	assert.Equal(t, td, got)
	assert.ElementsMatch(t, []string{"s1", "s2", "a1", "b1"}, got.IDs())
	for i := 1; i < len(got.Items); i++ {
		assert.LessOrEqual(t, got.Items[i-1].CreatedAt, got.Items[i].CreatedAt)
	}
}

func TestGetThread_LazySeed(t *testing.T) {
	relays := newFakeRelays(event("r", 1))
	e := newHarness(t, relays).engine()

	td := e.GetThread(context.Background(), "r")
	assert.Equal(t, []string{"r"}, td.IDs())

	missing := e.GetThread(context.Background(), "nope")
	assert.Empty(t, missing.Items)
	assert.Equal(t, "nope", missing.RootID)
	assert.Equal(t, 1, e.Cache().Len(), "unresolvable roots are not cached")
}

// countingIndex records AddThreadMembers calls so tests can tell when a
// background ensure has finished touching the store.
type countingIndex struct {
	ThreadIndex
	mu   sync.Mutex
	adds int
}

func (c *countingIndex) AddThreadMembers(rootID string, ids []string) {
	c.ThreadIndex.AddThreadMembers(rootID, ids)
	c.mu.Lock()
	c.adds++
	c.mu.Unlock()
}

func (c *countingIndex) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adds
}

func TestGetThread_BackgroundEnsure(t *testing.T) {
	relays := newFakeRelays(event("r", 1))
	relays.queueSubtree(event("a", 2, rootTag("r")))
	h := newHarness(t, relays)
	idx := &countingIndex{ThreadIndex: h.threads}
	e := NewEngine(h.events, idx, h.dedup, relays, Config{BackgroundEnsure: true})
	t.Cleanup(e.Wait)

	td := e.GetThread(context.Background(), "r")
	assert.Equal(t, "r", td.RootID)

	// one write from the subtree fetch, one from the engine
	require.Eventually(t, func() bool { return idx.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	td, _ = e.Cache().Get("r")
	assert.Equal(t, []string{"r", "a"}, td.IDs())
}

func TestGetThread_UnresolvedRootStillEnsures(t *testing.T) {
	relays := newFakeRelays() // root itself is unreachable
	relays.queueSubtree(event("a", 2, rootTag("r")), event("b", 3, rootTag("r")))
	h := newHarness(t, relays)
	e := NewEngine(h.events, h.threads, h.dedup, relays, Config{BackgroundEnsure: true})
	t.Cleanup(e.Wait)

	td := e.GetThread(context.Background(), "r")
	assert.Equal(t, "r", td.RootID)
	assert.Empty(t, td.Items)

	require.Eventually(t, func() bool {
		td, ok := e.Cache().Get("r")
		return ok && len(td.Items) == 2
	}, 2*time.Second, 10*time.Millisecond)
	e.Wait()
	assert.Equal(t, []string{"a", "b"}, e.GetThread(context.Background(), "r").IDs())
}

func TestGetThread_OneBackgroundEnsurePerRoot(t *testing.T) {
	relays := newFakeRelays()
	h := newHarness(t, relays)
	e := NewEngine(h.events, h.threads, h.dedup, relays, Config{BackgroundEnsure: true})
	e.pending.Store("r", struct{}{}) // an ensure is already running

	e.GetThread(context.Background(), "r")
	e.Wait()
	relays.mu.Lock()
	defer relays.mu.Unlock()
	assert.Zero(t, relays.subtreeCalls)
}

func TestStoreEvent_RepostStoresEmbedded(t *testing.T) {
	h := newHarness(t, newFakeRelays())
	e := h.engine()

	orig := nostr.Event{
		ID:        strings.Repeat("a", 64),
		PubKey:    strings.Repeat("b", 64),
		CreatedAt: 1700000000,
		Kind:      models.KindTextNote,
		Tags:      nostr.Tags{},
		Content:   "original",
	}
	raw, err := json.Marshal(orig)
	require.NoError(t, err)

	e.StoreEvent(nostr.Event{ID: "repost", Kind: models.KindRepost, CreatedAt: 1700000100, Content: string(raw)})
	e.StoreEvent(nostr.Event{ID: "bad-repost", Kind: models.KindRepost, Content: "not json"})
	e.StoreEvent(nostr.Event{Content: "no id"})

	_, ok := h.events.Get("repost")
	assert.True(t, ok)
	got, ok := h.events.Get(orig.ID)
	require.True(t, ok)
	assert.Equal(t, "original", got.Content)
	_, ok = h.events.Get("bad-repost")
	assert.True(t, ok, "the repost itself is stored even when its content is not an event")
}

func TestGetEvent(t *testing.T) {
	relays := newFakeRelays(event("x", 1))
	e := newHarness(t, relays).engine()

	ev, ok := e.GetEvent(context.Background(), "x")
	require.True(t, ok)
	assert.Equal(t, "x", ev.ID)
	_, ok = e.GetEvent(context.Background(), "missing")
	assert.False(t, ok)
}
