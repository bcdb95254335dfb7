package fetch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostrly/pkg/store"
	"nostrly/pkg/transport"
)

// gatedTransport counts calls and blocks each one until release is closed.
type gatedTransport struct {
	calls   atomic.Int32
	release chan struct{}
	events  map[string]nostr.Event
	err     error

	mu      sync.Mutex
	filters []nostr.Filter
}

func newGated(evs ...nostr.Event) *gatedTransport {
	g := &gatedTransport{release: make(chan struct{}), events: map[string]nostr.Event{}}
	for _, ev := range evs {
		g.events[ev.ID] = ev
	}
	return g
}

func (g *gatedTransport) FetchEvents(ctx context.Context, f nostr.Filter) ([]nostr.Event, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.filters = append(g.filters, f)
	g.mu.Unlock()
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	var out []nostr.Event
	for _, id := range f.IDs {
		if ev, ok := g.events[id]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (g *gatedTransport) Filters() []nostr.Filter {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]nostr.Filter(nil), g.filters...)
}

func newStore(t *testing.T) *store.EventStore {
	t.Helper()
	db, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.NewEventStore(db, time.Hour)
}

func note(id string) nostr.Event {
	return nostr.Event{ID: id, PubKey: "pk", CreatedAt: 100, Kind: 1, Content: id}
}

func TestFetchByID_ConcurrentCallersShareOneRequest(t *testing.T) {
	tr := newGated(note("a"))
	d := New(newStore(t), tr, Options{Timeout: 5 * time.Second, Grace: time.Minute})

	const n = 50
	var wg sync.WaitGroup
	results := make([]nostr.Event, n)
	oks := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], oks[i] = d.FetchByID(context.Background(), "a")
		}(i)
	}

	require.Eventually(t, func() bool { return tr.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(tr.release)
	wg.Wait()

	assert.Equal(t, int32(1), tr.calls.Load())
	for i := 0; i < n; i++ {
		assert.True(t, oks[i])
		assert.Equal(t, "a", results[i].ID)
	}
}

func TestFetchByID_StoreHitSkipsTransport(t *testing.T) {
	es := newStore(t)
	es.Put(note("a"))
	tr := newGated()
	close(tr.release)
	d := New(es, tr, Options{})

	ev, ok := d.FetchByID(context.Background(), "a")
	require.True(t, ok)
	assert.Equal(t, "a", ev.ID)
	assert.Zero(t, tr.calls.Load())
	assert.Zero(t, d.InFlight())
}

func TestFetchByID_PersistsResult(t *testing.T) {
	es := newStore(t)
	tr := newGated(note("a"))
	close(tr.release)
	d := New(es, tr, Options{})

	_, ok := d.FetchByID(context.Background(), "a")
	require.True(t, ok)
	_, ok = es.Get("a")
	assert.True(t, ok)

	_, ok = d.FetchByID(context.Background(), "a")
	assert.True(t, ok)
	assert.Equal(t, int32(1), tr.calls.Load())
}

func TestFetchByID_FailureResolvesAbsentAndHoldsForGrace(t *testing.T) {
	tr := newGated()
	tr.err = errors.New("relay down")
	close(tr.release)
	d := New(newStore(t), tr, Options{Timeout: 20 * time.Millisecond, Grace: 400 * time.Millisecond})

	_, ok := d.FetchByID(context.Background(), "a")
	assert.False(t, ok)
	_, ok = d.FetchByID(context.Background(), "a")
	assert.False(t, ok)
	assert.Equal(t, int32(1), tr.calls.Load(), "late caller inside grace shares the result")

	time.Sleep(500 * time.Millisecond)
	_, _ = d.FetchByID(context.Background(), "a")
	assert.Equal(t, int32(2), tr.calls.Load(), "after grace a new request is allowed")
}

func TestFetchByID_ShortGraceCannotOutliveOutstandingRequest(t *testing.T) {
	tr := newGated(note("a"))
	d := New(newStore(t), tr, Options{Timeout: 2 * time.Second, Grace: 50 * time.Millisecond})

	results := make(chan bool, 2)
	fetch := func() {
		_, ok := d.FetchByID(context.Background(), "a")
		results <- ok
	}
	go fetch()
	require.Eventually(t, func() bool { return tr.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// well past the configured grace, first request still outstanding
	time.Sleep(150 * time.Millisecond)
	go fetch()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), tr.calls.Load(), "one outstanding request per id")
	assert.Equal(t, 1, d.InFlight())

	close(tr.release)
	assert.True(t, <-results)
	assert.True(t, <-results)
	assert.Equal(t, int32(1), tr.calls.Load())
}

func TestFetchByID_TimeoutResolvesAbsent(t *testing.T) {
	tr := newGated(note("a")) // never released
	d := New(newStore(t), tr, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, ok := d.FetchByID(context.Background(), "a")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetchByID_AbandonedCallerStillFillsCache(t *testing.T) {
	es := newStore(t)
	tr := newGated(note("a"))
	d := New(es, tr, Options{Timeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() {
		_, ok := d.FetchByID(ctx, "a")
		done <- ok
	}()
	require.Eventually(t, func() bool { return tr.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.False(t, <-done)

	close(tr.release)
	require.Eventually(t, func() bool {
		_, ok := es.Get("a")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestFetchMany_BatchesAndJoinsInFlight(t *testing.T) {
	es := newStore(t)
	es.Put(note("cached"))
	tr := newGated(note("a"), note("b"), note("c"))
	d := New(es, tr, Options{Timeout: 5 * time.Second})

	single := make(chan bool)
	go func() {
		_, ok := d.FetchByID(context.Background(), "a")
		single <- ok
	}()
	require.Eventually(t, func() bool { return tr.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	many := make(chan map[string]nostr.Event)
	go func() {
		many <- d.FetchMany(context.Background(), []string{"cached", "a", "b", "c", "missing", "b", ""})
	}()
	require.Eventually(t, func() bool { return tr.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(tr.release)

	assert.True(t, <-single)
	got := <-many
	assert.Len(t, got, 4)
	for _, id := range []string{"cached", "a", "b", "c"} {
		assert.Contains(t, got, id)
	}

	filters := tr.Filters()
	require.Len(t, filters, 2)
	batch := append([]string(nil), filters[1].IDs...)
	sort.Strings(batch)
	assert.Equal(t, []string{"b", "c", "missing"}, batch, "in-flight and cached ids are not re-requested")
}

func TestFetchByID_EmptyID(t *testing.T) {
	d := New(newStore(t), transport.Unavailable{}, Options{})
	_, ok := d.FetchByID(context.Background(), "")
	assert.False(t, ok)
}
