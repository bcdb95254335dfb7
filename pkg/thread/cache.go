package thread

import (
	"sort"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"nostrly/pkg/models"
)

// Cache holds the in-memory ThreadData for each root seen this session.
// Merges are unions, so the member set of a root never shrinks.
type Cache struct {
	mu      sync.RWMutex
	threads map[string]models.ThreadData
}

func NewCache() *Cache {
	return &Cache{threads: make(map[string]models.ThreadData)}
}

// Get returns a copy of the thread for rootID.
func (c *Cache) Get(rootID string) (models.ThreadData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	td, ok := c.threads[rootID]
	if !ok {
		return models.ThreadData{}, false
	}
	return clone(td), true
}

// Merge unions items into the current state for rootID and returns the
// result. A non-empty openerID replaces the stored one.
func (c *Cache) Merge(rootID string, items []nostr.Event, openerID string) models.ThreadData {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.threads[rootID]
	cur.RootID = rootID
	cur.Items = mergeSorted(cur.Items, items)
	if openerID != "" {
		cur.OpenerID = openerID
	}
	c.threads[rootID] = cur
	return clone(cur)
}

// SeedIfAbsent stores a thread holding only root unless one already exists.
// It returns the stored thread.
func (c *Cache) SeedIfAbsent(root nostr.Event) models.ThreadData {
	c.mu.Lock()
	defer c.mu.Unlock()
	if td, ok := c.threads[root.ID]; ok {
		return clone(td)
	}
	td := models.ThreadData{RootID: root.ID, Items: []nostr.Event{root}}
	c.threads[root.ID] = td
	return clone(td)
}

// Forget drops the in-memory state for rootID.
func (c *Cache) Forget(rootID string) {
	c.mu.Lock()
	delete(c.threads, rootID)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.threads)
}

func clone(td models.ThreadData) models.ThreadData {
	td.Items = append([]nostr.Event(nil), td.Items...)
	return td
}

// dedupeSorted drops events without an id and repeated ids (first wins), then
// sorts by created_at ascending with the id as tiebreak.
func dedupeSorted(evs []nostr.Event) []nostr.Event {
	seen := make(map[string]struct{}, len(evs))
	out := make([]nostr.Event, 0, len(evs))
	for _, ev := range evs {
		if ev.ID == "" {
			continue
		}
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// mergeSorted is the union by id of prior and fresh. Prior entries win.
func mergeSorted(prior, fresh []nostr.Event) []nostr.Event {
	all := make([]nostr.Event, 0, len(prior)+len(fresh))
	all = append(all, prior...)
	all = append(all, fresh...)
	return dedupeSorted(all)
}
