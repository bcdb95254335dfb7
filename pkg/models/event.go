package models

import "github.com/nbd-wtf/go-nostr"

// StoredEvent is the persisted form of an event in the event store.
// Timestamps are unix nanoseconds.
type StoredEvent struct {
	ID        string      `json:"id"`
	Event     nostr.Event `json:"event"`
	CachedAt  int64       `json:"cachedAt"`
	ExpiresAt int64       `json:"expiresAt"`
}

// StoredThread is the persisted member list of a thread, keyed by root id.
type StoredThread struct {
	RootID    string   `json:"rootId"`
	EventIDs  []string `json:"eventIds"`
	CachedAt  int64    `json:"cachedAt"`
	ExpiresAt int64    `json:"expiresAt"`
}

// ThreadData is the in-memory view of a thread. Items are unique by id and
// sorted by created_at ascending.
type ThreadData struct {
	Items    []nostr.Event `json:"items"`
	RootID   string        `json:"rootId"`
	OpenerID string        `json:"openerId,omitempty"`
}

// IDs returns the ids of t.Items in order.
func (t ThreadData) IDs() []string {
	out := make([]string, 0, len(t.Items))
	for _, ev := range t.Items {
		out = append(out, ev.ID)
	}
	return out
}

// Has reports whether an item with the given id is present.
func (t ThreadData) Has(id string) bool {
	for _, ev := range t.Items {
		if ev.ID == id {
			return true
		}
	}
	return false
}
