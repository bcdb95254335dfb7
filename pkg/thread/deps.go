package thread

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
)

// EventStore is the part of the persistent event store used here.
type EventStore interface {
	Get(id string) (nostr.Event, bool)
	GetMany(ids []string) map[string]nostr.Event
	Put(ev nostr.Event)
	PutMany(evs []nostr.Event)
}

// ThreadIndex is the persistent root -> member ids mapping.
type ThreadIndex interface {
	GetThreadMembers(rootID string) ([]string, bool)
	AddThreadMembers(rootID string, ids []string)
}

// Fetcher resolves events by id with request deduplication.
type Fetcher interface {
	FetchByID(ctx context.Context, id string) (nostr.Event, bool)
	FetchMany(ctx context.Context, ids []string) map[string]nostr.Event
}
