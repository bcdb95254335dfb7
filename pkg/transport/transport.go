package transport

import (
	"context"
	"errors"

	"github.com/nbd-wtf/go-nostr"
)

var (
	ErrNoRelays    = errors.New("no relays configured")
	ErrRelayClosed = errors.New("relay closed subscription")
)

// Transport fetches events matching a filter from upstream relays. Results
// may be partial, empty or contain events seen in earlier calls.
type Transport interface {
	FetchEvents(ctx context.Context, filter nostr.Filter) ([]nostr.Event, error)
}

// Func adapts a plain function to Transport.
type Func func(ctx context.Context, filter nostr.Filter) ([]nostr.Event, error)

func (f Func) FetchEvents(ctx context.Context, filter nostr.Filter) ([]nostr.Event, error) {
	return f(ctx, filter)
}

// Unavailable is a transport with no upstream; every fetch fails with
// ErrNoRelays. Used when the cache runs offline.
type Unavailable struct{}

func (Unavailable) FetchEvents(context.Context, nostr.Filter) ([]nostr.Event, error) {
	return nil, ErrNoRelays
}
