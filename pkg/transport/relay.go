package transport

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"

	"nostrly/pkg/logger"
)

var subSeq atomic.Uint64

// query opens a websocket to one relay, sends a single REQ and collects
// events until EOSE, CLOSED, a read error or ctx expiry. Events gathered
// before a failure are returned alongside the error.
func query(ctx context.Context, dialer *websocket.Dialer, url string, filter nostr.Filter) ([]nostr.Event, error) {
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	// unblock ReadMessage when ctx ends
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
	}

	subID := fmt.Sprintf("nostrly-%d", subSeq.Add(1))
	req := nostr.ReqEnvelope{SubscriptionID: subID, Filters: nostr.Filters{filter}}
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("send REQ to %s: %w", url, err)
	}
	defer func() {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteJSON(nostr.CloseEnvelope(subID))
	}()

	var out []nostr.Event
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return out, fmt.Errorf("read %s: %w", url, ctx.Err())
			}
			return out, fmt.Errorf("read %s: %w", url, err)
		}
		switch env := nostr.ParseMessage(msg).(type) {
		case *nostr.EventEnvelope:
			if env.SubscriptionID == nil || *env.SubscriptionID != subID || env.ID == "" {
				continue
			}
			out = append(out, env.Event)
		case *nostr.EOSEEnvelope:
			if string(*env) == subID {
				return out, nil
			}
		case *nostr.ClosedEnvelope:
			if env.SubscriptionID == subID {
				return out, fmt.Errorf("%w: %s: %s", ErrRelayClosed, url, env.Reason)
			}
		case *nostr.NoticeEnvelope:
			logger.Debug("relay_notice", "relay", url, "notice", string(*env))
		case nil:
			logger.Debug("relay_frame_invalid", "relay", url, "size", len(msg))
		}
	}
}
