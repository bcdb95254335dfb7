package store

import (
	"encoding/json"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"nostrly/pkg/logger"
	"nostrly/pkg/models"
)

// Option configures an EventStore or ThreadStore.
type Option func(*table)

// WithClock overrides the time source used for cached_at/expires_at.
func WithClock(now func() time.Time) Option {
	return func(t *table) { t.now = now }
}

// EventStore persists immutable events with a fixed TTL. Storage errors are
// logged and degrade to misses; they never reach the caller.
type EventStore struct {
	t   table
	ttl time.Duration
}

func NewEventStore(db *DB, ttl time.Duration, opts ...Option) *EventStore {
	s := &EventStore{
		t:   table{db: db, name: "events", prefix: EventPrefix, expiryPrefix: EventExpiryPrefix, now: time.Now},
		ttl: ttl,
	}
	for _, o := range opts {
		o(&s.t)
	}
	return s
}

// Put upserts ev. Events without an id are ignored.
func (s *EventStore) Put(ev nostr.Event) {
	if ev.ID == "" {
		return
	}
	now := s.t.now()
	rec := models.StoredEvent{
		ID:        ev.ID,
		Event:     ev,
		CachedAt:  now.UnixNano(),
		ExpiresAt: now.Add(s.ttl).UnixNano(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		logger.Warn("event_store_marshal_failed", "id", ev.ID, "error", err)
		opsTotal.WithLabelValues("events", "put", "error").Inc()
		return
	}
	if err := s.t.put(ev.ID, data, rec.ExpiresAt); err != nil {
		logger.Warn("event_store_put_failed", "id", ev.ID, "error", err)
		opsTotal.WithLabelValues("events", "put", "error").Inc()
		return
	}
	opsTotal.WithLabelValues("events", "put", "ok").Inc()
}

// PutMany stores each event independently; one failure does not stop the rest.
func (s *EventStore) PutMany(evs []nostr.Event) {
	for _, ev := range evs {
		s.Put(ev)
	}
}

// Get returns the event for id if it is stored and unexpired.
func (s *EventStore) Get(id string) (nostr.Event, bool) {
	rec, ok := s.getRecord(id)
	if !ok {
		return nostr.Event{}, false
	}
	return rec.Event, true
}

// GetRecord returns the stored envelope, including cache timestamps.
func (s *EventStore) GetRecord(id string) (models.StoredEvent, bool) {
	return s.getRecord(id)
}

func (s *EventStore) getRecord(id string) (models.StoredEvent, bool) {
	if id == "" {
		return models.StoredEvent{}, false
	}
	v, ok, err := s.t.get(id)
	if err != nil {
		logger.Warn("event_store_get_failed", "id", id, "error", err)
		opsTotal.WithLabelValues("events", "get", "error").Inc()
		return models.StoredEvent{}, false
	}
	if !ok {
		opsTotal.WithLabelValues("events", "get", "miss").Inc()
		return models.StoredEvent{}, false
	}
	var rec models.StoredEvent
	if err := json.Unmarshal(v, &rec); err != nil {
		logger.Warn("event_store_decode_failed", "id", id, "error", err)
		opsTotal.WithLabelValues("events", "get", "error").Inc()
		return models.StoredEvent{}, false
	}
	opsTotal.WithLabelValues("events", "get", "hit").Inc()
	return rec, true
}

// GetMany returns the found, unexpired events keyed by id.
func (s *EventStore) GetMany(ids []string) map[string]nostr.Event {
	out := make(map[string]nostr.Event, len(ids))
	for _, id := range ids {
		if _, seen := out[id]; seen {
			continue
		}
		if ev, ok := s.Get(id); ok {
			out[id] = ev
		}
	}
	return out
}

// Delete removes id. Missing ids are ignored.
func (s *EventStore) Delete(id string) {
	if id == "" {
		return
	}
	if err := s.t.remove(id); err != nil {
		logger.Warn("event_store_delete_failed", "id", id, "error", err)
		opsTotal.WithLabelValues("events", "delete", "error").Inc()
		return
	}
	opsTotal.WithLabelValues("events", "delete", "ok").Inc()
}

// SweepExpired removes every expired event and returns the count removed.
func (s *EventStore) SweepExpired() int {
	n, err := s.t.sweep()
	if err != nil {
		logger.Error("event_store_sweep_failed", "error", err)
		opsTotal.WithLabelValues("events", "sweep", "error").Inc()
		return n
	}
	sweptTotal.WithLabelValues("events").Add(float64(n))
	opsTotal.WithLabelValues("events", "sweep", "ok").Inc()
	return n
}

// Count returns the number of stored events, including not yet swept ones.
func (s *EventStore) Count() int {
	n, err := s.t.count()
	if err != nil {
		logger.Warn("event_store_count_failed", "error", err)
	}
	return n
}
