package store

import (
	"encoding/json"
	"time"

	"nostrly/pkg/logger"
	"nostrly/pkg/models"
)

// ThreadStore maps a root event id to the ids known to belong to its thread.
// Failure semantics match EventStore.
type ThreadStore struct {
	t   table
	ttl time.Duration
}

func NewThreadStore(db *DB, ttl time.Duration, opts ...Option) *ThreadStore {
	s := &ThreadStore{
		t:   table{db: db, name: "threads", prefix: ThreadPrefix, expiryPrefix: ThreadExpiryPrefix, now: time.Now},
		ttl: ttl,
	}
	for _, o := range opts {
		o(&s.t)
	}
	return s
}

// PutThreadMembers replaces the member list for rootID.
func (s *ThreadStore) PutThreadMembers(rootID string, ids []string) {
	if rootID == "" {
		return
	}
	s.write(rootID, uniqueIDs(nil, ids), "put")
}

// AddThreadMembers unions ids into the cached member list for rootID, so the
// persisted membership only grows until the record expires.
func (s *ThreadStore) AddThreadMembers(rootID string, ids []string) {
	if rootID == "" {
		return
	}
	existing, _ := s.GetThreadMembers(rootID)
	merged := uniqueIDs(existing, ids)
	if len(merged) == 0 {
		return
	}
	s.write(rootID, merged, "add")
}

func (s *ThreadStore) write(rootID string, ids []string, op string) {
	now := s.t.now()
	rec := models.StoredThread{
		RootID:    rootID,
		EventIDs:  ids,
		CachedAt:  now.UnixNano(),
		ExpiresAt: now.Add(s.ttl).UnixNano(),
	}
	if rec.EventIDs == nil {
		rec.EventIDs = []string{}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		logger.Warn("thread_store_marshal_failed", "root", rootID, "error", err)
		opsTotal.WithLabelValues("threads", op, "error").Inc()
		return
	}
	if err := s.t.put(rootID, data, rec.ExpiresAt); err != nil {
		logger.Warn("thread_store_put_failed", "root", rootID, "error", err)
		opsTotal.WithLabelValues("threads", op, "error").Inc()
		return
	}
	opsTotal.WithLabelValues("threads", op, "ok").Inc()
}

// GetThreadMembers returns the cached member ids for rootID.
func (s *ThreadStore) GetThreadMembers(rootID string) ([]string, bool) {
	if rootID == "" {
		return nil, false
	}
	v, ok, err := s.t.get(rootID)
	if err != nil {
		logger.Warn("thread_store_get_failed", "root", rootID, "error", err)
		opsTotal.WithLabelValues("threads", "get", "error").Inc()
		return nil, false
	}
	if !ok {
		opsTotal.WithLabelValues("threads", "get", "miss").Inc()
		return nil, false
	}
	var rec models.StoredThread
	if err := json.Unmarshal(v, &rec); err != nil {
		logger.Warn("thread_store_decode_failed", "root", rootID, "error", err)
		opsTotal.WithLabelValues("threads", "get", "error").Inc()
		return nil, false
	}
	opsTotal.WithLabelValues("threads", "get", "hit").Inc()
	return rec.EventIDs, true
}

// DeleteThread removes the member list for rootID.
func (s *ThreadStore) DeleteThread(rootID string) {
	if rootID == "" {
		return
	}
	if err := s.t.remove(rootID); err != nil {
		logger.Warn("thread_store_delete_failed", "root", rootID, "error", err)
		opsTotal.WithLabelValues("threads", "delete", "error").Inc()
		return
	}
	opsTotal.WithLabelValues("threads", "delete", "ok").Inc()
}

// SweepExpired removes every expired thread record and returns the count.
func (s *ThreadStore) SweepExpired() int {
	n, err := s.t.sweep()
	if err != nil {
		logger.Error("thread_store_sweep_failed", "error", err)
		opsTotal.WithLabelValues("threads", "sweep", "error").Inc()
		return n
	}
	sweptTotal.WithLabelValues("threads").Add(float64(n))
	opsTotal.WithLabelValues("threads", "sweep", "ok").Inc()
	return n
}

// Count returns the number of stored thread records.
func (s *ThreadStore) Count() int {
	n, err := s.t.count()
	if err != nil {
		logger.Warn("thread_store_count_failed", "error", err)
	}
	return n
}

// uniqueIDs appends the non-empty ids of add to base, skipping duplicates and
// keeping first-seen order.
func uniqueIDs(base, add []string) []string {
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, id := range list {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
