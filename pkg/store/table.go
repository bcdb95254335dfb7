package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// table is one logical record table with an expires_at secondary index.
// Values must be JSON objects carrying an "expiresAt" field.
type table struct {
	db           *DB
	name         string
	prefix       string
	expiryPrefix string
	now          func() time.Time
}

type expiryHeader struct {
	ExpiresAt int64 `json:"expiresAt"`
}

func readExpiry(v []byte) (int64, error) {
	var h expiryHeader
	if err := json.Unmarshal(v, &h); err != nil {
		return 0, err
	}
	return h.ExpiresAt, nil
}

// put upserts value under id and moves its expiry index entry.
func (t *table) put(id string, value []byte, expiresAt int64) error {
	pk := primaryKey(t.prefix, id)
	b := t.db.NewBatch()
	if old, err := t.db.Get(pk); err == nil {
		if oldExp, err := readExpiry(old); err == nil && oldExp != expiresAt {
			if err := b.Delete([]byte(expiryKey(t.expiryPrefix, oldExp, id)), nil); err != nil {
				b.Close()
				return err
			}
		}
	} else if !IsNotFound(err) {
		b.Close()
		return fmt.Errorf("%s read %s: %w", t.name, id, err)
	}
	if err := b.Set([]byte(pk), value, nil); err != nil {
		b.Close()
		return err
	}
	if err := b.Set([]byte(expiryKey(t.expiryPrefix, expiresAt, id)), nil, nil); err != nil {
		b.Close()
		return err
	}
	if err := t.db.Apply(b); err != nil {
		return fmt.Errorf("%s write %s: %w", t.name, id, err)
	}
	return nil
}

// get returns the raw record for id. Expired records are removed and
// reported as absent.
func (t *table) get(id string) ([]byte, bool, error) {
	v, err := t.db.Get(primaryKey(t.prefix, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s read %s: %w", t.name, id, err)
	}
	exp, err := readExpiry(v)
	if err != nil {
		// undecodable records are dropped like expired ones
		_ = t.remove(id)
		return nil, false, fmt.Errorf("%s decode %s: %w", t.name, id, err)
	}
	if t.now().UnixNano() >= exp {
		if err := t.removeWithExpiry(id, exp); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return v, true, nil
}

// remove deletes id and its index entry. Missing records are not an error.
func (t *table) remove(id string) error {
	v, err := t.db.Get(primaryKey(t.prefix, id))
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("%s read %s: %w", t.name, id, err)
	}
	exp, err := readExpiry(v)
	if err != nil {
		return t.db.Delete(primaryKey(t.prefix, id))
	}
	return t.removeWithExpiry(id, exp)
}

func (t *table) removeWithExpiry(id string, exp int64) error {
	b := t.db.NewBatch()
	if err := b.Delete([]byte(primaryKey(t.prefix, id)), nil); err != nil {
		b.Close()
		return err
	}
	if err := b.Delete([]byte(expiryKey(t.expiryPrefix, exp, id)), nil); err != nil {
		b.Close()
		return err
	}
	if err := t.db.Apply(b); err != nil {
		return fmt.Errorf("%s delete %s: %w", t.name, id, err)
	}
	return nil
}

// sweep removes every record whose expires_at <= now and returns how many
// primary records were deleted. Index entries that no longer match their
// record are dropped as well.
func (t *table) sweep() (int, error) {
	now := t.now().UnixNano()
	type hit struct {
		key string
		id  string
	}
	var hits []hit
	err := t.db.Scan(t.expiryPrefix, expiryUpperBound(t.expiryPrefix, now), func(k, _ []byte) bool {
		key := string(k)
		_, id, perr := parseExpiryKey(t.expiryPrefix, key)
		if perr != nil {
			hits = append(hits, hit{key: key})
			return true
		}
		hits = append(hits, hit{key: key, id: id})
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("%s sweep scan: %w", t.name, err)
	}
	if len(hits) == 0 {
		return 0, nil
	}

	removed := 0
	b := t.db.NewBatch()
	for _, h := range hits {
		if h.id != "" {
			pk := primaryKey(t.prefix, h.id)
			v, err := t.db.Get(pk)
			switch {
			case err == nil:
				// the record may have been refreshed since this entry was written
				if exp, derr := readExpiry(v); derr != nil || exp <= now {
					_ = b.Delete([]byte(pk), nil)
					removed++
				}
			case !IsNotFound(err):
				b.Close()
				return 0, fmt.Errorf("%s sweep read %s: %w", t.name, h.id, err)
			}
		}
		_ = b.Delete([]byte(h.key), nil)
	}
	if err := t.db.Apply(b); err != nil {
		return 0, fmt.Errorf("%s sweep commit: %w", t.name, err)
	}
	return removed, nil
}

// count returns the number of primary records, expired or not.
func (t *table) count() (int, error) {
	return t.db.CountPrefix(t.prefix)
}
