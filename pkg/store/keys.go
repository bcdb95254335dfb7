package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Key layout. All keys are lowercase; segments are separated by ":".
//
//	e:<event_id>                      StoredEvent JSON
//	t:<root_id>                       StoredThread JSON
//	x:e:<expires_at>:<event_id>       expiry index for events (empty value)
//	x:t:<expires_at>:<root_id>        expiry index for threads (empty value)
//
// expires_at is unix nanoseconds, zero padded so keys sort by time.
const (
	EventPrefix        = "e:"
	ThreadPrefix       = "t:"
	ExpiryPrefix       = "x:"
	EventExpiryPrefix  = "x:e:"
	ThreadExpiryPrefix = "x:t:"

	tsPadWidth = 20
)

func primaryKey(prefix, id string) string {
	return prefix + id
}

func expiryKey(prefix string, expiresAt int64, id string) string {
	return fmt.Sprintf("%s%0*d:%s", prefix, tsPadWidth, expiresAt, id)
}

// expiryUpperBound is the exclusive upper bound covering every index entry
// with expires_at <= ts.
func expiryUpperBound(prefix string, ts int64) string {
	return fmt.Sprintf("%s%0*d;", prefix, tsPadWidth, ts)
}

// parseExpiryKey splits an expiry index key into its timestamp and id.
func parseExpiryKey(prefix, key string) (int64, string, error) {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return 0, "", fmt.Errorf("expiry key %q: missing prefix %q", key, prefix)
	}
	tsPart, id, ok := strings.Cut(rest, ":")
	if !ok || id == "" {
		return 0, "", fmt.Errorf("expiry key %q: malformed", key)
	}
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("expiry key %q: bad timestamp: %w", key, err)
	}
	return ts, id, nil
}
