package store

import "fmt"

var namespaces = []struct {
	name   string
	prefix string
}{
	{"events", EventPrefix},
	{"threads", ThreadPrefix},
	{"event_expiry", EventExpiryPrefix},
	{"thread_expiry", ThreadExpiryPrefix},
}

// Census counts keys per namespace.
func (d *DB) Census() (map[string]int, error) {
	out := make(map[string]int, len(namespaces))
	for _, ns := range namespaces {
		n, err := d.CountPrefix(ns.prefix)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", ns.name, err)
		}
		out[ns.name] = n
	}
	return out, nil
}

// Purge deletes every cached record and index entry, returning the number of
// keys removed per namespace.
func (d *DB) Purge() (map[string]int, error) {
	out := make(map[string]int, len(namespaces))
	for _, ns := range namespaces {
		n, err := d.DeletePrefix(ns.prefix)
		if err != nil {
			return out, fmt.Errorf("purge %s: %w", ns.name, err)
		}
		out[ns.name] = n
	}
	return out, nil
}
