package store

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"nostrly/pkg/logger"
)

// writeOpt is used for every mutation. The cache can be rebuilt from relays,
// so losing the tail of the WAL on a crash is acceptable.
var writeOpt = pebble.NoSync

// DB is a thin wrapper over a pebble handle shared by the event and thread
// stores.
type DB struct {
	db   *pebble.DB
	path string
}

// Options tunes how the pebble database is opened.
type Options struct {
	// BlockCacheSize in bytes; zero keeps the pebble default.
	BlockCacheSize int64
	// FS overrides the filesystem, e.g. vfs.NewMem() in tests.
	FS vfs.FS
	// ReadOnly opens without taking writes; used by inspect.
	ReadOnly bool
}

// Open opens (or creates) a pebble database at path.
func Open(path string, o Options) (*DB, error) {
	opts := &pebble.Options{ReadOnly: o.ReadOnly}
	if o.FS != nil {
		opts.FS = o.FS
	}
	if o.BlockCacheSize > 0 {
		cache := pebble.NewCache(o.BlockCacheSize)
		defer cache.Unref()
		opts.Cache = cache
	}
	pdb, err := pebble.Open(path, opts)
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	logger.Info("pebble_opened", "path", path)
	return &DB{db: pdb, path: path}, nil
}

// OpenInMemory opens a database backed by an in-memory filesystem.
func OpenInMemory() (*DB, error) {
	return Open("", Options{FS: vfs.NewMem()})
}

// Close closes the database. Safe to call more than once.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	if err := d.db.Close(); err != nil {
		return err
	}
	d.db = nil
	logger.Info("pebble_closed", "path", d.path)
	return nil
}

// Ready reports whether the database is open.
func (d *DB) Ready() bool {
	return d != nil && d.db != nil
}

func (d *DB) Path() string { return d.path }

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

var errClosed = errors.New("pebble not opened")

// Get returns a copy of the value stored at key.
func (d *DB) Get(key string) ([]byte, error) {
	if !d.Ready() {
		return nil, errClosed
	}
	v, closer, err := d.db.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

// Set stores value at key.
func (d *DB) Set(key string, value []byte) error {
	if !d.Ready() {
		return errClosed
	}
	return d.db.Set([]byte(key), value, writeOpt)
}

// Delete removes key. Deleting a missing key is not an error.
func (d *DB) Delete(key string) error {
	if !d.Ready() {
		return errClosed
	}
	return d.db.Delete([]byte(key), writeOpt)
}

// NewBatch starts a write batch. Commit it with Apply.
func (d *DB) NewBatch() *pebble.Batch {
	return d.db.NewBatch()
}

// Apply commits b and closes it.
func (d *DB) Apply(b *pebble.Batch) error {
	defer b.Close()
	if !d.Ready() {
		return errClosed
	}
	return b.Commit(writeOpt)
}

// Scan calls fn for each key in [lower, upper) in order. fn must not retain
// k or v. Returning false stops the scan.
func (d *DB) Scan(lower, upper string, fn func(k, v []byte) bool) error {
	if !d.Ready() {
		return errClosed
	}
	opts := &pebble.IterOptions{LowerBound: []byte(lower)}
	if upper != "" {
		opts.UpperBound = []byte(upper)
	}
	iter, err := d.db.NewIter(opts)
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// ScanPrefix calls fn for every key starting with prefix.
func (d *DB) ScanPrefix(prefix string, fn func(k, v []byte) bool) error {
	return d.Scan(prefix, prefixEnd(prefix), fn)
}

// CountPrefix returns the number of keys under prefix.
func (d *DB) CountPrefix(prefix string) (int, error) {
	n := 0
	err := d.ScanPrefix(prefix, func(_, _ []byte) bool {
		n++
		return true
	})
	return n, err
}

// DeletePrefix removes every key under prefix and returns how many were
// removed.
func (d *DB) DeletePrefix(prefix string) (int, error) {
	n, err := d.CountPrefix(prefix)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := d.db.DeleteRange([]byte(prefix), []byte(prefixEnd(prefix)), pebble.Sync); err != nil {
		return 0, fmt.Errorf("delete range %q: %w", prefix, err)
	}
	return n, nil
}

// Flush flushes memtables to disk.
func (d *DB) Flush() error {
	if !d.Ready() {
		return errClosed
	}
	return d.db.Flush()
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			end := append([]byte(nil), b[:i+1]...)
			end[i]++
			return string(end)
		}
	}
	return ""
}
