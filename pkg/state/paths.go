package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths is the on-disk layout under the configured db path.
type Paths struct {
	DB    string
	Store string // pebble data
	State string
	Crash string
	Tmp   string
}

func PathsFor(dbPath string) Paths {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = "./.nostrly"
	}
	path = filepath.Clean(path)
	statePath := filepath.Join(path, "state")
	return Paths{
		DB:    path,
		Store: filepath.Join(path, "store"),
		State: statePath,
		Crash: filepath.Join(statePath, "crash"),
		Tmp:   filepath.Join(statePath, "tmp"),
	}
}

// Ensure creates the runtime folder layout under dbPath. Every directory must
// be a real directory (not a symlink) and writable by the process.
func Ensure(dbPath string) (Paths, error) {
	p := PathsFor(dbPath)
	for _, dir := range []string{p.Store, p.Crash, p.Tmp} {
		if err := ensureDir(dir); err != nil {
			return Paths{}, err
		}
	}
	return p, nil
}

func ensureDir(p string) error {
	if fi, err := os.Lstat(p); err == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("path is a symlink: %s", p)
		}
		if !fi.IsDir() {
			return fmt.Errorf("path exists and is not a directory: %s", p)
		}
	}
	if err := os.MkdirAll(p, 0o700); err != nil {
		return fmt.Errorf("cannot create path %s: %w", p, err)
	}

	// writability check
	tmp, err := os.CreateTemp(p, ".validate-*")
	if err != nil {
		return fmt.Errorf("path not writable: %s: %w", p, err)
	}
	tmp.Close()
	_ = os.Remove(tmp.Name())
	return nil
}
