// Package flock takes advisory exclusive locks on sidecar lock files so that
// separate processes sharing a data directory serialise their writes.
package flock

import (
	"fmt"
	"os"
	"path/filepath"
)

// Lock is a held lock. Release it exactly once.
type Lock struct {
	f *os.File
}

// Acquire opens path, creating it and its directory if needed, and blocks
// until an exclusive lock on it is held.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("flock: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("flock: open %s: %w", path, err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flock: lock %s: %w", path, err)
	}
	return &Lock{f: f}, nil
}

// Release drops the lock and closes the lock file.
func (l *Lock) Release() error {
	uerr := unlockFile(l.f)
	cerr := l.f.Close()
	if uerr != nil {
		return fmt.Errorf("flock: unlock: %w", uerr)
	}
	return cerr
}
