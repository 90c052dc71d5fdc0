package state

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/adaptwatch/internal/flock"
	"github.com/mohammad-safakhou/adaptwatch/internal/labels"
)

// FileExclusions keeps the exclusion set as a newline-delimited file of
// hashes. Additions are appended; the file is never rewritten.
type FileExclusions struct {
	path string
	mu   sync.Mutex
	set  map[string]struct{}
}

// OpenFileExclusions loads path, creating its directory if needed.
func OpenFileExclusions(path string) (*FileExclusions, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("state: create dir: %w", err)
	}
	e := &FileExclusions{path: path, set: make(map[string]struct{})}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return e, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: open exclusions: %w", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if h := strings.ToLower(strings.TrimSpace(sc.Text())); h != "" {
			e.set[h] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("state: read exclusions: %w", err)
	}
	return e, nil
}

func (e *FileExclusions) Contains(_ context.Context, hash string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.set[strings.ToLower(hash)]
	return ok, nil
}

func (e *FileExclusions) Add(_ context.Context, hash string) error {
	hash = strings.ToLower(hash)
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.set[hash]; ok {
		return nil
	}
	f, err := os.OpenFile(e.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("state: open exclusions: %w", err)
	}
	if _, err := f.WriteString(hash + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("state: append exclusion: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("state: sync exclusions: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	e.set[hash] = struct{}{}
	return nil
}

// Len returns the number of excluded hashes.
func (e *FileExclusions) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.set)
}

// FileLedger stores the notified ledger as a single JSON document that is
// rewritten through a temp file and rename on every change. Writers hold an
// exclusive lock on path+".lock" and re-read the document under it, so
// overlapping runs merge their entries instead of overwriting each other.
type FileLedger struct {
	path    string
	mu      sync.Mutex
	entries map[string]Notification
}

type ledgerDoc struct {
	Notifications []Notification `json:"notifications"`
}

// OpenFileLedger loads path, creating its directory if needed.
func OpenFileLedger(path string) (*FileLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("state: create dir: %w", err)
	}
	l := &FileLedger{path: path}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLedger) Get(_ context.Context, hash string) (Notification, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.reload(); err != nil {
		return Notification{}, false, err
	}
	n, ok := l.entries[strings.ToLower(hash)]
	return n, ok, nil
}

// Record stores n. Re-recording a hash keeps the original entry.
func (l *FileLedger) Record(_ context.Context, n Notification) error {
	n.ContentHash = strings.ToLower(n.ContentHash)
	return l.update(func(entries map[string]Notification) (bool, error) {
		if _, ok := entries[n.ContentHash]; ok {
			return false, nil
		}
		entries[n.ContentHash] = n
		return true, nil
	})
}

func (l *FileLedger) Resolve(_ context.Context, hash string, v labels.Verdict, at time.Time) error {
	hash = strings.ToLower(hash)
	at = at.UTC()
	return l.update(func(entries map[string]Notification) (bool, error) {
		next, ok := entries[hash]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrNotNotified, hash)
		}
		next.ResolvedAt = &at
		next.Verdict = v
		entries[hash] = next
		return true, nil
	})
}

func (l *FileLedger) LookupMessage(_ context.Context, messageID string) (string, bool, error) {
	messageID = normalizeMessageID(messageID)
	if messageID == "" {
		return "", false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.reload(); err != nil {
		return "", false, err
	}
	for h, n := range l.entries {
		if normalizeMessageID(n.MessageID) == messageID {
			return h, true, nil
		}
	}
	return "", false, nil
}

// Pending returns unresolved notifications, oldest first.
func (l *FileLedger) Pending(_ context.Context) ([]Notification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.reload(); err != nil {
		return nil, err
	}
	var out []Notification
	for _, n := range l.entries {
		if !n.Resolved() {
			out = append(out, n)
		}
	}
	sortByNotified(out)
	return out, nil
}

// update applies fn to the on-disk document while holding the file lock and
// writes it back when fn reports a change. The in-memory copy is only
// replaced after a successful write.
func (l *FileLedger) update(fn func(map[string]Notification) (bool, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, err := flock.Acquire(l.path + ".lock")
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}
	defer func() { _ = lock.Release() }()

	entries, err := readLedger(l.path)
	if err != nil {
		return err
	}
	changed, err := fn(entries)
	if err != nil || !changed {
		if err == nil {
			l.entries = entries
		}
		return err
	}
	if err := writeLedger(l.path, entries); err != nil {
		return err
	}
	l.entries = entries
	return nil
}

// reload replaces the in-memory copy with the document on disk. Writers
// replace the file by rename, so a reader never sees a partial document.
func (l *FileLedger) reload() error {
	entries, err := readLedger(l.path)
	if err != nil {
		return err
	}
	l.entries = entries
	return nil
}

func readLedger(path string) (map[string]Notification, error) {
	entries := make(map[string]Notification)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: read ledger: %w", err)
	}
	var doc ledgerDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("state: decode ledger: %w", err)
	}
	for _, n := range doc.Notifications {
		entries[strings.ToLower(n.ContentHash)] = n
	}
	return entries, nil
}

func writeLedger(path string, entries map[string]Notification) error {
	doc := ledgerDoc{Notifications: make([]Notification, 0, len(entries))}
	for _, n := range entries {
		doc.Notifications = append(doc.Notifications, n)
	}
	sortByNotified(doc.Notifications)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encode ledger: %w", err)
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("state: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("state: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("state: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("state: rename: %w", err)
	}
	return nil
}

func sortByNotified(ns []Notification) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].NotifiedAt.Equal(ns[j].NotifiedAt) {
			return ns[i].ContentHash < ns[j].ContentHash
		}
		return ns[i].NotifiedAt.Before(ns[j].NotifiedAt)
	})
}

// normalizeMessageID strips angle brackets and whitespace so that
// "<id@host>" and "id@host" compare equal.
func normalizeMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return strings.ToLower(id)
}
