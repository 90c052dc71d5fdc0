// Package inbox reads reviewer replies delivered to a local Maildir.
// Unprocessed messages live in new/; acknowledged ones are moved to cur/
// with the Seen flag so a replayed run does not see them again.
package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/adaptwatch/internal/failure"
	"github.com/mohammad-safakhou/adaptwatch/internal/reply"
	"go.uber.org/zap"
)

type Maildir struct {
	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	paths map[string][]string // Message-ID -> files in new/, oldest first
}

// Open prepares dir as a Maildir, creating tmp/, new/ and cur/ as needed.
func Open(dir string, logger *zap.Logger) (*Maildir, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, sub := range []string{"tmp", "new", "cur"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, failure.Transient("open maildir", err)
		}
	}
	return &Maildir{dir: dir, logger: logger, paths: make(map[string][]string)}, nil
}

func (m *Maildir) Dir() string { return m.dir }

// Pending parses every message in new/, oldest file name first. Messages
// that cannot be parsed are logged and moved to cur/ so they do not block
// later runs.
func (m *Maildir) Pending(ctx context.Context) ([]reply.Reply, error) {
	entries, err := os.ReadDir(filepath.Join(m.dir, "new"))
	if err != nil {
		return nil, failure.Transient("read maildir", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = make(map[string][]string, len(names))
	var out []reply.Reply
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		path := filepath.Join(m.dir, "new", name)
		r, err := m.read(path)
		if err != nil {
			m.logger.Warn("skipping unreadable reply", zap.String("file", name), zap.Error(err))
			if err := m.moveToCur(path); err != nil {
				m.logger.Warn("could not move unreadable reply", zap.String("file", name), zap.Error(err))
			}
			continue
		}
		if r.MessageID == "" {
			r.MessageID = "<" + name + ">"
		}
		m.paths[r.MessageID] = append(m.paths[r.MessageID], path)
		out = append(out, r)
	}
	return out, nil
}

func (m *Maildir) read(path string) (reply.Reply, error) {
	f, err := os.Open(path)
	if err != nil {
		return reply.Reply{}, err
	}
	defer f.Close()
	return ParseMessage(f)
}

// Ack marks r as processed by moving its file to cur/. Duplicate
// deliveries share a Message-ID; each Ack moves the oldest unacked copy.
func (m *Maildir) Ack(r reply.Reply) error {
	m.mu.Lock()
	queue := m.paths[r.MessageID]
	ok := len(queue) > 0
	var path string
	if ok {
		path = queue[0]
		if len(queue) == 1 {
			delete(m.paths, r.MessageID)
		} else {
			m.paths[r.MessageID] = queue[1:]
		}
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("ack %s: reply not read from this maildir", r.MessageID)
	}
	if err := m.moveToCur(path); err != nil {
		return failure.Transient("ack reply", err)
	}
	return nil
}

func (m *Maildir) moveToCur(path string) error {
	name := filepath.Base(path)
	if !strings.Contains(name, ":2,") {
		name += ":2,S"
	}
	return os.Rename(path, filepath.Join(m.dir, "cur", name))
}
