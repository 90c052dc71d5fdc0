package reply

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FollowUp is an ambiguous reply parked for a human to look at.
type FollowUp struct {
	FlaggedAt time.Time `json:"flagged_at"`
	MessageID string    `json:"message_id"`
	From      string    `json:"from"`
	Subject   string    `json:"subject"`
	Excerpt   string    `json:"excerpt"`
	Hash      string    `json:"content_hash,omitempty"`
}

// FollowUpQueue receives ambiguous replies.
type FollowUpQueue interface {
	Flag(ctx context.Context, f FollowUp) error
}

// FileFollowUps appends follow-ups as JSON lines.
type FileFollowUps struct {
	Path string
	mu   sync.Mutex
}

func (q *FileFollowUps) Flag(_ context.Context, f FollowUp) error {
	line, err := json.Marshal(f)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(q.Path), 0o755); err != nil {
		return fmt.Errorf("followups: create dir: %w", err)
	}
	file, err := os.OpenFile(q.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("followups: open: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("followups: append: %w", err)
	}
	return nil
}
