// Package state holds the durable collections shared across runs: the
// NEVER exclusion set and the ledger of candidates already sent to the
// reviewer. Both are passed explicitly to the components that use them.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/mohammad-safakhou/adaptwatch/internal/labels"
)

// ErrNotNotified is returned by Ledger.Resolve for a hash that was never sent.
var ErrNotNotified = errors.New("candidate was not notified")

// ExclusionSet is the durable set of hashes marked NEVER.
type ExclusionSet interface {
	Contains(ctx context.Context, hash string) (bool, error)
	Add(ctx context.Context, hash string) error
}

// Notification is a ledger entry for a candidate emailed to the reviewer.
type Notification struct {
	ContentHash string         `json:"content_hash"`
	URL         string         `json:"url"`
	Title       string         `json:"title"`
	MessageID   string         `json:"message_id,omitempty"`
	NotifiedAt  time.Time      `json:"notified_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	Verdict     labels.Verdict `json:"verdict,omitempty"`
}

// Resolved reports whether a verdict has been recorded for the entry.
func (n Notification) Resolved() bool { return n.ResolvedAt != nil }

// Ledger tracks notified candidates and whether they have been resolved.
type Ledger interface {
	Get(ctx context.Context, hash string) (Notification, bool, error)
	Record(ctx context.Context, n Notification) error
	Resolve(ctx context.Context, hash string, v labels.Verdict, at time.Time) error
	// LookupMessage maps an outbound Message-ID back to its content hash.
	LookupMessage(ctx context.Context, messageID string) (string, bool, error)
	Pending(ctx context.Context) ([]Notification, error)
}
