package reply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/adaptwatch/internal/labels"
	"github.com/mohammad-safakhou/adaptwatch/internal/state"
	"go.uber.org/zap"
)

// LabelWriter is the part of the label store the interpreter needs.
type LabelWriter interface {
	Contains(ctx context.Context, hash string) (bool, error)
	Append(ctx context.Context, rec labels.Record) (labels.Record, error)
}

// Interpreter resolves reviewer replies into label records. It keeps the set
// of hashes it resolved during its lifetime so duplicate deliveries inside a
// run are rejected before touching storage.
type Interpreter struct {
	Ledger     state.Ledger
	Labels     LabelWriter
	Exclusions state.ExclusionSet
	FollowUps  FollowUpQueue
	Logger     *zap.Logger
	Now        func() time.Time

	resolved map[string]struct{}
}

// Outcome is the per-reply result reported by Process.
type Outcome string

const (
	OutcomeLabeled      Outcome = "labeled"
	OutcomeMalformed    Outcome = "malformed"
	OutcomeUnknown      Outcome = "unknown_or_resolved"
	OutcomeUnrecognized Outcome = "unrecognized"
	OutcomeFlagged      Outcome = "flagged"
	OutcomeFailed       Outcome = "failed"
)

// Summary counts what happened to a batch of replies.
type Summary struct {
	Processed int
	Outcomes  map[Outcome]int
	Records   []labels.Record
}

// Resolve interprets one reply and, when it names a pending candidate,
// appends exactly one label record. NEVER verdicts also add the hash to the
// exclusion set before the label is written, so a failure in between is
// repaired by replaying the reply.
func (i *Interpreter) Resolve(ctx context.Context, r Reply) (labels.Record, error) {
	cmd, err := Parse(r)
	if err != nil {
		return labels.Record{}, err
	}
	hash := cmd.Hash
	if hash == "" && r.InReplyTo != "" {
		h, ok, err := i.Ledger.LookupMessage(ctx, r.InReplyTo)
		if err != nil {
			return labels.Record{}, fmt.Errorf("lookup in-reply-to: %w", err)
		}
		if ok {
			hash = h
		}
	}
	if hash == "" {
		// An approval that cannot be tied to a notification goes to a human.
		return labels.Record{}, &ParseError{Kind: ErrUnrecognizedCommand, Input: r.Subject, Ambiguous: true}
	}

	if _, seen := i.resolvedSet()[hash]; seen {
		return labels.Record{}, &ResolutionError{Hash: hash, Reason: "already resolved in this run"}
	}
	n, ok, err := i.Ledger.Get(ctx, hash)
	if err != nil {
		return labels.Record{}, fmt.Errorf("ledger get: %w", err)
	}
	if !ok {
		return labels.Record{}, &ResolutionError{Hash: hash, Reason: "never notified"}
	}
	if n.Resolved() {
		return labels.Record{}, &ResolutionError{Hash: hash, Reason: "already resolved as " + string(n.Verdict)}
	}
	labeled, err := i.Labels.Contains(ctx, hash)
	if err != nil {
		return labels.Record{}, fmt.Errorf("label lookup: %w", err)
	}
	if labeled {
		i.markResolved(hash)
		return labels.Record{}, &ResolutionError{Hash: hash, Reason: "already labeled"}
	}

	if cmd.Verdict == labels.Never {
		if err := i.Exclusions.Add(ctx, hash); err != nil {
			return labels.Record{}, fmt.Errorf("exclusion add: %w", err)
		}
	}
	rec, err := i.Labels.Append(ctx, labels.Record{Date: i.now(), ContentHash: hash, Verdict: cmd.Verdict})
	if errors.Is(err, labels.ErrAlreadyLabeled) {
		i.markResolved(hash)
		return labels.Record{}, &ResolutionError{Hash: hash, Reason: "already labeled"}
	}
	if err != nil {
		return labels.Record{}, fmt.Errorf("label append: %w", err)
	}
	i.markResolved(hash)
	if err := i.Ledger.Resolve(ctx, hash, cmd.Verdict, rec.Date); err != nil {
		// The label row is the source of truth; the next replay sees it via
		// Labels.Contains.
		i.logger().Warn("ledger resolve failed", zap.String("content_hash", hash), zap.Error(err))
	}
	return rec, nil
}

// Process resolves every reply. Reply-level failures are logged and
// counted; storage failures are collected and returned together after the
// whole batch has been attempted. The ack callback, when set, is invoked for
// every reply that does not need to be retried.
func (i *Interpreter) Process(ctx context.Context, replies []Reply, ack func(Reply) error) (Summary, error) {
	sum := Summary{Outcomes: make(map[Outcome]int)}
	var errs []error
	for _, r := range replies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		sum.Processed++
		log := i.logger().With(zap.String("message_id", r.MessageID), zap.String("from", r.From))

		rec, err := i.Resolve(ctx, r)
		outcome := classify(err)
		sum.Outcomes[outcome]++
		switch outcome {
		case OutcomeLabeled:
			sum.Records = append(sum.Records, rec)
			log.Info("reply labeled", zap.String("content_hash", rec.ContentHash), zap.String("verdict", string(rec.Verdict)))
		case OutcomeFlagged:
			log.Warn("ambiguous reply flagged for follow-up", zap.Error(err))
			if ferr := i.flag(ctx, r, err); ferr != nil {
				errs = append(errs, ferr)
				continue
			}
		case OutcomeFailed:
			log.Error("reply failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("reply %s: %w", r.MessageID, err))
			continue
		default:
			log.Warn("reply skipped", zap.String("outcome", string(outcome)), zap.Error(err))
		}
		if ack != nil {
			if aerr := ack(r); aerr != nil {
				log.Error("ack reply failed", zap.Error(aerr))
				errs = append(errs, aerr)
			}
		}
	}
	return sum, errors.Join(errs...)
}

func classify(err error) Outcome {
	var perr *ParseError
	switch {
	case err == nil:
		return OutcomeLabeled
	case errors.As(err, &perr) && perr.Ambiguous:
		return OutcomeFlagged
	case errors.Is(err, ErrMalformedVerdict):
		return OutcomeMalformed
	case errors.Is(err, ErrUnknownOrResolvedCandidate):
		return OutcomeUnknown
	case errors.Is(err, ErrUnrecognizedCommand):
		return OutcomeUnrecognized
	default:
		return OutcomeFailed
	}
}

func (i *Interpreter) flag(ctx context.Context, r Reply, err error) error {
	if i.FollowUps == nil {
		return nil
	}
	var perr *ParseError
	errors.As(err, &perr)
	f := FollowUp{
		FlaggedAt: i.now(),
		MessageID: r.MessageID,
		From:      r.From,
		Subject:   r.Subject,
		Excerpt:   perr.Input,
		Hash:      perr.Hash,
	}
	if f.Hash == "" && r.InReplyTo != "" {
		if h, ok, lerr := i.Ledger.LookupMessage(ctx, r.InReplyTo); lerr == nil && ok {
			f.Hash = h
		}
	}
	return i.FollowUps.Flag(ctx, f)
}

func (i *Interpreter) resolvedSet() map[string]struct{} {
	if i.resolved == nil {
		i.resolved = make(map[string]struct{})
	}
	return i.resolved
}

func (i *Interpreter) markResolved(hash string) { i.resolvedSet()[hash] = struct{}{} }

func (i *Interpreter) now() time.Time {
	if i.Now != nil {
		return i.Now().UTC()
	}
	return time.Now().UTC()
}

func (i *Interpreter) logger() *zap.Logger {
	if i.Logger == nil {
		return zap.NewNop()
	}
	return i.Logger
}
