package reply

import (
	"errors"
	"fmt"
)

// Sentinel kinds for reply failures. Each one skips the reply; none of them
// abort processing of the remaining replies.
var (
	ErrMalformedVerdict           = errors.New("malformed verdict")
	ErrUnknownOrResolvedCandidate = errors.New("unknown or resolved candidate")
	ErrUnrecognizedCommand        = errors.New("unrecognized command")
)

// ParseError describes why a reply could not be turned into a command.
// errors.Is(err, ErrMalformedVerdict) and friends match on Kind.
type ParseError struct {
	Kind  error
	Input string
	// Ambiguous marks free text with no command keyword. Such replies are
	// queued for manual follow-up instead of being approved.
	Ambiguous bool
	// Hash is the thread's content hash when one could be recovered.
	Hash string
}

func (e *ParseError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("%v: ambiguous reply %q needs manual follow-up", e.Kind, e.Input)
	}
	return fmt.Sprintf("%v: %q", e.Kind, e.Input)
}

func (e *ParseError) Unwrap() error { return e.Kind }

// ResolutionError reports a well formed command whose hash does not match a
// pending notification.
type ResolutionError struct {
	Hash   string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%v %s: %s", ErrUnknownOrResolvedCandidate, e.Hash, e.Reason)
}

func (e *ResolutionError) Unwrap() error { return ErrUnknownOrResolvedCandidate }

// IsSkippable reports whether err only concerns the single reply it came from.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrMalformedVerdict) ||
		errors.Is(err, ErrUnknownOrResolvedCandidate) ||
		errors.Is(err, ErrUnrecognizedCommand)
}
