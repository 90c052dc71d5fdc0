// Package reply turns reviewer email replies into verdicts and records them
// against the candidates that were sent out for review.
package reply

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mohammad-safakhou/adaptwatch/internal/candidate"
	"github.com/mohammad-safakhou/adaptwatch/internal/labels"
)

// Reply is an inbound reviewer message.
type Reply struct {
	MessageID string
	From      string
	Subject   string
	InReplyTo string
	Body      string
}

// Command is a parsed reply. Bare commands come from replies with no command
// text at all and approve the hash of the thread they answer.
type Command struct {
	Verdict labels.Verdict
	Hash    string
	Bare    bool
}

var (
	// subjectHash finds a hash embedded in a notification subject.
	subjectHash = regexp.MustCompile(`(?i)\b[0-9a-f]{64}\b`)
	// replyPrefix matches Re:/Fwd:/AW: style prefixes, possibly repeated.
	replyPrefix = regexp.MustCompile(`(?i)^\s*((re|fw|fwd|aw|sv|wg)(\[\d+\])?\s*:\s*)+`)
	// attribution matches "On Mon, 12 Oct 2026 ... wrote:" lines.
	attribution = regexp.MustCompile(`(?i)^on\s.+wrote:\s*$`)
)

const tokenTrim = "<>()[]{}.,;:!\"'`"

// Parse reads the command text of r and classifies it. The command text is
// the first meaningful body line, or the subject when the body has none.
//
//	APPROVE|REJECT|NEVER <hash>  explicit verdict
//	APPROVE                      approval of the thread's hash
//	(no command text)            bare approval of the thread's hash
//	anything else                ErrUnrecognizedCommand
func Parse(r Reply) (Command, error) {
	thread := threadHash(r.Subject)
	if line := commandLine(r.Body); line != "" {
		return parseLine(line, thread)
	}
	subject := strings.TrimSpace(replyPrefix.ReplaceAllString(r.Subject, ""))
	if isCommand(strings.Fields(subject)) {
		return parseLine(subject, thread)
	}
	return Command{Verdict: labels.Approve, Hash: thread, Bare: true}, nil
}

func parseLine(line, thread string) (Command, error) {
	fields := strings.Fields(line)
	if !isCommand(fields) {
		if len(fields) >= 2 && looksLikeKeyword(fields[0]) && looksLikeToken(fields[1]) {
			return Command{}, &ParseError{Kind: ErrUnrecognizedCommand, Input: line, Hash: thread}
		}
		return Command{}, &ParseError{Kind: ErrUnrecognizedCommand, Input: line, Ambiguous: true, Hash: thread}
	}
	v, _ := keyword(fields[0])
	if len(fields) < 2 {
		// A lone APPROVE answers the thread, like an empty reply does.
		if v == labels.Approve {
			return Command{Verdict: labels.Approve, Hash: thread, Bare: true}, nil
		}
		return Command{}, &ParseError{Kind: ErrMalformedVerdict, Input: line, Hash: thread}
	}
	hash, ok := candidate.NormalizeHash(strings.Trim(fields[1], tokenTrim))
	if !ok {
		return Command{}, &ParseError{Kind: ErrMalformedVerdict, Input: line, Hash: thread}
	}
	return Command{Verdict: v, Hash: hash}, nil
}

// isCommand reports whether fields start with a verdict keyword used as a
// command. A lower-case keyword followed by ordinary words ("never mind")
// is prose, not a command.
func isCommand(fields []string) bool {
	if len(fields) == 0 {
		return false
	}
	if _, ok := keyword(fields[0]); !ok {
		return false
	}
	return len(fields) == 1 || looksLikeKeyword(fields[0]) || looksLikeToken(fields[1])
}

// commandLine returns the first body line that carries the reviewer's own
// text: quoted lines are skipped and parsing stops at an attribution line or
// a signature separator.
func commandLine(body string) string {
	for _, raw := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		if raw == "-- " || strings.TrimSpace(raw) == "--" {
			return ""
		}
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, ">") {
			continue
		}
		if attribution.MatchString(line) {
			return ""
		}
		return line
	}
	return ""
}

func keyword(s string) (labels.Verdict, bool) {
	return labels.ParseVerdict(strings.TrimRight(s, ":.!"))
}

func threadHash(subject string) string {
	m := subjectHash.FindString(subject)
	if m == "" {
		return ""
	}
	return strings.ToLower(m)
}

// looksLikeKeyword matches an all upper-case word such as DELETE or SKIP.
func looksLikeKeyword(s string) bool {
	s = strings.TrimRight(s, ":")
	if len(s) < 2 {
		return false
	}
	for _, r := range s {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// looksLikeToken matches something that was meant to be a hash, even if it
// is the wrong length.
func looksLikeToken(s string) bool {
	s = strings.Trim(s, tokenTrim)
	if len(s) < 6 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
