// Package labels persists reviewer verdicts as an append-only, UTC-date
// partitioned CSV dataset consumed by the classifier training job.
package labels

import (
	"fmt"
	"strings"
	"time"
)

// Verdict is a reviewer's decision on a candidate.
type Verdict string

const (
	Approve Verdict = "APPROVE"
	Reject  Verdict = "REJECT"
	// Never rejects and also excludes the hash from future discovery runs.
	Never Verdict = "NEVER"
)

// ParseVerdict maps a keyword to a Verdict, case-insensitively.
func ParseVerdict(s string) (Verdict, bool) {
	switch v := Verdict(strings.ToUpper(strings.TrimSpace(s))); v {
	case Approve, Reject, Never:
		return v, true
	}
	return "", false
}

// Valid reports whether v is one of the canonical upper-case verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case Approve, Reject, Never:
		return true
	}
	return false
}

func (v Verdict) String() string { return string(v) }

// Record is one resolved verdict. Date is the UTC day of the write and
// selects the partition the row lands in.
type Record struct {
	Date        time.Time `json:"date"`
	ContentHash string    `json:"content_hash"`
	Verdict     Verdict   `json:"verdict"`
}

// Day returns the partition key for the record, YYYY-MM-DD in UTC.
func (r Record) Day() string { return r.Date.UTC().Format(dayLayout) }

func (r Record) String() string {
	return fmt.Sprintf("%s %s %s", r.Day(), r.ContentHash, r.Verdict)
}
