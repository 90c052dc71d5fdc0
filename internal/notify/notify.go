// Package notify emails the reviewer one message per candidate.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/adaptwatch/internal/candidate"
)

// HashHeader carries the content hash so replies can be matched without
// parsing the body.
const HashHeader = "X-Adaptwatch-Hash"

// Receipt identifies a sent notification.
type Receipt struct {
	MessageID string
	SentAt    time.Time
}

// Notifier delivers a review request for c.
type Notifier interface {
	Notify(ctx context.Context, c candidate.Candidate) (Receipt, error)
}

// Message is a composed review request.
type Message struct {
	From      string
	To        string
	Subject   string
	MessageID string
	Date      time.Time
	Hash      string
	Body      string
}

// Compose builds the review request for c. The subject ends with the hash
// so a bare reply still identifies the candidate.
func Compose(from, to, prefix string, c candidate.Candidate, at time.Time) Message {
	title := oneLine(c.DisplayTitle())
	subject := fmt.Sprintf("Review: %s (%s)", title, c.ContentHash)
	if p := oneLine(prefix); p != "" {
		subject = p + " " + subject
	}

	var b strings.Builder
	b.WriteString("A new candidate report needs a decision.\n\n")
	fmt.Fprintf(&b, "Title:   %s\n", title)
	fmt.Fprintf(&b, "URL:     %s\n", c.URL)
	if s := oneLine(c.Snippet); s != "" {
		fmt.Fprintf(&b, "Snippet: %s\n", s)
	}
	fmt.Fprintf(&b, "Hash:    %s\n\n", c.ContentHash)
	b.WriteString("Reply to this message without any text to approve it.\n")
	fmt.Fprintf(&b, "To reject it, reply with:              REJECT %s\n", c.ContentHash)
	fmt.Fprintf(&b, "To exclude it from future runs, reply: NEVER %s\n\n", c.ContentHash)
	fmt.Fprintf(&b, "Approve: %s\n", mailto(to, "APPROVE", c.ContentHash))
	fmt.Fprintf(&b, "Reject:  %s\n", mailto(to, "REJECT", c.ContentHash))
	fmt.Fprintf(&b, "Never:   %s\n", mailto(to, "NEVER", c.ContentHash))

	return Message{
		From:      from,
		To:        to,
		Subject:   subject,
		MessageID: newMessageID(from),
		Date:      at,
		Hash:      c.ContentHash,
		Body:      b.String(),
	}
}

// Bytes renders m as an RFC 5322 message with a quoted-printable body.
func (m Message) Bytes() []byte {
	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }
	header("From", m.From)
	header("To", m.To)
	header("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	header("Date", m.Date.Format(time.RFC1123Z))
	header("Message-ID", m.MessageID)
	header(HashHeader, m.Hash)
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	header("Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	_, _ = qp.Write([]byte(strings.ReplaceAll(m.Body, "\n", "\r\n")))
	_ = qp.Close()
	return buf.Bytes()
}

func mailto(to, verb, hash string) string {
	q := url.Values{}
	q.Set("subject", verb+" "+hash)
	return "mailto:" + to + "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}

func newMessageID(from string) string {
	domain := "adaptwatch.local"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = strings.Trim(from[i+1:], "<> ")
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}

// oneLine removes line breaks so header values cannot be split.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
