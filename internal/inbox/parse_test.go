package inbox

import (
	"strings"
	"testing"
)

const hash = "3a7f3a7f3a7f3a7f3a7f3a7f3a7f3a7f3a7f3a7f3a7f3a7f3a7f3a7f3a7f3a7f"

func TestParseMessagePlain(t *testing.T) {
	t.Parallel()
	raw := "From: Reviewer <reviewer@example.org>\r\n" +
		"Subject: =?utf-8?q?Re=3A_Review=3A_Adaptation_Gap?=\r\n" +
		"Message-ID: <r1@example.org>\r\n" +
		"In-Reply-To: <n1@example.org>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"REJECT " + hash + "\r\n" +
		"\r\n" +
		"> quoted notification\r\n"

	r, err := ParseMessage(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.MessageID != "<r1@example.org>" || r.InReplyTo != "<n1@example.org>" {
		t.Fatalf("unexpected ids: %+v", r)
	}
	if r.Subject != "Re: Review: Adaptation Gap" {
		t.Fatalf("subject not decoded: %q", r.Subject)
	}
	if !strings.HasPrefix(r.Body, "REJECT "+hash) {
		t.Fatalf("unexpected body %q", r.Body)
	}
}

func TestParseMessageMultipartPrefersPlain(t *testing.T) {
	t.Parallel()
	raw := "From: reviewer@example.org\r\n" +
		"Subject: Re: Review\r\n" +
		"References: <a@x> <n2@example.org>\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=BOUND\r\n" +
		"\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"TkVWRVIg" + "\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>ignored</p>\r\n" +
		"--BOUND--\r\n"

	r, err := ParseMessage(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.InReplyTo != "<n2@example.org>" {
		t.Fatalf("expected last reference, got %q", r.InReplyTo)
	}
	if r.Body != "NEVER " {
		t.Fatalf("unexpected body %q", r.Body)
	}
}

func TestParseMessageHTMLOnly(t *testing.T) {
	t.Parallel()
	raw := "From: reviewer@example.org\r\n" +
		"Subject: Re: Review\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><body><div>NEVER " + hash + "</div>" +
		"<blockquote>REJECT " + hash + "</blockquote></body></html>\r\n"

	r, err := ParseMessage(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if strings.Contains(r.Body, "REJECT") {
		t.Fatalf("quoted html should be dropped: %q", r.Body)
	}
	if !strings.HasPrefix(r.Body, "NEVER "+hash) {
		t.Fatalf("unexpected body %q", r.Body)
	}
}
