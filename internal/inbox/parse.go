package inbox

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mohammad-safakhou/adaptwatch/internal/reply"
)

// maxPartBytes caps how much of a single MIME part is read.
const maxPartBytes = 1 << 20

var headerDecoder = &mime.WordDecoder{}

// ParseMessage converts a raw RFC 5322 message into a Reply. The body is the
// first text/plain part; HTML-only messages are reduced to their text.
func ParseMessage(r io.Reader) (reply.Reply, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return reply.Reply{}, fmt.Errorf("read message: %w", err)
	}
	out := reply.Reply{
		MessageID: strings.TrimSpace(msg.Header.Get("Message-ID")),
		From:      decodeHeader(msg.Header.Get("From")),
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		InReplyTo: inReplyTo(msg.Header),
	}
	body, err := textBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return reply.Reply{}, err
	}
	out.Body = body
	return out, nil
}

func decodeHeader(v string) string {
	d, err := headerDecoder.DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(d)
}

// inReplyTo returns the first In-Reply-To id, or the last References id.
func inReplyTo(h mail.Header) string {
	if ids := strings.Fields(h.Get("In-Reply-To")); len(ids) > 0 {
		return ids[0]
	}
	if ids := strings.Fields(h.Get("References")); len(ids) > 0 {
		return ids[len(ids)-1]
	}
	return ""
}

func textBody(contentType, encoding string, body io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || contentType == "" {
		mediaType = "text/plain"
	}
	if strings.HasPrefix(mediaType, "multipart/") {
		plain, html, err := walkParts(multipart.NewReader(body, params["boundary"]))
		if err != nil {
			return "", err
		}
		if plain != "" {
			return plain, nil
		}
		return htmlText(html), nil
	}
	raw, err := decodeBody(encoding, body)
	if err != nil {
		return "", err
	}
	if mediaType == "text/html" {
		return htmlText(raw), nil
	}
	return raw, nil
}

// walkParts returns the first text/plain and text/html parts, descending
// into nested multiparts.
func walkParts(mr *multipart.Reader) (plain, html string, err error) {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return plain, html, nil
		}
		if err != nil {
			return plain, html, fmt.Errorf("read part: %w", err)
		}
		mediaType, params, perr := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if perr != nil {
			mediaType = "text/plain"
		}
		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			p, h, err := walkParts(multipart.NewReader(part, params["boundary"]))
			if err != nil {
				return plain, html, err
			}
			if plain == "" {
				plain = p
			}
			if html == "" {
				html = h
			}
		case mediaType == "text/plain" && plain == "" && !isAttachment(part):
			plain, err = decodeBody(partEncoding(part), part)
			if err != nil {
				return plain, html, err
			}
		case mediaType == "text/html" && html == "" && !isAttachment(part):
			html, err = decodeBody(partEncoding(part), part)
			if err != nil {
				return plain, html, err
			}
		}
	}
}

func isAttachment(p *multipart.Part) bool {
	d, _, err := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
	return err == nil && d == "attachment"
}

// partEncoding reports the transfer encoding still to be undone. The
// multipart reader strips quoted-printable and removes the header.
func partEncoding(p *multipart.Part) string {
	return p.Header.Get("Content-Transfer-Encoding")
}

func decodeBody(encoding string, r io.Reader) (string, error) {
	r = io.LimitReader(r, maxPartBytes)
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	return string(b), nil
}

// htmlText reduces an HTML reply to text, one line per block element, and
// drops quoted history.
func htmlText(src string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return src
	}
	doc.Find("blockquote, style, script, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, tr, li").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return strings.TrimSpace(doc.Text())
}
