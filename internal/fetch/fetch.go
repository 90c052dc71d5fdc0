// Package fetch downloads candidate documents so they can be fingerprinted
// by content rather than by URL.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/mohammad-safakhou/adaptwatch/internal/candidate"
	"github.com/mohammad-safakhou/adaptwatch/internal/search/models"
	"go.uber.org/zap"
)

// ErrTooLarge is returned when a document exceeds MaxBytes.
var ErrTooLarge = errors.New("document exceeds size limit")

// Document is a downloaded candidate.
type Document struct {
	URL         string
	ContentType string
	Body        []byte
	Title       string
	Text        string
	Excerpt     string
	// Pages is the PDF page count, or a words/500 estimate for HTML and
	// plain text.
	Pages int
}

// Hash is the content fingerprint of the raw bytes.
func (d Document) Hash() string {
	return candidate.Fingerprint(d.Body)
}

type Fetcher struct {
	Client    *http.Client
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
	Logger    *zap.Logger
}

func (f Fetcher) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// Fetch downloads link. Network failures and 5xx responses are transient.
func (f Fetcher) Fetch(ctx context.Context, link string) (Document, error) {
	if strings.TrimSpace(link) == "" {
		return Document{}, errors.New("invalid url")
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return Document{}, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	resp, err := models.Do(f.Client, "fetch "+link, req)
	if err != nil {
		return Document{}, err
	}
	defer resp.Body.Close()

	reader := io.Reader(resp.Body)
	if f.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", link, err)
	}
	if f.MaxBytes > 0 && int64(len(body)) > f.MaxBytes {
		return Document{}, fmt.Errorf("%s: %w", link, ErrTooLarge)
	}

	doc := Document{URL: link, ContentType: mediaType(resp.Header.Get("Content-Type"), body), Body: body}
	switch {
	case isPDF(&doc):
		if err := extractPDF(&doc); err != nil {
			f.logger().Debug("pdf text unavailable", zap.String("url", link), zap.Error(err))
		}
	case doc.ContentType == "text/html" || doc.ContentType == "application/xhtml+xml":
		extract(&doc)
		doc.Pages = estimatePages(doc.Text)
	case strings.HasPrefix(doc.ContentType, "text/"):
		doc.Text = string(body)
		doc.Pages = estimatePages(doc.Text)
	}
	if doc.Title == "" {
		doc.Title = candidate.TitleFromURL(link)
	}
	return doc, nil
}

func extract(doc *Document) {
	article, err := readability.FromReader(bytes.NewReader(doc.Body), mustParseURL(doc.URL))
	if err != nil {
		return
	}
	doc.Title = strings.TrimSpace(article.Title)
	doc.Text = strings.TrimSpace(article.TextContent)
	doc.Excerpt = strings.TrimSpace(article.Excerpt)
}

func mediaType(header string, body []byte) string {
	if header == "" {
		header = http.DetectContentType(body)
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return mt
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
