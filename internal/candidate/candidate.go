// Package candidate holds the discovered-document type and the content
// fingerprint that identifies it across runs.
package candidate

import "strings"

// Candidate is a document surfaced by a search provider and considered for
// the labeled dataset. ContentHash is its durable identifier.
type Candidate struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	ContentHash string `json:"content_hash"`
}

// DisplayTitle returns the title, or the last path segment of the URL when
// the provider returned none.
func (c Candidate) DisplayTitle() string {
	if t := strings.TrimSpace(c.Title); t != "" {
		return t
	}
	return TitleFromURL(c.URL)
}

// TitleFromURL derives a human readable title from the final path segment,
// e.g. ".../Adaptation_Gap_2024.pdf" -> "Adaptation Gap 2024.pdf".
func TitleFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.TrimRight(raw, "/")
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	raw = strings.ReplaceAll(raw, "_", " ")
	if len(raw) > 120 {
		raw = raw[:120]
	}
	return raw
}
