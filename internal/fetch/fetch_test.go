package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/adaptwatch/internal/candidate"
	"github.com/mohammad-safakhou/adaptwatch/internal/failure"
)

const page = `<!doctype html><html><head><title>Adaptation Finance Outlook 2025</title></head>
<body><article><h1>Adaptation Finance Outlook 2025</h1>
<p>Insurance schemes for climate adaptation expanded across coastal regions during the last reporting period, with parametric covers leading growth.</p>
<p>Public-private partnerships remain the main delivery vehicle for risk transfer in lower income economies, according to the survey.</p>
</article></body></html>`

func TestFetchHTML(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "adaptwatch-test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	f := Fetcher{Client: srv.Client(), UserAgent: "adaptwatch-test", MaxBytes: 1 << 20}
	doc, err := f.Fetch(context.Background(), srv.URL+"/outlook")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if doc.ContentType != "text/html" {
		t.Fatalf("unexpected content type %q", doc.ContentType)
	}
	if !strings.Contains(doc.Title, "Adaptation Finance Outlook") {
		t.Fatalf("unexpected title %q", doc.Title)
	}
	if !strings.Contains(doc.Text, "parametric covers") {
		t.Fatalf("expected article text, got %q", doc.Text)
	}
	if doc.Hash() != candidate.Fingerprint([]byte(page)) {
		t.Fatalf("hash must cover the raw bytes")
	}
}

func TestFetchUnreadablePDFTitleFromURL(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7 fake"))
	}))
	defer srv.Close()

	doc, err := Fetcher{Client: srv.Client()}.Fetch(context.Background(), srv.URL+"/docs/Adaptation_Gap_2024.pdf")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if doc.Title != "Adaptation Gap 2024.pdf" {
		t.Fatalf("unexpected title %q", doc.Title)
	}
	if doc.Text != "" || doc.Pages != 0 {
		t.Fatalf("unreadable pdf should carry no text or pages, got %q %d", doc.Text, doc.Pages)
	}
}

func TestFetchTooLarge(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	_, err := Fetcher{Client: srv.Client(), MaxBytes: 16}.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestFetchServerErrorIsTransient(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Fetcher{Client: srv.Client()}.Fetch(context.Background(), srv.URL)
	if !failure.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestYear(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		parts []string
		want  int
	}{
		{"text first", []string{"published 2023, revised 2024", "https://x.org/2019.pdf"}, 2023},
		{"falls through to url", []string{"no digits here", "https://x.org/report-2021.pdf"}, 2021},
		{"none", []string{"undated", "https://x.org/r.pdf"}, 1900},
		{"beyond scan window", []string{strings.Repeat("a", 4000) + " 2024"}, 1900},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Year(tc.parts...); got != tc.want {
				t.Fatalf("Year = %d, want %d", got, tc.want)
			}
		})
	}
}
