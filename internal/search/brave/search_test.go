package brave

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammad-safakhou/adaptwatch/internal/search/models"
)

func TestSearch(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "tok" {
			t.Errorf("missing subscription token")
		}
		if got := r.URL.Query().Get("freshness"); got != "pw" {
			t.Errorf("unexpected freshness %q", got)
		}
		fmt.Fprint(w, `{"web":{"results":[{"title":"Heat risk","url":"https://x.org/heat","description":"parametric cover"}]}}`)
	}))
	defer srv.Close()

	s := Search{APIKey: "tok", Endpoint: srv.URL, Client: srv.Client()}
	got, err := s.Search(context.Background(), models.Query{Text: "heat insurance", Limit: 5, RecencyDays: 7})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Heat risk" || got[0].Snippet != "parametric cover" {
		t.Fatalf("unexpected results %+v", got)
	}
}

func TestFreshness(t *testing.T) {
	t.Parallel()
	cases := map[int]string{0: "", 1: "pd", 5: "pw", 30: "pm", 200: "py"}
	for days, want := range cases {
		if got := freshness(days); got != want {
			t.Fatalf("freshness(%d) = %q, want %q", days, got, want)
		}
	}
}
