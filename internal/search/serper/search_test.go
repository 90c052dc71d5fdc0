package serper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammad-safakhou/adaptwatch/internal/search/models"
)

func TestSearch(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("X-API-KEY") != "secret" {
			t.Errorf("missing api key header")
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["q"] != "resilience bonds site:worldbank.org" {
			t.Errorf("unexpected q %v", body["q"])
		}
		fmt.Fprint(w, `{"organic":[
			{"title":"A","link":"https://a.org/r.pdf","snippet":"one"},
			{"title":"B","link":"https://b.org/r","snippet":"two"},
			{"title":"C","link":"https://c.org/r","snippet":"three"}]}`)
	}))
	defer srv.Close()

	s := Search{APIKey: "secret", Endpoint: srv.URL, Client: srv.Client()}
	got, err := s.Search(context.Background(), models.Query{Text: "resilience bonds", Limit: 2, Sites: []string{"worldbank.org"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 || got[0].URL != "https://a.org/r.pdf" || got[1].Snippet != "two" {
		t.Fatalf("unexpected results %+v", got)
	}
}
