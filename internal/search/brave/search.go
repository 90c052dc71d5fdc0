package brave

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/adaptwatch/internal/failure"
	"github.com/mohammad-safakhou/adaptwatch/internal/search/models"
)

const (
	defaultEndpoint = "https://api.search.brave.com/res/v1/web/search"
	maxCount        = 20
)

type Search struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
}

func (s Search) Search(ctx context.Context, q models.Query) ([]models.Result, error) {
	// https://api.search.brave.com/app/documentation/web-search
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	text := q.Text
	if len(q.Sites) > 0 {
		text += " site:" + strings.Join(q.Sites, " OR site:")
	}
	count := q.Limit
	if count <= 0 || count > maxCount {
		count = maxCount
	}
	params := url.Values{}
	params.Set("q", text)
	params.Set("count", strconv.Itoa(count))
	if f := freshness(q.RecencyDays); f != "" {
		params.Set("freshness", f)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.APIKey)
	resp, err := models.Do(s.Client, "brave search", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, failure.Transient("brave search decode", err)
	}
	var out []models.Result
	for i, r := range raw.Web.Results {
		if i >= count {
			break
		}
		out = append(out, models.Result{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}
	return out, nil
}

// freshness maps a recency window onto Brave's coarse buckets.
func freshness(days int) string {
	switch {
	case days <= 0:
		return ""
	case days <= 1:
		return "pd"
	case days <= 7:
		return "pw"
	case days <= 31:
		return "pm"
	default:
		return "py"
	}
}
