// Package google queries the Programmable Search (Custom Search JSON) API.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammad-safakhou/adaptwatch/internal/failure"
	"github.com/mohammad-safakhou/adaptwatch/internal/search/models"
)

const (
	defaultEndpoint = "https://www.googleapis.com/customsearch/v1"
	pageSize        = 10
	// The API refuses start indexes past 100 results.
	maxStart = 91
)

type Search struct {
	APIKey   string
	EngineID string
	Endpoint string
	Client   *http.Client
	// PageDelay spaces out paginated requests to stay inside the free tier.
	PageDelay time.Duration
}

type response struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
	Queries struct {
		NextPage []struct {
			StartIndex int `json:"startIndex"`
		} `json:"nextPage"`
	} `json:"queries"`
}

func (s Search) Search(ctx context.Context, q models.Query) ([]models.Result, error) {
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	limit := q.Limit
	if limit <= 0 {
		limit = pageSize
	}
	text := q.Text
	if len(q.Sites) > 0 {
		sites := make([]string, len(q.Sites))
		for i, site := range q.Sites {
			sites[i] = "site:" + site
		}
		text += " (" + strings.Join(sites, " OR ") + ")"
	}

	var out []models.Result
	start := 1
	for len(out) < limit && start <= maxStart {
		params := url.Values{}
		params.Set("key", s.APIKey)
		params.Set("cx", s.EngineID)
		params.Set("q", text)
		params.Set("num", strconv.Itoa(min(limit-len(out), pageSize)))
		params.Set("start", strconv.Itoa(start))
		if q.RecencyDays > 0 {
			params.Set("dateRestrict", fmt.Sprintf("d%d", q.RecencyDays))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		resp, err := models.Do(s.Client, "google search", req)
		if err != nil {
			return nil, err
		}
		var page response
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, failure.Transient("google search decode", err)
		}
		for _, it := range page.Items {
			if len(out) >= limit {
				break
			}
			out = append(out, models.Result{Title: it.Title, URL: it.Link, Snippet: it.Snippet})
		}
		if len(page.Queries.NextPage) == 0 || len(page.Items) == 0 {
			break
		}
		start = page.Queries.NextPage[0].StartIndex
		if len(out) < limit && s.PageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.PageDelay):
			}
		}
	}
	return out, nil
}
