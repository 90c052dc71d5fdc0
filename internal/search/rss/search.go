// Package rss treats a list of publisher feeds as a search provider: feed
// items whose title or description mention any query keyword are returned.
package rss

import (
	"context"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/mohammad-safakhou/adaptwatch/internal/failure"
	"github.com/mohammad-safakhou/adaptwatch/internal/search/models"
)

type Search struct {
	Feeds  []string
	Client *http.Client
}

func (s Search) Search(ctx context.Context, q models.Query) ([]models.Result, error) {
	keywords := strings.Fields(strings.ToLower(q.Text))
	if len(keywords) == 0 {
		return nil, nil
	}
	parser := gofeed.NewParser()
	var out []models.Result
	var lastErr error
	fetched := 0
	for _, feedURL := range s.Feeds {
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := models.Do(s.Client, "rss fetch", req)
		if err != nil {
			lastErr = err
			continue
		}
		feed, err := parser.Parse(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		fetched++
		for _, it := range feed.Items {
			if q.Limit > 0 && len(out) >= q.Limit {
				break
			}
			text := strings.ToLower(it.Title + " " + it.Description)
			if !matchesAny(text, keywords) || !allowedSite(it.Link, q.Sites) {
				continue
			}
			out = append(out, models.Result{
				Title:   strings.TrimSpace(it.Title),
				URL:     strings.TrimSpace(it.Link),
				Snippet: strings.TrimSpace(it.Description),
			})
		}
	}
	if fetched == 0 && lastErr != nil {
		if failure.IsTransient(lastErr) {
			return nil, lastErr
		}
		return nil, failure.Transient("rss fetch", lastErr)
	}
	return out, nil
}

func matchesAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func allowedSite(link string, sites []string) bool {
	if len(sites) == 0 {
		return true
	}
	link = strings.ToLower(link)
	for _, s := range sites {
		if strings.Contains(link, strings.ToLower(s)) {
			return true
		}
	}
	return false
}
