package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/adaptwatch/internal/failure"
	"github.com/mohammad-safakhou/adaptwatch/internal/search/models"
)

const defaultEndpoint = "https://google.serper.dev/search"

type Search struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
}

func (s Search) Search(ctx context.Context, q models.Query) ([]models.Result, error) {
	// https://serper.dev/ docs
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	text := q.Text
	if len(q.Sites) > 0 {
		text += " site:" + strings.Join(q.Sites, " OR site:")
	}
	payload := map[string]any{"q": text, "num": q.Limit}
	if q.RecencyDays > 0 {
		payload["tbs"] = fmt.Sprintf("qdr:d%d", q.RecencyDays)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := models.Do(s.Client, "serper search", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, failure.Transient("serper search decode", err)
	}
	var out []models.Result
	for i, it := range raw.Organic {
		if q.Limit > 0 && i >= q.Limit {
			break
		}
		out = append(out, models.Result{Title: it.Title, URL: it.Link, Snippet: it.Snippet})
	}
	return out, nil
}
