// Package search discovers candidate reports through a web search provider.
package search

import (
	"context"
	"errors"
	"net/http"

	"github.com/mohammad-safakhou/adaptwatch/config"
	"github.com/mohammad-safakhou/adaptwatch/internal/search/brave"
	"github.com/mohammad-safakhou/adaptwatch/internal/search/google"
	"github.com/mohammad-safakhou/adaptwatch/internal/search/models"
	"github.com/mohammad-safakhou/adaptwatch/internal/search/rss"
	"github.com/mohammad-safakhou/adaptwatch/internal/search/serper"
)

// Searcher returns candidate documents for a query.
type Searcher interface {
	Search(ctx context.Context, q models.Query) ([]models.Result, error)
}

type Provider string

const (
	GoogleProvider Provider = "google"
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
	RSSProvider    Provider = "rss"
)

var ErrUnsupportedProvider = errors.New("unsupported search provider")

// New builds the Searcher selected by cfg.Provider.
func New(cfg config.SearchConfig, client *http.Client) (Searcher, error) {
	switch Provider(cfg.Provider) {
	case GoogleProvider:
		return google.Search{APIKey: cfg.GoogleAPIKey, EngineID: cfg.GoogleCSEID, Client: client, PageDelay: cfg.PageDelay}, nil
	case SerperProvider:
		return serper.Search{APIKey: cfg.SerperAPIKey, Client: client}, nil
	case BraveProvider:
		return brave.Search{APIKey: cfg.BraveAPIKey, Client: client}, nil
	case RSSProvider:
		return rss.Search{Feeds: cfg.RSSFeeds, Client: client}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
