// Package discover runs one discovery pass: search, fingerprint, filter
// and notify the reviewer about candidates it has not seen before.
package discover

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/adaptwatch/internal/candidate"
	"github.com/mohammad-safakhou/adaptwatch/internal/fetch"
	"github.com/mohammad-safakhou/adaptwatch/internal/notify"
	"github.com/mohammad-safakhou/adaptwatch/internal/search"
	"github.com/mohammad-safakhou/adaptwatch/internal/search/models"
	"github.com/mohammad-safakhou/adaptwatch/internal/state"
	"go.uber.org/zap"
)

// Fetcher downloads a candidate so it can be hashed by content.
type Fetcher interface {
	Fetch(ctx context.Context, link string) (fetch.Document, error)
}

// LabelIndex reports hashes that already carry a label.
type LabelIndex interface {
	Contains(ctx context.Context, hash string) (bool, error)
}

// Discoverer wires the collaborators of a discovery pass. Fetcher and
// Labels are optional: without a Fetcher candidates are fingerprinted by
// canonical URL and the year and length filters are skipped.
type Discoverer struct {
	Searcher   search.Searcher
	Fetcher    Fetcher
	Exclusions state.ExclusionSet
	Ledger     state.Ledger
	Labels     LabelIndex
	Notifier   notify.Notifier
	Query      models.Query
	MinYear    int
	MinPages   int
	Logger     *zap.Logger
}

// Report counts what happened to the search results of one pass.
type Report struct {
	Found           int
	Duplicates      int
	FetchFailed     int
	TooOld          int
	TooShort        int
	Excluded        int
	AlreadyNotified int
	AlreadyLabeled  int
	Notified        []candidate.Candidate
}

// Run executes a discovery pass. A search failure aborts the pass. Fetch
// failures skip the candidate. A notification or ledger failure stops the
// pass so nothing is emailed without being recorded.
func (d *Discoverer) Run(ctx context.Context) (Report, error) {
	log := d.logger()
	var rep Report
	results, err := d.Searcher.Search(ctx, d.Query)
	if err != nil {
		return rep, fmt.Errorf("search: %w", err)
	}
	rep.Found = len(results)
	log.Info("search complete", zap.String("query", d.Query.Text), zap.Int("results", len(results)))

	seenURL := make(map[string]struct{}, len(results))
	seenHash := make(map[string]struct{}, len(results))
	var fetchErrs []error
	for _, res := range results {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		link, err := candidate.CanonicalURL(res.URL)
		if err != nil {
			log.Debug("dropping unusable url", zap.String("url", res.URL), zap.Error(err))
			continue
		}
		if _, dup := seenURL[link]; dup {
			rep.Duplicates++
			continue
		}
		seenURL[link] = struct{}{}

		c, filtered, err := d.candidate(ctx, res, link)
		if err != nil {
			rep.FetchFailed++
			fetchErrs = append(fetchErrs, err)
			log.Warn("fetch failed, skipping candidate", zap.String("url", link), zap.Error(err))
			continue
		}
		switch filtered {
		case filterTooOld:
			rep.TooOld++
			continue
		case filterTooShort:
			rep.TooShort++
			continue
		}
		if _, dup := seenHash[c.ContentHash]; dup {
			rep.Duplicates++
			continue
		}
		seenHash[c.ContentHash] = struct{}{}

		skip, err := d.skip(ctx, c, &rep)
		if err != nil {
			return rep, err
		}
		if skip {
			continue
		}

		receipt, err := d.Notifier.Notify(ctx, c)
		if err != nil {
			return rep, fmt.Errorf("notify %s: %w", c.ContentHash, err)
		}
		err = d.Ledger.Record(ctx, state.Notification{
			ContentHash: c.ContentHash,
			URL:         c.URL,
			Title:       c.DisplayTitle(),
			MessageID:   receipt.MessageID,
			NotifiedAt:  receipt.SentAt.UTC(),
		})
		if err != nil {
			log.Error("reviewer was emailed but the ledger write failed",
				zap.String("content_hash", c.ContentHash), zap.Error(err))
			return rep, fmt.Errorf("record notification %s: %w", c.ContentHash, err)
		}
		rep.Notified = append(rep.Notified, c)
		log.Info("candidate sent for review",
			zap.String("content_hash", c.ContentHash),
			zap.String("url", c.URL),
			zap.String("title", c.DisplayTitle()))
	}
	if len(fetchErrs) > 0 && len(fetchErrs) == len(seenURL) {
		// Every fetch failed: most likely the network, not the documents.
		return rep, errors.Join(fetchErrs...)
	}
	return rep, nil
}

type filter int

const (
	filterNone filter = iota
	filterTooOld
	filterTooShort
)

// candidate fingerprints res and reports whether the fetched document falls
// below MinPages or MinYear.
func (d *Discoverer) candidate(ctx context.Context, res models.Result, link string) (candidate.Candidate, filter, error) {
	c := candidate.Candidate{
		URL:     link,
		Title:   strings.TrimSpace(res.Title),
		Snippet: strings.TrimSpace(res.Snippet),
	}
	if d.Fetcher == nil {
		hash, err := candidate.FingerprintURL(link)
		if err != nil {
			return c, filterNone, err
		}
		c.ContentHash = hash
		return c, filterNone, nil
	}
	doc, err := d.Fetcher.Fetch(ctx, link)
	if err != nil {
		return c, filterNone, err
	}
	c.ContentHash = doc.Hash()
	if c.Title == "" {
		c.Title = doc.Title
	}
	if c.Snippet == "" {
		c.Snippet = doc.Excerpt
	}
	if d.MinPages > 0 && doc.Pages < d.MinPages {
		d.logger().Debug("candidate shorter than min pages",
			zap.String("url", link), zap.Int("pages", doc.Pages), zap.Int("min_pages", d.MinPages))
		return c, filterTooShort, nil
	}
	if d.MinYear > 0 {
		if y := fetch.Year(doc.Text, link, c.Title, c.Snippet); y < d.MinYear {
			d.logger().Debug("candidate older than min year",
				zap.String("url", link), zap.Int("year", y), zap.Int("min_year", d.MinYear))
			return c, filterTooOld, nil
		}
	}
	return c, filterNone, nil
}

func (d *Discoverer) skip(ctx context.Context, c candidate.Candidate, rep *Report) (bool, error) {
	excluded, err := d.Exclusions.Contains(ctx, c.ContentHash)
	if err != nil {
		return false, fmt.Errorf("check exclusions: %w", err)
	}
	if excluded {
		rep.Excluded++
		d.logger().Debug("candidate excluded", zap.String("content_hash", c.ContentHash))
		return true, nil
	}
	_, notified, err := d.Ledger.Get(ctx, c.ContentHash)
	if err != nil {
		return false, fmt.Errorf("check ledger: %w", err)
	}
	if notified {
		rep.AlreadyNotified++
		return true, nil
	}
	if d.Labels != nil {
		labeled, err := d.Labels.Contains(ctx, c.ContentHash)
		if err != nil {
			return false, fmt.Errorf("check labels: %w", err)
		}
		if labeled {
			rep.AlreadyLabeled++
			return true, nil
		}
	}
	return false, nil
}

func (d *Discoverer) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
