// Package agent assembles the stores and collaborators from configuration
// and runs the reply and discovery passes.
package agent

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/adaptwatch/config"
	"github.com/mohammad-safakhou/adaptwatch/internal/discover"
	"github.com/mohammad-safakhou/adaptwatch/internal/failure"
	"github.com/mohammad-safakhou/adaptwatch/internal/fetch"
	"github.com/mohammad-safakhou/adaptwatch/internal/inbox"
	"github.com/mohammad-safakhou/adaptwatch/internal/labels"
	"github.com/mohammad-safakhou/adaptwatch/internal/notify"
	"github.com/mohammad-safakhou/adaptwatch/internal/reply"
	"github.com/mohammad-safakhou/adaptwatch/internal/scheduler"
	"github.com/mohammad-safakhou/adaptwatch/internal/search"
	"github.com/mohammad-safakhou/adaptwatch/internal/search/models"
	"github.com/mohammad-safakhou/adaptwatch/internal/state"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Inbox yields reviewer replies and acknowledges processed ones.
type Inbox interface {
	Pending(ctx context.Context) ([]reply.Reply, error)
	Ack(r reply.Reply) error
}

// Agent owns the durable stores for one process. Discovery and reply
// collaborators are built on demand so commands only need the credentials
// they use; tests set them directly.
type Agent struct {
	Config     *config.Config
	Logger     *zap.Logger
	Labels     *labels.Store
	Exclusions state.ExclusionSet
	Ledger     state.Ledger
	FollowUps  reply.FollowUpQueue
	Inbox      Inbox
	Searcher   search.Searcher
	Fetcher    discover.Fetcher
	Notifier   notify.Notifier

	redis   *redis.Client
	closers []func() error
}

// New opens the label store, the exclusion set and the notification
// ledger for the configured backend.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Agent{
		Config:    cfg,
		Logger:    logger,
		FollowUps: &reply.FileFollowUps{Path: filepath.Join(cfg.General.DataDir, "followups.jsonl")},
	}

	opts := []labels.Option{labels.WithLogger(logger.Named("labels"))}
	if cfg.Storage.Postgres.Enabled() {
		mirror, err := labels.OpenPostgresMirror(ctx, cfg.Storage.Postgres.URL)
		if err != nil {
			logger.Warn("postgres label mirror unavailable, continuing with csv only", zap.Error(err))
		} else {
			opts = append(opts, labels.WithMirror(mirror))
			a.closers = append(a.closers, mirror.Close)
		}
	}
	store, err := labels.Open(cfg.Storage.LabelsDir, opts...)
	if err != nil {
		a.Close()
		return nil, failure.Transient("open label store", err)
	}
	a.Labels = store

	switch cfg.Storage.Backend {
	case "redis":
		r := cfg.Storage.Redis
		client, err := state.Conn(ctx, r.Host, r.Port, r.Password, r.DB, r.Timeout)
		if err != nil {
			a.Close()
			return nil, failure.Transient("connect redis", err)
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
		a.Exclusions = state.NewRedisExclusions(client, r.Prefix)
		a.Ledger = state.NewRedisLedger(client, r.Prefix)
	default:
		ex, err := state.OpenFileExclusions(filepath.Join(cfg.General.DataDir, "exclusions.txt"))
		if err != nil {
			a.Close()
			return nil, failure.Transient("open exclusions", err)
		}
		ledger, err := state.OpenFileLedger(filepath.Join(cfg.General.DataDir, "notified.json"))
		if err != nil {
			a.Close()
			return nil, failure.Transient("open ledger", err)
		}
		a.Exclusions = ex
		a.Ledger = ledger
	}
	return a, nil
}

// EnableDiscovery checks the discovery credentials and builds the search,
// fetch and notification collaborators that were not injected.
func (a *Agent) EnableDiscovery() error {
	cfg := a.Config
	if a.Searcher == nil || a.Notifier == nil {
		if err := cfg.ValidateDiscovery(); err != nil {
			return err
		}
	}
	if a.Searcher == nil {
		s, err := search.New(cfg.Search, &http.Client{Timeout: cfg.Search.Timeout})
		if err != nil {
			return &failure.ConfigurationError{Field: "search.provider", Reason: err.Error()}
		}
		a.Searcher = s
	}
	if a.Fetcher == nil && cfg.Fetch.Enabled {
		a.Fetcher = fetch.Fetcher{
			Client:    &http.Client{},
			Timeout:   cfg.Fetch.Timeout,
			MaxBytes:  cfg.Fetch.MaxBytes,
			UserAgent: cfg.Fetch.UserAgent,
			Logger:    a.Logger.Named("fetch"),
		}
	}
	if a.Notifier == nil {
		a.Notifier = &notify.SMTPNotifier{
			Host:          cfg.SMTP.Host,
			Port:          cfg.SMTP.Port,
			Username:      cfg.SMTP.Username,
			Password:      cfg.SMTP.Password,
			From:          cfg.SMTP.From,
			To:            cfg.Reviewer.Email,
			SubjectPrefix: cfg.Reviewer.SubjectPrefix,
			StartTLS:      cfg.SMTP.StartTLS,
			Timeout:       cfg.SMTP.Timeout,
			Logger:        a.Logger.Named("notify"),
		}
	}
	return nil
}

// EnableReplies opens the reply Maildir unless an inbox was injected.
func (a *Agent) EnableReplies() error {
	if a.Inbox != nil {
		return nil
	}
	if err := a.Config.ValidateReplies(); err != nil {
		return err
	}
	mb, err := inbox.Open(a.Config.Inbox.Dir, a.Logger.Named("inbox"))
	if err != nil {
		return err
	}
	a.Inbox = mb
	return nil
}

// RunReplies resolves every pending reply. Reply-level problems are logged
// and skipped; storage failures are returned after the batch.
func (a *Agent) RunReplies(ctx context.Context, m *Metrics) (reply.Summary, error) {
	if err := a.EnableReplies(); err != nil {
		return reply.Summary{}, err
	}
	pending, err := a.Inbox.Pending(ctx)
	if err != nil {
		return reply.Summary{}, err
	}
	interp := &reply.Interpreter{
		Ledger:     a.Ledger,
		Labels:     a.Labels,
		Exclusions: a.Exclusions,
		FollowUps:  a.FollowUps,
		Logger:     a.Logger.Named("reply"),
	}
	sum, err := interp.Process(ctx, pending, a.Inbox.Ack)
	if m != nil {
		m.ObserveReplies(sum)
	}
	a.Logger.Info("replies processed",
		zap.Int("processed", sum.Processed),
		zap.Int("labeled", len(sum.Records)),
		zap.Any("outcomes", sum.Outcomes))
	return sum, err
}

// RunDiscovery searches for new candidates and notifies the reviewer.
func (a *Agent) RunDiscovery(ctx context.Context, m *Metrics) (discover.Report, error) {
	if err := a.EnableDiscovery(); err != nil {
		return discover.Report{}, err
	}
	cfg := a.Config
	d := &discover.Discoverer{
		Searcher:   a.Searcher,
		Fetcher:    a.Fetcher,
		Exclusions: a.Exclusions,
		Ledger:     a.Ledger,
		Labels:     a.Labels,
		Notifier:   a.Notifier,
		Query: models.Query{
			Text:        cfg.Search.Query,
			Limit:       cfg.Search.NumResults,
			Sites:       cfg.Search.Sites,
			RecencyDays: cfg.Search.RecencyDays,
		},
		Logger: a.Logger.Named("discover"),
	}
	if a.Fetcher != nil {
		d.MinYear = cfg.Fetch.MinYear
		d.MinPages = cfg.Fetch.MinPages
	}
	rep, err := d.Run(ctx)
	if m != nil {
		m.ObserveDiscovery(rep)
	}
	a.Logger.Info("discovery finished",
		zap.Int("found", rep.Found),
		zap.Int("notified", len(rep.Notified)),
		zap.Int("excluded", rep.Excluded),
		zap.Int("too_old", rep.TooOld),
		zap.Int("too_short", rep.TooShort),
		zap.Int("already_notified", rep.AlreadyNotified),
		zap.Int("fetch_failed", rep.FetchFailed))
	return rep, err
}

// RunCycle processes replies first so verdicts given since the last run
// (NEVER in particular) apply to this run's discovery. Missing settings
// fail the cycle before anything is read or sent; other failures are
// collected. The whole cycle is bounded by general.timeout.
func (a *Agent) RunCycle(ctx context.Context) error {
	if err := a.EnableDiscovery(); err != nil {
		return err
	}
	if err := a.EnableReplies(); err != nil {
		return err
	}
	if t := a.Config.General.Timeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	started := time.Now()
	runID := uuid.NewString()
	log := a.Logger.With(zap.String("run_id", runID))
	log.Info("run started")
	m := NewMetrics()

	_, replyErr := a.RunReplies(ctx, m)
	var discoverErr error
	if ctx.Err() == nil {
		_, discoverErr = a.RunDiscovery(ctx, m)
	}
	err := errors.Join(replyErr, discoverErr)
	m.Finish(started, err)
	a.PushMetrics(ctx, m)
	if err != nil {
		log.Error("run finished with errors", zap.Error(err), zap.Duration("took", time.Since(started)))
		return err
	}
	log.Info("run finished", zap.Duration("took", time.Since(started)))
	return nil
}

// PushMetrics sends m to the configured Pushgateway. Failures are logged.
func (a *Agent) PushMetrics(ctx context.Context, m *Metrics) {
	t := a.Config.Telemetry
	if t.PushgatewayURL == "" || m == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := m.Push(pctx, t.PushgatewayURL, t.Job); err != nil {
		a.Logger.Warn("pushgateway push failed", zap.Error(err))
	}
}

// Locker returns a cross-host lock for scheduled runs when Redis is the
// backend, nil otherwise.
func (a *Agent) Locker() scheduler.Locker {
	if a.redis == nil {
		return nil
	}
	key := a.Config.Storage.Redis.Prefix + "schedule:lock"
	return state.NewRedisLock(a.redis, key, a.Config.Schedule.LockTTL, uuid.NewString())
}

// Close releases connections opened by New.
func (a *Agent) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
