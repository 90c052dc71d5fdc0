package agent

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/adaptwatch/internal/discover"
	"github.com/mohammad-safakhou/adaptwatch/internal/reply"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the counters for one batch run. Each run gets a fresh
// registry so a push reports that run only.
type Metrics struct {
	Registry *prometheus.Registry

	discovered    prometheus.Counter
	notified      prometheus.Counter
	excluded      prometheus.Counter
	fetchFailures prometheus.Counter
	replies       *prometheus.CounterVec
	labels        *prometheus.CounterVec
	duration      prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		discovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adaptwatch_candidates_discovered_total",
			Help: "Search results considered in this run.",
		}),
		notified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adaptwatch_candidates_notified_total",
			Help: "Candidates emailed to the reviewer.",
		}),
		excluded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adaptwatch_candidates_excluded_total",
			Help: "Candidates skipped because they were marked NEVER.",
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adaptwatch_fetch_failures_total",
			Help: "Candidate documents that could not be downloaded.",
		}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adaptwatch_replies_total",
			Help: "Reviewer replies processed, by outcome.",
		}, []string{"outcome"}),
		labels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adaptwatch_labels_written_total",
			Help: "Label records appended, by verdict.",
		}, []string{"verdict"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adaptwatch_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adaptwatch_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without error.",
		}),
	}
	m.Registry.MustRegister(m.discovered, m.notified, m.excluded, m.fetchFailures,
		m.replies, m.labels, m.duration, m.lastSuccess)
	return m
}

func (m *Metrics) ObserveReplies(sum reply.Summary) {
	for outcome, n := range sum.Outcomes {
		m.replies.WithLabelValues(string(outcome)).Add(float64(n))
	}
	for _, rec := range sum.Records {
		m.labels.WithLabelValues(string(rec.Verdict)).Inc()
	}
}

func (m *Metrics) ObserveDiscovery(rep discover.Report) {
	m.discovered.Add(float64(rep.Found))
	m.notified.Add(float64(len(rep.Notified)))
	m.excluded.Add(float64(rep.Excluded))
	m.fetchFailures.Add(float64(rep.FetchFailed))
}

// Finish records the run duration and, on success, the completion time.
func (m *Metrics) Finish(started time.Time, err error) {
	m.duration.Set(time.Since(started).Seconds())
	if err == nil {
		m.lastSuccess.SetToCurrentTime()
	}
}

// Push sends the registry to a Pushgateway. Batch runs exit before they
// could be scraped.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(m.Registry).PushContext(ctx)
}
