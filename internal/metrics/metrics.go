package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

// AnalyzerMetrics holds all Prometheus metrics for analysis runs.
// A nil *AnalyzerMetrics is valid and records nothing.
type AnalyzerMetrics struct {
	RunsTotal            *prometheus.CounterVec
	EntriesTotal         *prometheus.CounterVec
	RecordsTotal         prometheus.Counter
	ParseFailuresTotal   *prometheus.CounterVec
	OverdraftEventsTotal *prometheus.CounterVec
	RunDuration          prometheus.Histogram
}

// NewAnalyzerMetrics initializes the metrics and registers them with reg.
func NewAnalyzerMetrics(reg prometheus.Registerer) *AnalyzerMetrics {
	factory := promauto.With(reg)
	return &AnalyzerMetrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "balance_sync",
			Subsystem: "analyzer",
			Name:      "runs_total",
			Help:      "Total number of analysis runs by outcome.",
		}, []string{"status"}), // status: ok, fatal
		EntriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "balance_sync",
			Subsystem: "analyzer",
			Name:      "entries_total",
			Help:      "Total number of archive entries by outcome.",
		}, []string{"outcome"}), // outcome: decoded, corrupt_archive, unsupported_format, unsupported_nesting
		RecordsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "balance_sync",
			Subsystem: "parser",
			Name:      "records_total",
			Help:      "Total number of transaction records extracted.",
		}),
		ParseFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "balance_sync",
			Subsystem: "parser",
			Name:      "failures_total",
			Help:      "Total number of rejected candidate lines by reason.",
		}, []string{"reason"}),
		OverdraftEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "balance_sync",
			Subsystem: "tracker",
			Name:      "overdraft_events_total",
			Help:      "Total number of overdraft events by kind and severity.",
		}, []string{"kind", "severity"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "balance_sync",
			Subsystem: "analyzer",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of analysis runs.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveRun records a completed run.
func (m *AnalyzerMetrics) ObserveRun(res *models.Result, elapsed time.Duration) {
	if m == nil || res == nil {
		return
	}
	m.RunsTotal.WithLabelValues("ok").Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	m.EntriesTotal.WithLabelValues("decoded").Add(float64(len(res.Sources)))
	for _, e := range res.EntryErrors {
		m.EntriesTotal.WithLabelValues(string(e.Kind)).Inc()
	}
	m.RecordsTotal.Add(float64(len(res.Records)))
	for _, f := range res.ParseFailures {
		m.ParseFailuresTotal.WithLabelValues(string(f.Reason)).Inc()
	}
	for _, ev := range res.OverdraftEvents {
		m.OverdraftEventsTotal.WithLabelValues(string(ev.Kind), string(ev.Severity)).Inc()
	}
}

// ObserveFatal records a run that aborted.
func (m *AnalyzerMetrics) ObserveFatal(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues("fatal").Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}
