// Package analysis derives report statistics from a finished run. It only
// reads the result it is given.
package analysis

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

// Options control bucketing and anomaly thresholds.
type Options struct {
	Window          time.Duration // trend bucket width
	RapidWindow     time.Duration // consecutive records closer than this are rapid
	LargePercentile float64       // |amount| above this percentile is large
	MinRecords      int           // per-subscriber minimum for anomaly checks
}

// DefaultOptions returns a daily window, a five minute rapid window and the
// 95th percentile for large transactions.
func DefaultOptions() Options {
	return Options{
		Window:          24 * time.Hour,
		RapidWindow:     5 * time.Minute,
		LargePercentile: 95,
		MinRecords:      5,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Window <= 0 {
		o.Window = def.Window
	}
	if o.RapidWindow <= 0 {
		o.RapidWindow = def.RapidWindow
	}
	if o.LargePercentile <= 0 {
		o.LargePercentile = def.LargePercentile
	}
	if o.MinRecords <= 0 {
		o.MinRecords = def.MinRecords
	}
	return o
}

// Summary is the aggregate view the report writers consume.
type Summary struct {
	RunID    string `json:"run_id"`
	Artifact string `json:"artifact"`

	Sources       int `json:"sources"`
	Records       int `json:"records"`
	Subscribers   int `json:"subscribers"`
	ParseFailures int `json:"parse_failures"`
	EntryErrors   int `json:"entry_errors"`
	Rejected      int `json:"rejected_records"`
	Duplicates    int `json:"duplicates"`
	Recoveries    int `json:"recoveries"`

	FirstRecord time.Time `json:"first_record"`
	LastRecord  time.Time `json:"last_record"`

	CreditVolume decimal.Decimal `json:"credit_volume"`
	DebitVolume  decimal.Decimal `json:"debit_volume"`
	NetVolume    decimal.Decimal `json:"net_volume"`

	SuccessRate       float64 `json:"success_rate"`
	AverageDurationMS float64 `json:"avg_duration_ms"`

	FailuresByReason  map[models.ReasonCode]int     `json:"failures_by_reason"`
	EntryErrorsByKind map[models.EntryErrorKind]int `json:"entry_errors_by_kind"`
	EventsByKind      map[models.EventKind]int      `json:"events_by_kind"`
	EventsBySeverity  map[models.Severity]int       `json:"events_by_severity"`
	OverdraftEvents   int                           `json:"overdraft_events"`
	OverdrawnAccounts int                           `json:"overdrawn_subscribers"`
	TotalOverdrawn    decimal.Decimal               `json:"total_overdrawn_amount"`
	SubscribersAtRisk int                           `json:"high_risk_subscribers"`

	Buckets []Bucket `json:"buckets"`
	Trends  Trends   `json:"trends"`
	Hourly  []Slot   `json:"hourly"`
	Weekday []Slot   `json:"weekday"`

	SubscriberStats []SubscriberStats `json:"subscriber_stats"`
	Anomalies       []Anomaly         `json:"anomalies"`
	Recommendations []string          `json:"recommendations"`
}

// Summarize computes the summary of res.
func Summarize(res *models.Result, opts Options) *Summary {
	opts = opts.withDefaults()

	s := &Summary{
		RunID:             res.RunID,
		Artifact:          res.Artifact,
		Sources:           len(res.Sources),
		Records:           len(res.Records),
		Subscribers:       len(res.SubscriberBalances),
		ParseFailures:     len(res.ParseFailures),
		EntryErrors:       len(res.EntryErrors),
		Rejected:          len(res.Rejected),
		Duplicates:        len(res.Duplicates),
		Recoveries:        len(res.Recoveries),
		OverdraftEvents:   len(res.OverdraftEvents),
		FailuresByReason:  make(map[models.ReasonCode]int),
		EntryErrorsByKind: make(map[models.EntryErrorKind]int),
		EventsByKind:      make(map[models.EventKind]int),
		EventsBySeverity:  make(map[models.Severity]int),
	}

	for _, f := range res.ParseFailures {
		s.FailuresByReason[f.Reason]++
	}
	for _, e := range res.EntryErrors {
		s.EntryErrorsByKind[e.Kind]++
	}
	for _, ev := range res.OverdraftEvents {
		s.EventsByKind[ev.Kind]++
		s.EventsBySeverity[ev.Severity]++
	}
	for _, b := range res.SubscriberBalances {
		if b.CurrentBalance.IsNegative() {
			s.OverdrawnAccounts++
			s.TotalOverdrawn = s.TotalOverdrawn.Add(b.CurrentBalance.Abs())
		}
	}

	s.volume(res.Records)
	s.Buckets = bucketize(res, opts.Window)
	s.Trends = trendsOf(s.Buckets)
	s.Hourly, s.Weekday = patterns(res.Records)
	s.SubscriberStats = subscriberStats(res)
	for _, st := range s.SubscriberStats {
		if st.RiskScore > highRisk {
			s.SubscribersAtRisk++
		}
	}
	s.Anomalies = detectAnomalies(res.Records, opts)
	s.Recommendations = recommend(s)
	return s
}

// volume totals amounts and operational figures. Failed records are
// counted for the success rate but moved no money.
func (s *Summary) volume(records []models.TransactionRecord) {
	var success, durations int
	var durationSum float64
	for i, r := range records {
		if i == 0 || r.Timestamp.Before(s.FirstRecord) {
			s.FirstRecord = r.Timestamp
		}
		if r.Timestamp.After(s.LastRecord) {
			s.LastRecord = r.Timestamp
		}
		if r.Status == models.StatusSuccess {
			success++
		}
		if r.HasDuration() {
			durations++
			durationSum += r.DurationMS
		}
		if r.Status == models.StatusFailure {
			continue
		}
		amt := r.Effect()
		switch {
		case amt.IsPositive():
			s.CreditVolume = s.CreditVolume.Add(amt)
		case amt.IsNegative():
			s.DebitVolume = s.DebitVolume.Add(amt.Abs())
		}
	}
	s.NetVolume = s.CreditVolume.Sub(s.DebitVolume)
	if len(records) > 0 {
		s.SuccessRate = float64(success) / float64(len(records)) * 100
	}
	if durations > 0 {
		s.AverageDurationMS = durationSum / float64(durations)
	}
}

// Bucket aggregates one trend window.
type Bucket struct {
	Start      time.Time       `json:"start"`
	Records    int             `json:"records"`
	Net        decimal.Decimal `json:"net_volume"`
	Overdrafts int             `json:"overdrafts"` // new overdrafts only
	Events     int             `json:"events"`
}

func bucketize(res *models.Result, window time.Duration) []Bucket {
	byStart := make(map[time.Time]*Bucket)
	get := func(ts time.Time) *Bucket {
		start := ts.UTC().Truncate(window)
		b, ok := byStart[start]
		if !ok {
			b = &Bucket{Start: start}
			byStart[start] = b
		}
		return b
	}

	for _, r := range res.Records {
		b := get(r.Timestamp)
		b.Records++
		if r.Status != models.StatusFailure {
			b.Net = b.Net.Add(r.Effect())
		}
	}
	for _, ev := range res.OverdraftEvents {
		b := get(ev.DetectedAt)
		b.Events++
		if ev.Kind == models.EventOverdraft {
			b.Overdrafts++
		}
	}

	out := make([]Bucket, 0, len(byStart))
	for _, b := range byStart {
		out = append(out, *b)
	}
	slices.SortFunc(out, func(x, y Bucket) int { return x.Start.Compare(y.Start) })
	return out
}

// Slot is one hour-of-day or weekday cell.
type Slot struct {
	Label   string          `json:"label"`
	Records int             `json:"records"`
	Net     decimal.Decimal `json:"net_volume"`
}

func patterns(records []models.TransactionRecord) (hourly, weekday []Slot) {
	hourly = make([]Slot, 24)
	for h := range hourly {
		hourly[h].Label = time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC).Format("15:00")
	}
	weekday = make([]Slot, 7)
	for d := range weekday {
		weekday[d].Label = time.Weekday(d).String()
	}

	for _, r := range records {
		ts := r.Timestamp.UTC()
		hourly[ts.Hour()].Records++
		hourly[ts.Hour()].Net = hourly[ts.Hour()].Net.Add(r.Effect())
		weekday[ts.Weekday()].Records++
		weekday[ts.Weekday()].Net = weekday[ts.Weekday()].Net.Add(r.Effect())
	}
	return hourly, weekday
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
