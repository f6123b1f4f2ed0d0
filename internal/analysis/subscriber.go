package analysis

import (
	"cmp"
	"math"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

// Risk scores above highRisk flag a subscriber for review.
const highRisk = 70

// SubscriberStats is the per-subscriber report row.
type SubscriberStats struct {
	SubscriberID    string              `json:"subscriber_id"`
	Transactions    int                 `json:"transactions"`
	Credit          decimal.Decimal     `json:"credit_volume"`
	Debit           decimal.Decimal     `json:"debit_volume"`
	StartingBalance decimal.Decimal     `json:"starting_balance"`
	FinalBalance    decimal.Decimal     `json:"final_balance"`
	MinBalance      decimal.Decimal     `json:"min_balance"`
	State           models.BalanceState `json:"state"`
	OverdraftCount  int                 `json:"overdraft_count"`
	Events          int                 `json:"events"`
	Frequency       string              `json:"frequency"`
	RiskScore       float64             `json:"risk_score"`
}

func subscriberStats(res *models.Result) []SubscriberStats {
	bySub := make(map[string][]models.TransactionRecord)
	for _, r := range res.Records {
		bySub[r.SubscriberID] = append(bySub[r.SubscriberID], r)
	}
	events := make(map[string]int)
	for _, ev := range res.OverdraftEvents {
		events[ev.SubscriberID]++
	}

	out := make([]SubscriberStats, 0, len(res.SubscriberBalances))
	for _, id := range sortedKeys(res.SubscriberBalances) {
		bal := res.SubscriberBalances[id]
		records := bySub[id]
		st := SubscriberStats{
			SubscriberID:    id,
			Transactions:    len(records),
			StartingBalance: bal.StartingBalance,
			FinalBalance:    bal.CurrentBalance,
			MinBalance:      bal.MinBalance,
			State:           bal.State,
			OverdraftCount:  bal.OverdraftCount,
			Events:          events[id],
			Frequency:       frequency(records),
		}
		for _, r := range records {
			if r.Status == models.StatusFailure {
				continue
			}
			if amt := r.Effect(); amt.IsPositive() {
				st.Credit = st.Credit.Add(amt)
			} else {
				st.Debit = st.Debit.Add(amt.Abs())
			}
		}
		st.RiskScore = riskScore(records, events[id])
		out = append(out, st)
	}

	slices.SortStableFunc(out, func(a, b SubscriberStats) int {
		return cmp.Compare(b.RiskScore, a.RiskScore)
	})
	return out
}

// frequency buckets how often a subscriber transacts.
func frequency(records []models.TransactionRecord) string {
	if len(records) < 2 {
		return "insufficient_data"
	}
	first, last := records[0].Timestamp, records[0].Timestamp
	for _, r := range records[1:] {
		if r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
	}
	days := int(last.Sub(first).Hours() / 24)
	if days == 0 {
		return "same_day"
	}
	perDay := float64(len(records)) / float64(days)
	switch {
	case perDay >= 1:
		return "daily"
	case perDay >= 0.2:
		return "weekly"
	default:
		return "monthly"
	}
}

// riskScore combines overdraft rate (up to 40), amount volatility (up to 30)
// and failure rate (up to 30) into a 0-100 score.
func riskScore(records []models.TransactionRecord, events int) float64 {
	if len(records) == 0 {
		return 0
	}
	n := float64(len(records))
	score := math.Min(float64(events)/n, 1) * 40

	amounts := make([]float64, 0, len(records))
	failed := 0
	for _, r := range records {
		if r.Amount.Valid {
			amounts = append(amounts, r.Amount.Decimal.InexactFloat64())
		}
		if r.Status == models.StatusFailure {
			failed++
		}
	}
	if mean := meanOf(amounts); mean > 0 {
		score += math.Min(stddev(amounts)/mean*30, 30)
	}
	score += float64(failed) / n * 30

	return math.Min(math.Round(score*10)/10, 100)
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := meanOf(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
