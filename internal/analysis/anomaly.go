package analysis

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

// Anomaly types.
const (
	AnomalyLargeTransaction = "large_transaction"
	AnomalyRapid            = "rapid_transactions"
	AnomalyBalanceSwing     = "balance_swing"
)

// swingSigma is how many standard deviations a balance change must sit from
// the mean change to count as a swing.
const swingSigma = 3

// Anomaly is an unusual pattern in one subscriber's activity.
type Anomaly struct {
	Type         string          `json:"type"`
	SubscriberID string          `json:"subscriber_id"`
	Timestamp    time.Time       `json:"timestamp"`
	Amount       decimal.Decimal `json:"amount"`
	Count        int             `json:"count,omitempty"`
	Description  string          `json:"description"`
}

// detectAnomalies expects records in chronological order.
func detectAnomalies(records []models.TransactionRecord, opts Options) []Anomaly {
	bySub := make(map[string][]models.TransactionRecord)
	for _, r := range records {
		bySub[r.SubscriberID] = append(bySub[r.SubscriberID], r)
	}

	var out []Anomaly
	for _, id := range sortedKeys(bySub) {
		recs := bySub[id]
		if len(recs) < opts.MinRecords {
			continue
		}
		out = append(out, largeTransactions(id, recs, opts.LargePercentile)...)
		if a, ok := rapidTransactions(id, recs, opts.RapidWindow); ok {
			out = append(out, a)
		}
		out = append(out, balanceSwings(id, recs)...)
	}
	return out
}

func largeTransactions(id string, recs []models.TransactionRecord, pct float64) []Anomaly {
	sizes := make([]float64, 0, len(recs))
	for _, r := range recs {
		if r.Amount.Valid {
			sizes = append(sizes, r.Amount.Decimal.Abs().InexactFloat64())
		}
	}
	if len(sizes) == 0 {
		return nil
	}
	slices.Sort(sizes)
	threshold := percentile(sizes, pct)

	var out []Anomaly
	for _, r := range recs {
		if !r.Amount.Valid || r.Amount.Decimal.Abs().InexactFloat64() <= threshold {
			continue
		}
		out = append(out, Anomaly{
			Type:         AnomalyLargeTransaction,
			SubscriberID: id,
			Timestamp:    r.Timestamp,
			Amount:       r.Amount.Decimal,
			Description:  fmt.Sprintf("Unusually large transaction: %s", r.Amount.Decimal.StringFixed(2)),
		})
	}
	return out
}

// rapidTransactions reports a single anomaly counting every record that
// followed its predecessor within window.
func rapidTransactions(id string, recs []models.TransactionRecord, window time.Duration) (Anomaly, bool) {
	var count int
	var first time.Time
	for i := 1; i < len(recs); i++ {
		if recs[i].Timestamp.Sub(recs[i-1].Timestamp) >= window {
			continue
		}
		if count == 0 {
			first = recs[i].Timestamp
		}
		count++
	}
	if count == 0 {
		return Anomaly{}, false
	}
	return Anomaly{
		Type:         AnomalyRapid,
		SubscriberID: id,
		Timestamp:    first,
		Count:        count,
		Description:  fmt.Sprintf("%d transactions within %s", count, window),
	}, true
}

func balanceSwings(id string, recs []models.TransactionRecord) []Anomaly {
	var changes []float64
	var moved []models.TransactionRecord
	for _, r := range recs {
		if !r.Amount.Valid || r.Status == models.StatusFailure {
			continue
		}
		changes = append(changes, r.Amount.Decimal.InexactFloat64())
		moved = append(moved, r)
	}
	if len(changes) < 2 {
		return nil
	}

	m := meanOf(changes)
	var ss float64
	for _, c := range changes {
		ss += (c - m) * (c - m)
	}
	limit := math.Sqrt(ss/float64(len(changes))) * swingSigma
	if limit == 0 {
		return nil
	}

	var out []Anomaly
	for i, c := range changes {
		if math.Abs(c-m) <= limit {
			continue
		}
		out = append(out, Anomaly{
			Type:         AnomalyBalanceSwing,
			SubscriberID: id,
			Timestamp:    moved[i].Timestamp,
			Amount:       moved[i].Amount.Decimal,
			Description:  fmt.Sprintf("Large balance swing: %s", moved[i].Amount.Decimal.StringFixed(2)),
		})
	}
	return out
}

// percentile interpolates linearly between closest ranks of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (rank-float64(lo))*(sorted[hi]-sorted[lo])
}
