package analysis

// Trend directions.
const (
	TrendIncreasing   = "increasing"
	TrendDecreasing   = "decreasing"
	TrendStable       = "stable"
	TrendInsufficient = "insufficient_data"
)

// slopeThreshold is the per-bucket slope that counts as movement.
const slopeThreshold = 0.1

// Trends holds the direction of each bucket series.
type Trends struct {
	Volume     string `json:"volume"`
	Count      string `json:"count"`
	Overdrafts string `json:"overdrafts"`
}

func trendsOf(buckets []Bucket) Trends {
	volume := make([]float64, len(buckets))
	count := make([]float64, len(buckets))
	overdrafts := make([]float64, len(buckets))
	for i, b := range buckets {
		volume[i] = b.Net.InexactFloat64()
		count[i] = float64(b.Records)
		overdrafts[i] = float64(b.Overdrafts)
	}
	return Trends{
		Volume:     Direction(volume),
		Count:      Direction(count),
		Overdrafts: Direction(overdrafts),
	}
}

// Direction classifies a series by the slope of its least-squares line.
func Direction(series []float64) string {
	if len(series) < 2 {
		return TrendInsufficient
	}
	s := slope(series)
	switch {
	case s > slopeThreshold:
		return TrendIncreasing
	case s < -slopeThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// slope fits y = a + b*x with x = 0..n-1 and returns b.
func slope(ys []float64) float64 {
	n := float64(len(ys))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
