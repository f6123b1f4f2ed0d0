package analysis

import "fmt"

func recommend(s *Summary) []string {
	var recs []string
	if s.OverdraftEvents > 0 {
		recs = append(recs, "High overdraft activity detected. Consider implementing real-time balance monitoring and alerts.")
	}
	if s.Records > 0 && s.SuccessRate < 95 {
		recs = append(recs, fmt.Sprintf("Transaction success rate is %.1f%%. Investigate system reliability issues.", s.SuccessRate))
	}
	if s.SubscribersAtRisk > 0 {
		recs = append(recs, fmt.Sprintf("Found %d high-risk subscribers. Consider enhanced monitoring.", s.SubscribersAtRisk))
	}
	if s.AverageDurationMS > 1000 {
		recs = append(recs, "High processing times detected. Consider system performance optimization.")
	}
	if s.ParseFailures > 0 && s.ParseFailures >= s.Records {
		recs = append(recs, fmt.Sprintf("%d lines could not be parsed. Review log formats against the known patterns.", s.ParseFailures))
	}
	return append(recs,
		"Implement automated daily reconciliation reports to catch issues early.",
		"Set up real-time alerts for transactions exceeding normal patterns.",
		"Consider implementing predictive models for overdraft prevention.",
	)
}
