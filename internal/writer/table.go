package writer

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/analysis"
)

// maxTableRows caps the subscriber table printed to a terminal.
const maxTableRows = 10

// WriteTable prints the run overview and the riskiest subscribers.
func WriteTable(out io.Writer, s *analysis.Summary) {
	overview := tablewriter.NewWriter(out)
	overview.SetHeader([]string{"Metric", "Value"})
	for _, row := range [][]string{
		{"Run", s.RunID},
		{"Sources", strconv.Itoa(s.Sources)},
		{"Records", strconv.Itoa(s.Records)},
		{"Subscribers", strconv.Itoa(s.Subscribers)},
		{"Parse failures", strconv.Itoa(s.ParseFailures)},
		{"Entry errors", strconv.Itoa(s.EntryErrors)},
		{"Duplicates", strconv.Itoa(s.Duplicates)},
		{"Credit volume", formatAmount(s.CreditVolume)},
		{"Debit volume", formatAmount(s.DebitVolume)},
		{"Net volume", formatAmount(s.NetVolume)},
		{"Success rate", fmt.Sprintf("%.1f%%", s.SuccessRate)},
		{"Overdraft events", strconv.Itoa(s.OverdraftEvents)},
		{"Overdrawn subscribers", strconv.Itoa(s.OverdrawnAccounts)},
		{"Total overdrawn", formatAmount(s.TotalOverdrawn)},
		{"Recoveries", strconv.Itoa(s.Recoveries)},
		{"Volume trend", s.Trends.Volume},
	} {
		overview.Append(row)
	}
	overview.Render()

	if len(s.FailuresByReason) > 0 {
		reasons := tablewriter.NewWriter(out)
		reasons.SetHeader([]string{"Failure reason", "Count"})
		for _, reason := range slices.Sorted(maps.Keys(s.FailuresByReason)) {
			reasons.Append([]string{string(reason), strconv.Itoa(s.FailuresByReason[reason])})
		}
		reasons.Render()
	}

	if len(s.SubscriberStats) == 0 {
		return
	}
	subs := tablewriter.NewWriter(out)
	subs.SetHeader([]string{"Subscriber", "Txns", "Final", "Min", "Overdrafts", "Frequency", "Risk"})
	for i, st := range s.SubscriberStats {
		if i == maxTableRows {
			break
		}
		subs.Append([]string{
			st.SubscriberID,
			strconv.Itoa(st.Transactions),
			formatAmount(st.FinalBalance),
			formatAmount(st.MinBalance),
			strconv.Itoa(st.OverdraftCount),
			st.Frequency,
			fmt.Sprintf("%.1f", st.RiskScore),
		})
	}
	subs.Render()
}

func sortedIDs[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
