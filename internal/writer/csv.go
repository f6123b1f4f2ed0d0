package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

// CSVWriter writes overdraft events, parse failures and final balances as CSV.
type CSVWriter struct {
	IncludeHeader bool
}

// File names used by WriteToDir.
const (
	EventsFile   = "overdraft_events.csv"
	FailuresFile = "parse_failures.csv"
	BalancesFile = "balances.csv"
)

// WriteToDir writes every CSV report for res into dir and returns the paths
// it created.
func (w *CSVWriter) WriteToDir(dir string, res *models.Result) ([]string, error) {
	reports := []struct {
		name  string
		write func(io.Writer, *models.Result) error
	}{
		{EventsFile, w.WriteEvents},
		{FailuresFile, w.WriteFailures},
		{BalancesFile, w.WriteBalances},
	}

	var paths []string
	for _, r := range reports {
		path := filepath.Join(dir, r.name)
		if err := writeFile(path, func(f io.Writer) error { return r.write(f, res) }); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteEvents writes one row per overdraft event in emission order.
func (w *CSVWriter) WriteEvents(out io.Writer, res *models.Result) error {
	writer := csv.NewWriter(out)
	w.writeMeta(writer, res)

	header := []string{"Sequence", "Detected At", "Subscriber", "Kind", "Severity", "Balance Before", "Balance After", "Amount", "Request ID", "Source", "Line"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, ev := range res.OverdraftEvents {
		row := []string{
			strconv.Itoa(ev.Sequence),
			ev.DetectedAt.Format(time.RFC3339Nano),
			ev.SubscriberID,
			string(ev.Kind),
			string(ev.Severity),
			formatAmount(ev.BalanceBefore),
			formatAmount(ev.BalanceAfter),
		}
		if rec := ev.TriggeringRecord; rec != nil {
			row = append(row, formatNullAmount(rec.Amount), rec.RequestID, rec.Source, strconv.Itoa(rec.Offset))
		} else {
			row = append(row, "", "", "", "")
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteFailures writes the parse failure audit trail.
func (w *CSVWriter) WriteFailures(out io.Writer, res *models.Result) error {
	writer := csv.NewWriter(out)
	w.writeMeta(writer, res)

	if err := writer.Write([]string{"Source", "Line", "Reason", "Detail", "Raw"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, f := range res.ParseFailures {
		row := []string{f.Source, strconv.Itoa(f.Offset), string(f.Reason), f.Detail, f.Raw}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteBalances writes the final per-subscriber state sorted by subscriber.
func (w *CSVWriter) WriteBalances(out io.Writer, res *models.Result) error {
	writer := csv.NewWriter(out)
	w.writeMeta(writer, res)

	header := []string{"Subscriber", "Starting Balance", "Current Balance", "Min Balance", "State", "Transactions", "Overdrafts", "Last Updated"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, id := range sortedIDs(res.SubscriberBalances) {
		b := res.SubscriberBalances[id]
		row := []string{
			id,
			formatAmount(b.StartingBalance),
			formatAmount(b.CurrentBalance),
			formatAmount(b.MinBalance),
			string(b.State),
			strconv.Itoa(b.TransactionCount),
			strconv.Itoa(b.OverdraftCount),
			formatTime(b.LastUpdated),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// Metadata rows are written as comments ahead of the column headers.
func (w *CSVWriter) writeMeta(writer *csv.Writer, res *models.Result) {
	if !w.IncludeHeader {
		return
	}
	if res.RunID != "" {
		writer.Write([]string{"# Run", res.RunID})
	}
	if res.Artifact != "" {
		writer.Write([]string{"# Artifact", res.Artifact})
	}
	if !res.StartedAt.IsZero() {
		writer.Write([]string{"# Started", res.StartedAt.Format(time.RFC3339)})
	}
}

func formatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

func formatNullAmount(amount decimal.NullDecimal) string {
	if !amount.Valid {
		return ""
	}
	return formatAmount(amount.Decimal)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
