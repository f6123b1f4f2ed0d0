package writer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

var t0 = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func sampleResult() *models.Result {
	charge := models.TransactionRecord{
		Timestamp:    t0,
		RequestID:    "req-2",
		SubscriberID: "sub_001",
		Amount:       decimal.NewNullDecimal(decimal.RequireFromString("-150")),
		Status:       models.StatusSuccess,
		Source:       "root/app.log",
		Offset:       7,
	}
	return &models.Result{
		RunID:     "run-42",
		Artifact:  "logs.zip",
		StartedAt: t0,
		Records:   []models.TransactionRecord{charge},
		OverdraftEvents: []models.OverdraftEvent{{
			Sequence:         1,
			SubscriberID:     "sub_001",
			Kind:             models.EventOverdraft,
			Severity:         models.SeverityMedium,
			BalanceBefore:    decimal.RequireFromString("100"),
			BalanceAfter:     decimal.RequireFromString("-50"),
			TriggeringRecord: &charge,
			DetectedAt:       t0,
		}},
		SubscriberBalances: map[string]models.SubscriberBalance{
			"sub_002": {SubscriberID: "sub_002", CurrentBalance: decimal.RequireFromString("12.5"), State: models.StateNonNegative, TransactionCount: 1},
			"sub_001": {SubscriberID: "sub_001", CurrentBalance: decimal.RequireFromString("-50"), MinBalance: decimal.RequireFromString("-50"), State: models.StateOverdrawn, TransactionCount: 2, OverdraftCount: 1},
		},
		ParseFailures: []models.ParseFailure{
			{Raw: "START RequestId: abc", Source: "root/app.log", Offset: 3, Reason: models.ReasonPlatformLine},
		},
	}
}

func TestCSVWriter_WriteEvents(t *testing.T) {
	var buf bytes.Buffer
	w := &CSVWriter{IncludeHeader: true}
	if err := w.WriteEvents(&buf, sampleResult()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "# Run,run-42") {
		t.Error("expected run metadata header")
	}
	if !strings.Contains(output, "# Artifact,logs.zip") {
		t.Error("expected artifact metadata")
	}
	if !strings.Contains(output, "Sequence,Detected At,Subscriber,Kind") {
		t.Error("expected column headers")
	}
	if !strings.Contains(output, "1,2024-01-15T09:30:00Z,sub_001,overdraft,medium,100.00,-50.00,-150.00,req-2,root/app.log,7") {
		t.Errorf("expected event row, got:\n%s", output)
	}

	lines := strings.Split(strings.TrimSpace(output), "\n")
	// 3 metadata lines + 1 header + 1 event = 5
	if len(lines) != 5 {
		t.Errorf("expected 5 lines, got %d", len(lines))
	}
}

func TestCSVWriter_NoHeader(t *testing.T) {
	var buf bytes.Buffer
	w := &CSVWriter{IncludeHeader: false}
	if err := w.WriteEvents(&buf, sampleResult()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(buf.String(), "# Run") {
		t.Error("should not contain metadata when IncludeHeader is false")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 lines, got %d", len(lines))
	}
}

func TestCSVWriter_WriteFailures(t *testing.T) {
	var buf bytes.Buffer
	w := &CSVWriter{}
	if err := w.WriteFailures(&buf, sampleResult()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "Source,Line,Reason,Detail,Raw\nroot/app.log,3,platform_line,,START RequestId: abc\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestCSVWriter_WriteBalances(t *testing.T) {
	var buf bytes.Buffer
	w := &CSVWriter{}
	if err := w.WriteBalances(&buf, sampleResult()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[1], "sub_001,0.00,-50.00,-50.00,overdrawn,2,1,") {
		t.Errorf("unexpected first balance row: %s", lines[1])
	}
	if !strings.HasPrefix(lines[2], "sub_002,0.00,12.50,") {
		t.Errorf("unexpected second balance row: %s", lines[2])
	}
}

func TestCSVWriter_WriteToDir(t *testing.T) {
	dir := t.TempDir()
	w := &CSVWriter{IncludeHeader: true}

	paths, err := w.WriteToDir(dir, sampleResult())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 files, got %d", len(paths))
	}
	for _, name := range []string{EventsFile, FailuresFile, BalancesFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		input decimal.Decimal
		want  string
	}{
		{decimal.Zero, "0.00"},
		{decimal.RequireFromString("25.99"), "25.99"},
		{decimal.RequireFromString("2500"), "2500.00"},
		{decimal.RequireFromString("-0.5"), "-0.50"},
		{decimal.RequireFromString("1234.567"), "1234.57"},
	}

	for _, tt := range tests {
		got := formatAmount(tt.input)
		if got != tt.want {
			t.Errorf("formatAmount(%s) = %q, want %q", tt.input, got, tt.want)
		}
	}

	if got := formatNullAmount(decimal.NullDecimal{}); got != "" {
		t.Errorf("formatNullAmount(null) = %q, want empty", got)
	}
}
