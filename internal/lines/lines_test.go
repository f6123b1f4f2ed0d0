package lines

import (
	"slices"
	"testing"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

func TestStartsRecord(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"2024-01-01T00:00:00Z req=abc user=S2", true},
		{"2024-01-01T00:00:00.123Z\t8f1e2d3c\tINFO sync", true},
		{"[2024-01-01 10:00:00,123] subscriber S1", true},
		{"START RequestId: 8f1e2d3c-aaaa Version: $LATEST", true},
		{"REPORT RequestId: 8f1e2d3c-aaaa\tDuration: 12.5 ms", true},
		{"    at Object.handler (/var/task/index.js:10:5)", false},
		{"Traceback (most recent call last):", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := StartsRecord(tt.input); got != tt.expected {
				t.Errorf("StartsRecord(%q): got %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSplitterJoinsContinuations(t *testing.T) {
	sp := NewSplitter("app.log")

	if _, ok := sp.Push("2024-01-01T00:00:00Z ERROR sync failed for subscriber S1"); ok {
		t.Fatal("first record should stay pending")
	}
	if _, ok := sp.Push("    at handler (index.js:10)"); ok {
		t.Fatal("continuation should not complete a record")
	}
	if _, ok := sp.Push("    at process (index.js:20)"); ok {
		t.Fatal("continuation should not complete a record")
	}
	if !sp.Pending() {
		t.Fatal("expected a pending candidate")
	}

	span, ok := sp.Push("2024-01-01T00:00:01Z INFO next subscriber S2")
	if !ok {
		t.Fatal("record start should complete the pending candidate")
	}
	want := "2024-01-01T00:00:00Z ERROR sync failed for subscriber S1\n    at handler (index.js:10)\n    at process (index.js:20)"
	if span.Text != want {
		t.Errorf("got %q, want %q", span.Text, want)
	}
	if span.Offset != 1 || span.Source != "app.log" {
		t.Errorf("got offset %d source %q", span.Offset, span.Source)
	}

	last, ok := sp.Flush()
	if !ok || last.Offset != 4 {
		t.Errorf("flush: got %+v, %v", last, ok)
	}
	if sp.Pending() {
		t.Error("nothing should be pending after flush")
	}
	if _, ok := sp.Flush(); ok {
		t.Error("second flush should be empty")
	}
}

func TestSplitterOrphanContinuation(t *testing.T) {
	sp := NewSplitter("cut.log")
	sp.Push("  at truncated frame")
	sp.Push("  at another frame")
	span, ok := sp.Push("2024-01-01T00:00:00Z subscriber S1 $5.00")
	if !ok {
		t.Fatal("expected the orphan tail to be emitted")
	}
	if span.Offset != 1 || span.Text != "  at truncated frame\n  at another frame" {
		t.Errorf("got %+v", span)
	}
}

func TestLines(t *testing.T) {
	stream := models.SourceStream{
		Name: "a.log",
		Text: "2024-01-01T00:00:00Z one\r\n\r\n  trace\r\n2024-01-01T00:00:01Z two\n\n2024-01-01T00:00:02Z three",
	}

	var offsets []int
	var texts []string
	for span := range Lines(stream) {
		offsets = append(offsets, span.Offset)
		texts = append(texts, span.Text)
	}

	if !slices.Equal(offsets, []int{1, 4, 6}) {
		t.Errorf("offsets: got %v", offsets)
	}
	if texts[0] != "2024-01-01T00:00:00Z one\n  trace" {
		t.Errorf("first span: got %q", texts[0])
	}
	if texts[2] != "2024-01-01T00:00:02Z three" {
		t.Errorf("last span: got %q", texts[2])
	}
}

func TestLinesStopsEarly(t *testing.T) {
	stream := models.SourceStream{Name: "a.log", Text: "2024-01-01T00:00:00Z a\n2024-01-01T00:00:01Z b\n2024-01-01T00:00:02Z c\n"}
	n := 0
	for range Lines(stream) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("got %d spans, want 2", n)
	}
}
