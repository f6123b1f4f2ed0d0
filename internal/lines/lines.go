// Package lines turns decoded text into candidate records, joining
// continuation lines such as stack traces onto the record they belong to.
package lines

import (
	"iter"
	"regexp"
	"strings"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

// TimestampExpr matches the ISO-8601 instants emitted by Lambda and by the
// sync service's own logger.
const TimestampExpr = `\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d{1,9})?(?:Z|[+-]\d{2}:?\d{2})?`

var (
	// A record starts with a timestamp, optionally bracketed.
	recordStart = regexp.MustCompile(`^\[?` + TimestampExpr)
	// Lambda platform lines are printed without a timestamp in some exports.
	platformStart = regexp.MustCompile(`^(?:START|END|REPORT|INIT_START) RequestId:`)
	// Timestamp is exported for content sniffing.
	Timestamp = regexp.MustCompile(TimestampExpr)
)

// StartsRecord reports whether line opens a new candidate record.
func StartsRecord(line string) bool {
	return recordStart.MatchString(line) || platformStart.MatchString(line)
}

// Splitter accumulates physical lines into candidate records. The record
// being built is held in pending until the next record start (or Flush)
// completes it.
type Splitter struct {
	source  string
	lineNo  int
	pending strings.Builder
	start   int // line number of the pending record, 0 when none
}

// NewSplitter returns a Splitter whose spans are attributed to source.
func NewSplitter(source string) *Splitter {
	return &Splitter{source: source}
}

// Push feeds one physical line (without its terminator). It returns the
// previous candidate when line starts a new one.
func (s *Splitter) Push(line string) (models.LineSpan, bool) {
	s.lineNo++
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return models.LineSpan{}, false
	}

	if StartsRecord(line) {
		span, ok := s.Flush()
		s.start = s.lineNo
		s.pending.WriteString(line)
		return span, ok
	}

	// Continuation. With nothing pending this is the tail of a record cut
	// off before the stream began; keep it as its own partial candidate.
	if s.start == 0 {
		s.start = s.lineNo
	} else {
		s.pending.WriteByte('\n')
	}
	s.pending.WriteString(line)
	return models.LineSpan{}, false
}

// Flush completes and returns the pending candidate, if any.
func (s *Splitter) Flush() (models.LineSpan, bool) {
	if s.start == 0 {
		return models.LineSpan{}, false
	}
	span := models.LineSpan{
		Text:   s.pending.String(),
		Source: s.source,
		Offset: s.start,
	}
	s.pending.Reset()
	s.start = 0
	return span, true
}

// Pending reports whether a candidate is buffered.
func (s *Splitter) Pending() bool {
	return s.start != 0
}

// Lines returns the candidate records of stream as a single-pass sequence.
// Stopping early discards whatever is still pending.
func Lines(stream models.SourceStream) iter.Seq[models.LineSpan] {
	return func(yield func(models.LineSpan) bool) {
		sp := NewSplitter(stream.Name)
		for line := range strings.Lines(stream.Text) {
			if span, ok := sp.Push(line); ok {
				if !yield(span) {
					return
				}
			}
		}
		if span, ok := sp.Flush(); ok {
			yield(span)
		}
	}
}
