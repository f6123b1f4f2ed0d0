package parser

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/lines"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

var (
	// Runtime lines carry no transaction data on their own.
	platformLine = regexp.MustCompile(`^(?:\[?` + lines.TimestampExpr + `\]?\s+)?(?:START|END|REPORT|INIT_START) RequestId:`)
	skipMessage  = regexp.MustCompile(`(?i)skipping the balance sync`)
	anyTimestamp = regexp.MustCompile(`^\[?` + lines.TimestampExpr)
)

// Parser converts candidate lines into records. It holds no mutable state,
// so one Parser may be shared by concurrent goroutines.
type Parser struct {
	patterns []Pattern
}

// New returns a Parser over patterns, or over DefaultPatterns when none are
// given.
func New(patterns ...Pattern) *Parser {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	return &Parser{patterns: slices.Clone(patterns)}
}

// Patterns returns pattern names in declaration order.
func (p *Parser) Patterns() []string {
	names := make([]string, len(p.patterns))
	for i, pat := range p.patterns {
		names[i] = pat.Name
	}
	return names
}

// Parse converts span into a record. Exactly one of the results is usable:
// when the failure is non-nil the record is the zero value.
func (p *Parser) Parse(span models.LineSpan) (models.TransactionRecord, *models.ParseFailure) {
	text := strings.TrimSpace(span.Text)
	fail := func(reason models.ReasonCode, detail string) (models.TransactionRecord, *models.ParseFailure) {
		return models.TransactionRecord{}, &models.ParseFailure{
			Raw:    span.Text,
			Source: span.Source,
			Offset: span.Offset,
			Reason: reason,
			Detail: detail,
		}
	}

	if text == "" {
		return fail(models.ReasonEmpty, "")
	}
	if skipMessage.MatchString(text) {
		return fail(models.ReasonSkipMessage, "balance sync skipped by service")
	}

	if pat, values, ok := p.bestMatch(text); ok {
		ts, err := parseTimestamp(values[FieldTimestamp])
		if err != nil {
			return fail(models.ReasonBadTimestamp, err.Error())
		}

		rec := models.TransactionRecord{
			Timestamp:    ts,
			RequestID:    values[FieldRequestID],
			InvocationID: values[FieldInvocation],
			SubscriberID: values[FieldSubscriber],
			Status:       normalizeStatus(values[FieldStatus]),
			DurationMS:   models.NoDuration,
			Type:         strings.ToLower(values[FieldType]),
			Operation:    classifyOperation(text),
			MessageID:    values[FieldMessageID],
			Pattern:      pat.Name,
			Source:       span.Source,
			Offset:       span.Offset,
			Raw:          span.Text,
		}

		if rec.RequestID == "" {
			rec.RequestID = rec.InvocationID
		}

		if raw, ok := values[FieldAmount]; ok {
			amount, err := parseAmount(raw, rec.Type)
			if err != nil {
				return fail(models.ReasonInvalidAmount, err.Error())
			}
			rec.Amount = decimal.NewNullDecimal(amount)
		}

		if raw, ok := values[FieldDuration]; ok {
			if d, err := strconv.ParseFloat(raw, 64); err == nil && d >= 0 {
				rec.DurationMS = d
			}
		}

		return rec, nil
	}

	// Nothing matched; report the most useful reason.
	switch {
	case platformLine.MatchString(text):
		return fail(models.ReasonPlatformLine, "")
	case !anyTimestamp.MatchString(text):
		return fail(models.ReasonNoTimestamp, "")
	default:
		return fail(models.ReasonNoSubscriber, "")
	}
}

// MessageMarker recognizes a "Processing message <id>" line. scope is the
// invocation or request the line belongs to, empty when it names neither.
func MessageMarker(text string) (scope, messageID string, ok bool) {
	m := processingMessage.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	for _, re := range []*regexp.Regexp{invocationPrefix, invocationRequestID, keyValueRequestID} {
		if s := re.FindStringSubmatch(text); s != nil {
			scope = s[1]
			break
		}
	}
	return scope, m[1], true
}

// Scope is the key MessageMarker scopes match against.
func Scope(rec models.TransactionRecord) string {
	if rec.InvocationID != "" {
		return rec.InvocationID
	}
	return rec.RequestID
}

// bestMatch returns the matching pattern that extracted the most fields.
// Ties go to the pattern declared first.
func (p *Parser) bestMatch(text string) (Pattern, map[Field]string, bool) {
	var best Pattern
	var bestValues map[Field]string
	for _, pat := range p.patterns {
		values, ok := pat.Match(text)
		if !ok || len(values) <= len(bestValues) {
			continue
		}
		best, bestValues = pat, values
	}
	return best, bestValues, bestValues != nil
}

// ParseAll parses every span, splitting the output into records and failures
// in input order.
func (p *Parser) ParseAll(spans []models.LineSpan) ([]models.TransactionRecord, []models.ParseFailure) {
	var records []models.TransactionRecord
	var failures []models.ParseFailure
	for _, span := range spans {
		rec, failure := p.Parse(span)
		if failure != nil {
			failures = append(failures, *failure)
			continue
		}
		records = append(records, rec)
	}
	return records, failures
}

// String is used in debug logs.
func (p *Parser) String() string {
	return fmt.Sprintf("parser%v", p.Patterns())
}
