package parser

import (
	"regexp"
	"slices"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/lines"
)

// Field names a value a pattern can extract.
type Field string

const (
	FieldTimestamp  Field = "timestamp"
	FieldRequestID  Field = "request_id"
	FieldInvocation Field = "invocation_id"
	FieldSubscriber Field = "subscriber_id"
	FieldAmount     Field = "amount"
	FieldStatus     Field = "status"
	FieldDuration   Field = "duration"
	FieldType       Field = "type"
	FieldMessageID  Field = "message_id"
)

// Rule extracts one field. The first capture group of Expr is the value.
// Several rules may target the same field; the first that matches wins.
type Rule struct {
	Field    Field
	Expr     *regexp.Regexp
	Required bool
}

// Pattern is a named, declarative description of one log line shape.
type Pattern struct {
	Name  string
	Rules []Rule
}

// Fields returns the distinct fields the pattern can extract.
func (p Pattern) Fields() []Field {
	var fields []Field
	for _, r := range p.Rules {
		if !slices.Contains(fields, r.Field) {
			fields = append(fields, r.Field)
		}
	}
	return fields
}

// Match applies every rule to text. It returns the captured values and
// whether every required field was found.
func (p Pattern) Match(text string) (map[Field]string, bool) {
	values := make(map[Field]string, len(p.Rules))
	for _, r := range p.Rules {
		if _, done := values[r.Field]; done {
			continue
		}
		if m := r.Expr.FindStringSubmatch(text); m != nil && len(m) > 1 && m[1] != "" {
			values[r.Field] = m[1]
		}
	}
	for _, r := range p.Rules {
		if r.Required {
			if _, ok := values[r.Field]; !ok {
				return values, false
			}
		}
	}
	return values, true
}

var (
	invocationRequestID = regexp.MustCompile(`RequestId:\s*([a-fA-F0-9\-]+)`)
	invocationPrefix    = regexp.MustCompile(`^\S+\t([0-9a-fA-F]{8}-[0-9a-fA-F\-]{27,})\t`)
	processingMessage   = regexp.MustCompile(`Processing message ([a-fA-F0-9\-]+)`)
	keyValueRequestID   = regexp.MustCompile(`(?i)\b(?:req|request|request_id|requestid)=([^\s,;]+)`)
)

const amountExpr = `([-+]?\$?[-+]?\d[\d,]*(?:\.\d+)?)`

var tsRule = Rule{Field: FieldTimestamp, Expr: regexp.MustCompile(`^\[?(` + lines.TimestampExpr + `)`), Required: true}

// KeyValuePattern matches structured lines such as
// "2024-01-01T00:00:00Z req=abc user=S2 amt=-10 status=success dur=42".
func KeyValuePattern() Pattern {
	return Pattern{
		Name: "keyvalue",
		Rules: []Rule{
			tsRule,
			{Field: FieldRequestID, Expr: keyValueRequestID},
			{Field: FieldSubscriber, Expr: regexp.MustCompile(`(?i)\b(?:user|user_id|sub|subscriber|subscriber_id)=([^\s,;]+)`), Required: true},
			{Field: FieldAmount, Expr: regexp.MustCompile(`(?i)\b(?:amt|amount)=` + amountExpr)},
			{Field: FieldStatus, Expr: regexp.MustCompile(`(?i)\bstatus=([A-Za-z0-9_]+)`)},
			{Field: FieldDuration, Expr: regexp.MustCompile(`(?i)\b(?:dur|duration|duration_ms)=(\d+(?:\.\d+)?)`)},
			{Field: FieldType, Expr: regexp.MustCompile(`(?i)\b(?:type|txn_type)=([A-Za-z_]+)`)},
		},
	}
}

// LambdaPattern matches application lines written through the Lambda
// runtime logger, e.g.
// "2024-01-01T00:00:00.000Z\t<uuid>\tINFO Balance sync for subscriber_id: S1 credit $25.00 completed".
func LambdaPattern() Pattern {
	return Pattern{
		Name: "lambda",
		Rules: []Rule{
			tsRule,
			{Field: FieldInvocation, Expr: invocationRequestID},
			{Field: FieldInvocation, Expr: invocationPrefix},
			// A token followed by "=" belongs to a key=value pair, not to this prose.
			{Field: FieldSubscriber, Expr: regexp.MustCompile(`(?i)\bsubscriber[_\s]?(?:id)?[:\s]+([a-zA-Z0-9\-_]+)(?:[^=a-zA-Z0-9\-_]|$)`), Required: true},
			{Field: FieldAmount, Expr: regexp.MustCompile(`([-+]?\$[-+]?\d[\d,]*(?:\.\d+)?)`)},
			{Field: FieldAmount, Expr: regexp.MustCompile(`(?i)\bamount[:\s]+` + amountExpr)},
			{Field: FieldType, Expr: regexp.MustCompile(`(?i)\b(credit|debit|payment|refund|charge|withdrawal|topup|deposit|purchase)\b`)},
			{Field: FieldStatus, Expr: regexp.MustCompile(`(?i)\b(success|successful|successfully|succeeded|completed|failed|failure|error|declined)\b`)},
			{Field: FieldDuration, Expr: regexp.MustCompile(`Duration:\s*([\d.]+)\s*ms`)},
			{Field: FieldMessageID, Expr: processingMessage},
		},
	}
}

// FreeformPattern is the last resort: a timestamp and a "sub_" token.
func FreeformPattern() Pattern {
	return Pattern{
		Name: "freeform",
		Rules: []Rule{
			tsRule,
			{Field: FieldSubscriber, Expr: regexp.MustCompile(`\b(sub_[a-zA-Z0-9]+)`), Required: true},
			{Field: FieldAmount, Expr: regexp.MustCompile(`([-+]?\$[-+]?\d[\d,]*(?:\.\d+)?)`)},
			{Field: FieldType, Expr: regexp.MustCompile(`(?i)\b(credit|debit|payment|refund|charge|withdrawal)\b`)},
			{Field: FieldStatus, Expr: regexp.MustCompile(`(?i)\b(success|successfully|completed|failed|error)\b`)},
		},
	}
}

// DefaultPatterns returns the built-in patterns. Declaration order breaks
// ties between equally specific matches.
func DefaultPatterns() []Pattern {
	return []Pattern{KeyValuePattern(), LambdaPattern(), FreeformPattern()}
}
