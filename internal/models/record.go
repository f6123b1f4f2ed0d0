package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the normalized outcome reported by a log line.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusUnknown Status = "unknown"
)

// NoDuration is the sentinel stored in DurationMS when no duration was logged.
const NoDuration float64 = -1

// TransactionRecord is the canonical unit extracted from a log line.
// Records are passed and stored by value; the tracker and aggregator only
// read them.
type TransactionRecord struct {
	Timestamp    time.Time           `json:"timestamp"`
	RequestID    string              `json:"request_id,omitempty"`
	InvocationID string              `json:"invocation_id,omitempty"` // Lambda invocation, shared by every line it logs
	SubscriberID string              `json:"subscriber_id"`
	Amount       decimal.NullDecimal `json:"amount"` // invalid when no amount was logged
	Status       Status              `json:"status_code"`
	DurationMS   float64             `json:"duration_ms"`
	Type         string              `json:"transaction_type,omitempty"`
	Operation    string              `json:"operation,omitempty"`
	MessageID    string              `json:"message_id,omitempty"`
	Pattern      string              `json:"pattern"`
	Source       string              `json:"source"`
	Offset       int                 `json:"offset"`
	Raw          string              `json:"raw"`
}

// Effect returns the signed amount the record applies to a balance, or zero
// for informational records.
func (r TransactionRecord) Effect() decimal.Decimal {
	if !r.Amount.Valid {
		return decimal.Zero
	}
	return r.Amount.Decimal
}

// HasDuration reports whether a processing duration was extracted.
func (r TransactionRecord) HasDuration() bool {
	return r.DurationMS >= 0
}

// ReasonCode classifies why a candidate line did not become a record.
type ReasonCode string

const (
	ReasonEmpty         ReasonCode = "empty"
	ReasonNoTimestamp   ReasonCode = "no_timestamp"
	ReasonBadTimestamp  ReasonCode = "bad_timestamp"
	ReasonNoSubscriber  ReasonCode = "no_subscriber"
	ReasonInvalidAmount ReasonCode = "invalid_amount"
	ReasonPlatformLine  ReasonCode = "platform_line"
	ReasonSkipMessage   ReasonCode = "skip_message"
)

// ParseFailure is a rejected candidate line, retained for audit.
type ParseFailure struct {
	Raw    string     `json:"raw"`
	Source string     `json:"source"`
	Offset int        `json:"offset"`
	Reason ReasonCode `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}
