package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceState is the tracker state of one subscriber.
type BalanceState string

const (
	StateUnseen      BalanceState = "unseen"
	StateNonNegative BalanceState = "non_negative"
	StateOverdrawn   BalanceState = "overdrawn"
)

// SubscriberBalance is a snapshot of one subscriber's running state.
type SubscriberBalance struct {
	SubscriberID     string          `json:"subscriber_id"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
	StartingBalance  decimal.Decimal `json:"starting_balance"`
	MinBalance       decimal.Decimal `json:"min_balance"`
	State            BalanceState    `json:"state"`
	FirstSeen        time.Time       `json:"first_seen"`
	LastUpdated      time.Time       `json:"last_updated"`
	TransactionCount int             `json:"transaction_count"`
	OverdraftCount   int             `json:"overdraft_count"`
}

// EventKind distinguishes a fresh overdraft from follow-up events fired while
// a subscriber stays below zero.
type EventKind string

const (
	EventOverdraft      EventKind = "overdraft"
	EventWorsening      EventKind = "worsening"
	EventStillOverdrawn EventKind = "still_overdrawn"
)

// Severity grades an overdraft event by how far below zero it lands.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// OverdraftEvent is emitted by the tracker. TriggeringRecord points into the
// run's record list and is never owned by the event.
type OverdraftEvent struct {
	Sequence         int                `json:"sequence"`
	SubscriberID     string             `json:"subscriber_id"`
	Kind             EventKind          `json:"kind"`
	Severity         Severity           `json:"severity"`
	BalanceBefore    decimal.Decimal    `json:"balance_before"`
	BalanceAfter     decimal.Decimal    `json:"balance_after"`
	TriggeringRecord *TransactionRecord `json:"triggering_record"`
	DetectedAt       time.Time          `json:"detected_at"`
}

// RecoveryMarker records a subscriber climbing from overdrawn back to >= 0.
type RecoveryMarker struct {
	SubscriberID     string             `json:"subscriber_id"`
	BalanceBefore    decimal.Decimal    `json:"balance_before"`
	BalanceAfter     decimal.Decimal    `json:"balance_after"`
	TriggeringRecord *TransactionRecord `json:"triggering_record"`
	DetectedAt       time.Time          `json:"detected_at"`
}
