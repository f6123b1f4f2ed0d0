package models

import "time"

// EntryErrorKind classifies a member that could not be turned into a stream.
type EntryErrorKind string

const (
	EntryCorruptArchive     EntryErrorKind = "corrupt_archive"
	EntryUnsupportedFormat  EntryErrorKind = "unsupported_format"
	EntryUnsupportedNesting EntryErrorKind = "unsupported_nesting"
	EntryEmptyArtifact      EntryErrorKind = "empty_artifact"
)

// EntryError is a skipped archive member.
type EntryError struct {
	Entry   string         `json:"entry"`
	Kind    EntryErrorKind `json:"kind"`
	Message string         `json:"message"`
}

// RejectedRecord is a record the tracker refused to apply.
type RejectedRecord struct {
	Record TransactionRecord `json:"record"`
	Reason string            `json:"reason"`
}

// Duplicate notes a transaction identity seen more than once in a run.
type Duplicate struct {
	RequestID    string `json:"request_id"`
	MessageID    string `json:"message_id,omitempty"`
	SubscriberID string `json:"subscriber_id"`
	FirstSource  string `json:"first_source"`
	FirstOffset  int    `json:"first_offset"`
	Source       string `json:"source"`
	Offset       int    `json:"offset"`
	Skipped      bool   `json:"skipped"`
}

// SourceStats summarizes what one decoded stream contributed.
type SourceStats struct {
	SourceStream
	Candidates int `json:"candidates"`
	Records    int `json:"records"`
	Failures   int `json:"failures"`
}

// Result is the complete output of one analysis run and the sole input to
// reporting.
type Result struct {
	RunID              string                       `json:"run_id"`
	Artifact           string                       `json:"artifact"`
	StartedAt          time.Time                    `json:"started_at"`
	Elapsed            time.Duration                `json:"elapsed_ns"`
	Sources            []SourceStats                `json:"sources"`
	Records            []TransactionRecord          `json:"records"`
	OverdraftEvents    []OverdraftEvent             `json:"overdraft_events"`
	Recoveries         []RecoveryMarker             `json:"recoveries"`
	SubscriberBalances map[string]SubscriberBalance `json:"subscriber_balances"`
	ParseFailures      []ParseFailure               `json:"parse_failures"`
	EntryErrors        []EntryError                 `json:"entry_errors"`
	Rejected           []RejectedRecord             `json:"rejected_records"`
	Duplicates         []Duplicate                  `json:"duplicates"`
}
