// Package tracker maintains per-subscriber running balances over an ordered
// record stream and emits overdraft events.
package tracker

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

// ErrInvalidRecord marks a record the tracker refused to apply.
var ErrInvalidRecord = errors.New("invalid record")

// Rejection reasons carried by InvalidRecordError.
const (
	ReasonMissingSubscriber = "missing_subscriber_id"
	ReasonMissingTimestamp  = "missing_timestamp"
	ReasonOutOfOrder        = "out_of_order"
)

// InvalidRecordError is returned for a record that must not touch balance
// state. The tracker is unchanged after returning it.
type InvalidRecordError struct {
	SubscriberID string
	Source       string
	Offset       int
	Reason       string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record %s:%d (subscriber %q): %s", e.Source, e.Offset, e.SubscriberID, e.Reason)
}

func (e *InvalidRecordError) Unwrap() error {
	return ErrInvalidRecord
}

// DefaultSevereThreshold grades events below -100 as high severity.
var DefaultSevereThreshold = decimal.NewFromInt(-100)

// Options tune how records affect balances.
type Options struct {
	// SevereThreshold: events whose balance_after is below it are high severity.
	SevereThreshold decimal.Decimal
	// ApplyFailed applies amounts of failed records. Off by default: a failed
	// sync moved no money.
	ApplyFailed bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{SevereThreshold: DefaultSevereThreshold}
}

// Outcome describes what applying one record produced. At most one of Event
// and Recovery is set.
type Outcome struct {
	Applied  bool // the record changed a balance
	Event    *models.OverdraftEvent
	Recovery *models.RecoveryMarker
}

type account struct {
	balance     decimal.Decimal
	starting    decimal.Decimal
	min         decimal.Decimal
	state       models.BalanceState
	firstSeen   time.Time
	lastUpdated time.Time
	count       int
	overdrafts  int
}

// Tracker owns all balance state for one run. It is not safe for concurrent
// use; records must be applied from a single goroutine in timestamp order.
type Tracker struct {
	opts     Options
	accounts map[string]*account
	last     time.Time
	seq      int
}

// New returns a Tracker seeded with prior balances. Seeded subscribers start
// in the state their balance implies; everyone else starts unseen at zero.
func New(prior map[string]decimal.Decimal, opts Options) *Tracker {
	t := &Tracker{
		opts:     opts,
		accounts: make(map[string]*account, len(prior)),
	}
	for id, bal := range prior {
		t.accounts[id] = &account{
			balance:  bal,
			starting: bal,
			min:      bal,
			state:    stateFor(bal),
		}
	}
	return t
}

func stateFor(bal decimal.Decimal) models.BalanceState {
	if bal.IsNegative() {
		return models.StateOverdrawn
	}
	return models.StateNonNegative
}

// Apply folds rec into its subscriber's balance. rec must outlive the
// returned event, which points at it.
func (t *Tracker) Apply(rec *models.TransactionRecord) (Outcome, error) {
	if err := t.validate(rec); err != nil {
		return Outcome{}, err
	}

	acct, ok := t.accounts[rec.SubscriberID]
	if !ok {
		acct = &account{state: models.StateUnseen}
		t.accounts[rec.SubscriberID] = acct
	}
	if acct.firstSeen.IsZero() {
		acct.firstSeen = rec.Timestamp
	}
	acct.lastUpdated = rec.Timestamp
	acct.count++
	t.last = rec.Timestamp

	if !t.affectsBalance(rec) {
		return Outcome{}, nil
	}

	before := acct.balance
	after := before.Add(rec.Amount.Decimal)
	prev := acct.state

	acct.balance = after
	acct.state = stateFor(after)
	if after.LessThan(acct.min) {
		acct.min = after
	}

	out := Outcome{Applied: true}
	switch {
	case prev != models.StateOverdrawn && acct.state == models.StateOverdrawn:
		acct.overdrafts++
		out.Event = t.event(rec, models.EventOverdraft, before, after)
	case prev == models.StateOverdrawn && acct.state == models.StateOverdrawn:
		kind := models.EventStillOverdrawn
		if after.LessThan(before) {
			kind = models.EventWorsening
		}
		out.Event = t.event(rec, kind, before, after)
	case prev == models.StateOverdrawn:
		out.Recovery = &models.RecoveryMarker{
			SubscriberID:     rec.SubscriberID,
			BalanceBefore:    before,
			BalanceAfter:     after,
			TriggeringRecord: rec,
			DetectedAt:       rec.Timestamp,
		}
	}
	return out, nil
}

func (t *Tracker) validate(rec *models.TransactionRecord) error {
	reject := func(reason string) error {
		e := &InvalidRecordError{Reason: reason}
		if rec != nil {
			e.SubscriberID, e.Source, e.Offset = rec.SubscriberID, rec.Source, rec.Offset
		}
		return e
	}
	switch {
	case rec == nil || strings.TrimSpace(rec.SubscriberID) == "":
		return reject(ReasonMissingSubscriber)
	case rec.Timestamp.IsZero():
		return reject(ReasonMissingTimestamp)
	case rec.Timestamp.Before(t.last):
		return reject(ReasonOutOfOrder)
	}
	return nil
}

func (t *Tracker) affectsBalance(rec *models.TransactionRecord) bool {
	if !rec.Amount.Valid || rec.Amount.Decimal.IsZero() {
		return false
	}
	if rec.Status == models.StatusFailure && !t.opts.ApplyFailed {
		return false
	}
	return true
}

func (t *Tracker) event(rec *models.TransactionRecord, kind models.EventKind, before, after decimal.Decimal) *models.OverdraftEvent {
	t.seq++
	severity := models.SeverityMedium
	if after.LessThan(t.opts.SevereThreshold) {
		severity = models.SeverityHigh
	}
	return &models.OverdraftEvent{
		Sequence:         t.seq,
		SubscriberID:     rec.SubscriberID,
		Kind:             kind,
		Severity:         severity,
		BalanceBefore:    before,
		BalanceAfter:     after,
		TriggeringRecord: rec,
		DetectedAt:       rec.Timestamp,
	}
}

// Balance returns a snapshot of one subscriber.
func (t *Tracker) Balance(id string) (models.SubscriberBalance, bool) {
	acct, ok := t.accounts[id]
	if !ok {
		return models.SubscriberBalance{}, false
	}
	return acct.snapshot(id), true
}

// Snapshot returns copies of every subscriber's state keyed by ID.
func (t *Tracker) Snapshot() map[string]models.SubscriberBalance {
	out := make(map[string]models.SubscriberBalance, len(t.accounts))
	for id, acct := range t.accounts {
		out[id] = acct.snapshot(id)
	}
	return out
}

// Subscribers returns known subscriber IDs in sorted order.
func (t *Tracker) Subscribers() []string {
	ids := make([]string, 0, len(t.accounts))
	for id := range t.accounts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (a *account) snapshot(id string) models.SubscriberBalance {
	return models.SubscriberBalance{
		SubscriberID:     id,
		CurrentBalance:   a.balance,
		StartingBalance:  a.starting,
		MinBalance:       a.min,
		State:            a.state,
		FirstSeen:        a.firstSeen,
		LastUpdated:      a.lastUpdated,
		TransactionCount: a.count,
		OverdraftCount:   a.overdrafts,
	}
}
