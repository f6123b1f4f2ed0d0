// Package pipeline runs one artifact through unpacking, detection, line
// extraction, parsing and balance tracking.
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/archive"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/extractor"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/lines"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/metrics"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/parser"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/tracker"
)

// DuplicatePolicy decides what happens to a repeated request ID.
type DuplicatePolicy string

const (
	// DuplicatesApply applies every occurrence and only reports repeats.
	DuplicatesApply DuplicatePolicy = "apply"
	// DuplicatesSkip drops a repeat of the same request, subscriber and amount.
	DuplicatesSkip DuplicatePolicy = "skip"
)

// Options configure a run.
type Options struct {
	Workers        int
	SniffBytes     int
	MaxMemberBytes int64
	Duplicates     DuplicatePolicy
	PriorBalances  map[string]decimal.Decimal
	Tracker        tracker.Options
	Patterns       []parser.Pattern // nil means parser.DefaultPatterns
}

// DefaultOptions returns options suitable for tests and the CLI defaults.
func DefaultOptions() Options {
	return Options{
		Workers:        4,
		SniffBytes:     4096,
		MaxMemberBytes: 256 << 20,
		Duplicates:     DuplicatesApply,
		Tracker:        tracker.DefaultOptions(),
	}
}

// Analyzer runs artifacts. It is safe for concurrent use; every call to
// Analyze owns its own tracker.
type Analyzer struct {
	opts     Options
	unpacker *archive.Unpacker
	detector *extractor.Detector
	parser   *parser.Parser
	metrics  *metrics.AnalyzerMetrics
	logger   *slog.Logger
}

// New creates an Analyzer. m may be nil.
func New(opts Options, m *metrics.AnalyzerMetrics, logger *slog.Logger) *Analyzer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Duplicates == "" {
		opts.Duplicates = DuplicatesApply
	}
	return &Analyzer{
		opts:     opts,
		unpacker: archive.NewUnpacker(opts.MaxMemberBytes, logger),
		detector: extractor.NewDetector(opts.SniffBytes, opts.MaxMemberBytes, logger),
		parser:   parser.New(opts.Patterns...),
		metrics:  m,
		logger:   logger.With("component", "pipeline"),
	}
}

// WithPriorBalances returns an Analyzer sharing a's stages but seeding
// each run from prior instead.
func (a *Analyzer) WithPriorBalances(prior map[string]decimal.Decimal) *Analyzer {
	cp := *a
	cp.opts.PriorBalances = prior
	return &cp
}

// entryOutput is everything one member contributed.
type entryOutput struct {
	index    int
	stats    models.SourceStats
	records  []models.TransactionRecord
	failures []models.ParseFailure
	err      *models.EntryError
}

// Analyze processes a. Per-member and per-line problems are collected in
// the result; an error is returned only when the artifact cannot be opened
// at all or ctx is cancelled.
func (a *Analyzer) Analyze(ctx context.Context, artifact models.RawArtifact) (*models.Result, error) {
	started := time.Now()
	runID := uuid.NewString()
	log := a.logger.With("run_id", runID, "artifact", artifact.Name)
	log.Info("analysis started", "bytes", len(artifact.Data))

	outputs, unpackErrs, err := a.processEntries(ctx, artifact)
	if err != nil {
		a.metrics.ObserveFatal(time.Since(started))
		log.Error("analysis aborted", "error", err)
		return nil, err
	}

	res := &models.Result{
		RunID:       runID,
		Artifact:    artifact.Name,
		StartedAt:   started.UTC(),
		EntryErrors: unpackErrs,
	}
	for _, out := range outputs {
		if out.err != nil {
			res.EntryErrors = append(res.EntryErrors, *out.err)
			continue
		}
		res.Sources = append(res.Sources, out.stats)
		res.Records = append(res.Records, out.records...)
		res.ParseFailures = append(res.ParseFailures, out.failures...)
	}

	SortRecords(res.Records)
	skip := a.findDuplicates(res)
	a.track(res, skip, log)

	res.Elapsed = time.Since(started)
	a.metrics.ObserveRun(res, res.Elapsed)
	log.Info("analysis finished",
		"sources", len(res.Sources),
		"records", len(res.Records),
		"parse_failures", len(res.ParseFailures),
		"entry_errors", len(res.EntryErrors),
		"overdraft_events", len(res.OverdraftEvents),
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// processEntries fans members out to a bounded worker group. Unpacking stays
// on the calling goroutine so members are read one at a time.
func (a *Analyzer) processEntries(ctx context.Context, artifact models.RawArtifact) ([]entryOutput, []models.EntryError, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)

	var (
		mu       sync.Mutex
		outputs  []entryOutput
		entryErr []models.EntryError
		fatal    error
	)

	index := 0
	for member, err := range a.unpacker.Unpack(artifact) {
		if gctx.Err() != nil {
			break
		}
		if err != nil {
			if errors.Is(err, archive.ErrUnreadableArtifact) {
				fatal = err
				break
			}
			entryErr = append(entryErr, toEntryError(err))
			continue
		}

		i := index
		index++
		g.Go(func() error {
			out := a.processMember(gctx, i, member)
			mu.Lock()
			outputs = append(outputs, out)
			mu.Unlock()
			return gctx.Err()
		})
	}

	waitErr := g.Wait()
	if fatal != nil {
		return nil, nil, fatal
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("analysis cancelled: %w", err)
	}
	if waitErr != nil {
		return nil, nil, waitErr
	}

	slices.SortFunc(outputs, func(x, y entryOutput) int { return x.index - y.index })
	return outputs, entryErr, nil
}

// processMember runs detect, extract and parse for one member. It touches
// no shared state.
func (a *Analyzer) processMember(ctx context.Context, index int, m models.Member) entryOutput {
	out := entryOutput{index: index}

	stream, err := a.detector.Detect(m)
	if err != nil {
		a.logger.Warn("skipping member", "entry", m.Name, "error", err)
		e := toEntryError(err)
		out.err = &e
		return out
	}
	out.stats.SourceStream = stream

	// latest "Processing message" ID per invocation or request in this source
	messages := make(map[string]string)
	for span := range lines.Lines(stream) {
		if ctx.Err() != nil {
			break
		}
		out.stats.Candidates++
		if scope, id, ok := parser.MessageMarker(span.Text); ok {
			messages[scope] = id
		}
		rec, failure := a.parser.Parse(span)
		if failure != nil {
			out.failures = append(out.failures, *failure)
			continue
		}
		if rec.MessageID == "" {
			rec.MessageID = messages[parser.Scope(rec)]
		}
		out.records = append(out.records, rec)
	}
	out.stats.Records = len(out.records)
	out.stats.Failures = len(out.failures)

	a.logger.Debug("member parsed",
		"entry", m.Name,
		"dialect", stream.Dialect,
		"records", out.stats.Records,
		"failures", out.stats.Failures,
	)
	return out
}

// SortRecords orders records by timestamp, then source name, then offset.
// The sort is stable so equal keys keep their input order.
func SortRecords(records []models.TransactionRecord) {
	slices.SortStableFunc(records, func(x, y models.TransactionRecord) int {
		if c := x.Timestamp.Compare(y.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(x.Source, y.Source); c != 0 {
			return c
		}
		return cmp.Compare(x.Offset, y.Offset)
	})
}

// identity is the key under which two records count as the same
// transaction. A message ID identifies a queue delivery on its own. A bare
// Lambda invocation ID does not: one invocation logs a whole batch.
func identity(rec models.TransactionRecord) (string, bool) {
	switch {
	case rec.MessageID != "":
		return "message\x00" + rec.MessageID, true
	case rec.RequestID != "" && rec.RequestID != rec.InvocationID:
		return "request\x00" + rec.RequestID, true
	}
	return "", false
}

// findDuplicates reports repeated transaction identities and returns the
// indexes of records the policy says not to apply.
func (a *Analyzer) findDuplicates(res *models.Result) map[int]bool {
	skip := make(map[int]bool)
	first := make(map[string]int)
	for i, rec := range res.Records {
		key, ok := identity(rec)
		if !ok {
			continue
		}
		j, seen := first[key]
		if !seen {
			first[key] = i
			continue
		}
		orig := res.Records[j]
		same := orig.SubscriberID == rec.SubscriberID &&
			orig.Amount.Valid == rec.Amount.Valid &&
			orig.Amount.Decimal.Equal(rec.Amount.Decimal)
		skipped := a.opts.Duplicates == DuplicatesSkip && same
		if skipped {
			skip[i] = true
		}
		res.Duplicates = append(res.Duplicates, models.Duplicate{
			RequestID:    rec.RequestID,
			MessageID:    rec.MessageID,
			SubscriberID: rec.SubscriberID,
			FirstSource:  orig.Source,
			FirstOffset:  orig.Offset,
			Source:       rec.Source,
			Offset:       rec.Offset,
			Skipped:      skipped,
		})
	}
	return skip
}

// track is the single serialization point: every record goes through one
// tracker in sorted order.
func (a *Analyzer) track(res *models.Result, skip map[int]bool, log *slog.Logger) {
	tr := tracker.New(a.opts.PriorBalances, a.opts.Tracker)
	for i := range res.Records {
		if skip[i] {
			continue
		}
		rec := &res.Records[i]
		out, err := tr.Apply(rec)
		if err != nil {
			log.Warn("record rejected by tracker", "source", rec.Source, "offset", rec.Offset, "error", err)
			reason := err.Error()
			var ire *tracker.InvalidRecordError
			if errors.As(err, &ire) {
				reason = ire.Reason
			}
			res.Rejected = append(res.Rejected, models.RejectedRecord{Record: *rec, Reason: reason})
			continue
		}
		if out.Event != nil {
			res.OverdraftEvents = append(res.OverdraftEvents, *out.Event)
		}
		if out.Recovery != nil {
			res.Recoveries = append(res.Recoveries, *out.Recovery)
		}
	}
	res.SubscriberBalances = tr.Snapshot()
}

func toEntryError(err error) models.EntryError {
	var (
		corrupt *archive.CorruptArchiveError
		nested  *archive.UnsupportedNestingError
		empty   *archive.EmptyArtifactError
		format  *extractor.UnsupportedFormatError
	)
	switch {
	case errors.As(err, &corrupt):
		return models.EntryError{Entry: corrupt.Entry, Kind: models.EntryCorruptArchive, Message: err.Error()}
	case errors.As(err, &nested):
		return models.EntryError{Entry: nested.Entry, Kind: models.EntryUnsupportedNesting, Message: err.Error()}
	case errors.As(err, &empty):
		return models.EntryError{Entry: empty.Entry, Kind: models.EntryEmptyArtifact, Message: err.Error()}
	case errors.As(err, &format):
		return models.EntryError{Entry: format.Name, Kind: models.EntryUnsupportedFormat, Message: err.Error()}
	default:
		return models.EntryError{Kind: models.EntryUnsupportedFormat, Message: err.Error()}
	}
}
