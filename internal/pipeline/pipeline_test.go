package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/archive"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/logger"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/metrics"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

type member struct {
	name string
	body string
}

func zipArtifact(t *testing.T, name string, members ...member) models.RawArtifact {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: m.name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write([]byte(m.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return models.RawArtifact{Name: name, Data: buf.Bytes()}
}

func newAnalyzer(opts Options) *Analyzer {
	return New(opts, nil, logger.Discard())
}

type eventView struct {
	Subscriber string
	Kind       models.EventKind
	Before     string
	After      string
	At         string
}

func view(events []models.OverdraftEvent) []eventView {
	var out []eventView
	for _, e := range events {
		out = append(out, eventView{
			Subscriber: e.SubscriberID,
			Kind:       e.Kind,
			Before:     e.BalanceBefore.String(),
			After:      e.BalanceAfter.String(),
			At:         e.DetectedAt.Format("15:04:05"),
		})
	}
	return out
}

func TestAnalyzeZipWithCorruptMember(t *testing.T) {
	artifact := zipArtifact(t, "batch.zip",
		member{"a.log", "2024-01-01T00:00:00Z user=S1 amt=5\n"},
		member{"b.log", "CORRUPT-ME 2024-01-01T00:00:01Z user=S1 amt=5\n"},
		member{"c.log", "2024-01-01T00:00:02Z user=S2 amt=-1\n"},
	)
	i := bytes.Index(artifact.Data, []byte("CORRUPT-ME"))
	artifact.Data[i] = 'X'

	res, err := newAnalyzer(DefaultOptions()).Analyze(context.Background(), artifact)
	require.NoError(t, err)

	require.Len(t, res.Sources, 2)
	assert.Equal(t, "a.log", res.Sources[0].Name)
	assert.Equal(t, "c.log", res.Sources[1].Name)
	require.Len(t, res.EntryErrors, 1)
	assert.Equal(t, models.EntryCorruptArchive, res.EntryErrors[0].Kind)
	assert.Equal(t, "b.log", res.EntryErrors[0].Entry)
	assert.Len(t, res.Records, 2)
	assert.Len(t, res.OverdraftEvents, 1)
	assert.NotEmpty(t, res.RunID)
}

func TestAnalyzeInterleavedSourcesMatchPreSorted(t *testing.T) {
	interleaved := zipArtifact(t, "interleaved.zip",
		member{"a.log", "2024-01-01T00:02:00Z user=S1 amt=20\n2024-01-01T00:00:00Z user=S1 amt=100\n"},
		member{"b.log", "2024-01-01T00:01:00Z user=S1 amt=-150\n2024-01-01T00:03:00Z user=S1 amt=-5\n"},
	)
	sorted := models.RawArtifact{Name: "sorted.log", Data: []byte(
		"2024-01-01T00:00:00Z user=S1 amt=100\n" +
			"2024-01-01T00:01:00Z user=S1 amt=-150\n" +
			"2024-01-01T00:02:00Z user=S1 amt=20\n" +
			"2024-01-01T00:03:00Z user=S1 amt=-5\n",
	)}

	a := newAnalyzer(DefaultOptions())
	got, err := a.Analyze(context.Background(), interleaved)
	require.NoError(t, err)
	want, err := a.Analyze(context.Background(), sorted)
	require.NoError(t, err)

	assert.Equal(t, view(want.OverdraftEvents), view(got.OverdraftEvents))
	assert.Equal(t, []eventView{
		{"S1", models.EventOverdraft, "100", "-50", "00:01:00"},
		{"S1", models.EventStillOverdrawn, "-50", "-30", "00:02:00"},
		{"S1", models.EventWorsening, "-30", "-35", "00:03:00"},
	}, view(got.OverdraftEvents))
	assert.Equal(t, "-35", got.SubscriberBalances["S1"].CurrentBalance.String())
}

func TestAnalyzeCollectsParseFailures(t *testing.T) {
	// an untimestamped line only stands alone before the first record
	body := "req=abc user=S2 amt=-10\n" +
		"2024-01-01T00:00:00Z user=S1 amt=10\n" +
		"    at stack frame\n" +
		"2024-02-30T00:00:00Z user=S2 amt=-10\n" +
		"2024-01-01T00:00:01Z req=abc amt=-10\n"
	artifact := models.RawArtifact{Name: "mixed.log", Data: []byte(body)}

	res, err := newAnalyzer(DefaultOptions()).Analyze(context.Background(), artifact)
	require.NoError(t, err)

	require.Len(t, res.Records, 1)
	assert.Contains(t, res.Records[0].Raw, "at stack frame")

	var reasons []models.ReasonCode
	for _, f := range res.ParseFailures {
		reasons = append(reasons, f.Reason)
	}
	assert.Equal(t, []models.ReasonCode{
		models.ReasonNoTimestamp,
		models.ReasonBadTimestamp,
		models.ReasonNoSubscriber,
	}, reasons)
	assert.Equal(t, 1, res.ParseFailures[0].Offset)
	assert.Equal(t, 4, res.ParseFailures[1].Offset)
	assert.Equal(t, 4, res.Sources[0].Candidates)
}

func TestAnalyzeDuplicatePolicy(t *testing.T) {
	body := "2024-01-01T00:00:00Z req=r1 user=S1 amt=-10\n" +
		"2024-01-01T00:00:05Z req=r1 user=S1 amt=-10\n" +
		"2024-01-01T00:00:06Z req=r2 user=S1 amt=3\n" +
		"2024-01-01T00:00:07Z req=r2 user=S1 amt=4\n"
	artifact := models.RawArtifact{Name: "dups.log", Data: []byte(body)}

	tests := []struct {
		policy  DuplicatePolicy
		balance string
		skipped int
	}{
		{DuplicatesApply, "-13", 0},
		{DuplicatesSkip, "-3", 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Duplicates = tt.policy
			res, err := newAnalyzer(opts).Analyze(context.Background(), artifact)
			require.NoError(t, err)

			require.Len(t, res.Duplicates, 2)
			skipped := 0
			for _, d := range res.Duplicates {
				if d.Skipped {
					skipped++
				}
			}
			assert.Equal(t, tt.skipped, skipped)
			assert.Equal(t, "r1", res.Duplicates[0].RequestID)
			assert.Equal(t, 1, res.Duplicates[0].FirstOffset)
			assert.Equal(t, tt.balance, res.SubscriberBalances["S1"].CurrentBalance.String())
		})
	}
}

func lambdaLine(at, invocation, msg string) string {
	return "2024-01-01T00:00:" + at + ".000Z\t" + invocation + "\tINFO\t" + msg + "\n"
}

func TestAnalyzeLambdaBatchDuplicates(t *testing.T) {
	const inv1 = "3f2a9c1e-1b2c-4d5e-8f90-0a1b2c3d4e5f"
	const inv2 = "7c1d2e3f-4a5b-4c6d-9e8f-112233445566"
	debit := "Balance sync for subscriber_id: S1 debit $10.00 completed"

	tests := []struct {
		name     string
		body     string
		policy   DuplicatePolicy
		dups     int
		balance  string
		messages []string
	}{
		{
			name: "two messages in one invocation",
			body: lambdaLine("01", inv1, "Processing message aaaa1111") +
				lambdaLine("02", inv1, debit) +
				lambdaLine("03", inv1, "Processing message bbbb2222") +
				lambdaLine("04", inv1, debit),
			policy:   DuplicatesSkip,
			dups:     0,
			balance:  "-20",
			messages: []string{"aaaa1111", "bbbb2222"},
		},
		{
			name: "same message redelivered to a new invocation",
			body: lambdaLine("01", inv1, "Processing message aaaa1111") +
				lambdaLine("02", inv1, debit) +
				lambdaLine("10", inv2, "Processing message aaaa1111") +
				lambdaLine("11", inv2, debit),
			policy:   DuplicatesSkip,
			dups:     1,
			balance:  "-10",
			messages: []string{"aaaa1111", "aaaa1111"},
		},
		{
			name:     "invocation without message ids",
			body:     lambdaLine("02", inv1, debit) + lambdaLine("04", inv1, debit),
			policy:   DuplicatesApply,
			dups:     0,
			balance:  "-20",
			messages: []string{"", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Duplicates = tt.policy
			res, err := newAnalyzer(opts).Analyze(context.Background(), models.RawArtifact{Name: "lambda.log", Data: []byte(tt.body)})
			require.NoError(t, err)

			var messages []string
			for _, rec := range res.Records {
				assert.NotEmpty(t, rec.InvocationID)
				messages = append(messages, rec.MessageID)
			}
			assert.Equal(t, tt.messages, messages)
			assert.Len(t, res.Duplicates, tt.dups)
			assert.Equal(t, tt.balance, res.SubscriberBalances["S1"].CurrentBalance.String())
		})
	}
}

func TestAnalyzePriorBalances(t *testing.T) {
	opts := DefaultOptions()
	opts.PriorBalances = map[string]decimal.Decimal{"S1": decimal.NewFromInt(100), "S9": decimal.NewFromInt(-1)}
	artifact := models.RawArtifact{Name: "a.log", Data: []byte("2024-01-01T00:00:00Z user=S1 amt=-60\n")}

	res, err := newAnalyzer(opts).Analyze(context.Background(), artifact)
	require.NoError(t, err)

	assert.Empty(t, res.OverdraftEvents)
	assert.Equal(t, "40", res.SubscriberBalances["S1"].CurrentBalance.String())
	assert.Equal(t, models.StateOverdrawn, res.SubscriberBalances["S9"].State)
}

func TestWithPriorBalancesLeavesOriginal(t *testing.T) {
	base := newAnalyzer(DefaultOptions())
	seeded := base.WithPriorBalances(map[string]decimal.Decimal{"S1": decimal.NewFromInt(100)})
	artifact := models.RawArtifact{Name: "a.log", Data: []byte("2024-01-01T00:00:00Z user=S1 amt=-60\n")}

	res, err := seeded.Analyze(context.Background(), artifact)
	require.NoError(t, err)
	assert.Empty(t, res.OverdraftEvents)

	res, err = base.Analyze(context.Background(), artifact)
	require.NoError(t, err)
	assert.Len(t, res.OverdraftEvents, 1)
}

func TestAnalyzeGzipArtifact(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	fmt.Fprintln(zw, "2024-01-01T00:00:00Z user=S1 amt=-1")
	require.NoError(t, zw.Close())

	res, err := newAnalyzer(DefaultOptions()).Analyze(context.Background(), models.RawArtifact{Name: "a.log.gz", Data: buf.Bytes()})
	require.NoError(t, err)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "gzip+text", res.Sources[0].Format)
	assert.Len(t, res.OverdraftEvents, 1)
}

func TestAnalyzeFatal(t *testing.T) {
	artifact := models.RawArtifact{Name: "broken.zip", Data: []byte("PK\x03\x04nope"), Kind: models.ContainerZip}
	res, err := newAnalyzer(DefaultOptions()).Analyze(context.Background(), artifact)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, archive.ErrUnreadableArtifact)
}

func TestAnalyzeEmptyArtifact(t *testing.T) {
	res, err := newAnalyzer(DefaultOptions()).Analyze(context.Background(), models.RawArtifact{Name: "empty.log"})
	require.NoError(t, err)

	assert.Empty(t, res.Records)
	assert.Empty(t, res.SubscriberBalances)
	require.Len(t, res.EntryErrors, 1)
	assert.Equal(t, models.EntryEmptyArtifact, res.EntryErrors[0].Kind)
	assert.Equal(t, "empty.log", res.EntryErrors[0].Entry)
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	artifact := models.RawArtifact{Name: "a.log", Data: []byte("2024-01-01T00:00:00Z user=S1 amt=1\n")}
	_, err := newAnalyzer(DefaultOptions()).Analyze(ctx, artifact)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	var members []member
	for i := range 8 {
		members = append(members, member{
			name: fmt.Sprintf("part-%d.log", i),
			body: fmt.Sprintf("2024-01-01T00:00:0%dZ user=S%d amt=-%d\n2024-01-01T00:00:00Z user=S%d amt=%d\n", i, i%3, i*7, (i+1)%3, i*5),
		})
	}
	artifact := zipArtifact(t, "many.zip", members...)

	opts := DefaultOptions()
	opts.Workers = 8
	a := newAnalyzer(opts)

	encode := func() string {
		res, err := a.Analyze(context.Background(), artifact)
		require.NoError(t, err)
		out, err := json.Marshal(res.OverdraftEvents)
		require.NoError(t, err)
		return string(out)
	}
	first := encode()
	for range 5 {
		assert.Equal(t, first, encode())
	}
}

func TestAnalyzeRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewAnalyzerMetrics(reg)
	a := New(DefaultOptions(), m, logger.Discard())

	_, err := a.Analyze(context.Background(), models.RawArtifact{Name: "a.log", Data: []byte("2024-01-01T00:00:00Z user=S1 amt=-1\n")})
	require.NoError(t, err)
	_, err = a.Analyze(context.Background(), models.RawArtifact{Name: "bad.zip", Data: []byte("PK\x03\x04nope"), Kind: models.ContainerZip})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("fatal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsTotal))
}
