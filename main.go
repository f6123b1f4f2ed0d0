package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/analysis"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/config"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/logger"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/metrics"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/pipeline"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/tracker"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/writer"
)

const version = "1.0.0"

// Report formats accepted by -format.
const (
	formatJSON  = "json"
	formatCSV   = "csv"
	formatChart = "chart"
	formatAll   = "all"
)

type runOptions struct {
	outputDir string
	format    string
	kind      models.ContainerKind
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalf("Configuration error: %v\n", err)
	}

	// CLI flags
	outputFlag := flag.String("output", cfg.OutputDir, "Directory for report files")
	formatFlag := flag.String("format", formatAll, "Report format: json, csv, chart, all")
	priorFlag := flag.String("prior", "", "Starting balances file (CSV subscriber_id,balance or JSON object)")
	kindFlag := flag.String("kind", "", "Container kind: single, gzip, zip, document (sniffed if omitted)")
	duplicatesFlag := flag.String("duplicates", cfg.DuplicatePolicy, "Duplicate request ID policy: apply, skip")
	workersFlag := flag.Int("workers", cfg.Workers, "Archive members processed in parallel")
	serveFlag := flag.Bool("serve", false, "Run the HTTP API on SERVER_ADDR instead of analyzing files")
	verboseFlag := flag.Bool("verbose", false, "Enable debug logging")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	helpFlag := flag.Bool("help", false, "Show usage help")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Balance Sync Log Analyzer

Reads Lambda balance-sync log exports (plain logs, gzip, zip archives,
docx or pdf documents), replays every subscriber's balance and reports
overdrafts, parse failures and anomalies.

Usage:
  balance-sync-analyzer [flags] <artifact> [artifact ...]
  balance-sync-analyzer -serve

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Analyze an exported archive and write every report
  balance-sync-analyzer logs.zip

  # Seed balances from yesterday's snapshot and only write JSON
  balance-sync-analyzer -prior=balances.csv -format=json app.log.gz

  # Skip repeated deliveries of the same request
  balance-sync-analyzer -duplicates=skip jan.zip feb.zip
`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("balance-sync-analyzer v%s\n", version)
		os.Exit(0)
	}

	if *helpFlag || (flag.NArg() == 0 && !*serveFlag) {
		flag.Usage()
		os.Exit(0)
	}

	switch *formatFlag {
	case formatJSON, formatCSV, formatChart, formatAll:
	default:
		fatalf("Unknown format %q. Supported: json, csv, chart, all\n", *formatFlag)
	}

	kind := models.ContainerKind(strings.ToLower(*kindFlag))
	if kind != "" && !kind.Valid() {
		fatalf("Unknown kind %q. Supported: single, gzip, zip, document\n", *kindFlag)
	}

	cfg.DuplicatePolicy = *duplicatesFlag
	cfg.Workers = *workersFlag
	if *verboseFlag {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fatalf("Configuration error: %v\n", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	reg := prometheus.NewRegistry()

	opts, err := pipelineOptions(cfg)
	if err != nil {
		fatalf("Configuration error: %v\n", err)
	}
	if *priorFlag != "" {
		f, err := os.Open(*priorFlag)
		if err != nil {
			fatalf("Cannot open prior balances: %v\n", err)
		}
		opts.PriorBalances, err = pipeline.ReadPriorBalances(f)
		f.Close()
		if err != nil {
			fatalf("Invalid prior balances: %v\n", err)
		}
	}

	analyzer := pipeline.New(opts, metrics.NewAnalyzerMetrics(reg), log)
	summaryOpts := analysis.Options{
		Window:      cfg.TrendWindow,
		RapidWindow: cfg.RapidWindow,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serveFlag {
		if err := serve(ctx, cfg, analyzer, summaryOpts, reg, log); err != nil {
			log.Error("server stopped", "error", err)
			os.Exit(1)
		}
		return
	}

	ro := runOptions{outputDir: *outputFlag, format: *formatFlag, kind: kind}
	for _, inputPath := range flag.Args() {
		if err := processFile(ctx, analyzer, summaryOpts, inputPath, ro); err != nil {
			fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", inputPath, err)
			os.Exit(1)
		}
	}
}

func pipelineOptions(cfg *config.Config) (pipeline.Options, error) {
	threshold, err := cfg.SevereThreshold()
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Workers:        cfg.Workers,
		SniffBytes:     cfg.SniffBytes,
		MaxMemberBytes: cfg.MaxMemberBytes,
		Duplicates:     pipeline.DuplicatePolicy(cfg.DuplicatePolicy),
		Tracker: tracker.Options{
			SevereThreshold: threshold,
			ApplyFailed:     cfg.ApplyFailed,
		},
	}, nil
}

func processFile(ctx context.Context, analyzer *pipeline.Analyzer, summaryOpts analysis.Options, inputPath string, ro runOptions) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("input file not found: %s", inputPath)
		}
		return err
	}

	fmt.Printf("Processing: %s\n", inputPath)

	res, err := analyzer.Analyze(ctx, models.RawArtifact{
		Name: filepath.Base(inputPath),
		Data: data,
		Kind: ro.kind,
		Hint: filepath.Ext(inputPath),
	})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	fmt.Printf("  Read %d source(s), %d entry error(s)\n", len(res.Sources), len(res.EntryErrors))
	for _, e := range res.EntryErrors {
		fmt.Printf("    %s: %s\n", e.Kind, e.Entry)
	}
	fmt.Printf("  Parsed %d record(s), %d line(s) failed\n", len(res.Records), len(res.ParseFailures))
	if len(res.Records) == 0 {
		fmt.Println("  Warning: No records found. The log format may not match the known patterns.")
	}

	summary := analysis.Summarize(res, summaryOpts)
	writer.WriteTable(os.Stdout, summary)

	outDir := filepath.Join(ro.outputDir, strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath)))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := writeReports(outDir, ro.format, res, summary); err != nil {
		return err
	}

	for _, rec := range summary.Recommendations {
		fmt.Printf("  - %s\n", rec)
	}
	fmt.Println("  Done.")
	return nil
}

func writeReports(dir, format string, res *models.Result, summary *analysis.Summary) error {
	if format == formatJSON || format == formatAll {
		path := filepath.Join(dir, "report.json")
		w := &writer.JSONWriter{Indent: true}
		if err := w.WriteToFile(path, writer.Report{Summary: summary, Result: res}); err != nil {
			return fmt.Errorf("JSON write failed: %w", err)
		}
		fmt.Printf("  Output: %s\n", path)
	}

	if format == formatCSV || format == formatAll {
		w := &writer.CSVWriter{IncludeHeader: true}
		paths, err := w.WriteToDir(dir, res)
		if err != nil {
			return fmt.Errorf("CSV write failed: %w", err)
		}
		for _, p := range paths {
			fmt.Printf("  Output: %s\n", p)
		}
	}

	if format == formatChart || format == formatAll {
		path := filepath.Join(dir, "overdrafts.png")
		w := &writer.ChartWriter{}
		err := w.WriteToFile(path, summary)
		switch {
		case errors.Is(err, writer.ErrNothingToChart):
			os.Remove(path)
			fmt.Println("  No overdraft events to chart.")
		case err != nil:
			return fmt.Errorf("chart write failed: %w", err)
		default:
			fmt.Printf("  Output: %s\n", path)
		}
	}
	return nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
