// Command rfm scores one transaction dataset and writes the per-customer
// results as CSV.
//
//	rfm -file orders.xlsx -output rfm_results.csv
//	rfm -source postgres -output -
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"rfm-dashboard/internal/config"
	"rfm-dashboard/internal/export"
	"rfm-dashboard/internal/ingest"
	"rfm-dashboard/internal/kafka"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/services"
	"rfm-dashboard/internal/source"
)

const sourcePostgres = "postgres"

type options struct {
	file    string
	source  string
	output  string
	publish bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("rfm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.file, "file", "", "transactions file (.csv or .xlsx)")
	fs.StringVar(&opts.source, "source", "", `load transactions from a configured source ("postgres")`)
	fs.StringVar(&opts.output, "output", export.Filename, `results file, "-" for stdout`)
	fs.BoolVar(&opts.publish, "publish", false, "publish results to the configured Kafka topic")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	switch {
	case opts.file == "" && opts.source == "":
		return opts, errors.New("one of -file or -source is required")
	case opts.file != "" && opts.source != "":
		return opts, errors.New("-file and -source are mutually exclusive")
	case opts.source != "" && opts.source != sourcePostgres:
		return opts, fmt.Errorf("unknown source %q", opts.source)
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Logs go to stderr so "-output -" leaves stdout to the CSV.
	logger := observability.NewLoggerTo(os.Stderr, cfg.Logger)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger, os.Stdout); err != nil {
		logger.Error("rfm analysis failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger, stdout io.Writer) error {
	var publisher services.Publisher
	if opts.publish {
		if !cfg.Kafka.Enabled() {
			return errors.New("-publish needs KAFKA_BROKERS")
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer producer.Close()
		publisher = producer
	}

	analyzer := services.NewAnalyzer(logger, services.Options{
		Ingest:         ingest.Options{MaxRows: cfg.Upload.MaxRows},
		Publisher:      publisher,
		PublishTimeout: cfg.Kafka.PublishTimeout,
	})

	analysis, err := analyze(ctx, cfg, opts, analyzer)
	if err != nil {
		return err
	}

	if err := writeResults(opts.output, analysis, stdout); err != nil {
		return err
	}

	for _, sc := range analysis.Report.Segments {
		logger.Info("segment", "segment", sc.Segment, "customers", sc.Count)
	}
	logger.Info("rfm analysis written",
		"source", analysis.Source,
		"customers", len(analysis.Report.Customers),
		"snapshot_date", analysis.Report.SnapshotDate.Format("2006-01-02"),
		"output", opts.output,
	)
	return nil
}

func analyze(ctx context.Context, cfg *config.Config, opts options, analyzer *services.Analyzer) (*services.Analysis, error) {
	if opts.source == sourcePostgres {
		if !cfg.Source.Enabled() {
			return nil, errors.New("-source postgres needs DATABASE_URL")
		}
		pool, err := source.Connect(ctx, cfg.Source.PostgresDSN)
		if err != nil {
			return nil, err
		}
		loader := source.NewPostgresLoader(pool, source.OptionsFromConfig(cfg.Source, cfg.Upload.MaxRows))
		defer loader.Close()

		table, err := loader.Load(ctx)
		if err != nil {
			return nil, err
		}
		return analyzer.AnalyzeTable(ctx, loader.Name(), table)
	}

	f, err := os.Open(opts.file)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	return analyzer.Analyze(ctx, filepath.Base(opts.file), f)
}

func writeResults(path string, analysis *services.Analysis, stdout io.Writer) error {
	if path == "-" {
		return export.WriteCSV(stdout, analysis.Report.Customers)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := export.WriteCSV(f, analysis.Report.Customers); err != nil {
		f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	return f.Close()
}
