// Command ingest loads a corpus directory into the document store.
//
// The corpus holds one subdirectory per category. Every PDF not yet stored is
// classified, extracted and written with its pages. With -watch the command
// keeps running and ingests files as they appear.
//
// Usage:
//
//	go run ./cmd/ingest [-config configs/development.yaml] [-root corpus] [-workers 8] [-watch]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/ocr/tesseract"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	root := flag.String("root", "", "corpus root (overrides corpus.root)")
	workers := flag.Int("workers", 0, "concurrent files (overrides ingest.workers)")
	policy := flag.String("ocr-failures", "", "abort or skip (overrides ingest.ocrFailurePolicy)")
	watch := flag.Bool("watch", false, "keep running and ingest new files")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *root != "" {
		cfg.Corpus.Root = *root
	}
	if *workers > 0 {
		cfg.Ingest.Workers = *workers
	}
	if *policy != "" {
		cfg.Ingest.OCRFailurePolicy = *policy
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
			os.Exit(2)
		}
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *database.Client
	err = resilience.Retry(ctx, "store-connect", resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}, func(ctx context.Context) error {
		var openErr error
		db, openErr = database.Open(ctx, cfg)
		return openErr
	})
	if err != nil {
		slog.Error("failed to connect to document store", "error", err)
		os.Exit(1)
	}
	st := store.New(db)
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		slog.Error("failed to migrate document store", "error", err)
		os.Exit(1)
	}

	m := metrics.NewUnregistered()
	extractor := extract.New(tesseract.New(),
		extract.WithFailurePolicy(cfg.Ingest.OCRFailurePolicy),
		extract.WithMetrics(m),
	)
	opts := []ingest.Option{
		ingest.WithMetrics(m),
		ingest.WithExtensions(cfg.Corpus.Extensions...),
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngested)
		defer producer.Close()
		host, _ := os.Hostname()
		opts = append(opts, ingest.WithNotifier(events.NewPublisher(producer, fmt.Sprintf("ingest-%s-%d", host, os.Getpid()), m)))
	}
	coordinator := ingest.New(st, extractor, cfg.Ingest, opts...)

	slog.Info("ingesting corpus",
		"root", cfg.Corpus.Root,
		"workers", cfg.Ingest.Workers,
		"ocr_failures", cfg.Ingest.OCRFailurePolicy,
	)
	report, err := coordinator.IngestCorpus(ctx, cfg.Corpus.Root)
	if err != nil {
		slog.Error("corpus ingestion failed", "error", err)
		os.Exit(1)
	}
	printReport(report)

	if *watch {
		slog.Info("watching corpus for new files", "root", cfg.Corpus.Root)
		err := coordinator.Watch(ctx, cfg.Corpus.Root, func(res document.Result) {
			fmt.Printf("%-16s %s/%s (%d pages)\n", res.Outcome, res.Category, res.Filename, res.Pages)
			if res.Err != nil {
				fmt.Printf("    error: %v\n", res.Err)
			}
		})
		if err != nil {
			slog.Error("watcher stopped", "error", err)
			os.Exit(1)
		}
		return
	}

	if report.Stats.Failed > 0 {
		os.Exit(1)
	}
}

func printReport(report *ingest.Report) {
	s := report.Stats
	fmt.Println("=== Ingestion Summary ===")
	fmt.Printf("Scanned:         %d\n", s.Scanned)
	fmt.Printf("Inserted:        %d\n", s.Inserted)
	fmt.Printf("Already present: %d\n", s.AlreadyPresent)
	fmt.Printf("Failed:          %d\n", s.Failed)
	fmt.Printf("Duration:        %s\n", s.Duration.Round(time.Millisecond))

	failures := report.Failures()
	if len(failures) == 0 {
		return
	}
	fmt.Println()
	fmt.Println("=== Failures ===")
	for _, res := range failures {
		fmt.Printf("  %s/%s: %v\n", res.Category, res.Filename, res.Err)
	}
}
