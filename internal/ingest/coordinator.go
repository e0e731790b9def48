// Package ingest drives extraction over a categorized corpus and writes each
// document into the store exactly once.
//
// Every file is an independent unit of work: a failure, timeout or panic in
// one file is reported in that file's Result and never touches another.
// Attempts for the same (category, filename) are serialized in-process, and
// the store's registry rejects duplicates that race in from other processes.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/pdfdoc"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/tracing"
)

// Store is the part of the document store the coordinator writes through.
type Store interface {
	Exists(ctx context.Context, c category.Category, filename string) (bool, error)
	InsertDocument(ctx context.Context, c category.Category, filename string, verdict document.Verdict, pages []document.Page) (bool, error)
}

// Extractor produces the pages of one opened document.
type Extractor interface {
	Extract(ctx context.Context, name string, doc extract.Document) (*extract.Extraction, error)
}

// Opener parses the file at path.
type Opener func(path string) (extract.Document, error)

// Notifier is told about every newly inserted document. Notification errors
// are logged and never change the file's outcome.
type Notifier interface {
	Notify(ctx context.Context, res document.Result) error
}

// OpenPDF is the default Opener.
func OpenPDF(path string) (extract.Document, error) {
	doc, err := pdfdoc.Open(path)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Coordinator runs ingestion for single files and whole corpora.
type Coordinator struct {
	store       Store
	extractor   Extractor
	open        Opener
	locks       *keyLock
	workers     int
	fileTimeout time.Duration
	extensions  []string
	notifiers   []Notifier
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithOpener(open Opener) Option {
	return func(c *Coordinator) { c.open = open }
}

func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifiers = append(c.notifiers, n) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithExtensions limits corpus walks to files with these extensions.
func WithExtensions(exts ...string) Option {
	return func(c *Coordinator) { c.extensions = exts }
}

// New creates a Coordinator. Worker count and per-file timeout come from cfg;
// a non-positive timeout leaves files unbounded.
func New(store Store, extractor Extractor, cfg config.IngestConfig, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		extractor:   extractor,
		open:        OpenPDF,
		locks:       newKeyLock(),
		workers:     cfg.Workers,
		fileTimeout: cfg.FileTimeout,
		extensions:  []string{".pdf"},
		logger:      slog.Default().With("component", "ingest-coordinator"),
	}
	if c.workers <= 0 {
		c.workers = 1
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IngestFile ingests exactly one file. It never returns an error: failures
// are reported as OutcomeFailed with Result.Err set.
func (c *Coordinator) IngestFile(ctx context.Context, src document.Source) (res document.Result) {
	start := time.Now()
	res = document.Result{Category: src.Category, Filename: src.Filename}
	log := c.logger.With("category", src.Category, "filename", src.Filename)

	ctx, span := tracing.StartSpan(ctx, "ingest_file")
	span.SetAttr("key", src.Key())
	defer func() {
		res.Duration = time.Since(start)
		span.SetAttr("outcome", res.Outcome.String())
		span.End(res.Err)
		span.Log(log)
		c.record(res)
		if res.Outcome == document.OutcomeFailed {
			log.Warn("ingestion failed", "error", res.Err, "duration_ms", res.Duration.Milliseconds())
		} else {
			log.Info("ingestion finished", "outcome", res.Outcome, "pages", res.Pages, "duration_ms", res.Duration.Milliseconds())
		}
	}()

	if err := validateSource(src); err != nil {
		res.Outcome, res.Err = document.OutcomeFailed, err
		return res
	}

	unlock := c.locks.Lock(src.Key())
	defer unlock()
	if c.metrics != nil {
		c.metrics.IngestInFlight.Inc()
		defer c.metrics.IngestInFlight.Dec()
	}

	var out document.Result
	err := resilience.WithTimeout(ctx, c.fileTimeout, "ingest "+src.Key(), func(ctx context.Context) error {
		var err error
		out, err = c.safeIngest(ctx, src)
		return err
	})
	if err != nil {
		res.Outcome, res.Err = document.OutcomeFailed, err
		return res
	}
	res.Outcome, res.Verdict, res.Pages = out.Outcome, out.Verdict, out.Pages

	if res.Outcome == document.OutcomeInserted {
		for _, n := range c.notifiers {
			if err := n.Notify(ctx, res); err != nil {
				log.Warn("notifier failed", "error", err)
			}
		}
	}
	return res
}

func (c *Coordinator) safeIngest(ctx context.Context, src document.Source) (out document.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Wrap(apperrors.ErrInternal, fmt.Errorf("panic: %v", r))
		}
	}()
	return c.ingest(ctx, src)
}

// ingest runs the sequential per-file steps. It must only report through its
// return values: on timeout it keeps running after IngestFile has returned.
func (c *Coordinator) ingest(ctx context.Context, src document.Source) (document.Result, error) {
	var out document.Result
	exists, err := c.store.Exists(ctx, src.Category, src.Filename)
	if err != nil {
		return out, err
	}
	if exists {
		out.Outcome = document.OutcomeAlreadyPresent
		return out, nil
	}

	doc, err := c.open(src.Path)
	if err != nil {
		return out, err
	}
	ex, err := c.extractor.Extract(ctx, src.Filename, doc)
	if err != nil {
		return out, err
	}

	_, span := tracing.StartChild(ctx, "persist")
	inserted, err := c.store.InsertDocument(ctx, src.Category, src.Filename, ex.Verdict, ex.Pages)
	span.End(err)
	if err != nil {
		return out, err
	}
	out.Verdict = ex.Verdict
	if !inserted {
		out.Outcome = document.OutcomeAlreadyPresent
		return out, nil
	}
	out.Outcome = document.OutcomeInserted
	out.Pages = len(ex.Pages)
	if c.metrics != nil {
		for _, p := range ex.Pages {
			c.metrics.PagesStoredTotal.WithLabelValues(p.Source.String()).Inc()
		}
	}
	return out, nil
}

func (c *Coordinator) record(res document.Result) {
	if c.metrics == nil {
		return
	}
	c.metrics.IngestOutcomesTotal.WithLabelValues(res.Category.String(), res.Outcome.String()).Inc()
	c.metrics.IngestDuration.WithLabelValues(res.Verdict.String()).Observe(res.Duration.Seconds())
}

func validateSource(src document.Source) error {
	if !src.Category.Valid() {
		return apperrors.Wrap(apperrors.ErrUnknownCategory, fmt.Errorf("category %d", src.Category))
	}
	if src.Filename == "" || filepath.Base(src.Filename) != src.Filename || src.Filename == "." || src.Filename == ".." {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid filename %q", src.Filename)
	}
	if src.Path == "" {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "no path for %q", src.Filename)
	}
	return nil
}
