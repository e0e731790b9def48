package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/document"
	"golang.org/x/sync/errgroup"
)

// Stats aggregates the outcomes of one corpus run.
type Stats struct {
	Scanned        int           `json:"scanned"`
	Inserted       int           `json:"inserted"`
	AlreadyPresent int           `json:"already_present"`
	Failed         int           `json:"failed"`
	Duration       time.Duration `json:"duration_ns"`
}

// Report is the result of IngestCorpus. Results follow discovery order:
// category directories alphabetically, then file names.
type Report struct {
	Results []document.Result `json:"results"`
	Stats   Stats             `json:"stats"`
}

// Failures returns the results that ended in OutcomeFailed.
func (r *Report) Failures() []document.Result {
	var failed []document.Result
	for _, res := range r.Results {
		if res.Outcome == document.OutcomeFailed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Scan lists the ingestible files under root/<category>/. Directories that
// do not name a category are skipped, as are files whose extension is not
// accepted. A missing category directory is not an error.
func (c *Coordinator) Scan(root string) ([]document.Source, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading corpus root: %w", err)
	}
	var sources []document.Source
	for _, dir := range entries {
		if !dir.IsDir() {
			continue
		}
		cat, err := category.Parse(dir.Name())
		if err != nil {
			c.logger.Warn("skipping unknown category directory", "dir", dir.Name())
			continue
		}
		files, err := os.ReadDir(filepath.Join(root, dir.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", dir.Name(), err)
		}
		for _, f := range files {
			if !f.Type().IsRegular() || !c.accepts(f.Name()) {
				continue
			}
			sources = append(sources, document.Source{
				Category: cat,
				Filename: f.Name(),
				Path:     filepath.Join(root, dir.Name(), f.Name()),
			})
		}
	}
	return sources, nil
}

func (c *Coordinator) accepts(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return slices.ContainsFunc(c.extensions, func(e string) bool {
		return strings.ToLower(e) == ext
	})
}

// IngestCorpus ingests every file Scan finds, running up to the configured
// number of files at once across all categories. Per-file failures are
// reported in the Report; the error is non-nil only when the corpus itself
// cannot be listed.
func (c *Coordinator) IngestCorpus(ctx context.Context, root string) (*Report, error) {
	start := time.Now()
	sources, err := c.Scan(root)
	if err != nil {
		return nil, err
	}
	c.logger.Info("corpus scan complete", "root", root, "files", len(sources), "workers", c.workers)

	results := make([]document.Result, len(sources))
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, src := range sources {
		g.Go(func() error {
			results[i] = c.IngestFile(ctx, src)
			return nil
		})
	}
	g.Wait()

	report := &Report{Results: results}
	report.Stats.Scanned = len(results)
	for _, res := range results {
		switch res.Outcome {
		case document.OutcomeInserted:
			report.Stats.Inserted++
		case document.OutcomeAlreadyPresent:
			report.Stats.AlreadyPresent++
		default:
			report.Stats.Failed++
		}
	}
	report.Stats.Duration = time.Since(start)
	c.logger.Info("corpus ingestion complete",
		"scanned", report.Stats.Scanned,
		"inserted", report.Stats.Inserted,
		"already_present", report.Stats.AlreadyPresent,
		"failed", report.Stats.Failed,
		"duration_ms", report.Stats.Duration.Milliseconds(),
	)
	return report, nil
}
