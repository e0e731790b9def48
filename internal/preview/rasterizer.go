package preview

import (
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/config"
	"golang.org/x/sync/errgroup"
)

// Rasterizer renders PDF pages with pdftoppm and writes enhanced previews.
type Rasterizer struct {
	runner  Runner
	cfg     config.PreviewConfig
	root    string
	workers int
	logger  *slog.Logger
}

// NewRasterizer writes previews under root. workers bounds concurrent
// documents in RenderCorpus.
func NewRasterizer(runner Runner, cfg config.PreviewConfig, root string, workers int) *Rasterizer {
	if workers <= 0 {
		workers = 1
	}
	return &Rasterizer{
		runner:  runner,
		cfg:     cfg,
		root:    root,
		workers: workers,
		logger:  slog.Default().With("component", "rasterizer"),
	}
}

// Rendered reports what Render did for one document.
type Rendered struct {
	Category category.Category
	Filename string
	Pages    int
	Skipped  bool
	Err      error
}

// Render writes the previews of the PDF at path. When previews already exist
// for the document and regeneration is off, it does nothing and reports
// Skipped.
func (r *Rasterizer) Render(ctx context.Context, c category.Category, filename, path string) Rendered {
	res := Rendered{Category: c, Filename: filename}
	if !c.Valid() || !ValidFilename(filename) {
		res.Err = fmt.Errorf("invalid preview target %s/%q", c, filename)
		return res
	}
	dir := Dir(r.root, c, filename)
	if !r.cfg.Regenerate && hasPreviews(dir) {
		res.Skipped = true
		return res
	}

	tmp, err := os.MkdirTemp("", "dd-preview-*")
	if err != nil {
		res.Err = err
		return res
	}
	defer os.RemoveAll(tmp)

	prefix := filepath.Join(tmp, "page")
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm, "-r", strconv.Itoa(r.cfg.DPI), "-png", path, prefix)
	if err != nil {
		res.Err = fmt.Errorf("pdftoppm %s: %w: %s", filename, err, truncate(strings.TrimSpace(string(errb)), 512))
		return res
	}
	matches, _ := filepath.Glob(prefix + "-*.png")
	if len(matches) == 0 {
		res.Err = fmt.Errorf("pdftoppm %s: no pages rendered", filename)
		return res
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		res.Err = err
		return res
	}
	for _, m := range matches {
		page, err := pageNumber(prefix, m)
		if err != nil {
			res.Err = err
			return res
		}
		if err := r.enhanceFile(m, pagePath(dir, page)); err != nil {
			res.Err = fmt.Errorf("page %d of %s: %w", page, filename, err)
			return res
		}
		res.Pages++
	}
	return res
}

// pageNumber parses the page from pdftoppm's "<prefix>-<n>.png" output,
// where n may be zero-padded.
func pageNumber(prefix, path string) (int, error) {
	s := strings.TrimSuffix(strings.TrimPrefix(path, prefix+"-"), ".png")
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("unexpected pdftoppm output %s", filepath.Base(path))
	}
	return n, nil
}

func (r *Rasterizer) enhanceFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	img, err := png.Decode(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("decoding rendered page: %w", err)
	}
	out := Enhance(img, r.cfg.Contrast, r.cfg.Sharpen)

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".preview-*")
	if err != nil {
		return err
	}
	if err := png.Encode(tmp, out); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func hasPreviews(dir string) bool {
	matches, _ := filepath.Glob(filepath.Join(dir, "*.png"))
	return len(matches) > 0
}

// Summary aggregates a RenderCorpus run.
type Summary struct {
	Results  []Rendered
	Rendered int
	Skipped  int
	Failed   int
}

// RenderCorpus renders every PDF under corpusRoot/<category>/.
func (r *Rasterizer) RenderCorpus(ctx context.Context, corpusRoot string) (*Summary, error) {
	type job struct {
		cat  category.Category
		name string
		path string
	}
	var jobs []job
	for _, c := range category.All() {
		dir := filepath.Join(corpusRoot, c.String())
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
				jobs = append(jobs, job{cat: c, name: e.Name(), path: filepath.Join(dir, e.Name())})
			}
		}
	}

	results := make([]Rendered, len(jobs))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, j := range jobs {
		g.Go(func() error {
			results[i] = r.Render(ctx, j.cat, j.name, j.path)
			return nil
		})
	}
	g.Wait()

	sum := &Summary{Results: results}
	for _, res := range results {
		switch {
		case res.Err != nil:
			sum.Failed++
			r.logger.Warn("preview failed", "category", res.Category, "filename", res.Filename, "error", res.Err)
		case res.Skipped:
			sum.Skipped++
		default:
			sum.Rendered++
		}
	}
	r.logger.Info("previews complete", "rendered", sum.Rendered, "skipped", sum.Skipped, "failed", sum.Failed)
	return sum, nil
}
