package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/ocr"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeDoc struct {
	texts  []string
	images map[int][]document.Image
}

func (d *fakeDoc) NumPages() int { return len(d.texts) }

func (d *fakeDoc) PageText(page int) (string, error) { return d.texts[page-1], nil }

func (d *fakeDoc) PageImages(page int) []document.Image { return d.images[page] }

func nativeDoc(pages int) *fakeDoc {
	d := &fakeDoc{}
	for i := 0; i < pages; i++ {
		d.texts = append(d.texts, fmt.Sprintf("page %d", i+1))
	}
	return d
}

func scannedDoc(t *testing.T) *fakeDoc {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	return &fakeDoc{
		texts:  []string{""},
		images: map[int][]document.Image{1: {{Page: 1, Name: "Im1", Format: "png", Data: buf.Bytes()}}},
	}
}

// docsByName serves fake documents keyed by base file name and counts opens.
type docsByName struct {
	mu    sync.Mutex
	docs  map[string]extract.Document
	opens atomic.Int32
}

func (d *docsByName) open(path string) (extract.Document, error) {
	d.opens.Add(1)
	name := filepath.Base(path)
	if name == "panic.pdf" {
		panic("parser exploded")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[name]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrDocumentParse, errors.New(name+": corrupt"))
	}
	return doc, nil
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, filepath.Join(t.TempDir(), "ingest.db"))
	if err != nil {
		t.Fatal(err)
	}
	s := store.New(db)
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return s
}

func textEngine() ocr.Engine {
	return ocr.EngineFunc(func(_ context.Context, in ocr.Input) (ocr.Result, error) {
		return ocr.Result{InputID: in.ID, PlainText: "recognised"}, nil
	})
}

func newCoordinator(t *testing.T, st Store, docs *docsByName, opts ...Option) *Coordinator {
	t.Helper()
	ex := extract.New(textEngine(), extract.WithNormalizer(func(img image.Image) (image.Image, float64) { return img, 0 }))
	opts = append([]Option{WithOpener(docs.open)}, opts...)
	return New(st, ex, config.IngestConfig{Workers: 4, FileTimeout: 10 * time.Second}, opts...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	results []document.Result
}

func (n *recordingNotifier) Notify(_ context.Context, res document.Result) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, res)
	return nil
}

func TestIngestFileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	docs := &docsByName{docs: map[string]extract.Document{"lease.pdf": nativeDoc(3)}}
	notifier := &recordingNotifier{}
	m := metrics.NewUnregistered()
	c := newCoordinator(t, st, docs, WithNotifier(notifier), WithMetrics(m))
	src := document.Source{Category: category.Contracts, Filename: "lease.pdf", Path: "/corpus/contracts/lease.pdf"}

	first := c.IngestFile(ctx, src)
	if first.Outcome != document.OutcomeInserted || first.Pages != 3 || first.Verdict != document.VerdictNative {
		t.Fatalf("first = %+v", first)
	}
	second := c.IngestFile(ctx, src)
	if second.Outcome != document.OutcomeAlreadyPresent {
		t.Fatalf("second outcome = %s, err = %v", second.Outcome, second.Err)
	}
	if docs.opens.Load() != 1 {
		t.Errorf("document opened %d times, want 1", docs.opens.Load())
	}
	if n, _ := st.CountPages(ctx, category.Contracts, "lease.pdf"); n != 3 {
		t.Errorf("rows = %d, want 3", n)
	}
	if len(notifier.results) != 1 {
		t.Errorf("notified %d times, want 1", len(notifier.results))
	}
	if v := testutil.ToFloat64(m.IngestOutcomesTotal.WithLabelValues("contracts", "already_present")); v != 1 {
		t.Errorf("already_present counter = %v", v)
	}
	if v := testutil.ToFloat64(m.PagesStoredTotal.WithLabelValues("native")); v != 3 {
		t.Errorf("pages stored counter = %v", v)
	}
}

func TestIngestFileRejectsBadSources(t *testing.T) {
	c := newCoordinator(t, newStore(t), &docsByName{})
	tests := []struct {
		name string
		src  document.Source
		want error
	}{
		{"unknown category", document.Source{Filename: "a.pdf", Path: "a.pdf"}, apperrors.ErrUnknownCategory},
		{"path traversal", document.Source{Category: category.Records, Filename: "../a.pdf", Path: "a.pdf"}, apperrors.ErrInvalidInput},
		{"empty filename", document.Source{Category: category.Records, Path: "a.pdf"}, apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.IngestFile(context.Background(), tt.src)
			if res.Outcome != document.OutcomeFailed || !errors.Is(res.Err, tt.want) {
				t.Errorf("result = %s, %v; want failed with %v", res.Outcome, res.Err, tt.want)
			}
		})
	}
}

func TestConcurrentDistinctDocumentsAcrossCategories(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	docs := &docsByName{docs: make(map[string]extract.Document)}
	var sources []document.Source
	wantRows := make(map[category.Category]int)
	for i := 0; i < 40; i++ {
		cat := category.All()[i%len(category.All())]
		name := fmt.Sprintf("doc-%02d.pdf", i)
		pages := 1 + i%3
		docs.docs[name] = nativeDoc(pages)
		wantRows[cat] += pages
		sources = append(sources, document.Source{Category: cat, Filename: name, Path: name})
	}
	c := newCoordinator(t, st, docs)

	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := c.IngestFile(ctx, src); res.Outcome != document.OutcomeInserted {
				t.Errorf("%s: %s %v", src.Key(), res.Outcome, res.Err)
			}
		}()
	}
	wg.Wait()

	for _, cat := range category.All() {
		n, err := st.CountPages(ctx, cat, "")
		if err != nil {
			t.Fatal(err)
		}
		if n != wantRows[cat] {
			t.Errorf("%s rows = %d, want %d", cat, n, wantRows[cat])
		}
	}
	if c.locks.size() != 0 {
		t.Errorf("key locks leaked: %d", c.locks.size())
	}
}

func TestConcurrentSameKeyInsertsOnce(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	docs := &docsByName{docs: map[string]extract.Document{"same.pdf": nativeDoc(2)}}
	c := newCoordinator(t, st, docs)
	src := document.Source{Category: category.Policies, Filename: "same.pdf", Path: "same.pdf"}

	var (
		wg       sync.WaitGroup
		inserted atomic.Int32
		present  atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch c.IngestFile(ctx, src).Outcome {
			case document.OutcomeInserted:
				inserted.Add(1)
			case document.OutcomeAlreadyPresent:
				present.Add(1)
			}
		}()
	}
	wg.Wait()
	if inserted.Load() != 1 || present.Load() != 9 {
		t.Errorf("inserted=%d present=%d, want 1 and 9", inserted.Load(), present.Load())
	}
	if n, _ := st.CountPages(ctx, category.Policies, "same.pdf"); n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}
}

// raceStore reports every document as absent so that the registry constraint
// is the only thing preventing a duplicate.
type raceStore struct{ *store.Store }

func (raceStore) Exists(context.Context, category.Category, string) (bool, error) { return false, nil }

func TestRegistryRejectsDuplicateThatPassedExistenceCheck(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	docs := &docsByName{docs: map[string]extract.Document{"dup.pdf": nativeDoc(2)}}
	c := newCoordinator(t, raceStore{st}, docs)
	src := document.Source{Category: category.Standards, Filename: "dup.pdf", Path: "dup.pdf"}

	if res := c.IngestFile(ctx, src); res.Outcome != document.OutcomeInserted {
		t.Fatalf("first = %s %v", res.Outcome, res.Err)
	}
	if res := c.IngestFile(ctx, src); res.Outcome != document.OutcomeAlreadyPresent {
		t.Fatalf("second = %s %v", res.Outcome, res.Err)
	}
	if n, _ := st.CountPages(ctx, category.Standards, "dup.pdf"); n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}
}

func TestIngestCorpusIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	files := []string{
		"contracts/good.pdf",
		"contracts/panic.pdf",
		"contracts/notes.txt",
		"policies/corrupt.pdf",
		"records/SCAN.PDF",
		"unknown/ignored.pdf",
	}
	for _, f := range files {
		path := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	st := newStore(t)
	docs := &docsByName{docs: map[string]extract.Document{
		"good.pdf": nativeDoc(2),
		"SCAN.PDF": scannedDoc(t),
	}}
	c := newCoordinator(t, st, docs)

	report, err := c.IngestCorpus(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	want := Stats{Scanned: 4, Inserted: 2, Failed: 2}
	got := report.Stats
	got.Duration = 0
	if got != want {
		t.Errorf("stats = %+v, want %+v", got, want)
	}
	failures := report.Failures()
	if len(failures) != 2 {
		t.Fatalf("failures = %+v", failures)
	}
	for _, f := range failures {
		switch f.Filename {
		case "corrupt.pdf":
			if !errors.Is(f.Err, apperrors.ErrDocumentParse) {
				t.Errorf("corrupt.pdf err = %v", f.Err)
			}
		case "panic.pdf":
			if !errors.Is(f.Err, apperrors.ErrInternal) {
				t.Errorf("panic.pdf err = %v", f.Err)
			}
		default:
			t.Errorf("unexpected failure %s", f.Filename)
		}
	}
	if n, _ := st.CountPages(ctx, category.Records, "SCAN.PDF"); n != 1 {
		t.Errorf("scanned rows = %d, want 1", n)
	}

	again, err := c.IngestCorpus(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if again.Stats.AlreadyPresent != 2 || again.Stats.Inserted != 0 {
		t.Errorf("second run stats = %+v", again.Stats)
	}
}

func TestIngestFileTimeout(t *testing.T) {
	st := newStore(t)
	docs := &docsByName{docs: map[string]extract.Document{"slow.pdf": scannedDoc(t)}}
	blocking := ocr.EngineFunc(func(ctx context.Context, _ ocr.Input) (ocr.Result, error) {
		<-ctx.Done()
		return ocr.Result{}, ctx.Err()
	})
	identity := extract.WithNormalizer(func(img image.Image) (image.Image, float64) { return img, 0 })
	c := New(st, extract.New(blocking, identity), config.IngestConfig{Workers: 1, FileTimeout: 50 * time.Millisecond}, WithOpener(docs.open))

	res := c.IngestFile(context.Background(), document.Source{Category: category.Records, Filename: "slow.pdf", Path: "slow.pdf"})
	if res.Outcome != document.OutcomeFailed || !errors.Is(res.Err, apperrors.ErrTimeout) {
		t.Fatalf("result = %s %v, want timeout failure", res.Outcome, res.Err)
	}
	if ok, _ := st.Exists(context.Background(), category.Records, "slow.pdf"); ok {
		t.Error("timed-out document was stored")
	}
}

func TestWatchIngestsNewFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "contracts"), 0o755); err != nil {
		t.Fatal(err)
	}
	st := newStore(t)
	docs := &docsByName{docs: map[string]extract.Document{"new.pdf": nativeDoc(1)}}
	c := newCoordinator(t, st, docs)

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan document.Result, 4)
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, root, func(r document.Result) { results <- r }) }()

	// Give the watcher time to register its directories.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(root, "contracts", "new.pdf"), []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "contracts", "skip.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case res := <-results:
		if res.Filename != "new.pdf" || res.Outcome != document.OutcomeInserted {
			t.Errorf("result = %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not ingest the new file")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}
