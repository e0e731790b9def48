package query

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, filepath.Join(t.TempDir(), "q.db"))
	if err != nil {
		t.Fatal(err)
	}
	s := store.New(db)
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	docs := []struct {
		c     category.Category
		name  string
		texts []string
	}{
		{category.Contracts, "lease.pdf", []string{"Term of lease", "Indemnification by tenant", "Signatures"}},
		{category.Policies, "travel.pdf", []string{"Per diem", "Receipts required"}},
		{category.Standards, "iso.pdf", []string{"Quality management"}},
	}
	for _, d := range docs {
		pages := make([]document.Page, len(d.texts))
		for i, text := range d.texts {
			pages[i] = document.Page{Number: i + 1, Text: text, Source: document.SourceNative}
		}
		if _, err := s.InsertDocument(ctx, d.c, d.name, document.VerdictNative, pages); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

// fsLayout creates the corpus file for lease.pdf and a preview for its
// second page only.
func fsLayout(t *testing.T) FSResolver {
	t.Helper()
	r := FSResolver{CorpusRoot: t.TempDir(), PreviewRoot: t.TempDir()}
	write := func(path string) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(filepath.Join(r.CorpusRoot, "contracts", "lease.pdf"))
	write(filepath.Join(r.PreviewRoot, "contracts", "lease", "2.png"))
	return r
}

func TestSearchSingleKeywordSinglePage(t *testing.T) {
	e := New(seededStore(t), fsLayout(t))
	res, err := e.Search(context.Background(), "indemnification", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Empty || len(res.Groups) != 1 {
		t.Fatalf("result = %+v", res)
	}
	g := res.Groups[0]
	if g.Filename != "lease.pdf" || g.Category != category.Contracts || len(g.Pages) != 1 || g.Pages[0].PageNumber != 2 {
		t.Errorf("group = %+v", g)
	}
	if !g.Download.Available || !strings.HasSuffix(g.Download.Path, filepath.Join("contracts", "lease.pdf")) {
		t.Errorf("download = %+v", g.Download)
	}
	if !g.Pages[0].Preview.Available {
		t.Errorf("preview = %+v", g.Pages[0].Preview)
	}
}

func TestSearchGroupsAndDegradesReferences(t *testing.T) {
	e := New(seededStore(t), fsLayout(t))
	// Every stored native page carries the "[PDF]" provenance suffix.
	res, err := e.Search(context.Background(), "[pdf]", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Matches != 6 || len(res.Groups) != 3 {
		t.Fatalf("matches=%d groups=%d", res.Matches, len(res.Groups))
	}
	order := []string{res.Groups[0].Filename, res.Groups[1].Filename, res.Groups[2].Filename}
	if strings.Join(order, ",") != "lease.pdf,travel.pdf,iso.pdf" {
		t.Errorf("group order = %v", order)
	}
	lease := res.Groups[0]
	if len(lease.Pages) != 3 {
		t.Fatalf("lease pages = %+v", lease.Pages)
	}
	if lease.Pages[0].Preview.Status != StatusNotAvailable || !lease.Pages[1].Preview.Available {
		t.Errorf("previews = %+v", lease.Pages)
	}
	travel := res.Groups[1]
	if travel.Download.Available || travel.Download.Status != StatusFileNotFound {
		t.Errorf("travel download = %+v", travel.Download)
	}
}

func TestSearchScoped(t *testing.T) {
	e := New(seededStore(t), fsLayout(t))
	scope := category.Policies
	res, err := e.Search(context.Background(), "e", &scope)
	if err != nil {
		t.Fatal(err)
	}
	for _, g := range res.Groups {
		if g.Category != category.Policies {
			t.Errorf("group outside scope: %+v", g)
		}
	}
	if len(res.Groups) != 1 {
		t.Errorf("groups = %d, want 1", len(res.Groups))
	}
}

type countingStore struct {
	Store
	calls atomic.Int32
}

func (s *countingStore) Search(ctx context.Context, scope *category.Category, substring string) ([]store.Match, error) {
	s.calls.Add(1)
	return s.Store.Search(ctx, scope, substring)
}

func TestEmptyAndNonMatchingKeywords(t *testing.T) {
	st := &countingStore{Store: seededStore(t)}
	m := metrics.NewUnregistered()
	e := New(st, fsLayout(t), WithMetrics(m))
	for _, kw := range []string{"", "   "} {
		res, err := e.Search(context.Background(), kw, nil)
		if err != nil || !res.Empty || len(res.Groups) != 0 {
			t.Errorf("Search(%q) = %+v, %v", kw, res, err)
		}
	}
	if st.calls.Load() != 0 {
		t.Errorf("blank keywords reached the store %d times", st.calls.Load())
	}
	res, err := e.Search(context.Background(), "no such phrase", nil)
	if err != nil || !res.Empty || res.Groups == nil {
		t.Errorf("non-matching = %+v, %v", res, err)
	}
	if v := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("empty")); v != 3 {
		t.Errorf("empty counter = %v, want 3", v)
	}
}

func TestCatalog(t *testing.T) {
	e := New(seededStore(t), fsLayout(t))
	entries, err := e.Catalog(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Filename != "lease.pdf" || !entries[0].Download.Available || entries[0].Preview.Available {
		t.Errorf("first entry = %+v", entries[0])
	}
}

// memKV is an in-process KV with Redis miss semantics.
type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func TestCachedSearch(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{Store: seededStore(t)}
	cache := NewCache(newMemKV(), time.Minute, nil)
	e := New(st, fsLayout(t), WithCache(cache))

	first, err := e.Search(ctx, "Lease", nil)
	if err != nil || first.Cached {
		t.Fatalf("first = %+v, %v", first, err)
	}
	second, err := e.Search(ctx, "LEASE", nil)
	if err != nil || !second.Cached {
		t.Fatalf("second = %+v, %v", second, err)
	}
	if st.calls.Load() != 1 {
		t.Errorf("store calls = %d, want 1", st.calls.Load())
	}
	if len(second.Groups) != len(first.Groups) || second.Groups[0].Category != category.Contracts {
		t.Errorf("cached groups differ: %+v", second.Groups)
	}

	scope := category.Policies
	if _, err := e.Search(ctx, "lease", &scope); err != nil {
		t.Fatal(err)
	}
	if st.calls.Load() != 2 {
		t.Error("scope must be part of the cache key")
	}

	if err := cache.Notify(ctx, document.Result{Outcome: document.OutcomeInserted}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Search(ctx, "lease", nil); err != nil {
		t.Fatal(err)
	}
	if st.calls.Load() != 3 {
		t.Error("invalidation did not drop cached results")
	}
	if hits, misses := cache.Stats(); hits != 1 || misses != 3 {
		t.Errorf("stats = %d hits, %d misses", hits, misses)
	}
}

func TestSearchKeepsSurroundingSpaces(t *testing.T) {
	ctx := context.Background()
	st := &recordingStore{Store: seededStore(t)}
	cache := NewCache(newMemKV(), time.Minute, nil)
	e := New(st, fsLayout(t), WithCache(cache))

	res, err := e.Search(ctx, " lease", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Keywords != " lease" || st.last != " lease" {
		t.Errorf("keywords = %q, store saw %q", res.Keywords, st.last)
	}
	// "Term of lease" is the only text with a space before "lease".
	if res.Matches != 1 || res.Groups[0].Pages[0].PageNumber != 1 {
		t.Errorf("result = %+v", res)
	}

	trimmed, err := e.Search(ctx, "lease", nil)
	if err != nil {
		t.Fatal(err)
	}
	if trimmed.Cached || trimmed.Matches != 3 {
		t.Errorf("trimmed search reused the spaced entry: %+v", trimmed)
	}
}

type recordingStore struct {
	Store
	last string
}

func (s *recordingStore) Search(ctx context.Context, scope *category.Category, substring string) ([]store.Match, error) {
	s.last = substring
	return s.Store.Search(ctx, scope, substring)
}

func TestBuildKeyFoldsASCIIOnly(t *testing.T) {
	tests := []struct {
		a, b string
		same bool
	}{
		{"Lease", "lease", true},
		{"INDEMNITY", "indemnity", true},
		{"ÉTUDE", "étude", false},
		{"lease", " lease", false},
	}
	for _, tt := range tests {
		if got := buildKey(tt.a, nil) == buildKey(tt.b, nil); got != tt.same {
			t.Errorf("buildKey(%q) == buildKey(%q) is %v, want %v", tt.a, tt.b, got, tt.same)
		}
	}
}

func TestSearchCollapsesSharedPages(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)
	scanned := []document.Page{
		{Number: 1, Text: "invoice total", Source: document.SourceImage},
		{Number: 1, Text: "invoice stamp", Source: document.SourceImage},
		{Number: 2, Text: "invoice notes", Source: document.SourceImage},
	}
	if _, err := s.InsertDocument(ctx, category.Records, "scan.pdf", document.VerdictScanned, scanned); err != nil {
		t.Fatal(err)
	}
	res, err := New(s, fsLayout(t)).Search(ctx, "invoice", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Groups) != 1 || res.Matches != 2 {
		t.Fatalf("result = %+v", res)
	}
	pages := res.Groups[0].Pages
	if len(pages) != 2 || pages[0].PageNumber != 1 || pages[1].PageNumber != 2 {
		t.Errorf("pages = %+v", pages)
	}
}

type failingStore struct{ Store }

func (failingStore) Search(context.Context, *category.Category, string) ([]store.Match, error) {
	return nil, errors.New("disk on fire")
}

func TestSearchStoreError(t *testing.T) {
	e := New(failingStore{}, FSResolver{})
	if _, err := e.Search(context.Background(), "x", nil); err == nil {
		t.Error("expected error")
	}
}
