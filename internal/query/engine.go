// Package query answers keyword searches over the document store and
// returns results grouped per document, each page linked to its evidence.
package query

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/resilience"
)

// Store is the read side of the document store.
type Store interface {
	Search(ctx context.Context, scope *category.Category, substring string) ([]store.Match, error)
	FirstPages(ctx context.Context) ([]store.Entry, error)
}

// PageHit is one matching page.
type PageHit struct {
	PageNumber int       `json:"page_number"`
	Preview    Reference `json:"preview"`
}

// Group collects the matching pages of one document, in page order.
type Group struct {
	Filename string            `json:"filename"`
	Category category.Category `json:"category"`
	Download Reference         `json:"download"`
	Pages    []PageHit         `json:"pages"`
}

// Result is the answer to one search. An empty result is not an error.
// Matches counts page hits across all groups.
type Result struct {
	Keywords string             `json:"keywords"`
	Category *category.Category `json:"category,omitempty"`
	Empty    bool               `json:"empty"`
	Matches  int                `json:"matches"`
	Groups   []Group            `json:"groups"`
	Cached   bool               `json:"cached"`
}

// CatalogEntry is one document in the first-page catalog.
type CatalogEntry struct {
	Filename string            `json:"filename"`
	Category category.Category `json:"category"`
	Download Reference         `json:"download"`
	Preview  Reference         `json:"preview"`
}

// Engine runs searches. The cache is optional.
type Engine struct {
	store    Store
	resolver Resolver
	cache    *Cache
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithCache(c *Cache) Option {
	return func(e *Engine) { e.cache = c }
}

func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(st Store, resolver Resolver, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		resolver: resolver,
		logger:   slog.Default().With("component", "query-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cache returns the engine's cache, or nil.
func (e *Engine) Cache() *Cache { return e.cache }

// Search finds pages whose text or filename contains keywords, ignoring
// case, within scope or across every category when scope is nil. Keywords
// are matched as given, surrounding spaces included. Blank keywords give an
// empty result without querying the store.
func (e *Engine) Search(ctx context.Context, keywords string, scope *category.Category) (*Result, error) {
	start := time.Now()
	kw := keywords
	res := &Result{Keywords: kw, Category: scope, Groups: []Group{}}
	if strings.TrimSpace(kw) == "" {
		res.Empty = true
		e.observe("empty", "none", start)
		return res, nil
	}

	var matches []store.Match
	cacheStatus := "disabled"
	err := resilience.WithTimeout(ctx, e.timeout, "search", func(ctx context.Context) error {
		compute := func() ([]store.Match, error) { return e.store.Search(ctx, scope, kw) }
		if e.cache == nil {
			m, err := compute()
			matches = m
			return err
		}
		m, hit, err := e.cache.GetOrCompute(ctx, kw, scope, compute)
		matches = m
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
		return err
	})
	if err != nil {
		e.observe("error", "none", start)
		logger.FromContext(ctx).Error("search failed", "keywords", kw, "error", err)
		return nil, err
	}

	res.Cached = cacheStatus == "hit"
	res.Groups = e.group(matches)
	for _, g := range res.Groups {
		res.Matches += len(g.Pages)
	}
	res.Empty = len(res.Groups) == 0
	resultType := "match"
	if res.Empty {
		resultType = "empty"
	}
	e.observe(resultType, cacheStatus, start)
	return res, nil
}

// group folds matches into one Group per (filename, category), keeping the
// order in which documents first appear. Matches arrive ordered by page, so
// several image entries on one page collapse into a single hit.
func (e *Engine) group(matches []store.Match) []Group {
	type key struct {
		filename string
		cat      category.Category
	}
	index := make(map[key]int)
	groups := []Group{}
	for _, m := range matches {
		k := key{m.Filename, m.Category}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{
				Filename: m.Filename,
				Category: m.Category,
				Download: e.resolver.Download(m.Category, m.Filename),
			})
		}
		if n := len(groups[i].Pages); n > 0 && groups[i].Pages[n-1].PageNumber == m.PageNumber {
			continue
		}
		groups[i].Pages = append(groups[i].Pages, PageHit{
			PageNumber: m.PageNumber,
			Preview:    e.resolver.Preview(m.Category, m.Filename, m.PageNumber),
		})
	}
	return groups
}

// Catalog lists every stored document with links to its file and first
// page preview.
func (e *Engine) Catalog(ctx context.Context) ([]CatalogEntry, error) {
	entries, err := e.store.FirstPages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CatalogEntry, 0, len(entries))
	for _, en := range entries {
		out = append(out, CatalogEntry{
			Filename: en.Filename,
			Category: en.Category,
			Download: e.resolver.Download(en.Category, en.Filename),
			Preview:  e.resolver.Preview(en.Category, en.Filename, 1),
		})
	}
	return out, nil
}

func (e *Engine) observe(resultType, cacheStatus string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.QueriesTotal.WithLabelValues(resultType).Inc()
	e.metrics.QueryLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
}
