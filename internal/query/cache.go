package query

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "dd:search:"

// KV is the key-value store the cache keeps results in. *pkgredis.Client
// implements it.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// Cache stores raw store matches per (keywords, scope). References are
// resolved per request so that newly rendered previews show up at once.
type Cache struct {
	kv      KV
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewCache(kv KV, ttl time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{
		kv:      kv,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *Cache) get(ctx context.Context, key string) ([]store.Match, bool) {
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var matches []store.Match
	if err := json.Unmarshal(data, &matches); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return matches, true
}

func (c *Cache) set(ctx context.Context, key string, matches []store.Match) {
	data, err := json.Marshal(matches)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.kv.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns cached matches or runs compute once for all
// concurrent callers with the same key. The bool reports a cache hit.
func (c *Cache) GetOrCompute(ctx context.Context, keywords string, scope *category.Category, compute func() ([]store.Match, error)) ([]store.Match, bool, error) {
	key := buildKey(keywords, scope)
	if matches, ok := c.get(ctx, key); ok {
		c.recordHit()
		return matches, true, nil
	}
	c.recordMiss()
	val, err, _ := c.group.Do(key, func() (any, error) {
		if matches, ok := c.get(ctx, key); ok {
			return matches, nil
		}
		matches, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, matches)
		return matches, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]store.Match), false, nil
}

// Invalidate drops every cached result and returns the number of keys
// removed.
func (c *Cache) Invalidate(ctx context.Context) (int64, error) {
	n, err := c.kv.DeletePrefix(ctx, keyPrefix)
	if err != nil {
		return 0, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", n)
	return n, nil
}

// Notify invalidates the cache when a document was inserted, so that the
// coordinator can keep local results fresh.
func (c *Cache) Notify(ctx context.Context, res document.Result) error {
	if res.Outcome != document.OutcomeInserted {
		return nil
	}
	_, err := c.Invalidate(ctx)
	return err
}

func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *Cache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// buildKey hashes the keywords and the scope. Only ASCII letters are folded,
// matching the narrowest LOWER of the supported databases, so keywords that
// can return different matches never share an entry. Surrounding spaces are
// part of the substring and are kept.
func buildKey(keywords string, scope *category.Category) string {
	s := "all"
	if scope != nil {
		s = scope.String()
	}
	raw := s + "|" + foldASCII(keywords)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func foldASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}
