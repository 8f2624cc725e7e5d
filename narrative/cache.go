package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bizvista/review-engine/review"
)

// Cache stores accepted narratives by cache key. Entries never expire.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool, error)
	Put(ctx context.Context, r Result) error
}

// =============================================================================
// STORE CACHE - Persistent, backed by review.NarrativeCache
// =============================================================================

// StoreCache persists narratives through the review store. Entries are
// re-validated on read; an entry that no longer fits its schema is a miss.
type StoreCache struct {
	Store review.NarrativeCache
}

func (c StoreCache) Get(ctx context.Context, key string) (Result, bool, error) {
	n, ok, err := c.Store.LookupNarrative(ctx, key)
	if err != nil || !ok {
		return Result{}, false, err
	}
	s, ok := SchemaFor(Kind(n.Kind))
	if !ok {
		return Result{}, false, nil
	}
	doc, err := Validate(s, string(n.Document))
	if err != nil {
		return Result{}, false, nil
	}
	return Result{
		Kind:        s.Kind,
		Document:    doc,
		Source:      SourceGenerated,
		CacheKey:    key,
		GeneratedAt: n.CreatedAt,
	}, true, nil
}

func (c StoreCache) Put(ctx context.Context, r Result) error {
	entry, err := r.CacheEntry()
	if err != nil {
		return err
	}
	return c.Store.SaveNarrative(ctx, entry)
}

// CacheEntry converts a result to its stored form.
func (r Result) CacheEntry() (review.CachedNarrative, error) {
	if r.CacheKey == "" {
		return review.CachedNarrative{}, fmt.Errorf("narrative has no cache key")
	}
	doc, err := json.Marshal(r.Document)
	if err != nil {
		return review.CachedNarrative{}, err
	}
	created := r.GeneratedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return review.CachedNarrative{Key: r.CacheKey, Kind: string(r.Kind), Document: doc, CreatedAt: created}, nil
}

// =============================================================================
// LRU CACHE - In-process front for a persistent cache
// =============================================================================

// LRUCache keeps recently used narratives in memory in front of a backing
// cache. Writes go through to the backing cache.
type LRUCache struct {
	front   *lru.Cache[string, Result]
	backing Cache
}

// NewLRUCache creates an LRU front of the given size. backing may be nil.
func NewLRUCache(size int, backing Cache) (*LRUCache, error) {
	if size <= 0 {
		size = 256
	}
	front, err := lru.New[string, Result](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{front: front, backing: backing}, nil
}

func (c *LRUCache) Get(ctx context.Context, key string) (Result, bool, error) {
	if r, ok := c.front.Get(key); ok {
		return r, true, nil
	}
	if c.backing == nil {
		return Result{}, false, nil
	}
	r, ok, err := c.backing.Get(ctx, key)
	if err != nil || !ok {
		return Result{}, false, err
	}
	c.front.Add(key, r)
	return r, true, nil
}

func (c *LRUCache) Put(ctx context.Context, r Result) error {
	if c.backing != nil {
		if err := c.backing.Put(ctx, r); err != nil {
			return err
		}
	}
	c.front.Add(r.CacheKey, r)
	return nil
}

// Remember adds r to the in-memory front only. Used after r was persisted
// by some other path, e.g. inside a refresh transaction.
func (c *LRUCache) Remember(r Result) {
	c.front.Add(r.CacheKey, r)
}
