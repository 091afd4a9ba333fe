// Package cache implements the in-process result cache that short-circuits
// repeat verifications of the same claim.
//
// The cache is a bounded FIFO: when full, the entry inserted earliest is
// evicted regardless of how recently it was read. Entries never expire and
// the cache is not persisted. Only cacheable (non-Error, non-Loading)
// verdicts are stored, and callers always receive a deep copy.
package cache

import (
	"container/list"
	"encoding/hex"
	"sync"

	"github.com/OneOfOne/xxhash"

	"github.com/tbourn/veritas-backend/internal/domain"
)

// DefaultCapacity is the number of entries kept when no capacity is given.
const DefaultCapacity = 10

// ResultCache is safe for concurrent use. Concurrent Put calls for the same
// key resolve as last write wins.
type ResultCache struct {
	mu    sync.Mutex
	cap   int
	order *list.List               // front = oldest insertion
	items map[string]*list.Element // key -> element holding *entry
}

type entry struct {
	key string
	v   domain.Verdict
}

// New returns a cache holding at most capacity entries. A non-positive
// capacity selects DefaultCapacity.
func New(capacity int) *ResultCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ResultCache{
		cap:   capacity,
		order: list.New(),
		items: make(map[string]*list.Element, capacity),
	}
}

// Get returns a copy of the verdict stored under key.
func (c *ResultCache) Get(key string) (domain.Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return domain.Verdict{}, false
	}
	return el.Value.(*entry).v.Clone(), true
}

// Put stores v under key. Non-cacheable verdicts are ignored. Overwriting an
// existing key replaces the value but keeps its original insertion slot.
// Reports whether v was stored.
func (c *ResultCache) Put(key string, v domain.Verdict) bool {
	if !v.Cacheable() {
		return false
	}
	v = v.Clone()
	v.Cached = false

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*entry).v = v
		return true
	}
	for c.order.Len() >= c.cap {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
	}
	c.items[key] = c.order.PushBack(&entry{key: key, v: v})
	return true
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Cap returns the configured capacity.
func (c *ResultCache) Cap() int { return c.cap }

// Keys returns the cached keys from oldest to newest insertion.
func (c *ResultCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).key)
	}
	return out
}

// Purge drops every entry.
func (c *ResultCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element, c.cap)
}

// Key derives the cache key for claim. Text-only claims key on the
// normalized text alone; claims carrying an image or page context get a
// "#<fingerprint>" suffix so they never collide with a text-only check of
// the same wording.
func Key(claim domain.Claim) string {
	base := claim.Key()
	if !claim.IsMultimodal() && !claim.HasPageContext() {
		return base
	}
	h := xxhash.NewS64(0)
	if claim.IsMultimodal() {
		_, _ = h.Write([]byte("img:"))
		_, _ = h.Write(claim.ImageBytes)
	}
	if claim.HasPageContext() {
		_, _ = h.Write([]byte("url:"))
		_, _ = h.Write([]byte(claim.Page.URL))
	}
	return base + "#" + hex.EncodeToString(h.Sum(nil))
}
