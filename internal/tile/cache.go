package tile

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"

	"github.com/couchcryptid/air-risk-grid-service/internal/store"
)

// CachedRenderer wraps a Renderer with an in-memory LRU of encoded PNG
// bytes. Cache keys include the store's snapshot generation, so tiles
// rendered against a replaced grid simply stop being hit and age out.
type CachedRenderer struct {
	inner *Renderer
	store *store.Store
	cache *lruCache
}

// NewCachedRenderer creates a cache decorator around a tile renderer.
func NewCachedRenderer(inner *Renderer, s *store.Store, maxEntries int) *CachedRenderer {
	return &CachedRenderer{inner: inner, store: s, cache: newLRUCache(maxEntries)}
}

// RenderPNG returns the encoded tile, serving from cache when possible.
// Partial tiles rendered under an expired deadline are not cached.
func (c *CachedRenderer) RenderPNG(ctx context.Context, z, x, y int) ([]byte, error) {
	key := fmt.Sprintf("%d:%d/%d/%d", c.store.Generation(), z, x, y)
	if data, ok := c.cache.get(key); ok {
		return data, nil
	}

	img, err := c.inner.Render(ctx, z, x, y)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode tile png: %w", err)
	}
	data := buf.Bytes()

	if ctx.Err() == nil {
		c.cache.put(key, data)
	}
	return data, nil
}

// Preview renders a one-shot overview image of the full grid. Previews are
// not cached; they are a debugging surface, not a map-serving one.
func (c *CachedRenderer) Preview(ctx context.Context, width, height int) ([]byte, error) {
	img, err := c.inner.RenderPreview(ctx, width, height)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode preview png: %w", err)
	}
	return buf.Bytes(), nil
}

// lruCache is a simple thread-safe LRU for encoded tiles.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []byte
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
