package render

import (
	"bytes"
	"sync"
	"time"
)

const (
	DefaultMaxPreviews = 32
	PreviewTTL         = 5 * time.Minute
)

// PreviewKey identifies one rendered preview. Sequence is the store
// sequence at render time, so any present or retract changes the key.
type PreviewKey struct {
	Sequence uint64
	Plane    Plane
	Size     int
}

type cachedPreview struct {
	png        []byte
	renderedAt time.Time
}

// PreviewCache keeps encoded preview PNGs with LRU eviction.
type PreviewCache struct {
	mu      sync.Mutex
	entries map[PreviewKey]*cachedPreview
	order   []PreviewKey // LRU order (oldest first)
	maxSize int

	hits   uint64
	misses uint64
}

// NewPreviewCache creates a cache holding at most maxSize previews.
func NewPreviewCache(maxSize int) *PreviewCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxPreviews
	}
	return &PreviewCache{
		entries: make(map[PreviewKey]*cachedPreview),
		order:   make([]PreviewKey, 0, maxSize),
		maxSize: maxSize,
	}
}

// Get returns a cached PNG or nil.
func (c *PreviewCache) Get(key PreviewKey) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil
	}
	if time.Since(cached.renderedAt) > PreviewTTL {
		c.remove(key)
		c.misses++
		return nil
	}
	c.touch(key)
	c.hits++
	return cached.png
}

// Render returns the PNG for meshes under key, drawing and encoding it on a
// miss.
func (c *PreviewCache) Render(key PreviewKey, meshes []*Mesh) ([]byte, error) {
	if png := c.Get(key); png != nil {
		return png, nil
	}

	var buf bytes.Buffer
	opts := DefaultPreviewOptions()
	opts.Plane = key.Plane
	if key.Size > 0 {
		opts.Size = key.Size
	}
	if err := WritePreviewPNG(&buf, meshes, opts); err != nil {
		return nil, err
	}

	c.put(key, buf.Bytes())
	return buf.Bytes(), nil
}

func (c *PreviewCache) put(key PreviewKey, png []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = &cachedPreview{png: png, renderedAt: time.Now()}
		c.touch(key)
		return
	}
	if len(c.entries) >= c.maxSize {
		c.evict()
	}
	c.entries[key] = &cachedPreview{png: png, renderedAt: time.Now()}
	c.order = append(c.order, key)
}

// touch moves key to the back of the LRU order. Caller holds c.mu.
func (c *PreviewCache) touch(key PreviewKey) {
	for i, k := range c.order {
		if k == key {
			c.order = append(append(c.order[:i:i], c.order[i+1:]...), key)
			return
		}
	}
}

// remove drops key. Caller holds c.mu.
func (c *PreviewCache) remove(key PreviewKey) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// evict removes the least recently used preview
func (c *PreviewCache) evict() {
	if len(c.order) == 0 {
		return
	}

	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

// PreviewCacheStats reports cache effectiveness.
type PreviewCacheStats struct {
	Size   int    `json:"size"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Stats returns the current cache size and hit counts.
func (c *PreviewCache) Stats() PreviewCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PreviewCacheStats{Size: len(c.entries), Hits: c.hits, Misses: c.misses}
}
