// Package pagecache memoizes rendered page rasters keyed by document and
// page, bounded by an LRU capacity.
package pagecache

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"sniprag/internal/raster"
)

const DefaultCapacity = 32

// Key names one page of one version of a document. Version distinguishes
// rasters of different source bytes under the same document id.
type Key struct {
	DocumentID string
	Version    string
	Page       int
}

type Stats struct {
	Entries   int   `json:"entries"`
	Capacity  int   `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

type LoadFunc func(ctx context.Context) (*raster.PageRaster, error)

type entry struct {
	key    Key
	raster *raster.PageRaster
}

// Cache is safe for concurrent use. Evicted rasters are only dropped from the
// cache; callers still holding one keep a valid image.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[Key]*list.Element
	epochs   map[string]uint64
	group    singleflight.Group

	hits, misses, evictions int64
}

func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    map[Key]*list.Element{},
		epochs:   map[string]uint64{},
	}
}

// Get returns the cached raster for key, calling load at most once per key
// across concurrent callers on a miss. The shared load does not inherit the
// cancellation of the caller that started it; a caller whose ctx ends stops
// waiting without failing the others.
func (c *Cache) Get(ctx context.Context, key Key, load LoadFunc) (*raster.PageRaster, error) {
	c.mu.Lock()
	if r, ok := c.lookup(key); ok {
		c.hits++
		c.mu.Unlock()
		return r, nil
	}
	c.misses++
	epoch := c.epochs[key.DocumentID]
	c.mu.Unlock()

	flightKey := fmt.Sprintf("%s\x00%s\x00%d\x00%d", key.DocumentID, key.Version, key.Page, epoch)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		return c.fill(context.WithoutCancel(ctx), key, epoch, load)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*raster.PageRaster), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fill runs inside a flight. A flight for the same key that finished after
// the caller's miss check has already inserted the raster, so it is looked
// up again before loading.
func (c *Cache) fill(ctx context.Context, key Key, epoch uint64, load LoadFunc) (*raster.PageRaster, error) {
	c.mu.Lock()
	r, ok := c.lookup(key)
	c.mu.Unlock()
	if ok {
		return r, nil
	}
	r, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.insert(key, epoch, r)
	return r, nil
}

// lookup must be called with c.mu held.
func (c *Cache) lookup(key Key) (*raster.PageRaster, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).raster, true
}

func (c *Cache) insert(key Key, epoch uint64, r *raster.PageRaster) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epochs[key.DocumentID] != epoch {
		// document was invalidated while this load was in flight
		return
	}
	if el, ok := c.items[key]; ok {
		el.Value.(*entry).raster = r
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&entry{key: key, raster: r})
	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
		c.evictions++
	}
}

// InvalidateDocument drops every raster of documentID and discards loads for
// it that are still in flight.
func (c *Cache) InvalidateDocument(documentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epochs[documentID]++
	for key, el := range c.items {
		if key.DocumentID == documentID {
			c.ll.Remove(el)
			delete(c.items, key)
		}
	}
}

// Retain drops the rasters of documentID whose version differs from version.
func (c *Cache) Retain(documentID, version string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for key, el := range c.items {
		if key.DocumentID == documentID && key.Version != version {
			c.ll.Remove(el)
			delete(c.items, key)
			dropped++
		}
	}
	return dropped
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.ll.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
