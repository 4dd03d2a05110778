package providers

import (
	"container/list"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/i474232898/sunsavvy/internal/observability"
	"github.com/i474232898/sunsavvy/internal/solar"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache.
type CachedGeocoder struct {
	inner   solar.Geocoder
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner solar.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedGeocoder) Name() string {
	return c.inner.Name()
}

func (c *CachedGeocoder) ForwardGeocode(ctx context.Context, q solar.GeocodeQuery) (solar.GeocodingResult, error) {
	key := "fwd:" + strings.ToLower(q.Text())
	return c.lookup(key, func() (solar.GeocodingResult, error) {
		return c.inner.ForwardGeocode(ctx, q)
	})
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, coords solar.Coordinates) (solar.GeocodingResult, error) {
	key := fmt.Sprintf("rev:%.5f,%.5f", coords.Latitude, coords.Longitude)
	return c.lookup(key, func() (solar.GeocodingResult, error) {
		return c.inner.ReverseGeocode(ctx, coords)
	})
}

func (c *CachedGeocoder) lookup(key string, fetch func() (solar.GeocodingResult, error)) (solar.GeocodingResult, error) {
	if result, ok := c.cache.get(key); ok {
		c.metrics.CacheLookup(true)
		return result, nil
	}
	c.metrics.CacheLookup(false)

	result, err := fetch()
	if err != nil {
		return result, err
	}
	// Only cache non-empty results so "not found" can be retried.
	if !result.Empty() {
		c.cache.put(key, result)
	}
	return result, nil
}

// lruCache is a thread-safe LRU cache for GeocodingResults.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	order      *list.List // front is most recently used
	entries    map[string]*list.Element
}

type cacheEntry struct {
	key   string
	value solar.GeocodingResult
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) (solar.GeocodingResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return solar.GeocodingResult{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

func (c *lruCache) put(key string, value solar.GeocodingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).value = value
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, value: value})
	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
