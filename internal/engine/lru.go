package engine

import (
	"container/list"
	"sync"

	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/patterns"
)

// bundleKey identifies a frame by its last bar. The bar count is part of the
// key so frames fetched with different history limits never share a bundle.
type bundleKey struct {
	symbol  string
	tf      market.Timeframe
	lastBar int64
	bars    int
}

func keyOf(f *market.Frame) bundleKey {
	return bundleKey{symbol: f.Symbol, tf: f.Timeframe, lastBar: f.LastBarTime().UnixNano(), bars: f.Len()}
}

// bundles is the indicator and pattern output for one frame. Readers share it
// and must not modify it.
type bundles struct {
	ind *indicators.Bundle
	pat *patterns.Bundle
}

type lruEntry struct {
	key   bundleKey
	value *bundles
}

// bundleCache is a fixed-size LRU of computed bundles
type bundleCache struct {
	mu    sync.Mutex
	size  int
	ll    *list.List
	items map[bundleKey]*list.Element
}

func newBundleCache(size int) *bundleCache {
	if size <= 0 {
		size = 1
	}
	return &bundleCache{size: size, ll: list.New(), items: make(map[bundleKey]*list.Element, size)}
}

func (c *bundleCache) get(k bundleKey) (*bundles, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[k]; ok {
		c.ll.MoveToFront(el)
		return el.Value.(*lruEntry).value, true
	}
	return nil, false
}

func (c *bundleCache) add(k bundleKey, v *bundles) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[k]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*lruEntry).value = v
		return
	}
	c.items[k] = c.ll.PushFront(&lruEntry{key: k, value: v})
	for c.ll.Len() > c.size {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*lruEntry).key)
	}
}

func (c *bundleCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
