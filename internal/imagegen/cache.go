package imagegen

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mikana/dashboard/internal/charts"
)

// Cache keeps rendered charts in memory for a short period. Entries are keyed
// by the content of the chart, so identical charts share one bitmap.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]cacheEntry
	cacheTTL time.Duration
	now      func() time.Time
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewCache creates a chart cache with the specified TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries:  make(map[string]cacheEntry),
		cacheTTL: ttl,
		now:      time.Now,
	}
}

// Key hashes everything that influences the rendered bitmap.
func Key(chart charts.LineChart, opts Options) string {
	opts = opts.withDefaults()
	b, _ := json.Marshal(struct {
		Chart  charts.LineChart
		Colors [][4]uint8
		Opts   Options
	}{chart, seriesColors(chart), opts})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Series.Color is not serialized with the chart.
func seriesColors(chart charts.LineChart) [][4]uint8 {
	out := make([][4]uint8, len(chart.Series))
	for i, s := range chart.Series {
		out[i] = [4]uint8{s.Color.R, s.Color.G, s.Color.B, s.Color.A}
	}
	return out
}

// Get returns the cached bitmap if still valid.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.data, true
}

// Set stores a bitmap and drops expired entries.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{data: data, expiresAt: now.Add(c.cacheTTL)}
}

// Render returns the cached bitmap for chart or renders and stores it.
func (c *Cache) Render(chart charts.LineChart, opts Options) ([]byte, error) {
	key := Key(chart, opts)
	if data, ok := c.Get(key); ok {
		return data, nil
	}
	data, err := RenderLineChart(chart, opts)
	if err != nil {
		return nil, fmt.Errorf("render %q: %w", chart.Title, err)
	}
	c.Set(key, data)
	return data, nil
}
