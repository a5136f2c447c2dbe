package cache

import (
	"strings"
	"sync"
	"time"
)

type item struct {
	value     interface{}
	expiresAt time.Time
}

func (it *item) expired() bool {
	return time.Now().After(it.expiresAt)
}

// Cache is a thread-safe in-memory cache with TTL support. It backs the
// read paths that would otherwise hit the durable store on every request.
type Cache struct {
	items      map[string]*item
	mu         sync.RWMutex
	defaultTTL time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// New creates a cache with the given default TTL and starts a background
// sweep of expired entries.
func New(defaultTTL time.Duration) *Cache {
	c := &Cache{
		items:      make(map[string]*item),
		defaultTTL: defaultTTL,
		stop:       make(chan struct{}),
	}
	go c.sweep(defaultTTL / 2)
	return c
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || it.expired() {
		return nil, false
	}
	return it.value, true
}

func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &item{value: value, expiresAt: time.Now().Add(ttl)}
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// InvalidatePrefix removes every entry whose key starts with prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
}

func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stop terminates the background sweep goroutine.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) sweep(interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			for key, it := range c.items {
				if it.expired() {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}
