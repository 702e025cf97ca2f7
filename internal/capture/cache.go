package capture

import (
	"sync"
	"time"

	"github.com/nadileaf/sourcing-agent/internal/types"
)

// HeaderCache stores request headers keyed by network request id so the
// replay engine can reconstruct a request after the page has moved on.
// Entries are evicted by a background loop once they exceed the TTL.
type HeaderCache struct {
	ttl     time.Duration
	entries map[string]*types.CapturedHeaders
	mu      sync.RWMutex

	done chan struct{}
}

// NewHeaderCache creates a cache and starts its eviction loop. ttl <= 0
// selects the 5 minute default.
func NewHeaderCache(ttl time.Duration) *HeaderCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &HeaderCache{
		ttl:     ttl,
		entries: make(map[string]*types.CapturedHeaders),
		done:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Close stops the eviction loop.
func (c *HeaderCache) Close() {
	close(c.done)
}

// Put records the request line and any headers known at send time.
func (c *HeaderCache) Put(requestID, url, method string, headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[requestID]
	if !ok {
		entry = &types.CapturedHeaders{
			Headers:   make(map[string]string),
			Timestamp: time.Now(),
		}
		c.entries[requestID] = entry
	}
	entry.URL = url
	entry.Method = method
	for k, v := range headers {
		entry.Headers[k] = v
	}
}

// Merge folds extra headers into an entry. The extra-info event can arrive
// before the request event, so a missing entry is created rather than
// dropped.
func (c *HeaderCache) Merge(requestID string, headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[requestID]
	if !ok {
		entry = &types.CapturedHeaders{
			Headers:   make(map[string]string),
			Timestamp: time.Now(),
		}
		c.entries[requestID] = entry
	}
	for k, v := range headers {
		entry.Headers[k] = v
	}
}

// Get returns a copy of the cached headers for a request id. Consumers
// must tolerate a miss and degrade to empty headers.
func (c *HeaderCache) Get(requestID string) (types.CapturedHeaders, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[requestID]
	if !ok {
		return types.CapturedHeaders{}, false
	}
	out := *entry
	out.Headers = make(map[string]string, len(entry.Headers))
	for k, v := range entry.Headers {
		out.Headers[k] = v
	}
	return out, true
}

// Delete removes an entry once its replay completed.
func (c *HeaderCache) Delete(requestID string) {
	c.mu.Lock()
	delete(c.entries, requestID)
	c.mu.Unlock()
}

// Len returns the number of live entries.
func (c *HeaderCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *HeaderCache) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictStale()
		case <-c.done:
			return
		}
	}
}

func (c *HeaderCache) evictStale() {
	threshold := time.Now().Add(-c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, entry := range c.entries {
		if entry.Timestamp.Before(threshold) {
			delete(c.entries, id)
		}
	}
}
