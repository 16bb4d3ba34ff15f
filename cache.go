package resilix

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// CacheEntry is a buffered successful response that can be replayed to any
// number of callers.
type CacheEntry struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	ExpiresAt  time.Time
}

// Cache stores settled read responses for reuse within a TTL.
type Cache interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, entry *CacheEntry, ttl time.Duration)
	Delete(key string)
	Clear()
}

// InMemoryCache is a mutex-guarded map cache with lazy expiry.
type InMemoryCache struct {
	mu    sync.Mutex
	store map[string]*CacheEntry
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{store: make(map[string]*CacheEntry)}
}

// Get retrieves an unexpired entry, dropping it if expired.
func (c *InMemoryCache) Get(key string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.store[key]
	if !exists {
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(c.store, key)
		return nil, false
	}
	return entry, true
}

// Set stores an entry with the given TTL.
func (c *InMemoryCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.ExpiresAt = time.Now().Add(ttl)
	c.store[key] = entry
}

// Delete removes an entry.
func (c *InMemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
}

// Clear removes all entries.
func (c *InMemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]*CacheEntry)
}

// Len returns the current number of entries, expired ones included.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store)
}

// CacheCondition decides whether a request's response may be cached.
type CacheCondition func(req *http.Request) bool

// DefaultCacheCondition caches GET responses only.
func DefaultCacheCondition(req *http.Request) bool {
	return req.Method == http.MethodGet
}

// DefaultCacheKeyFunc keys cached responses by method and full URL.
func DefaultCacheKeyFunc(req *http.Request) string {
	return fmt.Sprintf("%s:%s", req.Method, req.URL.String())
}

// newCacheEntry buffers a response body into a replayable entry, restoring
// the body on the original response for the caller.
func newCacheEntry(resp *http.Response) *CacheEntry {
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &CacheEntry{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}
}

// newResponseFromCache replays a cached entry as a fresh response.
func newResponseFromCache(entry *CacheEntry) *http.Response {
	return &http.Response{
		StatusCode: entry.StatusCode,
		Header:     entry.Header.Clone(),
		Body:       io.NopCloser(bytes.NewReader(entry.Body)),
	}
}
