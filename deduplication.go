package resilix

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
)

// DeduplicationEntry represents one in-flight request shared between a
// leader and any number of waiters. Waiters never issue their own
// transport call; they receive the leader's settled outcome.
type DeduplicationEntry struct {
	mu     sync.Mutex
	status int
	header http.Header
	body   []byte
	err    error
	done   chan struct{}
}

// DeduplicationTracker tracks in-flight idempotent requests so concurrent
// identical reads share one underlying call. Safe for concurrent use; the
// create-or-join step is atomic under the tracker mutex.
type DeduplicationTracker struct {
	mu      sync.Mutex
	entries map[string]*DeduplicationEntry
}

// NewDeduplicationTracker returns an in-memory de-duplication tracker.
func NewDeduplicationTracker() *DeduplicationTracker {
	return &DeduplicationTracker{
		entries: make(map[string]*DeduplicationEntry),
	}
}

// GetOrCreateEntry returns the entry for key. The boolean is true when the
// caller created the entry and must issue the real transport call (the
// leader); false when it joined an existing entry as a waiter.
func (dt *DeduplicationTracker) GetOrCreateEntry(key string) (*DeduplicationEntry, bool) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	if entry, exists := dt.entries[key]; exists {
		return entry, false
	}

	entry := &DeduplicationEntry{done: make(chan struct{})}
	dt.entries[key] = entry
	return entry, true
}

// Complete settles the entry for key with the leader's outcome and releases
// every waiter. The map entry is removed before waiters are woken, so a new
// call for the same key issued after settlement always starts a fresh
// entry instead of joining a stale one.
//
// The response body is buffered so that the leader and each waiter get an
// independent reader over identical bytes; the returned response is the
// leader's replayable copy.
func (dt *DeduplicationTracker) Complete(key string, resp *http.Response, err error) (*http.Response, error) {
	dt.mu.Lock()
	entry, exists := dt.entries[key]
	delete(dt.entries, key)
	dt.mu.Unlock()

	if !exists {
		return resp, err
	}

	entry.mu.Lock()
	if resp != nil {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil && err == nil {
			err = readErr
		}
		entry.status = resp.StatusCode
		entry.header = resp.Header.Clone()
		entry.body = body
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}
	entry.err = err
	close(entry.done)
	entry.mu.Unlock()

	return resp, err
}

// Wait blocks until the leader settles or ctx is cancelled. Cancellation
// abandons only this waiter; the leader and other waiters are unaffected.
func (entry *DeduplicationEntry) Wait(ctx context.Context) (*http.Response, error) {
	select {
	case <-entry.done:
		return entry.outcome()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// outcome builds this waiter's copy of the settled result.
func (entry *DeduplicationEntry) outcome() (*http.Response, error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.err != nil && entry.header == nil && entry.body == nil && entry.status == 0 {
		return nil, entry.err
	}
	resp := &http.Response{
		StatusCode: entry.status,
		Header:     entry.header.Clone(),
		Body:       io.NopCloser(bytes.NewReader(entry.body)),
	}
	return resp, entry.err
}

// DeduplicationKeyFunc builds a key identifying logically identical
// requests.
type DeduplicationKeyFunc func(*http.Request) string

// DefaultDeduplicationKeyFunc keys a request by method, normalized URL and
// query parameters sorted by name, so two identical requests whose
// parameters were inserted in different order de-duplicate together.
func DefaultDeduplicationKeyFunc(req *http.Request) string {
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte(' ')
	if req.URL != nil {
		b.WriteString(req.URL.Scheme)
		b.WriteString("://")
		b.WriteString(req.URL.Host)
		b.WriteString(req.URL.Path)
		// Values.Encode sorts by parameter name.
		if query := req.URL.Query().Encode(); query != "" {
			b.WriteByte('?')
			b.WriteString(query)
		}
	}
	return b.String()
}

// DeduplicationCondition decides whether a request may be de-duplicated.
type DeduplicationCondition func(req *http.Request) bool

// DefaultDeduplicationCondition enables de-duplication for idempotent read
// methods only; writes always run their own transport call.
func DefaultDeduplicationCondition(req *http.Request) bool {
	return req.Method == http.MethodGet || req.Method == http.MethodHead || req.Method == http.MethodOptions
}
