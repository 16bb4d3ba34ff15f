package resilix

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"
)

func TestDeduplicationLeaderAndWaiter(t *testing.T) {
	tracker := NewDeduplicationTracker()

	entry, leader := tracker.GetOrCreateEntry("k")
	if !leader {
		t.Fatal("first caller should be the leader")
	}

	entry2, leader2 := tracker.GetOrCreateEntry("k")
	if leader2 {
		t.Fatal("second caller should join as a waiter")
	}
	if entry2 != entry {
		t.Fatal("waiter should join the leader's entry")
	}

	resp := &http.Response{
		StatusCode: 200,
		Header:     http.Header{"X-Test": []string{"yes"}},
		Body:       io.NopCloser(bytes.NewReader([]byte("payload"))),
	}
	if _, err := tracker.Complete("k", resp, nil); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	got, err := entry2.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if got.StatusCode != 200 || got.Header.Get("X-Test") != "yes" {
		t.Errorf("waiter got status %d header %q", got.StatusCode, got.Header.Get("X-Test"))
	}
	body, _ := io.ReadAll(got.Body)
	if string(body) != "payload" {
		t.Errorf("waiter body = %q, want %q", body, "payload")
	}
}

func TestDeduplicationEntryRemovedOnSettlement(t *testing.T) {
	tracker := NewDeduplicationTracker()

	tracker.GetOrCreateEntry("k")
	resp := &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(nil))}
	tracker.Complete("k", resp, nil)

	// A call arriving after settlement must start fresh, not join a
	// stale entry.
	_, leader := tracker.GetOrCreateEntry("k")
	if !leader {
		t.Error("caller after settlement should be a new leader")
	}
}

func TestDeduplicationErrorOutcomeShared(t *testing.T) {
	tracker := NewDeduplicationTracker()

	entry, _ := tracker.GetOrCreateEntry("k")
	_, waiterLeader := tracker.GetOrCreateEntry("k")
	if waiterLeader {
		t.Fatal("expected waiter")
	}

	cause := errors.New("boom")
	tracker.Complete("k", nil, cause)

	resp, err := entry.Wait(context.Background())
	if resp != nil {
		t.Errorf("expected nil response, got %+v", resp)
	}
	if !errors.Is(err, cause) {
		t.Errorf("waiter error = %v, want %v", err, cause)
	}
}

func TestDeduplicationWaiterCancellation(t *testing.T) {
	tracker := NewDeduplicationTracker()

	entry, _ := tracker.GetOrCreateEntry("k")
	tracker.GetOrCreateEntry("k")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := entry.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait error = %v, want context.Canceled", err)
	}

	// The leader is unaffected: settlement still works and new waiters
	// still receive the outcome.
	done := make(chan struct{})
	go func() {
		resp := &http.Response{StatusCode: 204, Body: io.NopCloser(bytes.NewReader(nil))}
		tracker.Complete("k", resp, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Complete blocked after waiter cancellation")
	}
}

func TestDeduplicationWaitersGetIndependentBodies(t *testing.T) {
	tracker := NewDeduplicationTracker()

	entry, _ := tracker.GetOrCreateEntry("k")
	var waiters []*DeduplicationEntry
	for i := 0; i < 3; i++ {
		e, leader := tracker.GetOrCreateEntry("k")
		if leader {
			t.Fatal("expected waiter")
		}
		waiters = append(waiters, e)
	}
	_ = entry

	resp := &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader([]byte("shared")))}
	tracker.Complete("k", resp, nil)

	for i, w := range waiters {
		got, err := w.Wait(context.Background())
		if err != nil {
			t.Fatalf("waiter %d: %v", i, err)
		}
		body, _ := io.ReadAll(got.Body)
		if string(body) != "shared" {
			t.Errorf("waiter %d body = %q; bodies must be independently readable", i, body)
		}
	}
}

func TestDefaultDeduplicationKeyFuncParamOrderIndependent(t *testing.T) {
	req1, _ := http.NewRequest("GET", "https://api.example.com/items?a=1&b=2&c=3", nil)
	req2, _ := http.NewRequest("GET", "https://api.example.com/items?c=3&a=1&b=2", nil)

	if DefaultDeduplicationKeyFunc(req1) != DefaultDeduplicationKeyFunc(req2) {
		t.Error("keys must be identical regardless of parameter order")
	}
}

func TestDefaultDeduplicationKeyFuncDiscriminates(t *testing.T) {
	base, _ := http.NewRequest("GET", "https://api.example.com/items?a=1", nil)
	tests := []struct {
		name   string
		method string
		url    string
	}{
		{"different method", "HEAD", "https://api.example.com/items?a=1"},
		{"different path", "GET", "https://api.example.com/other?a=1"},
		{"different params", "GET", "https://api.example.com/items?a=2"},
		{"different host", "GET", "https://api2.example.com/items?a=1"},
	}

	baseKey := DefaultDeduplicationKeyFunc(base)
	for _, tt := range tests {
		req, _ := http.NewRequest(tt.method, tt.url, nil)
		if DefaultDeduplicationKeyFunc(req) == baseKey {
			t.Errorf("%s: keys should differ", tt.name)
		}
	}
}

func TestDefaultDeduplicationCondition(t *testing.T) {
	tests := []struct {
		method string
		want   bool
	}{
		{"GET", true},
		{"HEAD", true},
		{"OPTIONS", true},
		{"POST", false},
		{"PUT", false},
		{"PATCH", false},
		{"DELETE", false},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(tt.method, "http://example.com/x", nil)
		if got := DefaultDeduplicationCondition(req); got != tt.want {
			t.Errorf("method %s: condition = %v, want %v", tt.method, got, tt.want)
		}
	}
}

func TestDeduplicationConcurrentJoin(t *testing.T) {
	tracker := NewDeduplicationTracker()

	var wg sync.WaitGroup
	var mu sync.Mutex
	leaders := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, leader := tracker.GetOrCreateEntry("k")
			if leader {
				mu.Lock()
				leaders++
				mu.Unlock()
				resp := &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader([]byte("ok")))}
				tracker.Complete("k", resp, nil)
				return
			}
			if _, err := entry.Wait(context.Background()); err != nil {
				t.Errorf("waiter error: %v", err)
			}
		}()
	}
	wg.Wait()

	if leaders == 0 {
		t.Error("expected at least one leader")
	}
}
