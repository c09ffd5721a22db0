package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/zpkg/registry/catalog"
)

// memoryCache is an in-memory Cache with a controllable clock.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	age     int64
	putErr  error
}

type cacheEntry struct {
	payload string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]cacheEntry{}}
}

func (m *memoryCache) GetDiscoveryCache(ctx context.Context, key string) (string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return "", 0, catalog.ErrNotFound
	}
	return entry.payload, m.age, nil
}

func (m *memoryCache) PutDiscoveryCache(ctx context.Context, key, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.putErr != nil {
		return m.putErr
	}
	m.entries[key] = cacheEntry{payload: payload}
	return nil
}

func TestSearchFetchesAndCaches(t *testing.T) {
	var calls int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "widgets" {
			t.Errorf("unexpected query %q", got)
		}
		w.Write([]byte(`[{"name":"widget","stars":10}]`))
	}))
	defer upstream.Close()

	cache := newMemoryCache()
	client := New(upstream.URL, cache)

	items := client.Search(context.Background(), "widgets", 0)
	if len(items) != 1 || items[0].Name != "widget" {
		t.Fatalf("unexpected items %+v", items)
	}

	// Second identical query is served from the fresh cache.
	items = client.Search(context.Background(), "widgets", 0)
	if len(items) != 1 {
		t.Fatalf("unexpected items %+v", items)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 upstream call, got %d", n)
	}
}

func TestEnvelopeResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"name":"one"},{"name":"two"}]}`))
	}))
	defer upstream.Close()

	client := New(upstream.URL, newMemoryCache())

	items := client.Trending(context.Background(), "", 0)
	if len(items) != 2 || items[0].Name != "one" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestStaleServedOnUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer upstream.Close()

	cache := newMemoryCache()
	client := New(upstream.URL, cache)

	// Seed the cache, then age it past the TTL.
	key := "browse?category=net&limit=25"
	if err := cache.PutDiscoveryCache(context.Background(), key, `[{"name":"stale-but-present"}]`); err != nil {
		t.Fatal(err)
	}
	cache.age = 7200

	items := client.Browse(context.Background(), "net", 0)
	if len(items) != 1 || items[0].Name != "stale-but-present" {
		t.Fatalf("expected the stale cached payload, got %+v", items)
	}
}

func TestColdMissFailureYieldsEmpty(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	client := New(upstream.URL, newMemoryCache())

	items := client.Search(context.Background(), "anything", 0)
	if items == nil {
		t.Fatal("expected an empty slice, not nil")
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %+v", items)
	}
}

func TestDisabledClientServesCacheOnly(t *testing.T) {
	cache := newMemoryCache()
	client := New("", cache)

	if client.Enabled() {
		t.Fatal("client with no base URL should be disabled")
	}

	items := client.Search(context.Background(), "widgets", 0)
	if len(items) != 0 {
		t.Fatalf("expected no items, got %+v", items)
	}

	// Cached entries are still served even when stale.
	key := "search?limit=25&q=widgets"
	if err := cache.PutDiscoveryCache(context.Background(), key, `[{"name":"cached"}]`); err != nil {
		t.Fatal(err)
	}
	cache.age = 7200

	items = client.Search(context.Background(), "widgets", 0)
	if len(items) != 1 || items[0].Name != "cached" {
		t.Fatalf("expected the cached payload, got %+v", items)
	}
}

func TestMalformedUpstreamNotCached(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer upstream.Close()

	cache := newMemoryCache()
	client := New(upstream.URL, cache)

	items := client.Search(context.Background(), "widgets", 0)
	if len(items) != 0 {
		t.Fatalf("expected no items, got %+v", items)
	}
	if len(cache.entries) != 0 {
		t.Errorf("malformed payload was cached: %v", cache.entries)
	}
}

func TestLimitClamping(t *testing.T) {
	seen := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.URL.Query().Get("limit")
		w.Write([]byte(`[]`))
	}))
	defer upstream.Close()

	client := New(upstream.URL, newMemoryCache())

	client.Search(context.Background(), "a", 500)
	if got := <-seen; got != "100" {
		t.Errorf("limit 500 should clamp to 100, sent %q", got)
	}

	client.Search(context.Background(), "b", -3)
	if got := <-seen; got != "25" {
		t.Errorf("negative limit should fall back to 25, sent %q", got)
	}
}
