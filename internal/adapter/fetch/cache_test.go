package fetch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/open511-exchange/internal/observability"
)

// --- mock for cache tests ---

type countingFetcher struct {
	calls int
	body  []byte
	err   error
}

func (m *countingFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	m.calls++
	return m.body, m.err
}

// --- CachedFetcher tests ---

func TestCachedFetcher_Hit(t *testing.T) {
	inner := &countingFetcher{body: []byte(`<jurisdiction/>`)}
	cached := NewCachedFetcher(inner, 10, observability.NewMetricsForTesting())

	b1, err := cached.Fetch(context.Background(), "http://other.example/j/a")
	require.NoError(t, err)
	b2, err := cached.Fetch(context.Background(), "http://other.example/j/a")
	require.NoError(t, err)

	assert.Equal(t, b1, b2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
}

func TestCachedFetcher_DifferentURLsMiss(t *testing.T) {
	inner := &countingFetcher{body: []byte(`<jurisdiction/>`)}
	cached := NewCachedFetcher(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.Fetch(context.Background(), "http://other.example/j/a")
	_, _ = cached.Fetch(context.Background(), "http://other.example/j/b")

	assert.Equal(t, 2, inner.calls)
}

func TestCachedFetcher_ErrorsNotCached(t *testing.T) {
	inner := &countingFetcher{err: errors.New("boom")}
	cached := NewCachedFetcher(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.Fetch(context.Background(), "http://other.example/j/a")
	require.Error(t, err)
	_, err = cached.Fetch(context.Background(), "http://other.example/j/a")
	require.Error(t, err)

	assert.Equal(t, 2, inner.calls, "failures are retried, not served from cache")
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	_, ok := c.get("a")
	assert.False(t, ok)

	c.put("a", []byte("1"))
	v, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", []byte("1"))
	c.put("b", []byte("2"))
	c.get("a") // freshen a so b is the eviction candidate
	c.put("c", []byte("3"))

	_, ok := c.get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = c.get("a")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestLRUCache_UpdateExistingKey(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", []byte("1"))
	c.put("a", []byte("2"))

	v, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("2"), v)
	assert.Len(t, c.entries, 1)
}
