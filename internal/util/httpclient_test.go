package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseCache_GetSetExpiry(t *testing.T) {
	t.Parallel()

	cache := NewResponseCache(time.Minute, 10)
	defer cache.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set("a", []byte("payload"))
	got, ok := cache.Get("a")
	require.True(t, ok)
	assert.Equal(t, "payload", string(got))

	now = now.Add(2 * time.Minute)
	_, ok = cache.Get("a")
	assert.False(t, ok, "entry should be expired")

	cache.cleanup()
	assert.Equal(t, 0, cache.Len())
}

func TestResponseCache_EvictsOldestWhenFull(t *testing.T) {
	t.Parallel()

	cache := NewResponseCache(time.Hour, 2)
	defer cache.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set("first", []byte("1"))
	now = now.Add(time.Second)
	cache.Set("second", []byte("2"))
	now = now.Add(time.Second)
	cache.Set("third", []byte("3"))

	_, ok := cache.Get("first")
	assert.False(t, ok)
	_, ok = cache.Get("second")
	assert.True(t, ok)
	_, ok = cache.Get("third")
	assert.True(t, ok)

	// overwriting an existing key must not evict anything
	cache.Set("third", []byte("3b"))
	assert.Equal(t, 2, cache.Len())
}

func TestSharedClientsAreSingletons(t *testing.T) {
	t.Parallel()

	assert.Same(t, GetSharedClient(), GetSharedClient())
	assert.Same(t, GetFastClient(), GetFastClient())
	assert.NotSame(t, GetSharedClient(), GetFastClient())
}
