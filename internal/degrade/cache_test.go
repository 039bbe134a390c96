package degrade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	cache := NewMemoryCache(time.Hour)
	defer cache.Stop()

	_, ok := cache.Get("missing")
	assert.False(t, ok)

	require.NoError(t, cache.Set("k", []byte("v"), time.Minute))
	got, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache(time.Hour)
	defer cache.Stop()

	require.NoError(t, cache.Set("k", []byte("v"), 10*time.Millisecond))

	time.Sleep(30 * time.Millisecond)
	_, ok := cache.Get("k")
	assert.False(t, ok, "expired entries are invisible before the janitor runs")
}

func TestMemoryCacheOverwrite(t *testing.T) {
	cache := NewMemoryCache(time.Hour)
	defer cache.Stop()

	require.NoError(t, cache.Set("k", []byte("old"), time.Minute))
	require.NoError(t, cache.Set("k", []byte("new"), time.Minute))

	got, _ := cache.Get("k")
	assert.Equal(t, []byte("new"), got)
}
