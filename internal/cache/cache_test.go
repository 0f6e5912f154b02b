// SPDX-License-Identifier: MIT

package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheBasics(t *testing.T) {
	c := NewMemory()

	_, ok := c.Get("anon:learner-1")
	assert.False(t, ok)

	c.Set("anon:learner-1", "ab12cd34ef56ab78", 0)
	got, ok := c.Get("anon:learner-1")
	require.True(t, ok)
	assert.Equal(t, "ab12cd34ef56ab78", got)

	c.Delete("anon:learner-1")
	_, ok = c.Get("anon:learner-1")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemory()
	c.Set("k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestRedisCache(t *testing.T) {
	srv := miniredis.RunT(t)

	c, err := NewRedis(RedisConfig{Addr: srv.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	c.Set("anon:learner-9", "00ff00ff00ff00ff", time.Minute)
	got, ok := c.Get("anon:learner-9")
	require.True(t, ok)
	assert.Equal(t, "00ff00ff00ff00ff", got)

	// Expiry honoured by the backend.
	srv.FastForward(2 * time.Minute)
	_, ok = c.Get("anon:learner-9")
	assert.False(t, ok)

	c.Delete("anon:learner-9")
	_, ok = c.Get("anon:learner-9")
	assert.False(t, ok)
}

func TestRedisCacheUnreachable(t *testing.T) {
	_, err := NewRedis(RedisConfig{Addr: "127.0.0.1:1"}, zerolog.Nop())
	assert.Error(t, err)
}
