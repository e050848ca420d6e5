package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/lbot-tgbot-go/internal/config"
	"github.com/lbot-tgbot-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, Key("en", "hi"), Key("en", "hi"))
	assert.NotEqual(t, Key("en", "hi"), Key("de", "hi"))
	assert.Len(t, Key("en", "hi"), 64)
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, logger.Discard())

	_, ok := c.Get(ctx, "en", "show the board")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "en", "show the board", "scoreboard"))
	label, ok := c.Get(ctx, "en", "show the board")
	assert.True(t, ok)
	assert.Equal(t, "scoreboard", label)

	// empty labels are cached as negative results
	require.NoError(t, c.Set(ctx, "en", "weather?", ""))
	label, ok = c.Get(ctx, "en", "weather?")
	assert.True(t, ok)
	assert.Empty(t, label)

	require.NoError(t, c.Clear(ctx))
	_, ok = c.Get(ctx, "en", "show the board")
	assert.False(t, ok)
}

func TestNewCache(t *testing.T) {
	ctx := context.Background()

	disabled, err := NewCache(&config.ClassifierCacheConfig{}, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, disabled.Set(ctx, "en", "x", "help"))
	_, ok := disabled.Get(ctx, "en", "x")
	assert.False(t, ok)

	mem, err := NewCache(&config.ClassifierCacheConfig{Enabled: true, Type: TypeMemory, TTL: time.Minute}, logger.Discard())
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, mem)

	_, err = NewCache(&config.ClassifierCacheConfig{Enabled: true, Type: "memcached"}, logger.Discard())
	assert.Error(t, err)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	cfg := &config.ClassifierCacheConfig{Enabled: true, Type: TypeRedis, TTL: time.Minute}
	cfg.Redis.Addr = addr

	c, err := NewRedisCache(cfg, logger.Discard())
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Clear(ctx))

	_, ok := c.Get(ctx, "en", "give him an L")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "en", "give him an L", "givel"))
	label, ok := c.Get(ctx, "en", "give him an L")
	assert.True(t, ok)
	assert.Equal(t, "givel", label)

	require.NoError(t, c.Clear(ctx))
	_, ok = c.Get(ctx, "en", "give him an L")
	assert.False(t, ok)
}
