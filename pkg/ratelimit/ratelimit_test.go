package ratelimit

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopAllows(t *testing.T) {
	ok, err := Noop{}.Allow(context.Background(), "anyone")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis("not a url", 5, time.Minute)
	assert.Error(t, err)
}

func TestZeroLimitDisables(t *testing.T) {
	r, err := NewRedis("redis://localhost:6379/0", 0, time.Minute)
	require.NoError(t, err)
	defer r.Close()
	ok, err := r.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

// Runs only with REDIS_URL_TEST set, e.g. redis://localhost:6379/15.
func TestRedisWindow(t *testing.T) {
	url := os.Getenv("REDIS_URL_TEST")
	if url == "" {
		t.Skip("REDIS_URL_TEST not set; skipping redis integration test")
	}
	r, err := NewRedis(url, 2, time.Second)
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()
	require.NoError(t, r.Ping(ctx))

	key := fmt.Sprintf("test:%d", time.Now().UnixNano())
	for i, want := range []bool{true, true, false} {
		ok, err := r.Allow(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, ok, "call %d", i)
	}
	time.Sleep(1100 * time.Millisecond)
	ok, err := r.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}
