package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestJSONFetchCachesLoaderResult(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewJSON(client, "dash", time.Minute)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"open": 3}, nil
	}

	var first, second map[string]int
	require.NoError(t, c.Fetch(context.Background(), "summary", &first, loader))
	require.NoError(t, c.Fetch(context.Background(), "summary", &second, loader))
	require.Equal(t, 1, calls)
	require.Equal(t, 3, second["open"])
	require.True(t, mr.Exists("dash:summary"))

	require.NoError(t, c.Invalidate(context.Background(), "summary"))
	require.False(t, mr.Exists("dash:summary"))
}

func TestJSONFetchWithoutClientCallsLoader(t *testing.T) {
	var c *JSON
	var out []string
	err := c.Fetch(context.Background(), "k", &out, func(context.Context) (any, error) {
		return []string{"a"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, out)
}
