package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyJoinsNamespace(t *testing.T) {
	c := NewRedisCache("localhost:6379", "kitchen-admission")
	defer c.Close()
	assert.Equal(t, "kitchen-admission:menu:t1:O1", c.Key("menu", "t1", "O1"))
	assert.Equal(t, "kitchen-admission", c.Key())
}

func TestDeleteWithoutKeysSkipsRoundTrip(t *testing.T) {
	c := NewRedisCacheFromClient(unreachable(), "ns")
	defer c.Close()
	assert.NoError(t, c.Delete(context.Background()))
}

func TestUnreachableServerSurfacesErrors(t *testing.T) {
	c := NewRedisCacheFromClient(unreachable(), "ns")
	defer c.Close()
	ctx := context.Background()

	require.Error(t, c.Ping(ctx))
	_, err := c.Get(ctx, c.Key("menu"))
	require.Error(t, err)
	require.Error(t, c.Set(ctx, c.Key("menu"), "[]", time.Minute))
}

func unreachable() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}
