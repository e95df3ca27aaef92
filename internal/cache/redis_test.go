package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPrefixedKeys(t *testing.T) {
	require.Equal(t, "saudema:rl:login", prefixed("rl:login"))
	require.Equal(t, "saudema:rl:login", prefixed("saudema:rl:login"))
	require.Equal(t, "saudema:sess:abc", prefixed("::sess::abc"))
}

func TestNewRedisClientValidation(t *testing.T) {
	_, err := NewRedisClient(context.Background(), RedisConfig{Address: "  "})
	require.EqualError(t, err, "redis: address is required")

	_, err = NewRedisClient(context.Background(), RedisConfig{Address: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	require.Error(t, err)
}

func TestNewRedisStoreNil(t *testing.T) {
	require.Nil(t, NewRedisStore(nil))
}
