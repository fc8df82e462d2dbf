package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStore(client, "paysettle:")

	_, found, err := s.Get(ctx, "payment_ref:ref-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "payment_ref:ref-1", []byte("s1"), time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("paysettle:payment_ref:ref-1"))
	val, found, err := s.Get(ctx, "payment_ref:ref-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "s1", string(val))

	mr.FastForward(2 * time.Hour)
	_, found, err = s.Get(ctx, "payment_ref:ref-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	assert.Zero(t, mr.TTL("paysettle:k"))
	require.NoError(t, s.Delete(ctx, "k"))
	assert.False(t, mr.Exists("paysettle:k"))
}
