package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPresence(t *testing.T) (*RedisPresence, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisPresence(client, 20*time.Second), mr
}

func TestRedisPresence_AnnounceAndOnline(t *testing.T) {
	presence, mr := setupPresence(t)
	ctx := context.Background()

	require.NoError(t, presence.Announce(ctx, "L1", "s1", "staffB"))
	require.NoError(t, presence.Announce(ctx, "L1", "s2", "staffA"))
	require.NoError(t, presence.Announce(ctx, "L1", "s3", "staffA"))
	require.NoError(t, presence.Announce(ctx, "L2", "s4", "staffC"))

	assert.Equal(t, 20*time.Second, mr.TTL("presence:L1:s1"))

	online, err := presence.Online(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, []string{"staffA", "staffB"}, online)
}

func TestRedisPresence_LeaveAndExpiry(t *testing.T) {
	presence, mr := setupPresence(t)
	ctx := context.Background()

	require.NoError(t, presence.Announce(ctx, "L1", "s1", "staffA"))
	require.NoError(t, presence.Announce(ctx, "L1", "s2", "staffB"))

	require.NoError(t, presence.Leave(ctx, "L1", "s1"))
	online, err := presence.Online(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, []string{"staffB"}, online)

	mr.FastForward(21 * time.Second)
	online, err = presence.Online(ctx, "L1")
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestRedisPresence_RedisDown(t *testing.T) {
	presence, mr := setupPresence(t)
	mr.Close()

	err := presence.Announce(context.Background(), "L1", "s1", "staffA")
	assert.Error(t, err)
	_, err = presence.Online(context.Background(), "L1")
	assert.Error(t, err)
}
