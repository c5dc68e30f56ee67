package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairLockWithoutRedis(t *testing.T) {
	ctx := context.Background()

	var nilLock *RepairLock
	ok, err := nilLock.TryLock(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, ok)

	lock := NewRepairLock(nil, 0)
	assert.Equal(t, DefaultRepairLockTTL, lock.ttl)
	ok, err = lock.TryLock(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	lock.Unlock(ctx, "t1")
}

func TestRepairLockUnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	ok, err := NewRepairLock(client, time.Second).TryLock(context.Background(), "t1")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestRepairLockKey(t *testing.T) {
	assert.Equal(t, "trackshelf:repair:abc", RepairLockKey("abc"))
}
