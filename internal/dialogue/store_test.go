package dialogue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t, 30*time.Minute)
	ctx := context.Background()

	session := NewSession("sess-1", "user-1")
	session.State = StateCollectingSlots
	session.Intent = "transfer_money"
	session.SetSlot("from_account", "1001")
	session.SlotIndex = 1

	require.NoError(t, store.Save(ctx, session))

	loaded, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, StateCollectingSlots, loaded.State)
	assert.Equal(t, "transfer_money", loaded.Intent)
	assert.Equal(t, 1, loaded.SlotIndex)
	v, ok := loaded.Slot("from_account")
	require.True(t, ok)
	assert.Equal(t, "1001", v)
}

func TestRedisStoreMissingSessionIsNil(t *testing.T) {
	store, _ := newTestRedisStore(t, time.Minute)

	loaded, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, NewSession("sess-ttl", "user-1")))
	mr.FastForward(2 * time.Minute)

	loaded, err := store.Get(ctx, "sess-ttl")
	require.NoError(t, err)
	assert.Nil(t, loaded, "abandoned session should expire")
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, NewSession("sess-del", "user-1")))
	require.NoError(t, store.Delete(ctx, "sess-del"))

	loaded, err := store.Get(ctx, "sess-del")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := NewSession("sess-m", "user-1")
	session.SetSlot("amount", "500")
	require.NoError(t, store.Save(ctx, session))

	// Mutating the caller's copy must not affect the stored record.
	session.SetSlot("amount", "999")

	loaded, err := store.Get(ctx, "sess-m")
	require.NoError(t, err)
	v, _ := loaded.Slot("amount")
	assert.Equal(t, "500", v)
}
