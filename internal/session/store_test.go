package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templatestore/internal/domain"
)

func setupStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Hour, nil), mr
}

func TestGet_MissingSessionIsZero(t *testing.T) {
	store, _ := setupStore(t)

	state, err := store.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, state.IsZero())
}

func TestSaveThenGet(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	want := domain.SessionDiscountState{Code: "SAVE20", Kind: domain.DiscountBonus}
	require.NoError(t, store.Save(ctx, "s1", want))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, time.Hour, mr.TTL(key("s1")))
}

func TestSave_ZeroStateClears(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1", domain.SessionDiscountState{Code: "AFF1", Kind: domain.DiscountAffiliate}))
	require.NoError(t, store.Save(ctx, "s1", domain.SessionDiscountState{}))

	assert.False(t, mr.Exists(key("s1")))
}

func TestSave_RequiresSession(t *testing.T) {
	store, _ := setupStore(t)

	err := store.Save(context.Background(), "", domain.SessionDiscountState{Code: "X"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGet_UnreadableStateIsDropped(t *testing.T) {
	store, mr := setupStore(t)
	require.NoError(t, mr.Set(key("s1"), "{not json"))

	state, err := store.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, state.IsZero())
}

func TestStateExpires(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1", domain.SessionDiscountState{Code: "SAVE20", Kind: domain.DiscountBonus}))
	mr.FastForward(2 * time.Hour)

	state, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, state.IsZero())
}
