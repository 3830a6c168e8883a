package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"auction-settlement/internal/biddingerrors"
	"auction-settlement/internal/models"
)

func setupRedisTokenStore(t *testing.T) (*RedisTokenStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := NewRedisTokenStore(context.Background(), RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisTokenStore_PutTake(t *testing.T) {
	t.Parallel()

	store, mr := setupRedisTokenStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := models.TokenRecord{Purpose: "reset-password", Subject: "user1", Hash: "h1", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	require.NoError(t, store.PutToken(ctx, rec))
	rec.Hash = "h2"
	require.NoError(t, store.PutToken(ctx, rec))

	ttl := mr.TTL(tokenKeyPrefix + rec.Key())
	require.Greater(t, ttl, time.Hour, "record outlives its expiry by the grace period")

	got, err := store.TakeToken(ctx, "reset-password", "user1")
	require.NoError(t, err)
	require.Equal(t, "h2", got.Hash)
	require.Equal(t, "user1", got.Subject)
	require.True(t, rec.ExpiresAt.Equal(got.ExpiresAt))
	require.False(t, mr.Exists(tokenKeyPrefix+rec.Key()))

	_, err = store.TakeToken(ctx, "reset-password", "user1")
	require.ErrorIs(t, err, biddingerrors.ErrTokenNotFound)
}

func TestRedisTokenStore_GraceExpiry(t *testing.T) {
	t.Parallel()

	store, mr := setupRedisTokenStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := models.TokenRecord{Purpose: "verify-email", Subject: "user1", Hash: "h", ExpiresAt: now.Add(time.Minute), CreatedAt: now}
	require.NoError(t, store.PutToken(ctx, rec))

	mr.FastForward(30 * time.Minute)
	got, err := store.TakeToken(ctx, "verify-email", "user1")
	require.NoError(t, err, "expired records stay readable during the grace period")
	require.Equal(t, "h", got.Hash)

	require.NoError(t, store.PutToken(ctx, rec))
	mr.FastForward(2 * time.Hour)
	_, err = store.TakeToken(ctx, "verify-email", "user1")
	require.ErrorIs(t, err, biddingerrors.ErrTokenNotFound)
}

func TestTokenOverride(t *testing.T) {
	t.Parallel()

	tokens, _ := setupRedisTokenStore(t)
	mem := NewMemoryRepo()
	var store Store = TokenOverride{Store: mem, Tokens: tokens}
	ctx := context.Background()

	rec := models.TokenRecord{Purpose: "verify-email", Subject: "user1", Hash: "h", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.PutToken(ctx, rec))

	_, err := mem.TakeToken(ctx, "verify-email", "user1")
	require.ErrorIs(t, err, biddingerrors.ErrTokenNotFound, "tokens bypass the wrapped store")

	_, err = store.TakeToken(ctx, "verify-email", "user1")
	require.NoError(t, err)
}
