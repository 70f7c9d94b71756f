package services_test

import (
	"context"
	"testing"
	"time"

	"lumina_studio_go_backend/internal/models"
	"lumina_studio_go_backend/internal/services"
	"lumina_studio_go_backend/internal/wallet"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisCache(t *testing.T, ttl time.Duration) (*services.RedisProfileCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return services.NewRedisProfileCache(client, ttl), mr
}

func TestRedisProfileCache(t *testing.T) {
	ctx := context.Background()
	claimed := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	t.Run("Round trips a profile", func(t *testing.T) {
		cache, _ := setupRedisCache(t, time.Minute)
		profile := &models.Profile{ID: uuid.New(), Diamonds: 73, Plan: wallet.PlanDailyCap, LastRewardClaim: &claimed}

		require.NoError(t, cache.Set(ctx, profile))
		got, ok, err := cache.Get(ctx, profile.ID)

		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 73, got.Diamonds)
		assert.Equal(t, wallet.PlanDailyCap, got.Plan)
		require.NotNil(t, got.LastRewardClaim)
		assert.True(t, got.LastRewardClaim.Equal(claimed))
		assert.Nil(t, got.LastDailyRefresh)
	})

	t.Run("Reports a miss", func(t *testing.T) {
		cache, _ := setupRedisCache(t, time.Minute)
		got, ok, err := cache.Get(ctx, uuid.New())

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, got)
	})

	t.Run("Expires after the TTL", func(t *testing.T) {
		cache, mr := setupRedisCache(t, time.Minute)
		profile := &models.Profile{ID: uuid.New(), Diamonds: 5, Plan: wallet.PlanFree}
		require.NoError(t, cache.Set(ctx, profile))

		mr.FastForward(2 * time.Minute)

		_, ok, err := cache.Get(ctx, profile.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Deletes", func(t *testing.T) {
		cache, mr := setupRedisCache(t, time.Minute)
		profile := &models.Profile{ID: uuid.New(), Diamonds: 5, Plan: wallet.PlanFree}
		require.NoError(t, cache.Set(ctx, profile))
		assert.True(t, mr.Exists("profile:"+profile.ID.String()))

		require.NoError(t, cache.Delete(ctx, profile.ID))
		assert.False(t, mr.Exists("profile:"+profile.ID.String()))
	})

	t.Run("Surfaces connection errors", func(t *testing.T) {
		cache, mr := setupRedisCache(t, time.Minute)
		mr.Close()

		_, ok, err := cache.Get(ctx, uuid.New())
		assert.Error(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryProfileCache(t *testing.T) {
	ctx := context.Background()
	cache := services.NewMemoryProfileCache(0)
	profile := &models.Profile{ID: uuid.New(), Diamonds: 10, Plan: wallet.PlanFree}

	require.NoError(t, cache.Set(ctx, profile))
	profile.Diamonds = 99

	got, ok, err := cache.Get(ctx, profile.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10, got.Diamonds, "cache must hold a copy")

	require.NoError(t, cache.Delete(ctx, profile.ID))
	_, ok, _ = cache.Get(ctx, profile.ID)
	assert.False(t, ok)
}

func TestMemoryProfileCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	cache := services.NewMemoryProfileCache(time.Minute)
	cache.SetClock(func() time.Time { return now })
	profile := &models.Profile{ID: uuid.New(), Diamonds: 10, Plan: wallet.PlanFree}
	require.NoError(t, cache.Set(ctx, profile))

	now = now.Add(59 * time.Second)
	_, ok, err := cache.Get(ctx, profile.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, err = cache.Get(ctx, profile.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, cache.Sweep())
	assert.Equal(t, 0, cache.Len())
}
