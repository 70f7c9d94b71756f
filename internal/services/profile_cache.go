package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"lumina_studio_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const profileKeyPrefix = "profile:"

// RedisProfileCache keeps profiles as JSON values with a TTL.
type RedisProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisProfileCache(client *redis.Client, ttl time.Duration) *RedisProfileCache {
	return &RedisProfileCache{client: client, ttl: ttl}
}

func profileKey(id uuid.UUID) string {
	return profileKeyPrefix + id.String()
}

func (c *RedisProfileCache) Get(ctx context.Context, id uuid.UUID) (*models.Profile, bool, error) {
	raw, err := c.client.Get(ctx, profileKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached profile: %w", err)
	}

	var profile models.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached profile: %w", err)
	}
	return &profile, true, nil
}

func (c *RedisProfileCache) Set(ctx context.Context, profile *models.Profile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	return c.client.Set(ctx, profileKey(profile.ID), raw, c.ttl).Err()
}

func (c *RedisProfileCache) Delete(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, profileKey(id)).Err()
}

// MemoryProfileCache is used when no Redis address is configured. Entries
// expire after ttl like their Redis counterparts, so rows changed outside this
// process are picked up again.
type MemoryProfileCache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[uuid.UUID]memoryEntry
}

type memoryEntry struct {
	profile   models.Profile
	expiresAt time.Time
}

// NewMemoryProfileCache keeps entries for ttl. A zero ttl disables expiry.
func NewMemoryProfileCache(ttl time.Duration) *MemoryProfileCache {
	return &MemoryProfileCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[uuid.UUID]memoryEntry),
	}
}

// SetClock replaces the time source. Used by tests.
func (c *MemoryProfileCache) SetClock(now func() time.Time) {
	c.now = now
}

func (c *MemoryProfileCache) expired(e memoryEntry, now time.Time) bool {
	return c.ttl > 0 && !now.Before(e.expiresAt)
}

func (c *MemoryProfileCache) Get(_ context.Context, id uuid.UUID) (*models.Profile, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok || c.expired(e, c.now()) {
		return nil, false, nil
	}
	profile := e.profile
	return &profile, true, nil
}

func (c *MemoryProfileCache) Set(_ context.Context, profile *models.Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[profile.ID] = memoryEntry{profile: *profile, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryProfileCache) Delete(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

// Sweep removes expired entries and returns how many were dropped.
func (c *MemoryProfileCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

func (c *MemoryProfileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
