package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hausmeister-app/hausmeister/internal/database"
)

// Cache is the fast tier of the session store.
type Cache interface {
	// Put caches a session and its bound user. A nil userID caches an
	// anonymous session.
	Put(ctx context.Context, id uuid.UUID, userID *uuid.UUID) error
	// Lookup returns the cached user binding. found=false on cache miss.
	Lookup(ctx context.Context, id uuid.UUID) (userID *uuid.UUID, found bool, err error)
	GetSlot(ctx context.Context, id uuid.UUID, slot string) (value json.RawMessage, found bool, err error)
	SetSlot(ctx context.Context, id uuid.UUID, slot string, value json.RawMessage) error
	DeleteSlot(ctx context.Context, id uuid.UUID, slot string) error
	Evict(ctx context.Context, id uuid.UUID) error
}

// Each session is one Redis hash. The user binding lives under a fixed field,
// slot values under prefixed fields, so the whole session evicts atomically.
const (
	fieldUser  = "user_id"
	slotPrefix = "slot:"
)

type redisCache struct {
	redis *database.Redis
	ttl   time.Duration
}

// NewRedisCache creates a Redis-backed session cache. ttl of zero means
// entries never expire on their own.
func NewRedisCache(redis *database.Redis, ttl time.Duration) Cache {
	return &redisCache{redis: redis, ttl: ttl}
}

var _ Cache = (*redisCache)(nil)

func key(id uuid.UUID) string {
	return "session:" + id.String()
}

func (c *redisCache) Put(ctx context.Context, id uuid.UUID, userID *uuid.UUID) error {
	value := ""
	if userID != nil {
		value = userID.String()
	}
	if err := c.redis.HSet(ctx, key(id), fieldUser, value); err != nil {
		return fmt.Errorf("failed to cache session: %w", err)
	}
	return c.touch(ctx, id)
}

func (c *redisCache) Lookup(ctx context.Context, id uuid.UUID) (*uuid.UUID, bool, error) {
	value, err := c.redis.HGet(ctx, key(id), fieldUser)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to look up session: %w", err)
	}
	if value == "" {
		return nil, true, nil
	}

	userID, err := uuid.Parse(value)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt cached user id: %w", err)
	}
	return &userID, true, nil
}

func (c *redisCache) GetSlot(ctx context.Context, id uuid.UUID, slot string) (json.RawMessage, bool, error) {
	value, err := c.redis.HGet(ctx, key(id), slotPrefix+slot)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cached slot: %w", err)
	}
	return json.RawMessage(value), true, nil
}

func (c *redisCache) SetSlot(ctx context.Context, id uuid.UUID, slot string, value json.RawMessage) error {
	if err := c.redis.HSet(ctx, key(id), slotPrefix+slot, string(value)); err != nil {
		return fmt.Errorf("failed to cache slot: %w", err)
	}
	return c.touch(ctx, id)
}

func (c *redisCache) DeleteSlot(ctx context.Context, id uuid.UUID, slot string) error {
	return c.redis.HDel(ctx, key(id), slotPrefix+slot)
}

func (c *redisCache) Evict(ctx context.Context, id uuid.UUID) error {
	return c.redis.Delete(ctx, key(id))
}

func (c *redisCache) touch(ctx context.Context, id uuid.UUID) error {
	if c.ttl <= 0 {
		return nil
	}
	return c.redis.Expire(ctx, key(id), c.ttl)
}
