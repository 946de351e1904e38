package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"admin-auth-service/internal/client"
	"admin-auth-service/internal/util"
)

const (
	sessionKeyPrefix = "admin:session:"
	opTimeout        = 5 * time.Second
)

// SessionCache fronts the durable session store for validation reads. Keys
// carry a TTL matching the session expiry, so Redis evicts stale entries on
// its own; the durable store stays the source of truth.
type SessionCache struct {
	client *client.RedisClient
}

func NewSessionCache(redisClient *client.RedisClient) *SessionCache {
	return &SessionCache{
		client: redisClient,
	}
}

func (c *SessionCache) SetSession(sessionToken string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	key := sessionKeyPrefix + sessionToken
	value := strconv.FormatInt(expiresAt.UTC().Unix(), 10)

	if err := c.client.Set(ctx, key, value, ttl); err != nil {
		util.Error("Failed to cache session", util.ErrorField(err))
		return fmt.Errorf("failed to cache session: %w", err)
	}
	return nil
}

func (c *SessionCache) GetSession(sessionToken string) (time.Time, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	key := sessionKeyPrefix + sessionToken

	exists, err := c.client.Exists(ctx, key)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to check cached session: %w", err)
	}
	if !exists {
		return time.Time{}, false, nil
	}

	value, err := c.client.Get(ctx, key)
	if err != nil {
		// Raced with TTL eviction; treat as a miss.
		return time.Time{}, false, nil
	}

	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		util.Warn("Corrupt cached session entry, evicting", util.ErrorField(err))
		_ = c.client.Del(ctx, key)
		return time.Time{}, false, nil
	}

	return time.Unix(unix, 0).UTC(), true, nil
}

func (c *SessionCache) DeleteSession(sessionToken string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := c.client.Del(ctx, sessionKeyPrefix+sessionToken); err != nil {
		util.Error("Failed to delete cached session", util.ErrorField(err))
		return fmt.Errorf("failed to delete cached session: %w", err)
	}
	return nil
}
