package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

// ContactLockManagerAdapter implements the domain.ContactLockManager
// interface using Redis. Locks are plain SETNX values holding the owner
// token; release is a compare-and-delete Lua script so one pod can never
// drop a lock acquired by another.
type ContactLockManagerAdapter struct {
	redisClient *redis.Client
	logger      domain.Logger
}

// NewContactLockManagerAdapter creates a new instance of ContactLockManagerAdapter.
func NewContactLockManagerAdapter(redisClient *redis.Client, logger domain.Logger) *ContactLockManagerAdapter {
	if redisClient == nil {
		logger.Error(context.Background(), "Redis client is nil in NewContactLockManagerAdapter", "error", "nil_redis_client")
	}
	return &ContactLockManagerAdapter{
		redisClient: redisClient,
		logger:      logger,
	}
}

// AcquireLock attempts to acquire a lock (SETNX behavior) for the given key with a specific owner and TTL.
func (a *ContactLockManagerAdapter) AcquireLock(ctx context.Context, key string, owner string, ttl time.Duration) (bool, error) {
	acquired, err := a.redisClient.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		a.logger.Error(ctx, "Redis SETNX failed", "key", key, "error", err.Error())
		return false, fmt.Errorf("redis SETNX for key '%s' failed: %w", key, err)
	}
	if !acquired {
		// Report the current holder for diagnosing contended merges.
		holder, getErr := a.redisClient.Get(ctx, key).Result()
		if getErr != nil && !errors.Is(getErr, redis.Nil) {
			a.logger.Debug(ctx, "Failed to retrieve existing lock holder after failed SETNX",
				"key", key, "error", getErr.Error())
		} else if !errors.Is(getErr, redis.Nil) {
			a.logger.Debug(ctx, "Failed to acquire contact lock, key held elsewhere",
				"key", key, "current_holder", holder, "attempted_owner", owner)
		}
	}
	a.logger.Debug(ctx, "Redis SETNX result", "key", key, "owner", owner, "ttl", ttl.String(), "acquired", acquired)
	return acquired, nil
}

// ReleaseLock attempts to release a lock for the given key, only if the owner matches.
// This uses a Lua script to ensure atomicity of the GET and DEL operations.
func (a *ContactLockManagerAdapter) ReleaseLock(ctx context.Context, key string, owner string) (bool, error) {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	result, err := a.redisClient.Eval(ctx, script, []string{key}, owner).Int64()
	if err != nil && !errors.Is(err, redis.Nil) { // redis.Nil is not an error if key simply doesn't exist
		a.logger.Error(ctx, "Redis EVAL (ReleaseLock script) failed", "key", key, "owner", owner, "error", err.Error())
		return false, fmt.Errorf("redis EVAL for ReleaseLock on key '%s' failed: %w", key, err)
	}

	released := result == 1
	a.logger.Debug(ctx, "Redis ReleaseLock result", "key", key, "owner", owner, "released_by_script", released)
	return released, nil
}
