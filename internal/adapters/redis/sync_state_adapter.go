package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
	"gitlab.com/cubelite/api/integration-engine/pkg/rediskeys"
)

// beginCycleScript transitions a module into syncing unless a cycle is
// already in flight. Returns 1 when this caller started the cycle.
var beginCycleScript = redis.NewScript(`
	if redis.call("hget", KEYS[1], "status") == "syncing" then
		return 0
	end
	redis.call("hset", KEYS[1], "status", "syncing", "records", 0)
	return 1
`)

// ackScript returns an errored module to idle. Acking any other state is a
// no-op so a stale dashboard cannot clobber an in-flight cycle.
var ackScript = redis.NewScript(`
	if redis.call("hget", KEYS[1], "status") == "error" then
		redis.call("hset", KEYS[1], "status", "idle")
		return 1
	end
	return 0
`)

// SyncStateStoreAdapter implements domain.SyncStateStore on Redis. Each
// module's state lives in a hash (status, cycle record counter, last sync
// time) with the error history in a separate capped list. State transitions
// that must be exclusive run as Lua scripts.
type SyncStateStoreAdapter struct {
	redisClient *redis.Client
	logger      domain.Logger
}

// NewSyncStateStoreAdapter creates a new SyncStateStoreAdapter.
func NewSyncStateStoreAdapter(redisClient *redis.Client, logger domain.Logger) *SyncStateStoreAdapter {
	return &SyncStateStoreAdapter{
		redisClient: redisClient,
		logger:      logger,
	}
}

func (a *SyncStateStoreAdapter) Get(ctx context.Context, module string) (*domain.SyncStatus, error) {
	fields, err := a.redisClient.HGetAll(ctx, rediskeys.SyncStatusKey(module)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL for sync status '%s' failed: %w", module, err)
	}

	status := domain.NewSyncStatus(module)
	if state, ok := fields["status"]; ok && state != "" {
		status.Status = domain.SyncState(state)
	}
	if records, ok := fields["records"]; ok {
		if n, err := strconv.ParseInt(records, 10, 64); err == nil {
			status.RecordsSynced = n
		}
	}
	if lastSync, ok := fields["last_sync"]; ok && lastSync != "" {
		if t, err := time.Parse(time.RFC3339Nano, lastSync); err == nil {
			status.LastSync = &t
		}
	}

	errs, err := a.redisClient.LRange(ctx, rediskeys.SyncErrorsKey(module), 0, domain.SyncErrorHistoryLimit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE for sync errors '%s' failed: %w", module, err)
	}
	status.Errors = errs
	return status, nil
}

func (a *SyncStateStoreAdapter) All(ctx context.Context) (map[string]*domain.SyncStatus, error) {
	statuses := make(map[string]*domain.SyncStatus, len(domain.KnownModules))
	for _, module := range domain.KnownModules {
		status, err := a.Get(ctx, module)
		if err != nil {
			return nil, err
		}
		statuses[module] = status
	}
	return statuses, nil
}

func (a *SyncStateStoreAdapter) BeginCycle(ctx context.Context, module string) (bool, *domain.SyncStatus, error) {
	result, err := beginCycleScript.Run(ctx, a.redisClient, []string{rediskeys.SyncStatusKey(module)}).Int64()
	if err != nil {
		return false, nil, fmt.Errorf("redis EVAL for BeginCycle on '%s' failed: %w", module, err)
	}
	current, getErr := a.Get(ctx, module)
	if getErr != nil {
		return result == 1, nil, getErr
	}
	return result == 1, current, nil
}

func (a *SyncStateStoreAdapter) CompleteCycle(ctx context.Context, module string, records int64) (*domain.SyncStatus, error) {
	key := rediskeys.SyncStatusKey(module)
	pipe := a.redisClient.TxPipeline()
	if records > 0 {
		pipe.HIncrBy(ctx, key, "records", records)
	}
	pipe.HSet(ctx, key,
		"status", string(domain.SyncCompleted),
		"last_sync", time.Now().UTC().Format(time.RFC3339Nano),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis pipeline for CompleteCycle on '%s' failed: %w", module, err)
	}
	return a.Get(ctx, module)
}

func (a *SyncStateStoreAdapter) FailCycle(ctx context.Context, module string, errMsg string) (*domain.SyncStatus, error) {
	if err := a.redisClient.HSet(ctx, rediskeys.SyncStatusKey(module), "status", string(domain.SyncError)).Err(); err != nil {
		return nil, fmt.Errorf("redis HSET for FailCycle on '%s' failed: %w", module, err)
	}
	if err := a.AppendError(ctx, module, errMsg); err != nil {
		return nil, err
	}
	return a.Get(ctx, module)
}

func (a *SyncStateStoreAdapter) AppendError(ctx context.Context, module string, errMsg string) error {
	key := rediskeys.SyncErrorsKey(module)
	pipe := a.redisClient.TxPipeline()
	pipe.LPush(ctx, key, errMsg)
	pipe.LTrim(ctx, key, 0, domain.SyncErrorHistoryLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline for AppendError on '%s' failed: %w", module, err)
	}
	return nil
}

func (a *SyncStateStoreAdapter) AddRecords(ctx context.Context, module string, n int64) error {
	if n <= 0 {
		return nil
	}
	if err := a.redisClient.HIncrBy(ctx, rediskeys.SyncStatusKey(module), "records", n).Err(); err != nil {
		return fmt.Errorf("redis HINCRBY for AddRecords on '%s' failed: %w", module, err)
	}
	return nil
}

func (a *SyncStateStoreAdapter) Ack(ctx context.Context, module string) (*domain.SyncStatus, error) {
	if _, err := ackScript.Run(ctx, a.redisClient, []string{rediskeys.SyncStatusKey(module)}).Int64(); err != nil {
		return nil, fmt.Errorf("redis EVAL for Ack on '%s' failed: %w", module, err)
	}
	return a.Get(ctx, module)
}
