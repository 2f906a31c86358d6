package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
	"gitlab.com/cubelite/api/integration-engine/pkg/rediskeys"
)

// EventLogAdapter implements domain.EventStore on Redis. Each event lives in
// its own hash (serialized body plus a processed flag); a capped list of ids
// preserves emission order, newest first. The sequence counter is a plain
// INCR, so sequence numbers are monotonic across pods and never reused even
// after old events are trimmed away.
type EventLogAdapter struct {
	redisClient *redis.Client
	logger      domain.Logger
	limit       int64
}

// NewEventLogAdapter creates a new EventLogAdapter. limit caps how many
// events the log retains; older entries are trimmed on append.
func NewEventLogAdapter(redisClient *redis.Client, logger domain.Logger, limit int) *EventLogAdapter {
	if limit <= 0 {
		limit = 1000
	}
	return &EventLogAdapter{
		redisClient: redisClient,
		logger:      logger,
		limit:       int64(limit),
	}
}

// Append persists the event, assigning its sequence and timestamp.
func (a *EventLogAdapter) Append(ctx context.Context, event *domain.CrossModuleEvent) (*domain.CrossModuleEvent, error) {
	seq, err := a.redisClient.Incr(ctx, rediskeys.EventSequenceKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis INCR for event sequence failed: %w", err)
	}
	event.Sequence = seq
	event.Timestamp = time.Now().UTC()
	event.Processed = false

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshaling event %s: %w", event.ID, err)
	}

	pipe := a.redisClient.TxPipeline()
	pipe.HSet(ctx, rediskeys.EventKey(event.ID), "data", data, "processed", 0)
	lpush := pipe.LPush(ctx, rediskeys.EventLogKey(), event.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis pipeline for event append failed: %w", err)
	}

	// Trim the oldest entries past the retention cap, bodies included.
	if length := lpush.Val(); length > a.limit {
		trimmed, err := a.redisClient.RPopCount(ctx, rediskeys.EventLogKey(), int(length-a.limit)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			a.logger.Warn(ctx, "Failed to trim event log", "error", err.Error())
		}
		for _, oldID := range trimmed {
			if err := a.redisClient.Del(ctx, rediskeys.EventKey(oldID)).Err(); err != nil {
				a.logger.Warn(ctx, "Failed to delete trimmed event body", "event_id", oldID, "error", err.Error())
			}
		}
	}

	return event, nil
}

// List returns events newest first. Source-module filtering happens after
// the read; the retained window is small enough that this stays cheap.
func (a *EventLogAdapter) List(ctx context.Context, filter domain.EventFilter) ([]*domain.CrossModuleEvent, error) {
	// When filtering we must scan the whole retained window to fill a page.
	scan := int64(filter.Limit)
	if filter.SourceModule != "" || scan <= 0 || scan > a.limit {
		scan = a.limit
	}
	ids, err := a.redisClient.LRange(ctx, rediskeys.EventLogKey(), 0, scan-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE for event log failed: %w", err)
	}

	events := make([]*domain.CrossModuleEvent, 0, len(ids))
	for _, id := range ids {
		event, err := a.load(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrEventNotFound) {
				// Trimmed between LRANGE and read.
				continue
			}
			return nil, err
		}
		if filter.SourceModule != "" && event.SourceModule != filter.SourceModule {
			continue
		}
		events = append(events, event)
		if filter.Limit > 0 && len(events) >= filter.Limit {
			break
		}
	}
	return events, nil
}

// MarkProcessed flips the processed flag. Flipping an already processed
// event is a no-op, not an error.
func (a *EventLogAdapter) MarkProcessed(ctx context.Context, eventID string) error {
	key := rediskeys.EventKey(eventID)
	exists, err := a.redisClient.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis EXISTS for event '%s' failed: %w", eventID, err)
	}
	if exists == 0 {
		return domain.ErrEventNotFound
	}
	if err := a.redisClient.HSet(ctx, key, "processed", 1).Err(); err != nil {
		return fmt.Errorf("redis HSET processed for event '%s' failed: %w", eventID, err)
	}
	return nil
}

// Count returns the number of retained events.
func (a *EventLogAdapter) Count(ctx context.Context) (int64, error) {
	count, err := a.redisClient.LLen(ctx, rediskeys.EventLogKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis LLEN for event log failed: %w", err)
	}
	return count, nil
}

func (a *EventLogAdapter) load(ctx context.Context, eventID string) (*domain.CrossModuleEvent, error) {
	vals, err := a.redisClient.HMGet(ctx, rediskeys.EventKey(eventID), "data", "processed").Result()
	if err != nil {
		return nil, fmt.Errorf("redis HMGET for event '%s' failed: %w", eventID, err)
	}
	data, ok := vals[0].(string)
	if !ok || data == "" {
		return nil, domain.ErrEventNotFound
	}
	event := &domain.CrossModuleEvent{}
	if err := json.Unmarshal([]byte(data), event); err != nil {
		return nil, fmt.Errorf("unmarshaling event '%s': %w", eventID, err)
	}
	// The flag field is authoritative; the serialized body is written once.
	if flag, ok := vals[1].(string); ok && flag == "1" {
		event.Processed = true
	}
	return event, nil
}
