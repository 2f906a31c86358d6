package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
	"gitlab.com/cubelite/api/integration-engine/pkg/rediskeys"
)

// MappingStoreAdapter implements domain.MappingStore on Redis. Besides the
// id set it maintains a (source, target) pair index so rule execution can
// look up the mapping for a module pair in one read. Registering a second
// mapping for the same pair repoints the pair index to the newer one.
type MappingStoreAdapter struct {
	redisClient *redis.Client
	logger      domain.Logger
}

// NewMappingStoreAdapter creates a new MappingStoreAdapter.
func NewMappingStoreAdapter(redisClient *redis.Client, logger domain.Logger) *MappingStoreAdapter {
	return &MappingStoreAdapter{
		redisClient: redisClient,
		logger:      logger,
	}
}

func (a *MappingStoreAdapter) Save(ctx context.Context, mapping *domain.DataMapping) error {
	data, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("marshaling mapping '%s': %w", mapping.ID, err)
	}
	pipe := a.redisClient.TxPipeline()
	pipe.Set(ctx, rediskeys.MappingKey(mapping.ID), data, 0)
	pipe.SAdd(ctx, rediskeys.MappingIndexKey(), mapping.ID)
	pipe.Set(ctx, rediskeys.MappingPairKey(mapping.SourceModule, mapping.TargetModule), mapping.ID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline for mapping save failed: %w", err)
	}
	return nil
}

func (a *MappingStoreAdapter) Get(ctx context.Context, id string) (*domain.DataMapping, error) {
	data, err := a.redisClient.Get(ctx, rediskeys.MappingKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrMappingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET for mapping '%s' failed: %w", id, err)
	}
	mapping := &domain.DataMapping{}
	if err := json.Unmarshal([]byte(data), mapping); err != nil {
		return nil, fmt.Errorf("unmarshaling mapping '%s': %w", id, err)
	}
	return mapping, nil
}

func (a *MappingStoreAdapter) List(ctx context.Context) ([]*domain.DataMapping, error) {
	ids, err := a.redisClient.SMembers(ctx, rediskeys.MappingIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS for mapping index failed: %w", err)
	}
	mappings := make([]*domain.DataMapping, 0, len(ids))
	for _, id := range ids {
		mapping, err := a.Get(ctx, id)
		if errors.Is(err, domain.ErrMappingNotFound) {
			a.redisClient.SRem(ctx, rediskeys.MappingIndexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, mapping)
	}
	return mappings, nil
}

func (a *MappingStoreAdapter) FindBySourceTarget(ctx context.Context, sourceModule, targetModule string) (*domain.DataMapping, error) {
	id, err := a.redisClient.Get(ctx, rediskeys.MappingPairKey(sourceModule, targetModule)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrMappingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET for mapping pair '%s'->'%s' failed: %w", sourceModule, targetModule, err)
	}
	return a.Get(ctx, id)
}
