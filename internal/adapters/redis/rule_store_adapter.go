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

// RuleStoreAdapter implements domain.RuleStore on Redis: one JSON value per
// rule plus a set of ids for enumeration.
type RuleStoreAdapter struct {
	redisClient *redis.Client
	logger      domain.Logger
}

// NewRuleStoreAdapter creates a new RuleStoreAdapter.
func NewRuleStoreAdapter(redisClient *redis.Client, logger domain.Logger) *RuleStoreAdapter {
	return &RuleStoreAdapter{
		redisClient: redisClient,
		logger:      logger,
	}
}

func (a *RuleStoreAdapter) Save(ctx context.Context, rule *domain.IntegrationRule) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshaling rule '%s': %w", rule.ID, err)
	}
	pipe := a.redisClient.TxPipeline()
	pipe.Set(ctx, rediskeys.RuleKey(rule.ID), data, 0)
	pipe.SAdd(ctx, rediskeys.RuleIndexKey(), rule.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline for rule save failed: %w", err)
	}
	return nil
}

func (a *RuleStoreAdapter) Get(ctx context.Context, id string) (*domain.IntegrationRule, error) {
	data, err := a.redisClient.Get(ctx, rediskeys.RuleKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET for rule '%s' failed: %w", id, err)
	}
	rule := &domain.IntegrationRule{}
	if err := json.Unmarshal([]byte(data), rule); err != nil {
		return nil, fmt.Errorf("unmarshaling rule '%s': %w", id, err)
	}
	return rule, nil
}

func (a *RuleStoreAdapter) List(ctx context.Context) ([]*domain.IntegrationRule, error) {
	ids, err := a.redisClient.SMembers(ctx, rediskeys.RuleIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS for rule index failed: %w", err)
	}
	rules := make([]*domain.IntegrationRule, 0, len(ids))
	for _, id := range ids {
		rule, err := a.Get(ctx, id)
		if errors.Is(err, domain.ErrRuleNotFound) {
			// Index entry outlived the value; heal it.
			a.redisClient.SRem(ctx, rediskeys.RuleIndexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (a *RuleStoreAdapter) Delete(ctx context.Context, id string) error {
	deleted, err := a.redisClient.Del(ctx, rediskeys.RuleKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redis DEL for rule '%s' failed: %w", id, err)
	}
	a.redisClient.SRem(ctx, rediskeys.RuleIndexKey(), id)
	if deleted == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}
