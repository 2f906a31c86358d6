package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
	"gitlab.com/cubelite/api/integration-engine/pkg/rediskeys"
)

// maxRedirectHops bounds tombstone chain traversal. Chains grow one hop per
// merge of an already merged contact and are repointed on traversal, so in
// practice they stay short.
const maxRedirectHops = 10

// ContactStoreAdapter implements domain.ContactStore on Redis: one JSON
// value per contact, a set of live ids, hashed email and (name, company)
// lookup indexes, and tombstone redirects left behind by merges.
type ContactStoreAdapter struct {
	redisClient *redis.Client
	logger      domain.Logger
}

// NewContactStoreAdapter creates a new ContactStoreAdapter.
func NewContactStoreAdapter(redisClient *redis.Client, logger domain.Logger) *ContactStoreAdapter {
	return &ContactStoreAdapter{
		redisClient: redisClient,
		logger:      logger,
	}
}

func (a *ContactStoreAdapter) Get(ctx context.Context, id string) (*domain.UnifiedContact, error) {
	data, err := a.redisClient.Get(ctx, rediskeys.ContactKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET for contact '%s' failed: %w", id, err)
	}
	contact := &domain.UnifiedContact{}
	if err := json.Unmarshal([]byte(data), contact); err != nil {
		return nil, fmt.Errorf("unmarshaling contact '%s': %w", id, err)
	}
	return contact, nil
}

func (a *ContactStoreAdapter) FindByEmail(ctx context.Context, email string) (*domain.UnifiedContact, error) {
	return a.findByIndex(ctx, rediskeys.ContactEmailIndexKey(strings.ToLower(email)))
}

func (a *ContactStoreAdapter) FindByNameCompany(ctx context.Context, name, company string) (*domain.UnifiedContact, error) {
	return a.findByIndex(ctx, rediskeys.ContactNameCompanyIndexKey(strings.ToLower(name), strings.ToLower(company)))
}

func (a *ContactStoreAdapter) findByIndex(ctx context.Context, indexKey string) (*domain.UnifiedContact, error) {
	id, err := a.redisClient.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET for contact index failed: %w", err)
	}
	canonical, err := a.ResolveID(ctx, id)
	if err != nil {
		return nil, err
	}
	if canonical != id {
		// Heal the index so the next lookup is a single hop.
		if err := a.redisClient.Set(ctx, indexKey, canonical, 0).Err(); err != nil {
			a.logger.Warn(ctx, "Failed to repoint contact index", "error", err.Error())
		}
	}
	return a.Get(ctx, canonical)
}

// Save persists the contact and refreshes its lookup indexes. When an
// update changed the email or the (name, company) pair, the stale index
// entries for the previous identity are removed first.
func (a *ContactStoreAdapter) Save(ctx context.Context, contact *domain.UnifiedContact) error {
	previous, err := a.Get(ctx, contact.ID)
	if err != nil && !errors.Is(err, domain.ErrContactNotFound) {
		return err
	}

	data, err := json.Marshal(contact)
	if err != nil {
		return fmt.Errorf("marshaling contact '%s': %w", contact.ID, err)
	}

	pipe := a.redisClient.TxPipeline()
	if previous != nil {
		for _, stale := range staleIndexKeys(previous, contact) {
			pipe.Del(ctx, stale)
		}
	}
	pipe.Set(ctx, rediskeys.ContactKey(contact.ID), data, 0)
	pipe.SAdd(ctx, rediskeys.ContactIndexKey(), contact.ID)
	for _, key := range indexKeysFor(contact) {
		pipe.Set(ctx, key, contact.ID, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline for contact save failed: %w", err)
	}
	return nil
}

func (a *ContactStoreAdapter) List(ctx context.Context, limit int, search string) ([]*domain.UnifiedContact, error) {
	ids, err := a.redisClient.SMembers(ctx, rediskeys.ContactIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS for contact index failed: %w", err)
	}
	search = strings.ToLower(strings.TrimSpace(search))

	contacts := make([]*domain.UnifiedContact, 0, len(ids))
	for _, id := range ids {
		contact, err := a.Get(ctx, id)
		if errors.Is(err, domain.ErrContactNotFound) {
			a.redisClient.SRem(ctx, rediskeys.ContactIndexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if search != "" && !contactMatches(contact, search) {
			continue
		}
		contacts = append(contacts, contact)
	}
	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].Name != contacts[j].Name {
			return contacts[i].Name < contacts[j].Name
		}
		return contacts[i].ID < contacts[j].ID
	})
	if limit > 0 && len(contacts) > limit {
		contacts = contacts[:limit]
	}
	return contacts, nil
}

func (a *ContactStoreAdapter) Count(ctx context.Context) (int64, error) {
	count, err := a.redisClient.SCard(ctx, rediskeys.ContactIndexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis SCARD for contact index failed: %w", err)
	}
	return count, nil
}

// Retire replaces the secondary contact with a redirect to the primary. The
// secondary's indexes are repointed rather than deleted so lookups by its
// old identity keep resolving to the merged record.
func (a *ContactStoreAdapter) Retire(ctx context.Context, secondaryID, primaryID string) error {
	secondary, err := a.Get(ctx, secondaryID)
	if err != nil {
		return err
	}
	pipe := a.redisClient.TxPipeline()
	pipe.Set(ctx, rediskeys.ContactRedirectKey(secondaryID), primaryID, 0)
	pipe.Del(ctx, rediskeys.ContactKey(secondaryID))
	pipe.SRem(ctx, rediskeys.ContactIndexKey(), secondaryID)
	for _, key := range indexKeysFor(secondary) {
		pipe.Set(ctx, key, primaryID, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline for contact retire failed: %w", err)
	}
	return nil
}

// ResolveID follows tombstone redirects to the current canonical id. An id
// with no redirect resolves to itself, stored or not.
func (a *ContactStoreAdapter) ResolveID(ctx context.Context, id string) (string, error) {
	current := id
	for hop := 0; hop < maxRedirectHops; hop++ {
		next, err := a.redisClient.Get(ctx, rediskeys.ContactRedirectKey(current)).Result()
		if errors.Is(err, redis.Nil) {
			return current, nil
		}
		if err != nil {
			return "", fmt.Errorf("redis GET for contact redirect '%s' failed: %w", current, err)
		}
		current = next
	}
	return "", fmt.Errorf("contact redirect chain for '%s' exceeds %d hops", id, maxRedirectHops)
}

func indexKeysFor(contact *domain.UnifiedContact) []string {
	var keys []string
	if contact.Email != "" {
		keys = append(keys, rediskeys.ContactEmailIndexKey(strings.ToLower(contact.Email)))
	}
	if contact.Name != "" {
		keys = append(keys, rediskeys.ContactNameCompanyIndexKey(strings.ToLower(contact.Name), strings.ToLower(contact.Company)))
	}
	return keys
}

func staleIndexKeys(previous, current *domain.UnifiedContact) []string {
	live := map[string]bool{}
	for _, key := range indexKeysFor(current) {
		live[key] = true
	}
	var stale []string
	for _, key := range indexKeysFor(previous) {
		if !live[key] {
			stale = append(stale, key)
		}
	}
	return stale
}

func contactMatches(contact *domain.UnifiedContact, search string) bool {
	return strings.Contains(strings.ToLower(contact.Name), search) ||
		strings.Contains(strings.ToLower(contact.Email), search) ||
		strings.Contains(strings.ToLower(contact.Company), search)
}
