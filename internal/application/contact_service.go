package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gitlab.com/cubelite/api/integration-engine/internal/adapters/metrics"
	"gitlab.com/cubelite/api/integration-engine/internal/domain"
	"gitlab.com/cubelite/api/integration-engine/pkg/rediskeys"
)

const (
	maxContactLockRetries     = 3
	contactLockRetryDelayMs   = 50
	defaultContactLockTTLSecs = 10
)

// ContactService is the identity-resolution component: it deduplicates and
// merges cross-module identities into unified contacts. All writes to one
// contact are serialized under a per-contact lock so concurrent rule
// actions cannot race the merge policy into a lost update.
type ContactService struct {
	logger  domain.Logger
	store   domain.ContactStore
	locks   domain.ContactLockManager
	lockTTL time.Duration
}

// NewContactService constructs a ContactService. A zero lockTTL falls back
// to the default.
func NewContactService(logger domain.Logger, store domain.ContactStore, locks domain.ContactLockManager, lockTTL time.Duration) *ContactService {
	if lockTTL <= 0 {
		lockTTL = defaultContactLockTTLSecs * time.Second
	}
	return &ContactService{
		logger:  logger,
		store:   store,
		locks:   locks,
		lockTTL: lockTTL,
	}
}

// Upsert creates or merges a unified contact. Matching is by email first,
// then by (name, company). A new contact keeps the partial's score (zero
// when absent); an existing contact is merged with itself as primary, so
// its established fields win and its score never decreases.
func (s *ContactService) Upsert(ctx context.Context, partial domain.UnifiedContact) (*domain.UnifiedContact, error) {
	if partial.Name == "" && partial.Email == "" {
		return nil, &domain.ValidationError{Field: "contact", Reason: "at least one of name or email is required"}
	}
	partial.Tags = domain.UnionTags(partial.Tags, nil)

	existing, err := s.findExisting(ctx, partial)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		if partial.ID == "" {
			partial.ID = "uc_" + uuid.NewString()
		}
		if partial.Metadata == nil {
			partial.Metadata = map[string]string{}
		}
		if err := s.store.Save(ctx, &partial); err != nil {
			return nil, err
		}
		s.logger.Info(ctx, "Unified contact created",
			"contact_id", partial.ID, "source", partial.Source)
		return &partial, nil
	}

	var merged domain.UnifiedContact
	err = s.withContactLock(ctx, existing.ID, func() error {
		// Re-read under the lock: another writer may have merged since the
		// index lookup.
		current, err := s.Get(ctx, existing.ID)
		if err != nil {
			return err
		}
		merged = domain.MergeContacts(*current, partial)
		return s.store.Save(ctx, &merged)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncrementContactsMerged()
	s.logger.Debug(ctx, "Unified contact merged via upsert",
		"contact_id", merged.ID, "score", merged.Score)
	return &merged, nil
}

// Merge explicitly folds secondary into primary. The secondary identity is
// retired, not deleted: its id becomes a redirect so in-flight events
// referencing it keep resolving to the merged record.
func (s *ContactService) Merge(ctx context.Context, primaryID, secondaryID string) (*domain.UnifiedContact, error) {
	primaryID, err := s.store.ResolveID(ctx, primaryID)
	if err != nil {
		return nil, err
	}
	secondaryID, err = s.store.ResolveID(ctx, secondaryID)
	if err != nil {
		return nil, err
	}
	if primaryID == secondaryID {
		return s.store.Get(ctx, primaryID)
	}

	// Lock both contacts in deterministic order to avoid deadlocks between
	// concurrent merges of the same pair.
	first, second := primaryID, secondaryID
	if second < first {
		first, second = second, first
	}

	var merged *domain.UnifiedContact
	err = s.withContactLock(ctx, first, func() error {
		return s.withContactLock(ctx, second, func() error {
			primary, err := s.store.Get(ctx, primaryID)
			if err != nil {
				return err
			}
			secondary, err := s.store.Get(ctx, secondaryID)
			if err != nil {
				return err
			}
			m := domain.MergeContacts(*primary, *secondary)
			if err := s.store.Save(ctx, &m); err != nil {
				return err
			}
			if err := s.store.Retire(ctx, secondaryID, primaryID); err != nil {
				return err
			}
			merged = &m
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	metrics.IncrementContactsMerged()
	s.logger.Info(ctx, "Unified contacts merged",
		"primary_id", primaryID, "secondary_id", secondaryID, "score", merged.Score)
	return merged, nil
}

// Get returns a contact by id, following tombstone redirects left by
// merges.
func (s *ContactService) Get(ctx context.Context, id string) (*domain.UnifiedContact, error) {
	canonical, err := s.store.ResolveID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, canonical)
}

// List returns contacts filtered by a case-insensitive search over name,
// email and company.
func (s *ContactService) List(ctx context.Context, limit int, search string) ([]*domain.UnifiedContact, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.store.List(ctx, limit, search)
}

// UpsertFromRecord builds a partial contact from a mapped or raw event
// record and upserts it. Unrecognized record fields land in metadata.
func (s *ContactService) UpsertFromRecord(ctx context.Context, source string, record map[string]any) (*domain.UnifiedContact, error) {
	partial := domain.UnifiedContact{Source: source, Metadata: map[string]string{}}
	for key, value := range record {
		switch key {
		case "name":
			partial.Name = stringify(value)
		case "email":
			partial.Email = stringify(value)
		case "phone":
			partial.Phone = stringify(value)
		case "company":
			partial.Company = stringify(value)
		case "title":
			partial.Title = stringify(value)
		case "score":
			if f, ok := toFloat(value); ok {
				partial.Score = int(f)
			}
		case "tags":
			switch tags := value.(type) {
			case []string:
				partial.Tags = tags
			case []any:
				for _, t := range tags {
					partial.Tags = append(partial.Tags, stringify(t))
				}
			}
		case "last_interaction":
			partial.LastInteraction = stringify(value)
		default:
			partial.Metadata[key] = stringify(value)
		}
	}
	return s.Upsert(ctx, partial)
}

func (s *ContactService) findExisting(ctx context.Context, partial domain.UnifiedContact) (*domain.UnifiedContact, error) {
	if partial.Email != "" {
		contact, err := s.store.FindByEmail(ctx, partial.Email)
		if err == nil {
			return contact, nil
		}
		if !errors.Is(err, domain.ErrContactNotFound) {
			return nil, err
		}
	}
	if partial.Name != "" && partial.Company != "" {
		contact, err := s.store.FindByNameCompany(ctx, partial.Name, partial.Company)
		if err == nil {
			return contact, nil
		}
		if !errors.Is(err, domain.ErrContactNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// withContactLock acquires the per-contact writer lock with bounded
// retries, runs fn, and releases. Lock contention past the retry budget
// surfaces as an error rather than blocking indefinitely.
func (s *ContactService) withContactLock(ctx context.Context, contactID string, fn func() error) error {
	key := rediskeys.ContactLockKey(contactID)
	owner := uuid.NewString()

	acquired := false
	for attempt := 0; attempt <= maxContactLockRetries; attempt++ {
		ok, err := s.locks.AcquireLock(ctx, key, owner, s.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire contact lock for %s: %w", contactID, err)
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(contactLockRetryDelayMs * time.Millisecond):
		}
	}
	if !acquired {
		return fmt.Errorf("contact %s is locked by another writer", contactID)
	}

	defer func() {
		if _, err := s.locks.ReleaseLock(context.WithoutCancel(ctx), key, owner); err != nil {
			s.logger.Warn(ctx, "Failed to release contact lock",
				"contact_id", contactID, "error", err.Error())
		}
	}()
	return fn()
}
