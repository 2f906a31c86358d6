package application

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

func newTestContactService() (*ContactService, *memContactStore, *memLockManager) {
	store := newMemContactStore()
	locks := newMemLockManager()
	return NewContactService(nopLogger{}, store, locks, time.Second), store, locks
}

func TestUpsertCreatesNewContact(t *testing.T) {
	svc, _, _ := newTestContactService()
	ctx := context.Background()

	contact, err := svc.Upsert(ctx, domain.UnifiedContact{
		Source: "crm", Name: "Ada Lovelace", Email: "ada@example.com", Score: 30,
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if contact.ID == "" {
		t.Error("new contact should have an assigned id")
	}
	if contact.Score != 30 {
		t.Errorf("new contact keeps the partial's score, got %d", contact.Score)
	}

	_, err = svc.Upsert(ctx, domain.UnifiedContact{Source: "crm"})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("a partial with neither name nor email should be a ValidationError, got %v", err)
	}
}

func TestUpsertMergesByEmail(t *testing.T) {
	svc, _, _ := newTestContactService()
	ctx := context.Background()

	first, err := svc.Upsert(ctx, domain.UnifiedContact{
		Source: "crm", Name: "Ada Lovelace", Email: "ada@example.com",
		Company: "Analytical Engines", Score: 50, Tags: []string{"vip"},
	})
	if err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}

	merged, err := svc.Upsert(ctx, domain.UnifiedContact{
		Source: "social", Name: "A. Lovelace", Email: "ada@example.com",
		Phone: "+44 1", Score: 20, Tags: []string{"influencer", "vip"},
	})
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	if merged.ID != first.ID {
		t.Errorf("merge must keep the existing contact's id, got %s want %s", merged.ID, first.ID)
	}
	if merged.Name != "Ada Lovelace" {
		t.Errorf("existing scalar wins on merge, got name %q", merged.Name)
	}
	if merged.Phone != "+44 1" {
		t.Errorf("empty scalar is filled from the incoming partial, got %q", merged.Phone)
	}
	if merged.Score != 50 {
		t.Errorf("score never decreases on merge, got %d", merged.Score)
	}
	if want := []string{"influencer", "vip"}; !reflect.DeepEqual(merged.Tags, want) {
		t.Errorf("tags should be the sorted set union, got %v", merged.Tags)
	}
}

func TestUpsertMergesByNameCompany(t *testing.T) {
	svc, _, _ := newTestContactService()
	ctx := context.Background()

	first, err := svc.Upsert(ctx, domain.UnifiedContact{
		Source: "research", Name: "Grace Hopper", Company: "Navy", Score: 10,
	})
	if err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}

	merged, err := svc.Upsert(ctx, domain.UnifiedContact{
		Source: "crm", Name: "Grace Hopper", Company: "Navy",
		Email: "grace@example.com", Score: 80,
	})
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if merged.ID != first.ID {
		t.Error("matching (name, company) should merge, not create a duplicate")
	}
	if merged.Email != "grace@example.com" || merged.Score != 80 {
		t.Errorf("merge should lift the new email and the higher score: %+v", merged)
	}
}

func TestUpsertScoreAsymmetry(t *testing.T) {
	svc, _, _ := newTestContactService()
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, domain.UnifiedContact{
		Source: "crm", Email: "x@example.com", Score: 90,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	merged, err := svc.Upsert(ctx, domain.UnifiedContact{
		Source: "social", Email: "x@example.com", Score: 10,
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if merged.Score != 90 {
		t.Errorf("a lower incoming score must not lower the contact, got %d", merged.Score)
	}
}

func TestExplicitMergeRetiresSecondary(t *testing.T) {
	svc, store, _ := newTestContactService()
	ctx := context.Background()

	primary, err := svc.Upsert(ctx, domain.UnifiedContact{
		Source: "crm", Name: "Ada Lovelace", Email: "ada@example.com", Score: 40,
	})
	if err != nil {
		t.Fatalf("Upsert primary failed: %v", err)
	}
	secondary, err := svc.Upsert(ctx, domain.UnifiedContact{
		Source: "social", Name: "countess_ada", Email: "ada@social.example", Score: 70,
		SocialProfiles: []domain.SocialProfile{{Platform: "x", Username: "ada", Followers: 5000}},
	})
	if err != nil {
		t.Fatalf("Upsert secondary failed: %v", err)
	}

	merged, err := svc.Merge(ctx, primary.ID, secondary.ID)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if merged.ID != primary.ID {
		t.Errorf("merged contact keeps the primary id, got %s", merged.ID)
	}
	if merged.Score != 70 {
		t.Errorf("merge lifts the secondary's higher score, got %d", merged.Score)
	}
	if len(merged.SocialProfiles) != 1 {
		t.Errorf("secondary's social profiles should carry over: %+v", merged.SocialProfiles)
	}

	// The retired id keeps resolving via the tombstone redirect.
	resolved, err := svc.Get(ctx, secondary.ID)
	if err != nil {
		t.Fatalf("lookup by retired id failed: %v", err)
	}
	if resolved.ID != primary.ID {
		t.Errorf("retired id should redirect to the primary, got %s", resolved.ID)
	}

	if _, err := store.Get(ctx, secondary.ID); !errors.Is(err, domain.ErrContactNotFound) {
		t.Error("the secondary record itself should be retired")
	}
}

func TestMergeSameContactIsNoop(t *testing.T) {
	svc, _, _ := newTestContactService()
	ctx := context.Background()

	contact, err := svc.Upsert(ctx, domain.UnifiedContact{Source: "crm", Email: "a@b.co", Name: "A"})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	merged, err := svc.Merge(ctx, contact.ID, contact.ID)
	if err != nil {
		t.Fatalf("self merge should succeed: %v", err)
	}
	if merged.ID != contact.ID {
		t.Errorf("self merge returns the contact unchanged, got %s", merged.ID)
	}
}

func TestUpsertRetriesContactLock(t *testing.T) {
	store := newMemContactStore()
	locks := newMemLockManager()
	locks.denyFirst = 2
	svc := NewContactService(nopLogger{}, store, locks, time.Second)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, domain.UnifiedContact{Source: "crm", Email: "a@b.co", Name: "A"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	// Second upsert hits the existing contact and needs the lock; the first
	// two acquisition attempts are denied.
	if _, err := svc.Upsert(ctx, domain.UnifiedContact{Source: "social", Email: "a@b.co", Name: "A2"}); err != nil {
		t.Fatalf("Upsert should succeed after lock retries: %v", err)
	}
	if locks.acquireAttempts < 3 {
		t.Errorf("expected at least 3 lock attempts, got %d", locks.acquireAttempts)
	}
}

func TestUpsertFromRecordFieldRouting(t *testing.T) {
	svc, _, _ := newTestContactService()
	ctx := context.Background()

	contact, err := svc.UpsertFromRecord(ctx, "crm", map[string]any{
		"name":       "Ada",
		"email":      "ada@example.com",
		"company":    "Analytical Engines",
		"score":      float64(55),
		"tags":       []any{"vip", "engineering"},
		"deal_stage": "negotiation",
	})
	if err != nil {
		t.Fatalf("UpsertFromRecord failed: %v", err)
	}
	if contact.Name != "Ada" || contact.Email != "ada@example.com" || contact.Score != 55 {
		t.Errorf("known fields not routed: %+v", contact)
	}
	if want := []string{"engineering", "vip"}; !reflect.DeepEqual(contact.Tags, want) {
		t.Errorf("tags = %v, want %v", contact.Tags, want)
	}
	if contact.Metadata["deal_stage"] != "negotiation" {
		t.Errorf("unrecognized fields should land in metadata, got %v", contact.Metadata)
	}
}
