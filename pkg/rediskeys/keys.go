package rediskeys

import (
	"fmt"

	"gitlab.com/cubelite/api/integration-engine/pkg/crypto"
)

// EventLogKey is the Redis list holding the serialized event log, newest
// first.
func EventLogKey() string {
	return "integration:events:log"
}

// EventSequenceKey is the Redis counter backing monotonic event sequence
// assignment.
func EventSequenceKey() string {
	return "integration:events:seq"
}

// EventKey generates the Redis key for one stored event.
func EventKey(eventID string) string {
	return fmt.Sprintf("integration:event:%s", eventID)
}

// RuleKey generates the Redis key for one integration rule.
func RuleKey(ruleID string) string {
	return fmt.Sprintf("integration:rule:%s", ruleID)
}

// RuleIndexKey is the Redis set of all rule ids.
func RuleIndexKey() string {
	return "integration:rules"
}

// MappingKey generates the Redis key for one data mapping.
func MappingKey(mappingID string) string {
	return fmt.Sprintf("integration:mapping:%s", mappingID)
}

// MappingIndexKey is the Redis set of all mapping ids.
func MappingIndexKey() string {
	return "integration:mappings"
}

// MappingPairKey indexes a mapping by its (source, target) module pair.
func MappingPairKey(sourceModule, targetModule string) string {
	return fmt.Sprintf("integration:mapping_pair:%s:%s", sourceModule, targetModule)
}

// ContactKey generates the Redis key for one unified contact.
func ContactKey(contactID string) string {
	return fmt.Sprintf("integration:contact:%s", contactID)
}

// ContactIndexKey is the Redis set of all live (non-retired) contact ids.
func ContactIndexKey() string {
	return "integration:contacts"
}

// ContactEmailIndexKey indexes a contact id by email. The email is hashed
// so arbitrary input cannot produce oversized or malformed keys.
func ContactEmailIndexKey(email string) string {
	return fmt.Sprintf("integration:contact_email:%s", crypto.Sha256Hex(email))
}

// ContactNameCompanyIndexKey indexes a contact id by the (name, company)
// fallback identity.
func ContactNameCompanyIndexKey(name, company string) string {
	return fmt.Sprintf("integration:contact_nc:%s", crypto.Sha256Hex(name+"\x00"+company))
}

// ContactRedirectKey holds the tombstone redirect left when a contact is
// merged away: old id -> canonical id.
func ContactRedirectKey(contactID string) string {
	return fmt.Sprintf("integration:contact_redirect:%s", contactID)
}

// ContactLockKey is the per-contact writer lock.
func ContactLockKey(contactID string) string {
	return fmt.Sprintf("integration:contact_lock:%s", contactID)
}

// SyncStatusKey generates the Redis key for one module's sync status.
func SyncStatusKey(module string) string {
	return fmt.Sprintf("integration:sync:%s", module)
}

// SyncErrorsKey is the bounded per-module error ring.
func SyncErrorsKey(module string) string {
	return fmt.Sprintf("integration:sync_errors:%s", module)
}
