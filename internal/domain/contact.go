package domain

import (
	"sort"
)

// SocialProfile is a per-platform social identity attached to a unified
// contact. Profiles are deduplicated by (platform, username).
type SocialProfile struct {
	Platform  string `json:"platform"`
	Username  string `json:"username"`
	URL       string `json:"url"`
	Followers int64  `json:"followers"`
	Verified  bool   `json:"verified"`
}

// UnifiedContact is the deduplicated identity record aggregating data about
// one real-world person or organization across modules. The ID is stable
// across merges; Tags carry set semantics; Score never decreases on merge.
type UnifiedContact struct {
	ID              string            `json:"id"`
	Source          string            `json:"source"`
	Name            string            `json:"name"`
	Email           string            `json:"email,omitempty"`
	Phone           string            `json:"phone,omitempty"`
	Company         string            `json:"company,omitempty"`
	Title           string            `json:"title,omitempty"`
	SocialProfiles  []SocialProfile   `json:"social_profiles"`
	Tags            []string          `json:"tags"`
	Score           int               `json:"score"`
	LastInteraction string            `json:"last_interaction,omitempty"`
	Metadata        map[string]string `json:"metadata"`
}

// MergeContacts folds secondary into primary under the deterministic merge
// policy and returns the merged record. The result keeps primary's ID.
//
//   - scalar fields: primary wins unless primary's field is empty
//   - social profiles: union by (platform, username); on duplicate key the
//     verified entry wins, else the one with more followers
//   - tags: set union, sorted for determinism
//   - score: max of the two, merging never lowers a score
//   - metadata: shallow merge, primary wins on key collision
//
// Neither input is mutated.
func MergeContacts(primary, secondary UnifiedContact) UnifiedContact {
	merged := primary
	if merged.Name == "" {
		merged.Name = secondary.Name
	}
	if merged.Email == "" {
		merged.Email = secondary.Email
	}
	if merged.Phone == "" {
		merged.Phone = secondary.Phone
	}
	if merged.Company == "" {
		merged.Company = secondary.Company
	}
	if merged.Title == "" {
		merged.Title = secondary.Title
	}
	if merged.LastInteraction == "" {
		merged.LastInteraction = secondary.LastInteraction
	}

	merged.SocialProfiles = mergeProfiles(primary.SocialProfiles, secondary.SocialProfiles)
	merged.Tags = UnionTags(primary.Tags, secondary.Tags)

	if secondary.Score > merged.Score {
		merged.Score = secondary.Score
	}

	merged.Metadata = make(map[string]string, len(primary.Metadata)+len(secondary.Metadata))
	for k, v := range secondary.Metadata {
		merged.Metadata[k] = v
	}
	for k, v := range primary.Metadata {
		merged.Metadata[k] = v
	}

	return merged
}

// UnionTags returns the sorted set union of the two tag lists.
func UnionTags(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, t := range a {
		set[t] = struct{}{}
	}
	for _, t := range b {
		set[t] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func mergeProfiles(primary, secondary []SocialProfile) []SocialProfile {
	type profileKey struct{ platform, username string }
	byKey := make(map[profileKey]SocialProfile, len(primary)+len(secondary))
	order := make([]profileKey, 0, len(primary)+len(secondary))

	add := func(p SocialProfile) {
		k := profileKey{p.Platform, p.Username}
		existing, ok := byKey[k]
		if !ok {
			byKey[k] = p
			order = append(order, k)
			return
		}
		byKey[k] = preferProfile(existing, p)
	}
	for _, p := range primary {
		add(p)
	}
	for _, p := range secondary {
		add(p)
	}

	out := make([]SocialProfile, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

// preferProfile picks between two profiles sharing a (platform, username)
// key: verified beats unverified, then higher follower count.
func preferProfile(a, b SocialProfile) SocialProfile {
	if a.Verified != b.Verified {
		if b.Verified {
			return b
		}
		return a
	}
	if b.Followers > a.Followers {
		return b
	}
	return a
}
