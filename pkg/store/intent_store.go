package store

import (
	"sort"
	"sync"
	"time"

	"github.com/slucerodev/admo-core/pkg/contracts"
)

// IntentFilter selects containment intents for listing.
type IntentFilter struct {
	SubjectID       string
	ExecutionStatus contracts.ExecutionStatus
	Limit           int
}

func (f IntentFilter) matches(i contracts.IdentityContainmentIntent) bool {
	if f.SubjectID != "" && i.SubjectID != f.SubjectID {
		return false
	}
	if f.ExecutionStatus != "" && i.ExecutionStatus != f.ExecutionStatus {
		return false
	}
	return true
}

// IntentStore holds IdentityContainmentIntent records indexed by
// intent_hash (idempotency key: replaying the same intent hash is a
// no-op) and subject_id.
type IntentStore struct {
	mu         sync.RWMutex
	byID       map[string]contracts.IdentityContainmentIntent
	byHash     map[string]string // intent_hash -> intent_id
	bySubject  map[string]map[string]struct{}
}

// NewIntentStore returns an empty IntentStore.
func NewIntentStore() *IntentStore {
	return &IntentStore{
		byID:      make(map[string]contracts.IdentityContainmentIntent),
		byHash:    make(map[string]string),
		bySubject: make(map[string]map[string]struct{}),
	}
}

// Insert adds a new intent; fails on a duplicate intent_id.
func (s *IntentStore) Insert(i contracts.IdentityContainmentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[i.IntentID]; exists {
		return ErrDuplicateID
	}
	s.byID[i.IntentID] = i
	s.byHash[i.IntentHash] = i.IntentID
	index(s.bySubject, i.SubjectID, i.IntentID)
	return nil
}

// Update replaces the execution_status and other lifecycle fields of an
// existing intent.
func (s *IntentStore) Update(i contracts.IdentityContainmentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[i.IntentID]; !exists {
		return ErrNotFound
	}
	s.byID[i.IntentID] = i
	return nil
}

// Get returns the intent for id.
func (s *IntentStore) Get(id string) (contracts.IdentityContainmentIntent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	return i, ok
}

// ByHash returns the intent for a given intent_hash, supporting the
// idempotent replay check
func (s *IntentStore) ByHash(hash string) (contracts.IdentityContainmentIntent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hash]
	if !ok {
		return contracts.IdentityContainmentIntent{}, false
	}
	i, ok := s.byID[id]
	return i, ok
}

// List returns intents matching filter sorted by (created_at, id).
func (s *IntentStore) List(filter IntentFilter) []contracts.IdentityContainmentIntent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.IdentityContainmentIntent
	if filter.SubjectID != "" {
		for id := range s.bySubject[filter.SubjectID] {
			if i, ok := s.byID[id]; ok && filter.matches(i) {
				out = append(out, i)
			}
		}
	} else {
		for _, i := range s.byID {
			if filter.matches(i) {
				out = append(out, i)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAtUTC.Equal(out[j].CreatedAtUTC) {
			return out[i].CreatedAtUTC.Before(out[j].CreatedAtUTC)
		}
		return out[i].IntentID < out[j].IntentID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// AppliedStore holds the durable record of currently-applied containment
// effects, keyed by contracts.AppliedKey(subject, provider, scope_type)
// (auto-revert sweep target).
type AppliedStore struct {
	mu       sync.RWMutex
	byKey    map[string]contracts.AppliedRecord
	reverted []contracts.RevertedRecord
}

// NewAppliedStore returns an empty AppliedStore.
func NewAppliedStore() *AppliedStore {
	return &AppliedStore{byKey: make(map[string]contracts.AppliedRecord)}
}

// Apply records a newly-applied containment effect. Fails if the key is
// already applied: at most one active applied record may exist per
// subject/provider/scope_type.
func (s *AppliedStore) Apply(rec contracts.AppliedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[rec.Key]; exists {
		return ErrDuplicateID
	}
	s.byKey[rec.Key] = rec
	return nil
}

// Get returns the applied record for key.
func (s *AppliedStore) Get(key string) (contracts.AppliedRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byKey[key]
	return rec, ok
}

// Revert removes the applied record for key and appends a RevertedRecord,
// idempotent: a second Revert on an already-absent key is a no-op
// returning false, since reverting twice has no additional effect.
func (s *AppliedStore) Revert(key string, rec contracts.RevertedRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[key]; !exists {
		return false
	}
	delete(s.byKey, key)
	s.reverted = append(s.reverted, rec)
	return true
}

// DueForRevert returns the applied records whose ExpiresAtUTC has
// passed relative to now, sorted by key: the auto-revert sweep's
// candidate set.
func (s *AppliedStore) DueForRevert(now time.Time) []contracts.AppliedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []contracts.AppliedRecord
	for _, rec := range s.byKey {
		if now.After(rec.ExpiresAtUTC) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// RevertedHistory returns all recorded reverts, most recent last.
func (s *AppliedStore) RevertedHistory() []contracts.RevertedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contracts.RevertedRecord, len(s.reverted))
	copy(out, s.reverted)
	return out
}
