package store

import (
	"sort"
	"sync"

	"github.com/slucerodev/admo-core/pkg/contracts"
)

// ApprovalFilter selects approvals for listing.
type ApprovalFilter struct {
	Status     contracts.ApprovalStatus
	ActionType contracts.ActionClass
	TenantID   string
	Limit      int
}

func (f ApprovalFilter) matches(a contracts.Approval) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.ActionType != "" && a.ActionType != f.ActionType {
		return false
	}
	if f.TenantID != "" && a.TenantID != f.TenantID {
		return false
	}
	return true
}

// ApprovalStore holds Approval records indexed by intent_hash: an
// Approval binds a human operator's consent to exactly one intent hash.
type ApprovalStore struct {
	mu         sync.RWMutex
	byID       map[string]contracts.Approval
	byIntentHash map[string]string // intent_hash -> approval_id
}

// NewApprovalStore returns an empty ApprovalStore.
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{
		byID:         make(map[string]contracts.Approval),
		byIntentHash: make(map[string]string),
	}
}

// Insert adds a new Approval; fails if intent_hash already has one, since
// an intent_hash maps to at most one Approval.
func (s *ApprovalStore) Insert(a contracts.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[a.ApprovalID]; exists {
		return ErrDuplicateID
	}
	if _, exists := s.byIntentHash[a.IntentHash]; exists {
		return ErrDuplicateID
	}
	s.byID[a.ApprovalID] = a
	s.byIntentHash[a.IntentHash] = a.ApprovalID
	return nil
}

// Decide transitions a pending Approval to approved/denied/expired,
// refusing to mutate an already-terminal one ("Once decided,
// status is terminal.").
func (s *ApprovalStore) Decide(a contracts.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.byID[a.ApprovalID]
	if !exists {
		return ErrNotFound
	}
	if existing.Status != contracts.ApprovalPending {
		return ErrConflict
	}
	s.byID[a.ApprovalID] = a
	return nil
}

// Get returns the approval for id.
func (s *ApprovalStore) Get(id string) (contracts.Approval, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	return a, ok
}

// ByIntentHash returns the approval bound to an intent hash, if any.
func (s *ApprovalStore) ByIntentHash(hash string) (contracts.Approval, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byIntentHash[hash]
	if !ok {
		return contracts.Approval{}, false
	}
	a, ok := s.byID[id]
	return a, ok
}

// List returns approvals matching filter sorted by (created_at, id).
func (s *ApprovalStore) List(filter ApprovalFilter) []contracts.Approval {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []contracts.Approval
	for _, a := range s.byID {
		if filter.matches(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ApprovalID < out[j].ApprovalID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}
