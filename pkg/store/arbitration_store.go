package store

import (
	"sort"
	"sync"

	"github.com/slucerodev/admo-core/pkg/contracts"
)

// ArbitrationFilter selects arbitrations for listing.
type ArbitrationFilter struct {
	Status        contracts.ArbitrationStatus
	ConflictType  contracts.ConflictType
	CorrelationID string
	Limit         int
}

func (f ArbitrationFilter) matches(a contracts.Arbitration) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.ConflictType != "" && a.ConflictType != f.ConflictType {
		return false
	}
	if f.CorrelationID != "" && a.CorrelationID != f.CorrelationID {
		return false
	}
	return true
}

// ArbitrationStore holds Arbitration records, indexed by conflict_key.
type ArbitrationStore struct {
	mu         sync.RWMutex
	byID       map[string]contracts.Arbitration
	byConflict map[string]string // conflict_key -> arbitration_id (one open arbitration per key)
}

// NewArbitrationStore returns an empty ArbitrationStore.
func NewArbitrationStore() *ArbitrationStore {
	return &ArbitrationStore{
		byID:       make(map[string]contracts.Arbitration),
		byConflict: make(map[string]string),
	}
}

// Insert adds a new Arbitration; arbitration_id must be unique.
func (s *ArbitrationStore) Insert(a contracts.Arbitration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[a.ArbitrationID]; exists {
		return ErrDuplicateID
	}
	s.byID[a.ArbitrationID] = a
	s.byConflict[a.ConflictKey] = a.ArbitrationID
	return nil
}

// Update replaces the lifecycle fields of an existing Arbitration;
// those fields may change post-creation.
func (s *ArbitrationStore) Update(a contracts.Arbitration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[a.ArbitrationID]; !exists {
		return ErrNotFound
	}
	s.byID[a.ArbitrationID] = a
	return nil
}

// Get returns the arbitration for id.
func (s *ArbitrationStore) Get(id string) (contracts.Arbitration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	return a, ok
}

// ByConflictKey returns the open arbitration for a conflict key, if any.
func (s *ArbitrationStore) ByConflictKey(key string) (contracts.Arbitration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byConflict[key]
	if !ok {
		return contracts.Arbitration{}, false
	}
	a, ok := s.byID[id]
	return a, ok
}

// List returns arbitrations matching filter sorted by (created_at, id).
func (s *ArbitrationStore) List(filter ArbitrationFilter) []contracts.Arbitration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []contracts.Arbitration
	for _, a := range s.byID {
		if filter.matches(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAtUTC.Equal(out[j].CreatedAtUTC) {
			return out[i].CreatedAtUTC.Before(out[j].CreatedAtUTC)
		}
		return out[i].ArbitrationID < out[j].ArbitrationID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}
