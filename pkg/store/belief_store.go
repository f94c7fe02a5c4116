package store

import (
	"sort"
	"sync"
	"time"

	"github.com/slucerodev/admo-core/pkg/contracts"
)

// BeliefFilter selects beliefs for listing.
type BeliefFilter struct {
	CorrelationID string
	BeliefType    contracts.ObservationType
	Since         time.Time
	Limit         int
}

func (f BeliefFilter) matches(b contracts.Belief) bool {
	if f.CorrelationID != "" && b.CorrelationID != f.CorrelationID {
		return false
	}
	if f.BeliefType != "" && b.BeliefType != f.BeliefType {
		return false
	}
	if !f.Since.IsZero() && b.DerivedAt.Before(f.Since) {
		return false
	}
	return true
}

// BeliefStore holds Belief records keyed by BeliefID, with a
// correlation-id secondary index.
type BeliefStore struct {
	mu            sync.RWMutex
	byID          map[string]contracts.Belief
	byCorrelation map[string]map[string]struct{}
}

// NewBeliefStore returns an empty BeliefStore.
func NewBeliefStore() *BeliefStore {
	return &BeliefStore{
		byID:          make(map[string]contracts.Belief),
		byCorrelation: make(map[string]map[string]struct{}),
	}
}

// Insert adds a new Belief; belief_id must be unique.
func (s *BeliefStore) Insert(b contracts.Belief) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[b.BeliefID]; exists {
		return ErrDuplicateID
	}
	s.byID[b.BeliefID] = b
	if b.CorrelationID != "" {
		index(s.byCorrelation, b.CorrelationID, b.BeliefID)
	}
	return nil
}

// Put overwrites a Belief wholesale — the only sanctioned
// post-publication edit path (arbitration resolution
// overlay via WithResolution).
func (s *BeliefStore) Put(b contracts.Belief) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[b.BeliefID] = b
	if b.CorrelationID != "" {
		index(s.byCorrelation, b.CorrelationID, b.BeliefID)
	}
}

// Get returns the belief for id.
func (s *BeliefStore) Get(id string) (contracts.Belief, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byID[id]
	return b, ok
}

// List returns beliefs matching filter sorted by (derived_at, id).
func (s *BeliefStore) List(filter BeliefFilter) []contracts.Belief {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.Belief
	if filter.CorrelationID != "" {
		for id := range s.byCorrelation[filter.CorrelationID] {
			if b, ok := s.byID[id]; ok && filter.matches(b) {
				out = append(out, b)
			}
		}
	} else {
		for _, b := range s.byID {
			if filter.matches(b) {
				out = append(out, b)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].DerivedAt.Equal(out[j].DerivedAt) {
			return out[i].DerivedAt.Before(out[j].DerivedAt)
		}
		return out[i].BeliefID < out[j].BeliefID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}
