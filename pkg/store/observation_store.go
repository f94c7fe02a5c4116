package store

import (
	"sort"
	"sync"
	"time"

	"github.com/slucerodev/admo-core/pkg/contracts"
)

// ObservationFilter selects a subset of the observation store for
// listing, matching the Visibility API's filters.
type ObservationFilter struct {
	FederateID      string
	CorrelationID   string
	ObservationType contracts.ObservationType
	Since           time.Time
	Limit           int
}

func (f ObservationFilter) matches(o contracts.Observation) bool {
	if f.FederateID != "" && o.SourceFederateID != f.FederateID {
		return false
	}
	if f.CorrelationID != "" && o.CorrelationID != f.CorrelationID {
		return false
	}
	if f.ObservationType != "" && o.ObservationType != f.ObservationType {
		return false
	}
	if !f.Since.IsZero() && o.TimestampUTC.Before(f.Since) {
		return false
	}
	return true
}

// ObservationStore holds Observation records with secondary indexes by
// federate, correlation id, and (federate, nonce) for the unsigned
// ingest path's replay guard.
type ObservationStore struct {
	mu            sync.RWMutex
	byID          map[string]contracts.Observation
	byFederate    map[string]map[string]struct{}
	byCorrelation map[string]map[string]struct{}
	byNonce       map[string]struct{} // federateID + "\x00" + nonce
}

// NewObservationStore returns an empty ObservationStore.
func NewObservationStore() *ObservationStore {
	return &ObservationStore{
		byID:          make(map[string]contracts.Observation),
		byFederate:    make(map[string]map[string]struct{}),
		byCorrelation: make(map[string]map[string]struct{}),
		byNonce:       make(map[string]struct{}),
	}
}

func nonceKey(federateID, nonce string) string { return federateID + "\x00" + nonce }

// NonceSeen reports whether federateID has already submitted an
// observation carrying nonce, the replay guard ingest runs even when a
// message isn't required to carry a cryptographic signature.
func (s *ObservationStore) NonceSeen(federateID, nonce string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byNonce[nonceKey(federateID, nonce)]
	return ok
}

// Insert adds a new Observation; ErrDuplicateID on a repeated
// observation_id, enforcing ingest's dedup-by-id step.
func (s *ObservationStore) Insert(o contracts.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[o.ObservationID]; exists {
		return ErrDuplicateID
	}
	s.byID[o.ObservationID] = o
	index(s.byFederate, o.SourceFederateID, o.ObservationID)
	if o.CorrelationID != "" {
		index(s.byCorrelation, o.CorrelationID, o.ObservationID)
	}
	if o.Nonce != "" {
		s.byNonce[nonceKey(o.SourceFederateID, o.Nonce)] = struct{}{}
	}
	return nil
}

// Get returns the observation for id.
func (s *ObservationStore) Get(id string) (contracts.Observation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[id]
	return o, ok
}

// Exists reports whether id is present, used to validate that a
// belief's source_observations all resolve to real observations.
func (s *ObservationStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// List returns observations matching filter sorted by (timestamp, id)
// ascending's total-order listing guarantee.
func (s *ObservationStore) List(filter ObservationFilter) []contracts.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids map[string]struct{}
	switch {
	case filter.FederateID != "":
		ids = s.byFederate[filter.FederateID]
	case filter.CorrelationID != "":
		ids = s.byCorrelation[filter.CorrelationID]
	}

	var out []contracts.Observation
	if ids != nil {
		for id := range ids {
			if o, ok := s.byID[id]; ok && filter.matches(o) {
				out = append(out, o)
			}
		}
	} else {
		for _, o := range s.byID {
			if filter.matches(o) {
				out = append(out, o)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].TimestampUTC.Equal(out[j].TimestampUTC) {
			return out[i].TimestampUTC.Before(out[j].TimestampUTC)
		}
		return out[i].ObservationID < out[j].ObservationID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func index(m map[string]map[string]struct{}, key, id string) {
	bucket, ok := m[key]
	if !ok {
		bucket = make(map[string]struct{})
		m[key] = bucket
	}
	bucket[id] = struct{}{}
}
