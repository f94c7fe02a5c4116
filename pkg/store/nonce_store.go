package store

import (
	"sync"
	"time"

	"github.com/slucerodev/admo-core/pkg/contracts"
)

// NonceStore tracks single-use nonces partitioned per federate,
// allowing independent sweep. It implements crypto.NonceGuard.
type NonceStore struct {
	mu  sync.Mutex
	byF map[string]map[string]contracts.NonceRecord // federateID -> nonce -> record
	ttl time.Duration
}

// NewNonceStore returns a NonceStore with the given default TTL.
func NewNonceStore(ttl time.Duration) *NonceStore {
	return &NonceStore{
		byF: make(map[string]map[string]contracts.NonceRecord),
		ttl: ttl,
	}
}

// Available implements crypto.NonceGuard.
func (s *NonceStore) Available(federateID, nonce string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recordLocked(federateID, nonce)
	if !ok {
		return true
	}
	return rec.Available(federateID, now)
}

// MarkUsed implements crypto.NonceGuard: the single commit point that
// mutates nonce state. Irreversible until expiry.
func (s *NonceStore) MarkUsed(federateID, nonce string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recordLocked(federateID, nonce)
	if ok && !rec.Available(federateID, now) {
		return ErrDuplicateID
	}

	bucket, ok := s.byF[federateID]
	if !ok {
		bucket = make(map[string]contracts.NonceRecord)
		s.byF[federateID] = bucket
	}
	bucket[nonce] = contracts.NonceRecord{
		Nonce:         nonce,
		FederateID:    federateID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
		Used:          true,
		SchemaVersion: contracts.SchemaVersion,
	}
	return nil
}

func (s *NonceStore) recordLocked(federateID, nonce string) (contracts.NonceRecord, bool) {
	bucket, ok := s.byF[federateID]
	if !ok {
		return contracts.NonceRecord{}, false
	}
	rec, ok := bucket[nonce]
	return rec, ok
}

// CleanupExpired removes nonce records whose ExpiresAt is before now,
// per federate. Idempotent; returns the count removed.
func (s *NonceStore) CleanupExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for fed, bucket := range s.byF {
		for nonce, rec := range bucket {
			if now.After(rec.ExpiresAt) {
				delete(bucket, nonce)
				removed++
			}
		}
		if len(bucket) == 0 {
			delete(s.byF, fed)
		}
	}
	return removed
}
