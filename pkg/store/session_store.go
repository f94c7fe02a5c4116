package store

import (
	"sort"
	"sync"
	"time"

	"github.com/slucerodev/admo-core/pkg/contracts"
)

// SessionStore holds HandshakeSession records plus the correlation-ID
// reuse lock described, grounded on
// original_source/src/federation/handshake_state_machine.py's
// _locked_correlation_ids dict with expiry.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]contracts.HandshakeSession // correlation_id -> session
	locks    map[string]time.Time                  // correlation_id -> lock expiry
}

// NewSessionStore returns an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]contracts.HandshakeSession),
		locks:    make(map[string]time.Time),
	}
}

// Create inserts a new session, locking its correlation_id for lockTTL.
// Fails if the correlation_id is currently locked or already has a
// session ("creating a second session with the same ID
// fails").
func (s *SessionStore) Create(sess contracts.HandshakeSession, now time.Time, lockTTL time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, locked := s.locks[sess.CorrelationID]; locked && now.Before(expiry) {
		return ErrDuplicateID
	}
	if _, exists := s.sessions[sess.CorrelationID]; exists {
		return ErrDuplicateID
	}

	s.sessions[sess.CorrelationID] = sess
	s.locks[sess.CorrelationID] = now.Add(lockTTL)
	return nil
}

// Get returns the session for correlationID.
func (s *SessionStore) Get(correlationID string) (contracts.HandshakeSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[correlationID]
	return sess, ok
}

// Update replaces the session's lifecycle fields wholesale; only
// lifecycle fields of HandshakeSession may change post-creation.
func (s *SessionStore) Update(sess contracts.HandshakeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.CorrelationID]; !exists {
		return ErrNotFound
	}
	s.sessions[sess.CorrelationID] = sess
	return nil
}

// CleanupExpiredLocks sweeps correlation-id locks past their TTL,
// idempotent, returns count removed.
func (s *SessionStore) CleanupExpiredLocks(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, expiry := range s.locks {
		if now.After(expiry) {
			delete(s.locks, id)
			removed++
		}
	}
	return removed
}

// CleanupExpiredSessions finds sessions whose ExpiresAt has passed and
// are not yet in a terminal state; returns their correlation ids so the
// caller (handshake controller) can transition them to a timeout
// failure and emit the matching audit event.
func (s *SessionStore) CleanupExpiredSessions(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []string
	for id, sess := range s.sessions {
		if !sess.State.Terminal() && now.After(sess.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	sort.Strings(expired)
	return expired
}

// Statistics returns a count of sessions by state, supplementing
// original_source's get_session_statistics.
func (s *SessionStore) Statistics() map[contracts.HandshakeState]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[contracts.HandshakeState]int)
	for _, sess := range s.sessions {
		out[sess.State]++
	}
	return out
}
