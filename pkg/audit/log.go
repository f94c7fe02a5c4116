// Package audit implements the append-only, hash-chained audit log that
// every subsystem writes to: each AuditRecord is assigned a gap-free
// strictly-increasing sequence number and an entry hash binding
// each record to its predecessor, and the chain can be replayed and
// verified end to end. Adapted from pkg/store/audit_store.go's
// append-only slice + id/hash indexes + sequence counter + chainHead +
// QueryFilter.matches() pattern, generalized to ADMO's AuditRecord
// contract and RFC 8785 canonical-JSON hashing instead of plain
// encoding/json.
package audit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slucerodev/admo-core/pkg/canonicalize"
	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/idgen"
)

var (
	// ErrChainBroken is returned by Verify when a record's stored hash
	// does not match its recomputed hash, or its prev_hash does not
	// match the preceding record's entry hash.
	ErrChainBroken = errors.New("audit: hash chain is broken")
	// ErrNotFound is returned when a record id is unknown.
	ErrNotFound = errors.New("audit: record not found")
)

// genesisHash seeds the chain before any record has been appended.
const genesisHash = "sha256:genesis"

// Log is an append-only, hash-chained audit log.
type Log struct {
	mu        sync.RWMutex
	ids       *idgen.Factory
	clock     clock.Clock
	records   []contracts.AuditRecord
	byID      map[string]contracts.AuditRecord
	byCorr    map[string][]string
	sequence  int64
	chainHead string
}

// New returns an empty Log.
func New(ids *idgen.Factory, c clock.Clock) *Log {
	return &Log{
		ids:       ids,
		clock:     c,
		byID:      make(map[string]contracts.AuditRecord),
		byCorr:    make(map[string][]string),
		chainHead: genesisHash,
	}
}

// Append assigns a sequence number, chains, and stores rec. rec.AuditID
// (if empty), RecordedAt (if zero), TraceID (if empty), Payload, Hashes,
// and SchemaVersion are populated here; callers set everything else
// ("the log computes the entry hash, callers never do").
func (l *Log) Append(rec contracts.AuditRecord, payload map[string]any) (contracts.AuditRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = now
	}
	if rec.AuditID == "" {
		id, err := l.ids.New(now)
		if err != nil {
			return contracts.AuditRecord{}, fmt.Errorf("audit: id generation: %w", err)
		}
		rec.AuditID = id
	}
	if rec.TraceID == "" {
		rec.TraceID = uuid.NewString()
	}
	rec.Payload = payload
	rec.SchemaVersion = contracts.SchemaVersion

	payloadHash, err := canonicalize.CanonicalHash(payload)
	if err != nil {
		return contracts.AuditRecord{}, fmt.Errorf("audit: payload hash: %w", err)
	}

	l.sequence++
	entryHash, err := l.computeEntryHash(rec, payloadHash, l.chainHead, l.sequence)
	if err != nil {
		l.sequence--
		return contracts.AuditRecord{}, fmt.Errorf("audit: entry hash: %w", err)
	}

	rec.Hashes = contracts.AuditHashes{
		SHA256:         entryHash,
		UpstreamHashes: []string{l.chainHead, payloadHash},
	}

	l.chainHead = entryHash
	l.records = append(l.records, rec)
	l.byID[rec.AuditID] = rec
	if rec.CorrelationID != "" {
		l.byCorr[rec.CorrelationID] = append(l.byCorr[rec.CorrelationID], rec.AuditID)
	}
	return rec, nil
}

func (l *Log) computeEntryHash(rec contracts.AuditRecord, payloadHash, prevHash string, seq int64) (string, error) {
	hashable := map[string]any{
		"sequence":       seq,
		"recorded_at":    contracts.RFC3339UTC(rec.RecordedAt),
		"event_kind":     string(rec.EventKind),
		"tenant_id":      rec.TenantID,
		"cell_id":        rec.CellID,
		"correlation_id": rec.CorrelationID,
		"payload_hash":   payloadHash,
		"prev_hash":      prevHash,
	}
	return canonicalize.CanonicalHash(hashable)
}

// Get returns the record for id.
func (l *Log) Get(id string) (contracts.AuditRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.byID[id]
	if !ok {
		return contracts.AuditRecord{}, ErrNotFound
	}
	return rec, nil
}

// ChainHead returns the current chain head hash.
func (l *Log) ChainHead() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chainHead
}

// Sequence returns the current sequence number.
func (l *Log) Sequence() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sequence
}

// QueryFilter selects a subset of the log for Query, backing the
// visibility API's listing filters.
type QueryFilter struct {
	EventKind     contracts.EventKind
	CorrelationID string
	TenantID      string
	Since         time.Time
	Until         time.Time
	Limit         int
}

func (f QueryFilter) matches(r contracts.AuditRecord) bool {
	if f.EventKind != "" && r.EventKind != f.EventKind {
		return false
	}
	if f.CorrelationID != "" && r.CorrelationID != f.CorrelationID {
		return false
	}
	if f.TenantID != "" && r.TenantID != f.TenantID {
		return false
	}
	if !f.Since.IsZero() && r.RecordedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.RecordedAt.After(f.Until) {
		return false
	}
	return true
}

// Query returns records matching filter in append order.
func (l *Log) Query(filter QueryFilter) []contracts.AuditRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []contracts.AuditRecord
	for _, r := range l.records {
		if filter.matches(r) {
			out = append(out, r)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				break
			}
		}
	}
	return out
}

// Verify walks the full chain recomputing each entry hash, proving
// hash-chain integrity end to end.
func (l *Log) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prev := genesisHash
	for i, rec := range l.records {
		payloadHash, err := canonicalize.CanonicalHash(rec.Payload)
		if err != nil {
			return fmt.Errorf("%w: record %d payload hash: %v", ErrChainBroken, i, err)
		}
		computed, err := l.computeEntryHash(rec, payloadHash, prev, int64(i+1))
		if err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrChainBroken, i, err)
		}
		if computed != rec.Hashes.SHA256 {
			return fmt.Errorf("%w: record %d (%s) hash mismatch", ErrChainBroken, i, rec.AuditID)
		}
		prev = rec.Hashes.SHA256
	}
	return nil
}
