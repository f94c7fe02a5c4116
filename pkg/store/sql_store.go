package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/slucerodev/admo-core/pkg/contracts"
)

// SQLAuditStore persists AuditRecord rows via database/sql, portable
// across Postgres (lib/pq) and embedded SQLite (modernc.org/sqlite) —
// the durable sink behind the in-memory hash chain (the in-memory
// stores themselves stay volatile). Adapted from
// pkg/store/ledger/sql_ledger.go's plain database/sql repository shape.
type SQLAuditStore struct {
	db *sql.DB
}

// NewSQLAuditStore wraps an already-opened *sql.DB.
func NewSQLAuditStore(db *sql.DB) *SQLAuditStore {
	return &SQLAuditStore{db: db}
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_records (
	audit_id TEXT PRIMARY KEY,
	sequence INTEGER UNIQUE,
	event_kind TEXT,
	recorded_at TIMESTAMP,
	correlation_id TEXT,
	trace_id TEXT,
	sha256 TEXT,
	upstream_hashes TEXT,
	payload_json TEXT
);
`

// Init creates the audit_records table if absent.
func (s *SQLAuditStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, auditSchema)
	return err
}

// Append inserts one AuditRecord at sequence, propagating a
// unique-sequence violation to the caller ("sequence is
// gap-free and strictly increasing"). upstreamHashesJSON and
// payloadJSON are pre-serialized by the caller (pkg/audit), which owns
// canonical-JSON encoding.
func (s *SQLAuditStore) Append(ctx context.Context, rec contracts.AuditRecord, sequence int64, upstreamHashesJSON, payloadJSON string) error {
	query := `
		INSERT INTO audit_records
			(audit_id, sequence, event_kind, recorded_at, correlation_id, trace_id, sha256, upstream_hashes, payload_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.AuditID, sequence, string(rec.EventKind), rec.RecordedAt,
		rec.CorrelationID, rec.TraceID, rec.Hashes.SHA256, upstreamHashesJSON, payloadJSON,
	)
	return err
}

// Get returns the audit record and its raw payload JSON for id.
func (s *SQLAuditStore) Get(ctx context.Context, id string) (contracts.AuditRecord, string, error) {
	query := `
		SELECT audit_id, event_kind, recorded_at, correlation_id, trace_id, sha256, payload_json
		FROM audit_records WHERE audit_id = $1
	`
	row := s.db.QueryRowContext(ctx, query, id)

	var rec contracts.AuditRecord
	var eventKind, payloadJSON string
	err := row.Scan(&rec.AuditID, &eventKind, &rec.RecordedAt,
		&rec.CorrelationID, &rec.TraceID, &rec.Hashes.SHA256, &payloadJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contracts.AuditRecord{}, "", ErrNotFound
		}
		return contracts.AuditRecord{}, "", err
	}
	rec.EventKind = contracts.EventKind(eventKind)
	return rec, payloadJSON, nil
}

// Tail returns the most recent n records ordered by sequence descending.
// No component in this module calls it.
func (s *SQLAuditStore) Tail(ctx context.Context, n int) ([]contracts.AuditRecord, error) {
	query := `
		SELECT audit_id, event_kind, recorded_at, correlation_id, trace_id, sha256
		FROM audit_records ORDER BY sequence DESC LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.AuditRecord
	for rows.Next() {
		var rec contracts.AuditRecord
		var eventKind string
		if err := rows.Scan(&rec.AuditID, &eventKind, &rec.RecordedAt,
			&rec.CorrelationID, &rec.TraceID, &rec.Hashes.SHA256); err != nil {
			return nil, err
		}
		rec.EventKind = contracts.EventKind(eventKind)
		out = append(out, rec)
	}
	return out, rows.Err()
}
