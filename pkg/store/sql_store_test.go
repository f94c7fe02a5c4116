package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/slucerodev/admo-core/pkg/contracts"
)

func TestSQLAuditStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewSQLAuditStore(db)
	rec := contracts.AuditRecord{
		AuditID:       "audit-1",
		EventKind:     contracts.EventHandshakeStarted,
		RecordedAt:    time.Unix(1700000000, 0).UTC(),
		CorrelationID: "corr-1",
		Hashes:        contracts.AuditHashes{SHA256: "deadbeef"},
	}

	mock.ExpectExec("INSERT INTO audit_records").
		WithArgs(rec.AuditID, int64(1), string(rec.EventKind), rec.RecordedAt,
			rec.CorrelationID, rec.TraceID, rec.Hashes.SHA256, "[]", "{}").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = s.Append(context.Background(), rec, 1, "[]", "{}")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLAuditStore_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewSQLAuditStore(db)
	mock.ExpectQuery("SELECT audit_id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, _, err = s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
