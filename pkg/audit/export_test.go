package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slucerodev/admo-core/pkg/contracts"
)

func TestExporter_GeneratePack(t *testing.T) {
	l := newTestLog()
	_, err := l.Append(contracts.AuditRecord{EventKind: contracts.EventHandshakeStarted, TenantID: "tenant-a"}, map[string]any{"k": "v"})
	require.NoError(t, err)

	exp := NewExporter(l)
	zipBytes, pack, err := exp.GeneratePack(time.Unix(1700000100, 0).UTC(), ExportRequest{TenantID: "tenant-a"})
	require.NoError(t, err)
	require.NotEmpty(t, zipBytes)
	require.Equal(t, 1, pack.RecordCount)
	require.NotEmpty(t, pack.ChainHead)
	require.NotEmpty(t, pack.Checksum)
}

func TestExporter_GeneratePack_RequiresTenant(t *testing.T) {
	exp := NewExporter(newTestLog())
	_, _, err := exp.GeneratePack(time.Now(), ExportRequest{})
	require.ErrorIs(t, err, ErrEmptyTenantID)
}

func TestExporter_GeneratePack_RejectsInvertedRange(t *testing.T) {
	exp := NewExporter(newTestLog())
	start := time.Unix(2000, 0)
	end := time.Unix(1000, 0)
	_, _, err := exp.GeneratePack(time.Now(), ExportRequest{TenantID: "t", StartTime: start, EndTime: end})
	require.ErrorIs(t, err, ErrInvalidTimeRange)
}
