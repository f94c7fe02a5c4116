package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/idgen"
)

func newTestLog() *Log {
	return New(idgen.NewFactory(), clock.NewFake(time.Unix(1700000000, 0)))
}

func TestLog_Append_AssignsSequenceAndChains(t *testing.T) {
	l := newTestLog()

	r1, err := l.Append(contracts.AuditRecord{EventKind: contracts.EventHandshakeStarted, CorrelationID: "corr-1"}, map[string]any{"a": 1})
	require.NoError(t, err)
	r2, err := l.Append(contracts.AuditRecord{EventKind: contracts.EventHandshakeConfirmed, CorrelationID: "corr-1"}, map[string]any{"a": 2})
	require.NoError(t, err)

	require.NotEmpty(t, r1.Hashes.SHA256)
	require.NotEmpty(t, r2.Hashes.SHA256)
	require.Contains(t, r2.Hashes.UpstreamHashes, r1.Hashes.SHA256)
	require.EqualValues(t, 2, l.Sequence())
}

func TestLog_Verify_DetectsTamper(t *testing.T) {
	l := newTestLog()
	rec, err := l.Append(contracts.AuditRecord{EventKind: contracts.EventObservationAccepted}, map[string]any{"x": "y"})
	require.NoError(t, err)
	require.NoError(t, l.Verify())

	tampered := rec
	tampered.Payload = map[string]any{"x": "tampered"}
	l.records[0] = tampered
	l.byID[tampered.AuditID] = tampered

	require.ErrorIs(t, l.Verify(), ErrChainBroken)
}

func TestLog_Query_FiltersByCorrelation(t *testing.T) {
	l := newTestLog()
	_, err := l.Append(contracts.AuditRecord{EventKind: contracts.EventBeliefDerived, CorrelationID: "corr-a"}, map[string]any{})
	require.NoError(t, err)
	_, err = l.Append(contracts.AuditRecord{EventKind: contracts.EventBeliefDerived, CorrelationID: "corr-b"}, map[string]any{})
	require.NoError(t, err)

	out := l.Query(QueryFilter{CorrelationID: "corr-a"})
	require.Len(t, out, 1)
	require.Equal(t, "corr-a", out[0].CorrelationID)
}

func TestLog_Get_NotFound(t *testing.T) {
	l := newTestLog()
	_, err := l.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
}
