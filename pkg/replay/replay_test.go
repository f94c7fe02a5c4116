package replay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/store"
)

func payload(t *testing.T, v any) map[string]any {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestReduce_ObservationAccepted_InsertsObservation(t *testing.T) {
	obs := contracts.Observation{
		ObservationID:    "obs-1",
		SourceFederateID: "cell-a",
		TimestampUTC:     time.Unix(1700000000, 0).UTC(),
		ObservationType:  contracts.ObsSystemHealth,
		SchemaVersion:    "v1",
	}
	records := []contracts.AuditRecord{
		{AuditID: "a1", EventKind: contracts.EventObservationAccepted, Payload: payload(t, obs)},
	}

	snap, errs := Reduce(records)
	require.Empty(t, errs)
	got, ok := snap.Observations.Get("obs-1")
	require.True(t, ok)
	require.Equal(t, "cell-a", got.SourceFederateID)
}

func TestReduce_DuplicateObservation_IsTolerated(t *testing.T) {
	obs := contracts.Observation{ObservationID: "obs-1", SourceFederateID: "cell-a", SchemaVersion: "v1"}
	records := []contracts.AuditRecord{
		{AuditID: "a1", EventKind: contracts.EventObservationAccepted, Payload: payload(t, obs)},
		{AuditID: "a2", EventKind: contracts.EventObservationAccepted, Payload: payload(t, obs)},
	}

	snap, errs := Reduce(records)
	require.Empty(t, errs)
	_, ok := snap.Observations.Get("obs-1")
	require.True(t, ok)
}

func TestReduce_BeliefDerived_Overwrites(t *testing.T) {
	b1 := contracts.Belief{BeliefID: "bel-1", Confidence: 0.5, SchemaVersion: "v1"}
	b2 := contracts.Belief{BeliefID: "bel-1", Confidence: 0.9, SchemaVersion: "v1"}
	records := []contracts.AuditRecord{
		{AuditID: "a1", EventKind: contracts.EventBeliefDerived, Payload: payload(t, b1)},
		{AuditID: "a2", EventKind: contracts.EventBeliefDerived, Payload: payload(t, b2)},
	}

	snap, errs := Reduce(records)
	require.Empty(t, errs)
	got, ok := snap.Beliefs.Get("bel-1")
	require.True(t, ok)
	require.Equal(t, 0.9, got.Confidence)
}

func TestReduce_ArbitrationLifecycle(t *testing.T) {
	arb := contracts.Arbitration{
		ArbitrationID: "arb-1",
		Status:        contracts.ArbitrationOpen,
		ConflictKey:   "ck-1",
		SchemaVersion: "v1",
	}
	resolved := arb
	resolved.Status = contracts.ArbitrationResolved

	records := []contracts.AuditRecord{
		{AuditID: "a1", EventKind: contracts.EventArbitrationCreated, Payload: payload(t, arb)},
		{AuditID: "a2", EventKind: contracts.EventArbitrationResolved, Payload: payload(t, resolved)},
	}

	snap, errs := Reduce(records)
	require.Empty(t, errs)
	got, ok := snap.Arbitrations.Get("arb-1")
	require.True(t, ok)
	require.Equal(t, contracts.ArbitrationResolved, got.Status)
}

func TestReduce_ArbitrationUpdateWithoutCreate_IsReportedNotFatal(t *testing.T) {
	resolved := contracts.Arbitration{ArbitrationID: "arb-missing", Status: contracts.ArbitrationResolved, SchemaVersion: "v1"}
	records := []contracts.AuditRecord{
		{AuditID: "a1", EventKind: contracts.EventArbitrationResolved, Payload: payload(t, resolved)},
	}

	snap, errs := Reduce(records)
	require.Len(t, errs, 1)
	_, ok := snap.Arbitrations.Get("arb-missing")
	require.False(t, ok)
}

func TestReduce_ApprovalDecided_InsertsWhenAbsent(t *testing.T) {
	decided := time.Unix(1700000100, 0).UTC()
	approval := contracts.Approval{
		ApprovalID: "appr-1",
		Status:     contracts.ApprovalApproved,
		IntentHash: "hash-1",
		DecidedAt:  &decided,
		SchemaVersion: "v1",
	}
	records := []contracts.AuditRecord{
		{AuditID: "a1", EventKind: contracts.EventApprovalDecided, Payload: payload(t, approval)},
	}

	snap, errs := Reduce(records)
	require.Empty(t, errs)
	got, ok := snap.Approvals.Get("appr-1")
	require.True(t, ok)
	require.Equal(t, contracts.ApprovalApproved, got.Status)
}

func TestReduce_IdentityContainmentApplyThenRevert(t *testing.T) {
	applied := contracts.AppliedRecord{
		Key:           "subj-1:provider-a:network",
		SubjectID:     "subj-1",
		Provider:      "provider-a",
		ScopeType:     "network",
		IntentID:      "intent-1",
		ExpiresAtUTC:  time.Unix(1700003600, 0).UTC(),
		SchemaVersion: "v1",
	}
	reverted := contracts.RevertedRecord{
		Key:           applied.Key,
		SubjectID:     applied.SubjectID,
		Provider:      applied.Provider,
		ScopeType:     applied.ScopeType,
		IntentID:      applied.IntentID,
		Reason:        "ttl_expired",
		RevertedAtUTC: time.Unix(1700003600, 0).UTC(),
		SchemaVersion: "v1",
	}
	records := []contracts.AuditRecord{
		{AuditID: "a1", EventKind: contracts.EventIdentityContainmentApplied, Payload: payload(t, applied)},
		{AuditID: "a2", EventKind: contracts.EventIdentityContainmentReverted, Payload: payload(t, reverted)},
	}

	snap, errs := Reduce(records)
	require.Empty(t, errs)
	_, ok := snap.Applied.Get(applied.Key)
	require.False(t, ok)
	history := snap.Applied.RevertedHistory()
	require.Len(t, history, 1)
	require.Equal(t, "ttl_expired", history[0].Reason)
}

func TestReduce_HandshakeCreatedThenTransitioned(t *testing.T) {
	created := time.Unix(1700000000, 0).UTC()
	sess := contracts.HandshakeSession{
		CorrelationID: "corr-1",
		FederateID:    "cell-b",
		State:         contracts.StateUninitialized,
		CreatedAt:     created,
		UpdatedAt:     created,
		SchemaVersion: "v1",
	}
	advanced := sess
	advanced.State = contracts.StateIdentityExchange
	advanced.UpdatedAt = created.Add(time.Second)

	records := []contracts.AuditRecord{
		{AuditID: "a1", EventKind: contracts.EventHandshakeStarted, Payload: payload(t, sess)},
		{AuditID: "a2", EventKind: contracts.EventHandshakeTransition, Payload: payload(t, advanced)},
	}

	snap, errs := Reduce(records)
	require.Empty(t, errs)
	got, ok := snap.Sessions.Get("corr-1")
	require.True(t, ok)
	require.Equal(t, contracts.StateIdentityExchange, got.State)
}

func TestReduce_UnknownAuditOnlyEventKind_IsSkippedSilently(t *testing.T) {
	records := []contracts.AuditRecord{
		{AuditID: "a1", EventKind: contracts.EventGateAllowed, Payload: map[string]any{"arbitration_id": "arb-1"}},
		{AuditID: "a2", EventKind: contracts.EventFeatureDisabled, Payload: map[string]any{"flag": "v2_beliefs"}},
	}

	snap, errs := Reduce(records)
	require.Empty(t, errs)
	require.Empty(t, snap.Arbitrations.List(store.ArbitrationFilter{}))
}

func TestReduce_MalformedPayload_IsReportedAndSkipped(t *testing.T) {
	records := []contracts.AuditRecord{
		{AuditID: "a1", EventKind: contracts.EventObservationAccepted, Payload: map[string]any{
			"observation_id": "obs-1",
			// confidence must decode as a float64; a slice value forces an
			// unmarshal error so the malformed-record path is exercised.
			"confidence": []string{"not", "a", "number"},
		}},
		{AuditID: "a2", EventKind: contracts.EventObservationAccepted, Payload: payload(t, contracts.Observation{
			ObservationID: "obs-2", SourceFederateID: "cell-a", SchemaVersion: "v1",
		})},
	}

	snap, errs := Reduce(records)
	require.Len(t, errs, 1)
	_, ok := snap.Observations.Get("obs-1")
	require.False(t, ok)
	_, ok = snap.Observations.Get("obs-2")
	require.True(t, ok)
}

func TestReduce_EmptyLog_YieldsEmptySnapshot(t *testing.T) {
	snap, errs := Reduce(nil)
	require.Empty(t, errs)
	require.Empty(t, snap.Observations.List(store.ObservationFilter{}))
}
