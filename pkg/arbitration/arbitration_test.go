package arbitration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slucerodev/admo-core/pkg/approval"
	"github.com/slucerodev/admo-core/pkg/audit"
	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/config"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/idgen"
	"github.com/slucerodev/admo-core/pkg/store"
)

func newService(t *testing.T) (*Service, *store.ArbitrationStore, *approval.Service, *store.BeliefStore, *clock.Fake) {
	t.Helper()
	flags := config.NewFlags()
	flags.Set(config.FeatureArbitration, true)
	arbitrations := store.NewArbitrationStore()
	beliefs := store.NewBeliefStore()
	fc := clock.NewFake(time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC))
	log := audit.New(idgen.NewFactory(), fc)
	keys, err := approval.NewInMemoryKeySet()
	require.NoError(t, err)
	approvals := approval.New(store.NewApprovalStore(), keys, idgen.NewFactory(), log, fc)
	s := New(flags, arbitrations, approvals, beliefs, log, fc)
	return s, arbitrations, approvals, beliefs, fc
}

func baseArbitration() contracts.Arbitration {
	return contracts.Arbitration{
		ArbitrationID: "arb-1",
		ConflictType:  contracts.ConflictConfidenceDispute,
		SubjectKey:    "subject-1",
		ConflictKey:   "conflict-1",
		CorrelationID: "corr-1",
		Claims: []contracts.Claim{
			{BeliefID: "belief-1", ClaimType: "system_health", Confidence: 0.2},
			{BeliefID: "belief-2", ClaimType: "system_health", Confidence: 0.9},
		},
	}
}

// approveVia fetches the pending approval's decision token and decides
// it approved, the same round trip an operator makes.
func approveVia(t *testing.T, approvals *approval.Service, approvalID string) {
	t.Helper()
	rec, ok := approvals.Get(approvalID)
	require.True(t, ok)
	_, err := approvals.Decide(rec.DecisionToken, contracts.ApprovalApproved, "operator-1", "")
	require.NoError(t, err)
}

func TestCreate_FeatureDisabled_Errors(t *testing.T) {
	flags := config.NewFlags()
	fc := clock.NewFake(time.Now())
	log := audit.New(idgen.NewFactory(), fc)
	keys, err := approval.NewInMemoryKeySet()
	require.NoError(t, err)
	approvals := approval.New(store.NewApprovalStore(), keys, idgen.NewFactory(), log, fc)
	s := New(flags, store.NewArbitrationStore(), approvals, store.NewBeliefStore(), log, fc)

	_, err = s.Create(baseArbitration())
	require.ErrorIs(t, err, ErrFeatureDisabled)
}

func TestCreate_MintsApprovalAndStoresArbitration(t *testing.T) {
	s, arbitrations, approvals, _, _ := newService(t)

	arb, err := s.Create(baseArbitration())
	require.NoError(t, err)
	require.Equal(t, contracts.ArbitrationOpen, arb.Status)
	require.NotEmpty(t, arb.ApprovalID)

	stored, ok := arbitrations.Get("arb-1")
	require.True(t, ok)
	require.Equal(t, arb.ApprovalID, stored.ApprovalID)

	approvalRec, ok := approvals.Get(arb.ApprovalID)
	require.True(t, ok)
	require.Equal(t, contracts.ApprovalPending, approvalRec.Status)
	require.Equal(t, contracts.ActionA3Irreversible, approvalRec.ActionType)
	require.NotEmpty(t, approvalRec.DecisionToken)
}

func TestApplyResolution_RequiresApprovalGranted(t *testing.T) {
	s, _, approvals, _, _ := newService(t)

	arb, err := s.Create(baseArbitration())
	require.NoError(t, err)
	_, err = s.ProposeResolution(arb.ArbitrationID, map[string]any{"resolved_confidence": 0.7})
	require.NoError(t, err)

	_, err = s.ApplyResolution(arb.ArbitrationID, "operator-1")
	require.ErrorIs(t, err, ErrApprovalNotGranted)

	approveVia(t, approvals, arb.ApprovalID)

	_, err = s.ApplyResolution(arb.ArbitrationID, "operator-1")
	require.NoError(t, err)
}

func TestApplyResolution_ConfidenceDispute_OverlaysBeliefs(t *testing.T) {
	s, _, approvals, beliefs, _ := newService(t)

	require.NoError(t, beliefs.Insert(contracts.Belief{BeliefID: "belief-1", Confidence: 0.2, DerivedAt: time.Now()}))
	require.NoError(t, beliefs.Insert(contracts.Belief{BeliefID: "belief-2", Confidence: 0.9, DerivedAt: time.Now()}))

	arb, err := s.Create(baseArbitration())
	require.NoError(t, err)
	_, err = s.ProposeResolution(arb.ArbitrationID, map[string]any{"resolved_confidence": 0.6})
	require.NoError(t, err)

	approveVia(t, approvals, arb.ApprovalID)

	resolved, err := s.ApplyResolution(arb.ArbitrationID, "operator-1")
	require.NoError(t, err)
	require.Equal(t, contracts.ArbitrationResolved, resolved.Status)

	b1, _ := beliefs.Get("belief-1")
	b2, _ := beliefs.Get("belief-2")
	require.InDelta(t, 0.6, b1.Confidence, 0.001)
	require.InDelta(t, 0.6, b2.Confidence, 0.001)
	require.Equal(t, "arb-1", b1.Metadata["arbitration_id"])
}

func TestApplyResolution_NoProposedResolution_Errors(t *testing.T) {
	s, _, _, _, _ := newService(t)
	arb, err := s.Create(baseArbitration())
	require.NoError(t, err)

	_, err = s.ApplyResolution(arb.ArbitrationID, "operator-1")
	require.ErrorIs(t, err, ErrNoProposedResolution)
}

func TestReject_ClosesArbitration(t *testing.T) {
	s, arbitrations, _, _, _ := newService(t)
	arb, err := s.Create(baseArbitration())
	require.NoError(t, err)

	rejected, err := s.Reject(arb.ArbitrationID, "operator-1", "insufficient evidence")
	require.NoError(t, err)
	require.Equal(t, contracts.ArbitrationRejected, rejected.Status)
	require.Equal(t, "insufficient evidence", rejected.RejectionReason)

	stored, ok := arbitrations.Get(arb.ArbitrationID)
	require.True(t, ok)
	require.Equal(t, contracts.ArbitrationRejected, stored.Status)
}

func TestReject_AlreadyResolved_Errors(t *testing.T) {
	s, _, approvals, _, _ := newService(t)
	arb, err := s.Create(baseArbitration())
	require.NoError(t, err)
	_, err = s.ProposeResolution(arb.ArbitrationID, map[string]any{"resolved_confidence": 0.6})
	require.NoError(t, err)
	approveVia(t, approvals, arb.ApprovalID)
	_, err = s.ApplyResolution(arb.ArbitrationID, "operator-1")
	require.NoError(t, err)

	_, err = s.Reject(arb.ArbitrationID, "operator-2", "too late")
	require.ErrorIs(t, err, ErrNotOpen)
}

func TestGetAndList(t *testing.T) {
	s, _, _, _, _ := newService(t)
	arb, err := s.Create(baseArbitration())
	require.NoError(t, err)

	got, ok := s.Get(arb.ArbitrationID)
	require.True(t, ok)
	require.Equal(t, arb.ArbitrationID, got.ArbitrationID)

	list := s.List(store.ArbitrationFilter{Status: contracts.ArbitrationOpen})
	require.Len(t, list, 1)
}
