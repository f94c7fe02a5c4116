package containment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slucerodev/admo-core/pkg/approval"
	"github.com/slucerodev/admo-core/pkg/audit"
	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/contracts"
	gatepkg "github.com/slucerodev/admo-core/pkg/gate"
	"github.com/slucerodev/admo-core/pkg/idgen"
	"github.com/slucerodev/admo-core/pkg/store"
)

func newTestService(t *testing.T) (*Service, *approval.Service, *store.IntentStore, *store.AppliedStore, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC))
	log := audit.New(idgen.NewFactory(), fc)
	keys, err := approval.NewInMemoryKeySet()
	require.NoError(t, err)
	approvals := approval.New(store.NewApprovalStore(), keys, idgen.NewFactory(), log, fc)
	g := gatepkg.New(log, fc)
	intents := store.NewIntentStore()
	applied := store.NewAppliedStore()
	s := NewService(intents, applied, approvals, g, NoopEffector{}, idgen.NewFactory(), log, fc)
	return s, approvals, intents, applied, fc
}

func testRecommendation() contracts.IdentityContainmentRecommendation {
	return contracts.IdentityContainmentRecommendation{
		RecommendationID: "rec-1",
		SubjectID:        "alice",
		Scope: contracts.IdentityContainmentScope{
			ScopeID: "scope-sessions-001", ScopeType: "sessions", SeverityLevel: "medium",
			TTLSeconds: 1800, AutoExpire: true, RequiresApproval: true,
			ApprovalLevel: contracts.ApprovalLevelA2, Effectors: []string{"identity_provider"},
		},
	}
}

func TestCreateIntent_RequestsApproval(t *testing.T) {
	s, approvals, _, _, _ := newTestService(t)
	intent, token, err := s.CreateIntent(testRecommendation(), "recommender")
	require.NoError(t, err)
	require.NotEmpty(t, intent.ApprovalID)
	require.NotEmpty(t, token)
	require.Equal(t, contracts.ExecPending, intent.ExecutionStatus)

	approvalRec, ok := approvals.Get(intent.ApprovalID)
	require.True(t, ok)
	require.Equal(t, intent.IntentHash, approvalRec.IntentHash)
}

func TestCreateIntent_Idempotent_SameHashReturnsExisting(t *testing.T) {
	s, _, intents, _, _ := newTestService(t)
	first, _, err := s.CreateIntent(testRecommendation(), "recommender")
	require.NoError(t, err)
	second, _, err := s.CreateIntent(testRecommendation(), "recommender")
	require.NoError(t, err)
	require.Equal(t, first.IntentID, second.IntentID)

	all := intents.List(store.IntentFilter{})
	require.Len(t, all, 1)
}

func TestApply_BlockedWithoutApproval(t *testing.T) {
	s, _, _, _, _ := newTestService(t)
	intent, _, err := s.CreateIntent(testRecommendation(), "recommender")
	require.NoError(t, err)

	_, err = s.Apply(intent.IntentID, 1.0, 0.9)
	require.ErrorIs(t, err, ErrApprovalNotGranted)
}

func TestApply_SucceedsOnceApprovedAndGateAllows(t *testing.T) {
	s, approvals, intents, applied, _ := newTestService(t)
	intent, token, err := s.CreateIntent(testRecommendation(), "recommender")
	require.NoError(t, err)

	_, err = approvals.Decide(token, contracts.ApprovalApproved, "operator-1", "")
	require.NoError(t, err)

	rec, err := s.Apply(intent.IntentID, 1.0, 0.95)
	require.NoError(t, err)
	require.Equal(t, "alice", rec.SubjectID)

	stored, ok := applied.Get(rec.Key)
	require.True(t, ok)
	require.Equal(t, intent.IntentID, stored.IntentID)

	updated, ok := intents.Get(intent.IntentID)
	require.True(t, ok)
	require.Equal(t, contracts.ExecApplied, updated.ExecutionStatus)
}

func TestApply_ExpiredIntent_Denied(t *testing.T) {
	s, approvals, _, _, fc := newTestService(t)
	intent, token, err := s.CreateIntent(testRecommendation(), "recommender")
	require.NoError(t, err)
	_, err = approvals.Decide(token, contracts.ApprovalApproved, "operator-1", "")
	require.NoError(t, err)

	fc.Advance(2 * time.Hour)

	_, err = s.Apply(intent.IntentID, 1.0, 0.95)
	require.ErrorIs(t, err, ErrIntentExpired)
}

func TestRevert_ClosesAppliedWindow(t *testing.T) {
	s, approvals, _, applied, _ := newTestService(t)
	intent, token, err := s.CreateIntent(testRecommendation(), "recommender")
	require.NoError(t, err)
	_, err = approvals.Decide(token, contracts.ApprovalApproved, "operator-1", "")
	require.NoError(t, err)
	rec, err := s.Apply(intent.IntentID, 1.0, 0.95)
	require.NoError(t, err)

	require.NoError(t, s.Revert(intent.IntentID, "operator requested"))

	_, ok := applied.Get(rec.Key)
	require.False(t, ok)
}

func TestTick_AutoRevertsExpiredWindows(t *testing.T) {
	s, approvals, _, applied, fc := newTestService(t)
	intent, token, err := s.CreateIntent(testRecommendation(), "recommender")
	require.NoError(t, err)
	_, err = approvals.Decide(token, contracts.ApprovalApproved, "operator-1", "")
	require.NoError(t, err)
	rec, err := s.Apply(intent.IntentID, 1.0, 0.95)
	require.NoError(t, err)

	fc.Advance(time.Duration(testRecommendation().Scope.TTLSeconds+60) * time.Second)

	reverted := s.Tick()
	require.Equal(t, 1, reverted)

	_, ok := applied.Get(rec.Key)
	require.False(t, ok)
}
