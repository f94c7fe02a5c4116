package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slucerodev/admo-core/pkg/audit"
	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/idgen"
)

func newGate(t *testing.T) *Gate {
	t.Helper()
	fc := clock.NewFake(time.Unix(1700000000, 0))
	return New(audit.New(idgen.NewFactory(), fc), fc)
}

func baseCtx() contracts.ExecutionContext {
	return contracts.ExecutionContext{
		TenantID:       "tenant-a",
		ActionClass:    contracts.ActionA0Observe,
		PolicyVerified: true,
		TrustScore:     1.0,
	}
}

func TestEvaluate_GlobalKillSwitch_Denies(t *testing.T) {
	g := newGate(t)
	ctx := baseCtx()
	ctx.KillSwitchGlobal = true
	v := g.Evaluate(ctx)
	require.Equal(t, contracts.GateDeny, v.Decision)
	require.Equal(t, "SG-101", v.RuleID)
}

func TestEvaluate_TenantKillSwitch_Denies(t *testing.T) {
	g := newGate(t)
	ctx := baseCtx()
	ctx.KillSwitchTenant = true
	v := g.Evaluate(ctx)
	require.Equal(t, contracts.GateDeny, v.Decision)
	require.Equal(t, "SG-102", v.RuleID)
}

func TestEvaluate_MissingTenant_Denies(t *testing.T) {
	g := newGate(t)
	ctx := baseCtx()
	ctx.TenantID = ""
	v := g.Evaluate(ctx)
	require.Equal(t, contracts.GateDeny, v.Decision)
	require.Equal(t, "SG-000", v.RuleID)
}

func TestEvaluate_PolicyNotVerified_RequiresQuorum(t *testing.T) {
	g := newGate(t)
	ctx := baseCtx()
	ctx.PolicyVerified = false
	v := g.Evaluate(ctx)
	require.Equal(t, contracts.GateRequireQuorum, v.Decision)
	require.Equal(t, "SG-201", v.RuleID)
}

func TestEvaluate_LowTrust_A2_RequiresHuman(t *testing.T) {
	g := newGate(t)
	ctx := baseCtx()
	ctx.ActionClass = contracts.ActionA2HardContainment
	ctx.TrustScore = 0.2
	v := g.Evaluate(ctx)
	require.Equal(t, contracts.GateRequireHuman, v.Decision)
	require.Equal(t, "SG-301", v.RuleID)
}

func TestEvaluate_ModerateTrust_A2_RequiresQuorum(t *testing.T) {
	g := newGate(t)
	ctx := baseCtx()
	ctx.ActionClass = contracts.ActionA2HardContainment
	ctx.TrustScore = 0.45
	v := g.Evaluate(ctx)
	require.Equal(t, contracts.GateRequireQuorum, v.Decision)
	require.Equal(t, "SG-302", v.RuleID)
}

func TestEvaluate_LowTrust_A3_RequiresHuman(t *testing.T) {
	g := newGate(t)
	ctx := baseCtx()
	ctx.ActionClass = contracts.ActionA3Irreversible
	ctx.TrustScore = 0.7
	v := g.Evaluate(ctx)
	require.Equal(t, contracts.GateRequireHuman, v.Decision)
	require.Equal(t, "SG-303", v.RuleID)
}

func TestEvaluate_A1_ConfidenceMet_Allows(t *testing.T) {
	g := newGate(t)
	ctx := baseCtx()
	ctx.ActionClass = contracts.ActionA1SoftContainment
	ctx.Confidence = 0.85
	v := g.Evaluate(ctx)
	require.Equal(t, contracts.GateAllow, v.Decision)
	require.Equal(t, "SG-401", v.RuleID)
}

func TestEvaluate_A1_ConfidenceNotMet_Denies(t *testing.T) {
	g := newGate(t)
	ctx := baseCtx()
	ctx.ActionClass = contracts.ActionA1SoftContainment
	ctx.Confidence = 0.5
	v := g.Evaluate(ctx)
	require.Equal(t, contracts.GateDeny, v.Decision)
	require.Equal(t, "SG-402", v.RuleID)
}

func TestEvaluate_A2_CollectiveThresholdMet_Allows(t *testing.T) {
	g := newGate(t)
	ctx := baseCtx()
	ctx.ActionClass = contracts.ActionA2HardContainment
	ctx.Confidence = 0.5
	ctx.QuorumCount = 2
	ctx.AggregateScore = 0.9
	v := g.Evaluate(ctx)
	require.Equal(t, contracts.GateAllow, v.Decision)
	require.Equal(t, "SG-403", v.RuleID)
}

func TestEvaluate_A2_ThresholdNotMet_RequiresQuorum(t *testing.T) {
	g := newGate(t)
	ctx := baseCtx()
	ctx.ActionClass = contracts.ActionA2HardContainment
	ctx.Confidence = 0.5
	v := g.Evaluate(ctx)
	require.Equal(t, contracts.GateRequireQuorum, v.Decision)
	require.Equal(t, "SG-404", v.RuleID)
}

func TestEvaluate_A3_AllThresholdsMet_Allows(t *testing.T) {
	g := newGate(t)
	ctx := baseCtx()
	ctx.ActionClass = contracts.ActionA3Irreversible
	ctx.Confidence = 0.98
	ctx.QuorumCount = 3
	ctx.AggregateScore = 0.95
	v := g.Evaluate(ctx)
	require.Equal(t, contracts.GateAllow, v.Decision)
	require.Equal(t, "SG-405", v.RuleID)
}

func TestEvaluate_A3_HumanApprovalSubstitutesForQuorum(t *testing.T) {
	g := newGate(t)
	ctx := baseCtx()
	ctx.ActionClass = contracts.ActionA3Irreversible
	ctx.Confidence = 0.98
	ctx.RequiredApproval = contracts.ApprovalHuman
	v := g.Evaluate(ctx)
	require.Equal(t, contracts.GateAllow, v.Decision)
	require.Equal(t, "SG-405", v.RuleID)
}

func TestEvaluate_A3_ThresholdsNotMet_RequiresHuman(t *testing.T) {
	g := newGate(t)
	ctx := baseCtx()
	ctx.ActionClass = contracts.ActionA3Irreversible
	ctx.Confidence = 0.5
	v := g.Evaluate(ctx)
	require.Equal(t, contracts.GateRequireHuman, v.Decision)
	require.Equal(t, "SG-406", v.RuleID)
}

func TestEvaluate_A0_AlwaysAllows(t *testing.T) {
	g := newGate(t)
	v := g.Evaluate(baseCtx())
	require.Equal(t, contracts.GateAllow, v.Decision)
	require.Equal(t, "SG-501", v.RuleID)
}

func TestEvaluate_KillSwitchTakesPrecedenceOverEverything(t *testing.T) {
	g := newGate(t)
	ctx := baseCtx()
	ctx.ActionClass = contracts.ActionA3Irreversible
	ctx.Confidence = 1.0
	ctx.TrustScore = 1.0
	ctx.QuorumCount = 10
	ctx.AggregateScore = 1.0
	ctx.KillSwitchGlobal = true
	v := g.Evaluate(ctx)
	require.Equal(t, contracts.GateDeny, v.Decision)
	require.Equal(t, "SG-101", v.RuleID)
}
