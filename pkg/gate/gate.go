// Package gate implements the execution safety gate: the single
// authoritative point every side effect must clear before an effector
// may run. Grounded on
// original_source/src/exoarmur/safety/safety_gate.py's SafetyGate
// (arbitration precedence: kill switches > policy verification > trust
// floors > threshold rules > default), extended with a missing-
// tenant-context rule checked right after the kill switches and a
// fail-closed recovery that turns any panic into a DENY.
package gate

import (
	"fmt"

	"github.com/slucerodev/admo-core/pkg/audit"
	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/contracts"
)

// Gate evaluates an ExecutionContext and returns a GateVerdict.
type Gate struct {
	log   *audit.Log
	clock clock.Clock
}

// New returns a Gate that audits every evaluation.
func New(log *audit.Log, c clock.Clock) *Gate {
	return &Gate{log: log, clock: c}
}

// Evaluate runs the fixed precedence chain and always returns a
// verdict: any panic inside evaluation is recovered and converted to a
// DENY, so the gate can never fail open.
func (g *Gate) Evaluate(ctx contracts.ExecutionContext) (verdict contracts.GateVerdict) {
	defer func() {
		if r := recover(); r != nil {
			verdict = contracts.GateVerdict{
				Decision:  contracts.GateDeny,
				RuleID:    "SG-ERR",
				Rationale: fmt.Sprintf("gate_internal_error: %v", r),
			}
		}
		g.audit(ctx, verdict)
	}()
	return evaluate(ctx)
}

func evaluate(ctx contracts.ExecutionContext) contracts.GateVerdict {
	if ctx.KillSwitchGlobal {
		return contracts.GateVerdict{
			Decision: contracts.GateDeny, RuleID: "SG-101",
			Rationale: "global kill switch engaged; only A0 observe permitted",
		}
	}
	if ctx.KillSwitchTenant {
		return contracts.GateVerdict{
			Decision: contracts.GateDeny, RuleID: "SG-102",
			Rationale: "tenant kill switch engaged; only A0 observe permitted",
		}
	}
	if ctx.TenantID == "" {
		return contracts.GateVerdict{
			Decision: contracts.GateDeny, RuleID: "SG-000",
			Rationale: "missing tenant context",
		}
	}
	if !ctx.PolicyVerified {
		return contracts.GateVerdict{
			Decision: contracts.GateRequireQuorum, RuleID: "SG-201",
			Rationale: "policy not verified; degrade and require escalation for non-A0",
		}
	}

	action := ctx.ActionClass
	if action == "" {
		action = contracts.ActionA0Observe
	}

	if ctx.TrustScore < 0.35 && (action == contracts.ActionA2HardContainment || action == contracts.ActionA3Irreversible) {
		return contracts.GateVerdict{
			Decision: contracts.GateRequireHuman, RuleID: "SG-301",
			Rationale: "trust too low for A2/A3 execution",
		}
	}
	if ctx.TrustScore < 0.50 && action == contracts.ActionA2HardContainment {
		return contracts.GateVerdict{
			Decision: contracts.GateRequireQuorum, RuleID: "SG-302",
			Rationale: "trust below floor for local A2; require quorum",
		}
	}
	if ctx.TrustScore < 0.80 && action == contracts.ActionA3Irreversible {
		return contracts.GateVerdict{
			Decision: contracts.GateRequireHuman, RuleID: "SG-303",
			Rationale: "trust below floor for local A3; require human approval",
		}
	}

	switch action {
	case contracts.ActionA1SoftContainment:
		if ctx.Confidence >= 0.80 {
			return contracts.GateVerdict{Decision: contracts.GateAllow, RuleID: "SG-401", Rationale: "A1 soft containment: confidence threshold met"}
		}
		return contracts.GateVerdict{Decision: contracts.GateDeny, RuleID: "SG-402", Rationale: "A1 soft containment: confidence threshold not met"}

	case contracts.ActionA2HardContainment:
		if ctx.Confidence >= 0.90 || (ctx.QuorumCount >= 2 && ctx.AggregateScore >= 0.85) {
			return contracts.GateVerdict{Decision: contracts.GateAllow, RuleID: "SG-403", Rationale: "A2 hard containment: local or collective thresholds met"}
		}
		return contracts.GateVerdict{Decision: contracts.GateRequireQuorum, RuleID: "SG-404", Rationale: "A2 hard containment: thresholds not met, require quorum"}

	case contracts.ActionA3Irreversible:
		if ctx.Confidence >= 0.97 && ((ctx.QuorumCount >= 3 && ctx.AggregateScore >= 0.92) || ctx.RequiredApproval == contracts.ApprovalHuman) {
			return contracts.GateVerdict{Decision: contracts.GateAllow, RuleID: "SG-405", Rationale: "A3 irreversible: all thresholds and approvals met"}
		}
		return contracts.GateVerdict{Decision: contracts.GateRequireHuman, RuleID: "SG-406", Rationale: "A3 irreversible: requires human approval or higher thresholds"}

	case contracts.ActionA0Observe:
		return contracts.GateVerdict{Decision: contracts.GateAllow, RuleID: "SG-501", Rationale: "A0 observe: always allowed"}
	}

	return contracts.GateVerdict{Decision: contracts.GateDeny, RuleID: "SG-999", Rationale: "no safety rule matched; default deny"}
}

func (g *Gate) audit(ctx contracts.ExecutionContext, verdict contracts.GateVerdict) {
	kind, ok := eventKinds[verdict.Decision]
	if !ok {
		kind = contracts.EventGateDenied
	}
	_, _ = g.log.Append(contracts.AuditRecord{
		EventKind: kind,
	}, map[string]any{
		"tenant_id":   ctx.TenantID,
		"action_type": string(ctx.ActionClass),
		"decision":    string(verdict.Decision),
		"rule_id":     verdict.RuleID,
		"rationale":   verdict.Rationale,
		"intent_hash": ctx.IntentHash,
	})
}

var eventKinds = map[contracts.GateDecision]contracts.EventKind{
	contracts.GateAllow:         contracts.EventGateAllowed,
	contracts.GateDeny:          contracts.EventGateDenied,
	contracts.GateRequireQuorum: contracts.EventGateRequireQuorum,
	contracts.GateRequireHuman:  contracts.EventGateRequireHuman,
}
