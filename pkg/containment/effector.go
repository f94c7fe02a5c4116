// effector.go implements the intent/apply/revert lifecycle: turning a
// recommendation into a frozen intent, gating every side effect
// through pkg/gate before it runs, and recording what's currently
// applied so the ticker can auto-revert it on TTL expiry. Grounded on
// original_source/src/identity_containment/execution.py's
// IdentityContainmentExecutor (enforce_execution_gate call sites) and
// icw_api.py's intent-from-recommendation flow.
package containment

import (
	"errors"
	"fmt"
	"time"

	"github.com/slucerodev/admo-core/pkg/approval"
	"github.com/slucerodev/admo-core/pkg/audit"
	"github.com/slucerodev/admo-core/pkg/canonicalize"
	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/gate"
	"github.com/slucerodev/admo-core/pkg/idgen"
	"github.com/slucerodev/admo-core/pkg/store"
)

// Errors returned by Service methods.
var (
	ErrIntentNotFound     = errors.New("containment: intent not found")
	ErrIntentNotPending   = errors.New("containment: intent not pending")
	ErrIntentExpired      = errors.New("containment: intent expired")
	ErrApprovalNotGranted = errors.New("containment: approval not granted")
	ErrGateDenied         = errors.New("containment: blocked by execution gate")
)

// Effector applies and reverts one containment scope's side effect.
// The in-memory effector stands in for a real identity-provider/
// API-gateway/token-service call, the same "simulated effector"
// posture as the source's SimulatedIdentityProviderEffector.
type Effector interface {
	Apply(subjectID, provider, scopeType string) error
	Revert(subjectID, provider, scopeType string) error
}

// NoopEffector performs no external call; it exists so the containment
// lifecycle (intent, approval, gate, applied/revert bookkeeping, TTL
// sweep) is fully exercised without a real identity provider wired in.
type NoopEffector struct{}

func (NoopEffector) Apply(string, string, string) error  { return nil }
func (NoopEffector) Revert(string, string, string) error { return nil }

// Service ties the recommender's output to the gated apply/revert
// lifecycle.
type Service struct {
	intents   *store.IntentStore
	applied   *store.AppliedStore
	approvals *approval.Service
	gate      *gate.Gate
	effector  Effector
	ids       *idgen.Factory
	log       *audit.Log
	clock     clock.Clock
}

// NewService returns a Service wired to its stores and collaborators.
func NewService(intents *store.IntentStore, applied *store.AppliedStore, approvals *approval.Service, g *gate.Gate, effector Effector, ids *idgen.Factory, log *audit.Log, c clock.Clock) *Service {
	return &Service{
		intents: intents, applied: applied, approvals: approvals,
		gate: g, effector: effector, ids: ids, log: log, clock: c,
	}
}

// CreateIntent freezes rec into an IdentityContainmentIntent, computes
// its intent_hash, and (since every scope in rules requires approval)
// requests the human approval binding that hash. The returned decision
// token is what gets handed to the human operator who will call
// approval.Service.Decide; the same token is also stored on the
// pending Approval record (DecisionToken) until the approval is
// decided or expires.
func (s *Service) CreateIntent(rec contracts.IdentityContainmentRecommendation, requestedBy string) (contracts.IdentityContainmentIntent, string, error) {
	now := s.clock.Now()
	id, err := s.ids.New(now)
	if err != nil {
		return contracts.IdentityContainmentIntent{}, "", fmt.Errorf("containment: id generation: %w", err)
	}

	intent := contracts.IdentityContainmentIntent{
		IntentID:         "intent_" + id,
		RecommendationID: rec.RecommendationID,
		SubjectID:        rec.SubjectID,
		Scope:            rec.Scope,
		IntentType:       contracts.IntentApply,
		RequestedBy:      requestedBy,
		CreatedAtUTC:     now,
		ExpiresAtUTC:     now.Add(time.Duration(rec.Scope.TTLSeconds) * time.Second),
		ExecutionStatus:  contracts.ExecPending,
		SchemaVersion:    contracts.SchemaVersion,
	}
	hash, err := canonicalize.CanonicalHash(intent.HashableFields())
	if err != nil {
		return contracts.IdentityContainmentIntent{}, "", fmt.Errorf("containment: intent hash: %w", err)
	}
	intent.IntentHash = hash

	if existing, ok := s.intents.ByHash(hash); ok {
		return existing, "", nil
	}

	var token string
	actionClass := approvalActionClass(rec.Scope.ApprovalLevel)
	if rec.Scope.RequiresApproval {
		approvalRec, decisionToken, err := s.approvals.Request(actionClass, rec.SubjectID, "containment:"+intent.IntentID, hash, rationale(intent), time.Duration(rec.Scope.TTLSeconds)*time.Second)
		if err != nil {
			return contracts.IdentityContainmentIntent{}, "", fmt.Errorf("containment: approval request: %w", err)
		}
		intent.ApprovalID = approvalRec.ApprovalID
		token = decisionToken
	}

	if err := s.intents.Insert(intent); err != nil {
		return contracts.IdentityContainmentIntent{}, "", fmt.Errorf("containment: store: %w", err)
	}
	return intent, token, nil
}

// Apply executes an approved, still-pending intent: the gate is the
// single point every side effect clears, checked after approval
// status and expiry but before the effector ever runs.
func (s *Service) Apply(intentID string, trustScore, confidence float64) (contracts.AppliedRecord, error) {
	intent, ok := s.intents.Get(intentID)
	if !ok {
		return contracts.AppliedRecord{}, ErrIntentNotFound
	}
	if intent.ExecutionStatus != contracts.ExecPending {
		return contracts.AppliedRecord{}, ErrIntentNotPending
	}

	now := s.clock.Now()
	if !now.Before(intent.ExpiresAtUTC) {
		intent.ExecutionStatus = contracts.ExecExpired
		_ = s.intents.Update(intent)
		return contracts.AppliedRecord{}, ErrIntentExpired
	}

	if intent.ApprovalID != "" {
		approvalRec, ok := s.approvals.Get(intent.ApprovalID)
		if !ok || approvalRec.Status != contracts.ApprovalApproved || approvalRec.IntentHash != intent.IntentHash {
			return contracts.AppliedRecord{}, ErrApprovalNotGranted
		}
	}

	verdict := s.gate.Evaluate(contracts.ExecutionContext{
		TenantID:       intent.SubjectID,
		ActionClass:    approvalActionClass(intent.Scope.ApprovalLevel),
		Confidence:     confidence,
		TrustScore:     trustScore,
		IntentHash:     intent.IntentHash,
		PolicyVerified: true,
	})
	if verdict.Decision != contracts.GateAllow {
		intent.ExecutionStatus = contracts.ExecDenied
		_ = s.intents.Update(intent)
		return contracts.AppliedRecord{}, fmt.Errorf("%w: %s (%s)", ErrGateDenied, verdict.RuleID, verdict.Rationale)
	}

	if err := s.effector.Apply(intent.SubjectID, providerFromEffectors(intent.Scope.Effectors), intent.Scope.ScopeType); err != nil {
		return contracts.AppliedRecord{}, fmt.Errorf("containment: effector apply: %w", err)
	}

	key := contracts.AppliedKey(intent.SubjectID, providerFromEffectors(intent.Scope.Effectors), intent.Scope.ScopeType)
	rec := contracts.AppliedRecord{
		Key: key, SubjectID: intent.SubjectID, Provider: providerFromEffectors(intent.Scope.Effectors),
		ScopeType: intent.Scope.ScopeType, IntentID: intent.IntentID, ApprovalID: intent.ApprovalID,
		AppliedAtUTC: now, ExpiresAtUTC: intent.ExpiresAtUTC, SchemaVersion: contracts.SchemaVersion,
	}
	if err := s.applied.Apply(rec); err != nil {
		return contracts.AppliedRecord{}, fmt.Errorf("containment: applied store: %w", err)
	}

	intent.ExecutionStatus = contracts.ExecApplied
	_ = s.intents.Update(intent)

	_, _ = s.log.Append(contracts.AuditRecord{EventKind: contracts.EventIdentityContainmentApplied}, map[string]any{
		"intent_id": intent.IntentID, "subject_id": intent.SubjectID,
		"scope_type": intent.Scope.ScopeType, "approval_id": intent.ApprovalID,
	})
	return rec, nil
}

// Revert closes an applied containment window early, for an explicit
// operator-requested revert (the ticker calls revertKey directly for
// TTL-driven auto-reverts).
func (s *Service) Revert(intentID, reason string) error {
	intent, ok := s.intents.Get(intentID)
	if !ok {
		return ErrIntentNotFound
	}
	provider := providerFromEffectors(intent.Scope.Effectors)
	key := contracts.AppliedKey(intent.SubjectID, provider, intent.Scope.ScopeType)
	if !s.revertKey(key, intent.SubjectID, provider, intent.Scope.ScopeType, intent.IntentID, reason) {
		return fmt.Errorf("containment: %s not currently applied", key)
	}

	intent.ExecutionStatus = contracts.ExecReverted
	return s.intents.Update(intent)
}

func (s *Service) revertKey(key, subjectID, provider, scopeType, intentID, reason string) bool {
	if err := s.effector.Revert(subjectID, provider, scopeType); err != nil {
		return false
	}
	now := s.clock.Now()
	ok := s.applied.Revert(key, contracts.RevertedRecord{
		Key: key, SubjectID: subjectID, Provider: provider, ScopeType: scopeType,
		IntentID: intentID, Reason: reason, RevertedAtUTC: now, SchemaVersion: contracts.SchemaVersion,
	})
	if !ok {
		return false
	}
	_, _ = s.log.Append(contracts.AuditRecord{EventKind: contracts.EventIdentityContainmentReverted}, map[string]any{
		"intent_id": intentID, "subject_id": subjectID, "scope_type": scopeType, "reason": reason,
	})
	return true
}

func approvalActionClass(level contracts.ApprovalLevel) contracts.ActionClass {
	switch level {
	case contracts.ApprovalLevelA0:
		return contracts.ActionA0Observe
	case contracts.ApprovalLevelA1:
		return contracts.ActionA1SoftContainment
	case contracts.ApprovalLevelA3:
		return contracts.ActionA3Irreversible
	default:
		return contracts.ActionA2HardContainment
	}
}

func providerFromEffectors(effectors []string) string {
	if len(effectors) == 0 {
		return "unknown"
	}
	return effectors[0]
}

// Rationale renders a human-facing reason for an intent's approval
// request.
func rationale(intent contracts.IdentityContainmentIntent) string {
	return fmt.Sprintf("containment %s for subject %s requires human approval", intent.Scope.ScopeType, intent.SubjectID)
}
