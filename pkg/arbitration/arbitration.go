// Package arbitration implements the lifecycle of an open conflict:
// creation (which mints the human approval it requires by default),
// resolution proposal, application (gated on that approval being
// granted), and rejection. Grounded on
// original_source/src/exoarmur/federation/arbitration_service.py's
// ArbitrationService, with the mocked approval integration
// ("integrate with ApprovalService" TODOs in that file) replaced by a
// real dependency on pkg/approval.Service, and the per-conflict-type
// belief overlay functions replaced by contracts.Belief.WithResolution.
package arbitration

import (
	"errors"
	"fmt"
	"time"

	"github.com/slucerodev/admo-core/pkg/approval"
	"github.com/slucerodev/admo-core/pkg/audit"
	"github.com/slucerodev/admo-core/pkg/canonicalize"
	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/config"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/store"
)

// Errors returned by Service methods; each is also audited before
// being returned, so a caller only needs to branch on err for control
// flow.
var (
	ErrFeatureDisabled    = errors.New("arbitration: feature disabled")
	ErrNotFound           = errors.New("arbitration: not found")
	ErrNotOpen            = errors.New("arbitration: not open")
	ErrNoProposedResolution = errors.New("arbitration: no proposed resolution")
	ErrApprovalNotGranted = errors.New("arbitration: approval not granted")
)

// defaultApprovalTTL is how long an arbitration's human approval
// request stays pending before the approval service's expiry sweep
// transitions it to expired.
const defaultApprovalTTL = 24 * time.Hour

// Service manages the open-conflict lifecycle.
type Service struct {
	flags        *config.Flags
	arbitrations *store.ArbitrationStore
	approvals    *approval.Service
	beliefs      *store.BeliefStore
	log          *audit.Log
	clock        clock.Clock
}

// New returns a Service wired to its stores and the approval service
// that mints and decides the human approval every arbitration requires.
func New(flags *config.Flags, arbitrations *store.ArbitrationStore, approvals *approval.Service, beliefs *store.BeliefStore, log *audit.Log, c clock.Clock) *Service {
	return &Service{
		flags:        flags,
		arbitrations: arbitrations,
		approvals:    approvals,
		beliefs:      beliefs,
		log:          log,
		clock:        c,
	}
}

// Create stores arb, mints the human approval request it requires by
// default (arbitration is always A3: irreversible until a human
// accepts or rejects the proposed resolution), and audits the
// creation.
func (s *Service) Create(arb contracts.Arbitration) (contracts.Arbitration, error) {
	if !s.flags.Enabled(config.FeatureArbitration) {
		return contracts.Arbitration{}, ErrFeatureDisabled
	}

	now := s.clock.Now()
	arb.CreatedAtUTC = now
	arb.Status = contracts.ArbitrationOpen
	arb.SchemaVersion = contracts.SchemaVersion

	if err := s.arbitrations.Insert(arb); err != nil {
		return contracts.Arbitration{}, fmt.Errorf("arbitration: store: %w", err)
	}

	approvalRec, err := s.requestApproval(arb, now)
	if err != nil {
		return contracts.Arbitration{}, fmt.Errorf("arbitration: approval request: %w", err)
	}
	arb.ApprovalID = approvalRec.ApprovalID
	if err := s.arbitrations.Update(arb); err != nil {
		return contracts.Arbitration{}, fmt.Errorf("arbitration: store update: %w", err)
	}

	s.audit(contracts.EventArbitrationCreated, arb, map[string]any{
		"conflict_type": string(arb.ConflictType),
		"subject_key":   arb.SubjectKey,
		"conflict_key":  arb.ConflictKey,
		"approval_id":   arb.ApprovalID,
		"num_claims":    len(arb.Claims),
	})
	return arb, nil
}

// ProposeResolution attaches a proposed resolution to an open
// arbitration.
func (s *Service) ProposeResolution(arbitrationID string, resolution map[string]any) (contracts.Arbitration, error) {
	if !s.flags.Enabled(config.FeatureArbitration) {
		return contracts.Arbitration{}, ErrFeatureDisabled
	}

	arb, ok := s.arbitrations.Get(arbitrationID)
	if !ok {
		return contracts.Arbitration{}, ErrNotFound
	}
	if arb.Status != contracts.ArbitrationOpen {
		return contracts.Arbitration{}, ErrNotOpen
	}

	arb.ProposedResolution = resolution
	if err := s.arbitrations.Update(arb); err != nil {
		return contracts.Arbitration{}, fmt.Errorf("arbitration: store update: %w", err)
	}

	s.audit(contracts.EventArbitrationResolutionProposed, arb, map[string]any{
		"resolution_type": stringField(resolution, "type"),
		"proposed_by":     stringField(resolution, "proposed_by"),
	})
	return arb, nil
}

// ApplyResolution applies the proposed resolution to the beliefs named
// by the arbitration's claims, but only once the arbitration's
// approval has been granted.
func (s *Service) ApplyResolution(arbitrationID, resolverFederateID string) (contracts.Arbitration, error) {
	if !s.flags.Enabled(config.FeatureArbitration) {
		return contracts.Arbitration{}, ErrFeatureDisabled
	}

	arb, ok := s.arbitrations.Get(arbitrationID)
	if !ok {
		return contracts.Arbitration{}, ErrNotFound
	}
	if arb.Status != contracts.ArbitrationOpen {
		return contracts.Arbitration{}, ErrNotOpen
	}
	if arb.ProposedResolution == nil {
		return contracts.Arbitration{}, ErrNoProposedResolution
	}

	approval, ok := s.approvals.Get(arb.ApprovalID)
	if !ok || approval.Status != contracts.ApprovalApproved {
		return contracts.Arbitration{}, ErrApprovalNotGranted
	}

	if err := s.applyResolutionToBeliefs(arb); err != nil {
		return contracts.Arbitration{}, fmt.Errorf("arbitration: apply resolution: %w", err)
	}

	now := s.clock.Now()
	arb.Status = contracts.ArbitrationResolved
	arb.Decision = arb.ProposedResolution
	arb.ResolvedAtUTC = &now
	arb.ResolverFederateID = resolverFederateID

	if err := s.arbitrations.Update(arb); err != nil {
		return contracts.Arbitration{}, fmt.Errorf("arbitration: store update: %w", err)
	}

	s.audit(contracts.EventArbitrationResolved, arb, map[string]any{
		"resolver_federate_id": resolverFederateID,
	})
	return arb, nil
}

// Reject closes an open arbitration without applying any resolution.
func (s *Service) Reject(arbitrationID, resolverFederateID, reason string) (contracts.Arbitration, error) {
	if !s.flags.Enabled(config.FeatureArbitration) {
		return contracts.Arbitration{}, ErrFeatureDisabled
	}

	arb, ok := s.arbitrations.Get(arbitrationID)
	if !ok {
		return contracts.Arbitration{}, ErrNotFound
	}
	if arb.Status != contracts.ArbitrationOpen {
		return contracts.Arbitration{}, ErrNotOpen
	}

	now := s.clock.Now()
	arb.Status = contracts.ArbitrationRejected
	arb.ResolvedAtUTC = &now
	arb.ResolverFederateID = resolverFederateID
	arb.RejectionReason = reason
	arb.Decision = map[string]any{"rejected": true, "reason": reason}

	if err := s.arbitrations.Update(arb); err != nil {
		return contracts.Arbitration{}, fmt.Errorf("arbitration: store update: %w", err)
	}

	s.audit(contracts.EventArbitrationRejected, arb, map[string]any{
		"resolver_federate_id": resolverFederateID,
		"reason":               reason,
	})
	return arb, nil
}

// Get returns the arbitration for id.
func (s *Service) Get(id string) (contracts.Arbitration, bool) {
	return s.arbitrations.Get(id)
}

// List returns arbitrations matching filter.
func (s *Service) List(filter store.ArbitrationFilter) []contracts.Arbitration {
	return s.arbitrations.List(filter)
}

// requestApproval mints the A3 human approval an arbitration requires,
// via the same decision-token-binding Request call every other
// approval-gated flow uses; the intent hash binds it to exactly this
// arbitration so the decision token cannot be replayed against a
// different one.
func (s *Service) requestApproval(arb contracts.Arbitration, now time.Time) (contracts.Approval, error) {
	hash, err := canonicalize.CanonicalHash(map[string]any{
		"arbitration_id": arb.ArbitrationID,
		"conflict_key":   arb.ConflictKey,
		"created_at_utc": arb.CreatedAtUTC.UTC().Format(contracts.RFC3339UTC),
	})
	if err != nil {
		return contracts.Approval{}, err
	}

	rationale := fmt.Sprintf("human approval required for %s conflict", arb.ConflictType)
	approvalRec, _, err := s.approvals.Request(contracts.ActionA3Irreversible, "", "arbitration:"+arb.ArbitrationID, hash, rationale, defaultApprovalTTL)
	if err != nil {
		return contracts.Approval{}, err
	}
	return approvalRec, nil
}

// applyResolutionToBeliefs overlays the proposed resolution onto every
// belief named by arb's claims, dispatching by conflict type the same
// way the source's three _apply_*_resolution helpers did.
func (s *Service) applyResolutionToBeliefs(arb contracts.Arbitration) error {
	overlay := map[string]any{}
	switch arb.ConflictType {
	case contracts.ConflictThreatClassification:
		if v, ok := arb.ProposedResolution["resolved_threat_type"]; ok {
			overlay["resolved_threat_type"] = v
		} else {
			return nil
		}
	case contracts.ConflictSystemHealth:
		if v, ok := arb.ProposedResolution["resolved_health_score"]; ok {
			overlay["resolved_health_score"] = v
		} else {
			return nil
		}
	case contracts.ConflictConfidenceDispute:
		v, ok := arb.ProposedResolution["resolved_confidence"]
		if !ok {
			return nil
		}
		confidence, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("resolved_confidence is not numeric: %v", v)
		}
		return s.overlayConfidence(arb, confidence)
	default:
		return fmt.Errorf("unhandled conflict type: %s", arb.ConflictType)
	}

	for _, claim := range arb.Claims {
		b, ok := s.beliefs.Get(claim.BeliefID)
		if !ok {
			continue
		}
		s.beliefs.Put(b.WithResolution(arb.ArbitrationID, overlay))
	}
	return nil
}

func (s *Service) overlayConfidence(arb contracts.Arbitration, confidence float64) error {
	for _, claim := range arb.Claims {
		b, ok := s.beliefs.Get(claim.BeliefID)
		if !ok {
			continue
		}
		resolved := b.WithResolution(arb.ArbitrationID, map[string]any{})
		resolved.Confidence = confidence
		s.beliefs.Put(resolved)
	}
	return nil
}

func (s *Service) audit(kind contracts.EventKind, arb contracts.Arbitration, extra map[string]any) {
	payload := map[string]any{
		"arbitration_id": arb.ArbitrationID,
		"status":         string(arb.Status),
	}
	for k, v := range extra {
		payload[k] = v
	}
	_, _ = s.log.Append(contracts.AuditRecord{
		EventKind:     kind,
		CorrelationID: arb.CorrelationID,
	}, payload)
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return "unknown"
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "unknown"
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
