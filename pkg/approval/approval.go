// Package approval implements the human-in-the-loop approval workflow
// named in its keyset.go doc comment.
package approval

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/text/unicode/norm"

	"github.com/slucerodev/admo-core/pkg/audit"
	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/idgen"
	"github.com/slucerodev/admo-core/pkg/store"
)

// Errors returned by Service methods.
var (
	ErrNotFound        = errors.New("approval: not found")
	ErrAlreadyDecided  = errors.New("approval: already decided")
	ErrBindingMismatch = errors.New("approval: decision token bound to a different intent hash")
	ErrExpired         = errors.New("approval: decision window expired")
	ErrInvalidDecision = errors.New("approval: decision must be approved or denied")
)

// DecisionClaims is embedded in the token handed to the human operator:
// it binds the token to one approval_id and the intent_hash that
// approval was created for, so presenting it against a different
// intent is a binding_mismatch, not a decision.
type DecisionClaims struct {
	jwt.RegisteredClaims
	ApprovalID string `json:"approval_id"`
	IntentHash string `json:"intent_hash"`
}

// Service manages Approval creation, decision-token issuance, decision
// recording, and expiry.
type Service struct {
	approvals *store.ApprovalStore
	keys      KeySet
	ids       *idgen.Factory
	log       *audit.Log
	clock     clock.Clock
}

// New returns a Service wired to its store and signing keys.
func New(approvals *store.ApprovalStore, keys KeySet, ids *idgen.Factory, log *audit.Log, c clock.Clock) *Service {
	return &Service{approvals: approvals, keys: keys, ids: ids, log: log, clock: c}
}

// Request creates a pending Approval bound to intentHash and returns it
// alongside a signed decision token scoped to that one binding. A0
// never reaches this call: contracts.RequiresApproval gates that at
// the caller. rationale is NFC-normalized before storage so the same
// operator-typed text always canonicalizes to identical bytes
// regardless of which Unicode form their client sent.
func (s *Service) Request(action contracts.ActionClass, tenantID, subject, intentHash, rationale string, ttl time.Duration) (contracts.Approval, string, error) {
	now := s.clock.Now()
	id, err := s.ids.New(now)
	if err != nil {
		return contracts.Approval{}, "", fmt.Errorf("approval: id generation: %w", err)
	}

	approval := contracts.Approval{
		ApprovalID:    "approval_" + id,
		ActionType:    action,
		TenantID:      tenantID,
		Subject:       subject,
		IntentHash:    intentHash,
		Status:        contracts.ApprovalPending,
		Rationale:     norm.NFC.String(rationale),
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
		SchemaVersion: contracts.SchemaVersion,
	}
	token, err := s.keys.Sign(DecisionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   approval.ApprovalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(approval.ExpiresAt),
			Issuer:    "admo/approval",
		},
		ApprovalID: approval.ApprovalID,
		IntentHash: approval.IntentHash,
	})
	if err != nil {
		return contracts.Approval{}, "", fmt.Errorf("approval: sign decision token: %w", err)
	}
	approval.DecisionToken = token

	if err := s.approvals.Insert(approval); err != nil {
		return contracts.Approval{}, "", fmt.Errorf("approval: store: %w", err)
	}
	return approval, token, nil
}

// Decide parses and verifies a decision token, checks its intent-hash
// binding against the stored approval, and records the operator's
// approve/deny decision. Status is terminal once decided: a second
// call on an already-decided approval fails.
func (s *Service) Decide(tokenString string, decision contracts.ApprovalStatus, principalID, rationale string) (contracts.Approval, error) {
	if decision != contracts.ApprovalApproved && decision != contracts.ApprovalDenied {
		return contracts.Approval{}, ErrInvalidDecision
	}

	claims := &DecisionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.keys.KeyFunc(), jwt.WithTimeFunc(s.clock.Now))
	if err != nil || !token.Valid {
		return contracts.Approval{}, fmt.Errorf("approval: invalid decision token: %w", err)
	}

	approval, ok := s.approvals.Get(claims.ApprovalID)
	if !ok {
		return contracts.Approval{}, ErrNotFound
	}
	if approval.Status != contracts.ApprovalPending {
		return contracts.Approval{}, ErrAlreadyDecided
	}
	if claims.IntentHash != approval.IntentHash {
		s.audit(approval, contracts.EventApprovalDecided, map[string]any{
			"decision":      "binding_mismatch",
			"token_hash":    claims.IntentHash,
			"principal_id":  principalID,
		})
		return contracts.Approval{}, ErrBindingMismatch
	}

	now := s.clock.Now()
	if now.After(approval.ExpiresAt) {
		if _, err := s.expire(approval); err != nil {
			return contracts.Approval{}, err
		}
		return contracts.Approval{}, ErrExpired
	}

	approval.Status = decision
	approval.DecidedAt = &now
	approval.PrincipalID = principalID
	approval.DecisionToken = ""
	if rationale != "" {
		approval.Rationale = norm.NFC.String(rationale)
	}
	if err := s.approvals.Decide(approval); err != nil {
		return contracts.Approval{}, fmt.Errorf("approval: store: %w", err)
	}

	s.audit(approval, contracts.EventApprovalDecided, map[string]any{
		"decision":     string(decision),
		"principal_id": principalID,
	})
	return approval, nil
}

// ExpirePending transitions every still-pending approval whose
// ExpiresAt has passed to expired, emitting one audit event per
// transition. Driven by the host loop's tick, the same shape as the
// containment auto-revert sweep.
func (s *Service) ExpirePending(now time.Time) int {
	expired := 0
	for _, a := range s.approvals.List(store.ApprovalFilter{Status: contracts.ApprovalPending}) {
		if !now.After(a.ExpiresAt) {
			continue
		}
		if _, err := s.expire(a); err == nil {
			expired++
		}
	}
	return expired
}

// expire transitions approval to expired and audits it. Returns the
// updated approval and a nil error on success; the store error (if
// any) is returned unwrapped by callers that need to distinguish a
// failed transition from "already expired."
func (s *Service) expire(approval contracts.Approval) (contracts.Approval, error) {
	now := s.clock.Now()
	approval.Status = contracts.ApprovalExpired
	approval.DecidedAt = &now
	approval.DecisionToken = ""
	if err := s.approvals.Decide(approval); err != nil {
		return contracts.Approval{}, fmt.Errorf("approval: store: %w", err)
	}
	s.audit(approval, contracts.EventApprovalExpired, map[string]any{"decision": "expired"})
	return approval, nil
}

// Get returns the approval for id.
func (s *Service) Get(id string) (contracts.Approval, bool) {
	return s.approvals.Get(id)
}

// ByIntentHash returns the approval bound to intentHash, if any.
func (s *Service) ByIntentHash(intentHash string) (contracts.Approval, bool) {
	return s.approvals.ByIntentHash(intentHash)
}

func (s *Service) audit(a contracts.Approval, kind contracts.EventKind, extra map[string]any) {
	payload := map[string]any{
		"approval_id": a.ApprovalID,
		"action_type": string(a.ActionType),
		"subject":     a.Subject,
		"status":      string(a.Status),
	}
	for k, v := range extra {
		payload[k] = v
	}
	_, _ = s.log.Append(contracts.AuditRecord{
		EventKind: kind,
		TenantID:  a.TenantID,
	}, payload)
}
