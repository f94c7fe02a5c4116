package contracts

import "time"

// PayloadRefKind classifies where an AuditRecord's payload lives: inline
// in the record itself, or external (e.g. exported evidence bundle).
type PayloadRefKind string

const (
	PayloadInline   PayloadRefKind = "inline"
	PayloadExternal PayloadRefKind = "external"
)

// PayloadRef locates an AuditRecord's payload.
type PayloadRef struct {
	Kind PayloadRefKind `json:"kind"`
	Ref  string         `json:"ref"`
}

// AuditHashes binds an AuditRecord into the hash chain.
type AuditHashes struct {
	SHA256         string   `json:"sha256"`
	UpstreamHashes []string `json:"upstream_hashes,omitempty"`
}

// EventKind is the closed set of audit event kinds emitted across every
// subsystem's audit call sites.
type EventKind string

const (
	EventHandshakeStarted              EventKind = "handshake_started"
	EventHandshakeTransition            EventKind = "handshake_transition"
	EventHandshakeConfirmed             EventKind = "handshake_confirmed"
	EventSignatureVerificationFailure   EventKind = "signature_verification_failure"
	EventObservationAccepted            EventKind = "observation_accepted"
	EventObservationRejected            EventKind = "observation_rejected"
	EventBeliefDerived                  EventKind = "belief_derived"
	EventConflictDetected                EventKind = "conflict_detected"
	EventArbitrationCreated              EventKind = "arbitration_created"
	EventArbitrationResolutionProposed   EventKind = "arbitration_resolution_proposed"
	EventArbitrationResolved             EventKind = "arbitration_resolved"
	EventArbitrationRejected             EventKind = "arbitration_rejected"
	EventApprovalDecided                 EventKind = "approval_decided"
	EventApprovalExpired                 EventKind = "approval_expired"
	EventGateAllowed                     EventKind = "gate_allowed"
	EventGateDenied                      EventKind = "gate_denied"
	EventGateRequireQuorum               EventKind = "gate_require_quorum"
	EventGateRequireHuman                EventKind = "gate_require_human"
	EventIdentityContainmentApplied      EventKind = "identity_containment_applied"
	EventIdentityContainmentReverted     EventKind = "identity_containment_reverted"
	EventIdentityContainmentTick         EventKind = "identity_containment_tick"
	EventFeatureDisabled                 EventKind = "feature_disabled"
)

// AuditRecord is the append-only log entry Ordered by
// (RecordedAt, AuditID); indexed by EventKind and CorrelationID.
type AuditRecord struct {
	AuditID         string         `json:"audit_id"`
	TenantID        string         `json:"tenant_id"`
	CellID          string         `json:"cell_id"`
	IdempotencyKey  string         `json:"idempotency_key,omitempty"`
	RecordedAt      time.Time      `json:"recorded_at"`
	EventKind       EventKind      `json:"event_kind"`
	PayloadRef      PayloadRef     `json:"payload_ref"`
	Payload         map[string]any `json:"payload,omitempty"`
	Hashes          AuditHashes    `json:"hashes"`
	CorrelationID   string         `json:"correlation_id,omitempty"`
	TraceID         string         `json:"trace_id,omitempty"`
	SchemaVersion   string         `json:"schema_version"`
}
