package contracts

import "time"

// ArbitrationStatus is the lifecycle status of an Arbitration.
type ArbitrationStatus string

const (
	ArbitrationOpen     ArbitrationStatus = "open"
	ArbitrationResolved ArbitrationStatus = "resolved"
	ArbitrationRejected ArbitrationStatus = "rejected"
	ArbitrationExpired  ArbitrationStatus = "expired"
)

// ConflictType is the closed conflict taxonomy, in the precedence order
// used to pick one conflict_type when multiple predicates fire:
// threat_classification > system_health > confidence_dispute >
// evidence_conflict.
type ConflictType string

const (
	ConflictThreatClassification ConflictType = "threat_classification"
	ConflictSystemHealth         ConflictType = "system_health"
	ConflictConfidenceDispute    ConflictType = "confidence_dispute"
	ConflictEvidenceConflict     ConflictType = "evidence_conflict"
	ConflictPolicyViolation      ConflictType = "policy_violation"
	ConflictTrustDispute         ConflictType = "trust_dispute"
)

// Claim is one belief's contribution to an Arbitration.
type Claim struct {
	BeliefID      string   `json:"belief_id"`
	ClaimType     string   `json:"claim_type"`
	Confidence    float64  `json:"confidence"`
	EvidenceRefs  []string `json:"evidence_refs"`
	PolicyContext string   `json:"policy_context,omitempty"`
}

// Arbitration is an open conflict requiring human-in-the-loop resolution
// before any containment action may be taken.
type Arbitration struct {
	ArbitrationID      string            `json:"arbitration_id"`
	CreatedAtUTC       time.Time         `json:"created_at_utc"`
	Status             ArbitrationStatus `json:"status"`
	ConflictType       ConflictType      `json:"conflict_type"`
	SubjectKey         string            `json:"subject_key"`
	ConflictKey        string            `json:"conflict_key"`
	Claims             []Claim           `json:"claims"`
	EvidenceRefs       []string          `json:"evidence_refs"`
	CorrelationID      string            `json:"correlation_id,omitempty"`
	ProposedResolution map[string]any    `json:"proposed_resolution,omitempty"`
	Decision           map[string]any    `json:"decision,omitempty"`
	ApprovalID         string            `json:"approval_id,omitempty"`
	ResolverFederateID string            `json:"resolver_federate_id,omitempty"`
	ResolvedAtUTC      *time.Time        `json:"resolved_at_utc,omitempty"`
	RejectionReason    string            `json:"rejection_reason,omitempty"`
	Metadata           map[string]any    `json:"metadata,omitempty"`
	SchemaVersion      string            `json:"schema_version"`
}
