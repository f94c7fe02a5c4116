package contracts

import "time"

// IntentType classifies an IdentityContainmentIntent.
type IntentType string

const (
	IntentApply  IntentType = "apply"
	IntentRevert IntentType = "revert"
	IntentModify IntentType = "modify"
)

// ExecutionStatus tracks an intent through the gate/effector pipeline.
type ExecutionStatus string

const (
	ExecPending  ExecutionStatus = "pending"
	ExecApplied  ExecutionStatus = "applied"
	ExecReverted ExecutionStatus = "reverted"
	ExecDenied   ExecutionStatus = "denied"
	ExecExpired  ExecutionStatus = "expired"
)

// ApprovalLevel is the human-approval tier an IdentityContainmentScope
// requires, aligned with ActionClass.
type ApprovalLevel string

const (
	ApprovalLevelA0 ApprovalLevel = "A0"
	ApprovalLevelA1 ApprovalLevel = "A1"
	ApprovalLevelA2 ApprovalLevel = "A2"
	ApprovalLevelA3 ApprovalLevel = "A3"
)

// IdentityContainmentScope bounds the effect of a containment action.
type IdentityContainmentScope struct {
	ScopeID         string            `json:"scope_id"`
	ScopeType       string            `json:"scope_type"`
	SeverityLevel   string            `json:"severity_level"`
	TTLSeconds      int64             `json:"ttl_seconds"`
	AutoExpire      bool              `json:"auto_expire"`
	RequiresApproval bool             `json:"requires_approval"`
	ApprovalLevel   ApprovalLevel     `json:"approval_level"`
	Effectors       []string          `json:"effectors"`
	Conditions      map[string]any    `json:"conditions,omitempty"`
}

// IdentityContainmentRecommendation is the recommender's output.
type IdentityContainmentRecommendation struct {
	RecommendationID string                   `json:"recommendation_id"`
	SubjectID        string                   `json:"subject_id"`
	Provider         string                   `json:"provider"`
	Scope            IdentityContainmentScope `json:"scope"`
	RuleIDs          []string                 `json:"rule_ids"`
	Rationale        string                   `json:"rationale"`
	CreatedAt        time.Time                `json:"created_at"`
	SchemaVersion    string                   `json:"schema_version"`
}

// IdentityContainmentIntent is a frozen, hash-identified request for a
// containment side effect.
type IdentityContainmentIntent struct {
	IntentID         string                   `json:"intent_id"`
	RecommendationID string                   `json:"recommendation_id"`
	SubjectID        string                   `json:"subject_id"`
	Scope            IdentityContainmentScope `json:"scope"`
	IntentType       IntentType               `json:"intent_type"`
	ApprovalID       string                   `json:"approval_id,omitempty"`
	RequestedBy      string                   `json:"requested_by"`
	CreatedAtUTC     time.Time                `json:"created_at_utc"`
	ExpiresAtUTC     time.Time                `json:"expires_at_utc"`
	IntentHash       string                   `json:"intent_hash"`
	ExecutionStatus  ExecutionStatus          `json:"execution_status"`
	SchemaVersion    string                   `json:"schema_version"`
}

// HashableFields returns the subset of the intent that is hashed into
// IntentHash: every field except volatile timestamps and execution
// status (compute_intent_hash contract).
func (i IdentityContainmentIntent) HashableFields() map[string]any {
	return map[string]any{
		"intent_id":         i.IntentID,
		"recommendation_id": i.RecommendationID,
		"subject_id":        i.SubjectID,
		"scope":             i.Scope,
		"intent_type":       string(i.IntentType),
		"requested_by":      i.RequestedBy,
	}
}

// AppliedRecord is durable applied containment state, keyed
// by SubjectID:Provider:ScopeType.
type AppliedRecord struct {
	Key           string    `json:"key"`
	SubjectID     string    `json:"subject_id"`
	Provider      string    `json:"provider"`
	ScopeType     string    `json:"scope_type"`
	IntentID      string    `json:"intent_id"`
	ApprovalID    string    `json:"approval_id"`
	AppliedAtUTC  time.Time `json:"applied_at_utc"`
	ExpiresAtUTC  time.Time `json:"expires_at_utc"`
	SchemaVersion string    `json:"schema_version"`
}

// RevertedRecord is the terminal record of a containment window closing,
// whether by TTL expiry or explicit early revert.
type RevertedRecord struct {
	Key           string    `json:"key"`
	SubjectID     string    `json:"subject_id"`
	Provider      string    `json:"provider"`
	ScopeType     string    `json:"scope_type"`
	IntentID      string    `json:"intent_id"`
	Reason        string    `json:"reason"`
	RevertedAtUTC time.Time `json:"reverted_at_utc"`
	SchemaVersion string    `json:"schema_version"`
}

// AppliedKey builds the AppliedRecord/RevertedRecord store key.
func AppliedKey(subjectID, provider, scopeType string) string {
	return subjectID + ":" + provider + ":" + scopeType
}
