package contracts

import "time"

// ApprovalStatus is the terminal-once-decided status of an Approval:
// once decided, status never changes again.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDenied   ApprovalStatus = "denied"
	ApprovalExpired  ApprovalStatus = "expired"
)

// Approval binds a human operator's consent to exactly one intent hash.
type Approval struct {
	ApprovalID    string         `json:"approval_id"`
	ActionType    ActionClass    `json:"action_type"`
	TenantID      string         `json:"tenant_id"`
	Subject       string         `json:"subject"`
	IntentHash    string         `json:"intent_hash"`
	PrincipalID   string         `json:"principal_id,omitempty"`
	Status        ApprovalStatus `json:"status"`
	Rationale     string         `json:"rationale,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	DecidedAt     *time.Time     `json:"decided_at,omitempty"`
	// DecisionToken is the signed token a human operator presents to
	// Decide. Only meaningful while Status is pending; callers clear it
	// once an approval reaches a terminal status.
	DecisionToken string `json:"decision_token,omitempty"`
	SchemaVersion string `json:"schema_version"`
}

// RequiresApproval reports whether action requires an Approval before
// an effector may execute it: A0 requires no approval; A1/A2/A3 do.
func RequiresApproval(action ActionClass) bool {
	return action != ActionA0Observe
}
