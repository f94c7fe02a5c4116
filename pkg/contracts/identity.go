package contracts

import "time"

// FederateIdentity is a cell's published identity record.
// Created at provisioning; updated only by full replacement, never by
// in-place field edit. last_seen is intentionally NOT a field here —
// it is modeled in a separate mutable index (see
// store.IdentityStore.Touch) so the identity record itself stays
// immutable and replayable.
type FederateIdentity struct {
	FederateID        string         `json:"federate_id"`
	PublicKeyB64       string         `json:"public_key"`
	KeyID              string         `json:"key_id"`
	CertificateChain   []string       `json:"certificate_chain,omitempty"`
	FederationRole     FederationRole `json:"federation_role"`
	Capabilities       []string       `json:"capabilities"`
	ProtocolVersion    string         `json:"protocol_version"`
	TrustScore         float64        `json:"trust_score"`
	Status             CellStatus     `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	SchemaVersion      string         `json:"schema_version"`
}

// NonceRecord tracks single-use nonces scoped per federate.
// Used is the one field this entity permits mutating in place, and only
// irreversibly from false to true until expiry.
type NonceRecord struct {
	Nonce         string    `json:"nonce"`
	FederateID    string    `json:"federate_id"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Used          bool      `json:"used"`
	SchemaVersion string    `json:"schema_version"`
}

// Available reports whether the nonce may still be consumed at now:
// absent, OR expired-and-available, OR belongs-to-federate-and-not-used.
func (n NonceRecord) Available(federateID string, now time.Time) bool {
	if now.After(n.ExpiresAt) {
		return true
	}
	if n.FederateID != federateID {
		return false
	}
	return !n.Used
}
