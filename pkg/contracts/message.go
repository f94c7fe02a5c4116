package contracts

import "time"

// MessageType tags the concrete payload carried by a SignedMessage.
type MessageType string

const (
	MsgIdentityExchange    MessageType = "identity_exchange"
	MsgCapabilityNegotiate MessageType = "capability_negotiate"
	MsgTrustEstablish      MessageType = "trust_establish"
	MsgObservation         MessageType = "observation"
	MsgContainmentIntent   MessageType = "containment_intent"
)

// SignatureInfo is the signature block attached to every SignedMessage.
// Exactly one of KeyID / CertFingerprint must be present.
type SignatureInfo struct {
	Algorithm       SignatureAlgorithm `json:"alg"`
	KeyID           string             `json:"key_id,omitempty"`
	CertFingerprint string             `json:"cert_fingerprint,omitempty"`
	SignatureB64    string             `json:"sig_b64"`
}

// Envelope is the common structure shared by every signed message
// family. Payload carries the type-specific body; concrete payload
// types are defined alongside the subsystem that produces them
// (IdentityExchangePayload, CapabilityNegotiatePayload,
// TrustEstablishPayload below; Observation in observation.go).
type Envelope struct {
	MsgType       MessageType    `json:"msg_type"`
	MsgVersion    string         `json:"msg_version"`
	FederateID    string         `json:"federate_id"`
	Nonce         string         `json:"nonce"`
	TimestampUTC  time.Time      `json:"timestamp_utc"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Payload       map[string]any `json:"payload"`
	Signature     *SignatureInfo `json:"signature,omitempty"`
}

// SignedPayload returns the subset of fields that are signed: every
// field except Signature, as a generic map suitable for canonicalization.
func (e Envelope) SignedPayload() map[string]any {
	return map[string]any{
		"msg_type":       string(e.MsgType),
		"msg_version":    e.MsgVersion,
		"federate_id":    e.FederateID,
		"nonce":          e.Nonce,
		"timestamp_utc":  RFC3339UTC(e.TimestampUTC),
		"correlation_id": e.CorrelationID,
		"payload":        e.Payload,
	}
}

// IdentityExchangePayload is the first handshake message.
type IdentityExchangePayload struct {
	FederateID      string   `json:"federate_id"`
	PublicKeyB64    string   `json:"public_key"`
	FederationRole  string   `json:"federation_role"`
	ProtocolVersion string   `json:"protocol_version"`
	Capabilities    []string `json:"capabilities"`
}

// CapabilityNegotiatePayload is the second handshake message.
type CapabilityNegotiatePayload struct {
	ProtocolVersionConstraint string   `json:"protocol_version_constraint"`
	SupportedCapabilities     []string `json:"supported_capabilities"`
	RequiredCapabilities      []string `json:"required_capabilities"`
}

// TrustEstablishPayload is the third handshake message.
type TrustEstablishPayload struct {
	TrustScore      float64 `json:"trust_score"`
	TranscriptHash  string  `json:"transcript_hash"`
	AttestationRef  string  `json:"attestation_ref,omitempty"`
}
