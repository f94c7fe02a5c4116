// Package messages builds and validates the three signed handshake
// envelopes (identity_exchange, capability_negotiate, trust_establish);
// observations are not built here. Construction fails closed: a
// Build function returns an error rather than a half-populated
// Envelope when a required field is missing, grounded on
// pkg/envelope/validator.go's fail-closed Validate idiom and
// original_source/src/federation/messages.py's pydantic field
// constraints.
package messages

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/slucerodev/admo-core/pkg/canonicalize"
	"github.com/slucerodev/admo-core/pkg/contracts"
)

// FieldError names one failed construction constraint.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

// ValidationErrors collects every FieldError found building an envelope.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "messages: no validation errors"
	}
	msg := v[0].Error()
	for _, e := range v[1:] {
		msg += "; " + e.Error()
	}
	return msg
}

type builder struct{ errs ValidationErrors }

func (b *builder) require(field, value string) {
	if value == "" {
		b.errs = append(b.errs, FieldError{field, "must not be empty"})
	}
}

func (b *builder) requireRange(field string, value, min, max float64) {
	if value < min || value > max {
		b.errs = append(b.errs, FieldError{field, fmt.Sprintf("must be between %v and %v", min, max)})
	}
}

func (b *builder) done() error {
	if len(b.errs) > 0 {
		return b.errs
	}
	return nil
}

// IdentityExchangeInput is the caller-supplied content of an
// identity_exchange message, before signing.
type IdentityExchangeInput struct {
	FederateID      string
	Nonce           string
	CorrelationID   string
	TimestampUTC    time.Time
	PublicKeyB64    string
	FederationRole  contracts.FederationRole
	ProtocolVersion string
	Capabilities    []string
}

// BuildIdentityExchange constructs an unsigned Envelope for an
// identity_exchange message, validating every required field.
func BuildIdentityExchange(in IdentityExchangeInput) (contracts.Envelope, error) {
	b := &builder{}
	b.require("federate_id", in.FederateID)
	b.require("nonce", in.Nonce)
	b.require("correlation_id", in.CorrelationID)
	b.require("public_key", in.PublicKeyB64)
	b.require("federation_role", string(in.FederationRole))
	b.require("protocol_version", in.ProtocolVersion)
	if err := b.done(); err != nil {
		return contracts.Envelope{}, err
	}

	payload := contracts.IdentityExchangePayload{
		FederateID:      in.FederateID,
		PublicKeyB64:    in.PublicKeyB64,
		FederationRole:  string(in.FederationRole),
		ProtocolVersion: in.ProtocolVersion,
		Capabilities:    in.Capabilities,
	}
	return contracts.Envelope{
		MsgType:       contracts.MsgIdentityExchange,
		MsgVersion:    "1",
		FederateID:    in.FederateID,
		Nonce:         in.Nonce,
		TimestampUTC:  in.TimestampUTC,
		CorrelationID: in.CorrelationID,
		Payload:       toMap(payload),
	}, nil
}

// CapabilityNegotiateInput is the caller-supplied content of a
// capability_negotiate message, before signing.
type CapabilityNegotiateInput struct {
	FederateID                string
	Nonce                     string
	CorrelationID             string
	TimestampUTC              time.Time
	ProtocolVersionConstraint string
	SupportedCapabilities     []string
	RequiredCapabilities      []string
}

// BuildCapabilityNegotiate constructs an unsigned Envelope for a
// capability_negotiate message.
func BuildCapabilityNegotiate(in CapabilityNegotiateInput) (contracts.Envelope, error) {
	b := &builder{}
	b.require("federate_id", in.FederateID)
	b.require("nonce", in.Nonce)
	b.require("correlation_id", in.CorrelationID)
	b.require("protocol_version_constraint", in.ProtocolVersionConstraint)
	if len(in.SupportedCapabilities) == 0 {
		b.errs = append(b.errs, FieldError{"supported_capabilities", "must not be empty"})
	}
	if err := b.done(); err != nil {
		return contracts.Envelope{}, err
	}

	payload := contracts.CapabilityNegotiatePayload{
		ProtocolVersionConstraint: in.ProtocolVersionConstraint,
		SupportedCapabilities:     in.SupportedCapabilities,
		RequiredCapabilities:      in.RequiredCapabilities,
	}
	return contracts.Envelope{
		MsgType:       contracts.MsgCapabilityNegotiate,
		MsgVersion:    "1",
		FederateID:    in.FederateID,
		Nonce:         in.Nonce,
		TimestampUTC:  in.TimestampUTC,
		CorrelationID: in.CorrelationID,
		Payload:       toMap(payload),
	}, nil
}

// TrustEstablishInput is the caller-supplied content of a
// trust_establish message, before signing.
type TrustEstablishInput struct {
	FederateID     string
	Nonce          string
	CorrelationID  string
	TimestampUTC   time.Time
	TrustScore     float64
	TranscriptHash string
	AttestationRef string
}

// BuildTrustEstablish constructs an unsigned Envelope for a
// trust_establish message.
func BuildTrustEstablish(in TrustEstablishInput) (contracts.Envelope, error) {
	b := &builder{}
	b.require("federate_id", in.FederateID)
	b.require("nonce", in.Nonce)
	b.require("correlation_id", in.CorrelationID)
	b.require("transcript_hash", in.TranscriptHash)
	b.requireRange("trust_score", in.TrustScore, 0.0, 1.0)
	if err := b.done(); err != nil {
		return contracts.Envelope{}, err
	}

	payload := contracts.TrustEstablishPayload{
		TrustScore:     in.TrustScore,
		TranscriptHash: in.TranscriptHash,
		AttestationRef: in.AttestationRef,
	}
	return contracts.Envelope{
		MsgType:       contracts.MsgTrustEstablish,
		MsgVersion:    "1",
		FederateID:    in.FederateID,
		Nonce:         in.Nonce,
		TimestampUTC:  in.TimestampUTC,
		CorrelationID: in.CorrelationID,
		Payload:       toMap(payload),
	}, nil
}

// CanonicalBytes returns the RFC 8785 canonical bytes of env's signed
// payload, the exact input to signing and verification.
func CanonicalBytes(env contracts.Envelope) ([]byte, error) {
	return canonicalize.JCS(env.SignedPayload())
}

// PayloadHash returns the SHA-256 hex digest of env's canonical bytes.
func PayloadHash(env contracts.Envelope) (string, error) {
	b, err := CanonicalBytes(env)
	if err != nil {
		return "", err
	}
	return canonicalize.HashBytes(b), nil
}

// Attach binds sig onto env, returning the signed envelope. Signing
// itself (computing sig) is the caller's responsibility via
// pkg/crypto, keeping this package free of key material.
func Attach(env contracts.Envelope, sig contracts.SignatureInfo) contracts.Envelope {
	env.Signature = &sig
	return env
}

func toMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("messages: payload marshal invariant violated: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(fmt.Sprintf("messages: payload decode invariant violated: %v", err))
	}
	return m
}
