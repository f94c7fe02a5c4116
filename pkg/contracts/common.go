// Package contracts defines the ADMO core's value-object data model.
// Every entity is immutable once produced: a store may replace a record
// wholesale (a new value with the same ID) but nothing in this package
// exposes an in-place setter on a field that has already been published,
// except the narrow, explicitly-sanctioned exceptions named below
// (NonceRecord.Used, HandshakeSession/Arbitration lifecycle fields).
package contracts

import "time"

// SchemaVersion is carried by every entity.
const SchemaVersion = "v1"

// ActionClass is the risk classification used by the approval service,
// the execution safety gate, and the containment subsystem (A0..A3 per
// the GLOSSARY).
type ActionClass string

const (
	ActionA0Observe          ActionClass = "A0_observe"
	ActionA1SoftContainment  ActionClass = "A1_soft_containment"
	ActionA2HardContainment  ActionClass = "A2_hard_containment"
	ActionA3Irreversible     ActionClass = "A3_irreversible"
)

// FederationRole classifies a federate's role in the mesh.
type FederationRole string

const (
	RoleMember      FederationRole = "member"
	RoleCoordinator FederationRole = "coordinator"
	RoleObserver    FederationRole = "observer"
)

// CellStatus is the lifecycle status of a FederateIdentity.
type CellStatus string

const (
	CellActive        CellStatus = "active"
	CellInactive      CellStatus = "inactive"
	CellSuspended     CellStatus = "suspended"
	CellDecommissioned CellStatus = "decommissioned"
)

// SignatureAlgorithm identifies the signature scheme bound into a
// SignedMessage's signature block.
type SignatureAlgorithm string

const (
	SigEd25519      SignatureAlgorithm = "ed25519"
	SigRSAPSSSHA256 SignatureAlgorithm = "rsa-pss-sha256"
)

// VerificationFailureReason is the closed taxonomy of signature and
// message verification failure causes.
type VerificationFailureReason string

const (
	ReasonInvalidSignature       VerificationFailureReason = "INVALID_SIGNATURE"
	ReasonKeyMismatch            VerificationFailureReason = "KEY_MISMATCH"
	ReasonNonceReuse             VerificationFailureReason = "NONCE_REUSE"
	ReasonTimestampOutOfBounds   VerificationFailureReason = "TIMESTAMP_OUT_OF_BOUNDS"
	ReasonUnknownKeyID           VerificationFailureReason = "UNKNOWN_KEY_ID"
	ReasonSchemaValidationFailed VerificationFailureReason = "SCHEMA_VALIDATION_FAILED"
	ReasonMissingSignature       VerificationFailureReason = "MISSING_SIGNATURE"
)

// RFC3339UTC formats t: RFC-3339 UTC with a trailing "Z".
func RFC3339UTC(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}
