package crypto

import (
	"time"

	"github.com/slucerodev/admo-core/pkg/canonicalize"
	"github.com/slucerodev/admo-core/pkg/contracts"
)

// NonceGuard is the narrow interface crypto needs from a nonce store to
// run step 4-5 of the integrity pipeline, kept here (rather than
// importing pkg/store) so pkg/store may depend on pkg/crypto without a
// cycle.
type NonceGuard interface {
	// Available reports whether nonce is still usable by federateID at now.
	Available(federateID, nonce string, now time.Time) bool
	// MarkUsed commits nonce as used by federateID; the single state
	// mutation of the integrity pipeline.
	MarkUsed(federateID, nonce string, now time.Time) error
}

// VerificationResult is the outcome of the integrity pipeline: exactly
// one of (Valid, FailureReason) is meaningful.
type VerificationResult struct {
	Valid         bool
	FailureReason contracts.VerificationFailureReason
}

// VerifyIntegrity runs the five-step pipeline, grounded on
// original_source/src/exoarmur/federation/crypto.py's
// verify_message_integrity. Each step yields a specific
// VerificationFailureReason and short-circuits; step 5 (MarkUsed) is the
// single commit point, reached only if steps 1-4 all pass.
func VerifyIntegrity(
	signedPayload map[string]any,
	sig *contracts.SignatureInfo,
	federateID string,
	expectedKeyID string,
	pub []byte,
	nonce string,
	now time.Time,
	maxSkew time.Duration,
	timestampUTC time.Time,
	guard NonceGuard,
) VerificationResult {
	if sig == nil || sig.SignatureB64 == "" {
		return VerificationResult{FailureReason: contracts.ReasonMissingSignature}
	}

	// 1. key_id match.
	if sig.KeyID != expectedKeyID {
		return VerificationResult{FailureReason: contracts.ReasonKeyMismatch}
	}

	// 2. Ed25519 verify over canonical bytes.
	canonical, err := canonicalize.JCS(signedPayload)
	if err != nil {
		return VerificationResult{FailureReason: contracts.ReasonInvalidSignature}
	}
	ok, err := Verify(pub, sig.SignatureB64, canonical)
	if err != nil || !ok {
		return VerificationResult{FailureReason: contracts.ReasonInvalidSignature}
	}

	// 3. Timestamp skew.
	skew := now.Sub(timestampUTC)
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkew {
		return VerificationResult{FailureReason: contracts.ReasonTimestampOutOfBounds}
	}

	// 4. Nonce not previously used for this federate.
	if !guard.Available(federateID, nonce, now) {
		return VerificationResult{FailureReason: contracts.ReasonNonceReuse}
	}

	// 5. Commit: mark nonce used. Only reached on success of 1-4.
	if err := guard.MarkUsed(federateID, nonce, now); err != nil {
		return VerificationResult{FailureReason: contracts.ReasonNonceReuse}
	}

	return VerificationResult{Valid: true}
}
