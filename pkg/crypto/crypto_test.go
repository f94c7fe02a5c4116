package crypto

import (
	"testing"
	"time"

	"github.com/slucerodev/admo-core/pkg/canonicalize"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/stretchr/testify/require"
)

type fakeGuard struct {
	used map[string]bool
}

func newFakeGuard() *fakeGuard { return &fakeGuard{used: map[string]bool{}} }

func (g *fakeGuard) Available(federateID, nonce string, now time.Time) bool {
	return !g.used[federateID+":"+nonce]
}

func (g *fakeGuard) MarkUsed(federateID, nonce string, now time.Time) error {
	g.used[federateID+":"+nonce] = true
	return nil
}

func TestVerifyIntegrity_HappyPath(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	payload := map[string]any{"federate_id": "cell-us-east-1-a", "nonce": "n1"}
	canonical, err := canonicalize.JCS(payload)
	require.NoError(t, err)

	sig := &contracts.SignatureInfo{
		Algorithm:    contracts.SigEd25519,
		KeyID:        kp.KeyID,
		SignatureB64: kp.Sign(canonical),
	}

	now := time.Now().UTC()
	guard := newFakeGuard()

	result := VerifyIntegrity(payload, sig, "cell-us-east-1-a", kp.KeyID, kp.PublicKey(), "n1", now, 300*time.Second, now, guard)
	require.True(t, result.Valid)
}

func TestVerifyIntegrity_KeyMismatch(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	payload := map[string]any{"a": 1}
	canonical, err := canonicalize.JCS(payload)
	require.NoError(t, err)
	sig := &contracts.SignatureInfo{KeyID: "other-key", SignatureB64: kp.Sign(canonical)}

	now := time.Now().UTC()
	result := VerifyIntegrity(payload, sig, "f1", kp.KeyID, kp.PublicKey(), "n1", now, 300*time.Second, now, newFakeGuard())
	require.False(t, result.Valid)
	require.Equal(t, contracts.ReasonKeyMismatch, result.FailureReason)
}

func TestVerifyIntegrity_NonceReuse(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	payload := map[string]any{"a": 1}
	canonical, err := canonicalize.JCS(payload)
	require.NoError(t, err)
	sig := &contracts.SignatureInfo{KeyID: kp.KeyID, SignatureB64: kp.Sign(canonical)}

	now := time.Now().UTC()
	guard := newFakeGuard()
	guard.used["f1:n1"] = true

	result := VerifyIntegrity(payload, sig, "f1", kp.KeyID, kp.PublicKey(), "n1", now, 300*time.Second, now, guard)
	require.False(t, result.Valid)
	require.Equal(t, contracts.ReasonNonceReuse, result.FailureReason)
}

func TestVerifyIntegrity_TimestampOutOfBounds(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	payload := map[string]any{"a": 1}
	canonical, err := canonicalize.JCS(payload)
	require.NoError(t, err)
	sig := &contracts.SignatureInfo{KeyID: kp.KeyID, SignatureB64: kp.Sign(canonical)}

	now := time.Now().UTC()
	old := now.Add(-time.Hour)

	result := VerifyIntegrity(payload, sig, "f1", kp.KeyID, kp.PublicKey(), "n1", now, 300*time.Second, old, newFakeGuard())
	require.False(t, result.Valid)
	require.Equal(t, contracts.ReasonTimestampOutOfBounds, result.FailureReason)
}
