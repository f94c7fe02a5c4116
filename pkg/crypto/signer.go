// Package crypto implements the Ed25519 keypair, signing, and message
// integrity pipeline. Adapted from pkg/crypto/signer.go, keeping the
// Signer shape and package-level Verify helper; replaced its
// domain-specific SignDecision/SignIntent/SignReceipt methods with
// Sign/VerifyIntegrity for ADMO's signed envelopes.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/slucerodev/admo-core/pkg/canonicalize"
)

// FederateKeyPair wraps an Ed25519 keypair for one federate. KeyID is
// the stable hash of the base64-encoded public key ("key_id (SHA-256 of
// public_key)"), grounded on original_source/src/exoarmur/federation/crypto.py's
// FederateKeyPair.
type FederateKeyPair struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	KeyID string
}

// GenerateKeyPair creates a fresh Ed25519 keypair.
func GenerateKeyPair() (*FederateKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: key generation failed: %w", err)
	}
	return newKeyPair(pub, priv), nil
}

// FromPrivateKey wraps an existing Ed25519 private key (e.g. loaded from
// pkg/kms).
func FromPrivateKey(priv ed25519.PrivateKey) *FederateKeyPair {
	pub := priv.Public().(ed25519.PublicKey)
	return newKeyPair(pub, priv)
}

func newKeyPair(pub ed25519.PublicKey, priv ed25519.PrivateKey) *FederateKeyPair {
	return &FederateKeyPair{
		priv:  priv,
		pub:   pub,
		KeyID: StableHashPublicKey(pub),
	}
}

// StableHashPublicKey computes key_id = SHA-256(base64(public_key)),
// matching original_source's stable_hash(base64(public_bytes)).
func StableHashPublicKey(pub ed25519.PublicKey) string {
	b64 := base64.StdEncoding.EncodeToString(pub)
	return canonicalize.HashBytes([]byte(b64))
}

// PublicKeyB64 returns the standard base64 encoding of the public key,
// the wire form used in FederateIdentity.PublicKeyB64.
func (k *FederateKeyPair) PublicKeyB64() string {
	return base64.StdEncoding.EncodeToString(k.pub)
}

// PublicKey returns the raw public key bytes.
func (k *FederateKeyPair) PublicKey() ed25519.PublicKey {
	return k.pub
}

// Sign signs data and returns a hex-encoded signature.
func (k *FederateKeyPair) Sign(data []byte) string {
	return hex.EncodeToString(ed25519.Sign(k.priv, data))
}

// Verify checks a hex-encoded signature against pub over data.
func Verify(pub ed25519.PublicKey, sigHex string, data []byte) (bool, error) {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("crypto: invalid signature encoding: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("crypto: invalid public key size %d", len(pub))
	}
	return ed25519.Verify(pub, data, sig), nil
}

// DecodePublicKeyB64 decodes the wire form of a public key.
func DecodePublicKeyB64(b64 string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid public key base64: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("crypto: invalid public key length %d", len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
