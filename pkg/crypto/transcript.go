package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveTranscriptKey derives a per-session transcript-binding key from
// the handshake's accumulated transcript hash, used to compute the
// transcript_hash content-addressed id carried in
// TrustEstablishPayload.TranscriptHash.
// Grounded on pkg/governance/keyring.go's HKDF usage,
// repurposed from general key derivation to session transcript binding.
func DeriveTranscriptKey(transcriptSecret, correlationID []byte, size int) ([]byte, error) {
	reader := hkdf.New(sha256.New, transcriptSecret, correlationID, []byte("admo-handshake-transcript-v1"))
	out := make([]byte, size)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}
