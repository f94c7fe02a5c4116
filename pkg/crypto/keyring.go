package crypto

import (
	"crypto/ed25519"
	"sync"
)

// KeyRing resolves a federate's key_id to its public key, surfacing
// ReasonUnknownKeyID when a message references a key this cell has
// never seen. Adapted from pkg/crypto/keyring.go's multi-key lookup
// shape, repurposed from signer rotation to federate public-key lookup.
type KeyRing struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

// NewKeyRing returns an empty KeyRing.
func NewKeyRing() *KeyRing {
	return &KeyRing{keys: make(map[string]ed25519.PublicKey)}
}

// Add registers a federate's public key under its key_id.
func (k *KeyRing) Add(keyID string, pub ed25519.PublicKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[keyID] = pub
}

// Remove revokes a key_id.
func (k *KeyRing) Remove(keyID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, keyID)
}

// Lookup returns the public key for keyID, or ok=false if unknown.
func (k *KeyRing) Lookup(keyID string) (ed25519.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pub, ok := k.keys[keyID]
	return pub, ok
}
