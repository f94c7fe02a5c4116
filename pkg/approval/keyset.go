// Package approval implements the human-in-the-loop approval workflow:
// an Approval binds a single human operator decision to exactly one
// intent hash, and that binding is enforced by a signed decision
// token rather than by trusting whatever approval_id a caller passes.
// Grounded on pkg/identity/keyset.go's KeySet/InMemoryKeySet
// (Ed25519, kid-tagged, rotation-capable) and pkg/identity/token.go's
// TokenManager, repurposed from principal authentication tokens to
// single-use operator decision tokens.
package approval

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KeySet signs and verifies decision tokens, supporting rotation
// without invalidating tokens signed under a still-live key.
type KeySet interface {
	Sign(claims jwt.Claims) (string, error)
	KeyFunc() jwt.Keyfunc
}

// InMemoryKeySet is a rotation-capable Ed25519 KeySet held in memory.
type InMemoryKeySet struct {
	mu         sync.RWMutex
	currentKID string
	keys       map[string]ed25519.PrivateKey
}

// NewInMemoryKeySet returns a KeySet with one freshly generated key.
func NewInMemoryKeySet() (*InMemoryKeySet, error) {
	ks := &InMemoryKeySet{keys: make(map[string]ed25519.PrivateKey)}
	if err := ks.Rotate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// Rotate generates a new signing key and makes it current; previously
// issued tokens remain verifiable until their key is evicted.
func (ks *InMemoryKeySet) Rotate() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("approval: generate key: %w", err)
	}

	kid := fmt.Sprintf("approval-key-%d", time.Now().UnixNano())
	ks.keys[kid] = priv
	ks.currentKID = kid

	if len(ks.keys) > 10 {
		for k := range ks.keys {
			if k != kid {
				delete(ks.keys, k)
				break
			}
		}
	}
	return nil
}

// Sign signs claims with the current key.
func (ks *InMemoryKeySet) Sign(claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	kid, key := ks.currentKID, ks.keys[ks.currentKID]
	ks.mu.RUnlock()

	if key == nil {
		return "", fmt.Errorf("approval: no active signing key")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

// KeyFunc resolves the verification key for a token by its kid header.
func (ks *InMemoryKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("approval: unexpected signing method %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("approval: missing kid in header")
		}
		ks.mu.RLock()
		defer ks.mu.RUnlock()
		key, ok := ks.keys[kid]
		if !ok {
			return nil, fmt.Errorf("approval: unknown key %s", kid)
		}
		return key.Public(), nil
	}
}
