// Package handshake implements the federation identity handshake
// controller: a deterministic state machine over HandshakeSession,
// orchestrating signature verification, retry-with-backoff, protocol
// version negotiation, and audit emission. Grounded directly on
// original_source/src/federation/handshake_state_machine.py and
// original_source/src/federation/handshake_controller.py, with the
// transition graph itself factored into contracts.HandshakeTransitions
// (contracts.Next) so both the controller and pkg/replay share one
// source of truth for what moves are legal.
package handshake

import (
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/slucerodev/admo-core/pkg/audit"
	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/crypto"
	"github.com/slucerodev/admo-core/pkg/store"
)

// learnedKey is the peer public key asserted by an identity_exchange
// message, trusted on first use and checked against on every
// subsequent message in the same correlation.
type learnedKey struct {
	pub             ed25519.PublicKey
	keyID           string
	protocolVersion string
}

// Controller drives one cell's side of the handshake protocol.
type Controller struct {
	mu       sync.Mutex
	sessions *store.SessionStore
	nonces   crypto.NonceGuard
	log      *audit.Log
	clock    clock.Clock
	cfg      contracts.HandshakeConfig
	learned  map[string]learnedKey // correlation_id -> peer key
}

// New returns a Controller wired to the given session store, nonce
// guard, audit log, and clock.
func New(sessions *store.SessionStore, nonces crypto.NonceGuard, log *audit.Log, c clock.Clock, cfg contracts.HandshakeConfig) *Controller {
	return &Controller{
		sessions: sessions,
		nonces:   nonces,
		log:      log,
		clock:    c,
		cfg:      cfg,
		learned:  make(map[string]learnedKey),
	}
}

// Result is the outcome of processing one handshake message.
type Result struct {
	Session       contracts.HandshakeSession
	Confirmed     bool
	FailureReason contracts.VerificationFailureReason
	RetryAfter    time.Duration // non-zero when the caller should retry the same message
}

// StartHandshake creates a new session for federateID/correlationID and
// records handshake_started.
func (c *Controller) StartHandshake(federateID, correlationID string) (contracts.HandshakeSession, error) {
	now := c.clock.Now()
	sess := contracts.HandshakeSession{
		CorrelationID: correlationID,
		FederateID:    federateID,
		State:         contracts.StateUninitialized,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(c.cfg.HandshakeTimeout),
		SchemaVersion: contracts.SchemaVersion,
	}
	if err := c.sessions.Create(sess, now, c.cfg.CorrelationIDTTL); err != nil {
		return contracts.HandshakeSession{}, err
	}
	if _, err := c.log.Append(contracts.AuditRecord{
		EventKind:     contracts.EventHandshakeStarted,
		CorrelationID: correlationID,
	}, map[string]any{"federate_id": federateID, "correlation_id": correlationID}); err != nil {
		return sess, err
	}
	return sess, nil
}

// expectedEvent maps a session's current state to the HandshakeEvent a
// correctly-ordered next message produces.
func expectedEvent(state contracts.HandshakeState) (contracts.HandshakeEvent, bool) {
	switch state {
	case contracts.StateUninitialized:
		return contracts.EventIdentityExchange, true
	case contracts.StateIdentityExchange:
		return contracts.EventCapabilityNegotiate, true
	case contracts.StateCapabilityNegotiation:
		return contracts.EventTrustEstablish, true
	default:
		return "", false
	}
}

// failureStateFor returns the terminal state a non-retryable failure at
// state should land on, mirroring
// handshake_controller.py's _get_failure_state_for_verification.
func failureStateFor(state contracts.HandshakeState, reason contracts.VerificationFailureReason) contracts.HandshakeState {
	switch reason {
	case contracts.ReasonNonceReuse:
		return contracts.StateFailedNonceReuse
	case contracts.ReasonTimestampOutOfBounds:
		return contracts.StateFailedTimestampSkew
	case contracts.ReasonMissingSignature, contracts.ReasonInvalidSignature:
		return contracts.StateFailedSignature
	case contracts.ReasonKeyMismatch, contracts.ReasonUnknownKeyID:
		return contracts.StateFailedIdentityVerify
	}
	switch state {
	case contracts.StateUninitialized, contracts.StateIdentityExchange:
		return contracts.StateFailedIdentity
	case contracts.StateCapabilityNegotiation:
		return contracts.StateFailedCapabilities
	default:
		return contracts.StateFailedTrust
	}
}

// ProcessMessage verifies env's signature and nonce, advances the
// session's state machine, and records every transition to the audit
// log. A verified message that arrives in the wrong state, or with an
// unrecognized msg_type, is a protocol violation and fails the
// handshake immediately — handshakes never hang in an ambiguous state.
func (c *Controller) ProcessMessage(env contracts.Envelope) (Result, error) {
	sess, ok := c.sessions.Get(env.CorrelationID)
	if !ok {
		return Result{}, fmt.Errorf("handshake: no session for correlation_id %q", env.CorrelationID)
	}

	now := c.clock.Now()
	if !sess.State.Terminal() && now.After(sess.ExpiresAt) {
		return c.timeout(sess)
	}
	if sess.State.Terminal() {
		return Result{Session: sess}, fmt.Errorf("handshake: session %q already terminal (%s)", sess.CorrelationID, sess.State)
	}

	pub, keyID, err := c.resolveVerificationKey(sess, env)
	if err != nil {
		return c.fail(sess, contracts.ReasonUnknownKeyID, env.MsgType)
	}

	verdict := crypto.VerifyIntegrity(
		env.SignedPayload(), env.Signature, env.FederateID, keyID, pub,
		env.Nonce, now, c.cfg.MaxClockSkew, env.TimestampUTC, c.nonces,
	)
	if !verdict.Valid {
		if _, err := c.log.Append(contracts.AuditRecord{
			EventKind:     contracts.EventSignatureVerificationFailure,
			CorrelationID: env.CorrelationID,
		}, map[string]any{"reason": string(verdict.FailureReason), "msg_type": string(env.MsgType)}); err != nil {
			return Result{}, err
		}
		if contracts.Transient(verdict.FailureReason) {
			return c.retry(sess, verdict.FailureReason)
		}
		return c.fail(sess, verdict.FailureReason, env.MsgType)
	}

	if env.MsgType == contracts.MsgIdentityExchange {
		if err := c.learnKey(sess.CorrelationID, env); err != nil {
			return c.fail(sess, contracts.ReasonSchemaValidationFailed, env.MsgType)
		}
	}

	want, haveExpected := expectedEvent(sess.State)
	event := protocolErrorEvent
	if haveExpected && want == eventForMsgType(env.MsgType) {
		event = want
	}

	to, ok := contracts.Next(sess.State, event)
	if !ok {
		return c.fail(sess, contracts.ReasonSchemaValidationFailed, env.MsgType)
	}

	if env.MsgType == contracts.MsgCapabilityNegotiate {
		if err := c.checkProtocolVersion(sess, env); err != nil {
			return c.fail(sess, contracts.ReasonSchemaValidationFailed, env.MsgType)
		}
	}

	from := sess.State
	sess.State = to
	sess.UpdatedAt = now
	sess.RetryCount = 0
	if err := c.sessions.Update(sess); err != nil {
		return Result{}, err
	}
	if _, err := c.log.Append(contracts.AuditRecord{
		EventKind:     contracts.EventHandshakeTransition,
		CorrelationID: env.CorrelationID,
	}, map[string]any{"from_state": string(from), "to_state": string(to), "msg_type": string(env.MsgType)}); err != nil {
		return Result{}, err
	}

	if to == contracts.StateConfirmed {
		if _, err := c.log.Append(contracts.AuditRecord{
			EventKind:     contracts.EventHandshakeConfirmed,
			CorrelationID: env.CorrelationID,
		}, map[string]any{"federate_id": sess.FederateID}); err != nil {
			return Result{}, err
		}
		return Result{Session: sess, Confirmed: true}, nil
	}
	return Result{Session: sess}, nil
}

// protocolErrorEvent is used when a message's type does not match the
// current state's expected next step.
const protocolErrorEvent = contracts.EventProtocolError

func eventForMsgType(t contracts.MessageType) contracts.HandshakeEvent {
	switch t {
	case contracts.MsgIdentityExchange:
		return contracts.EventIdentityExchange
	case contracts.MsgCapabilityNegotiate:
		return contracts.EventCapabilityNegotiate
	case contracts.MsgTrustEstablish:
		return contracts.EventTrustEstablish
	default:
		return protocolErrorEvent
	}
}

func (c *Controller) retry(sess contracts.HandshakeSession, reason contracts.VerificationFailureReason) (Result, error) {
	sess.RetryCount++
	if sess.RetryCount > c.cfg.MaxRetryAttempts {
		return c.fail(sess, reason, "")
	}
	sess.LastFailureReason = string(reason)
	if err := c.sessions.Update(sess); err != nil {
		return Result{}, err
	}
	return Result{Session: sess, FailureReason: reason, RetryAfter: contracts.RetryDelay(c.cfg, sess.RetryCount)}, nil
}

func (c *Controller) fail(sess contracts.HandshakeSession, reason contracts.VerificationFailureReason, msgType contracts.MessageType) (Result, error) {
	return c.transitionToFailure(sess, failureStateFor(sess.State, reason), reason, msgType)
}

func (c *Controller) transitionToFailure(sess contracts.HandshakeSession, to contracts.HandshakeState, reason contracts.VerificationFailureReason, msgType contracts.MessageType) (Result, error) {
	from := sess.State
	sess.State = to
	sess.UpdatedAt = c.clock.Now()
	sess.LastFailureReason = string(reason)
	if err := c.sessions.Update(sess); err != nil {
		return Result{}, err
	}
	if _, err := c.log.Append(contracts.AuditRecord{
		EventKind:     contracts.EventHandshakeTransition,
		CorrelationID: sess.CorrelationID,
	}, map[string]any{"from_state": string(from), "to_state": string(to), "reason": string(reason), "msg_type": string(msgType)}); err != nil {
		return Result{}, err
	}
	return Result{Session: sess, FailureReason: reason}, nil
}

// timeout fails a session whose ExpiresAt has passed, preferring the
// transition table's own EventTimeout edge (so hand-authored exceptions
// to the default fall-to-FAILED_TRUST mapping are honored) and falling
// back to the dedicated timeout state only when the table has no edge
// for the current state (e.g. TRUST_ESTABLISHMENT).
func (c *Controller) timeout(sess contracts.HandshakeSession) (Result, error) {
	to, ok := contracts.Next(sess.State, contracts.EventTimeout)
	if !ok {
		to = contracts.StateFailedTimeout
	}
	return c.transitionToFailure(sess, to, "", "")
}

func (c *Controller) learnKey(correlationID string, env contracts.Envelope) error {
	pubB64, _ := env.Payload["public_key"].(string)
	if pubB64 == "" {
		return fmt.Errorf("handshake: identity_exchange missing public_key")
	}
	pub, err := crypto.DecodePublicKeyB64(pubB64)
	if err != nil {
		return err
	}
	protocolVersion, _ := env.Payload["protocol_version"].(string)
	c.mu.Lock()
	c.learned[correlationID] = learnedKey{
		pub:             pub,
		keyID:           crypto.StableHashPublicKey(pub),
		protocolVersion: protocolVersion,
	}
	c.mu.Unlock()
	return nil
}

func (c *Controller) resolveVerificationKey(sess contracts.HandshakeSession, env contracts.Envelope) (ed25519.PublicKey, string, error) {
	if env.MsgType == contracts.MsgIdentityExchange {
		pubB64, _ := env.Payload["public_key"].(string)
		pub, err := crypto.DecodePublicKeyB64(pubB64)
		if err != nil {
			return nil, "", err
		}
		return pub, crypto.StableHashPublicKey(pub), nil
	}
	c.mu.Lock()
	k, ok := c.learned[sess.CorrelationID]
	c.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("handshake: no learned key for correlation_id %q", sess.CorrelationID)
	}
	return k.pub, k.keyID, nil
}

// checkProtocolVersion enforces that the initiator's asserted
// protocol_version (learned from identity_exchange) satisfies the
// responder's protocol_version_constraint, grounded on
// pkg/trust/pack_loader.go's semver-constraint usage.
func (c *Controller) checkProtocolVersion(sess contracts.HandshakeSession, env contracts.Envelope) error {
	constraintStr, _ := env.Payload["protocol_version_constraint"].(string)
	if constraintStr == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(constraintStr)
	if err != nil {
		return fmt.Errorf("handshake: invalid protocol_version_constraint %q: %w", constraintStr, err)
	}
	c.mu.Lock()
	k, ok := c.learned[sess.CorrelationID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("handshake: no identity learned yet for correlation_id %q", sess.CorrelationID)
	}
	v, err := semver.NewVersion(k.protocolVersion)
	if err != nil {
		return fmt.Errorf("handshake: invalid protocol_version %q: %w", k.protocolVersion, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("handshake: protocol version %s does not satisfy %s", v, constraintStr)
	}
	return nil
}

// Tick sweeps expired sessions and correlation-id locks, grounded on
// handshake_controller.py's cleanup_expired_resources.
func (c *Controller) Tick() (expiredSessions, expiredLocks int) {
	now := c.clock.Now()
	corrIDs := c.sessions.CleanupExpiredSessions(now)
	for _, corrID := range corrIDs {
		sess, ok := c.sessions.Get(corrID)
		if !ok || sess.State.Terminal() {
			continue
		}
		if _, err := c.timeout(sess); err != nil {
			continue
		}
	}
	expiredLocks = c.sessions.CleanupExpiredLocks(now)
	return len(corrIDs), expiredLocks
}
