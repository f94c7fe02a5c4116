package contracts

import "time"

// HandshakeState is the federation handshake's state space, widened
// with the richer terminal-state vocabulary found in
// original_source/spec/contracts/models_v1.py. The additional states
// refine *why* a session failed or what it does after CONFIRMED; they
// introduce no new edges into the transition graph below.
type HandshakeState string

const (
	StateUninitialized          HandshakeState = "UNINITIALIZED"
	StateIdentityExchange        HandshakeState = "IDENTITY_EXCHANGE"
	StateCapabilityNegotiation   HandshakeState = "CAPABILITY_NEGOTIATION"
	StateTrustEstablishment      HandshakeState = "TRUST_ESTABLISHMENT"
	StateConfirmed               HandshakeState = "CONFIRMED"
	StateActive                  HandshakeState = "ACTIVE"
	StateSuspended                HandshakeState = "SUSPENDED"
	StateFailedIdentity           HandshakeState = "FAILED_IDENTITY"
	StateFailedIdentityVerify     HandshakeState = "FAILED_IDENTITY_VERIFICATION"
	StateFailedCapabilities       HandshakeState = "FAILED_CAPABILITIES"
	StateFailedTrust              HandshakeState = "FAILED_TRUST"
	StateFailedProtocolViolation  HandshakeState = "FAILED_PROTOCOL_VIOLATION"
	StateFailedTimeout            HandshakeState = "FAILED_TIMEOUT"
	StateFailedNonceReuse         HandshakeState = "FAILED_NONCE_REUSE"
	StateFailedTimestampSkew      HandshakeState = "FAILED_TIMESTAMP_SKEW"
	StateFailedSignature          HandshakeState = "FAILED_SIGNATURE"
)

// Terminal reports whether no further transitions are valid from s.
func (s HandshakeState) Terminal() bool {
	switch s {
	case StateConfirmed, StateActive, StateSuspended,
		StateFailedIdentity, StateFailedIdentityVerify, StateFailedCapabilities,
		StateFailedTrust, StateFailedProtocolViolation, StateFailedTimeout,
		StateFailedNonceReuse, StateFailedTimestampSkew, StateFailedSignature:
		return true
	default:
		return false
	}
}

// HandshakeEvent is the trigger driving a state transition.
type HandshakeEvent string

const (
	EventIdentityExchange    HandshakeEvent = "identity_exchange"
	EventCapabilityNegotiate HandshakeEvent = "capability_negotiate"
	EventTrustEstablish      HandshakeEvent = "trust_establish"
	EventVerificationFail    HandshakeEvent = "verification_fail"
	EventTimeout             HandshakeEvent = "timeout"
	EventProtocolError       HandshakeEvent = "protocol_error"
)

// HandshakeTransitions is the valid transition graph,
// grounded on original_source/src/federation/handshake_state_machine.py's
// VALID_TRANSITIONS table. Terminal states have no entry (an empty,
// absent outgoing set).
var HandshakeTransitions = map[HandshakeState]map[HandshakeEvent]HandshakeState{
	StateUninitialized: {
		EventIdentityExchange: StateIdentityExchange,
		EventVerificationFail: StateFailedIdentity,
		EventTimeout:          StateFailedTrust,
		EventProtocolError:    StateFailedTrust,
	},
	StateIdentityExchange: {
		EventCapabilityNegotiate: StateCapabilityNegotiation,
		EventVerificationFail:    StateFailedIdentity,
		EventTimeout:             StateFailedTrust,
		EventProtocolError:       StateFailedTrust,
	},
	StateCapabilityNegotiation: {
		EventTrustEstablish:   StateConfirmed,
		EventVerificationFail: StateFailedTrust,
		EventTimeout:          StateFailedTrust,
		EventProtocolError:    StateFailedTrust,
	},
	StateTrustEstablishment: {
		EventVerificationFail: StateFailedTrust,
		EventProtocolError:    StateFailedTrust,
	},
}

// Next is a pure function of (from, event), making every transition
// deterministic and replayable.
// ok is false if the transition is not in the graph (including from any
// terminal state).
func Next(from HandshakeState, event HandshakeEvent) (HandshakeState, bool) {
	edges, ok := HandshakeTransitions[from]
	if !ok {
		return from, false
	}
	to, ok := edges[event]
	return to, ok
}

// HandshakeConfig carries the handshake's tunables (the retry delay
// ceiling deliberately differs from original_source's 5-minute
// default; this implementation's 10s governs — see DESIGN.md).
type HandshakeConfig struct {
	MaxRetryAttempts    int
	BaseRetryDelay      time.Duration
	MaxRetryDelay       time.Duration
	HandshakeTimeout    time.Duration
	CorrelationIDTTL    time.Duration
	MaxClockSkew        time.Duration
}

// DefaultHandshakeConfig returns the handshake controller's defaults.
func DefaultHandshakeConfig() HandshakeConfig {
	return HandshakeConfig{
		MaxRetryAttempts: 3,
		BaseRetryDelay:   1 * time.Second,
		MaxRetryDelay:    10 * time.Second,
		HandshakeTimeout: 10 * time.Minute,
		CorrelationIDTTL: 24 * time.Hour,
		MaxClockSkew:     300 * time.Second,
	}
}

// HandshakeSession is the mutable-lifecycle session record
// Only State, UpdatedAt, RetryCount, and LastFailureReason change after
// creation; CorrelationID and FederateID are fixed at creation.
type HandshakeSession struct {
	CorrelationID     string                    `json:"correlation_id"`
	FederateID        string                    `json:"federate_id"`
	State             HandshakeState            `json:"state"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
	ExpiresAt         time.Time                 `json:"expires_at"`
	RetryCount        int                       `json:"retry_count"`
	LastFailureReason string                    `json:"last_failure_reason,omitempty"`
	SchemaVersion     string                    `json:"schema_version"`
}

// RetryDelay computes the exponential backoff delay for retryCount:
// delay = min(base * 2^(retryCount-1), max), base for retryCount==0.
func RetryDelay(cfg HandshakeConfig, retryCount int) time.Duration {
	if retryCount <= 0 {
		return cfg.BaseRetryDelay
	}
	delay := cfg.BaseRetryDelay
	for i := 0; i < retryCount-1; i++ {
		delay *= 2
		if delay >= cfg.MaxRetryDelay {
			return cfg.MaxRetryDelay
		}
	}
	if delay > cfg.MaxRetryDelay {
		return cfg.MaxRetryDelay
	}
	return delay
}

// Transient classifies verification failures eligible for retry with
// backoff.
func Transient(reason VerificationFailureReason) bool {
	switch reason {
	case ReasonTimestampOutOfBounds, ReasonNonceReuse:
		return true
	default:
		return false
	}
}
