// Package ingest implements the observation ingest pipeline: the single
// entry point through which an external observation from a confirmed
// federate becomes a stored, audited Observation. Grounded on
// original_source/src/federation/observation_ingestion.py's ordered,
// first-failure-short-circuits pipeline shape, with the Go-specific
// addition of a per-federate token-bucket rate limiter
// (pkg/ratelimit) run before the pipeline proper, matching
// pkg/api/middleware.go's defense against a single noisy caller.
package ingest

import (
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/slucerodev/admo-core/pkg/audit"
	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/config"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/crypto"
	"github.com/slucerodev/admo-core/pkg/ratelimit"
	"github.com/slucerodev/admo-core/pkg/store"
)

// RejectionReason is the reason an observation was rejected, carried on
// the observation_rejected audit event: one of the constants below or,
// for a failed signature check, the VerificationFailureReason value.
type RejectionReason string

const (
	RejectFeatureDisabled        RejectionReason = "feature_disabled"
	RejectRateLimited            RejectionReason = "rate_limited"
	RejectFederateNotFound       RejectionReason = "federate_not_found"
	RejectSchemaValidationFailed RejectionReason = "schema_validation_failed"
	RejectNonceReplay            RejectionReason = "nonce_replay"
	RejectDuplicateObservation   RejectionReason = "duplicate_observation"
)

// Result is the outcome of one Ingest call.
type Result struct {
	Observation contracts.Observation
	Accepted    bool
	Reason      RejectionReason
}

// Pipeline runs the seven-step ingest pipeline against one cell's
// stores.
type Pipeline struct {
	flags             *config.Flags
	identities        *store.IdentityStore
	observations      *store.ObservationStore
	nonces            crypto.NonceGuard
	limiter           *ratelimit.PerFederateLimiter
	log               *audit.Log
	clock             clock.Clock
	schemas           map[contracts.ObservationType]*jsonschema.Schema
	requireSignatures bool
	maxClockSkew      time.Duration
	maxObservationAge time.Duration
}

// New compiles the payload schemas and returns a ready Pipeline.
// requireSignatures defaults to true per the ingest spec; pass false
// only for deployments that accept unsigned observations from a
// trusted transport.
func New(
	flags *config.Flags,
	identities *store.IdentityStore,
	observations *store.ObservationStore,
	nonces crypto.NonceGuard,
	limiter *ratelimit.PerFederateLimiter,
	log *audit.Log,
	clk clock.Clock,
	requireSignatures bool,
	maxClockSkew time.Duration,
) (*Pipeline, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		flags:             flags,
		identities:        identities,
		observations:      observations,
		nonces:            nonces,
		limiter:           limiter,
		log:               log,
		clock:             clk,
		schemas:           schemas,
		requireSignatures: requireSignatures,
		maxClockSkew:      maxClockSkew,
		maxObservationAge: 24 * time.Hour,
	}, nil
}

// Ingest runs obs through the ordered pipeline, short-circuiting on the
// first failing step.
func (p *Pipeline) Ingest(obs contracts.Observation) (Result, error) {
	now := p.clock.Now()

	if !p.limiter.Allow(obs.SourceFederateID, now) {
		return p.reject(obs, RejectRateLimited)
	}
	if !p.flags.Enabled(config.FeatureObservationIngest) {
		return p.reject(obs, RejectFeatureDisabled)
	}

	identity, ok := p.identities.Get(obs.SourceFederateID)
	if !ok || identity.Status != contracts.CellActive {
		return p.reject(obs, RejectFederateNotFound)
	}

	if reason, ok := p.validateSchema(obs, now); !ok {
		return p.reject(obs, reason)
	}

	if p.requireSignatures {
		pub, err := crypto.DecodePublicKeyB64(identity.PublicKeyB64)
		if err != nil {
			return p.reject(obs, RejectSchemaValidationFailed)
		}
		verdict := crypto.VerifyIntegrity(
			obs.SignedPayload(), obs.Signature, obs.SourceFederateID, identity.KeyID, pub,
			obs.Nonce, now, p.maxClockSkew, obs.TimestampUTC, p.nonces,
		)
		if !verdict.Valid {
			return p.reject(obs, RejectionReason(verdict.FailureReason))
		}
	}

	if obs.Nonce != "" && p.observations.NonceSeen(obs.SourceFederateID, obs.Nonce) {
		return p.reject(obs, RejectNonceReplay)
	}

	if p.observations.Exists(obs.ObservationID) {
		return p.reject(obs, RejectDuplicateObservation)
	}

	if err := p.observations.Insert(obs); err != nil {
		if err == store.ErrDuplicateID {
			return p.reject(obs, RejectDuplicateObservation)
		}
		return Result{}, fmt.Errorf("ingest: store observation: %w", err)
	}
	if _, err := p.log.Append(contracts.AuditRecord{
		EventKind:     contracts.EventObservationAccepted,
		CorrelationID: obs.CorrelationID,
	}, map[string]any{
		"observation_id":     obs.ObservationID,
		"source_federate_id": obs.SourceFederateID,
		"observation_type":   string(obs.ObservationType),
	}); err != nil {
		return Result{}, err
	}
	return Result{Observation: obs, Accepted: true}, nil
}

func (p *Pipeline) validateSchema(obs contracts.Observation, now time.Time) (RejectionReason, bool) {
	if obs.ObservationID == "" || obs.SourceFederateID == "" {
		return RejectSchemaValidationFailed, false
	}
	if obs.Confidence < 0 || obs.Confidence > 1 {
		return RejectSchemaValidationFailed, false
	}
	if len(obs.Payload) == 0 {
		return RejectSchemaValidationFailed, false
	}
	if obs.TimestampUTC.After(now) {
		return RejectSchemaValidationFailed, false
	}
	if now.Sub(obs.TimestampUTC) > p.maxObservationAge {
		return RejectSchemaValidationFailed, false
	}
	schema, ok := p.schemas[obs.ObservationType]
	if !ok {
		return RejectSchemaValidationFailed, false
	}
	if err := schema.Validate(obs.Payload); err != nil {
		return RejectSchemaValidationFailed, false
	}
	return "", true
}

func (p *Pipeline) reject(obs contracts.Observation, reason RejectionReason) (Result, error) {
	if _, err := p.log.Append(contracts.AuditRecord{
		EventKind:     contracts.EventObservationRejected,
		CorrelationID: obs.CorrelationID,
	}, map[string]any{
		"observation_id":     obs.ObservationID,
		"source_federate_id": obs.SourceFederateID,
		"reason":             string(reason),
	}); err != nil {
		return Result{}, err
	}
	return Result{Observation: obs, Reason: reason}, nil
}
