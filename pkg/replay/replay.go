// Package replay implements the audit-log replay reducer: it folds an
// ordered audit record sequence into fresh stores by decoding each
// record's payload into the matching record type. It is a pure function
// of the ordered record sequence — no clock, no randomness, no network —
// so it is safe to run against an exported evidence pack as well as a
// live log. A store record is rebuilt only from the fields its payload
// carries: ingest's observation_accepted payload, for one, holds only
// the observation id, source federate id and observation type, so
// replaying it yields an Observation with just those fields set.
package replay

import (
	"encoding/json"
	"fmt"

	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/store"
)

// Snapshot is the store state reconstructed from a record sequence.
type Snapshot struct {
	Observations *store.ObservationStore
	Beliefs      *store.BeliefStore
	Arbitrations *store.ArbitrationStore
	Approvals    *store.ApprovalStore
	Intents      *store.IntentStore
	Applied      *store.AppliedStore
	Sessions     *store.SessionStore
	Identities   *store.IdentityStore
}

// NewSnapshot returns an empty Snapshot with every store initialized.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Observations: store.NewObservationStore(),
		Beliefs:      store.NewBeliefStore(),
		Arbitrations: store.NewArbitrationStore(),
		Approvals:    store.NewApprovalStore(),
		Intents:      store.NewIntentStore(),
		Applied:      store.NewAppliedStore(),
		Sessions:     store.NewSessionStore(),
		Identities:   store.NewIdentityStore(),
	}
}

// Reduce folds records, in sequence order, into a fresh Snapshot. It
// never stops on a single record's error — a malformed or
// out-of-order record is skipped and reported, since a replayer's job is
// to reconstruct as much verifiable state as possible, not to validate
// the log (Verify, in pkg/audit, already proves hash-chain integrity).
func Reduce(records []contracts.AuditRecord) (*Snapshot, []error) {
	snap := NewSnapshot()
	var errs []error

	for _, rec := range records {
		if err := apply(snap, rec); err != nil {
			errs = append(errs, fmt.Errorf("replay: record %s (%s): %w", rec.AuditID, rec.EventKind, err))
		}
	}
	return snap, errs
}

func apply(snap *Snapshot, rec contracts.AuditRecord) error {
	switch rec.EventKind {
	case contracts.EventObservationAccepted:
		var obs contracts.Observation
		if err := decode(rec.Payload, &obs); err != nil {
			return err
		}
		if err := snap.Observations.Insert(obs); err != nil && err != store.ErrDuplicateID {
			return err
		}
		return nil

	case contracts.EventBeliefDerived:
		var b contracts.Belief
		if err := decode(rec.Payload, &b); err != nil {
			return err
		}
		snap.Beliefs.Put(b)
		return nil

	case contracts.EventArbitrationCreated:
		var a contracts.Arbitration
		if err := decode(rec.Payload, &a); err != nil {
			return err
		}
		if err := snap.Arbitrations.Insert(a); err != nil && err != store.ErrDuplicateID {
			return err
		}
		return nil

	case contracts.EventArbitrationResolved, contracts.EventArbitrationRejected:
		var a contracts.Arbitration
		if err := decode(rec.Payload, &a); err != nil {
			return err
		}
		return snap.Arbitrations.Update(a)

	case contracts.EventApprovalDecided, contracts.EventApprovalExpired:
		var a contracts.Approval
		if err := decode(rec.Payload, &a); err != nil {
			return err
		}
		if existing, ok := snap.Approvals.Get(a.ApprovalID); ok {
			existing.Status, existing.DecidedAt, existing.Rationale = a.Status, a.DecidedAt, a.Rationale
			return snap.Approvals.Decide(existing)
		}
		if err := snap.Approvals.Insert(a); err != nil && err != store.ErrDuplicateID {
			return err
		}
		return nil

	case contracts.EventIdentityContainmentApplied:
		var rec2 contracts.AppliedRecord
		if err := decode(rec.Payload, &rec2); err != nil {
			return err
		}
		if err := snap.Applied.Apply(rec2); err != nil && err != store.ErrDuplicateID {
			return err
		}
		return nil

	case contracts.EventIdentityContainmentReverted:
		var rev contracts.RevertedRecord
		if err := decode(rec.Payload, &rev); err != nil {
			return err
		}
		snap.Applied.Revert(rev.Key, rev)
		return nil

	case contracts.EventHandshakeStarted, contracts.EventHandshakeTransition, contracts.EventHandshakeConfirmed:
		var sess contracts.HandshakeSession
		if err := decode(rec.Payload, &sess); err != nil {
			return err
		}
		if err := snap.Sessions.Create(sess, sess.CreatedAt, 0); err != nil {
			return snap.Sessions.Update(sess)
		}
		return nil

	default:
		// Events with no store-mutating effect (gate decisions, feature
		// flags, conflict detection) are audit-only and intentionally
		// not replayed into any store.
		return nil
	}
}

func decode(payload map[string]any, target any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(b, target); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}
