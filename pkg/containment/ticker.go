// ticker.go implements the periodic auto-revert sweep: every applied
// containment record past its TTL gets reverted without waiting for an
// operator. Grounded on
// original_source/src/identity_containment/execution.py's
// IdentityContainmentTickService (should_tick/tick), adapted to an
// explicit method the host loop calls on its own interval rather than
// a service that tracks its own last-tick timestamp.
package containment

import (
	"github.com/slucerodev/admo-core/pkg/contracts"
)

// Tick reverts every applied containment record whose TTL has
// elapsed as of now, and returns how many were reverted.
func (s *Service) Tick() int {
	now := s.clock.Now()
	due := s.applied.DueForRevert(now)
	reverted := 0
	for _, rec := range due {
		if s.revertKey(rec.Key, rec.SubjectID, rec.Provider, rec.ScopeType, rec.IntentID, "ttl_expired") {
			if intent, ok := s.intents.Get(rec.IntentID); ok {
				intent.ExecutionStatus = contracts.ExecReverted
				_ = s.intents.Update(intent)
			}
			reverted++
		}
	}

	_, _ = s.log.Append(contracts.AuditRecord{EventKind: contracts.EventIdentityContainmentTick}, map[string]any{
		"reverted_count": reverted,
	})
	return reverted
}
