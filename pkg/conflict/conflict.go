// Package conflict groups beliefs by a deterministic conflict key and
// raises an Arbitration when a group's claims are incompatible.
// Grounded on original_source/src/federation/conflict_detection.py's
// ConflictDetectionService (_generate_conflict_key,
// _detect_incompatible_claims, _detect_threat_intel_conflicts,
// _detect_system_health_conflicts, _determine_conflict_type).
package conflict

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/slucerodev/admo-core/pkg/approval"
	"github.com/slucerodev/admo-core/pkg/audit"
	"github.com/slucerodev/admo-core/pkg/canonicalize"
	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/config"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/idgen"
	"github.com/slucerodev/admo-core/pkg/store"
)

const confidenceSpreadThreshold = 0.3
const healthScoreSpreadThreshold = 0.4

// approvalTTL is how long a conflict-detected arbitration's human
// approval request stays pending before the approval service's expiry
// sweep transitions it to expired.
const approvalTTL = 24 * time.Hour

// Detector groups beliefs by conflict key and raises arbitrations for
// groups whose claims disagree, minting the A3 human approval each
// raised arbitration requires.
type Detector struct {
	flags        *config.Flags
	arbitrations *store.ArbitrationStore
	approvals    *approval.Service
	ids          *idgen.Factory
	log          *audit.Log
	clock        clock.Clock
}

// New returns a Detector wired to the given arbitration store and the
// approval service that mints every raised arbitration's approval.
func New(flags *config.Flags, arbitrations *store.ArbitrationStore, approvals *approval.Service, ids *idgen.Factory, log *audit.Log, c clock.Clock) *Detector {
	return &Detector{flags: flags, arbitrations: arbitrations, approvals: approvals, ids: ids, log: log, clock: c}
}

// requestApproval mints the A3 human approval a newly raised
// arbitration requires, binding it to the arbitration by the same
// canonical-hash scheme arbitration.Service uses.
func (d *Detector) requestApproval(arb contracts.Arbitration, now time.Time) (contracts.Approval, error) {
	hash, err := canonicalize.CanonicalHash(map[string]any{
		"arbitration_id": arb.ArbitrationID,
		"conflict_key":   arb.ConflictKey,
		"created_at_utc": arb.CreatedAtUTC.UTC().Format(contracts.RFC3339UTC),
	})
	if err != nil {
		return contracts.Approval{}, err
	}
	rationale := fmt.Sprintf("human approval required for %s conflict", arb.ConflictType)
	approvalRec, _, err := d.approvals.Request(contracts.ActionA3Irreversible, "", "arbitration:"+arb.ArbitrationID, hash, rationale, approvalTTL)
	if err != nil {
		return contracts.Approval{}, err
	}
	return approvalRec, nil
}

// Detect groups beliefs by conflict key, runs the predicate checks on
// every group of two or more, and stores + audits an Arbitration for
// each group that disagrees. Returns nil with no error when the
// feature flag is off.
func (d *Detector) Detect(beliefs []contracts.Belief) ([]contracts.Arbitration, error) {
	if !d.flags.Enabled(config.FeatureConflictDetection) {
		return nil, nil
	}
	if len(beliefs) == 0 {
		return nil, nil
	}

	groups := make(map[string][]contracts.Belief)
	var keys []string
	for _, b := range beliefs {
		key := conflictKey(b)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], b)
	}
	sort.Strings(keys)

	var arbitrations []contracts.Arbitration
	now := d.clock.Now()
	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		detected := detectConflicts(group)
		if len(detected) == 0 {
			continue
		}

		id, err := d.ids.New(now)
		if err != nil {
			return arbitrations, fmt.Errorf("conflict: generate arbitration id: %w", err)
		}
		arb := buildArbitration(id, now, key, group, detected)

		approvalRec, err := d.requestApproval(arb, now)
		if err != nil {
			return arbitrations, fmt.Errorf("conflict: approval request: %w", err)
		}
		arb.ApprovalID = approvalRec.ApprovalID

		if err := d.arbitrations.Insert(arb); err != nil {
			return arbitrations, fmt.Errorf("conflict: store arbitration: %w", err)
		}
		arbitrations = append(arbitrations, arb)

		if _, err := d.log.Append(contracts.AuditRecord{
			EventKind:     contracts.EventConflictDetected,
			CorrelationID: arb.CorrelationID,
		}, map[string]any{
			"arbitration_id": arb.ArbitrationID,
			"conflict_type":  string(arb.ConflictType),
			"subject_key":    arb.SubjectKey,
			"conflict_key":   arb.ConflictKey,
			"approval_id":    arb.ApprovalID,
			"num_claims":     len(arb.Claims),
		}); err != nil {
			return arbitrations, err
		}
	}
	return arbitrations, nil
}

// conflictKey is first16(hex(sha256(belief_type:subject_key:hourly_window))).
func conflictKey(b contracts.Belief) string {
	raw := strings.Join([]string{string(b.BeliefType), subjectKey(b), hourWindow(b.DerivedAt)}, ":")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:16]
}

func subjectKey(b contracts.Belief) string {
	if v, ok := b.Metadata["subject"]; ok {
		return fmt.Sprint(v)
	}
	if v, ok := b.Metadata["subject_id"]; ok {
		return fmt.Sprint(v)
	}
	if b.CorrelationID != "" {
		return b.CorrelationID
	}
	return "no-correlation"
}

func hourWindow(t time.Time) string {
	return t.UTC().Format("2006-01-02-15")
}

type detectedConflict struct {
	kind        contracts.ConflictType
	description string
	beliefIDs   []string
}

func detectConflicts(group []contracts.Belief) []detectedConflict {
	var out []detectedConflict

	if hasConfidenceConflict(group) {
		out = append(out, detectedConflict{
			kind:        contracts.ConflictConfidenceDispute,
			description: "beliefs have conflicting confidence levels",
			beliefIDs:   beliefIDs(group),
		})
	}

	if hasEvidenceConflict(group) {
		out = append(out, detectedConflict{
			kind:        contracts.ConflictEvidenceConflict,
			description: "beliefs have disjoint source observations",
			beliefIDs:   beliefIDs(group),
		})
	}

	claimType := string(group[0].BeliefType)
	switch {
	case strings.HasPrefix(claimType, "threat_"):
		if types := distinctThreatTypes(group); len(types) > 1 {
			out = append(out, detectedConflict{
				kind:        contracts.ConflictThreatClassification,
				description: fmt.Sprintf("multiple threat types: %s", strings.Join(types, ", ")),
				beliefIDs:   beliefIDs(group),
			})
		}
	case strings.HasPrefix(claimType, "system_health"):
		if spread, ok := healthScoreSpread(group); ok && spread > healthScoreSpreadThreshold {
			out = append(out, detectedConflict{
				kind:        contracts.ConflictSystemHealth,
				description: fmt.Sprintf("health scores diverge by %.3f", spread),
				beliefIDs:   beliefIDs(group),
			})
		}
	}

	return out
}

func hasConfidenceConflict(group []contracts.Belief) bool {
	min, max := group[0].Confidence, group[0].Confidence
	for _, b := range group[1:] {
		if b.Confidence < min {
			min = b.Confidence
		}
		if b.Confidence > max {
			max = b.Confidence
		}
	}
	return (max - min) > confidenceSpreadThreshold
}

func hasEvidenceConflict(group []contracts.Belief) bool {
	sets := make([]map[string]struct{}, len(group))
	for i, b := range group {
		s := make(map[string]struct{}, len(b.SourceObservations))
		for _, id := range b.SourceObservations {
			s[id] = struct{}{}
		}
		sets[i] = s
	}
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			if disjoint(sets[i], sets[j]) {
				return true
			}
		}
	}
	return false
}

func disjoint(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return false
		}
	}
	return true
}

func distinctThreatTypes(group []contracts.Belief) []string {
	seen := map[string]struct{}{}
	for _, b := range group {
		for _, t := range stringSlice(b.Metadata["threat_types"]) {
			seen[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func healthScoreSpread(group []contracts.Belief) (float64, bool) {
	var scores []float64
	for _, b := range group {
		if v, ok := b.Metadata["health_score"].(float64); ok {
			scores = append(scores, v)
		}
	}
	if len(scores) < 2 {
		return 0, false
	}
	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	spread := max - min
	if spread < 0 {
		spread = -spread
	}
	return spread, true
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func beliefIDs(group []contracts.Belief) []string {
	ids := make([]string, len(group))
	for i, b := range group {
		ids[i] = b.BeliefID
	}
	sort.Strings(ids)
	return ids
}

// determineConflictType picks one ConflictType by precedence when
// multiple predicates fire: threat_classification > system_health >
// confidence_dispute > evidence_conflict.
func determineConflictType(detected []detectedConflict) contracts.ConflictType {
	precedence := []contracts.ConflictType{
		contracts.ConflictThreatClassification,
		contracts.ConflictSystemHealth,
		contracts.ConflictConfidenceDispute,
		contracts.ConflictEvidenceConflict,
	}
	present := make(map[contracts.ConflictType]struct{}, len(detected))
	for _, c := range detected {
		present[c.kind] = struct{}{}
	}
	for _, kind := range precedence {
		if _, ok := present[kind]; ok {
			return kind
		}
	}
	return contracts.ConflictEvidenceConflict
}

func buildArbitration(id string, now time.Time, key string, group []contracts.Belief, detected []detectedConflict) contracts.Arbitration {
	claims := make([]contracts.Claim, len(group))
	var evidenceRefs []string
	seenRefs := map[string]struct{}{}
	for i, b := range group {
		claims[i] = contracts.Claim{
			BeliefID:     b.BeliefID,
			ClaimType:    string(b.BeliefType),
			Confidence:   b.Confidence,
			EvidenceRefs: b.SourceObservations,
		}
		for _, ref := range b.SourceObservations {
			if _, ok := seenRefs[ref]; !ok {
				seenRefs[ref] = struct{}{}
				evidenceRefs = append(evidenceRefs, ref)
			}
		}
	}
	sort.Strings(evidenceRefs)

	descriptions := make(map[string]any, len(detected))
	for _, c := range detected {
		descriptions[string(c.kind)] = c.description
	}

	return contracts.Arbitration{
		ArbitrationID: id,
		CreatedAtUTC:  now,
		Status:        contracts.ArbitrationOpen,
		ConflictType:  determineConflictType(detected),
		SubjectKey:    subjectKey(group[0]),
		ConflictKey:   key,
		Claims:        claims,
		EvidenceRefs:  evidenceRefs,
		CorrelationID: group[0].CorrelationID,
		Metadata:      map[string]any{"conflicts_detected": descriptions},
		SchemaVersion: "2.0.0",
	}
}
