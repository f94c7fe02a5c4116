package contracts

import "time"

// BeliefShape distinguishes the legacy V1 belief shape from the V2
// canonical shape; both are represented by this one Belief entity,
// tagged rather than forked (see DESIGN.md).
type BeliefShape string

const (
	ShapeV2Canonical BeliefShape = "v2_canonical"
	ShapeV1Legacy    BeliefShape = "v1_legacy"
)

// Belief is a deterministically aggregated claim.
// Immutable; metadata may be overlaid by arbitration decisions by
// emitting a new Belief value that shares the same BeliefID.
type Belief struct {
	BeliefID           string          `json:"belief_id"`
	BeliefType         ObservationType `json:"belief_type"`
	Shape              BeliefShape     `json:"shape"`
	Confidence         float64         `json:"confidence"`
	SourceObservations []string        `json:"source_observations"`
	DerivedAt          time.Time       `json:"derived_at"`
	CorrelationID      string          `json:"correlation_id,omitempty"`
	EvidenceSummary    map[string]any  `json:"evidence_summary"`
	Conflicts          []string        `json:"conflicts,omitempty"`
	Metadata           map[string]any  `json:"metadata,omitempty"`
	SchemaVersion      string          `json:"schema_version"`
}

// WithResolution returns a copy of b with metadata overlaid by an
// arbitration decision: belief identity does not change; this is the
// only sanctioned post-publication edit path.
func (b Belief) WithResolution(arbitrationID string, overlay map[string]any) Belief {
	out := b
	merged := make(map[string]any, len(b.Metadata)+len(overlay)+1)
	for k, v := range b.Metadata {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	merged["arbitration_id"] = arbitrationID
	out.Metadata = merged
	return out
}
