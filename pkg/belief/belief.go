// Package belief implements deterministic aggregation of observations
// into beliefs: a pure reducer over a set of observations, grounded on
// original_source/src/federation/belief_aggregation.py's
// BeliefAggregationService (_group_observations_for_aggregation,
// _aggregation_rules dispatch table, per-type _aggregate_* functions).
package belief

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/slucerodev/admo-core/pkg/audit"
	"github.com/slucerodev/admo-core/pkg/config"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/idgen"
	"github.com/slucerodev/admo-core/pkg/store"
)

// Aggregator groups observations into beliefs and stores the result.
type Aggregator struct {
	flags        *config.Flags
	observations *store.ObservationStore
	beliefs      *store.BeliefStore
	log          *audit.Log
}

// New returns an Aggregator wired to the given stores.
func New(flags *config.Flags, observations *store.ObservationStore, beliefs *store.BeliefStore, log *audit.Log) *Aggregator {
	return &Aggregator{flags: flags, observations: observations, beliefs: beliefs, log: log}
}

// Aggregate groups the observations matching filter and derives one
// belief per group, storing each and returning the newly created set.
// Returns nil with no error when the feature flag is off, matching the
// source's early return on a disabled feature.
func (a *Aggregator) Aggregate(filter store.ObservationFilter) ([]contracts.Belief, error) {
	if !a.flags.Enabled(config.FeatureBeliefAggregation) {
		return nil, nil
	}

	observations := a.observations.List(filter)
	if len(observations) == 0 {
		return nil, nil
	}

	groups := groupObservations(observations)

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	beliefs := make([]contracts.Belief, 0, len(keys))
	for _, k := range keys {
		b := deriveBelief(groups[k])
		if err := a.beliefs.Insert(b); err != nil {
			if err == store.ErrDuplicateID {
				continue
			}
			return beliefs, fmt.Errorf("belief: store belief: %w", err)
		}
		beliefs = append(beliefs, b)
		if _, err := a.log.Append(contracts.AuditRecord{
			EventKind:     contracts.EventBeliefDerived,
			CorrelationID: b.CorrelationID,
		}, map[string]any{
			"belief_id":           b.BeliefID,
			"belief_type":         string(b.BeliefType),
			"source_observations": b.SourceObservations,
		}); err != nil {
			return beliefs, err
		}
	}
	return beliefs, nil
}

// groupObservations buckets observations by the deterministic grouping
// key: (observation_type, correlation_id, hourly_window, type_specific_key).
func groupObservations(observations []contracts.Observation) map[string][]contracts.Observation {
	groups := make(map[string][]contracts.Observation)
	for _, o := range observations {
		key := groupKey(o)
		groups[key] = append(groups[key], o)
	}
	return groups
}

func groupKey(o contracts.Observation) string {
	corr := o.CorrelationID
	if corr == "" {
		corr = "no_correlation"
	}
	parts := []string{
		string(o.ObservationType),
		corr,
		hourWindow(o.TimestampUTC),
	}
	if secondary := payloadGroupingKey(o); secondary != "" {
		parts = append(parts, secondary)
	}
	return strings.Join(parts, "|")
}

func hourWindow(t time.Time) string {
	return t.UTC().Truncate(time.Hour).Format(time.RFC3339)
}

func payloadGroupingKey(o contracts.Observation) string {
	switch o.ObservationType {
	case contracts.ObsThreatIntel:
		types := stringSliceField(o.Payload, "threat_types")
		sort.Strings(types)
		return strings.Join(types, ",")
	case contracts.ObsAnomalyDetection:
		if v, ok := o.Payload["anomaly_type"].(string); ok {
			return v
		}
	}
	return ""
}

// deriveBelief applies the type-specific reducer to group and builds
// the resulting Belief. group is non-empty.
func deriveBelief(group []contracts.Observation) contracts.Belief {
	obsType := group[0].ObservationType

	reduce, ok := reducers[obsType]
	if !ok {
		reduce = reduceCustom
	}
	confidence, metadata := reduce(group)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	ids := make([]string, len(group))
	timestamps := make([]time.Time, len(group))
	derivedAt := group[0].TimestampUTC
	for i, o := range group {
		ids[i] = o.ObservationID
		timestamps[i] = o.TimestampUTC
		if o.TimestampUTC.After(derivedAt) {
			derivedAt = o.TimestampUTC
		}
	}
	sort.Strings(ids)

	correlationID := group[0].CorrelationID
	if correlationID == "" {
		correlationID = "no-correlation"
	}

	return contracts.Belief{
		BeliefID:           idgen.Deterministic(ids, timestamps, derivedAt),
		BeliefType:         obsType,
		Shape:              contracts.ShapeV2Canonical,
		Confidence:         confidence,
		SourceObservations: ids,
		DerivedAt:          derivedAt,
		CorrelationID:      correlationID,
		EvidenceSummary: map[string]any{
			"summary":            fmt.Sprintf("Aggregated from %d %s observations", len(group), obsType),
			"observation_count":  len(group),
		},
		Metadata:      metadata,
		SchemaVersion: "2.0.0",
	}
}
