package belief

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slucerodev/admo-core/pkg/audit"
	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/config"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/idgen"
	"github.com/slucerodev/admo-core/pkg/store"
)

func newAggregator(t *testing.T) (*Aggregator, *store.ObservationStore, *store.BeliefStore, *config.Flags) {
	t.Helper()
	flags := config.NewFlags()
	flags.Set(config.FeatureBeliefAggregation, true)
	observations := store.NewObservationStore()
	beliefs := store.NewBeliefStore()
	log := audit.New(idgen.NewFactory(), clock.NewFake(time.Unix(1700000000, 0)))
	return New(flags, observations, beliefs, log), observations, beliefs, flags
}

func systemHealthObs(id string, ts time.Time, cpu, mem, disk float64) contracts.Observation {
	return contracts.Observation{
		ObservationID:    id,
		SourceFederateID: "cell-a",
		TimestampUTC:     ts,
		ObservationType:  contracts.ObsSystemHealth,
		Confidence:       0.9,
		Payload: map[string]any{
			"cpu_utilization":    cpu,
			"memory_utilization": mem,
			"disk_utilization":   disk,
		},
	}
}

func TestAggregate_FeatureDisabled_ReturnsNil(t *testing.T) {
	a, observations, _, flags := newAggregator(t)
	flags.Set(config.FeatureBeliefAggregation, false)
	require.NoError(t, observations.Insert(systemHealthObs("o1", time.Unix(1700000000, 0).UTC(), 10, 10, 10)))

	beliefs, err := a.Aggregate(store.ObservationFilter{})
	require.NoError(t, err)
	require.Nil(t, beliefs)
}

func TestAggregate_GroupsByHourAndDerivesSystemHealth(t *testing.T) {
	a, observations, beliefStore, _ := newAggregator(t)
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, observations.Insert(systemHealthObs("o1", base, 10, 20, 30)))
	require.NoError(t, observations.Insert(systemHealthObs("o2", base.Add(10*time.Minute), 20, 30, 40)))
	require.NoError(t, observations.Insert(systemHealthObs("o3", base.Add(2*time.Hour), 90, 90, 90)))

	beliefs, err := a.Aggregate(store.ObservationFilter{})
	require.NoError(t, err)
	require.Len(t, beliefs, 2)

	var grouped *contracts.Belief
	for i := range beliefs {
		if len(beliefs[i].SourceObservations) == 2 {
			grouped = &beliefs[i]
		}
	}
	require.NotNil(t, grouped)
	require.Equal(t, []string{"o1", "o2"}, grouped.SourceObservations)
	require.InDelta(t, 0.75, grouped.Confidence, 0.01)
	require.Equal(t, 2, grouped.Metadata["observation_count"])

	stored, ok := beliefStore.Get(grouped.BeliefID)
	require.True(t, ok)
	require.Equal(t, grouped.BeliefID, stored.BeliefID)
}

func TestAggregate_ThreatIntel_UnionsTypesAndSources(t *testing.T) {
	a, observations, _, _ := newAggregator(t)
	base := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	require.NoError(t, observations.Insert(contracts.Observation{
		ObservationID: "t1", SourceFederateID: "cell-a", TimestampUTC: base,
		ObservationType: contracts.ObsThreatIntel, Confidence: 0.7,
		Payload: map[string]any{
			"ioc_count": int64(5), "threat_types": []string{"malware"}, "sources": []string{"feed-a"},
			"confidence_score": 0.6,
		},
	}))
	require.NoError(t, observations.Insert(contracts.Observation{
		ObservationID: "t2", SourceFederateID: "cell-a", TimestampUTC: base.Add(time.Minute),
		ObservationType: contracts.ObsThreatIntel, Confidence: 0.8,
		Payload: map[string]any{
			"ioc_count": int64(3), "threat_types": []string{"malware"}, "sources": []string{"feed-b"},
			"confidence_score": 0.8,
		},
	}))

	beliefs, err := a.Aggregate(store.ObservationFilter{})
	require.NoError(t, err)
	require.Len(t, beliefs, 1)
	require.Equal(t, []string{"feed-a", "feed-b"}, beliefs[0].Metadata["sources"])
	require.InDelta(t, 0.7, beliefs[0].Confidence, 0.01)
}

func TestAggregate_DeterministicBeliefID(t *testing.T) {
	a1, obs1, _, _ := newAggregator(t)
	a2, obs2, _, _ := newAggregator(t)
	base := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	require.NoError(t, obs1.Insert(systemHealthObs("o1", base, 1, 1, 1)))
	require.NoError(t, obs2.Insert(systemHealthObs("o1", base, 1, 1, 1)))

	b1, err := a1.Aggregate(store.ObservationFilter{})
	require.NoError(t, err)
	b2, err := a2.Aggregate(store.ObservationFilter{})
	require.NoError(t, err)
	require.Equal(t, b1[0].BeliefID, b2[0].BeliefID)
}
