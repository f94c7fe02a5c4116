package containment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slucerodev/admo-core/pkg/audit"
	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/idgen"
	"github.com/slucerodev/admo-core/pkg/store"
)

func newRecommender(t *testing.T) (*Recommender, *store.ObservationStore, *clock.Fake) {
	t.Helper()
	observations := store.NewObservationStore()
	fc := clock.NewFake(time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC))
	log := audit.New(idgen.NewFactory(), fc)
	r, err := NewRecommender(observations, fc, log, time.Hour)
	require.NoError(t, err)
	return r, observations, fc
}

func TestGenerate_ThreatIntelHighConfidence_Recommends(t *testing.T) {
	r, observations, fc := newRecommender(t)
	require.NoError(t, observations.Insert(contracts.Observation{
		ObservationID: "o1", SourceFederateID: "f1", TimestampUTC: fc.Now(),
		ObservationType: contracts.ObsThreatIntel, Confidence: 0.95,
		CorrelationID: "corr-1", EvidenceRefs: []string{"user:alice:okta"},
		Payload: map[string]any{"ioc_count": int64(3)},
	}))

	recs, err := r.Generate("")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "alice", recs[0].SubjectID)
	require.Equal(t, "okta", recs[0].Provider)
	require.Equal(t, "sessions", recs[0].Scope.ScopeType)
}

func TestGenerate_ImpossibleTravel_Recommends(t *testing.T) {
	r, observations, fc := newRecommender(t)
	require.NoError(t, observations.Insert(contracts.Observation{
		ObservationID: "o1", SourceFederateID: "f1", TimestampUTC: fc.Now(),
		ObservationType: contracts.ObsAnomalyDetection, Confidence: 0.9,
		CorrelationID: "corr-2", EvidenceRefs: []string{"user:bob:azure_ad"},
		Payload: map[string]any{"anomaly_type": "impossible_travel", "baseline_deviation": 0.85},
	}))

	recs, err := r.Generate("")
	require.NoError(t, err)
	// A baseline_deviation of 0.85 also meets the anomaly_risk_score >= 0.85
	// rule, whose token_issuance recommendation follows the login one.
	require.Len(t, recs, 2)
	require.Equal(t, "login", recs[0].Scope.ScopeType)
	require.Equal(t, "token_issuance", recs[1].Scope.ScopeType)
}

func TestGenerate_NoMatchingRule_NoRecommendations(t *testing.T) {
	r, observations, fc := newRecommender(t)
	require.NoError(t, observations.Insert(contracts.Observation{
		ObservationID: "o1", SourceFederateID: "f1", TimestampUTC: fc.Now(),
		ObservationType: contracts.ObsThreatIntel, Confidence: 0.4, CorrelationID: "corr-3",
	}))

	recs, err := r.Generate("")
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestGenerate_FiltersByCorrelationID(t *testing.T) {
	r, observations, fc := newRecommender(t)
	require.NoError(t, observations.Insert(contracts.Observation{
		ObservationID: "o1", SourceFederateID: "f1", TimestampUTC: fc.Now(),
		ObservationType: contracts.ObsThreatIntel, Confidence: 0.95, CorrelationID: "corr-a",
	}))
	require.NoError(t, observations.Insert(contracts.Observation{
		ObservationID: "o2", SourceFederateID: "f1", TimestampUTC: fc.Now(),
		ObservationType: contracts.ObsThreatIntel, Confidence: 0.95, CorrelationID: "corr-b",
	}))

	recs, err := r.Generate("corr-a")
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestGenerate_SystemHealth_UnhealthyRatio_Recommends(t *testing.T) {
	r, observations, fc := newRecommender(t)
	require.NoError(t, observations.Insert(contracts.Observation{
		ObservationID: "o1", SourceFederateID: "f1", TimestampUTC: fc.Now(),
		ObservationType: contracts.ObsSystemHealth, Confidence: 0.6, CorrelationID: "corr-4",
		Payload: map[string]any{"total_nodes": int64(10), "healthy_nodes": int64(3)},
	}))

	recs, err := r.Generate("")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "api_access", recs[0].Scope.ScopeType)
}
