// Package containment implements the identity containment window:
// a recommender that turns recent observations into containment
// recommendations, and (in effector.go/ticker.go) the intent/apply/
// revert lifecycle that turns an approved recommendation into a real
// side effect with an enforced TTL. Grounded on
// original_source/src/identity_containment/recommender.py's
// IdentityContainmentRecommender and its five hardcoded
// ContainmentRule entries.
package containment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/slucerodev/admo-core/pkg/audit"
	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/store"
)

const lookbackWindow = time.Hour

// rule is a deterministic containment trigger: a CEL boolean
// expression over a fixed feature set, evaluated in declaration order.
// The rule list is a closed, code-shipped set (not an extension
// point) — CEL is only the evaluation substrate, chosen so the
// condition text reads the same as the source's condition strings
// instead of a nest of Go if/else.
type rule struct {
	Name       string
	Expr       string
	Scope      contracts.IdentityContainmentScope
	TTL        time.Duration
	RiskLevel  string
	Confidence float64
}

func sessionsScope() contracts.IdentityContainmentScope {
	return contracts.IdentityContainmentScope{
		ScopeID: "scope-sessions-001", ScopeType: "sessions", SeverityLevel: "medium",
		TTLSeconds: 1800, AutoExpire: true, RequiresApproval: true,
		ApprovalLevel: contracts.ApprovalLevelA2, Effectors: []string{"identity_provider"},
		Conditions: map[string]any{"min_risk_score": 0.7},
	}
}

func loginScope(severity string, ttl int64, minRisk float64) contracts.IdentityContainmentScope {
	return contracts.IdentityContainmentScope{
		ScopeID: "scope-login-001", ScopeType: "login", SeverityLevel: severity,
		TTLSeconds: ttl, AutoExpire: true, RequiresApproval: true,
		ApprovalLevel: contracts.ApprovalLevelA2, Effectors: []string{"identity_provider"},
		Conditions: map[string]any{"min_risk_score": minRisk},
	}
}

func apiAccessScope() contracts.IdentityContainmentScope {
	return contracts.IdentityContainmentScope{
		ScopeID: "scope-api-access-001", ScopeType: "api_access", SeverityLevel: "high",
		TTLSeconds: 1200, AutoExpire: true, RequiresApproval: true,
		ApprovalLevel: contracts.ApprovalLevelA2, Effectors: []string{"api_gateway"},
		Conditions: map[string]any{"min_risk_score": 0.8},
	}
}

func tokenIssuanceScope() contracts.IdentityContainmentScope {
	return contracts.IdentityContainmentScope{
		ScopeID: "scope-token-issuance-001", ScopeType: "token_issuance", SeverityLevel: "high",
		TTLSeconds: 900, AutoExpire: true, RequiresApproval: true,
		ApprovalLevel: contracts.ApprovalLevelA2, Effectors: []string{"token_service"},
		Conditions: map[string]any{"min_risk_score": 0.85},
	}
}

var rules = []rule{
	{
		Name: "threat_intel_high_confidence", Expr: "threat_intel_confidence >= 0.9",
		Scope: sessionsScope(), TTL: 30 * time.Minute, RiskLevel: "CRITICAL", Confidence: 0.95,
	},
	{
		Name: "impossible_travel", Expr: "impossible_travel_score >= 0.8",
		Scope: loginScope("high", 900, 0.8), TTL: 15 * time.Minute, RiskLevel: "HIGH", Confidence: 0.85,
	},
	{
		Name: "repeated_auth_failures", Expr: "auth_failure_count >= 5.0",
		Scope: loginScope("high", 900, 0.8), TTL: 10 * time.Minute, RiskLevel: "MEDIUM", Confidence: 0.75,
	},
	{
		Name: "system_compromise_indicators", Expr: "unhealthy_node_ratio >= 0.5",
		Scope: apiAccessScope(), TTL: 20 * time.Minute, RiskLevel: "HIGH", Confidence: 0.8,
	},
	{
		Name: "anomaly_high_risk", Expr: "anomaly_risk_score >= 0.85",
		Scope: tokenIssuanceScope(), TTL: 15 * time.Minute, RiskLevel: "HIGH", Confidence: 0.8,
	},
}

// Recommender generates containment recommendations from recent
// observations.
type Recommender struct {
	observations *store.ObservationStore
	clock        clock.Clock
	log          *audit.Log
	maxTTL       time.Duration

	env      *cel.Env
	mu       sync.Mutex
	prgCache map[string]cel.Program
}

// NewRecommender returns a Recommender; maxTTL caps every rule's TTL
// regardless of what the rule itself requests.
func NewRecommender(observations *store.ObservationStore, c clock.Clock, log *audit.Log, maxTTL time.Duration) (*Recommender, error) {
	env, err := cel.NewEnv(
		cel.Variable("threat_intel_confidence", cel.DoubleType),
		cel.Variable("impossible_travel_score", cel.DoubleType),
		cel.Variable("auth_failure_count", cel.DoubleType),
		cel.Variable("unhealthy_node_ratio", cel.DoubleType),
		cel.Variable("anomaly_risk_score", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("containment: cel env: %w", err)
	}
	return &Recommender{
		observations: observations, clock: c, log: log, maxTTL: maxTTL,
		env: env, prgCache: make(map[string]cel.Program),
	}, nil
}

// Generate evaluates every rule against observations from the last
// lookback window, grouped by correlation id, and returns one
// recommendation per (subject group, matched rule) pair.
func (r *Recommender) Generate(correlationID string) ([]contracts.IdentityContainmentRecommendation, error) {
	now := r.clock.Now()
	observations := r.observations.List(store.ObservationFilter{Since: now.Add(-lookbackWindow)})

	groups := map[string][]contracts.Observation{}
	for _, obs := range observations {
		key := obs.CorrelationID
		if key == "" {
			key = "default"
		}
		groups[key] = append(groups[key], obs)
	}

	var keys []string
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []contracts.IdentityContainmentRecommendation
	for _, key := range keys {
		group := groups[key]
		if correlationID != "" && key != correlationID {
			continue
		}
		subjectID, provider := extractSubject(group)
		features := extractFeatures(group)

		for _, rl := range rules {
			matched, err := r.evaluate(rl.Expr, features)
			if err != nil {
				return nil, fmt.Errorf("containment: evaluate rule %s: %w", rl.Name, err)
			}
			if !matched {
				continue
			}

			ttl := rl.TTL
			if ttl > r.maxTTL {
				ttl = r.maxTTL
			}
			scope := rl.Scope
			if maxSeconds := int64(r.maxTTL.Seconds()); scope.TTLSeconds > maxSeconds {
				scope.TTLSeconds = maxSeconds
			}
			rec := contracts.IdentityContainmentRecommendation{
				RecommendationID: recommendationID(subjectID, provider, rl.Scope.ScopeType, now),
				SubjectID:        subjectID,
				Provider:         provider,
				Scope:            scope,
				RuleIDs:          []string{rl.Name},
				Rationale:        fmt.Sprintf("containment recommended due to %s", rl.Name),
				CreatedAt:        now,
				SchemaVersion:    contracts.SchemaVersion,
			}
			out = append(out, rec)

			_, _ = r.log.Append(contracts.AuditRecord{
				EventKind:     contracts.EventBeliefDerived,
				CorrelationID: key,
			}, map[string]any{
				"recommendation_id": rec.RecommendationID,
				"subject_id":        subjectID,
				"provider":          provider,
				"scope":             rl.Scope.ScopeType,
				"rule_name":         rl.Name,
				"risk_level":        rl.RiskLevel,
				"confidence":        rl.Confidence,
				"ttl_seconds":       int64(ttl.Seconds()),
			})
		}
	}
	return out, nil
}

func (r *Recommender) evaluate(expr string, input map[string]any) (bool, error) {
	r.mu.Lock()
	prg, ok := r.prgCache[expr]
	if !ok {
		ast, issues := r.env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			r.mu.Unlock()
			return false, issues.Err()
		}
		p, err := r.env.Program(ast, cel.InterruptCheckFrequency(100), cel.CostLimit(10000))
		if err != nil {
			r.mu.Unlock()
			return false, err
		}
		r.prgCache[expr] = p
		prg = p
	}
	r.mu.Unlock()

	out, _, err := prg.Eval(input)
	if err != nil {
		return false, err
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("containment: rule %q did not evaluate to bool", expr)
	}
	return val, nil
}

// extractFeatures derives the fixed numeric feature set every rule's
// CEL expression reads, from one subject's observation group.
func extractFeatures(group []contracts.Observation) map[string]any {
	features := map[string]any{
		"threat_intel_confidence": 0.0,
		"impossible_travel_score": 0.0,
		"auth_failure_count":      0.0,
		"unhealthy_node_ratio":    0.0,
		"anomaly_risk_score":      0.0,
	}

	var authFailures float64
	var unhealthyRatios []float64

	for _, obs := range group {
		switch obs.ObservationType {
		case contracts.ObsThreatIntel:
			if obs.Confidence > features["threat_intel_confidence"].(float64) {
				features["threat_intel_confidence"] = obs.Confidence
			}
		case contracts.ObsAnomalyDetection:
			deviation := floatField(obs.Payload, "baseline_deviation")
			if deviation > features["anomaly_risk_score"].(float64) {
				features["anomaly_risk_score"] = deviation
			}
			if stringField(obs.Payload, "anomaly_type") == "impossible_travel" {
				if deviation > features["impossible_travel_score"].(float64) {
					features["impossible_travel_score"] = deviation
				}
			}
		case contracts.ObsTelemetrySummary:
			if dist, ok := obs.Payload["severity_distribution"].(map[string]any); ok {
				if v, ok := dist["auth_failure"]; ok {
					authFailures += toFloat(v)
				}
			}
		case contracts.ObsSystemHealth:
			total := floatField(obs.Payload, "total_nodes")
			healthy := floatField(obs.Payload, "healthy_nodes")
			if total > 0 {
				unhealthyRatios = append(unhealthyRatios, (total-healthy)/total)
			}
		}
	}

	features["auth_failure_count"] = authFailures
	if len(unhealthyRatios) > 0 {
		var sum float64
		for _, v := range unhealthyRatios {
			sum += v
		}
		features["unhealthy_node_ratio"] = sum / float64(len(unhealthyRatios))
	}
	return features
}

// extractSubject reads a "user:<id>:<provider>" or
// "service:<id>:<provider>" evidence ref out of the group, the same
// simplified convention the source uses; absent that, it falls back
// to an unknown local subject rather than failing the recommendation.
func extractSubject(group []contracts.Observation) (subjectID, provider string) {
	for _, obs := range group {
		for _, ref := range obs.EvidenceRefs {
			parts := strings.Split(ref, ":")
			if len(parts) >= 3 && (parts[0] == "user" || parts[0] == "service") {
				return parts[1], parts[2]
			}
		}
	}
	return "unknown", "local"
}

func recommendationID(subjectID, provider, scopeType string, now time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s:%s:%s:%s", subjectID, provider, scopeType, now.UTC().Format(time.RFC3339Nano))
	return "rec_" + hex.EncodeToString(h.Sum(nil))[:16]
}

func floatField(m map[string]any, key string) float64 {
	if m == nil {
		return 0
	}
	return toFloat(m[key])
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}
