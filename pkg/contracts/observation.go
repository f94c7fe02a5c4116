package contracts

import "time"

// ObservationType tags the typed payload union carried by an Observation.
type ObservationType string

const (
	ObsTelemetrySummary  ObservationType = "telemetry_summary"
	ObsThreatIntel       ObservationType = "threat_intel"
	ObsAnomalyDetection  ObservationType = "anomaly_detection"
	ObsSystemHealth      ObservationType = "system_health"
	ObsNetworkActivity   ObservationType = "network_activity"
	ObsCustom            ObservationType = "custom"
)

// Observation is a signed claim ingested from a confirmed peer.
type Observation struct {
	ObservationID    string          `json:"observation_id"`
	SourceFederateID string          `json:"source_federate_id"`
	TimestampUTC     time.Time       `json:"timestamp_utc"`
	CorrelationID    string          `json:"correlation_id,omitempty"`
	Nonce            string          `json:"nonce,omitempty"`
	ObservationType  ObservationType `json:"observation_type"`
	Confidence       float64         `json:"confidence"`
	EvidenceRefs     []string        `json:"evidence_refs"`
	Payload          map[string]any  `json:"payload"`
	Signature        *SignatureInfo  `json:"signature,omitempty"`
	SchemaVersion    string          `json:"schema_version"`
}

// SignedPayload returns the subset of fields an Observation's signature
// covers, mirroring Envelope.SignedPayload.
func (o Observation) SignedPayload() map[string]any {
	return map[string]any{
		"observation_id":     o.ObservationID,
		"source_federate_id": o.SourceFederateID,
		"timestamp_utc":      RFC3339UTC(o.TimestampUTC),
		"correlation_id":     o.CorrelationID,
		"nonce":              o.Nonce,
		"observation_type":   string(o.ObservationType),
		"confidence":         o.Confidence,
		"evidence_refs":      o.EvidenceRefs,
		"payload":            o.Payload,
	}
}

// TelemetrySummaryPayload, ThreatIntelPayload, AnomalyDetectionPayload,
// SystemHealthPayload and NetworkActivityPayload are the five typed
// observation payload shapes (original_source/spec/contracts/models_v1.py).
// Observation.Payload carries these marshaled to map[string]any;
// pkg/ingest validates that map against a per-type JSON Schema and
// pkg/belief's reducers read fields from the map directly, so no
// package decodes into these structs.

type TelemetrySummaryPayload struct {
	EventCount          int64              `json:"event_count"`
	SeverityDistribution map[string]int64  `json:"severity_distribution"`
}

type ThreatIntelPayload struct {
	IOCCount        int64    `json:"ioc_count"`
	ThreatTypes     []string `json:"threat_types"`
	Sources         []string `json:"sources"`
	ConfidenceScore float64  `json:"confidence_score"`
}

type AnomalyDetectionPayload struct {
	AnomalyScore      float64  `json:"anomaly_score"`
	AnomalyType       string   `json:"anomaly_type"`
	AffectedEntities  []string `json:"affected_entities"`
	BaselineDeviation float64  `json:"baseline_deviation"`
}

type SystemHealthPayload struct {
	CPUUtilization     float64 `json:"cpu_utilization"`
	MemoryUtilization  float64 `json:"memory_utilization"`
	DiskUtilization    float64 `json:"disk_utilization"`
	LatencyMS          float64 `json:"latency_ms"`
	HealthyNodes       int64   `json:"healthy_nodes"`
	TotalNodes         int64   `json:"total_nodes"`
}

type NetworkActivityPayload struct {
	Connections    int64    `json:"connections"`
	Bytes          int64    `json:"bytes"`
	Protocols      []string `json:"protocols"`
	SuspiciousIPs  []string `json:"suspicious_ips"`
}
