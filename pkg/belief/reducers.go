package belief

import (
	"sort"

	"github.com/slucerodev/admo-core/pkg/contracts"
)

// reducer computes (confidence, metadata) for one group of
// same-typed observations. Grounded on belief_aggregation.py's
// per-type _aggregate_* functions.
type reducer func(group []contracts.Observation) (float64, map[string]any)

var reducers = map[contracts.ObservationType]reducer{
	contracts.ObsTelemetrySummary: reduceTelemetrySummary,
	contracts.ObsThreatIntel:      reduceThreatIntel,
	contracts.ObsAnomalyDetection: reduceAnomalyDetection,
	contracts.ObsSystemHealth:     reduceSystemHealth,
	contracts.ObsNetworkActivity:  reduceNetworkActivity,
	contracts.ObsCustom:           reduceCustom,
}

func reduceTelemetrySummary(group []contracts.Observation) (float64, map[string]any) {
	var totalEvents int64
	severity := map[string]int64{}
	var confSum float64
	for _, o := range group {
		totalEvents += int64Field(o.Payload, "event_count")
		for k, v := range mapField(o.Payload, "severity_distribution") {
			severity[k] += toInt64(v)
		}
		confSum += o.Confidence
	}
	return confSum / float64(len(group)), map[string]any{
		"total_events":           totalEvents,
		"observation_count":      len(group),
		"severity_distribution": severity,
	}
}

func reduceThreatIntel(group []contracts.Observation) (float64, map[string]any) {
	var totalIOCs int64
	threatTypes := map[string]struct{}{}
	sources := map[string]struct{}{}
	var confSum float64
	for _, o := range group {
		totalIOCs += int64Field(o.Payload, "ioc_count")
		for _, t := range stringSliceField(o.Payload, "threat_types") {
			threatTypes[t] = struct{}{}
		}
		for _, s := range stringSliceField(o.Payload, "sources") {
			sources[s] = struct{}{}
		}
		confSum += floatField(o.Payload, "confidence_score")
	}
	avg := 0.0
	if len(group) > 0 {
		avg = confSum / float64(len(group))
	}
	return avg, map[string]any{
		"total_iocs":        totalIOCs,
		"threat_types":      sortedKeys(threatTypes),
		"sources":           sortedKeys(sources),
		"observation_count": len(group),
	}
}

func reduceAnomalyDetection(group []contracts.Observation) (float64, map[string]any) {
	var scoreSum, devSum float64
	entities := map[string]struct{}{}
	for _, o := range group {
		scoreSum += floatField(o.Payload, "anomaly_score")
		devSum += floatField(o.Payload, "baseline_deviation")
		for _, e := range stringSliceField(o.Payload, "affected_entities") {
			entities[e] = struct{}{}
		}
	}
	n := float64(len(group))
	avgScore := scoreSum / n
	return avgScore, map[string]any{
		"average_anomaly_score":      avgScore,
		"affected_entities":          sortedKeys(entities),
		"average_baseline_deviation": devSum / n,
		"observation_count":          len(group),
	}
}

func reduceSystemHealth(group []contracts.Observation) (float64, map[string]any) {
	var cpuSum, memSum, diskSum, latSum float64
	for _, o := range group {
		cpuSum += floatField(o.Payload, "cpu_utilization")
		memSum += floatField(o.Payload, "memory_utilization")
		diskSum += floatField(o.Payload, "disk_utilization")
		latSum += floatField(o.Payload, "latency_ms")
	}
	n := float64(len(group))
	avgCPU, avgMem, avgDisk, avgLat := cpuSum/n, memSum/n, diskSum/n, latSum/n
	healthScore := 1.0 - (avgCPU+avgMem+avgDisk)/300.0
	if healthScore < 0 {
		healthScore = 0
	}
	return healthScore, map[string]any{
		"average_cpu_utilization":    avgCPU,
		"average_memory_utilization": avgMem,
		"average_disk_utilization":   avgDisk,
		"average_latency_ms":         avgLat,
		"health_score":               healthScore,
		"observation_count":          len(group),
	}
}

func reduceNetworkActivity(group []contracts.Observation) (float64, map[string]any) {
	var totalConns, totalBytes int64
	protocols := map[string]struct{}{}
	suspicious := map[string]struct{}{}
	for _, o := range group {
		totalConns += int64Field(o.Payload, "connections")
		totalBytes += int64Field(o.Payload, "bytes")
		for _, p := range stringSliceField(o.Payload, "protocols") {
			protocols[p] = struct{}{}
		}
		for _, ip := range stringSliceField(o.Payload, "suspicious_ips") {
			suspicious[ip] = struct{}{}
		}
	}
	confidence := float64(len(group)) / 10.0
	if confidence > 1 {
		confidence = 1
	}
	return confidence, map[string]any{
		"total_connections":    totalConns,
		"total_bytes":          totalBytes,
		"protocols":            sortedKeys(protocols),
		"suspicious_ip_count":  len(suspicious),
		"observation_count":    len(group),
	}
}

func reduceCustom(group []contracts.Observation) (float64, map[string]any) {
	var confSum float64
	for _, o := range group {
		confSum += o.Confidence
	}
	return confSum / float64(len(group)), map[string]any{
		"observation_count": len(group),
		"observation_type":  string(group[0].ObservationType),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func stringSliceField(payload map[string]any, key string) []string {
	raw, ok := payload[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func mapField(payload map[string]any, key string) map[string]any {
	if v, ok := payload[key].(map[string]any); ok {
		return v
	}
	return nil
}

func int64Field(payload map[string]any, key string) int64 {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	return toInt64(v)
}

func floatField(payload map[string]any, key string) float64 {
	v, ok := payload[key]
	if !ok {
		return 0
	}
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

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
