package ingest

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/slucerodev/admo-core/pkg/contracts"
)

// payloadSchemas is the closed set of JSON Schema documents one per
// ObservationType, compiled once at Pipeline construction, grounded on
// pkg/firewall/firewall.go's per-tool compiled-schema map (NewCompiler +
// AddResource + Compile, keyed by name instead of tool name).
var payloadSchemas = map[contracts.ObservationType]string{
	contracts.ObsTelemetrySummary: `{
		"type": "object",
		"required": ["event_count", "severity_distribution"],
		"properties": {
			"event_count": {"type": "integer", "minimum": 0},
			"severity_distribution": {"type": "object"}
		}
	}`,
	contracts.ObsThreatIntel: `{
		"type": "object",
		"required": ["ioc_count", "threat_types", "sources"],
		"properties": {
			"ioc_count": {"type": "integer", "minimum": 0},
			"threat_types": {"type": "array", "items": {"type": "string"}},
			"sources": {"type": "array", "items": {"type": "string"}},
			"confidence_score": {"type": "number", "minimum": 0, "maximum": 1}
		}
	}`,
	contracts.ObsAnomalyDetection: `{
		"type": "object",
		"required": ["anomaly_score", "anomaly_type"],
		"properties": {
			"anomaly_score": {"type": "number", "minimum": 0, "maximum": 1},
			"anomaly_type": {"type": "string", "minLength": 1},
			"affected_entities": {"type": "array", "items": {"type": "string"}},
			"baseline_deviation": {"type": "number"}
		}
	}`,
	contracts.ObsSystemHealth: `{
		"type": "object",
		"required": ["cpu_utilization", "memory_utilization", "disk_utilization"],
		"properties": {
			"cpu_utilization": {"type": "number", "minimum": 0},
			"memory_utilization": {"type": "number", "minimum": 0},
			"disk_utilization": {"type": "number", "minimum": 0},
			"latency_ms": {"type": "number", "minimum": 0},
			"healthy_nodes": {"type": "integer", "minimum": 0},
			"total_nodes": {"type": "integer", "minimum": 0}
		}
	}`,
	contracts.ObsNetworkActivity: `{
		"type": "object",
		"required": ["connections", "bytes"],
		"properties": {
			"connections": {"type": "integer", "minimum": 0},
			"bytes": {"type": "integer", "minimum": 0},
			"protocols": {"type": "array", "items": {"type": "string"}},
			"suspicious_ips": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	contracts.ObsCustom: `{"type": "object"}`,
}

func compileSchemas() (map[contracts.ObservationType]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	out := make(map[contracts.ObservationType]*jsonschema.Schema, len(payloadSchemas))
	for obsType, doc := range payloadSchemas {
		url := fmt.Sprintf("https://admo.schemas.local/observation/%s.schema.json", obsType)
		if err := compiler.AddResource(url, strings.NewReader(doc)); err != nil {
			return nil, fmt.Errorf("ingest: load schema for %s: %w", obsType, err)
		}
		compiled, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("ingest: compile schema for %s: %w", obsType, err)
		}
		out[obsType] = compiled
	}
	return out, nil
}
