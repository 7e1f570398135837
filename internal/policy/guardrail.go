package policy

import (
	"encoding/json"
	"fmt"

	"github.com/streamgov/streamgov-backend/internal/models"
)

const sevenDaysMs = int64(7 * 24 * 60 * 60 * 1000)
const threeDaysMs = int64(3 * 24 * 60 * 60 * 1000)

// GuardrailThresholds holds the per-environment numeric limits. Zero values
// disable the corresponding check.
type GuardrailThresholds struct {
	MinReplicationFactor int    `json:"min_replication_factor,omitempty"`
	MinInsyncReplicas    int    `json:"min_insync_replicas,omitempty"`
	MinRetentionMs       int64  `json:"min_retention_ms,omitempty"`
	MaxRetentionMs       int64  `json:"max_retention_ms,omitempty"`
	MaxPartitions        int    `json:"max_partitions,omitempty"`
	WarnOnly             bool   `json:"warn_only,omitempty"`
	ForbidCompression    string `json:"forbid_compression,omitempty"` // warns when compression.type equals this
}

// GuardrailConfig parameterizes the guardrail family.
type GuardrailConfig struct {
	PresetName string                         `json:"preset_name"`
	Version    int                            `json:"version"`
	Rules      map[string]GuardrailThresholds `json:"rules"` // keyed dev/stg/prod
}

// defaultGuardrailConfig implements the documented environment guardrails.
func defaultGuardrailConfig() GuardrailConfig {
	return GuardrailConfig{
		PresetName: "builtin",
		Version:    1,
		Rules: map[string]GuardrailThresholds{
			"prod": {
				MinReplicationFactor: 3,
				MinInsyncReplicas:    2,
				MinRetentionMs:       sevenDaysMs,
				MaxPartitions:        100,
				ForbidCompression:    "none",
			},
			"stg": {
				MinReplicationFactor: 2,
				MaxPartitions:        50,
				WarnOnly:             true,
			},
			"dev": {
				MaxRetentionMs: threeDaysMs,
				MaxPartitions:  10,
				WarnOnly:       true,
			},
		},
	}
}

func parseGuardrailConfig(content json.RawMessage) (GuardrailConfig, error) {
	var cfg GuardrailConfig
	if err := json.Unmarshal(content, &cfg); err != nil {
		return GuardrailConfig{}, fmt.Errorf("guardrail policy content is not valid JSON: %w", err)
	}
	var missing []string
	if cfg.PresetName == "" {
		missing = append(missing, "preset_name")
	}
	if cfg.Version == 0 {
		missing = append(missing, "version")
	}
	if len(missing) > 0 {
		return GuardrailConfig{}, fmt.Errorf("Guardrail policy missing required fields: %s", joinComma(missing))
	}
	if len(cfg.Rules) == 0 {
		return GuardrailConfig{}, fmt.Errorf("Guardrail policy missing required fields: rules")
	}
	return cfg, nil
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// evaluateGuardrail checks one topic config against its environment limits.
func evaluateGuardrail(cfg GuardrailConfig, name string, env models.Environment, tc *models.TopicConfig) []models.Violation {
	if tc == nil {
		return nil
	}
	thresholds, ok := cfg.Rules[env.PolicyTarget()]
	if !ok {
		return nil
	}
	sev := models.SeverityError
	if thresholds.WarnOnly {
		sev = models.SeverityWarning
	}
	envKey := env.PolicyTarget()
	var out []models.Violation

	if thresholds.MinReplicationFactor > 0 && tc.ReplicationFactor < thresholds.MinReplicationFactor {
		out = append(out, models.Violation{
			Resource: name, RuleID: envKey + ".min_replication_factor", Severity: sev, Field: "replication_factor",
			Message: fmt.Sprintf("replication_factor %d is below the %s minimum %d",
				tc.ReplicationFactor, envKey, thresholds.MinReplicationFactor),
		})
	}
	if thresholds.MinInsyncReplicas > 0 {
		isr := 1
		if tc.MinInsyncReplicas != nil {
			isr = *tc.MinInsyncReplicas
		}
		if isr < thresholds.MinInsyncReplicas {
			out = append(out, models.Violation{
				Resource: name, RuleID: envKey + ".min_insync_replicas", Severity: sev, Field: "min_insync_replicas",
				Message: fmt.Sprintf("min_insync_replicas %d is below the %s minimum %d", isr, envKey, thresholds.MinInsyncReplicas),
			})
		}
	}
	if thresholds.MinRetentionMs > 0 && tc.RetentionMs != nil && *tc.RetentionMs < thresholds.MinRetentionMs {
		out = append(out, models.Violation{
			Resource: name, RuleID: envKey + ".min_retention_ms", Severity: sev, Field: "retention_ms",
			Message: fmt.Sprintf("retention_ms %d is below the %s minimum %d", *tc.RetentionMs, envKey, thresholds.MinRetentionMs),
		})
	}
	if thresholds.MaxRetentionMs > 0 && tc.RetentionMs != nil && *tc.RetentionMs > thresholds.MaxRetentionMs {
		out = append(out, models.Violation{
			Resource: name, RuleID: envKey + ".max_retention_ms", Severity: models.SeverityWarning, Field: "retention_ms",
			Message: fmt.Sprintf("retention_ms %d exceeds the %s maximum %d", *tc.RetentionMs, envKey, thresholds.MaxRetentionMs),
		})
	}
	if thresholds.MaxPartitions > 0 && tc.Partitions > thresholds.MaxPartitions {
		out = append(out, models.Violation{
			Resource: name, RuleID: envKey + ".max_partitions", Severity: sev, Field: "partitions",
			Message: fmt.Sprintf("partitions %d exceeds the %s maximum %d", tc.Partitions, envKey, thresholds.MaxPartitions),
		})
	}
	if thresholds.ForbidCompression != "" && tc.CompressionType == thresholds.ForbidCompression {
		out = append(out, models.Violation{
			Resource: name, RuleID: envKey + ".compression", Severity: models.SeverityWarning, Field: "compression_type",
			Message: fmt.Sprintf("compression_type %q is discouraged in %s", tc.CompressionType, envKey),
		})
	}
	return out
}
