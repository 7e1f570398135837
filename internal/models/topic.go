package models

import (
	"strconv"
	"strings"

	"github.com/streamgov/streamgov-backend/internal/apperr"
)

// SpecAction is the declared intent of one spec inside a batch.
type SpecAction string

const (
	ActionCreate SpecAction = "CREATE"
	ActionUpdate SpecAction = "UPDATE"
	ActionUpsert SpecAction = "UPSERT"
	ActionDelete SpecAction = "DELETE"
)

// MaxResourceNameLen is Kafka's topic name limit; subjects share it.
const MaxResourceNameLen = 249

// TopicConfig is the desired configuration for a topic. Immutable after
// construction; invariants are enforced by NewTopicConfig.
type TopicConfig struct {
	Partitions        int    `json:"partitions"`
	ReplicationFactor int    `json:"replication_factor"`
	CleanupPolicy     string `json:"cleanup_policy,omitempty"`
	RetentionMs       *int64 `json:"retention_ms,omitempty"`
	MinInsyncReplicas *int   `json:"min_insync_replicas,omitempty"`
	MaxMessageBytes   *int   `json:"max_message_bytes,omitempty"`
	SegmentMs         *int64 `json:"segment_ms,omitempty"`
	CompressionType   string `json:"compression_type,omitempty"`
}

// NewTopicConfig validates and returns a TopicConfig.
func NewTopicConfig(cfg TopicConfig) (TopicConfig, error) {
	if cfg.Partitions < 1 {
		return TopicConfig{}, apperr.Invariant("partitions must be >= 1, got %d", cfg.Partitions)
	}
	if cfg.ReplicationFactor < 1 {
		return TopicConfig{}, apperr.Invariant("replication_factor must be >= 1, got %d", cfg.ReplicationFactor)
	}
	if cfg.MinInsyncReplicas != nil && *cfg.MinInsyncReplicas > cfg.ReplicationFactor {
		return TopicConfig{}, apperr.Invariant(
			"min_insync_replicas (%d) must not exceed replication_factor (%d)",
			*cfg.MinInsyncReplicas, cfg.ReplicationFactor)
	}
	if cfg.RetentionMs != nil && *cfg.RetentionMs < -1 {
		return TopicConfig{}, apperr.Invariant("retention_ms must be >= -1, got %d", *cfg.RetentionMs)
	}
	return cfg, nil
}

// ConfigEntries renders the config as Kafka's canonical string map. Partition
// count and replication factor are structural, not config entries, and are
// excluded on purpose.
func (c TopicConfig) ConfigEntries() map[string]string {
	out := map[string]string{}
	if c.CleanupPolicy != "" {
		out["cleanup.policy"] = c.CleanupPolicy
	}
	if c.RetentionMs != nil {
		out["retention.ms"] = strconv.FormatInt(*c.RetentionMs, 10)
	}
	if c.MinInsyncReplicas != nil {
		out["min.insync.replicas"] = strconv.Itoa(*c.MinInsyncReplicas)
	}
	if c.MaxMessageBytes != nil {
		out["max.message.bytes"] = strconv.Itoa(*c.MaxMessageBytes)
	}
	if c.SegmentMs != nil {
		out["segment.ms"] = strconv.FormatInt(*c.SegmentMs, 10)
	}
	if c.CompressionType != "" {
		out["compression.type"] = c.CompressionType
	}
	return out
}

// TopicMetadata is the governance metadata stored alongside a topic.
type TopicMetadata struct {
	Owners []string `json:"owners"`
	Doc    string   `json:"doc,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	Team   string   `json:"team,omitempty"`
}

// TopicSpec is one declarative item of a topic batch.
type TopicSpec struct {
	Name     string         `json:"name"`
	Action   SpecAction     `json:"action"`
	Config   *TopicConfig   `json:"config,omitempty"`
	Metadata *TopicMetadata `json:"metadata,omitempty"`
}

// NewTopicSpec validates and returns a TopicSpec.
func NewTopicSpec(spec TopicSpec) (TopicSpec, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return TopicSpec{}, apperr.Invariant("topic name must not be empty")
	}
	if len(name) > MaxResourceNameLen {
		return TopicSpec{}, apperr.Invariant("topic name exceeds %d characters: %s", MaxResourceNameLen, name)
	}
	spec.Name = name
	switch spec.Action {
	case ActionCreate, ActionUpdate, ActionUpsert:
		if spec.Config == nil {
			return TopicSpec{}, apperr.Invariant("topic %s: config is required for %s", name, spec.Action)
		}
		if spec.Metadata == nil {
			return TopicSpec{}, apperr.Invariant("topic %s: metadata is required for %s", name, spec.Action)
		}
		cfg, err := NewTopicConfig(*spec.Config)
		if err != nil {
			return TopicSpec{}, err
		}
		spec.Config = &cfg
	case ActionDelete:
		if spec.Config != nil {
			return TopicSpec{}, apperr.Invariant("topic %s: config must be absent for DELETE", name)
		}
	default:
		return TopicSpec{}, apperr.Invariant("topic %s: unknown action %q", name, spec.Action)
	}
	return spec, nil
}

// Environment is derived from the topic name, never stored.
func (s TopicSpec) Environment() Environment { return DeriveEnvironment(s.Name) }

// Fingerprint identifies the spec content for plan staleness checks.
func (s TopicSpec) Fingerprint() string { return contentFingerprint(s) }
