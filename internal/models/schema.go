package models

import (
	"strings"

	"github.com/streamgov/streamgov-backend/internal/apperr"
)

// SchemaType is the serialization format registered with Schema Registry.
type SchemaType string

const (
	SchemaAvro     SchemaType = "AVRO"
	SchemaJSON     SchemaType = "JSON"
	SchemaProtobuf SchemaType = "PROTOBUF"
)

// CompatibilityMode is the Schema Registry compatibility contract.
type CompatibilityMode string

const (
	CompatNone               CompatibilityMode = "NONE"
	CompatBackward           CompatibilityMode = "BACKWARD"
	CompatBackwardTransitive CompatibilityMode = "BACKWARD_TRANSITIVE"
	CompatForward            CompatibilityMode = "FORWARD"
	CompatForwardTransitive  CompatibilityMode = "FORWARD_TRANSITIVE"
	CompatFull               CompatibilityMode = "FULL"
	CompatFullTransitive     CompatibilityMode = "FULL_TRANSITIVE"
)

// SchemaSourceKind tags the SchemaSource union.
type SchemaSourceKind string

const (
	SourceInline SchemaSourceKind = "INLINE"
	SourceFile   SchemaSourceKind = "FILE"
	SourceYAML   SchemaSourceKind = "YAML"
)

// SchemaSource is a tagged union: exactly one payload field per kind.
type SchemaSource struct {
	Kind    SchemaSourceKind `json:"kind"`
	Content string           `json:"content,omitempty"` // INLINE, YAML
	Path    string           `json:"path,omitempty"`    // FILE
}

// NewSchemaSource validates the tag/payload pairing.
func NewSchemaSource(src SchemaSource) (SchemaSource, error) {
	switch src.Kind {
	case SourceInline, SourceYAML:
		if src.Content == "" {
			return SchemaSource{}, apperr.Invariant("schema source %s requires content", src.Kind)
		}
		if src.Path != "" {
			return SchemaSource{}, apperr.Invariant("schema source %s must not carry a path", src.Kind)
		}
	case SourceFile:
		if src.Path == "" {
			return SchemaSource{}, apperr.Invariant("schema source FILE requires a path")
		}
		if src.Content != "" {
			return SchemaSource{}, apperr.Invariant("schema source FILE must not carry content")
		}
	default:
		return SchemaSource{}, apperr.Invariant("unknown schema source kind %q", src.Kind)
	}
	return src, nil
}

// SchemaReference points a schema at another registered subject version.
type SchemaReference struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Version int    `json:"version"`
}

// SchemaSpec is one declarative item of a schema batch.
type SchemaSpec struct {
	Subject       string            `json:"subject"`
	SchemaType    SchemaType        `json:"schema_type"`
	Compatibility CompatibilityMode `json:"compatibility"`
	Schema        string            `json:"schema,omitempty"` // inline literal
	Source        *SchemaSource     `json:"source,omitempty"`
	References    []SchemaReference `json:"references,omitempty"`
	Metadata      *TopicMetadata    `json:"metadata,omitempty"`
	DryRunOnly    bool              `json:"dry_run_only,omitempty"`
}

// NewSchemaSpec validates and returns a SchemaSpec.
func NewSchemaSpec(spec SchemaSpec) (SchemaSpec, error) {
	subject := strings.TrimSpace(spec.Subject)
	if subject == "" {
		return SchemaSpec{}, apperr.Invariant("schema subject must not be empty")
	}
	if len(subject) > MaxResourceNameLen {
		return SchemaSpec{}, apperr.Invariant("subject exceeds %d characters: %s", MaxResourceNameLen, subject)
	}
	spec.Subject = subject
	switch spec.SchemaType {
	case SchemaAvro, SchemaJSON, SchemaProtobuf:
	default:
		return SchemaSpec{}, apperr.Invariant("subject %s: unknown schema type %q", subject, spec.SchemaType)
	}
	if spec.Schema == "" && spec.Source == nil {
		return SchemaSpec{}, apperr.Invariant("subject %s: one of schema literal or source is required", subject)
	}
	if spec.Source != nil {
		src, err := NewSchemaSource(*spec.Source)
		if err != nil {
			return SchemaSpec{}, err
		}
		spec.Source = &src
		// A literal may accompany only an inline source (they must agree).
		if spec.Schema != "" && src.Kind != SourceInline {
			return SchemaSpec{}, apperr.Invariant("subject %s: schema literal not permitted with %s source", subject, src.Kind)
		}
	}
	return spec, nil
}

// Environment is derived from the first dot-segment of the subject.
func (s SchemaSpec) Environment() Environment { return DeriveEnvironment(s.Subject) }

// Fingerprint identifies the spec content.
func (s SchemaSpec) Fingerprint() string { return contentFingerprint(s) }

// ResolvedSchema returns the schema text: the literal wins, then an inline or
// YAML source. FILE sources are resolved by the upload pipeline before specs
// reach the planner.
func (s SchemaSpec) ResolvedSchema() string {
	if s.Schema != "" {
		return s.Schema
	}
	if s.Source != nil {
		return s.Source.Content
	}
	return ""
}
