package models

import (
	"github.com/streamgov/streamgov-backend/internal/apperr"
)

// TopicBatch is the aggregate root for a declarative topic change.
type TopicBatch struct {
	ChangeID string      `json:"change_id"`
	Env      Environment `json:"env"`
	Specs    []TopicSpec `json:"items"`
}

// NewTopicBatch validates the aggregate: non-empty change id and specs,
// unique names, and every derived environment matching the batch env.
func NewTopicBatch(changeID string, env Environment, specs []TopicSpec) (TopicBatch, error) {
	if err := validateBatchShell(changeID, env, len(specs)); err != nil {
		return TopicBatch{}, err
	}
	seen := make(map[string]struct{}, len(specs))
	validated := make([]TopicSpec, 0, len(specs))
	for _, raw := range specs {
		spec, err := NewTopicSpec(raw)
		if err != nil {
			return TopicBatch{}, err
		}
		if _, dup := seen[spec.Name]; dup {
			return TopicBatch{}, apperr.Invariant("batch %s: duplicate topic %s", changeID, spec.Name)
		}
		seen[spec.Name] = struct{}{}
		if specEnv := spec.Environment(); specEnv != EnvUnknown && specEnv != env {
			return TopicBatch{}, apperr.Invariant(
				"batch %s: topic %s resolves to %s, batch is %s", changeID, spec.Name, specEnv, env)
		}
		validated = append(validated, spec)
	}
	return TopicBatch{ChangeID: changeID, Env: env, Specs: validated}, nil
}

// Fingerprint is order-independent over the member specs.
func (b TopicBatch) Fingerprint() string {
	prints := make([]string, len(b.Specs))
	for i, s := range b.Specs {
		prints[i] = s.Fingerprint()
	}
	return batchFingerprint(b.ChangeID, prints)
}

// Names returns the topic names in declaration order.
func (b TopicBatch) Names() []string {
	names := make([]string, len(b.Specs))
	for i, s := range b.Specs {
		names[i] = s.Name
	}
	return names
}

// SchemaBatch is the aggregate root for a declarative schema change.
type SchemaBatch struct {
	ChangeID string       `json:"change_id"`
	Env      Environment  `json:"env"`
	Specs    []SchemaSpec `json:"items"`
}

// NewSchemaBatch mirrors NewTopicBatch for schema subjects.
func NewSchemaBatch(changeID string, env Environment, specs []SchemaSpec) (SchemaBatch, error) {
	if err := validateBatchShell(changeID, env, len(specs)); err != nil {
		return SchemaBatch{}, err
	}
	seen := make(map[string]struct{}, len(specs))
	validated := make([]SchemaSpec, 0, len(specs))
	for _, raw := range specs {
		spec, err := NewSchemaSpec(raw)
		if err != nil {
			return SchemaBatch{}, err
		}
		if _, dup := seen[spec.Subject]; dup {
			return SchemaBatch{}, apperr.Invariant("batch %s: duplicate subject %s", changeID, spec.Subject)
		}
		seen[spec.Subject] = struct{}{}
		if specEnv := spec.Environment(); specEnv != EnvUnknown && specEnv != env {
			return SchemaBatch{}, apperr.Invariant(
				"batch %s: subject %s resolves to %s, batch is %s", changeID, spec.Subject, specEnv, env)
		}
		validated = append(validated, spec)
	}
	return SchemaBatch{ChangeID: changeID, Env: env, Specs: validated}, nil
}

// Fingerprint is order-independent over the member specs.
func (b SchemaBatch) Fingerprint() string {
	prints := make([]string, len(b.Specs))
	for i, s := range b.Specs {
		prints[i] = s.Fingerprint()
	}
	return batchFingerprint(b.ChangeID, prints)
}

// Subjects returns the subject names in declaration order.
func (b SchemaBatch) Subjects() []string {
	subjects := make([]string, len(b.Specs))
	for i, s := range b.Specs {
		subjects[i] = s.Subject
	}
	return subjects
}

func validateBatchShell(changeID string, env Environment, n int) error {
	if changeID == "" {
		return apperr.Invariant("change_id must not be empty")
	}
	if n == 0 {
		return apperr.Invariant("batch %s: specs must not be empty", changeID)
	}
	if env == EnvUnknown {
		return apperr.Invariant("batch %s: env must be one of dev, stg, prod", changeID)
	}
	return nil
}
