// Package batch decodes declarative YAML/JSON batch documents and turns file
// uploads into schema batches.
package batch

import (
	"bytes"
	"fmt"
	"strings"

	yamlv3 "gopkg.in/yaml.v3"
	"sigs.k8s.io/yaml"

	"github.com/streamgov/streamgov-backend/internal/apperr"
	"github.com/streamgov/streamgov-backend/internal/models"
)

// Document kinds accepted at the batch endpoints.
const (
	KindTopicBatch  = "TopicBatch"
	KindSchemaBatch = "SchemaBatch"
)

// subjectStrategies is the closed set of accepted subject_strategy values.
var subjectStrategies = map[string]struct{}{
	"":                   {}, // defaults to TopicNameStrategy
	"TopicNameStrategy":  {},
	"RecordNameStrategy": {},
}

type topicBatchDoc struct {
	Kind     string             `json:"kind"`
	ChangeID string             `json:"change_id"`
	Env      string             `json:"env"`
	Items    []models.TopicSpec `json:"items"`
}

type schemaBatchDoc struct {
	Kind            string              `json:"kind"`
	ChangeID        string              `json:"change_id"`
	Env             string              `json:"env"`
	SubjectStrategy string              `json:"subject_strategy,omitempty"`
	Items           []models.SchemaSpec `json:"items"`
}

// Kind peeks at the document kind without a full decode.
func Kind(data []byte) (string, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return "", parseError(err)
	}
	return probe.Kind, nil
}

// DecodeTopicBatch parses a TopicBatch document (YAML or JSON) and runs the
// full domain validation.
func DecodeTopicBatch(data []byte) (models.TopicBatch, error) {
	if err := checkWellFormed(data); err != nil {
		return models.TopicBatch{}, err
	}
	var doc topicBatchDoc
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return models.TopicBatch{}, parseError(err)
	}
	if doc.Kind != KindTopicBatch {
		return models.TopicBatch{}, apperr.Invariant("document kind must be %s, got %q", KindTopicBatch, doc.Kind)
	}
	env := models.ParseEnvironment(doc.Env)
	return models.NewTopicBatch(doc.ChangeID, env, doc.Items)
}

// DecodeSchemaBatch parses a SchemaBatch document (YAML or JSON).
func DecodeSchemaBatch(data []byte) (models.SchemaBatch, error) {
	if err := checkWellFormed(data); err != nil {
		return models.SchemaBatch{}, err
	}
	var doc schemaBatchDoc
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return models.SchemaBatch{}, parseError(err)
	}
	if doc.Kind != KindSchemaBatch {
		return models.SchemaBatch{}, apperr.Invariant("document kind must be %s, got %q", KindSchemaBatch, doc.Kind)
	}
	if _, ok := subjectStrategies[doc.SubjectStrategy]; !ok {
		return models.SchemaBatch{}, apperr.Invariant("unknown subject_strategy %q", doc.SubjectStrategy)
	}
	env := models.ParseEnvironment(doc.Env)
	return models.NewSchemaBatch(doc.ChangeID, env, doc.Items)
}

// checkWellFormed runs the raw YAML parser first: it rejects duplicate
// mapping keys and reports line-accurate positions that the JSON-shaped
// decode loses.
func checkWellFormed(data []byte) error {
	dec := yamlv3.NewDecoder(bytes.NewReader(data))
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return parseError(err)
	}
	return nil
}

// parseError renders decoder output as a bulleted, field-level message.
func parseError(err error) error {
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	var b strings.Builder
	b.WriteString("batch document could not be parsed:")
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimPrefix(line, "yaml:"))
		if line == "" {
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(line)
	}
	return apperr.Invariant("%s", b.String())
}

// Render serializes a batch back to YAML. Round-trips preserve content up to
// key ordering.
func Render(v interface{}) ([]byte, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("render batch: %w", err)
	}
	return out, nil
}
