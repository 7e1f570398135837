package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamgov/streamgov-backend/internal/apperr"
)

func validSchemaSpec(subject string) SchemaSpec {
	return SchemaSpec{
		Subject:       subject,
		SchemaType:    SchemaAvro,
		Compatibility: CompatBackward,
		Schema:        `{"type":"record","name":"User","fields":[]}`,
		Metadata:      &TopicMetadata{Owners: []string{"data"}},
	}
}

func TestNewSchemaSpecRequiresPayload(t *testing.T) {
	spec := validSchemaSpec("dev.user-value")
	spec.Schema = ""
	_, err := NewSchemaSpec(spec)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvariant))
}

func TestNewSchemaSpecLiteralWithFileSource(t *testing.T) {
	spec := validSchemaSpec("dev.user-value")
	spec.Source = &SchemaSource{Kind: SourceFile, Path: "schemas/user.avsc"}
	_, err := NewSchemaSpec(spec)
	require.Error(t, err, "literal plus FILE source must be rejected")
}

func TestNewSchemaSourceTaggedUnion(t *testing.T) {
	_, err := NewSchemaSource(SchemaSource{Kind: SourceInline, Content: "x", Path: "y"})
	require.Error(t, err)
	_, err = NewSchemaSource(SchemaSource{Kind: SourceFile, Path: "schemas/user.avsc"})
	require.NoError(t, err)
	_, err = NewSchemaSource(SchemaSource{Kind: "OTHER", Content: "x"})
	require.Error(t, err)
}

func TestNewSchemaBatchDuplicateSubject(t *testing.T) {
	specs := []SchemaSpec{validSchemaSpec("dev.user-value"), validSchemaSpec("dev.user-value")}
	_, err := NewSchemaBatch("CHG-1", EnvDev, specs)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvariant))
}

func TestResolvedSchemaPrefersLiteral(t *testing.T) {
	spec := validSchemaSpec("dev.user-value")
	spec.Source = &SchemaSource{Kind: SourceInline, Content: spec.Schema}
	got, err := NewSchemaSpec(spec)
	require.NoError(t, err)
	assert.Equal(t, spec.Schema, got.ResolvedSchema())
}
