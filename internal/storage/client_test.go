package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/streamgov/streamgov-backend/internal/models"
)

func TestChecksumStable(t *testing.T) {
	a := Checksum([]byte(`{"type":"record"}`))
	b := Checksum([]byte(`{"type":"record"}`))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, Checksum([]byte(`{"type":"string"}`)))
}

func TestArtifactKey(t *testing.T) {
	assert.Equal(t, "prod/prod.user-value/3/schema.txt", ArtifactKey(models.EnvProd, "prod.user-value", 3))
}

func TestUploadKey(t *testing.T) {
	assert.Equal(t, "dev/uploads/u-1/user.avsc", UploadKey(models.EnvDev, "u-1", "user.avsc"))
}

func TestSubjectPrefixCoversArtifactKeys(t *testing.T) {
	prefix := SubjectPrefix(models.EnvProd, "prod.user-value")
	key := ArtifactKey(models.EnvProd, "prod.user-value", 2)
	assert.Contains(t, key, prefix)
}
