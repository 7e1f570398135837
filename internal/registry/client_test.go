package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamgov/streamgov-backend/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(&models.RegistryEndpoint{ID: "r1", BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestDescribeSubject(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/subjects/prod.user-value/versions/latest", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"subject": "prod.user-value", "id": 17, "version": 3, "schema": `{"type":"record"}`,
		})
	})
	mux.HandleFunc("/config/prod.user-value", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"compatibilityLevel": "FULL"})
	})

	c := newTestClient(t, mux)
	state, err := c.DescribeSubject(context.Background(), "prod.user-value")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 17, state.SchemaID)
	assert.Equal(t, 3, state.Version)
	assert.Equal(t, models.SchemaAvro, state.SchemaType) // empty schemaType means AVRO
	assert.Equal(t, models.CompatFull, state.Compatibility)
}

func TestDescribeSubjectUnknownIsNil(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error_code": 40401, "message": "Subject not found.",
		})
	})

	c := newTestClient(t, mux)
	state, err := c.DescribeSubject(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestCheckCompatibilityIncompatible(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/compatibility/subjects/prod.user-value/versions/latest", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Contains(t, payload, "schema")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"is_compatible": false,
			"messages":      []string{"field 'email' removed"},
		})
	})

	c := newTestClient(t, mux)
	report := c.CheckCompatibility(context.Background(), models.SchemaSpec{
		Subject: "prod.user-value", SchemaType: models.SchemaAvro, Schema: `{"type":"string"}`,
	})
	assert.False(t, report.IsCompatible)
	assert.Equal(t, []string{"field 'email' removed"}, report.Issues)
}

func TestCheckCompatibilityNewSubject(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error_code": 40401, "message": "Subject not found."})
	})

	c := newTestClient(t, mux)
	report := c.CheckCompatibility(context.Background(), models.SchemaSpec{
		Subject: "new.subject-value", SchemaType: models.SchemaAvro, Schema: `{}`,
	})
	assert.True(t, report.IsCompatible)
	assert.Empty(t, report.Issues)
}

func TestCheckCompatibilityTransportFailureBlocks(t *testing.T) {
	c, err := NewClient(&models.RegistryEndpoint{ID: "r1", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	report := c.CheckCompatibility(context.Background(), models.SchemaSpec{
		Subject: "prod.user-value", SchemaType: models.SchemaAvro, Schema: `{}`,
	})
	assert.False(t, report.IsCompatible)
	require.Len(t, report.Issues, 1)
	assert.Contains(t, report.Issues[0], "registry unreachable")
}

func TestRegisterSchema(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/subjects/prod.user-value/versions", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "JSON", payload["schemaType"])
		writeJSON(w, http.StatusOK, map[string]int{"id": 42})
	})
	mux.HandleFunc("/subjects/prod.user-value/versions/latest", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"subject": "prod.user-value", "id": 42, "version": 4, "schemaType": "JSON", "schema": `{}`,
		})
	})
	mux.HandleFunc("/config/prod.user-value", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error_code": 40401})
	})

	c := newTestClient(t, mux)
	state, err := c.RegisterSchema(context.Background(), models.SchemaSpec{
		Subject: "prod.user-value", SchemaType: models.SchemaJSON, Schema: `{}`,
	})
	require.NoError(t, err)
	assert.Equal(t, 42, state.SchemaID)
	assert.Equal(t, 4, state.Version)
	assert.Equal(t, models.SchemaJSON, state.SchemaType)
}

func TestSetCompatibilityMode(t *testing.T) {
	var got string
	mux := http.NewServeMux()
	mux.HandleFunc("/config/prod.user-value", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = body["compatibility"]
		writeJSON(w, http.StatusOK, body)
	})

	c := newTestClient(t, mux)
	require.NoError(t, c.SetCompatibilityMode(context.Background(), "prod.user-value", models.CompatFullTransitive))
	assert.Equal(t, "FULL_TRANSITIVE", got)
}

func TestDeleteSubject(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/subjects/stg.orders-value", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		if r.URL.Query().Get("permanent") == "true" {
			writeJSON(w, http.StatusOK, []int{1, 2, 3})
			return
		}
		writeJSON(w, http.StatusOK, []int{1, 2})
	})

	c := newTestClient(t, mux)
	versions, err := c.DeleteSubject(context.Background(), "stg.orders-value", false)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)

	versions, err = c.DeleteSubject(context.Background(), "stg.orders-value", true)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, versions)
}

func TestBasicAuthHeader(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/subjects", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "gov", user)
		assert.Equal(t, "secret", pass)
		writeJSON(w, http.StatusOK, []string{"a-value"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(&models.RegistryEndpoint{ID: "r1", BaseURL: srv.URL, Username: "gov", Password: "secret"})
	require.NoError(t, err)

	subjects, err := c.ListSubjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a-value"}, subjects)
}

func TestTestConnectionFailure(t *testing.T) {
	c, err := NewClient(&models.RegistryEndpoint{ID: "r1", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	result := c.TestConnection(context.Background())
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}
