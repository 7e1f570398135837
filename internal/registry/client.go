// Package registry is a Confluent-compatible Schema Registry client scoped
// to governance needs: describe, compatibility checks, register, delete.
package registry

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/streamgov/streamgov-backend/internal/models"
)

const contentType = "application/vnd.schemaregistry.v1+json"

// Error codes the registry uses for "no such subject/version".
const (
	errCodeSubjectNotFound = 40401
	errCodeVersionNotFound = 40402
)

// SubjectState is the latest registered state of one subject.
type SubjectState struct {
	Subject       string                   `json:"subject"`
	SchemaID      int                      `json:"schema_id"`
	Version       int                      `json:"version"`
	SchemaType    models.SchemaType        `json:"schema_type"`
	Schema        string                   `json:"schema"`
	Compatibility models.CompatibilityMode `json:"compatibility,omitempty"`
}

// Registry is the Schema Registry surface the planner and applier consume.
type Registry interface {
	ListSubjects(ctx context.Context) ([]string, error)
	// DescribeSubject returns nil (not an error) for an unknown subject.
	DescribeSubject(ctx context.Context, subject string) (*SubjectState, error)
	// CheckCompatibility never returns an error; transport failures become
	// report issues with IsCompatible=false so apply stays blocked.
	CheckCompatibility(ctx context.Context, spec models.SchemaSpec) models.CompatibilityReport
	RegisterSchema(ctx context.Context, spec models.SchemaSpec) (*SubjectState, error)
	SetCompatibilityMode(ctx context.Context, subject string, mode models.CompatibilityMode) error
	DeleteSubject(ctx context.Context, subject string, permanent bool) ([]int, error)
	TestConnection(ctx context.Context) models.ConnectionTestResult
}

// Client is the HTTP Registry implementation.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// HTTPError is a non-2xx registry response.
type HTTPError struct {
	StatusCode int
	ErrorCode  int
	URL        string
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("schema registry request failed: status=%d code=%d url=%s message=%s",
		e.StatusCode, e.ErrorCode, e.URL, e.Message)
}

// NewClient builds a client for one registry endpoint.
func NewClient(endpoint *models.RegistryEndpoint) (*Client, error) {
	base := strings.TrimRight(endpoint.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("registry endpoint %s has no base URL", endpoint.ID)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if endpoint.TLSCACert != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(endpoint.TLSCACert)) {
			return nil, fmt.Errorf("registry endpoint %s: invalid CA certificate", endpoint.ID)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}

	return &Client{
		baseURL:  base,
		username: endpoint.Username,
		password: endpoint.Password,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
	}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	endpoint := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode registry request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Accept", contentType)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp, endpoint)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode registry response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response, endpoint string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	httpErr := &HTTPError{StatusCode: resp.StatusCode, URL: endpoint, Message: strings.TrimSpace(string(raw))}
	var parsed struct {
		ErrorCode int    `json:"error_code"`
		Message   string `json:"message"`
	}
	if json.Unmarshal(raw, &parsed) == nil && parsed.ErrorCode != 0 {
		httpErr.ErrorCode = parsed.ErrorCode
		httpErr.Message = parsed.Message
	}
	return httpErr
}

func isNotFound(err error) bool {
	httpErr, ok := err.(*HTTPError)
	if !ok {
		return false
	}
	return httpErr.ErrorCode == errCodeSubjectNotFound ||
		httpErr.ErrorCode == errCodeVersionNotFound ||
		httpErr.StatusCode == http.StatusNotFound
}

// ListSubjects returns all registered subjects.
func (c *Client) ListSubjects(ctx context.Context) ([]string, error) {
	var subjects []string
	if err := c.doJSON(ctx, http.MethodGet, "/subjects", nil, &subjects); err != nil {
		return nil, err
	}
	return subjects, nil
}

// DescribeSubject returns the latest version of a subject with its effective
// compatibility override, or nil when the subject does not exist.
func (c *Client) DescribeSubject(ctx context.Context, subject string) (*SubjectState, error) {
	var latest struct {
		Subject    string `json:"subject"`
		ID         int    `json:"id"`
		Version    int    `json:"version"`
		SchemaType string `json:"schemaType"`
		Schema     string `json:"schema"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/subjects/"+url.PathEscape(subject)+"/versions/latest", nil, &latest)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	state := &SubjectState{
		Subject:    latest.Subject,
		SchemaID:   latest.ID,
		Version:    latest.Version,
		SchemaType: normalizeSchemaType(latest.SchemaType),
		Schema:     latest.Schema,
	}

	// Subject-level compatibility override; absence falls back to the global
	// mode, which governance does not manage.
	var cfg struct {
		CompatibilityLevel string `json:"compatibilityLevel"`
	}
	err = c.doJSON(ctx, http.MethodGet, "/config/"+url.PathEscape(subject), nil, &cfg)
	if err == nil {
		state.Compatibility = models.CompatibilityMode(cfg.CompatibilityLevel)
	} else if !isNotFound(err) {
		return nil, err
	}
	return state, nil
}

// The registry reports AVRO as an empty schemaType.
func normalizeSchemaType(t string) models.SchemaType {
	if t == "" {
		return models.SchemaAvro
	}
	return models.SchemaType(t)
}

func registerPayload(spec models.SchemaSpec) map[string]interface{} {
	payload := map[string]interface{}{"schema": spec.ResolvedSchema()}
	if spec.SchemaType != models.SchemaAvro {
		payload["schemaType"] = string(spec.SchemaType)
	}
	if len(spec.References) > 0 {
		refs := make([]map[string]interface{}, 0, len(spec.References))
		for _, r := range spec.References {
			refs = append(refs, map[string]interface{}{
				"name":    r.Name,
				"subject": r.Subject,
				"version": r.Version,
			})
		}
		payload["references"] = refs
	}
	return payload
}

// CheckCompatibility verifies the candidate schema against the latest
// registered version. A new subject is trivially compatible.
func (c *Client) CheckCompatibility(ctx context.Context, spec models.SchemaSpec) models.CompatibilityReport {
	report := models.CompatibilityReport{Subject: spec.Subject, Mode: spec.Compatibility}

	var result struct {
		IsCompatible bool     `json:"is_compatible"`
		Messages     []string `json:"messages"`
	}
	path := "/compatibility/subjects/" + url.PathEscape(spec.Subject) + "/versions/latest?verbose=true"
	err := c.doJSON(ctx, http.MethodPost, path, registerPayload(spec), &result)
	if err != nil {
		if isNotFound(err) {
			report.IsCompatible = true
			return report
		}
		report.IsCompatible = false
		report.Issues = []string{fmt.Sprintf("registry unreachable: %v", err)}
		return report
	}

	report.IsCompatible = result.IsCompatible
	report.Issues = result.Messages
	return report
}

// RegisterSchema registers the schema under its subject and returns the
// resulting state.
func (c *Client) RegisterSchema(ctx context.Context, spec models.SchemaSpec) (*SubjectState, error) {
	var result struct {
		ID int `json:"id"`
	}
	path := "/subjects/" + url.PathEscape(spec.Subject) + "/versions"
	if err := c.doJSON(ctx, http.MethodPost, path, registerPayload(spec), &result); err != nil {
		return nil, fmt.Errorf("register schema for %s: %w", spec.Subject, err)
	}

	state, err := c.DescribeSubject(ctx, spec.Subject)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("subject %s missing immediately after register", spec.Subject)
	}
	state.SchemaID = result.ID
	return state, nil
}

// SetCompatibilityMode sets the subject-level compatibility override.
func (c *Client) SetCompatibilityMode(ctx context.Context, subject string, mode models.CompatibilityMode) error {
	body := map[string]string{"compatibility": string(mode)}
	if err := c.doJSON(ctx, http.MethodPut, "/config/"+url.PathEscape(subject), body, nil); err != nil {
		return fmt.Errorf("set compatibility for %s: %w", subject, err)
	}
	return nil
}

// DeleteSubject soft-deletes a subject and returns the removed versions.
// Permanent deletion requires a prior soft delete; the registry enforces it.
func (c *Client) DeleteSubject(ctx context.Context, subject string, permanent bool) ([]int, error) {
	path := "/subjects/" + url.PathEscape(subject)
	if permanent {
		path += "?permanent=true"
	}
	var versions []int
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &versions); err != nil {
		return nil, fmt.Errorf("delete subject %s: %w", subject, err)
	}
	return versions, nil
}

// TestConnection probes the registry and never returns an error; failures
// are reported in the result.
func (c *Client) TestConnection(ctx context.Context) models.ConnectionTestResult {
	start := time.Now()
	subjects, err := c.ListSubjects(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return models.ConnectionTestResult{Success: false, LatencyMs: latency, Error: err.Error()}
	}
	return models.ConnectionTestResult{
		Success:   true,
		LatencyMs: latency,
		Metadata:  map[string]string{"subject_count": fmt.Sprintf("%d", len(subjects))},
	}
}
