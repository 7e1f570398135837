package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/streamgov/streamgov-backend/internal/audit"
	"github.com/streamgov/streamgov-backend/internal/models"
	"github.com/streamgov/streamgov-backend/internal/pkg/redact"
	"github.com/streamgov/streamgov-backend/internal/pkg/validate"
)

// Credential fields are write-only: the models hide them from JSON output, so
// create/update requests carry them in wrapper types.
type clusterEndpointRequest struct {
	models.ClusterEndpoint
	SASLUsername string `json:"sasl_username,omitempty"`
	SASLPassword string `json:"sasl_password,omitempty"`
	TLSCACert    string `json:"tls_ca_cert,omitempty"`
}

func (req *clusterEndpointRequest) endpoint() *models.ClusterEndpoint {
	e := req.ClusterEndpoint
	e.SASLUsername = req.SASLUsername
	e.SASLPassword = req.SASLPassword
	e.TLSCACert = req.TLSCACert
	return &e
}

type registryEndpointRequest struct {
	models.RegistryEndpoint
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	TLSCACert string `json:"tls_ca_cert,omitempty"`
}

func (req *registryEndpointRequest) endpoint() *models.RegistryEndpoint {
	e := req.RegistryEndpoint
	e.Username = req.Username
	e.Password = req.Password
	e.TLSCACert = req.TLSCACert
	return &e
}

type storageEndpointRequest struct {
	models.StorageEndpoint
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty"`
}

func (req *storageEndpointRequest) endpoint() *models.StorageEndpoint {
	e := req.StorageEndpoint
	e.AccessKey = req.AccessKey
	e.SecretKey = req.SecretKey
	return &e
}

// auditEndpointChange records an endpoint mutation with its payload,
// credentials masked. Write failures are logged by the store path; the
// mutation itself already succeeded.
func (h *Handler) auditEndpointChange(r *http.Request, action string, kind models.EndpointKind, id string, body []byte) {
	var payload map[string]interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			payload = nil
		}
	}
	redact.EndpointFields(payload)
	snapshot := ""
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			snapshot = string(raw)
		}
	}
	rec := &models.AuditRecord{
		ChangeID: "endpoint-" + id,
		Action:   action,
		Target:   string(kind) + "/" + id,
		Actor:    audit.ActorFromRequest(r),
		Status:   models.AuditCompleted,
		Snapshot: snapshot,
	}
	if err := h.store.CreateAuditRecord(r.Context(), rec); err != nil {
		h.logger.Error("endpoint audit write failed", "endpoint_id", id, "action", action, "error", err)
	}
}

func endpointKind(w http.ResponseWriter, r *http.Request) (models.EndpointKind, bool) {
	kind := models.EndpointKind(mux.Vars(r)["kind"])
	switch kind {
	case models.EndpointKafka, models.EndpointRegistry, models.EndpointStorage:
		return kind, true
	default:
		respondInvalid(w, r, "unknown endpoint kind %q (want kafka, registry or storage)", kind)
		return "", false
	}
}

// endpointKindAndID resolves and validates both path variables at once.
func endpointKindAndID(w http.ResponseWriter, r *http.Request) (models.EndpointKind, string, bool) {
	kind, ok := endpointKind(w, r)
	if !ok {
		return "", "", false
	}
	id := mux.Vars(r)["id"]
	if !validate.EndpointID(id) {
		respondInvalid(w, r, "endpoint id %q is not a valid identifier", id)
		return "", "", false
	}
	return kind, id, true
}

// ListEndpoints handles GET /endpoints/{kind}?active_only=…
func (h *Handler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	kind, ok := endpointKind(w, r)
	if !ok {
		return
	}
	activeOnly := r.URL.Query().Get("active_only") == "true"
	var (
		out interface{}
		err error
	)
	switch kind {
	case models.EndpointKafka:
		out, err = h.store.ListClusterEndpoints(r.Context(), activeOnly)
	case models.EndpointRegistry:
		out, err = h.store.ListRegistryEndpoints(r.Context(), activeOnly)
	case models.EndpointStorage:
		out, err = h.store.ListStorageEndpoints(r.Context(), activeOnly)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// CreateEndpoint handles POST /endpoints/{kind}
func (h *Handler) CreateEndpoint(w http.ResponseWriter, r *http.Request) {
	kind, ok := endpointKind(w, r)
	if !ok {
		return
	}
	body, err := readBody(r)
	if err != nil {
		respondInvalid(w, r, "reading request body: %v", err)
		return
	}
	var (
		out interface{}
		id  string
	)
	switch kind {
	case models.EndpointKafka:
		var req clusterEndpointRequest
		if err = json.Unmarshal(body, &req); err == nil {
			e := req.endpoint()
			err = h.store.CreateClusterEndpoint(r.Context(), e)
			out, id = e, e.ID
		}
	case models.EndpointRegistry:
		var req registryEndpointRequest
		if err = json.Unmarshal(body, &req); err == nil {
			e := req.endpoint()
			err = h.store.CreateRegistryEndpoint(r.Context(), e)
			out, id = e, e.ID
		}
	case models.EndpointStorage:
		var req storageEndpointRequest
		if err = json.Unmarshal(body, &req); err == nil {
			e := req.endpoint()
			err = h.store.CreateStorageEndpoint(r.Context(), e)
			out, id = e, e.ID
		}
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.auditEndpointChange(r, "ENDPOINT_CREATE", kind, id, body)
	respondJSON(w, http.StatusCreated, out)
}

// GetEndpoint handles GET /endpoints/{kind}/{id}
func (h *Handler) GetEndpoint(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := endpointKindAndID(w, r)
	if !ok {
		return
	}
	var (
		out interface{}
		err error
	)
	switch kind {
	case models.EndpointKafka:
		out, err = h.store.GetClusterEndpoint(r.Context(), id)
	case models.EndpointRegistry:
		out, err = h.store.GetRegistryEndpoint(r.Context(), id)
	case models.EndpointStorage:
		out, err = h.store.GetStorageEndpoint(r.Context(), id)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// UpdateEndpoint handles PUT /endpoints/{kind}/{id}. The cached client for
// the endpoint is invalidated so the next use picks up the new coordinates.
func (h *Handler) UpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := endpointKindAndID(w, r)
	if !ok {
		return
	}
	body, err := readBody(r)
	if err != nil {
		respondInvalid(w, r, "reading request body: %v", err)
		return
	}
	var out interface{}
	switch kind {
	case models.EndpointKafka:
		var req clusterEndpointRequest
		if err = json.Unmarshal(body, &req); err == nil {
			e := req.endpoint()
			e.ID = id
			err = h.store.UpdateClusterEndpoint(r.Context(), e)
			out = e
		}
	case models.EndpointRegistry:
		var req registryEndpointRequest
		if err = json.Unmarshal(body, &req); err == nil {
			e := req.endpoint()
			e.ID = id
			err = h.store.UpdateRegistryEndpoint(r.Context(), e)
			out = e
		}
	case models.EndpointStorage:
		var req storageEndpointRequest
		if err = json.Unmarshal(body, &req); err == nil {
			e := req.endpoint()
			e.ID = id
			err = h.store.UpdateStorageEndpoint(r.Context(), e)
			out = e
		}
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.conns.Invalidate(kind, id)
	h.auditEndpointChange(r, "ENDPOINT_UPDATE", kind, id, body)
	respondJSON(w, http.StatusOK, out)
}

// DeactivateEndpoint handles DELETE /endpoints/{kind}/{id}. Soft delete: the
// row stays for audit, is_active flips, the cached client is dropped.
func (h *Handler) DeactivateEndpoint(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := endpointKindAndID(w, r)
	if !ok {
		return
	}
	var err error
	switch kind {
	case models.EndpointKafka:
		err = h.store.DeactivateClusterEndpoint(r.Context(), id)
	case models.EndpointRegistry:
		err = h.store.DeactivateRegistryEndpoint(r.Context(), id)
	case models.EndpointStorage:
		err = h.store.DeactivateStorageEndpoint(r.Context(), id)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.conns.Invalidate(kind, id)
	h.auditEndpointChange(r, "ENDPOINT_DEACTIVATE", kind, id, nil)
	respondJSON(w, http.StatusNoContent, nil)
}

// TestEndpoint handles POST /endpoints/{kind}/{id}/test
func (h *Handler) TestEndpoint(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := endpointKindAndID(w, r)
	if !ok {
		return
	}
	result, err := h.conns.TestConnection(r.Context(), kind, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
