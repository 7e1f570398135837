package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/streamgov/streamgov-backend/internal/apperr"
	"github.com/streamgov/streamgov-backend/internal/models"
)

// ListPolicies handles GET /policies
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.store.ListAllPolicies(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, policies)
}

// CreatePolicy handles POST /policies. The row is stored as DRAFT at
// latest+1; activation is an explicit second step.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var in models.Policy
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondInvalid(w, r, "decoding policy: %v", err)
		return
	}
	policy, err := models.NewPolicy(in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	latest, err := h.store.GetLatestVersion(r.Context(), policy.PolicyID)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		respondError(w, r, err)
		return
	}
	policy.Version = latest + 1
	if err := h.store.CreatePolicy(r.Context(), &policy); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, policy)
}

// ListPolicyVersions handles GET /policies/{policy_id}
func (h *Handler) ListPolicyVersions(w http.ResponseWriter, r *http.Request) {
	policyID := mux.Vars(r)["policy_id"]
	versions, err := h.store.ListPolicies(r.Context(), policyID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if len(versions) == 0 {
		respondError(w, r, apperr.NotFound("policy", policyID))
		return
	}
	respondJSON(w, http.StatusOK, versions)
}

// GetPolicy handles GET /policies/{policy_id}/versions/{version}
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policyID, version, ok := policyVersionVars(w, r)
	if !ok {
		return
	}
	policy, err := h.store.GetPolicy(r.Context(), policyID, version)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, policy)
}

// ActivatePolicy handles POST /policies/{policy_id}/versions/{version}/activate.
// The store swap is atomic: any prior ACTIVE version of the same policy_id or
// the same (type, target_environment) is archived in the same transaction.
func (h *Handler) ActivatePolicy(w http.ResponseWriter, r *http.Request) {
	policyID, version, ok := policyVersionVars(w, r)
	if !ok {
		return
	}
	if err := h.store.ActivatePolicy(r.Context(), policyID, version); err != nil {
		respondError(w, r, err)
		return
	}
	policy, err := h.store.GetPolicy(r.Context(), policyID, version)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, policy)
}

// ArchivePolicy handles POST /policies/{policy_id}/versions/{version}/archive
func (h *Handler) ArchivePolicy(w http.ResponseWriter, r *http.Request) {
	policyID, version, ok := policyVersionVars(w, r)
	if !ok {
		return
	}
	if err := h.store.ArchivePolicy(r.Context(), policyID, version); err != nil {
		respondError(w, r, err)
		return
	}
	policy, err := h.store.GetPolicy(r.Context(), policyID, version)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, policy)
}

// RollbackPolicy handles POST /policies/{policy_id}/versions/{version}/rollback.
// The archived version's content is copied into a fresh version which is then
// activated, so history stays append-only.
func (h *Handler) RollbackPolicy(w http.ResponseWriter, r *http.Request) {
	policyID, version, ok := policyVersionVars(w, r)
	if !ok {
		return
	}
	source, err := h.store.GetPolicy(r.Context(), policyID, version)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if source.Status != models.PolicyArchived {
		respondInvalid(w, r, "policy %s v%d is %s; only archived versions can be rolled back", policyID, version, source.Status)
		return
	}
	latest, err := h.store.GetLatestVersion(r.Context(), policyID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	restored := *source
	restored.Version = latest + 1
	restored.Status = models.PolicyDraft
	restored.CreatedBy = actorOr(r, source.CreatedBy)
	if err := h.store.CreatePolicy(r.Context(), &restored); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.store.ActivatePolicy(r.Context(), policyID, restored.Version); err != nil {
		respondError(w, r, err)
		return
	}
	policy, err := h.store.GetPolicy(r.Context(), policyID, restored.Version)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, policy)
}

// DeletePolicyVersion handles DELETE /policies/{policy_id}/versions/{version}.
// The store refuses to delete an ACTIVE version.
func (h *Handler) DeletePolicyVersion(w http.ResponseWriter, r *http.Request) {
	policyID, version, ok := policyVersionVars(w, r)
	if !ok {
		return
	}
	if err := h.store.DeletePolicyVersion(r.Context(), policyID, version); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func policyVersionVars(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	vars := mux.Vars(r)
	version, err := strconv.Atoi(vars["version"])
	if err != nil || version < 1 {
		respondInvalid(w, r, "version must be a positive integer, got %q", vars["version"])
		return "", 0, false
	}
	return vars["policy_id"], version, true
}

func actorOr(r *http.Request, fallback string) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return fallback
}
