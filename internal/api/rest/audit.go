package rest

import (
	"net/http"

	"github.com/streamgov/streamgov-backend/internal/pkg/validate"
)

// QueryAudit handles GET /audit?change_id=…. Records come back in insertion
// order, which is causal order for a single change.
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	changeID := r.URL.Query().Get("change_id")
	if changeID == "" {
		respondInvalid(w, r, "change_id query parameter is required")
		return
	}
	if !validate.ChangeID(changeID) {
		respondInvalid(w, r, "change id %q is not a valid identifier", changeID)
		return
	}
	records, err := h.store.ListAuditRecords(r.Context(), changeID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}
