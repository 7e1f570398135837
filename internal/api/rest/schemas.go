package rest

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/streamgov/streamgov-backend/internal/audit"
	"github.com/streamgov/streamgov-backend/internal/batch"
	"github.com/streamgov/streamgov-backend/internal/models"
	"github.com/streamgov/streamgov-backend/internal/pkg/validate"
	"github.com/streamgov/streamgov-backend/internal/registry"
	"github.com/streamgov/streamgov-backend/internal/storage"
)

// SchemaDryRun handles POST /schemas/batch/dry-run?registry_id=…
func (h *Handler) SchemaDryRun(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.registryFromQuery(w, r)
	if !ok {
		return
	}
	body, err := readBody(r)
	if err != nil {
		respondInvalid(w, r, "reading request body: %v", err)
		return
	}
	schemaBatch, err := batch.DecodeSchemaBatch(body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	plan, err := h.planner.PlanSchemas(r.Context(), reg, schemaBatch, audit.ActorFromRequest(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

// SchemaApply handles POST /schemas/batch/apply?registry_id=…&storage_id=…
func (h *Handler) SchemaApply(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.registryFromQuery(w, r)
	if !ok {
		return
	}
	objects, ok := h.storageFromQuery(w, r)
	if !ok {
		return
	}
	body, err := readBody(r)
	if err != nil {
		respondInvalid(w, r, "reading request body: %v", err)
		return
	}
	schemaBatch, err := batch.DecodeSchemaBatch(body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	result, err := h.applier.ApplySchemas(r.Context(), reg, objects, schemaBatch, audit.ActorFromRequest(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// UploadResult is the response of the multipart schema upload pipeline.
type UploadResult struct {
	UploadID string              `json:"upload_id"`
	ChangeID string              `json:"change_id"`
	Subjects []string            `json:"subjects"`
	Plan     *models.Plan        `json:"plan"`
	Result   *models.ApplyResult `json:"result,omitempty"`
}

// SchemaUpload handles POST /schemas/upload (multipart). Files become a
// schema batch, raw bytes are archived, then the batch is planned and, when
// clean, registered in one round trip.
func (h *Handler) SchemaUpload(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.registryFromQuery(w, r)
	if !ok {
		return
	}
	objects, ok := h.storageFromQuery(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(h.uploadLimit() + 1<<20); err != nil {
		respondInvalid(w, r, "parsing multipart form: %v", err)
		return
	}
	changeID := r.FormValue("change_id")
	if changeID == "" {
		respondInvalid(w, r, "change_id form field is required")
		return
	}
	if !validate.ChangeID(changeID) {
		respondInvalid(w, r, "change id %q is not a valid identifier", changeID)
		return
	}
	env := models.ParseEnvironment(r.FormValue("env"))
	owner := r.FormValue("owner")
	compat := models.CompatibilityMode(strings.ToUpper(r.FormValue("compatibility")))
	if compat == "" {
		compat = models.CompatBackward
	}

	files, err := collectUploadFiles(r)
	if err != nil {
		respondInvalid(w, r, "reading uploaded files: %v", err)
		return
	}
	schemaBatch, err := batch.FromUploads(changeID, env, owner, compat, files, h.uploadLimit())
	if err != nil {
		respondError(w, r, err)
		return
	}

	uploadID := uuid.New().String()
	h.archiveUploads(r, objects, env, uploadID, changeID, files)

	actor := audit.ActorFromRequest(r)
	plan, err := h.planner.PlanSchemas(r.Context(), reg, schemaBatch, actor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := &UploadResult{
		UploadID: uploadID,
		ChangeID: changeID,
		Subjects: schemaBatch.Subjects(),
		Plan:     plan,
	}
	if !plan.CanApply() {
		respondJSON(w, http.StatusUnprocessableEntity, out)
		return
	}
	result, err := h.applier.ApplySchemas(r.Context(), reg, objects, schemaBatch, actor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out.Result = result
	respondJSON(w, http.StatusCreated, out)
}

func (h *Handler) uploadLimit() int64 {
	if h.maxUploadBytes > 0 {
		return h.maxUploadBytes
	}
	return batch.DefaultMaxUploadBytes
}

func collectUploadFiles(r *http.Request) ([]batch.UploadFile, error) {
	var files []batch.UploadFile
	for _, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			data, err := readUploadFile(fh)
			if err != nil {
				return nil, err
			}
			files = append(files, batch.UploadFile{Name: fh.Filename, Data: data})
		}
	}
	return files, nil
}

func readUploadFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// archiveUploads stores the raw uploaded bytes for traceability. Failures are
// logged; registration proceeds regardless.
func (h *Handler) archiveUploads(r *http.Request, objects storage.ObjectStore, env models.Environment, uploadID, changeID string, files []batch.UploadFile) {
	if objects == nil {
		return
	}
	for _, f := range files {
		meta := map[string]string{
			"upload_id": uploadID,
			"change_id": changeID,
		}
		if t, ok := batch.SchemaTypeForFile(f.Name); ok {
			meta["schema_type"] = string(t)
		}
		key := storage.UploadKey(env, uploadID, f.Name)
		_, err := objects.Put(r.Context(), key, f.Data, "application/octet-stream", meta)
		if err != nil {
			h.logger.Error("raw upload archive failed", "upload_id", uploadID, "file", f.Name, "error", err)
		}
	}
}

// DeleteSchemaSubject handles DELETE /schemas/{subject}?registry_id=…&force=…
func (h *Handler) DeleteSchemaSubject(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.registryFromQuery(w, r)
	if !ok {
		return
	}
	objects, ok := h.storageFromQuery(w, r)
	if !ok {
		return
	}
	subject := mux.Vars(r)["subject"]
	if !validate.Subject(subject) {
		respondInvalid(w, r, "subject %q is not a valid registry subject", subject)
		return
	}
	force := r.URL.Query().Get("force") == "true"

	out, err := h.applier.DeleteSubject(r.Context(), reg, objects, subject, force, audit.ActorFromRequest(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// ListSchemaArtifacts handles GET /schemas/{subject}/artifacts
func (h *Handler) ListSchemaArtifacts(w http.ResponseWriter, r *http.Request) {
	subject := mux.Vars(r)["subject"]
	if !validate.Subject(subject) {
		respondInvalid(w, r, "subject %q is not a valid registry subject", subject)
		return
	}
	artifacts, err := h.store.ListSchemaArtifacts(r.Context(), subject)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, artifacts)
}

// registryFromQuery resolves the registry client named by ?registry_id=….
// A written response means the caller should return.
func (h *Handler) registryFromQuery(w http.ResponseWriter, r *http.Request) (registry.Registry, bool) {
	id := r.URL.Query().Get("registry_id")
	if id == "" {
		respondInvalid(w, r, "registry_id query parameter is required")
		return nil, false
	}
	reg, err := h.conns.Registry(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}
	return reg, true
}

// storageFromQuery resolves the optional ?storage_id=… object store. Absent
// means no archival; the schema flow works without it.
func (h *Handler) storageFromQuery(w http.ResponseWriter, r *http.Request) (storage.ObjectStore, bool) {
	id := r.URL.Query().Get("storage_id")
	if id == "" {
		return nil, true
	}
	objects, err := h.conns.Storage(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}
	return objects, true
}
