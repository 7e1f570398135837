// Package rest exposes the governance control plane over HTTP. Handlers stay
// thin: decode, resolve backend clients by endpoint id, call the domain layer,
// map errors through the taxonomy.
package rest

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/streamgov/streamgov-backend/internal/collector"
	"github.com/streamgov/streamgov-backend/internal/connmgr"
	"github.com/streamgov/streamgov-backend/internal/planner"
	"github.com/streamgov/streamgov-backend/internal/repository"
)

// Handler wires the HTTP surface to the domain layer.
type Handler struct {
	store     repository.Store
	conns     *connmgr.Manager
	planner   *planner.Planner
	applier   *planner.Applier
	collector *collector.Collector

	maxUploadBytes int64
	logger         *slog.Logger
}

// NewHandler creates the handler. maxUploadBytes caps individual schema file
// uploads; zero uses the batch-package default.
func NewHandler(store repository.Store, conns *connmgr.Manager, pl *planner.Planner, ap *planner.Applier, col *collector.Collector, maxUploadBytes int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:          store,
		conns:          conns,
		planner:        pl,
		applier:        ap,
		collector:      col,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Routes registers every API route on the given (already prefixed) router.
func (h *Handler) Routes(r *mux.Router) {
	// Topics
	r.HandleFunc("/topics", h.ListTopics).Methods("GET")
	r.HandleFunc("/topics/batch/dry-run", h.TopicDryRun).Methods("POST")
	r.HandleFunc("/topics/batch/apply", h.TopicApply).Methods("POST")
	r.HandleFunc("/topics/batch/{change_id}/plan", h.GetTopicPlan).Methods("GET")
	r.HandleFunc("/topics/bulk-delete", h.BulkDeleteTopics).Methods("POST")

	// Schemas
	r.HandleFunc("/schemas/batch/dry-run", h.SchemaDryRun).Methods("POST")
	r.HandleFunc("/schemas/batch/apply", h.SchemaApply).Methods("POST")
	r.HandleFunc("/schemas/upload", h.SchemaUpload).Methods("POST")
	r.HandleFunc("/schemas/{subject}", h.DeleteSchemaSubject).Methods("DELETE")
	r.HandleFunc("/schemas/{subject}/artifacts", h.ListSchemaArtifacts).Methods("GET")

	// Metrics views
	r.HandleFunc("/metrics/clusters/{cluster_id}", h.GetClusterMetrics).Methods("GET")
	r.HandleFunc("/metrics/topics/{name}", h.GetTopicMetrics).Methods("GET")
	r.HandleFunc("/metrics/sync", h.SyncMetrics).Methods("POST")

	// Policies
	r.HandleFunc("/policies", h.ListPolicies).Methods("GET")
	r.HandleFunc("/policies", h.CreatePolicy).Methods("POST")
	r.HandleFunc("/policies/{policy_id}", h.ListPolicyVersions).Methods("GET")
	r.HandleFunc("/policies/{policy_id}/versions/{version}", h.GetPolicy).Methods("GET")
	r.HandleFunc("/policies/{policy_id}/versions/{version}", h.DeletePolicyVersion).Methods("DELETE")
	r.HandleFunc("/policies/{policy_id}/versions/{version}/activate", h.ActivatePolicy).Methods("POST")
	r.HandleFunc("/policies/{policy_id}/versions/{version}/archive", h.ArchivePolicy).Methods("POST")
	r.HandleFunc("/policies/{policy_id}/versions/{version}/rollback", h.RollbackPolicy).Methods("POST")

	// Connection endpoints
	r.HandleFunc("/endpoints/{kind}", h.ListEndpoints).Methods("GET")
	r.HandleFunc("/endpoints/{kind}", h.CreateEndpoint).Methods("POST")
	r.HandleFunc("/endpoints/{kind}/{id}", h.GetEndpoint).Methods("GET")
	r.HandleFunc("/endpoints/{kind}/{id}", h.UpdateEndpoint).Methods("PUT")
	r.HandleFunc("/endpoints/{kind}/{id}", h.DeactivateEndpoint).Methods("DELETE")
	r.HandleFunc("/endpoints/{kind}/{id}/test", h.TestEndpoint).Methods("POST")

	// Audit
	r.HandleFunc("/audit", h.QueryAudit).Methods("GET")
}

// readBody drains the request body, bounded upstream by the body-limit
// middleware.
func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
