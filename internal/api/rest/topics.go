package rest

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"

	"github.com/streamgov/streamgov-backend/internal/audit"
	"github.com/streamgov/streamgov-backend/internal/batch"
	"github.com/streamgov/streamgov-backend/internal/models"
	"github.com/streamgov/streamgov-backend/internal/pkg/validate"
	"github.com/streamgov/streamgov-backend/internal/repository"
)

// TopicView is one row of the enriched topic list: live cluster state merged
// with stored governance metadata.
type TopicView struct {
	Name              string   `json:"name"`
	Owners            []string `json:"owners"`
	PartitionCount    int      `json:"partition_count"`
	ReplicationFactor int      `json:"replication_factor"`
	Environment       string   `json:"environment"`
	Tags              []string `json:"tags,omitempty"`
	Doc               string   `json:"doc,omitempty"`
}

// ListTopics handles GET /topics?cluster_id=…
func (h *Handler) ListTopics(w http.ResponseWriter, r *http.Request) {
	clusterID := r.URL.Query().Get("cluster_id")
	if clusterID == "" {
		respondInvalid(w, r, "cluster_id query parameter is required")
		return
	}
	admin, err := h.conns.Kafka(r.Context(), clusterID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	topics, err := admin.ListTopics(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	records, err := h.store.ListTopicMetadata(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	byName := make(map[string]*repository.TopicMetadataRecord, len(records))
	for _, rec := range records {
		byName[rec.TopicName] = rec
	}

	views := make([]TopicView, 0, len(topics))
	for name, detail := range topics {
		view := TopicView{
			Name:              name,
			Owners:            []string{},
			PartitionCount:    detail.Partitions,
			ReplicationFactor: detail.ReplicationFactor,
			Environment:       string(models.DeriveEnvironment(name)),
		}
		if rec, ok := byName[name]; ok {
			view.Owners = splitOwners(rec.Owner)
			view.Doc = rec.Doc
			view.Tags = decodeTags(rec.Tags)
		}
		views = append(views, view)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	respondJSON(w, http.StatusOK, views)
}

func splitOwners(owner string) []string {
	if owner == "" {
		return []string{}
	}
	parts := strings.Split(owner, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func decodeTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

// TopicDryRun handles POST /topics/batch/dry-run?cluster_id=…
func (h *Handler) TopicDryRun(w http.ResponseWriter, r *http.Request) {
	clusterID := r.URL.Query().Get("cluster_id")
	if clusterID == "" {
		respondInvalid(w, r, "cluster_id query parameter is required")
		return
	}
	body, err := readBody(r)
	if err != nil {
		respondInvalid(w, r, "reading request body: %v", err)
		return
	}
	topicBatch, err := batch.DecodeTopicBatch(body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	admin, err := h.conns.Kafka(r.Context(), clusterID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	plan, err := h.planner.PlanTopics(r.Context(), admin, topicBatch, audit.ActorFromRequest(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

// TopicApply handles POST /topics/batch/apply?cluster_id=…
func (h *Handler) TopicApply(w http.ResponseWriter, r *http.Request) {
	clusterID := r.URL.Query().Get("cluster_id")
	if clusterID == "" {
		respondInvalid(w, r, "cluster_id query parameter is required")
		return
	}
	body, err := readBody(r)
	if err != nil {
		respondInvalid(w, r, "reading request body: %v", err)
		return
	}
	topicBatch, err := batch.DecodeTopicBatch(body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	admin, err := h.conns.Kafka(r.Context(), clusterID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	result, err := h.applier.ApplyTopics(r.Context(), admin, topicBatch, audit.ActorFromRequest(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetTopicPlan handles GET /topics/batch/{change_id}/plan
func (h *Handler) GetTopicPlan(w http.ResponseWriter, r *http.Request) {
	changeID := mux.Vars(r)["change_id"]
	if !validate.ChangeID(changeID) {
		respondInvalid(w, r, "change id %q is not a valid identifier", changeID)
		return
	}
	plan, err := h.store.GetPlan(r.Context(), repository.PlanKindTopic, changeID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

// BulkDeleteTopics handles POST /topics/bulk-delete?cluster_id=…
func (h *Handler) BulkDeleteTopics(w http.ResponseWriter, r *http.Request) {
	clusterID := r.URL.Query().Get("cluster_id")
	if clusterID == "" {
		respondInvalid(w, r, "cluster_id query parameter is required")
		return
	}
	var names []string
	if err := json.NewDecoder(r.Body).Decode(&names); err != nil {
		respondInvalid(w, r, "request body must be a JSON array of topic names: %v", err)
		return
	}
	for _, name := range names {
		if !validate.TopicName(name) {
			respondInvalid(w, r, "topic name %q is not a valid Kafka topic name", name)
			return
		}
	}
	admin, err := h.conns.Kafka(r.Context(), clusterID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	result, err := h.applier.BulkDeleteTopics(r.Context(), admin, names, audit.ActorFromRequest(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
