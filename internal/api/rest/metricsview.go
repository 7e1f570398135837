package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/streamgov/streamgov-backend/internal/apperr"
	"github.com/streamgov/streamgov-backend/internal/models"
)

// syncTimeout bounds a background collection kicked off by the sync endpoint.
const syncTimeout = 2 * time.Minute

// ClusterMetricsView is a snapshot with its derived cluster-level figures.
type ClusterMetricsView struct {
	*models.MetricsSnapshot
	PartitionBrokerRatio float64 `json:"partition_broker_ratio"`
}

// GetClusterMetrics handles GET /metrics/clusters/{cluster_id}?refresh=…
func (h *Handler) GetClusterMetrics(w http.ResponseWriter, r *http.Request) {
	clusterID := mux.Vars(r)["cluster_id"]
	var (
		snap *models.MetricsSnapshot
		err  error
	)
	if r.URL.Query().Get("refresh") == "true" {
		snap, err = h.collector.Refresh(r.Context(), clusterID)
	} else {
		snap, err = h.collector.GetSnapshot(r.Context(), clusterID)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ClusterMetricsView{
		MetricsSnapshot:      snap,
		PartitionBrokerRatio: snap.PartitionBrokerRatio(),
	})
}

// TopicMetricsView is the per-topic slice of the latest snapshot.
type TopicMetricsView struct {
	Topic      string                 `json:"topic"`
	ClusterID  string                 `json:"cluster_id"`
	CapturedAt time.Time              `json:"captured_at"`
	Partitions []models.PartitionMeta `json:"partitions"`
	SizeStats  models.TopicSizeStats  `json:"size_stats"`
}

// GetTopicMetrics handles GET /metrics/topics/{name}?cluster_id=…
func (h *Handler) GetTopicMetrics(w http.ResponseWriter, r *http.Request) {
	clusterID := r.URL.Query().Get("cluster_id")
	if clusterID == "" {
		respondInvalid(w, r, "cluster_id query parameter is required")
		return
	}
	name := mux.Vars(r)["name"]
	snap, err := h.collector.GetSnapshot(r.Context(), clusterID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	meta, ok := snap.Topics[name]
	if !ok {
		respondError(w, r, apperr.NotFound("topic", name))
		return
	}
	stats, _ := snap.SizeStats(name)
	respondJSON(w, http.StatusOK, TopicMetricsView{
		Topic:      name,
		ClusterID:  clusterID,
		CapturedAt: snap.CapturedAt,
		Partitions: meta.Partitions,
		SizeStats:  stats,
	})
}

// SyncMetrics handles POST /metrics/sync?cluster_id=…. Collection runs in the
// background, detached from the request; the response only acknowledges.
func (h *Handler) SyncMetrics(w http.ResponseWriter, r *http.Request) {
	clusterID := r.URL.Query().Get("cluster_id")
	if clusterID == "" {
		respondInvalid(w, r, "cluster_id query parameter is required")
		return
	}
	taskID := uuid.New().String()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		if _, err := h.collector.Collect(ctx, clusterID); err != nil {
			h.logger.Error("metrics sync failed", "task_id", taskID, "cluster_id", clusterID, "error", err)
			return
		}
		h.logger.Info("metrics sync finished", "task_id", taskID, "cluster_id", clusterID)
	}()
	respondJSON(w, http.StatusAccepted, map[string]string{
		"task_id": taskID,
		"status":  "processing",
	})
}
