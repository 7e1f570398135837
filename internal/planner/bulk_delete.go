package planner

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/streamgov/streamgov-backend/internal/apperr"
	"github.com/streamgov/streamgov-backend/internal/kafka"
	"github.com/streamgov/streamgov-backend/internal/models"
	"github.com/streamgov/streamgov-backend/internal/pkg/metrics"
)

// BulkDeleteResult is the per-name outcome of an ad-hoc topic deletion.
type BulkDeleteResult struct {
	Succeeded []string            `json:"succeeded"`
	Failed    []models.FailedItem `json:"failed"`
	Message   string              `json:"message"`
}

// BulkDeleteTopics deletes the named topics outside the plan/apply cycle.
// Absent topics fail individually with the same message a batch DELETE uses;
// metadata rows of deleted topics are cleaned up best-effort.
func (a *Applier) BulkDeleteTopics(ctx context.Context, admin kafka.Admin, names []string, actor string) (*BulkDeleteResult, error) {
	if len(names) == 0 {
		return nil, apperr.Invariant("no topic names given")
	}
	changeID := "bulk-delete-" + uuid.New().String()
	a.audit.Started(ctx, changeID, "BULK_DELETE", actor, "", names)

	result := &BulkDeleteResult{Succeeded: []string{}, Failed: []models.FailedItem{}}
	failures := admin.DeleteTopics(ctx, names)
	for _, name := range names {
		if err, ok := failures[name]; ok {
			msg := translateDeleteError(name, err)
			result.Failed = append(result.Failed, models.FailedItem{Name: name, Error: msg, Action: models.PlanDelete})
			a.audit.ItemFailed(ctx, changeID, "DELETE", name, actor, msg)
			metrics.ApplyItemsTotal.WithLabelValues("DELETE", "failure").Inc()
			continue
		}
		if err := a.metadata.DeleteTopicMetadata(ctx, name); err != nil && !apperr.Is(err, apperr.KindNotFound) {
			a.logger.Error("topic deleted but metadata row remains",
				"change_id", changeID, "topic", name, "error", err)
		}
		result.Succeeded = append(result.Succeeded, name)
		a.audit.ItemCompleted(ctx, changeID, "DELETE", name, actor)
		metrics.ApplyItemsTotal.WithLabelValues("DELETE", "success").Inc()
	}

	result.Message = fmt.Sprintf("%d deleted, %d failed", len(result.Succeeded), len(result.Failed))
	status := models.AuditCompleted
	switch {
	case len(result.Succeeded) == 0:
		status = models.AuditFailed
	case len(result.Failed) > 0:
		status = models.AuditPartiallyCompleted
	}
	a.audit.Finished(ctx, changeID, "BULK_DELETE", actor, status, result)
	return result, nil
}
