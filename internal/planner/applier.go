package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/streamgov/streamgov-backend/internal/apperr"
	"github.com/streamgov/streamgov-backend/internal/audit"
	"github.com/streamgov/streamgov-backend/internal/events"
	"github.com/streamgov/streamgov-backend/internal/kafka"
	"github.com/streamgov/streamgov-backend/internal/models"
	"github.com/streamgov/streamgov-backend/internal/pkg/metrics"
	"github.com/streamgov/streamgov-backend/internal/repository"
)

// Applier executes persisted plans. Apply is not transactional across items:
// each item succeeds or fails on its own, and creates carry a compensating
// rollback when metadata persistence fails after the topic already exists.
type Applier struct {
	metadata  repository.MetadataStore
	plans     repository.PlanStore
	artifacts repository.ArtifactStore
	audit     *audit.Writer
	bus       *events.Bus
	logger    *slog.Logger
}

// NewApplier wires an Applier. bus may be nil when no subscriber exists.
func NewApplier(metadata repository.MetadataStore, plans repository.PlanStore, artifacts repository.ArtifactStore, aud *audit.Writer, bus *events.Bus, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{metadata: metadata, plans: plans, artifacts: artifacts, audit: aud, bus: bus, logger: logger}
}

// applySummary is the machine-readable snapshot of the terminal audit record.
type applySummary struct {
	Summary      string              `json:"summary"`
	ActionCounts map[string]int      `json:"action_counts"`
	Applied      []string            `json:"applied"`
	Skipped      []string            `json:"skipped"`
	Failed       []models.FailedItem `json:"failed"`
}

// ApplyTopics loads the plan persisted for the batch, re-verifies it against
// live cluster state and executes it item by item.
func (a *Applier) ApplyTopics(ctx context.Context, admin kafka.Admin, batch models.TopicBatch, actor string) (*models.ApplyResult, error) {
	changeID := batch.ChangeID
	plan, err := a.plans.GetPlan(ctx, repository.PlanKindTopic, changeID)
	if err != nil {
		return nil, err
	}

	a.audit.Started(ctx, changeID, "APPLY", actor, batchTeam(batch), plan)
	if err := a.preflight(ctx, changeID, batch.Fingerprint(), plan, actor); err != nil {
		return nil, err
	}
	if err := a.verifyFreshness(ctx, admin, changeID, plan, actor); err != nil {
		return nil, err
	}

	specs := make(map[string]models.TopicSpec, len(batch.Specs))
	for _, s := range batch.Specs {
		specs[s.Name] = s
	}

	var creates, deletes, alters []models.PlanItem
	applied := make([]string, 0, len(plan.Items))
	skipped := make([]string, 0)
	failed := make([]models.FailedItem, 0)
	for _, item := range plan.Items {
		switch item.Action {
		case models.PlanCreate:
			creates = append(creates, item)
		case models.PlanDelete:
			deletes = append(deletes, item)
		case models.PlanAlter:
			alters = append(alters, item)
		default:
			skipped = append(skipped, item.Name)
		}
	}

	a.applyCreates(ctx, admin, changeID, actor, creates, specs, &applied, &failed)
	a.applyDeletes(ctx, admin, changeID, actor, deletes, &applied, &failed)
	a.applyAlters(ctx, admin, changeID, actor, alters, specs, &applied, &failed)

	result := &models.ApplyResult{
		ChangeID:  changeID,
		Env:       batch.Env,
		Applied:   applied,
		Skipped:   skipped,
		Failed:    failed,
		AppliedAt: time.Now().UTC(),
	}
	a.finish(ctx, repository.PlanKindTopic, result, actor)

	if a.bus != nil {
		a.bus.Publish(events.TopicApplied{
			ChangeID:  changeID,
			Applied:   applied,
			Failed:    len(failed),
			Timestamp: result.AppliedAt,
		})
	}
	return result, nil
}

// preflight refuses plans whose batch drifted since dry-run or that carry
// blocking violations. Both refusals leave a terminal FAILED audit record.
func (a *Applier) preflight(ctx context.Context, changeID, fingerprint string, plan *models.Plan, actor string) error {
	if plan.Fingerprint != fingerprint {
		err := apperr.New(apperr.KindStale, "batch %s does not match its dry-run plan; re-run dry-run", changeID)
		a.audit.Finished(ctx, changeID, "APPLY", actor, models.AuditFailed, map[string]string{"error": err.Message})
		return err
	}
	if !plan.CanApply() {
		blocking := plan.BlockingViolations()
		msgs := make([]string, 0, len(blocking))
		for _, v := range blocking {
			msgs = append(msgs, fmt.Sprintf("%s: %s", v.Resource, v.Message))
		}
		for _, r := range plan.CompatibilityReports {
			if !r.IsCompatible {
				msgs = append(msgs, fmt.Sprintf("%s: incompatible schema change", r.Subject))
			}
		}
		err := apperr.New(apperr.KindPolicyViolation, "plan %s cannot be applied: %s", changeID, strings.Join(msgs, "; "))
		a.audit.Finished(ctx, changeID, "APPLY", actor, models.AuditFailed,
			map[string]interface{}{"error": err.Message, "violations": blocking})
		return err
	}
	return nil
}

// verifyFreshness re-reads live state for every non-create mutation. A
// partition count that moved since dry-run aborts the whole batch.
func (a *Applier) verifyFreshness(ctx context.Context, admin kafka.Admin, changeID string, plan *models.Plan, actor string) error {
	var names []string
	for _, item := range plan.Items {
		if item.Action == models.PlanAlter || item.Action == models.PlanDelete {
			names = append(names, item.Name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	live, err := admin.DescribeTopics(ctx, names)
	if err != nil {
		wrapped := apperr.Wrap(apperr.KindBackend, err, "re-read cluster state for apply %s", changeID)
		a.audit.Finished(ctx, changeID, "APPLY", actor, models.AuditFailed, map[string]string{"error": wrapped.Message})
		return wrapped
	}
	for _, item := range plan.Items {
		if item.Action != models.PlanAlter {
			continue
		}
		detail, ok := live[item.Name]
		if !ok {
			return a.staleAbort(ctx, changeID, actor,
				fmt.Sprintf("topic %s was deleted after dry-run; re-run dry-run", item.Name))
		}
		if detail.Partitions != item.CurrentPartitions {
			return a.staleAbort(ctx, changeID, actor,
				fmt.Sprintf("topic %s partition count changed after dry-run (%d→%d); re-run dry-run",
					item.Name, item.CurrentPartitions, detail.Partitions))
		}
	}
	return nil
}

func (a *Applier) staleAbort(ctx context.Context, changeID, actor, message string) error {
	err := apperr.New(apperr.KindStale, "%s", message)
	a.audit.Finished(ctx, changeID, "APPLY", actor, models.AuditFailed, map[string]string{"error": message})
	return err
}

func (a *Applier) applyCreates(ctx context.Context, admin kafka.Admin, changeID, actor string, items []models.PlanItem, specs map[string]models.TopicSpec, applied *[]string, failed *[]models.FailedItem) {
	if len(items) == 0 {
		return
	}
	newTopics := make([]kafka.NewTopic, 0, len(items))
	for _, item := range items {
		spec := specs[item.Name]
		newTopics = append(newTopics, kafka.NewTopic{
			Name:              item.Name,
			Partitions:        int32(spec.Config.Partitions),
			ReplicationFactor: int16(spec.Config.ReplicationFactor),
			Config:            configPointers(spec.Config.ConfigEntries()),
		})
	}
	failures := admin.CreateTopics(ctx, newTopics)

	for _, item := range items {
		if err, ok := failures[item.Name]; ok {
			msg := translateCreateError(item.Name, err)
			*failed = append(*failed, models.FailedItem{Name: item.Name, Error: msg, Action: models.PlanCreate})
			a.audit.ItemFailed(ctx, changeID, "CREATE", item.Name, actor, msg)
			metrics.ApplyItemsTotal.WithLabelValues("CREATE", "failure").Inc()
			continue
		}
		spec := specs[item.Name]
		if err := a.metadata.SaveTopicMetadata(ctx, metadataRecord(spec, actor)); err != nil {
			a.rollbackCreate(ctx, admin, changeID, item.Name)
			msg := "메타데이터 저장 실패: " + err.Error()
			*failed = append(*failed, models.FailedItem{Name: item.Name, Error: msg, Action: models.PlanCreate})
			a.audit.ItemFailed(ctx, changeID, "CREATE", item.Name, actor, msg)
			metrics.ApplyItemsTotal.WithLabelValues("CREATE", "failure").Inc()
			continue
		}
		*applied = append(*applied, item.Name)
		a.audit.ItemCompleted(ctx, changeID, "CREATE", item.Name, actor)
		metrics.ApplyItemsTotal.WithLabelValues("CREATE", "success").Inc()
	}
}

// rollbackCreate deletes a topic whose metadata could not be saved. A failed
// rollback leaves an orphaned topic; that is logged CRITICAL and swallowed,
// the user already received the item failure.
func (a *Applier) rollbackCreate(ctx context.Context, admin kafka.Admin, changeID, name string) {
	if failures := admin.DeleteTopics(ctx, []string{name}); len(failures) > 0 {
		a.logger.Error("rollback failed: created topic could not be deleted",
			"critical", true, "change_id", changeID, "topic", name, "error", failures[name])
	}
}

func (a *Applier) applyDeletes(ctx context.Context, admin kafka.Admin, changeID, actor string, items []models.PlanItem, applied *[]string, failed *[]models.FailedItem) {
	if len(items) == 0 {
		return
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	failures := admin.DeleteTopics(ctx, names)

	for _, item := range items {
		if err, ok := failures[item.Name]; ok {
			msg := translateDeleteError(item.Name, err)
			*failed = append(*failed, models.FailedItem{Name: item.Name, Error: msg, Action: models.PlanDelete})
			a.audit.ItemFailed(ctx, changeID, "DELETE", item.Name, actor, msg)
			metrics.ApplyItemsTotal.WithLabelValues("DELETE", "failure").Inc()
			continue
		}
		if err := a.metadata.DeleteTopicMetadata(ctx, item.Name); err != nil && !apperr.Is(err, apperr.KindNotFound) {
			a.logger.Error("topic deleted but metadata row remains",
				"change_id", changeID, "topic", item.Name, "error", err)
		}
		*applied = append(*applied, item.Name)
		a.audit.ItemCompleted(ctx, changeID, "DELETE", item.Name, actor)
		metrics.ApplyItemsTotal.WithLabelValues("DELETE", "success").Inc()
	}
}

// applyAlters submits partition increases before config changes. The item
// counts as applied when its config alter succeeds; a partition-increase
// failure is reported but does not gate the config change (the two are
// independent broker operations).
func (a *Applier) applyAlters(ctx context.Context, admin kafka.Admin, changeID, actor string, items []models.PlanItem, specs map[string]models.TopicSpec, applied *[]string, failed *[]models.FailedItem) {
	for _, item := range items {
		partitionOK := true
		if item.TargetPartitions > item.CurrentPartitions {
			if err := admin.CreatePartitions(ctx, item.Name, int32(item.TargetPartitions)); err != nil {
				partitionOK = false
				msg := fmt.Sprintf("partition increase to %d failed: %v", item.TargetPartitions, err)
				*failed = append(*failed, models.FailedItem{Name: item.Name, Error: msg, Action: models.PlanAlter})
				a.audit.ItemFailed(ctx, changeID, "ALTER_PARTITIONS", item.Name, actor, msg)
				metrics.ApplyItemsTotal.WithLabelValues("ALTER_PARTITIONS", "failure").Inc()
			} else {
				a.audit.ItemCompleted(ctx, changeID, "ALTER_PARTITIONS", item.Name, actor)
				metrics.ApplyItemsTotal.WithLabelValues("ALTER_PARTITIONS", "success").Inc()
			}
		}

		configChanges := alterConfigEntries(item)
		if len(configChanges) == 0 {
			if partitionOK {
				*applied = append(*applied, item.Name)
			}
			continue
		}
		if err := admin.AlterTopicConfig(ctx, item.Name, configChanges); err != nil {
			msg := fmt.Sprintf("config change failed: %v", err)
			*failed = append(*failed, models.FailedItem{Name: item.Name, Error: msg, Action: models.PlanAlter})
			a.audit.ItemFailed(ctx, changeID, "ALTER_CONFIG", item.Name, actor, msg)
			metrics.ApplyItemsTotal.WithLabelValues("ALTER_CONFIG", "failure").Inc()
			continue
		}
		*applied = append(*applied, item.Name)
		a.audit.ItemCompleted(ctx, changeID, "ALTER_CONFIG", item.Name, actor)
		metrics.ApplyItemsTotal.WithLabelValues("ALTER_CONFIG", "success").Inc()

		if spec, ok := specs[item.Name]; ok {
			if err := a.metadata.SaveTopicMetadata(ctx, metadataRecord(spec, actor)); err != nil {
				a.logger.Error("topic altered but metadata update failed",
					"change_id", changeID, "topic", item.Name, "error", err)
			}
		}
	}
}

// finish writes the terminal audit record and persists the apply result.
func (a *Applier) finish(ctx context.Context, kind repository.PlanKind, result *models.ApplyResult, actor string) {
	status := result.Status()
	counts := map[string]int{}
	for _, f := range result.Failed {
		counts[string(f.Action)+"_failed"]++
	}
	counts["applied"] = len(result.Applied)
	counts["skipped"] = len(result.Skipped)
	a.audit.Finished(ctx, result.ChangeID, "APPLY", actor, status, applySummary{
		Summary: fmt.Sprintf("%d applied, %d skipped, %d failed",
			len(result.Applied), len(result.Skipped), len(result.Failed)),
		ActionCounts: counts,
		Applied:      result.Applied,
		Skipped:      result.Skipped,
		Failed:       result.Failed,
	})
	if err := a.plans.SaveApplyResult(ctx, kind, result, actor); err != nil {
		a.logger.Error("apply result row save failed",
			"critical", true, "change_id", result.ChangeID, "error", err)
	}
}

// alterConfigEntries builds the incremental config change for one ALTER item.
// A key diffed to the none token is removed (nil value resets the override).
func alterConfigEntries(item models.PlanItem) map[string]*string {
	out := map[string]*string{}
	for key := range item.Diff {
		if key == "partitions" || key == "status" {
			continue
		}
		if v, ok := item.TargetConfig[key]; ok {
			value := v
			out[key] = &value
		} else {
			out[key] = nil
		}
	}
	return out
}

func configPointers(entries map[string]string) map[string]*string {
	out := make(map[string]*string, len(entries))
	for k, v := range entries {
		value := v
		out[k] = &value
	}
	return out
}

func metadataRecord(spec models.TopicSpec, actor string) *repository.TopicMetadataRecord {
	rec := &repository.TopicMetadataRecord{
		TopicName: spec.Name,
		CreatedBy: actor,
		UpdatedBy: actor,
	}
	if spec.Metadata != nil {
		rec.Owner = strings.Join(spec.Metadata.Owners, ",")
		rec.Doc = spec.Metadata.Doc
		if tags, err := json.Marshal(spec.Metadata.Tags); err == nil && spec.Metadata.Tags != nil {
			rec.Tags = string(tags)
		}
	}
	if spec.Config != nil {
		if cfg, err := json.Marshal(spec.Config); err == nil {
			rec.Config = string(cfg)
		}
	}
	return rec
}

func batchTeam(batch models.TopicBatch) string {
	for _, spec := range batch.Specs {
		if spec.Metadata != nil && spec.Metadata.Team != "" {
			return spec.Metadata.Team
		}
	}
	return ""
}

func translateCreateError(name string, err error) string {
	if kafka.IsTopicAlreadyExists(err) {
		return fmt.Sprintf("토픽 '%s'이(가) 이미 존재합니다. 기존 토픽을 변경하려면 UPDATE 액션을 사용하세요.", name)
	}
	return err.Error()
}

func translateDeleteError(name string, err error) string {
	if kafka.IsUnknownTopic(err) {
		return fmt.Sprintf("토픽 '%s'이(가) 존재하지 않아 삭제할 수 없습니다.", name)
	}
	return err.Error()
}
