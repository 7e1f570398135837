// Package planner turns declarative batches into executable plans and applies
// them with per-item isolation. A plan is a pure function of the batch and the
// plan-time cluster snapshot; apply re-verifies the snapshot before mutating.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/streamgov/streamgov-backend/internal/apperr"
	"github.com/streamgov/streamgov-backend/internal/kafka"
	"github.com/streamgov/streamgov-backend/internal/models"
	"github.com/streamgov/streamgov-backend/internal/pkg/metrics"
	"github.com/streamgov/streamgov-backend/internal/policy"
	"github.com/streamgov/streamgov-backend/internal/registry"
	"github.com/streamgov/streamgov-backend/internal/repository"
)

// Planner builds dry-run plans. Stateless apart from its collaborators; safe
// for concurrent use.
type Planner struct {
	engine   *policy.Engine
	policies policy.ActivePolicySource
	plans    repository.PlanStore
	logger   *slog.Logger
}

// New creates a Planner.
func New(engine *policy.Engine, policies policy.ActivePolicySource, plans repository.PlanStore, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{engine: engine, policies: policies, plans: plans, logger: logger}
}

// PlanTopics snapshots current cluster state once, derives one item per spec,
// evaluates policies and persists the resulting plan under its change id.
func (p *Planner) PlanTopics(ctx context.Context, admin kafka.Admin, batch models.TopicBatch, createdBy string) (*models.Plan, error) {
	start := time.Now()

	current, err := admin.DescribeTopics(ctx, batch.Names())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, err, "describe topics for plan %s", batch.ChangeID)
	}

	items := make([]models.PlanItem, 0, len(batch.Specs))
	var legality []models.Violation
	for _, spec := range batch.Specs {
		detail, exists := current[spec.Name]
		item, itemViolations := deriveTopicItem(spec, detail, exists)
		items = append(items, item)
		legality = append(legality, itemViolations...)
	}

	resolved, err := policy.Resolve(ctx, p.policies, batch.Env)
	if err != nil {
		return nil, err
	}
	violations, err := p.engine.EvaluateTopicSpecs(batch, resolved)
	if err != nil {
		return nil, err
	}
	violations = append(violations, legality...)
	sortViolations(violations)

	plan := &models.Plan{
		ChangeID:    batch.ChangeID,
		Env:         batch.Env,
		Fingerprint: batch.Fingerprint(),
		Items:       items,
		Violations:  violations,
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.plans.SavePlan(ctx, repository.PlanKindTopic, plan, createdBy); err != nil {
		return nil, err
	}

	observePlan("topic", plan, start)
	p.logger.Info("topic plan built",
		"change_id", plan.ChangeID, "items", len(plan.Items),
		"violations", len(plan.Violations), "can_apply", plan.CanApply())
	return plan, nil
}

// PlanSchemas mirrors PlanTopics for schema batches, adding a compatibility
// report per subject.
func (p *Planner) PlanSchemas(ctx context.Context, reg registry.Registry, batch models.SchemaBatch, createdBy string) (*models.Plan, error) {
	start := time.Now()

	items := make([]models.PlanItem, 0, len(batch.Specs))
	reports := make([]models.CompatibilityReport, 0, len(batch.Specs))
	for _, spec := range batch.Specs {
		state, err := reg.DescribeSubject(ctx, spec.Subject)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindBackend, err, "describe subject %s for plan %s", spec.Subject, batch.ChangeID)
		}
		items = append(items, deriveSchemaItem(spec, state))
		reports = append(reports, reg.CheckCompatibility(ctx, spec))
	}

	resolved, err := policy.Resolve(ctx, p.policies, batch.Env)
	if err != nil {
		return nil, err
	}
	violations, err := p.engine.EvaluateSchemaSpecs(batch, resolved)
	if err != nil {
		return nil, err
	}

	plan := &models.Plan{
		ChangeID:             batch.ChangeID,
		Env:                  batch.Env,
		Fingerprint:          batch.Fingerprint(),
		Items:                items,
		Violations:           violations,
		CompatibilityReports: reports,
		CreatedAt:            time.Now().UTC(),
	}
	if err := p.plans.SavePlan(ctx, repository.PlanKindSchema, plan, createdBy); err != nil {
		return nil, err
	}

	observePlan("schema", plan, start)
	p.logger.Info("schema plan built",
		"change_id", plan.ChangeID, "items", len(plan.Items),
		"violations", len(plan.Violations), "can_apply", plan.CanApply())
	return plan, nil
}

// deriveTopicItem maps one spec against the plan-time snapshot to an action.
func deriveTopicItem(spec models.TopicSpec, detail kafka.TopicDetail, exists bool) (models.PlanItem, []models.Violation) {
	item := models.PlanItem{Name: spec.Name, Action: models.PlanNone}

	switch {
	case spec.Action == models.ActionDelete && !exists:
		return item, nil

	case spec.Action == models.ActionDelete:
		item.Action = models.PlanDelete
		item.Diff = map[string]string{"status": renderChange("exists", "deleted")}
		item.CurrentPartitions = detail.Partitions
		return item, nil

	case spec.Action == models.ActionUpdate && !exists:
		return item, []models.Violation{{
			Resource: spec.Name,
			RuleID:   "change.target_missing",
			Severity: models.SeverityError,
			Field:    "action",
			Message:  fmt.Sprintf("topic %s does not exist; UPDATE requires an existing topic", spec.Name),
		}}

	case !exists:
		// CREATE and UPSERT against an absent topic both create.
		item.Action = models.PlanCreate
		item.Diff = map[string]string{"status": renderChange("new", "created")}
		item.TargetConfig = spec.Config.ConfigEntries()
		item.TargetPartitions = spec.Config.Partitions
		return item, nil
	}

	// Present topic with CREATE/UPDATE/UPSERT intent: compute the field diff.
	currentCfg := detail.Config
	targetCfg := spec.Config.ConfigEntries()
	diff := diffConfigs(currentCfg, targetCfg)

	violations := validateTopicChange(spec.Name,
		detail.Partitions, spec.Config.Partitions,
		detail.ReplicationFactor, spec.Config.ReplicationFactor)

	item.CurrentPartitions = detail.Partitions
	if spec.Config.Partitions > detail.Partitions {
		diff["partitions"] = renderChange(
			strconv.Itoa(detail.Partitions), strconv.Itoa(spec.Config.Partitions))
		item.TargetPartitions = spec.Config.Partitions
	}

	if len(diff) == 0 {
		return item, violations
	}
	item.Action = models.PlanAlter
	item.Diff = diff
	item.CurrentConfig = currentCfg
	item.TargetConfig = targetCfg
	return item, violations
}

// deriveSchemaItem maps one schema spec against the registry state. Every
// registration is additive: a new subject is a CREATE, a new version of an
// existing subject is an ALTER.
func deriveSchemaItem(spec models.SchemaSpec, state *registry.SubjectState) models.PlanItem {
	item := models.PlanItem{Name: spec.Subject}
	if state == nil {
		item.Action = models.PlanCreate
		item.Diff = map[string]string{"status": renderChange("new", "created")}
		item.TargetConfig = map[string]string{"compatibility": string(spec.Compatibility)}
		return item
	}
	item.Action = models.PlanAlter
	item.Diff = map[string]string{
		"version": renderChange(strconv.Itoa(state.Version), strconv.Itoa(state.Version+1)),
	}
	if state.Compatibility != "" && state.Compatibility != spec.Compatibility {
		item.Diff["compatibility"] = renderChange(string(state.Compatibility), string(spec.Compatibility))
	}
	item.CurrentConfig = map[string]string{"compatibility": string(state.Compatibility)}
	item.TargetConfig = map[string]string{"compatibility": string(spec.Compatibility)}
	return item
}

func observePlan(kind string, plan *models.Plan, start time.Time) {
	metrics.PlanBuildDurationSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	for _, v := range plan.Violations {
		metrics.PolicyViolationsTotal.WithLabelValues(string(v.Severity)).Inc()
	}
}

func sortViolations(vs []models.Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].Resource != vs[j].Resource {
			return vs[i].Resource < vs[j].Resource
		}
		return vs[i].RuleID < vs[j].RuleID
	})
}
