package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamgov/streamgov-backend/internal/kafka"
	"github.com/streamgov/streamgov-backend/internal/models"
	"github.com/streamgov/streamgov-backend/internal/policy"
	"github.com/streamgov/streamgov-backend/internal/registry"
	"github.com/streamgov/streamgov-backend/internal/repository"
)

func newTestPlanner(plans repository.PlanStore) *Planner {
	return New(policy.NewEngine(), fakePolicySource{}, plans, nil)
}

func topicSpec(t *testing.T, name string, action models.SpecAction, cfg *models.TopicConfig) models.TopicSpec {
	t.Helper()
	spec := models.TopicSpec{Name: name, Action: action, Config: cfg}
	if action != models.ActionDelete {
		spec.Metadata = &models.TopicMetadata{Owners: []string{"data-platform"}}
	}
	validated, err := models.NewTopicSpec(spec)
	require.NoError(t, err)
	return validated
}

func topicBatch(t *testing.T, changeID string, env models.Environment, specs ...models.TopicSpec) models.TopicBatch {
	t.Helper()
	batch, err := models.NewTopicBatch(changeID, env, specs)
	require.NoError(t, err)
	return batch
}

func TestPlanCreateAgainstEmptyCluster(t *testing.T) {
	admin := newFakeAdmin()
	plans := newFakePlanStore()
	p := newTestPlanner(plans)

	batch := topicBatch(t, "CHG-1", models.EnvProd,
		topicSpec(t, "prod.orders.created", models.ActionCreate, &models.TopicConfig{
			Partitions: 12, ReplicationFactor: 3,
			MinInsyncReplicas: intPtr(2), RetentionMs: int64Ptr(604800000),
		}))

	plan, err := p.PlanTopics(context.Background(), admin, batch, "alice")
	require.NoError(t, err)

	require.Len(t, plan.Items, 1)
	item := plan.Items[0]
	assert.Equal(t, models.PlanCreate, item.Action)
	assert.Equal(t, map[string]string{"status": "new→created"}, item.Diff)
	assert.Equal(t, "604800000", item.TargetConfig["retention.ms"])
	assert.Equal(t, 12, item.TargetPartitions)
	assert.Empty(t, plan.Violations)
	assert.True(t, plan.CanApply())

	persisted, err := plans.GetPlan(context.Background(), repository.PlanKindTopic, "CHG-1")
	require.NoError(t, err)
	assert.Equal(t, plan.Fingerprint, persisted.Fingerprint)
}

func TestPlanGuardrailViolationBlocksApply(t *testing.T) {
	admin := newFakeAdmin()
	p := newTestPlanner(newFakePlanStore())

	batch := topicBatch(t, "CHG-2", models.EnvProd,
		topicSpec(t, "prod.orders.created", models.ActionCreate, &models.TopicConfig{
			Partitions: 12, ReplicationFactor: 1,
		}))

	plan, err := p.PlanTopics(context.Background(), admin, batch, "alice")
	require.NoError(t, err)

	assert.False(t, plan.CanApply())
	var ruleIDs []string
	for _, v := range plan.BlockingViolations() {
		ruleIDs = append(ruleIDs, v.RuleID)
	}
	assert.Contains(t, ruleIDs, "prod.min_replication_factor")
}

func TestPlanDeleteAbsentIsNone(t *testing.T) {
	admin := newFakeAdmin()
	p := newTestPlanner(newFakePlanStore())

	batch := topicBatch(t, "CHG-3", models.EnvDev,
		topicSpec(t, "dev.ghost", models.ActionDelete, nil))

	plan, err := p.PlanTopics(context.Background(), admin, batch, "alice")
	require.NoError(t, err)

	require.Len(t, plan.Items, 1)
	assert.Equal(t, models.PlanNone, plan.Items[0].Action)
	assert.Empty(t, plan.Items[0].Diff)
}

func TestPlanDeletePresent(t *testing.T) {
	admin := newFakeAdmin()
	admin.topics["dev.legacy"] = kafka.TopicDetail{Name: "dev.legacy", Partitions: 3, ReplicationFactor: 2}
	p := newTestPlanner(newFakePlanStore())

	batch := topicBatch(t, "CHG-4", models.EnvDev,
		topicSpec(t, "dev.legacy", models.ActionDelete, nil))

	plan, err := p.PlanTopics(context.Background(), admin, batch, "alice")
	require.NoError(t, err)

	item := plan.Items[0]
	assert.Equal(t, models.PlanDelete, item.Action)
	assert.Equal(t, map[string]string{"status": "exists→deleted"}, item.Diff)
	assert.Equal(t, 3, item.CurrentPartitions)
}

func TestPlanAlterDiffRendering(t *testing.T) {
	admin := newFakeAdmin()
	admin.topics["dev.orders"] = kafka.TopicDetail{
		Name: "dev.orders", Partitions: 6, ReplicationFactor: 2,
		Config: map[string]string{"retention.ms": "86400000", "cleanup.policy": "delete"},
	}
	p := newTestPlanner(newFakePlanStore())

	batch := topicBatch(t, "CHG-5", models.EnvDev,
		topicSpec(t, "dev.orders", models.ActionUpdate, &models.TopicConfig{
			Partitions: 12, ReplicationFactor: 2,
			RetentionMs: int64Ptr(604800000), CompressionType: "lz4",
		}))

	plan, err := p.PlanTopics(context.Background(), admin, batch, "alice")
	require.NoError(t, err)

	item := plan.Items[0]
	assert.Equal(t, models.PlanAlter, item.Action)
	assert.Equal(t, "86400000→604800000", item.Diff["retention.ms"])
	assert.Equal(t, "none→lz4", item.Diff["compression.type"])
	assert.Equal(t, "delete→none", item.Diff["cleanup.policy"])
	assert.Equal(t, "6→12", item.Diff["partitions"])
	assert.Equal(t, 6, item.CurrentPartitions)
	assert.Equal(t, 12, item.TargetPartitions)
}

func TestPlanNoChangeIsNone(t *testing.T) {
	admin := newFakeAdmin()
	admin.topics["dev.orders"] = kafka.TopicDetail{
		Name: "dev.orders", Partitions: 6, ReplicationFactor: 2,
		Config: map[string]string{"retention.ms": "86400000"},
	}
	p := newTestPlanner(newFakePlanStore())

	batch := topicBatch(t, "CHG-6", models.EnvDev,
		topicSpec(t, "dev.orders", models.ActionUpsert, &models.TopicConfig{
			Partitions: 6, ReplicationFactor: 2, RetentionMs: int64Ptr(86400000),
		}))

	plan, err := p.PlanTopics(context.Background(), admin, batch, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.PlanNone, plan.Items[0].Action)
}

func TestPlanPartitionDecreaseRejected(t *testing.T) {
	admin := newFakeAdmin()
	admin.topics["dev.orders"] = kafka.TopicDetail{Name: "dev.orders", Partitions: 12, ReplicationFactor: 2}
	p := newTestPlanner(newFakePlanStore())

	batch := topicBatch(t, "CHG-7", models.EnvDev,
		topicSpec(t, "dev.orders", models.ActionUpdate, &models.TopicConfig{
			Partitions: 6, ReplicationFactor: 2,
		}))

	plan, err := p.PlanTopics(context.Background(), admin, batch, "alice")
	require.NoError(t, err)

	assert.False(t, plan.CanApply())
	found := false
	for _, v := range plan.Violations {
		if v.RuleID == "change.partition_decrease" {
			found = true
			assert.Equal(t, models.SeverityError, v.Severity)
		}
	}
	assert.True(t, found)
}

func TestPlanReplicationFactorChangeRejected(t *testing.T) {
	admin := newFakeAdmin()
	admin.topics["dev.orders"] = kafka.TopicDetail{Name: "dev.orders", Partitions: 6, ReplicationFactor: 2}
	p := newTestPlanner(newFakePlanStore())

	batch := topicBatch(t, "CHG-8", models.EnvDev,
		topicSpec(t, "dev.orders", models.ActionUpdate, &models.TopicConfig{
			Partitions: 6, ReplicationFactor: 3,
		}))

	plan, err := p.PlanTopics(context.Background(), admin, batch, "alice")
	require.NoError(t, err)

	found := false
	for _, v := range plan.Violations {
		if v.RuleID == "change.replication_factor" {
			found = true
		}
	}
	assert.True(t, found)
	assert.False(t, plan.CanApply())
}

func TestPlanUpdateAbsentTopicRejected(t *testing.T) {
	admin := newFakeAdmin()
	p := newTestPlanner(newFakePlanStore())

	batch := topicBatch(t, "CHG-9", models.EnvDev,
		topicSpec(t, "dev.missing", models.ActionUpdate, &models.TopicConfig{
			Partitions: 6, ReplicationFactor: 2,
		}))

	plan, err := p.PlanTopics(context.Background(), admin, batch, "alice")
	require.NoError(t, err)

	assert.Equal(t, models.PlanNone, plan.Items[0].Action)
	found := false
	for _, v := range plan.Violations {
		if v.RuleID == "change.target_missing" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPlanDeterministic(t *testing.T) {
	build := func() *models.Plan {
		admin := newFakeAdmin()
		admin.topics["dev.orders"] = kafka.TopicDetail{
			Name: "dev.orders", Partitions: 6, ReplicationFactor: 2,
			Config: map[string]string{"retention.ms": "86400000"},
		}
		p := newTestPlanner(newFakePlanStore())
		batch := topicBatch(t, "CHG-10", models.EnvDev,
			topicSpec(t, "dev.orders", models.ActionUpdate, &models.TopicConfig{
				Partitions: 12, ReplicationFactor: 2, RetentionMs: int64Ptr(604800000),
			}),
			topicSpec(t, "dev.payments", models.ActionCreate, &models.TopicConfig{
				Partitions: 3, ReplicationFactor: 2,
			}))
		plan, err := p.PlanTopics(context.Background(), admin, batch, "alice")
		require.NoError(t, err)
		return plan
	}

	a, b := build(), build()
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Equal(t, a.Items, b.Items)
	assert.Equal(t, a.Violations, b.Violations)
}

func schemaSpec(t *testing.T, subject string, mode models.CompatibilityMode) models.SchemaSpec {
	t.Helper()
	spec, err := models.NewSchemaSpec(models.SchemaSpec{
		Subject:       subject,
		SchemaType:    models.SchemaAvro,
		Compatibility: mode,
		Schema:        `{"type":"record","name":"User","fields":[]}`,
		Metadata:      &models.TopicMetadata{Owners: []string{"data-platform"}},
	})
	require.NoError(t, err)
	return spec
}

func TestPlanSchemasNewSubject(t *testing.T) {
	reg := newFakeRegistry()
	plans := newFakePlanStore()
	p := newTestPlanner(plans)

	batch, err := models.NewSchemaBatch("CHG-11", models.EnvDev,
		[]models.SchemaSpec{schemaSpec(t, "dev.user-value", models.CompatBackward)})
	require.NoError(t, err)

	plan, err := p.PlanSchemas(context.Background(), reg, batch, "alice")
	require.NoError(t, err)

	require.Len(t, plan.Items, 1)
	assert.Equal(t, models.PlanCreate, plan.Items[0].Action)
	require.Len(t, plan.CompatibilityReports, 1)
	assert.True(t, plan.CompatibilityReports[0].IsCompatible)
	assert.True(t, plan.CanApply())
}

func TestPlanSchemasExistingSubjectBumpsVersion(t *testing.T) {
	reg := newFakeRegistry()
	reg.subjects["dev.user-value"] = &registry.SubjectState{
		Subject: "dev.user-value", SchemaID: 101, Version: 3,
		SchemaType: models.SchemaAvro, Compatibility: models.CompatNone,
	}
	p := newTestPlanner(newFakePlanStore())

	batch, err := models.NewSchemaBatch("CHG-12", models.EnvDev,
		[]models.SchemaSpec{schemaSpec(t, "dev.user-value", models.CompatBackward)})
	require.NoError(t, err)

	plan, err := p.PlanSchemas(context.Background(), reg, batch, "alice")
	require.NoError(t, err)

	item := plan.Items[0]
	assert.Equal(t, models.PlanAlter, item.Action)
	assert.Equal(t, "3→4", item.Diff["version"])
	assert.Equal(t, "NONE→BACKWARD", item.Diff["compatibility"])
}

func TestPlanSchemasIncompatibleChangeBlocks(t *testing.T) {
	reg := newFakeRegistry()
	reg.incompat = map[string][]string{"dev.user-value": {"READER_FIELD_MISSING_DEFAULT_VALUE: f1"}}
	p := newTestPlanner(newFakePlanStore())

	batch, err := models.NewSchemaBatch("CHG-13", models.EnvDev,
		[]models.SchemaSpec{schemaSpec(t, "dev.user-value", models.CompatBackward)})
	require.NoError(t, err)

	plan, err := p.PlanSchemas(context.Background(), reg, batch, "alice")
	require.NoError(t, err)

	assert.False(t, plan.CanApply())
	assert.False(t, plan.CompatibilityReports[0].IsCompatible)
}
