package policy

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/streamgov/streamgov-backend/internal/apperr"
	"github.com/streamgov/streamgov-backend/internal/models"
)

func int64p(v int64) *int64 { return &v }
func intp(v int) *int       { return &v }

func mustTopicBatch(t *testing.T, env models.Environment, specs ...models.TopicSpec) models.TopicBatch {
	t.Helper()
	b, err := models.NewTopicBatch("CHG-TEST", env, specs)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func prodSpec(rf int, isr *int, retention int64, partitions int) models.TopicSpec {
	return models.TopicSpec{
		Name:   "prod.orders.created",
		Action: models.ActionCreate,
		Config: &models.TopicConfig{
			Partitions:        partitions,
			ReplicationFactor: rf,
			MinInsyncReplicas: isr,
			RetentionMs:       int64p(retention),
			CleanupPolicy:     "delete",
		},
		Metadata: &models.TopicMetadata{Owners: []string{"data"}},
	}
}

func hasRule(vs []models.Violation, ruleID string) bool {
	for _, v := range vs {
		if v.RuleID == ruleID {
			return true
		}
	}
	return false
}

func TestProdGuardrailCompliant(t *testing.T) {
	batch := mustTopicBatch(t, models.EnvProd, prodSpec(3, intp(2), 604800000, 12))
	vs, err := NewEngine().EvaluateTopicSpecs(batch, ResolvedPolicies{})
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range vs {
		if v.Severity.Blocking() {
			t.Fatalf("compliant prod spec should have no blocking violations, got %+v", v)
		}
	}
}

func TestProdGuardrailReplicationFactorBlock(t *testing.T) {
	batch := mustTopicBatch(t, models.EnvProd, prodSpec(1, nil, 604800000, 12))
	vs, err := NewEngine().EvaluateTopicSpecs(batch, ResolvedPolicies{})
	if err != nil {
		t.Fatal(err)
	}
	if !hasRule(vs, "prod.min_replication_factor") {
		t.Fatalf("expected prod.min_replication_factor violation, got %+v", vs)
	}
}

func TestStgGuardrailWarnsOnly(t *testing.T) {
	spec := models.TopicSpec{
		Name:   "stg.orders.created",
		Action: models.ActionCreate,
		Config: &models.TopicConfig{Partitions: 60, ReplicationFactor: 1},
		Metadata: &models.TopicMetadata{
			Owners: []string{"data"},
		},
	}
	batch := mustTopicBatch(t, models.EnvStg, spec)
	vs, err := NewEngine().EvaluateTopicSpecs(batch, ResolvedPolicies{})
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range vs {
		if (v.RuleID == "stg.min_replication_factor" || v.RuleID == "stg.max_partitions") && v.Severity != models.SeverityWarning {
			t.Fatalf("stg guardrails should warn, got %+v", v)
		}
	}
}

func TestNamingReservedAndForbidden(t *testing.T) {
	engine := NewEngine()
	engine.RequireOwner = false

	del := models.TopicSpec{Name: "__consumer_offsets", Action: models.ActionDelete}
	batch := mustTopicBatch(t, models.EnvProd, del)
	vs, err := engine.EvaluateTopicSpecs(batch, ResolvedPolicies{})
	if err != nil {
		t.Fatal(err)
	}
	if !hasRule(vs, "naming.reserved") {
		t.Fatalf("expected naming.reserved, got %+v", vs)
	}

	tmp := prodSpec(3, intp(2), 604800000, 12)
	tmp.Name = "tmp.prod.orders"
	// tmp.* derives UNKNOWN env so the batch env (PROD) applies.
	batch2 := mustTopicBatch(t, models.EnvProd, tmp)
	vs, err = engine.EvaluateTopicSpecs(batch2, ResolvedPolicies{})
	if err != nil {
		t.Fatal(err)
	}
	if !hasRule(vs, "naming.forbidden_prefix") {
		t.Fatalf("expected naming.forbidden_prefix, got %+v", vs)
	}
}

func TestMetadataOwnerRequired(t *testing.T) {
	spec := prodSpec(3, intp(2), 604800000, 12)
	spec.Metadata = &models.TopicMetadata{}
	batch := mustTopicBatch(t, models.EnvProd, spec)
	vs, err := NewEngine().EvaluateTopicSpecs(batch, ResolvedPolicies{})
	if err != nil {
		t.Fatal(err)
	}
	if !hasRule(vs, "metadata.owner_required") {
		t.Fatalf("expected metadata.owner_required, got %+v", vs)
	}
}

func TestCompatibilityWhitelist(t *testing.T) {
	spec := models.SchemaSpec{
		Subject:       "prod.user-value",
		SchemaType:    models.SchemaAvro,
		Compatibility: models.CompatBackward, // not allowed in PROD
		Schema:        "{}",
		Metadata:      &models.TopicMetadata{Owners: []string{"data"}},
	}
	batch, err := models.NewSchemaBatch("CHG-1", models.EnvProd, []models.SchemaSpec{spec})
	if err != nil {
		t.Fatal(err)
	}
	vs, err := NewEngine().EvaluateSchemaSpecs(batch, ResolvedPolicies{})
	if err != nil {
		t.Fatal(err)
	}
	if !hasRule(vs, "compat.mode_not_allowed") {
		t.Fatalf("BACKWARD in PROD should be rejected, got %+v", vs)
	}
}

func TestMalformedGuardrailPolicyFailOpen(t *testing.T) {
	bad := &models.Policy{
		PolicyID: "guard-1", Version: 2, Type: models.PolicyGuardrail,
		Status: models.PolicyActive, TargetEnv: "prod",
		Content: json.RawMessage(`{"rules":{}}`), // missing preset_name, version
	}
	batch := mustTopicBatch(t, models.EnvProd, prodSpec(3, intp(2), 604800000, 12))
	vs, err := NewEngine().EvaluateTopicSpecs(batch, ResolvedPolicies{Guardrail: bad})
	if err != nil {
		t.Fatal(err)
	}
	if !hasRule(vs, "POLICY_CONFIG_ERROR") {
		t.Fatalf("fail-open should surface a synthetic violation, got %+v", vs)
	}
}

func TestMalformedGuardrailPolicyFailClosed(t *testing.T) {
	bad := &models.Policy{
		PolicyID: "guard-1", Version: 2, Type: models.PolicyGuardrail,
		Status: models.PolicyActive, TargetEnv: "prod",
		Content: json.RawMessage(`{"rules":{}}`),
	}
	engine := NewEngine()
	engine.FailClosed = true
	batch := mustTopicBatch(t, models.EnvProd, prodSpec(3, intp(2), 604800000, 12))
	_, err := engine.EvaluateTopicSpecs(batch, ResolvedPolicies{Guardrail: bad})
	if !apperr.Is(err, apperr.KindPolicyConfig) {
		t.Fatalf("fail-closed should error with KindPolicyConfig, got %v", err)
	}
}

func TestViolationOrderStable(t *testing.T) {
	a := prodSpec(1, nil, 1000, 500)
	b := prodSpec(1, nil, 1000, 500)
	b.Name = "prod.alpha.topic"
	batch := mustTopicBatch(t, models.EnvProd, a, b)
	vs, err := NewEngine().EvaluateTopicSpecs(batch, ResolvedPolicies{})
	if err != nil {
		t.Fatal(err)
	}
	sorted := sort.SliceIsSorted(vs, func(i, j int) bool {
		if vs[i].Resource != vs[j].Resource {
			return vs[i].Resource < vs[j].Resource
		}
		return vs[i].RuleID <= vs[j].RuleID
	})
	if !sorted {
		t.Fatalf("violations not ordered by (resource, rule_id): %+v", vs)
	}
}

type fakePolicySource struct {
	rows map[string]*models.Policy // key: type|target
}

func (f *fakePolicySource) GetActivePolicy(_ context.Context, typ models.PolicyType, target string) (*models.Policy, error) {
	return f.rows[string(typ)+"|"+target], nil
}

func TestResolveEnvSpecificBeatsTotal(t *testing.T) {
	envRow := &models.Policy{PolicyID: "g-prod", Type: models.PolicyGuardrail, TargetEnv: "prod"}
	totalRow := &models.Policy{PolicyID: "g-total", Type: models.PolicyGuardrail, TargetEnv: models.TargetTotal}
	src := &fakePolicySource{rows: map[string]*models.Policy{
		"GUARDRAIL|prod":  envRow,
		"GUARDRAIL|total": totalRow,
	}}
	resolved, err := Resolve(context.Background(), src, models.EnvProd)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Guardrail == nil || resolved.Guardrail.PolicyID != "g-prod" {
		t.Fatalf("env-specific policy should win, got %+v", resolved.Guardrail)
	}

	delete(src.rows, "GUARDRAIL|prod")
	resolved, err = Resolve(context.Background(), src, models.EnvProd)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Guardrail == nil || resolved.Guardrail.PolicyID != "g-total" {
		t.Fatalf("total policy should be the fallback, got %+v", resolved.Guardrail)
	}

	delete(src.rows, "GUARDRAIL|total")
	resolved, err = Resolve(context.Background(), src, models.EnvProd)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Guardrail != nil {
		t.Fatalf("no row should resolve to nil, got %+v", resolved.Guardrail)
	}
}
