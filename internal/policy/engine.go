package policy

import (
	"fmt"
	"sort"

	"github.com/streamgov/streamgov-backend/internal/apperr"
	"github.com/streamgov/streamgov-backend/internal/models"
)

// compatWhitelist is the per-environment allow-list of compatibility modes.
var compatWhitelist = map[models.Environment][]models.CompatibilityMode{
	models.EnvProd: {models.CompatFull, models.CompatFullTransitive},
	models.EnvStg: {
		models.CompatBackward, models.CompatBackwardTransitive,
		models.CompatFull, models.CompatFullTransitive,
	},
	models.EnvDev: {models.CompatBackward, models.CompatBackwardTransitive, models.CompatNone},
}

// Engine evaluates specs against resolved policies. Stateless; safe for
// concurrent use.
type Engine struct {
	// RequireOwner makes metadata.owner mandatory (default on).
	RequireOwner bool
	// FailClosed turns malformed policy rows into evaluation errors instead
	// of synthetic POLICY_CONFIG_ERROR violations.
	FailClosed bool
	// KnownTeams, when non-empty, restricts metadata.team to registered teams.
	KnownTeams map[string]struct{}
}

// NewEngine returns an engine with the documented defaults (fail-open,
// owner required).
func NewEngine() *Engine {
	return &Engine{RequireOwner: true}
}

// EvaluateTopicSpecs runs the naming, guardrail and metadata families over a
// topic batch. Output order is stable by (resource, rule_id).
func (e *Engine) EvaluateTopicSpecs(batch models.TopicBatch, resolved ResolvedPolicies) ([]models.Violation, error) {
	namingCfg, guardCfg, configViolations, err := e.loadConfigs(resolved)
	if err != nil {
		return nil, err
	}
	out := configViolations
	for _, spec := range batch.Specs {
		env := effectiveEnv(spec.Environment(), batch.Env)
		if spec.Environment() == models.EnvUnknown {
			out = append(out, envUnresolvedViolation(spec.Name, batch.Env))
		}
		out = append(out, evaluateNaming(namingCfg, spec.Name, env)...)
		if spec.Action != models.ActionDelete {
			out = append(out, evaluateGuardrail(guardCfg, spec.Name, env, spec.Config)...)
			out = append(out, e.evaluateMetadata(spec.Name, spec.Metadata)...)
		}
	}
	sortViolations(out)
	return out, nil
}

// EvaluateSchemaSpecs runs naming, metadata and the compatibility whitelist
// over a schema batch.
func (e *Engine) EvaluateSchemaSpecs(batch models.SchemaBatch, resolved ResolvedPolicies) ([]models.Violation, error) {
	namingCfg, _, configViolations, err := e.loadConfigs(resolved)
	if err != nil {
		return nil, err
	}
	out := configViolations
	for _, spec := range batch.Specs {
		env := effectiveEnv(spec.Environment(), batch.Env)
		if spec.Environment() == models.EnvUnknown {
			out = append(out, envUnresolvedViolation(spec.Subject, batch.Env))
		}
		out = append(out, evaluateNaming(namingCfg, spec.Subject, env)...)
		out = append(out, e.evaluateMetadata(spec.Subject, spec.Metadata)...)
		out = append(out, evaluateCompatibilityMode(spec.Subject, env, spec.Compatibility)...)
	}
	sortViolations(out)
	return out, nil
}

func (e *Engine) loadConfigs(resolved ResolvedPolicies) (NamingConfig, GuardrailConfig, []models.Violation, error) {
	namingCfg := defaultNamingConfig()
	guardCfg := defaultGuardrailConfig()
	var synthetic []models.Violation

	if resolved.Naming != nil {
		cfg, err := parseNamingConfig(resolved.Naming.Content)
		if err != nil {
			if e.FailClosed {
				return NamingConfig{}, GuardrailConfig{}, nil, apperr.Wrap(apperr.KindPolicyConfig, err, "naming policy %s v%d", resolved.Naming.PolicyID, resolved.Naming.Version)
			}
			synthetic = append(synthetic, policyConfigViolation(resolved.Naming, err))
		} else {
			namingCfg = cfg
		}
	}
	if resolved.Guardrail != nil {
		cfg, err := parseGuardrailConfig(resolved.Guardrail.Content)
		if err != nil {
			if e.FailClosed {
				return NamingConfig{}, GuardrailConfig{}, nil, apperr.Wrap(apperr.KindPolicyConfig, err, "guardrail policy %s v%d", resolved.Guardrail.PolicyID, resolved.Guardrail.Version)
			}
			synthetic = append(synthetic, policyConfigViolation(resolved.Guardrail, err))
		} else {
			guardCfg = cfg
		}
	}
	return namingCfg, guardCfg, synthetic, nil
}

func policyConfigViolation(p *models.Policy, err error) models.Violation {
	return models.Violation{
		Resource: fmt.Sprintf("policy/%s", p.PolicyID),
		RuleID:   "POLICY_CONFIG_ERROR",
		Severity: models.SeverityWarning,
		Message:  err.Error(),
	}
}

func (e *Engine) evaluateMetadata(name string, md *models.TopicMetadata) []models.Violation {
	var out []models.Violation
	if e.RequireOwner && (md == nil || len(md.Owners) == 0) {
		out = append(out, models.Violation{
			Resource: name, RuleID: "metadata.owner_required", Severity: models.SeverityError, Field: "metadata.owners",
			Message: "at least one owner is required",
		})
	}
	if md != nil && md.Team != "" && len(e.KnownTeams) > 0 {
		if _, ok := e.KnownTeams[md.Team]; !ok {
			out = append(out, models.Violation{
				Resource: name, RuleID: "metadata.unknown_team", Severity: models.SeverityError, Field: "metadata.team",
				Message: fmt.Sprintf("team %q is not registered", md.Team),
			})
		}
	}
	return out
}

func evaluateCompatibilityMode(subject string, env models.Environment, mode models.CompatibilityMode) []models.Violation {
	allowed, ok := compatWhitelist[env]
	if !ok {
		allowed = compatWhitelist[models.EnvDev]
	}
	for _, m := range allowed {
		if m == mode {
			return nil
		}
	}
	return []models.Violation{{
		Resource: subject, RuleID: "compat.mode_not_allowed", Severity: models.SeverityError, Field: "compatibility",
		Message: fmt.Sprintf("compatibility mode %s is not permitted in %s", mode, env),
	}}
}

// envUnresolvedViolation flags names whose environment had to fall back to
// the batch env (e.g. RecordName-strategy subjects without a prefix).
func envUnresolvedViolation(name string, batchEnv models.Environment) models.Violation {
	return models.Violation{
		Resource: name, RuleID: "naming.env_unresolved", Severity: models.SeverityWarning, Field: "name",
		Message: fmt.Sprintf("environment not derivable from the name; %s rules applied", batchEnv),
	}
}

// effectiveEnv falls back to the batch env when the name yields no prefix.
func effectiveEnv(derived, batchEnv models.Environment) models.Environment {
	if derived == models.EnvUnknown {
		return batchEnv
	}
	return derived
}

func sortViolations(vs []models.Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].Resource != vs[j].Resource {
			return vs[i].Resource < vs[j].Resource
		}
		return vs[i].RuleID < vs[j].RuleID
	})
}
