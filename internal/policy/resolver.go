// Package policy evaluates naming, guardrail, metadata and compatibility
// rules against declarative specs. Evaluation is stateless and deterministic;
// policy rows only parameterize the rule families.
package policy

import (
	"context"

	"github.com/streamgov/streamgov-backend/internal/models"
)

// ActivePolicySource is the read surface the resolver needs. The metadata
// store implements it.
type ActivePolicySource interface {
	// GetActivePolicy returns the ACTIVE policy for (type, targetEnv), or
	// nil when none exists. targetEnv is "dev", "stg", "prod" or "total".
	GetActivePolicy(ctx context.Context, typ models.PolicyType, targetEnv string) (*models.Policy, error)
}

// ResolvedPolicies carries the per-family policy rows for one evaluation.
// A nil entry means no ACTIVE policy exists and built-in defaults apply.
type ResolvedPolicies struct {
	Naming    *models.Policy
	Guardrail *models.Policy
}

// Resolve looks up ACTIVE policies for the environment: env-specific first,
// then the "total" fallback, else nil.
func Resolve(ctx context.Context, src ActivePolicySource, env models.Environment) (ResolvedPolicies, error) {
	var out ResolvedPolicies
	for _, typ := range []models.PolicyType{models.PolicyNaming, models.PolicyGuardrail} {
		p, err := resolveOne(ctx, src, typ, env)
		if err != nil {
			return ResolvedPolicies{}, err
		}
		switch typ {
		case models.PolicyNaming:
			out.Naming = p
		case models.PolicyGuardrail:
			out.Guardrail = p
		}
	}
	return out, nil
}

func resolveOne(ctx context.Context, src ActivePolicySource, typ models.PolicyType, env models.Environment) (*models.Policy, error) {
	p, err := src.GetActivePolicy(ctx, typ, env.PolicyTarget())
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}
	return src.GetActivePolicy(ctx, typ, models.TargetTotal)
}
