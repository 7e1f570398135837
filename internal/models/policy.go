package models

import (
	"encoding/json"
	"time"

	"github.com/streamgov/streamgov-backend/internal/apperr"
)

// PolicyType selects the rule family a policy configures.
type PolicyType string

const (
	PolicyNaming    PolicyType = "NAMING"
	PolicyGuardrail PolicyType = "GUARDRAIL"
)

// PolicyStatus is the lifecycle state of one policy version.
type PolicyStatus string

const (
	PolicyDraft    PolicyStatus = "DRAFT"
	PolicyActive   PolicyStatus = "ACTIVE"
	PolicyArchived PolicyStatus = "ARCHIVED"
)

// TargetTotal is the catch-all target environment for policy resolution.
const TargetTotal = "total"

// validPolicyTransitions defines allowed (from → to) status transitions.
var validPolicyTransitions = map[PolicyStatus][]PolicyStatus{
	PolicyDraft:    {PolicyActive, PolicyArchived},
	PolicyActive:   {PolicyArchived},
	PolicyArchived: {PolicyActive}, // rollback re-activates through a new version
}

// CanTransitionPolicy reports whether moving from `from` to `to` is allowed.
func CanTransitionPolicy(from, to PolicyStatus) bool {
	if from == to {
		return true
	}
	for _, s := range validPolicyTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Policy is one persisted, versioned policy row. PK is (policy_id, version).
// At most one ACTIVE version exists per policy_id, and at most one ACTIVE
// policy per (type, target_environment).
type Policy struct {
	PolicyID    string          `json:"policy_id" db:"policy_id"`
	Version     int             `json:"version" db:"version"`
	Type        PolicyType      `json:"type" db:"type"`
	Status      PolicyStatus    `json:"status" db:"status"`
	TargetEnv   string          `json:"target_environment" db:"target_environment"` // dev, stg, prod, total
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description,omitempty" db:"description"`
	Content     json.RawMessage `json:"content" db:"content"`
	CreatedBy   string          `json:"created_by" db:"created_by"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// NewPolicy validates a draft policy before its first persist.
func NewPolicy(p Policy) (Policy, error) {
	if p.PolicyID == "" {
		return Policy{}, apperr.Invariant("policy_id must not be empty")
	}
	switch p.Type {
	case PolicyNaming, PolicyGuardrail:
	default:
		return Policy{}, apperr.Invariant("policy %s: unknown type %q", p.PolicyID, p.Type)
	}
	switch p.TargetEnv {
	case "dev", "stg", "prod", TargetTotal:
	default:
		return Policy{}, apperr.Invariant("policy %s: target_environment must be dev, stg, prod or total", p.PolicyID)
	}
	if len(p.Content) == 0 {
		return Policy{}, apperr.Invariant("policy %s: content must not be empty", p.PolicyID)
	}
	if !json.Valid(p.Content) {
		return Policy{}, apperr.Invariant("policy %s: content is not valid JSON", p.PolicyID)
	}
	if p.Version < 1 {
		p.Version = 1
	}
	p.Status = PolicyDraft
	return p, nil
}
