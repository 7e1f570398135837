package models

import "time"

// PlanAction is what apply will do for one resource.
type PlanAction string

const (
	PlanCreate PlanAction = "CREATE"
	PlanAlter  PlanAction = "ALTER"
	PlanDelete PlanAction = "DELETE"
	PlanNone   PlanAction = "NONE"
)

// Severity classifies a policy violation. ERROR and CRITICAL block apply.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Blocking reports whether the severity prevents apply.
func (s Severity) Blocking() bool { return s == SeverityError || s == SeverityCritical }

// Violation is one policy finding against one resource.
type Violation struct {
	Resource string   `json:"resource"`
	RuleID   string   `json:"rule_id"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Field    string   `json:"field,omitempty"`
}

// CompatibilityReport is the Schema Registry verdict for one subject.
// Transport failures never surface as errors; they become issues here.
type CompatibilityReport struct {
	Subject      string            `json:"subject"`
	Mode         CompatibilityMode `json:"mode"`
	IsCompatible bool              `json:"is_compatible"`
	Issues       []string          `json:"issues,omitempty"`
}

// PlanItem is the planned action for one resource, with a field-level diff
// rendered as "old→new" strings ("none" stands for a missing side).
type PlanItem struct {
	Name          string            `json:"name"`
	Action        PlanAction        `json:"action"`
	Diff          map[string]string `json:"diff,omitempty"`
	CurrentConfig map[string]string `json:"current_config,omitempty"`
	TargetConfig  map[string]string `json:"target_config,omitempty"`
	// CurrentPartitions is the plan-time partition count; apply uses it for
	// the staleness check. Zero when the topic did not exist.
	CurrentPartitions int `json:"current_partitions,omitempty"`
	TargetPartitions  int `json:"target_partitions,omitempty"`
}

// Plan is the aggregate result of a dry-run.
type Plan struct {
	ChangeID             string                `json:"change_id"`
	Env                  Environment           `json:"env"`
	Fingerprint          string                `json:"fingerprint"`
	Items                []PlanItem            `json:"items"`
	Violations           []Violation           `json:"violations"`
	CompatibilityReports []CompatibilityReport `json:"compatibility_reports,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
}

// CanApply is derived: no blocking violations and all reports compatible.
func (p Plan) CanApply() bool {
	for _, v := range p.Violations {
		if v.Severity.Blocking() {
			return false
		}
	}
	for _, r := range p.CompatibilityReports {
		if !r.IsCompatible {
			return false
		}
	}
	return true
}

// BlockingViolations returns only the ERROR/CRITICAL violations.
func (p Plan) BlockingViolations() []Violation {
	var out []Violation
	for _, v := range p.Violations {
		if v.Severity.Blocking() {
			out = append(out, v)
		}
	}
	return out
}
