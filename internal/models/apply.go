package models

import "time"

// FailedItem records one resource that apply could not complete.
type FailedItem struct {
	Name   string     `json:"name"`
	Error  string     `json:"error"`
	Action PlanAction `json:"action"`
}

// SchemaArtifact is a durable reference to a registered schema's source bytes.
type SchemaArtifact struct {
	Subject    string `json:"subject" db:"subject"`
	Version    int    `json:"version" db:"version"`
	SchemaID   int    `json:"schema_id" db:"schema_id"`
	StorageURL string `json:"storage_url,omitempty" db:"storage_url"`
	Checksum   string `json:"checksum" db:"checksum"`
	ChangeID   string `json:"change_id" db:"change_id"`
}

// ApplyResult is the outcome of one apply call.
type ApplyResult struct {
	ChangeID  string           `json:"change_id"`
	Env       Environment      `json:"env"`
	Applied   []string         `json:"applied"`
	Skipped   []string         `json:"skipped"`
	Failed    []FailedItem     `json:"failed"`
	AuditID   string           `json:"audit_id"`
	Artifacts []SchemaArtifact `json:"artifacts,omitempty"`
	AppliedAt time.Time        `json:"applied_at"`
}

// Status derives the terminal audit status from the per-item outcome.
func (r ApplyResult) Status() AuditStatus {
	switch {
	case len(r.Failed) == 0:
		return AuditCompleted
	case len(r.Applied) == 0:
		return AuditFailed
	default:
		return AuditPartiallyCompleted
	}
}
