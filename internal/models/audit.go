package models

import "time"

// AuditStatus is the lifecycle status carried by an audit record.
type AuditStatus string

const (
	AuditStarted            AuditStatus = "STARTED"
	AuditCompleted          AuditStatus = "COMPLETED"
	AuditPartiallyCompleted AuditStatus = "PARTIALLY_COMPLETED"
	AuditFailed             AuditStatus = "FAILED"
)

// AuditRecord is one append-only lifecycle event of a change.
// Records are write-once: no UPDATE or DELETE on audit rows.
type AuditRecord struct {
	ID        string      `json:"id" db:"id"`
	ChangeID  string      `json:"change_id" db:"change_id"`
	Action    string      `json:"action" db:"action"` // APPLY, CREATE, DELETE, ALTER_CONFIG, ALTER_PARTITIONS, REGISTER, ...
	Target    string      `json:"target" db:"target"`
	Actor     string      `json:"actor" db:"actor"`
	Status    AuditStatus `json:"status" db:"status"`
	Message   string      `json:"message,omitempty" db:"message"`
	Snapshot  string      `json:"snapshot,omitempty" db:"snapshot"` // machine-readable JSON
	Team      string      `json:"team,omitempty" db:"team"`
	Timestamp time.Time   `json:"timestamp" db:"timestamp"`
}
