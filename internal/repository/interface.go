package repository

import (
	"context"
	"time"

	"github.com/streamgov/streamgov-backend/internal/models"
)

// EndpointStore defines connection-endpoint data access. Gets return
// apperr.KindNotFound when no row exists; soft delete is Deactivate.
type EndpointStore interface {
	CreateClusterEndpoint(ctx context.Context, e *models.ClusterEndpoint) error
	GetClusterEndpoint(ctx context.Context, id string) (*models.ClusterEndpoint, error)
	ListClusterEndpoints(ctx context.Context, activeOnly bool) ([]*models.ClusterEndpoint, error)
	UpdateClusterEndpoint(ctx context.Context, e *models.ClusterEndpoint) error
	DeactivateClusterEndpoint(ctx context.Context, id string) error

	CreateRegistryEndpoint(ctx context.Context, e *models.RegistryEndpoint) error
	GetRegistryEndpoint(ctx context.Context, id string) (*models.RegistryEndpoint, error)
	ListRegistryEndpoints(ctx context.Context, activeOnly bool) ([]*models.RegistryEndpoint, error)
	UpdateRegistryEndpoint(ctx context.Context, e *models.RegistryEndpoint) error
	DeactivateRegistryEndpoint(ctx context.Context, id string) error

	CreateStorageEndpoint(ctx context.Context, e *models.StorageEndpoint) error
	GetStorageEndpoint(ctx context.Context, id string) (*models.StorageEndpoint, error)
	ListStorageEndpoints(ctx context.Context, activeOnly bool) ([]*models.StorageEndpoint, error)
	UpdateStorageEndpoint(ctx context.Context, e *models.StorageEndpoint) error
	DeactivateStorageEndpoint(ctx context.Context, id string) error
}

// TopicMetadataRecord is the persisted governance metadata for one topic.
type TopicMetadataRecord struct {
	TopicName string    `json:"topic_name" db:"topic_name"`
	Owner     string    `json:"owner" db:"owner"`
	Doc       string    `json:"doc" db:"doc"`
	Tags      string    `json:"tags" db:"tags"`     // JSON array
	Config    string    `json:"config" db:"config"` // JSON object
	CreatedBy string    `json:"created_by" db:"created_by"`
	UpdatedBy string    `json:"updated_by" db:"updated_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MetadataStore defines topic metadata access.
type MetadataStore interface {
	SaveTopicMetadata(ctx context.Context, rec *TopicMetadataRecord) error
	GetTopicMetadata(ctx context.Context, topic string) (*TopicMetadataRecord, error)
	ListTopicMetadata(ctx context.Context) ([]*TopicMetadataRecord, error)
	DeleteTopicMetadata(ctx context.Context, topic string) error
}

// PlanKind distinguishes the topic and schema plan tables.
type PlanKind string

const (
	PlanKindTopic  PlanKind = "topic"
	PlanKindSchema PlanKind = "schema"
)

// PlanStore persists dry-run plans and apply results keyed by change id.
type PlanStore interface {
	SavePlan(ctx context.Context, kind PlanKind, plan *models.Plan, createdBy string) error
	GetPlan(ctx context.Context, kind PlanKind, changeID string) (*models.Plan, error)
	SaveApplyResult(ctx context.Context, kind PlanKind, result *models.ApplyResult, appliedBy string) error
	GetApplyResult(ctx context.Context, kind PlanKind, changeID string) (*models.ApplyResult, error)
}

// AuditStore is append-only.
type AuditStore interface {
	CreateAuditRecord(ctx context.Context, rec *models.AuditRecord) error
	ListAuditRecords(ctx context.Context, changeID string) ([]*models.AuditRecord, error)
}

// PolicyStore manages versioned policy rows.
type PolicyStore interface {
	CreatePolicy(ctx context.Context, p *models.Policy) error
	GetPolicy(ctx context.Context, policyID string, version int) (*models.Policy, error)
	GetLatestVersion(ctx context.Context, policyID string) (int, error)
	ListPolicies(ctx context.Context, policyID string) ([]*models.Policy, error)
	ListAllPolicies(ctx context.Context) ([]*models.Policy, error)
	// GetActivePolicy returns nil (not an error) when no ACTIVE row matches.
	GetActivePolicy(ctx context.Context, typ models.PolicyType, targetEnv string) (*models.Policy, error)
	// ActivatePolicy atomically archives any prior ACTIVE version of the same
	// policy_id or the same (type, target_environment), then activates v.
	ActivatePolicy(ctx context.Context, policyID string, version int) error
	ArchivePolicy(ctx context.Context, policyID string, version int) error
	// DeletePolicyVersion refuses to delete an ACTIVE version.
	DeletePolicyVersion(ctx context.Context, policyID string, version int) error
}

// ArtifactStore persists schema artifacts.
type ArtifactStore interface {
	SaveSchemaArtifact(ctx context.Context, a *models.SchemaArtifact) error
	ListSchemaArtifacts(ctx context.Context, subject string) ([]*models.SchemaArtifact, error)
	DeleteSchemaArtifacts(ctx context.Context, subject string) error
}

// SnapshotStore is the durable (L3) tier of the metrics cache hierarchy.
type SnapshotStore interface {
	SaveMetricsSnapshot(ctx context.Context, snap *models.MetricsSnapshot) error
	GetLatestMetricsSnapshot(ctx context.Context, clusterID string) (*models.MetricsSnapshot, error)
	DeleteMetricsSnapshotsBefore(ctx context.Context, clusterID string, cutoff time.Time) (int64, error)
}

// Store aggregates every persistence surface the control plane uses.
type Store interface {
	EndpointStore
	MetadataStore
	PlanStore
	AuditStore
	PolicyStore
	ArtifactStore
	SnapshotStore
	Close() error
}
