package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/streamgov/streamgov-backend/internal/apperr"
	"github.com/streamgov/streamgov-backend/internal/models"
)

// PostgresStore implements Store using PostgreSQL, for deployments where
// multiple control-plane instances share one database.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects using a standard libpq DSN.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &PostgresStore{db: db}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// Ping verifies database connectivity for readiness probes.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// RunMigrations applies migration SQL.
func (s *PostgresStore) RunMigrations(migrationSQL string) error {
	_, err := s.db.Exec(migrationSQL)
	return err
}

// --- EndpointStore ---

func (s *PostgresStore) CreateClusterEndpoint(ctx context.Context, e *models.ClusterEndpoint) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	e.IsActive = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cluster_endpoint (id, name, bootstrap_servers, security_protocol, sasl_mechanism,
			sasl_username, sasl_password, tls_ca_cert, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.Name, e.BootstrapServers, e.SecurityProtocol, e.SASLMechanism,
		e.SASLUsername, e.SASLPassword, e.TLSCACert, e.IsActive, e.CreatedAt, e.UpdatedAt)
	return err
}

func (s *PostgresStore) GetClusterEndpoint(ctx context.Context, id string) (*models.ClusterEndpoint, error) {
	var e models.ClusterEndpoint
	err := s.db.GetContext(ctx, &e, `SELECT * FROM cluster_endpoint WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("cluster endpoint", id)
	}
	return &e, err
}

func (s *PostgresStore) ListClusterEndpoints(ctx context.Context, activeOnly bool) ([]*models.ClusterEndpoint, error) {
	var out []*models.ClusterEndpoint
	query := `SELECT * FROM cluster_endpoint ORDER BY created_at DESC`
	if activeOnly {
		query = `SELECT * FROM cluster_endpoint WHERE is_active = TRUE ORDER BY created_at DESC`
	}
	err := s.db.SelectContext(ctx, &out, query)
	return out, err
}

func (s *PostgresStore) UpdateClusterEndpoint(ctx context.Context, e *models.ClusterEndpoint) error {
	e.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE cluster_endpoint
		SET name = $1, bootstrap_servers = $2, security_protocol = $3, sasl_mechanism = $4,
		    sasl_username = $5, sasl_password = $6, tls_ca_cert = $7, is_active = $8, updated_at = $9
		WHERE id = $10`,
		e.Name, e.BootstrapServers, e.SecurityProtocol, e.SASLMechanism,
		e.SASLUsername, e.SASLPassword, e.TLSCACert, e.IsActive, e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	return requireRow(res, "cluster endpoint", e.ID)
}

func (s *PostgresStore) DeactivateClusterEndpoint(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cluster_endpoint SET is_active = FALSE, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, "cluster endpoint", id)
}

func (s *PostgresStore) CreateRegistryEndpoint(ctx context.Context, e *models.RegistryEndpoint) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	e.IsActive = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO registry_endpoint (id, name, base_url, username, password, tls_ca_cert, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.Name, e.BaseURL, e.Username, e.Password, e.TLSCACert, e.IsActive, e.CreatedAt, e.UpdatedAt)
	return err
}

func (s *PostgresStore) GetRegistryEndpoint(ctx context.Context, id string) (*models.RegistryEndpoint, error) {
	var e models.RegistryEndpoint
	err := s.db.GetContext(ctx, &e, `SELECT * FROM registry_endpoint WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("registry endpoint", id)
	}
	return &e, err
}

func (s *PostgresStore) ListRegistryEndpoints(ctx context.Context, activeOnly bool) ([]*models.RegistryEndpoint, error) {
	var out []*models.RegistryEndpoint
	query := `SELECT * FROM registry_endpoint ORDER BY created_at DESC`
	if activeOnly {
		query = `SELECT * FROM registry_endpoint WHERE is_active = TRUE ORDER BY created_at DESC`
	}
	err := s.db.SelectContext(ctx, &out, query)
	return out, err
}

func (s *PostgresStore) UpdateRegistryEndpoint(ctx context.Context, e *models.RegistryEndpoint) error {
	e.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE registry_endpoint
		SET name = $1, base_url = $2, username = $3, password = $4, tls_ca_cert = $5, is_active = $6, updated_at = $7
		WHERE id = $8`,
		e.Name, e.BaseURL, e.Username, e.Password, e.TLSCACert, e.IsActive, e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	return requireRow(res, "registry endpoint", e.ID)
}

func (s *PostgresStore) DeactivateRegistryEndpoint(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE registry_endpoint SET is_active = FALSE, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, "registry endpoint", id)
}

func (s *PostgresStore) CreateStorageEndpoint(ctx context.Context, e *models.StorageEndpoint) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	e.IsActive = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO storage_endpoint (id, name, endpoint, access_key, secret_key, bucket, use_ssl, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Name, e.Endpoint, e.AccessKey, e.SecretKey, e.Bucket, e.UseSSL, e.IsActive, e.CreatedAt, e.UpdatedAt)
	return err
}

func (s *PostgresStore) GetStorageEndpoint(ctx context.Context, id string) (*models.StorageEndpoint, error) {
	var e models.StorageEndpoint
	err := s.db.GetContext(ctx, &e, `SELECT * FROM storage_endpoint WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("storage endpoint", id)
	}
	return &e, err
}

func (s *PostgresStore) ListStorageEndpoints(ctx context.Context, activeOnly bool) ([]*models.StorageEndpoint, error) {
	var out []*models.StorageEndpoint
	query := `SELECT * FROM storage_endpoint ORDER BY created_at DESC`
	if activeOnly {
		query = `SELECT * FROM storage_endpoint WHERE is_active = TRUE ORDER BY created_at DESC`
	}
	err := s.db.SelectContext(ctx, &out, query)
	return out, err
}

func (s *PostgresStore) UpdateStorageEndpoint(ctx context.Context, e *models.StorageEndpoint) error {
	e.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE storage_endpoint
		SET name = $1, endpoint = $2, access_key = $3, secret_key = $4, bucket = $5, use_ssl = $6, is_active = $7, updated_at = $8
		WHERE id = $9`,
		e.Name, e.Endpoint, e.AccessKey, e.SecretKey, e.Bucket, e.UseSSL, e.IsActive, e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	return requireRow(res, "storage endpoint", e.ID)
}

func (s *PostgresStore) DeactivateStorageEndpoint(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE storage_endpoint SET is_active = FALSE, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, "storage endpoint", id)
}

// --- MetadataStore ---

func (s *PostgresStore) SaveTopicMetadata(ctx context.Context, rec *TopicMetadataRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Tags == "" {
		rec.Tags = "[]"
	}
	if rec.Config == "" {
		rec.Config = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topic_metadata (topic_name, owner, doc, tags, config, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT(topic_name) DO UPDATE SET
			owner = excluded.owner, doc = excluded.doc, tags = excluded.tags,
			config = excluded.config, updated_by = excluded.updated_by, updated_at = excluded.updated_at`,
		rec.TopicName, rec.Owner, rec.Doc, rec.Tags, rec.Config,
		rec.CreatedBy, rec.UpdatedBy, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (s *PostgresStore) GetTopicMetadata(ctx context.Context, topic string) (*TopicMetadataRecord, error) {
	var rec TopicMetadataRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM topic_metadata WHERE topic_name = $1`, topic)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("topic metadata", topic)
	}
	return &rec, err
}

func (s *PostgresStore) ListTopicMetadata(ctx context.Context) ([]*TopicMetadataRecord, error) {
	var out []*TopicMetadataRecord
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM topic_metadata ORDER BY topic_name`)
	return out, err
}

func (s *PostgresStore) DeleteTopicMetadata(ctx context.Context, topic string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM topic_metadata WHERE topic_name = $1`, topic)
	return err
}

// --- PlanStore ---

func (s *PostgresStore) SavePlan(ctx context.Context, kind PlanKind, plan *models.Plan, createdBy string) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan %s: %w", plan.ChangeID, err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (change_id, env, plan_data, can_apply, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT(change_id) DO UPDATE SET
			env = excluded.env, plan_data = excluded.plan_data, can_apply = excluded.can_apply,
			created_by = excluded.created_by, created_at = excluded.created_at`, planTable(kind))
	_, err = s.db.ExecContext(ctx, query,
		plan.ChangeID, string(plan.Env), string(raw), plan.CanApply(), createdBy, time.Now().UTC())
	return err
}

func (s *PostgresStore) GetPlan(ctx context.Context, kind PlanKind, changeID string) (*models.Plan, error) {
	var raw string
	query := fmt.Sprintf(`SELECT plan_data FROM %s WHERE change_id = $1`, planTable(kind))
	err := s.db.GetContext(ctx, &raw, query, changeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("plan", changeID)
	}
	if err != nil {
		return nil, err
	}
	var plan models.Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan %s: %w", changeID, err)
	}
	return &plan, nil
}

func (s *PostgresStore) SaveApplyResult(ctx context.Context, kind PlanKind, result *models.ApplyResult, appliedBy string) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal apply result %s: %w", result.ChangeID, err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (change_id, result_data, success_count, failure_count, applied_by, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT(change_id) DO UPDATE SET
			result_data = excluded.result_data, success_count = excluded.success_count,
			failure_count = excluded.failure_count, applied_by = excluded.applied_by,
			applied_at = excluded.applied_at`, applyTable(kind))
	_, err = s.db.ExecContext(ctx, query,
		result.ChangeID, string(raw), len(result.Applied), len(result.Failed), appliedBy, time.Now().UTC())
	return err
}

func (s *PostgresStore) GetApplyResult(ctx context.Context, kind PlanKind, changeID string) (*models.ApplyResult, error) {
	var raw string
	query := fmt.Sprintf(`SELECT result_data FROM %s WHERE change_id = $1`, applyTable(kind))
	err := s.db.GetContext(ctx, &raw, query, changeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("apply result", changeID)
	}
	if err != nil {
		return nil, err
	}
	var result models.ApplyResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("unmarshal apply result %s: %w", changeID, err)
	}
	return &result, nil
}

// --- AuditStore ---

func (s *PostgresStore) CreateAuditRecord(ctx context.Context, rec *models.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, change_id, action, target, actor, status, message, snapshot, team, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.ChangeID, rec.Action, rec.Target, rec.Actor, rec.Status,
		rec.Message, rec.Snapshot, rec.Team, rec.Timestamp)
	return err
}

func (s *PostgresStore) ListAuditRecords(ctx context.Context, changeID string) ([]*models.AuditRecord, error) {
	var out []*models.AuditRecord
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM audit_log WHERE change_id = $1 ORDER BY timestamp, id`, changeID)
	return out, err
}

// --- PolicyStore ---

func (s *PostgresStore) CreatePolicy(ctx context.Context, p *models.Policy) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policy (policy_id, version, type, status, target_environment, name, description, content, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.PolicyID, p.Version, p.Type, p.Status, p.TargetEnv, p.Name, p.Description,
		string(p.Content), p.CreatedBy, p.CreatedAt)
	return err
}

func (s *PostgresStore) GetPolicy(ctx context.Context, policyID string, version int) (*models.Policy, error) {
	var p models.Policy
	err := s.db.GetContext(ctx, &p,
		`SELECT * FROM policy WHERE policy_id = $1 AND version = $2`, policyID, version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("policy", fmt.Sprintf("%s v%d", policyID, version))
	}
	return &p, err
}

func (s *PostgresStore) GetLatestVersion(ctx context.Context, policyID string) (int, error) {
	var version sql.NullInt64
	err := s.db.GetContext(ctx, &version,
		`SELECT MAX(version) FROM policy WHERE policy_id = $1`, policyID)
	if err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

func (s *PostgresStore) ListPolicies(ctx context.Context, policyID string) ([]*models.Policy, error) {
	var out []*models.Policy
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM policy WHERE policy_id = $1 ORDER BY version DESC`, policyID)
	return out, err
}

func (s *PostgresStore) ListAllPolicies(ctx context.Context) ([]*models.Policy, error) {
	var out []*models.Policy
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM policy ORDER BY policy_id, version DESC`)
	return out, err
}

func (s *PostgresStore) GetActivePolicy(ctx context.Context, typ models.PolicyType, targetEnv string) (*models.Policy, error) {
	var p models.Policy
	err := s.db.GetContext(ctx, &p, `
		SELECT * FROM policy
		WHERE type = $1 AND target_environment = $2 AND status = 'ACTIVE'
		ORDER BY version DESC LIMIT 1`, typ, targetEnv)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) ActivatePolicy(ctx context.Context, policyID string, version int) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var p models.Policy
		err := tx.GetContext(ctx, &p,
			`SELECT * FROM policy WHERE policy_id = $1 AND version = $2`, policyID, version)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("policy", fmt.Sprintf("%s v%d", policyID, version))
		}
		if err != nil {
			return err
		}
		if !models.CanTransitionPolicy(p.Status, models.PolicyActive) {
			return apperr.Invariant("policy %s v%d: cannot activate from %s", policyID, version, p.Status)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE policy SET status = 'ARCHIVED'
			WHERE status = 'ACTIVE' AND (policy_id = $1 OR (type = $2 AND target_environment = $3))`,
			policyID, p.Type, p.TargetEnv); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE policy SET status = 'ACTIVE' WHERE policy_id = $1 AND version = $2`, policyID, version)
		return err
	})
}

func (s *PostgresStore) ArchivePolicy(ctx context.Context, policyID string, version int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE policy SET status = 'ARCHIVED' WHERE policy_id = $1 AND version = $2`, policyID, version)
	if err != nil {
		return err
	}
	return requireRow(res, "policy", fmt.Sprintf("%s v%d", policyID, version))
}

func (s *PostgresStore) DeletePolicyVersion(ctx context.Context, policyID string, version int) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var status models.PolicyStatus
		err := tx.GetContext(ctx, &status,
			`SELECT status FROM policy WHERE policy_id = $1 AND version = $2`, policyID, version)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("policy", fmt.Sprintf("%s v%d", policyID, version))
		}
		if err != nil {
			return err
		}
		if status == models.PolicyActive {
			return apperr.Invariant("policy %s v%d is ACTIVE and cannot be deleted", policyID, version)
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM policy WHERE policy_id = $1 AND version = $2`, policyID, version)
		return err
	})
}

// --- ArtifactStore ---

func (s *PostgresStore) SaveSchemaArtifact(ctx context.Context, a *models.SchemaArtifact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schema_artifact (subject, version, schema_id, storage_url, checksum, change_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT(subject, version) DO UPDATE SET
			schema_id = excluded.schema_id, storage_url = excluded.storage_url,
			checksum = excluded.checksum, change_id = excluded.change_id`,
		a.Subject, a.Version, a.SchemaID, a.StorageURL, a.Checksum, a.ChangeID)
	return err
}

func (s *PostgresStore) ListSchemaArtifacts(ctx context.Context, subject string) ([]*models.SchemaArtifact, error) {
	var out []*models.SchemaArtifact
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM schema_artifact WHERE subject = $1 ORDER BY version DESC`, subject)
	return out, err
}

func (s *PostgresStore) DeleteSchemaArtifacts(ctx context.Context, subject string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM schema_artifact WHERE subject = $1`, subject)
	return err
}

// --- SnapshotStore ---

func (s *PostgresStore) SaveMetricsSnapshot(ctx context.Context, snap *models.MetricsSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ClusterID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metrics_snapshot (cluster_id, captured_at, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT(cluster_id, captured_at) DO UPDATE SET payload = excluded.payload`,
		snap.ClusterID, snap.CapturedAt, string(raw))
	return err
}

func (s *PostgresStore) GetLatestMetricsSnapshot(ctx context.Context, clusterID string) (*models.MetricsSnapshot, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `
		SELECT payload FROM metrics_snapshot
		WHERE cluster_id = $1 ORDER BY captured_at DESC LIMIT 1`, clusterID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("metrics snapshot", clusterID)
	}
	if err != nil {
		return nil, err
	}
	var snap models.MetricsSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", clusterID, err)
	}
	return &snap, nil
}

func (s *PostgresStore) DeleteMetricsSnapshotsBefore(ctx context.Context, clusterID string, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM metrics_snapshot WHERE cluster_id = $1 AND captured_at < $2`, clusterID, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
