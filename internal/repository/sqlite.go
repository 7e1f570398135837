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
	_ "modernc.org/sqlite"

	"github.com/streamgov/streamgov-backend/internal/apperr"
	"github.com/streamgov/streamgov-backend/internal/models"
)

// SQLiteStore implements Store using SQLite. The default for single-node
// deployments; PostgresStore covers multi-instance ones.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the database file.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping verifies database connectivity for readiness probes.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// RunMigrations applies migration SQL.
func (s *SQLiteStore) RunMigrations(migrationSQL string) error {
	_, err := s.db.Exec(migrationSQL)
	return err
}

// --- EndpointStore ---

func (s *SQLiteStore) CreateClusterEndpoint(ctx context.Context, e *models.ClusterEndpoint) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	e.IsActive = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cluster_endpoint (id, name, bootstrap_servers, security_protocol, sasl_mechanism,
			sasl_username, sasl_password, tls_ca_cert, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.BootstrapServers, e.SecurityProtocol, e.SASLMechanism,
		e.SASLUsername, e.SASLPassword, e.TLSCACert, e.IsActive, e.CreatedAt, e.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetClusterEndpoint(ctx context.Context, id string) (*models.ClusterEndpoint, error) {
	var e models.ClusterEndpoint
	err := s.db.GetContext(ctx, &e, `SELECT * FROM cluster_endpoint WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("cluster endpoint", id)
	}
	return &e, err
}

func (s *SQLiteStore) ListClusterEndpoints(ctx context.Context, activeOnly bool) ([]*models.ClusterEndpoint, error) {
	var out []*models.ClusterEndpoint
	query := `SELECT * FROM cluster_endpoint ORDER BY created_at DESC`
	if activeOnly {
		query = `SELECT * FROM cluster_endpoint WHERE is_active = TRUE ORDER BY created_at DESC`
	}
	err := s.db.SelectContext(ctx, &out, query)
	return out, err
}

func (s *SQLiteStore) UpdateClusterEndpoint(ctx context.Context, e *models.ClusterEndpoint) error {
	e.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE cluster_endpoint
		SET name = ?, bootstrap_servers = ?, security_protocol = ?, sasl_mechanism = ?,
		    sasl_username = ?, sasl_password = ?, tls_ca_cert = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		e.Name, e.BootstrapServers, e.SecurityProtocol, e.SASLMechanism,
		e.SASLUsername, e.SASLPassword, e.TLSCACert, e.IsActive, e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	return requireRow(res, "cluster endpoint", e.ID)
}

func (s *SQLiteStore) DeactivateClusterEndpoint(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cluster_endpoint SET is_active = FALSE, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, "cluster endpoint", id)
}

func (s *SQLiteStore) CreateRegistryEndpoint(ctx context.Context, e *models.RegistryEndpoint) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	e.IsActive = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO registry_endpoint (id, name, base_url, username, password, tls_ca_cert, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.BaseURL, e.Username, e.Password, e.TLSCACert, e.IsActive, e.CreatedAt, e.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetRegistryEndpoint(ctx context.Context, id string) (*models.RegistryEndpoint, error) {
	var e models.RegistryEndpoint
	err := s.db.GetContext(ctx, &e, `SELECT * FROM registry_endpoint WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("registry endpoint", id)
	}
	return &e, err
}

func (s *SQLiteStore) ListRegistryEndpoints(ctx context.Context, activeOnly bool) ([]*models.RegistryEndpoint, error) {
	var out []*models.RegistryEndpoint
	query := `SELECT * FROM registry_endpoint ORDER BY created_at DESC`
	if activeOnly {
		query = `SELECT * FROM registry_endpoint WHERE is_active = TRUE ORDER BY created_at DESC`
	}
	err := s.db.SelectContext(ctx, &out, query)
	return out, err
}

func (s *SQLiteStore) UpdateRegistryEndpoint(ctx context.Context, e *models.RegistryEndpoint) error {
	e.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE registry_endpoint
		SET name = ?, base_url = ?, username = ?, password = ?, tls_ca_cert = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		e.Name, e.BaseURL, e.Username, e.Password, e.TLSCACert, e.IsActive, e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	return requireRow(res, "registry endpoint", e.ID)
}

func (s *SQLiteStore) DeactivateRegistryEndpoint(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE registry_endpoint SET is_active = FALSE, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, "registry endpoint", id)
}

func (s *SQLiteStore) CreateStorageEndpoint(ctx context.Context, e *models.StorageEndpoint) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	e.IsActive = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO storage_endpoint (id, name, endpoint, access_key, secret_key, bucket, use_ssl, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Endpoint, e.AccessKey, e.SecretKey, e.Bucket, e.UseSSL, e.IsActive, e.CreatedAt, e.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetStorageEndpoint(ctx context.Context, id string) (*models.StorageEndpoint, error) {
	var e models.StorageEndpoint
	err := s.db.GetContext(ctx, &e, `SELECT * FROM storage_endpoint WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("storage endpoint", id)
	}
	return &e, err
}

func (s *SQLiteStore) ListStorageEndpoints(ctx context.Context, activeOnly bool) ([]*models.StorageEndpoint, error) {
	var out []*models.StorageEndpoint
	query := `SELECT * FROM storage_endpoint ORDER BY created_at DESC`
	if activeOnly {
		query = `SELECT * FROM storage_endpoint WHERE is_active = TRUE ORDER BY created_at DESC`
	}
	err := s.db.SelectContext(ctx, &out, query)
	return out, err
}

func (s *SQLiteStore) UpdateStorageEndpoint(ctx context.Context, e *models.StorageEndpoint) error {
	e.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE storage_endpoint
		SET name = ?, endpoint = ?, access_key = ?, secret_key = ?, bucket = ?, use_ssl = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		e.Name, e.Endpoint, e.AccessKey, e.SecretKey, e.Bucket, e.UseSSL, e.IsActive, e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	return requireRow(res, "storage endpoint", e.ID)
}

func (s *SQLiteStore) DeactivateStorageEndpoint(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE storage_endpoint SET is_active = FALSE, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, "storage endpoint", id)
}

// --- MetadataStore ---

func (s *SQLiteStore) SaveTopicMetadata(ctx context.Context, rec *TopicMetadataRecord) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(topic_name) DO UPDATE SET
			owner = excluded.owner, doc = excluded.doc, tags = excluded.tags,
			config = excluded.config, updated_by = excluded.updated_by, updated_at = excluded.updated_at`,
		rec.TopicName, rec.Owner, rec.Doc, rec.Tags, rec.Config,
		rec.CreatedBy, rec.UpdatedBy, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetTopicMetadata(ctx context.Context, topic string) (*TopicMetadataRecord, error) {
	var rec TopicMetadataRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM topic_metadata WHERE topic_name = ?`, topic)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("topic metadata", topic)
	}
	return &rec, err
}

func (s *SQLiteStore) ListTopicMetadata(ctx context.Context) ([]*TopicMetadataRecord, error) {
	var out []*TopicMetadataRecord
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM topic_metadata ORDER BY topic_name`)
	return out, err
}

func (s *SQLiteStore) DeleteTopicMetadata(ctx context.Context, topic string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM topic_metadata WHERE topic_name = ?`, topic)
	return err
}

// --- PlanStore ---

func planTable(kind PlanKind) string {
	if kind == PlanKindSchema {
		return "schema_plan"
	}
	return "topic_plan"
}

func applyTable(kind PlanKind) string {
	if kind == PlanKindSchema {
		return "schema_apply_result"
	}
	return "topic_apply_result"
}

func (s *SQLiteStore) SavePlan(ctx context.Context, kind PlanKind, plan *models.Plan, createdBy string) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan %s: %w", plan.ChangeID, err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (change_id, env, plan_data, can_apply, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(change_id) DO UPDATE SET
			env = excluded.env, plan_data = excluded.plan_data, can_apply = excluded.can_apply,
			created_by = excluded.created_by, created_at = excluded.created_at`, planTable(kind))
	_, err = s.db.ExecContext(ctx, query,
		plan.ChangeID, string(plan.Env), string(raw), plan.CanApply(), createdBy, time.Now().UTC())
	return err
}

func (s *SQLiteStore) GetPlan(ctx context.Context, kind PlanKind, changeID string) (*models.Plan, error) {
	var raw string
	query := fmt.Sprintf(`SELECT plan_data FROM %s WHERE change_id = ?`, planTable(kind))
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

func (s *SQLiteStore) SaveApplyResult(ctx context.Context, kind PlanKind, result *models.ApplyResult, appliedBy string) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal apply result %s: %w", result.ChangeID, err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (change_id, result_data, success_count, failure_count, applied_by, applied_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(change_id) DO UPDATE SET
			result_data = excluded.result_data, success_count = excluded.success_count,
			failure_count = excluded.failure_count, applied_by = excluded.applied_by,
			applied_at = excluded.applied_at`, applyTable(kind))
	_, err = s.db.ExecContext(ctx, query,
		result.ChangeID, string(raw), len(result.Applied), len(result.Failed), appliedBy, time.Now().UTC())
	return err
}

func (s *SQLiteStore) GetApplyResult(ctx context.Context, kind PlanKind, changeID string) (*models.ApplyResult, error) {
	var raw string
	query := fmt.Sprintf(`SELECT result_data FROM %s WHERE change_id = ?`, applyTable(kind))
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

func (s *SQLiteStore) CreateAuditRecord(ctx context.Context, rec *models.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, change_id, action, target, actor, status, message, snapshot, team, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ChangeID, rec.Action, rec.Target, rec.Actor, rec.Status,
		rec.Message, rec.Snapshot, rec.Team, rec.Timestamp)
	return err
}

func (s *SQLiteStore) ListAuditRecords(ctx context.Context, changeID string) ([]*models.AuditRecord, error) {
	var out []*models.AuditRecord
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM audit_log WHERE change_id = ? ORDER BY timestamp, id`, changeID)
	return out, err
}

// --- PolicyStore ---

func (s *SQLiteStore) CreatePolicy(ctx context.Context, p *models.Policy) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policy (policy_id, version, type, status, target_environment, name, description, content, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PolicyID, p.Version, p.Type, p.Status, p.TargetEnv, p.Name, p.Description,
		string(p.Content), p.CreatedBy, p.CreatedAt)
	return err
}

func (s *SQLiteStore) GetPolicy(ctx context.Context, policyID string, version int) (*models.Policy, error) {
	var p models.Policy
	err := s.db.GetContext(ctx, &p,
		`SELECT * FROM policy WHERE policy_id = ? AND version = ?`, policyID, version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("policy", fmt.Sprintf("%s v%d", policyID, version))
	}
	return &p, err
}

func (s *SQLiteStore) GetLatestVersion(ctx context.Context, policyID string) (int, error) {
	var version sql.NullInt64
	err := s.db.GetContext(ctx, &version,
		`SELECT MAX(version) FROM policy WHERE policy_id = ?`, policyID)
	if err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

func (s *SQLiteStore) ListPolicies(ctx context.Context, policyID string) ([]*models.Policy, error) {
	var out []*models.Policy
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM policy WHERE policy_id = ? ORDER BY version DESC`, policyID)
	return out, err
}

func (s *SQLiteStore) ListAllPolicies(ctx context.Context) ([]*models.Policy, error) {
	var out []*models.Policy
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM policy ORDER BY policy_id, version DESC`)
	return out, err
}

func (s *SQLiteStore) GetActivePolicy(ctx context.Context, typ models.PolicyType, targetEnv string) (*models.Policy, error) {
	var p models.Policy
	err := s.db.GetContext(ctx, &p, `
		SELECT * FROM policy
		WHERE type = ? AND target_environment = ? AND status = 'ACTIVE'
		ORDER BY version DESC LIMIT 1`, typ, targetEnv)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) ActivatePolicy(ctx context.Context, policyID string, version int) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var p models.Policy
		err := tx.GetContext(ctx, &p,
			`SELECT * FROM policy WHERE policy_id = ? AND version = ?`, policyID, version)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("policy", fmt.Sprintf("%s v%d", policyID, version))
		}
		if err != nil {
			return err
		}
		if !models.CanTransitionPolicy(p.Status, models.PolicyActive) {
			return apperr.Invariant("policy %s v%d: cannot activate from %s", policyID, version, p.Status)
		}
		// Archive prior ACTIVE versions of this policy and of any other policy
		// occupying the same (type, target_environment) slot.
		if _, err := tx.ExecContext(ctx, `
			UPDATE policy SET status = 'ARCHIVED'
			WHERE status = 'ACTIVE' AND (policy_id = ? OR (type = ? AND target_environment = ?))`,
			policyID, p.Type, p.TargetEnv); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE policy SET status = 'ACTIVE' WHERE policy_id = ? AND version = ?`, policyID, version)
		return err
	})
}

func (s *SQLiteStore) ArchivePolicy(ctx context.Context, policyID string, version int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE policy SET status = 'ARCHIVED' WHERE policy_id = ? AND version = ?`, policyID, version)
	if err != nil {
		return err
	}
	return requireRow(res, "policy", fmt.Sprintf("%s v%d", policyID, version))
}

func (s *SQLiteStore) DeletePolicyVersion(ctx context.Context, policyID string, version int) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var status models.PolicyStatus
		err := tx.GetContext(ctx, &status,
			`SELECT status FROM policy WHERE policy_id = ? AND version = ?`, policyID, version)
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
			`DELETE FROM policy WHERE policy_id = ? AND version = ?`, policyID, version)
		return err
	})
}

// --- ArtifactStore ---

func (s *SQLiteStore) SaveSchemaArtifact(ctx context.Context, a *models.SchemaArtifact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schema_artifact (subject, version, schema_id, storage_url, checksum, change_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject, version) DO UPDATE SET
			schema_id = excluded.schema_id, storage_url = excluded.storage_url,
			checksum = excluded.checksum, change_id = excluded.change_id`,
		a.Subject, a.Version, a.SchemaID, a.StorageURL, a.Checksum, a.ChangeID)
	return err
}

func (s *SQLiteStore) ListSchemaArtifacts(ctx context.Context, subject string) ([]*models.SchemaArtifact, error) {
	var out []*models.SchemaArtifact
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM schema_artifact WHERE subject = ? ORDER BY version DESC`, subject)
	return out, err
}

func (s *SQLiteStore) DeleteSchemaArtifacts(ctx context.Context, subject string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM schema_artifact WHERE subject = ?`, subject)
	return err
}

// --- SnapshotStore ---

func (s *SQLiteStore) SaveMetricsSnapshot(ctx context.Context, snap *models.MetricsSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ClusterID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metrics_snapshot (cluster_id, captured_at, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(cluster_id, captured_at) DO UPDATE SET payload = excluded.payload`,
		snap.ClusterID, snap.CapturedAt, string(raw))
	return err
}

func (s *SQLiteStore) GetLatestMetricsSnapshot(ctx context.Context, clusterID string) (*models.MetricsSnapshot, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `
		SELECT payload FROM metrics_snapshot
		WHERE cluster_id = ? ORDER BY captured_at DESC LIMIT 1`, clusterID)
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

func (s *SQLiteStore) DeleteMetricsSnapshotsBefore(ctx context.Context, clusterID string, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM metrics_snapshot WHERE cluster_id = ? AND captured_at < ?`, clusterID, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- helpers ---

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
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

func requireRow(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound(resource, id)
	}
	return nil
}
