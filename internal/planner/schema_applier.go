package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streamgov/streamgov-backend/internal/apperr"
	"github.com/streamgov/streamgov-backend/internal/events"
	"github.com/streamgov/streamgov-backend/internal/models"
	"github.com/streamgov/streamgov-backend/internal/pkg/metrics"
	"github.com/streamgov/streamgov-backend/internal/registry"
	"github.com/streamgov/streamgov-backend/internal/repository"
	"github.com/streamgov/streamgov-backend/internal/storage"
)

// maxVersionsWithoutForce is the version count above which a subject delete
// requires force.
const maxVersionsWithoutForce = 10

// ApplySchemas registers each subject of the batch as its own unit: setting
// the compatibility mode, registering the schema, archiving the source bytes
// and recording the artifact row. A failure in one subject never touches the
// others.
func (a *Applier) ApplySchemas(ctx context.Context, reg registry.Registry, objects storage.ObjectStore, batch models.SchemaBatch, actor string) (*models.ApplyResult, error) {
	changeID := batch.ChangeID
	plan, err := a.plans.GetPlan(ctx, repository.PlanKindSchema, changeID)
	if err != nil {
		return nil, err
	}

	a.audit.Started(ctx, changeID, "APPLY", actor, schemaBatchTeam(batch), plan)
	if err := a.preflight(ctx, changeID, batch.Fingerprint(), plan, actor); err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(batch.Specs))
	skipped := make([]string, 0)
	failed := make([]models.FailedItem, 0)
	artifacts := make([]models.SchemaArtifact, 0, len(batch.Specs))

	for _, spec := range batch.Specs {
		if spec.DryRunOnly {
			skipped = append(skipped, spec.Subject)
			continue
		}

		if err := reg.SetCompatibilityMode(ctx, spec.Subject, spec.Compatibility); err != nil {
			msg := fmt.Sprintf("setting compatibility %s failed: %v", spec.Compatibility, err)
			failed = append(failed, models.FailedItem{Name: spec.Subject, Error: msg, Action: models.PlanAlter})
			a.audit.ItemFailed(ctx, changeID, "SET_COMPATIBILITY", spec.Subject, actor, msg)
			metrics.ApplyItemsTotal.WithLabelValues("REGISTER", "failure").Inc()
			continue
		}

		state, err := reg.RegisterSchema(ctx, spec)
		if err != nil {
			failed = append(failed, models.FailedItem{Name: spec.Subject, Error: err.Error(), Action: models.PlanCreate})
			a.audit.ItemFailed(ctx, changeID, "REGISTER", spec.Subject, actor, err.Error())
			metrics.ApplyItemsTotal.WithLabelValues("REGISTER", "failure").Inc()
			continue
		}

		schemaText := spec.ResolvedSchema()
		artifact := models.SchemaArtifact{
			Subject:  spec.Subject,
			Version:  state.Version,
			SchemaID: state.SchemaID,
			Checksum: storage.Checksum([]byte(schemaText)),
			ChangeID: changeID,
		}
		if objects != nil {
			key := storage.ArtifactKey(batch.Env, spec.Subject, state.Version)
			info, err := objects.Put(ctx, key, []byte(schemaText), "text/plain", map[string]string{
				"change_id":   changeID,
				"schema_type": string(spec.SchemaType),
			})
			if err != nil {
				a.logger.Error("schema registered but artifact upload failed",
					"change_id", changeID, "subject", spec.Subject, "version", state.Version, "error", err)
			} else {
				artifact.StorageURL = info.URL
			}
		}
		if err := a.artifacts.SaveSchemaArtifact(ctx, &artifact); err != nil {
			a.logger.Error("schema registered but artifact row save failed",
				"critical", true, "change_id", changeID, "subject", spec.Subject, "error", err)
		}
		artifacts = append(artifacts, artifact)
		applied = append(applied, spec.Subject)
		a.audit.ItemCompleted(ctx, changeID, "REGISTER", spec.Subject, actor)
		metrics.ApplyItemsTotal.WithLabelValues("REGISTER", "success").Inc()

		if a.bus != nil {
			a.bus.Publish(events.SchemaRegistered{
				ChangeID:  changeID,
				Subject:   spec.Subject,
				Version:   state.Version,
				SchemaID:  state.SchemaID,
				Timestamp: time.Now().UTC(),
			})
		}
	}

	result := &models.ApplyResult{
		ChangeID:  changeID,
		Env:       batch.Env,
		Applied:   applied,
		Skipped:   skipped,
		Failed:    failed,
		Artifacts: artifacts,
		AppliedAt: time.Now().UTC(),
	}
	a.finish(ctx, repository.PlanKindSchema, result, actor)
	return result, nil
}

// SubjectDeletion is the outcome of a guarded subject delete.
type SubjectDeletion struct {
	Subject      string   `json:"subject"`
	SafeToDelete bool     `json:"safe_to_delete"`
	Reasons      []string `json:"reasons,omitempty"`
	Deleted      bool     `json:"deleted"`
	Versions     []int    `json:"versions,omitempty"`
}

// DeleteSubject removes a subject from the registry with safety rails: a
// subject in PROD or with many versions is refused unless force is set.
// Successful deletion also clears the artifact rows and archived objects.
func (a *Applier) DeleteSubject(ctx context.Context, reg registry.Registry, objects storage.ObjectStore, subject string, force bool, actor string) (*SubjectDeletion, error) {
	state, err := reg.DescribeSubject(ctx, subject)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, err, "describe subject %s", subject)
	}
	if state == nil {
		return nil, apperr.NotFound("subject", subject)
	}

	env := models.DeriveEnvironment(subject)
	var reasons []string
	if env == models.EnvProd {
		reasons = append(reasons, "subject is in PROD")
	}
	if state.Version >= maxVersionsWithoutForce {
		reasons = append(reasons, fmt.Sprintf("subject has %d versions", state.Version))
	}
	out := &SubjectDeletion{Subject: subject, SafeToDelete: len(reasons) == 0, Reasons: reasons}
	if !out.SafeToDelete && !force {
		return out, nil
	}

	changeID := "subject-delete-" + uuid.New().String()
	a.audit.Started(ctx, changeID, "DELETE_SUBJECT", actor, "", map[string]interface{}{
		"subject": subject, "force": force, "latest_version": state.Version,
	})

	// The registry only accepts a permanent delete after a soft delete, so
	// removal is always two calls in that order.
	versions, err := reg.DeleteSubject(ctx, subject, false)
	if err != nil {
		a.audit.Finished(ctx, changeID, "DELETE_SUBJECT", actor, models.AuditFailed, map[string]string{"error": err.Error()})
		return nil, apperr.Wrap(apperr.KindBackend, err, "delete subject %s", subject)
	}
	if _, err := reg.DeleteSubject(ctx, subject, true); err != nil {
		a.logger.Error("subject soft-deleted but permanent delete failed", "subject", subject, "error", err)
	}
	out.Deleted = true
	out.Versions = versions

	if err := a.artifacts.DeleteSchemaArtifacts(ctx, subject); err != nil {
		a.logger.Error("subject deleted but artifact rows remain", "subject", subject, "error", err)
	}
	if objects != nil {
		if _, err := objects.DeletePrefix(ctx, storage.SubjectPrefix(env, subject)); err != nil {
			a.logger.Error("subject deleted but archived objects remain", "subject", subject, "error", err)
		}
	}
	a.audit.Finished(ctx, changeID, "DELETE_SUBJECT", actor, models.AuditCompleted, out)
	return out, nil
}

func schemaBatchTeam(batch models.SchemaBatch) string {
	for _, spec := range batch.Specs {
		if spec.Metadata != nil && spec.Metadata.Team != "" {
			return spec.Metadata.Team
		}
	}
	return ""
}
