// Package audit writes the append-only change trail. Every apply produces a
// STARTED record, one record per item outcome, and a terminal record.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/streamgov/streamgov-backend/internal/models"
	"github.com/streamgov/streamgov-backend/internal/repository"
)

// Writer persists audit records. Write failures are logged, never returned:
// an audit hiccup must not abort an apply already in flight.
type Writer struct {
	store  repository.AuditStore
	logger *slog.Logger
}

// NewWriter creates a Writer; logger may be nil.
func NewWriter(store repository.AuditStore, logger *slog.Logger) *Writer {
	return &Writer{store: store, logger: logger}
}

func (w *Writer) write(ctx context.Context, rec *models.AuditRecord) {
	if w == nil || w.store == nil {
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if err := w.store.CreateAuditRecord(ctx, rec); err != nil && w.logger != nil {
		w.logger.Error("audit write failed", "change_id", rec.ChangeID, "action", rec.Action, "error", err)
	}
}

// Started records the beginning of a change.
func (w *Writer) Started(ctx context.Context, changeID, action, actor, team string, snapshot interface{}) {
	w.write(ctx, &models.AuditRecord{
		ChangeID: changeID,
		Action:   action,
		Actor:    actor,
		Team:     team,
		Status:   models.AuditStarted,
		Snapshot: marshalSnapshot(snapshot),
	})
}

// ItemCompleted records one successfully applied item.
func (w *Writer) ItemCompleted(ctx context.Context, changeID, action, target, actor string) {
	w.write(ctx, &models.AuditRecord{
		ChangeID: changeID,
		Action:   action,
		Target:   target,
		Actor:    actor,
		Status:   models.AuditCompleted,
	})
}

// ItemFailed records one failed item with its error message.
func (w *Writer) ItemFailed(ctx context.Context, changeID, action, target, actor, message string) {
	w.write(ctx, &models.AuditRecord{
		ChangeID: changeID,
		Action:   action,
		Target:   target,
		Actor:    actor,
		Status:   models.AuditFailed,
		Message:  message,
	})
}

// Finished records the terminal status of a change with its result snapshot.
func (w *Writer) Finished(ctx context.Context, changeID, action, actor string, status models.AuditStatus, result interface{}) {
	w.write(ctx, &models.AuditRecord{
		ChangeID: changeID,
		Action:   action,
		Actor:    actor,
		Status:   status,
		Snapshot: marshalSnapshot(result),
	})
}

func marshalSnapshot(v interface{}) string {
	if v == nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

// ActorFromRequest extracts the acting identity for audit rows. The X-Actor
// header is set by the fronting proxy after authentication.
func ActorFromRequest(r *http.Request) string {
	if actor := strings.TrimSpace(r.Header.Get("X-Actor")); actor != "" {
		return actor
	}
	return "anonymous"
}

// RequestIP returns the originating client address, honoring X-Forwarded-For.
func RequestIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	return r.RemoteAddr
}
