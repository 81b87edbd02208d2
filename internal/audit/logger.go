// Package audit records override mutations in the audit_logs table.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"directory-sync/backend/internal/audit/domain"
	auditrepo "directory-sync/backend/internal/audit/repository"
)

// SystemActor is the actor recorded when a mutation has no caller identity (e.g. startup seeding).
const SystemActor = "system"

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, actorID, action, resource, resourceID, metadata string)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo auditrepo.Repository
	now  func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo. A nil repo makes LogEvent a no-op.
func NewLogger(repo auditrepo.Repository) *Logger {
	return &Logger{repo: repo, now: time.Now}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, actorID, action, resource, resourceID, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	if actorID == "" {
		actorID = SystemActor
	}
	entry := &domain.AuditLog{
		ID:         uuid.New().String(),
		ActorID:    actorID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Metadata:   metadata,
		CreatedAt:  l.now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}

// List returns recorded events newest first.
func (l *Logger) List(ctx context.Context, filter domain.ListFilter, limit, offset int) ([]*domain.AuditLog, error) {
	if l == nil || l.repo == nil {
		return nil, nil
	}
	return l.repo.List(ctx, filter, limit, offset)
}
