// Package api exposes the sync engine to request/response adapters. Every operation returns an Envelope.
package api

import (
	"context"
	"fmt"

	auditdomain "directory-sync/backend/internal/audit/domain"
	dirdomain "directory-sync/backend/internal/directory/domain"
	"directory-sync/backend/internal/merge"
	"directory-sync/backend/internal/override"
	ovrdomain "directory-sync/backend/internal/override/domain"
	"directory-sync/backend/internal/store"
	"directory-sync/backend/internal/syncer"
)

// Envelope is the uniform response shape. On failure Error holds the error kind and Message the detail.
type Envelope struct {
	Success bool   `json:"success" yaml:"success"`
	Data    any    `json:"data,omitempty" yaml:"data,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// OK wraps data in a successful envelope.
func OK(data any, message string) Envelope {
	return Envelope{Success: true, Data: data, Message: message}
}

// Fail wraps err in a failed envelope. data may carry partial results (e.g. a failed sync status).
func Fail(err error, data any) Envelope {
	return Envelope{Success: false, Data: data, Message: err.Error(), Error: KindOf(err)}
}

// Syncer is the orchestrator surface the service needs.
type Syncer interface {
	TriggerManualSync(ctx context.Context) (*dirdomain.SyncStatus, error)
	Status(ctx context.Context) syncer.Status
}

// StatusStore is the store surface the service needs.
type StatusStore interface {
	SyncHistory(ctx context.Context, limit int) ([]dirdomain.SyncStatus, error)
	Diagnostics(ctx context.Context) (*store.Diagnostics, error)
}

// AuditLister lists recorded override mutations.
type AuditLister interface {
	List(ctx context.Context, filter auditdomain.ListFilter, limit, offset int) ([]*auditdomain.AuditLog, error)
}

// Service is the facade over the merge view, the override store, the orchestrator and the store.
type Service struct {
	view      *merge.View
	overrides *override.Store
	syncer    Syncer
	store     StatusStore
	audit     AuditLister
}

// NewService wires the facade. audit may be nil.
func NewService(view *merge.View, overrides *override.Store, orchestrator Syncer, st StatusStore, audit AuditLister) *Service {
	return &Service{view: view, overrides: overrides, syncer: orchestrator, store: st, audit: audit}
}

func parseKind(kind string) (dirdomain.Kind, error) {
	k, ok := dirdomain.ParseKind(kind)
	if !ok {
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidArgument, kind)
	}
	return k, nil
}

func parseSource(source string) (merge.Source, error) {
	src, ok := merge.ParseSource(source)
	if !ok {
		return "", fmt.Errorf("%w: unknown source %q", ErrInvalidArgument, source)
	}
	return src, nil
}

func nonNil(records []dirdomain.Record) []dirdomain.Record {
	if records == nil {
		return []dirdomain.Record{}
	}
	return records
}

// GetCombined lists kind from the selected source, sorted by display name.
func (s *Service) GetCombined(ctx context.Context, kind, source string) Envelope {
	k, err := parseKind(kind)
	if err != nil {
		return Fail(err, nil)
	}
	src, err := parseSource(source)
	if err != nil {
		return Fail(err, nil)
	}
	return OK(nonNil(s.view.Combined(ctx, k, src)), "")
}

// Find lists the records of kind from source that match f.
func (s *Service) Find(ctx context.Context, kind, source string, f dirdomain.Filter) Envelope {
	k, err := parseKind(kind)
	if err != nil {
		return Fail(err, nil)
	}
	src, err := parseSource(source)
	if err != nil {
		return Fail(err, nil)
	}
	return OK(nonNil(s.view.Find(ctx, k, src, f)), "")
}

// GetByID looks id up among synced records first, then overrides.
func (s *Service) GetByID(ctx context.Context, kind, id string) Envelope {
	k, err := parseKind(kind)
	if err != nil {
		return Fail(err, nil)
	}
	rec, ok := s.view.GetByID(ctx, k, id)
	if !ok {
		return Fail(fmt.Errorf("%w: %s %q", override.ErrNotFound, k, id), nil)
	}
	return OK(rec, "")
}

// CreateUser adds an override user.
func (s *Service) CreateUser(ctx context.Context, req ovrdomain.CreateUserRequest, actorID string) Envelope {
	u, err := s.overrides.CreateUser(ctx, req, actorID)
	if err != nil {
		return Fail(err, nil)
	}
	return OK(u, "user created")
}

// UpdateUser applies a partial update to an override user.
func (s *Service) UpdateUser(ctx context.Context, id string, req ovrdomain.UpdateUserRequest, actorID string) Envelope {
	u, err := s.overrides.UpdateUser(ctx, id, req, actorID)
	if err != nil {
		return Fail(err, nil)
	}
	return OK(u, "user updated")
}

// DeleteUser removes an override user.
func (s *Service) DeleteUser(ctx context.Context, id, actorID string) Envelope {
	if !s.overrides.DeleteUser(ctx, id, actorID) {
		return Fail(fmt.Errorf("%w: user %q", override.ErrNotFound, id), nil)
	}
	return OK(nil, "user deleted")
}

// CreateDevice adds an override device.
func (s *Service) CreateDevice(ctx context.Context, req ovrdomain.CreateDeviceRequest, actorID string) Envelope {
	d, err := s.overrides.CreateDevice(ctx, req, actorID)
	if err != nil {
		return Fail(err, nil)
	}
	return OK(d, "device created")
}

// UpdateDevice applies a partial update to an override device.
func (s *Service) UpdateDevice(ctx context.Context, id string, req ovrdomain.UpdateDeviceRequest, actorID string) Envelope {
	d, err := s.overrides.UpdateDevice(ctx, id, req, actorID)
	if err != nil {
		return Fail(err, nil)
	}
	return OK(d, "device updated")
}

// DeleteDevice removes an override device.
func (s *Service) DeleteDevice(ctx context.Context, id, actorID string) Envelope {
	if !s.overrides.DeleteDevice(ctx, id, actorID) {
		return Fail(fmt.Errorf("%w: device %q", override.ErrNotFound, id), nil)
	}
	return OK(nil, "device deleted")
}

// TriggerManualSync runs a sync now. A failed run still returns its recorded status as data.
func (s *Service) TriggerManualSync(ctx context.Context) Envelope {
	st, err := s.syncer.TriggerManualSync(ctx)
	if err != nil {
		if st != nil {
			return Fail(err, st)
		}
		return Fail(err, nil)
	}
	return OK(st, "sync completed")
}

// GetSyncStatus reports enablement, credentials, whether a sync is running and the last outcome.
func (s *Service) GetSyncStatus(ctx context.Context) Envelope {
	return OK(s.syncer.Status(ctx), "")
}

// GetSyncHistory returns up to limit recorded syncs, newest first.
func (s *Service) GetSyncHistory(ctx context.Context, limit int) Envelope {
	history, err := s.store.SyncHistory(ctx, limit)
	if err != nil {
		return Fail(err, nil)
	}
	if history == nil {
		history = []dirdomain.SyncStatus{}
	}
	return OK(history, "")
}

// GetDiagnostics introspects the database file.
func (s *Service) GetDiagnostics(ctx context.Context) Envelope {
	d, err := s.store.Diagnostics(ctx)
	if err != nil {
		return Fail(err, nil)
	}
	return OK(d, "")
}

// ListAvailableSources returns the source catalog with live counts.
func (s *Service) ListAvailableSources(ctx context.Context) Envelope {
	return OK(s.view.Sources(ctx), "")
}

// GetStats summarizes kind across both origins.
func (s *Service) GetStats(ctx context.Context, kind string) Envelope {
	k, err := parseKind(kind)
	if err != nil {
		return Fail(err, nil)
	}
	return OK(s.view.Stats(ctx, k), "")
}

// ListAuditLogs returns recorded override mutations, newest first.
func (s *Service) ListAuditLogs(ctx context.Context, filter auditdomain.ListFilter, limit, offset int) Envelope {
	if s.audit == nil {
		return OK([]*auditdomain.AuditLog{}, "audit log is not configured")
	}
	logs, err := s.audit.List(ctx, filter, limit, offset)
	if err != nil {
		return Fail(err, nil)
	}
	if logs == nil {
		logs = []*auditdomain.AuditLog{}
	}
	return OK(logs, "")
}
