package handler

import (
	"context"
	"log"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"directory-sync/backend/internal/directory/domain"
)

// ServiceName is the named service that additionally reflects the last sync outcome.
const ServiceName = "directory-sync"

// Pinger checks database connectivity (e.g. *store.Store).
type Pinger interface {
	Ping(ctx context.Context) error
}

// SyncStatusReader returns the most recent sync outcome, or nil when none has run.
type SyncStatusReader interface {
	SyncStatus(ctx context.Context) (*domain.SyncStatus, error)
}

// Server implements grpc.health.v1.Health for readiness/liveness.
// The empty service name reports database readiness only; ServiceName also fails on a failed last sync.
type Server struct {
	healthpb.UnimplementedHealthServer
	pinger Pinger
	syncs  SyncStatusReader
}

// NewServer returns a new Health gRPC server. Either dependency may be nil, in which case that check is skipped.
func NewServer(pinger Pinger, syncs SyncStatusReader) *Server {
	return &Server{pinger: pinger, syncs: syncs}
}

// Check returns SERVING when the database pings. Probe failures are reported as NOT_SERVING, never as a gRPC error.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	switch req.GetService() {
	case "":
		return response(s.databaseReady(ctx)), nil
	case ServiceName:
		return response(s.databaseReady(ctx) && s.lastSyncOK(ctx)), nil
	default:
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}
}

func (s *Server) databaseReady(ctx context.Context) bool {
	if s.pinger == nil {
		return true
	}
	if err := s.pinger.Ping(ctx); err != nil {
		log.Printf("health: database ping failed: %v", err)
		return false
	}
	return true
}

func (s *Server) lastSyncOK(ctx context.Context) bool {
	if s.syncs == nil {
		return true
	}
	st, err := s.syncs.SyncStatus(ctx)
	if err != nil {
		log.Printf("health: read sync status: %v", err)
		return false
	}
	// No sync yet is not a failure.
	return st == nil || st.Success
}

func response(ok bool) *healthpb.HealthCheckResponse {
	if ok {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}
}
