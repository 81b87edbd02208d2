package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "directory-sync/backend/internal/health/handler"
)

// Deps holds optional dependencies for the gRPC handlers.
type Deps struct {
	// HealthPinger is used by the health service for readiness (e.g. *store.Store). If nil, Check skips the DB ping.
	HealthPinger healthhandler.Pinger
	// SyncStatus reports the last sync outcome for the named directory-sync service. If nil, that check is skipped.
	SyncStatus healthhandler.SyncStatusReader
}

// NewGRPCServer returns a gRPC server instrumented with OpenTelemetry. It uses the global providers.
func NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	return grpc.NewServer(opts...)
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(deps.HealthPinger, deps.SyncStatus))
}
