package handler

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"directory-sync/backend/internal/directory/domain"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) Ping(context.Context) error {
	return m.pingErr
}

// mockSyncs implements SyncStatusReader for tests.
type mockSyncs struct {
	last *domain.SyncStatus
	err  error
}

func (m *mockSyncs) SyncStatus(context.Context) (*domain.SyncStatus, error) {
	return m.last, m.err
}

func check(t *testing.T, srv *Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestCheck_NilDependencies(t *testing.T) {
	srv := NewServer(nil, nil)
	if got := check(t, srv, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", got)
	}
	if got := check(t, srv, ServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("named status = %v, want SERVING", got)
	}
}

func TestCheck_PingerFailure(t *testing.T) {
	srv := NewServer(&mockPinger{pingErr: errors.New("database is closed")}, nil)
	if got := check(t, srv, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", got)
	}
}

func TestCheck_FailedSyncOnlyAffectsNamedService(t *testing.T) {
	srv := NewServer(&mockPinger{}, &mockSyncs{last: &domain.SyncStatus{Success: false, Error: "unreachable"}})
	if got := check(t, srv, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("overall status = %v, want SERVING", got)
	}
	if got := check(t, srv, ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("named status = %v, want NOT_SERVING", got)
	}
}

func TestCheck_NamedService(t *testing.T) {
	tests := []struct {
		name  string
		syncs *mockSyncs
		want  healthpb.HealthCheckResponse_ServingStatus
	}{
		{"no sync yet", &mockSyncs{}, healthpb.HealthCheckResponse_SERVING},
		{"last sync succeeded", &mockSyncs{last: &domain.SyncStatus{Success: true}}, healthpb.HealthCheckResponse_SERVING},
		{"status read error", &mockSyncs{err: errors.New("disk I/O error")}, healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(&mockPinger{}, tt.syncs)
			if got := check(t, srv, ServiceName); got != tt.want {
				t.Errorf("status = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheck_UnknownService(t *testing.T) {
	srv := NewServer(nil, nil)
	_, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "billing"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("code = %v, want NotFound", status.Code(err))
	}
}
