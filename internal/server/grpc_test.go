package server

import (
	"testing"

	"google.golang.org/grpc"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	callCount int
	services  []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.callCount++
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices_NilDependencies(t *testing.T) {
	mockReg := &mockServiceRegistrar{}

	// Should not panic with nil dependencies
	RegisterServices(mockReg, Deps{})

	if mockReg.callCount != 1 {
		t.Fatalf("RegisterService called %d times, want 1", mockReg.callCount)
	}
	if mockReg.services[0] != "grpc.health.v1.Health" {
		t.Errorf("registered %q, want grpc.health.v1.Health", mockReg.services[0])
	}
}

func TestNewGRPCServer_RegistersHealth(t *testing.T) {
	s := NewGRPCServer()
	defer s.Stop()
	RegisterServices(s, Deps{})

	info := s.GetServiceInfo()
	if _, ok := info["grpc.health.v1.Health"]; !ok {
		t.Errorf("service info = %v, want grpc.health.v1.Health", info)
	}
}
