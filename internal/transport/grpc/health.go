package grpc

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RegisterHealth exposes the standard health service with the appointments
// service marked as serving. Call Shutdown on the returned server to flip
// every status to NOT_SERVING before draining.
func RegisterHealth(s *grpc.Server) *health.Server {
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	return h
}
