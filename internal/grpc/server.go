package grpc

import (
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"chatline/internal/observability"
)

// Server exposes the standard health service for orchestrators and load
// balancers. Status starts as NOT_SERVING until SetServing(true).
type Server struct {
	srv     *grpclib.Server
	health  *health.Server
	service string
}

// NewServer builds an instrumented gRPC server with the health service
// registered for "" and for service.
func NewServer(service string) *Server {
	srv := grpclib.NewServer(
		grpclib.StatsHandler(otelgrpc.NewServerHandler()),
		grpclib.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{srv: srv, health: hs, service: service}
	s.SetServing(false)
	return s
}

// SetServing flips the reported status of every registered name.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.service, status)
}

// Serve blocks accepting connections on lis.
func (s *Server) Serve(lis net.Listener) error {
	return s.srv.Serve(lis)
}

// GracefulStop marks the service NOT_SERVING and waits for in-flight RPCs.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
