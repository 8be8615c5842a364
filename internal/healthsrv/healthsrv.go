// Package healthsrv exposes the tracker's liveness over the standard gRPC
// health-checking protocol, so orchestrators (Marathon, Kubernetes probes
// fronted by grpc-health-probe) can watch session state without scraping
// metrics.
package healthsrv

import (
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health-checked service identity reported to clients
// that ask about it by name rather than the empty overall-server check.
const ServiceName = "mesos_tracker.Tracker"

// Server wraps grpc.Server plus the standard health.Server, and gives
// callers a single SetServing toggle driven by connection/session state
// rather than requiring them to touch the health package directly.
type Server struct {
	log    *zap.Logger
	grpc   *grpc.Server
	health *health.Server
	addr   string
}

// New constructs a Server listening on addr (host:port). The server starts
// in NOT_SERVING for both the empty service name and ServiceName until
// SetServing(true) is called.
func New(log *zap.Logger, addr string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		log:    log.Named("healthsrv"),
		grpc:   gs,
		health: hs,
		addr:   addr,
	}
}

// SetServing flips both the overall and named service status. Called by
// main as the connection manager reports a live SUBSCRIBE session versus a
// disconnected one.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// ListenAndServe blocks serving gRPC health checks until Stop is called. It
// returns nil on a clean Stop, or the listener error otherwise.
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.log.Info("health server listening", zap.String("addr", s.addr))
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server, unblocking ListenAndServe.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
