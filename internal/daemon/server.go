package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthsvc "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/workdir"
)

// ServiceRelay is the named health service tracking live transport
// connectivity. The empty service name reports overall daemon liveness.
const ServiceRelay = "relay"

// Server exposes the daemon's health over a Unix domain socket so relayctl
// can query it without touching the relay database.
type Server struct {
	grpcServer *grpc.Server
	health     *healthsvc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates the health server bound to the data dir's socket.
func NewServer(p Params, logger *zap.Logger) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = workdir.SocketPath(p.DataDir)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	// Set socket permissions to 0600.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	hs := healthsvc.NewServer()
	hs.SetServingStatus(ServiceRelay, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &Server{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// SetRelayServing flips the relay service's reported health.
func (s *Server) SetRelayServing(up bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceRelay, st)
}

// Start begins serving health checks. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("health server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(_ context.Context) {
	s.logger.Info("health server stopping")
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}
