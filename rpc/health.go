package rpc

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/tictactoe/logger"
)

// HealthService is the service name reported alongside the overall status.
const HealthService = "tictactoe.GameServer"

// HealthServer serves the standard gRPC health protocol.
type HealthServer struct {
	listener net.Listener
	server   *grpc.Server
	health   *health.Server
}

func NewHealthServer(addr string) (*HealthServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	h := &HealthServer{listener: listener, server: srv, health: hs}
	h.SetServing(false)
	return h, nil
}

func (h *HealthServer) Addr() string {
	return h.listener.Addr().String()
}

// SetServing flips both the overall and the named service status.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(HealthService, status)
}

func (h *HealthServer) Start() {
	logger.Log.Infof("gRPC health server listening on %s", h.Addr())
	if err := h.server.Serve(h.listener); err != nil && err != grpc.ErrServerStopped {
		logger.Log.Errorf("gRPC health server error: %v", err)
	}
}

// Stop reports NOT_SERVING to watchers and then stops the server.
func (h *HealthServer) Stop() {
	logger.Log.Info("Stopping gRPC health server.")
	h.health.Shutdown()
	h.server.GracefulStop()
}
