// Package grpcserver exposes model readiness through the standard gRPC health protocol.
package grpcserver

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/fer-service/internal/inference"
	"github.com/example/fer-service/internal/logging"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "fer.Classifier"

// Server serves grpc.health.v1.Health, NOT_SERVING until the model is ready.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// New builds a health server with every service marked NOT_SERVING.
func New(logger *zap.Logger) *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		logger: logger.Named("grpc_health"),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.SetReady(false)
	return s
}

// SetReady flips the serving status of both the overall and the classifier service.
func (s *Server) SetReady(ready bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Track sets the status from the loader's final state once loading settles.
func (s *Server) Track(ctx context.Context, loader *inference.Loader) {
	go func() {
		select {
		case <-loader.Done():
			s.SetReady(loader.Ready())
			if err := loader.Err(); err != nil {
				s.logger.Warn("model unavailable, health stays NOT_SERVING", logging.ErrorFields(err)...)
				return
			}
			s.logger.Info("model state published", zap.String("state", loader.State().String()))
		case <-ctx.Done():
		}
	}()
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health service listening", zap.String("addr", lis.Addr().String()))
	err := s.grpc.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return logging.NewOperationError("grpcserver.serve", err)
}

// Drain reports NOT_SERVING for every service while still answering checks, so
// balancers stop routing before the HTTP listener closes. Later SetReady calls are ignored.
func (s *Server) Drain() {
	s.health.Shutdown()
}

// Stop drains and then stops the server once in-flight calls finish.
func (s *Server) Stop() {
	s.Drain()
	s.grpc.GracefulStop()
}
