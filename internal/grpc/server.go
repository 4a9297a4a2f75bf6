package grpc

import (
	"context"
	"net"
	"time"

	"github.com/fjod/plancart/pkg/logger"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for the cart API.
const ServiceName = "plancart.CartService"

// Check tests one dependency. A failing check marks the service NOT_SERVING.
type Check func(ctx context.Context) error

// Server exposes the standard gRPC health protocol for the process.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	checks     map[string]Check
	logger     zerolog.Logger
}

func NewServer(checks map[string]Check, log zerolog.Logger) *Server {
	log = log.With().Str("component", "grpc").Logger()
	s := &Server{
		health: health.NewServer(),
		checks: checks,
		logger: log,
	}
	s.grpcServer = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(s.logUnary),
	)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// CheckAll runs every check once and publishes the combined status.
func (s *Server) CheckAll(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Watch checks dependencies every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	if len(s.checks) == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		s.CheckAll(checkCtx)
		cancel()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown reports NOT_SERVING so balancers drain, then stops gracefully.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

func (s *Server) logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	ev := logger.FromContext(ctx, s.logger).Debug()
	if err != nil {
		ev = logger.FromContext(ctx, s.logger).Warn().Err(err)
	}
	ev.Str("method", info.FullMethod).Dur("elapsed", time.Since(start)).Msg("gRPC call")
	return resp, err
}
