package grpc

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/bibbank/realizer/pkg/auth"
	"github.com/bibbank/realizer/pkg/tlsutil"
)

// ServerConfig holds the optional transport settings of the gRPC server.
type ServerConfig struct {
	TLSCertFile string
	TLSKeyFile  string
	Reflection  bool
}

// Server wraps a gRPC server with the realizer handler registered.
type Server struct {
	gs      *grpc.Server
	health  *health.Server
	handler *RealizerHandler
	logger  *slog.Logger
}

// methodRoles lists the roles allowed to call each RealizerService method.
// Every method writes to the ledger, so auditors are refused.
var methodRoles = map[string][]string{
	FullMethod("CalculateRealizedResults"): {auth.RoleOperator, auth.RoleSystem},
	FullMethod("CalculateBook"):            {auth.RoleOperator, auth.RoleSystem},
	FullMethod("ResetRealizedResults"):     {auth.RoleOperator, auth.RoleSystem},
	FullMethod("DeleteTradeResults"):       {auth.RoleOperator, auth.RoleSystem},
	FullMethod("FlagRebuild"):              {auth.RoleOperator, auth.RoleSystem},
}

// NewServer creates and configures the gRPC server. A nil jwtService leaves
// the service unauthenticated.
func NewServer(cfg ServerConfig, handler *RealizerHandler, logger *slog.Logger, jwtService *auth.JWTService) *Server {
	var serverOpts []grpc.ServerOption

	if jwtService != nil {
		// Add auth interceptor, skipping health check methods.
		authInterceptor := auth.UnaryAuthInterceptor(jwtService, []string{
			"/grpc.health.v1.Health/Check",
			"/grpc.health.v1.Health/Watch",
		}, methodRoles)
		serverOpts = append(serverOpts, grpc.UnaryInterceptor(authInterceptor))
	} else {
		logger.Warn("gRPC authentication disabled")
	}

	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		creds, err := tlsutil.ServerCredentials(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			logger.Error("failed to load TLS credentials, starting without TLS", "error", err)
		} else {
			serverOpts = append(serverOpts, grpc.Creds(creds))
			logger.Info("gRPC TLS enabled", "cert", cfg.TLSCertFile, "key", cfg.TLSKeyFile)
		}
	} else {
		logger.Info("gRPC TLS not configured, running without TLS")
	}

	gs := grpc.NewServer(serverOpts...)

	// Register gRPC health check.
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(gs, healthSrv)
	healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	if cfg.Reflection {
		reflection.Register(gs)
	}

	RegisterRealizerServiceServer(gs, handler)

	return &Server{
		gs:      gs,
		health:  healthSrv,
		handler: handler,
		logger:  logger,
	}
}

// Serve starts the gRPC server on the specified address.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.ServeListener(lis)
}

// ServeListener serves on an existing listener.
func (s *Server) ServeListener(lis net.Listener) error {
	s.logger.Info("gRPC server listening", "addr", lis.Addr().String())
	return s.gs.Serve(lis)
}

// GracefulStop marks the service as not serving and stops the server gracefully.
func (s *Server) GracefulStop() {
	s.logger.Info("gRPC server shutting down")
	s.health.Shutdown()
	s.gs.GracefulStop()
}
