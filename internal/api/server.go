package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"

	"turnero/internal/config"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer exposes the partner availability service together with the
// standard health service.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	auth     *AuthInterceptor
	listener net.Listener
	log      zerolog.Logger
}

func NewGRPCServer(cfg *config.APIConfig, availability AvailabilityServer, logger *zerolog.Logger) (*GRPCServer, error) {
	s, err := newGRPCServer(cfg, availability, logger)
	if err != nil {
		return nil, err
	}

	addr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	if s.listener, err = net.Listen("tcp", addr); err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	return s, nil
}

func newGRPCServer(cfg *config.APIConfig, availability AvailabilityServer, logger *zerolog.Logger) (*GRPCServer, error) {
	auth := NewAuthInterceptor(cfg)
	opts, err := serverOptions(cfg, auth, logger)
	if err != nil {
		return nil, err
	}

	s := &GRPCServer{
		auth:   auth,
		server: grpc.NewServer(opts...),
		health: health.NewServer(),
		log:    zerolog.Nop(),
	}
	if logger != nil {
		s.log = logger.With().Str("component", "grpc").Logger()
	}

	RegisterAvailabilityServer(s.server, availability)
	healthpb.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus(availabilityServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.GRPC.Reflection {
		reflection.Register(s.server)
	}
	return s, nil
}

func serverOptions(cfg *config.APIConfig, auth *AuthInterceptor, logger *zerolog.Logger) ([]grpc.ServerOption, error) {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			LoggingUnaryInterceptor(logger),
			auth.Unary(),
		),
	}
	if !cfg.GRPC.TLS.Enabled {
		return opts, nil
	}

	tlsCfg, err := buildTLSConfig(cfg.GRPC.TLS)
	if err != nil {
		return nil, err
	}
	return append(opts, grpc.Creds(credentials.NewTLS(tlsCfg))), nil
}

func buildTLSConfig(cfg config.APITLSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, errors.New("grpc tls: cert_file and key_file are required")
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("grpc tls: load keypair: %w", err)
	}

	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if !cfg.RequireClientCert {
		return tlsCfg, nil
	}

	pool, err := loadCertPool(cfg.ClientCAFile)
	if err != nil {
		return nil, fmt.Errorf("grpc tls: client ca: %w", err)
	}
	tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	tlsCfg.ClientCAs = pool
	return tlsCfg, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	if path == "" {
		return nil, errors.New("client_ca_file not set")
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in %s", path)
	}
	return pool, nil
}

func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SweepRateLimits forgets idle per-caller buckets.
func (s *GRPCServer) SweepRateLimits() int {
	return s.auth.limiter.sweep()
}

func (s *GRPCServer) Serve() error {
	return s.serve(s.listener)
}

func (s *GRPCServer) serve(lis net.Listener) error {
	s.log.Info().Str("addr", lis.Addr().String()).Msg("grpc listening")
	return s.server.Serve(lis)
}

// Shutdown marks the service NOT_SERVING, drains in-flight calls and
// forces the stop once ctx expires.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		s.server.GracefulStop()
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		s.log.Warn().Msg("grpc drain timed out, stopping")
		s.server.Stop()
	}
}
