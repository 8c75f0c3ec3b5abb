// Package grpc exposes the standard grpc.health.v1 service. Readiness
// follows a periodic ping of the backing database.
package grpc

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall "" entry.
const ServiceName = "gatekeeper"

const pingTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type GRPCServer struct {
	address  string
	logger   logging.Logger
	pinger   Pinger
	interval time.Duration
	health   *health.Server
}

// NewGRPCServer returns a health server on address. A nil pinger reports
// SERVING for as long as the process runs.
func NewGRPCServer(a string, l logging.Logger, p Pinger, interval time.Duration) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		pinger:   p,
		interval: interval,
		health:   health.NewServer(),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	// creates gRPC-server
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.recoveryInterceptor, s.loggingInterceptor))

	// registers service
	grpc_health_v1.RegisterHealthServer(srv, s.health)

	s.check(ctx)

	go s.monitor(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections; a stop that beats Serve is still a clean stop
	if err := srv.Serve(listen); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}

	return nil
}

func (s *GRPCServer) monitor(ctx context.Context) {
	if s.pinger == nil || s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

// check pings the database once and publishes the result.
func (s *GRPCServer) check(ctx context.Context) {
	status := grpc_health_v1.HealthCheckResponse_SERVING

	if s.pinger != nil {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := s.pinger.PingContext(pctx)
		cancel()

		if err != nil {
			s.logger.Warn(ctx, "database ping failed", "error", err)
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
