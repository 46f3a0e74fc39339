package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ArenaServiceName is the health-checked service name.
const ArenaServiceName = "classquest.arena"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Health(ctx context.Context, timeout time.Duration) error
}

// HealthService serves grpc.health.v1 and reports SERVING while the pinger
// answers.
type HealthService struct {
	addr     string
	interval time.Duration
	pinger   Pinger
	logger   *zap.Logger

	grpcServer *grpc.Server
	health     *health.Server

	stopOnce sync.Once
	done     chan struct{}
}

// NewHealthService creates a HealthService listening on addr.
//
// Precondition: interval > 0; pinger and logger must be non-nil.
func NewHealthService(addr string, interval time.Duration, pinger Pinger, logger *zap.Logger) *HealthService {
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(ArenaServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthService{
		addr:       addr,
		interval:   interval,
		pinger:     pinger,
		logger:     logger,
		grpcServer: gs,
		health:     hs,
		done:       make(chan struct{}),
	}
}

// Check pings once and publishes the resulting status.
func (h *HealthService) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := h.pinger.Health(ctx, h.interval/2+time.Millisecond); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus(ArenaServiceName, status)
	h.health.SetServingStatus("", status)
	return status
}

// Server returns the underlying gRPC server.
func (h *HealthService) Server() *grpc.Server { return h.grpcServer }

// Start implements Service.
func (h *HealthService) Start() error {
	lis, err := net.Listen("tcp", h.addr)
	if err != nil {
		return err
	}
	go h.poll()
	h.logger.Info("grpc health listening", zap.String("addr", h.addr))
	if err := h.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (h *HealthService) poll() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	h.Check(context.Background())
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.Check(context.Background())
		}
	}
}

// Stop implements Service.
func (h *HealthService) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.health.Shutdown()
		h.grpcServer.GracefulStop()
	})
}
