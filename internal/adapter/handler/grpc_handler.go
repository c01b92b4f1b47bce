package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Service names reported by the health server.
const (
	HealthOrderPlacement = "orderpipeline.OrderPlacement"
	HealthConfirmation   = "orderpipeline.ConfirmationDispatcher"
)

const probeTimeout = 2 * time.Second

// Probe checks one backing dependency.
type Probe func(ctx context.Context) error

// GRPCHandler serves the standard gRPC health protocol. Each service's status
// follows its probes.
type GRPCHandler struct {
	health *health.Server
	probes map[string][]Probe
	logger *zap.Logger
}

func NewGRPCHandler(probes map[string][]Probe, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{health: health.NewServer(), probes: probes, logger: logger}
}

func (h *GRPCHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
	reflection.Register(s)
}

// Watch re-runs the probes every interval until ctx is done, then marks every
// service NOT_SERVING.
func (h *GRPCHandler) Watch(ctx context.Context, interval time.Duration) {
	h.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

// Refresh runs all probes once. The overall ("") status is SERVING only when every service is.
func (h *GRPCHandler) Refresh(ctx context.Context) {
	overall := healthpb.HealthCheckResponse_SERVING
	for name, probes := range h.probes {
		status := healthpb.HealthCheckResponse_SERVING
		for _, probe := range probes {
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			err := probe(pctx)
			cancel()
			if err != nil {
				h.logger.Warn("health_probe_failed", zap.String("service", name), zap.Error(err))
				status = healthpb.HealthCheckResponse_NOT_SERVING
				break
			}
		}
		h.health.SetServingStatus(name, status)
		if status != healthpb.HealthCheckResponse_SERVING {
			overall = status
		}
	}
	h.health.SetServingStatus("", overall)
}
