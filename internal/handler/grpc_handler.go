package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name the gRPC health service reports on.
const ServiceName = "trade.contracts.v1.ContractService"

// Pinger is a dependency whose reachability gates serving status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter keeps the gRPC health service in step with the service's
// dependencies (database, NATS).
type HealthReporter struct {
	server   *health.Server
	deps     map[string]Pinger
	interval time.Duration
	logger   zerolog.Logger
}

// NewHealthReporter creates a reporter over the given dependencies.
func NewHealthReporter(server *health.Server, deps map[string]Pinger, interval time.Duration, logger zerolog.Logger) *HealthReporter {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HealthReporter{
		server:   server,
		deps:     deps,
		interval: interval,
		logger:   logger.With().Str("handler", "grpc_health").Logger(),
	}
}

// Check pings every dependency once and updates the serving status.
func (h *HealthReporter) Check(ctx context.Context) bool {
	healthy := true
	for name, dep := range h.deps {
		pingCtx, cancel := context.WithTimeout(ctx, h.interval/2)
		err := dep.Ping(pingCtx)
		cancel()
		if err != nil {
			healthy = false
			h.logger.Warn().Err(err).Str("dependency", name).Msg("Dependency unhealthy")
		}
	}

	st := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", st)
	h.server.SetServingStatus(ServiceName, st)
	return healthy
}

// Run checks on every tick until ctx is done, then marks the service as
// not serving.
func (h *HealthReporter) Run(ctx context.Context) {
	h.Check(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}
