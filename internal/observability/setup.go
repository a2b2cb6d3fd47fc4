package observability

import (
	"context"

	"github.com/honeynil/p2p-marketplace/internal/config"
	"github.com/honeynil/p2p-marketplace/internal/infrastructure/observability"
)

// Setup initialises logging, metrics and tracing and returns the tracer
// shutdown hook.
func Setup(serviceName string, cfg *config.Config) func(context.Context) error {
	observability.InitLogger(cfg.LogLevel)
	observability.InitMetrics()
	return observability.InitTracing(serviceName, cfg.OTLPEndpoint)
}
