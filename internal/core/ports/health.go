package ports

import "context"

// HealthChecker checks an external dependency for the /health endpoint.
type HealthChecker interface {
	// Ping verifies connectivity. Returns nil if healthy.
	Ping(ctx context.Context) error
	// Name returns the dependency name ("postgresql", "redis", "kafka").
	Name() string
}
