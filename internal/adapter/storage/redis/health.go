package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	healthProbeKey = "health:probe"
	healthProbeTTL = 30 * time.Second
)

// HealthCheck implements ports.HealthChecker for Redis. The attempt ledger
// and the order cache both write, so a read-only replica counts as unhealthy.
type HealthCheck struct {
	client *goredis.Client
	now    func() time.Time
}

// NewHealthCheck creates a Redis health checker.
func NewHealthCheck(client *goredis.Client) *HealthCheck {
	return &HealthCheck{client: client, now: time.Now}
}

// Ping writes a short-lived probe key.
func (h *HealthCheck) Ping(ctx context.Context) error {
	if err := h.client.Set(ctx, healthProbeKey, h.now().UTC().Format(time.RFC3339), healthProbeTTL).Err(); err != nil {
		return fmt.Errorf("redis write probe: %w", err)
	}
	return nil
}

// Name returns the dependency name.
func (h *HealthCheck) Name() string {
	return "redis"
}
