package broker

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
)

// Dialer opens a connection to a broker.
type Dialer func(ctx context.Context, network, address string) (*kafka.Conn, error)

// HealthCheck implements ports.HealthChecker for Kafka.
type HealthCheck struct {
	brokers []string
	dial    Dialer
}

// NewHealthCheck creates a Kafka health checker over the given brokers.
func NewHealthCheck(brokers []string) *HealthCheck {
	return &HealthCheck{brokers: brokers, dial: kafka.DialContext}
}

// Ping succeeds if any broker accepts a connection.
func (h *HealthCheck) Ping(ctx context.Context) error {
	if len(h.brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	var errs []error
	for _, addr := range h.brokers {
		conn, err := h.dial(ctx, "tcp", addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return conn.Close()
	}
	return errors.Join(errs...)
}

// Name returns the dependency name.
func (h *HealthCheck) Name() string {
	return "kafka"
}
