package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck_NoBrokers(t *testing.T) {
	h := NewHealthCheck(nil)
	assert.Equal(t, "kafka", h.Name())
	assert.Error(t, h.Ping(context.Background()))
}

func TestHealthCheck_AllBrokersDown(t *testing.T) {
	var dialed []string
	h := NewHealthCheck([]string{"b1:9092", "b2:9092"})
	h.dial = func(_ context.Context, _, addr string) (*kafka.Conn, error) {
		dialed = append(dialed, addr)
		return nil, errors.New("connection refused")
	}

	err := h.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, dialed)
}
