package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"order-intake-gateway/config"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return s, client
}

func TestNewClient(t *testing.T) {
	s := miniredis.RunT(t)
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)

	client, err := NewClient(context.Background(), config.RedisConfig{Host: s.Host(), Port: port}, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	hc := NewHealthCheck(client)
	assert.Equal(t, "redis", hc.Name())
	assert.NoError(t, hc.Ping(context.Background()))
	assert.True(t, s.Exists(healthProbeKey))
	assert.Equal(t, healthProbeTTL, s.TTL(healthProbeKey))

	s.Close()
	assert.Error(t, hc.Ping(context.Background()))
}

func TestNewClient_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	port, _ := strconv.Atoi(s.Port())
	s.Close()

	_, err := NewClient(context.Background(), config.RedisConfig{Host: "127.0.0.1", Port: port}, zerolog.Nop())
	assert.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	opts := clientOptions(config.RedisConfig{
		Host:         "cache.internal",
		Port:         6380,
		DB:           2,
		PoolSize:     40,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "order-intake-gateway", opts.ClientName)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 40, opts.PoolSize)
	assert.Equal(t, 3*time.Second, opts.DialTimeout)
	assert.Equal(t, time.Second, opts.ReadTimeout)
}
