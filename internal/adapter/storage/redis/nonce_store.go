package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// NonceStore implements ports.NonceStore. A nonce key holds the time it was
// consumed and lives as long as the state it belongs to could still verify.
type NonceStore struct {
	client *goredis.Client
	now    func() time.Time
}

// NewNonceStore creates a new Redis-backed nonce store.
func NewNonceStore(client *goredis.Client) *NonceStore {
	return &NonceStore{client: client, now: time.Now}
}

func nonceKey(scope, nonce string) string {
	return "nonce:" + scope + ":" + nonce
}

// Consume records the nonce with SET NX; only the first caller wins.
func (s *NonceStore) Consume(ctx context.Context, scope string, nonce string, ttl time.Duration) (bool, error) {
	if nonce == "" {
		return false, errors.New("empty nonce")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("nonce ttl must be positive, got %s", ttl)
	}

	consumedAt := s.now().UTC().Format(time.RFC3339Nano)
	err := s.client.SetArgs(ctx, nonceKey(scope, nonce), consumedAt, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Err()
	switch {
	case errors.Is(err, goredis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("redis nonce consume: %w", err)
	}
	return true, nil
}
