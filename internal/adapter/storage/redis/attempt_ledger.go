package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"order-intake-gateway/internal/core/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
	searchBatch        = 100
	updateRetries      = 3
)

// ErrAttemptNotFound is returned when writing to an unknown or expired attempt.
var ErrAttemptNotFound = errors.New("attempt not found")

// AttemptLedger implements ports.AttemptLedger on Redis.
//
// Each attempt is a hash (attempt:{id}) holding the JSON document and its
// fixed expiry, plus a list of steps (attempt:{id}:steps). Both keys expire
// at the attempt's expires_at; the deadline is set once and later writes
// never move it. Sorted sets per tenant and per connection index attempts by
// creation time for the history search.
type AttemptLedger struct {
	client    *goredis.Client
	retention time.Duration
	now       func() time.Time
}

// NewAttemptLedger creates a Redis-backed attempt ledger.
func NewAttemptLedger(client *goredis.Client, retention time.Duration) *AttemptLedger {
	return &AttemptLedger{
		client:    client,
		retention: retention,
		now:       time.Now,
	}
}

func attemptKey(id uuid.UUID) string { return "attempt:" + id.String() }
func stepsKey(id uuid.UUID) string   { return "attempt:" + id.String() + ":steps" }

func tenantIndexKey(id uuid.UUID) string     { return "attempts:tenant:" + id.String() }
func connectionIndexKey(id uuid.UUID) string { return "attempts:connection:" + id.String() }
func platformIndexKey(tenantID uuid.UUID, p domain.PlatformType) string {
	return "attempts:tenant:" + tenantID.String() + ":platform:" + string(p)
}

// Begin stores a new attempt and fixes its expiry.
func (l *AttemptLedger) Begin(ctx context.Context, a *domain.Attempt) error {
	doc, err := encodeAttempt(a)
	if err != nil {
		return err
	}
	key := attemptKey(a.ID)

	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, key, "doc", doc, "expires_at", a.ExpiresAt.Unix())
	pipe.ExpireAt(ctx, key, a.ExpiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis attempt begin: %w", err)
	}
	return nil
}

// AppendStep adds a step in pipeline order.
func (l *AttemptLedger) AppendStep(ctx context.Context, id uuid.UUID, step domain.AttemptStep) error {
	exp, err := l.client.HGet(ctx, attemptKey(id), "expires_at").Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return fmt.Errorf("append step to %s: %w", id, ErrAttemptNotFound)
		}
		return fmt.Errorf("redis attempt expiry: %w", err)
	}
	b, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("encode step: %w", err)
	}

	key := stepsKey(id)
	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, key, b)
	pipe.ExpireAt(ctx, key, time.Unix(exp, 0))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis attempt append step: %w", err)
	}
	return nil
}

// Attach merges fields learned mid-pipeline. The attempt becomes searchable
// once its tenant is known.
func (l *AttemptLedger) Attach(ctx context.Context, id uuid.UUID, patch domain.AttemptPatch) error {
	a, err := l.update(ctx, id, func(a *domain.Attempt) {
		if patch.ConnectionID != nil {
			a.ConnectionID = patch.ConnectionID
		}
		if patch.TenantID != nil {
			a.TenantID = patch.TenantID
		}
		if patch.State != "" {
			a.State = patch.State
		}
		if patch.Signature != nil {
			a.Signature = patch.Signature
		}
		if patch.OrderSummary != nil {
			a.OrderSummary = patch.OrderSummary
		}
	})
	if err != nil {
		return err
	}
	if patch.TenantID != nil {
		return l.index(ctx, a)
	}
	return nil
}

// Complete records the terminal outcome.
func (l *AttemptLedger) Complete(ctx context.Context, id uuid.UUID, o domain.AttemptOutcome) error {
	_, err := l.update(ctx, id, func(a *domain.Attempt) {
		a.Status = o.Status
		a.State = o.State
		a.Detail = o.Detail
		a.MatchedRule = o.MatchedRule
		a.ResolvedOrderID = o.ResolvedOrderID
		resp := o.Response
		a.Response = &resp
		at := o.CompletedAt
		a.CompletedAt = &at
		a.ProcessingMS = o.ProcessingMS
	})
	return err
}

// Get returns nil, nil for unknown or expired attempts.
func (l *AttemptLedger) Get(ctx context.Context, id uuid.UUID) (*domain.Attempt, error) {
	pipe := l.client.Pipeline()
	docCmd := pipe.HGet(ctx, attemptKey(id), "doc")
	stepsCmd := pipe.LRange(ctx, stepsKey(id), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("redis attempt get: %w", err)
	}

	raw, err := docCmd.Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis attempt get: %w", err)
	}
	a, err := decodeAttempt(raw)
	if err != nil {
		return nil, err
	}

	for _, s := range stepsCmd.Val() {
		var step domain.AttemptStep
		if err := json.Unmarshal([]byte(s), &step); err != nil {
			return nil, fmt.Errorf("decode step: %w", err)
		}
		a.Steps = append(a.Steps, step)
	}
	return a, nil
}

// Search lists a tenant's unexpired attempts, newest first. Steps are not loaded.
func (l *AttemptLedger) Search(ctx context.Context, f domain.AttemptFilter) ([]domain.Attempt, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	idx := tenantIndexKey(f.TenantID)
	switch {
	case f.ConnectionID != nil:
		idx = connectionIndexKey(*f.ConnectionID)
	case f.Platform != nil:
		idx = platformIndexKey(f.TenantID, *f.Platform)
	}
	minScore := strconv.FormatInt(l.now().Add(-l.retention).UnixMilli(), 10)

	out := make([]domain.Attempt, 0, limit)
	var expired []any
	for offset := int64(0); len(out) < limit; offset += searchBatch {
		ids, err := l.client.ZRevRangeByScore(ctx, idx, &goredis.ZRangeBy{
			Min:    minScore,
			Max:    "+inf",
			Offset: offset,
			Count:  searchBatch,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("redis attempt search: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		pipe := l.client.Pipeline()
		cmds := make([]*goredis.StringCmd, len(ids))
		for i, id := range ids {
			cmds[i] = pipe.HGet(ctx, "attempt:"+id, "doc")
		}
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("redis attempt search: %w", err)
		}

		for i, cmd := range cmds {
			raw, err := cmd.Bytes()
			if err != nil {
				expired = append(expired, ids[i])
				continue
			}
			a, err := decodeAttempt(raw)
			if err != nil {
				return nil, err
			}
			if a.TenantID == nil || *a.TenantID != f.TenantID {
				continue
			}
			if f.Status != nil && a.Status != *f.Status {
				continue
			}
			if f.Platform != nil && a.Platform != *f.Platform {
				continue
			}
			out = append(out, *a)
			if len(out) == limit {
				break
			}
		}
		if len(ids) < searchBatch {
			break
		}
	}

	if len(expired) > 0 {
		if err := l.client.ZRem(ctx, idx, expired...).Err(); err != nil {
			return nil, fmt.Errorf("redis attempt index trim: %w", err)
		}
	}
	return out, nil
}

// update applies fn to the stored document under WATCH. The stored deadline
// is re-applied in the same transaction, so a hash that expired mid-update is
// never recreated without a TTL.
func (l *AttemptLedger) update(ctx context.Context, id uuid.UUID, fn func(*domain.Attempt)) (*domain.Attempt, error) {
	key := attemptKey(id)
	var a *domain.Attempt

	txf := func(tx *goredis.Tx) error {
		vals, err := tx.HMGet(ctx, key, "doc", "expires_at").Result()
		if err != nil {
			return fmt.Errorf("redis attempt read: %w", err)
		}
		raw, ok := vals[0].(string)
		if !ok {
			return fmt.Errorf("update %s: %w", id, ErrAttemptNotFound)
		}
		expStr, _ := vals[1].(string)
		exp, err := strconv.ParseInt(expStr, 10, 64)
		if err != nil {
			return fmt.Errorf("update %s: bad expires_at %q", id, expStr)
		}

		a, err = decodeAttempt([]byte(raw))
		if err != nil {
			return err
		}
		fn(a)
		doc, err := encodeAttempt(a)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, "doc", doc)
			pipe.ExpireAt(ctx, key, time.Unix(exp, 0))
			return nil
		})
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := l.client.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, fmt.Errorf("update %s: concurrent modification", id)
}

func (l *AttemptLedger) index(ctx context.Context, a *domain.Attempt) error {
	member := goredis.Z{Score: float64(a.CreatedAt.UnixMilli()), Member: a.ID.String()}
	cutoff := strconv.FormatInt(l.now().Add(-l.retention).UnixMilli(), 10)

	keys := []string{tenantIndexKey(*a.TenantID), platformIndexKey(*a.TenantID, a.Platform)}
	if a.ConnectionID != nil {
		keys = append(keys, connectionIndexKey(*a.ConnectionID))
	}

	pipe := l.client.TxPipeline()
	for _, k := range keys {
		pipe.ZAdd(ctx, k, member)
		pipe.ZRemRangeByScore(ctx, k, "-inf", "("+cutoff)
		pipe.Expire(ctx, k, l.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis attempt index: %w", err)
	}
	return nil
}

func encodeAttempt(a *domain.Attempt) ([]byte, error) {
	cp := *a
	cp.Steps = nil
	b, err := json.Marshal(&cp)
	if err != nil {
		return nil, fmt.Errorf("encode attempt: %w", err)
	}
	return b, nil
}

func decodeAttempt(raw []byte) (*domain.Attempt, error) {
	a := &domain.Attempt{}
	if err := json.Unmarshal(raw, a); err != nil {
		return nil, fmt.Errorf("decode attempt: %w", err)
	}
	return a, nil
}
