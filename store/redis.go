package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Spyderisk/system-modeller-sub004/threat"
	"github.com/Spyderisk/system-modeller-sub004/validator"
)

const redisPrefix = "riskengine"

// Redis stores assessments as JSON strings. Each system model has a sorted
// set of its assessment IDs scored by creation time.
//
// Keys:
//   - riskengine:assessment:<id> - encoded assessment
//   - riskengine:assessment:<id>:system - owning system model ID
//   - riskengine:system:<sid>:assessments - sorted set of assessment IDs
//   - riskengine:system:<sid>:controls - encoded control set states
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ Store = (*Redis)(nil)

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithTTL expires stored assessments after d. Zero keeps them forever.
func WithTTL(d time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = d }
}

// NewRedis creates a store on an existing client. Close closes the client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SaveAssessment implements Store.
func (r *Redis) SaveAssessment(ctx context.Context, systemModelID string, a *validator.Assessment) error {
	rec, err := encodeAssessment(systemModelID, a)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, assessmentKey(rec.ID), rec.Payload, r.ttl)
		pipe.Set(ctx, assessmentKey(rec.ID, "system"), rec.SystemModelID, r.ttl)
		pipe.ZAdd(ctx, systemKey(rec.SystemModelID, "assessments"), redis.Z{
			Score:  float64(rec.CreatedAt.UnixNano()),
			Member: rec.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: save assessment %s: %v", ErrStorageFailed, rec.ID, err)
	}
	return nil
}

// LoadAssessment implements Store.
func (r *Redis) LoadAssessment(ctx context.Context, id string) (*validator.Assessment, error) {
	data, err := r.client.Get(ctx, assessmentKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("assessment %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: load assessment %s: %v", ErrStorageFailed, id, err)
	}
	return decodeAssessment(data)
}

// LatestAssessment implements Store. IDs whose payload has expired are
// pruned from the index as they are found.
func (r *Redis) LatestAssessment(ctx context.Context, systemModelID string) (*validator.Assessment, error) {
	index := systemKey(systemModelID, "assessments")
	ids, err := r.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list assessments of %s: %v", ErrStorageFailed, systemModelID, err)
	}
	for _, id := range ids {
		a, err := r.LoadAssessment(ctx, id)
		if errors.Is(err, ErrNotFound) {
			r.client.ZRem(ctx, index, id)
			continue
		}
		return a, err
	}
	return nil, fmt.Errorf("system model %s: %w", systemModelID, ErrNotFound)
}

// DeleteAssessment implements Store.
func (r *Redis) DeleteAssessment(ctx context.Context, id string) error {
	sid, err := r.client.Get(ctx, assessmentKey(id, "system")).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: delete assessment %s: %v", ErrStorageFailed, id, err)
	}
	n, err := r.client.Del(ctx, assessmentKey(id), assessmentKey(id, "system")).Result()
	if err != nil {
		return fmt.Errorf("%w: delete assessment %s: %v", ErrStorageFailed, id, err)
	}
	if sid != "" {
		r.client.ZRem(ctx, systemKey(sid, "assessments"), id)
	}
	if n == 0 {
		return fmt.Errorf("assessment %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveControlSetStates implements Store.
func (r *Redis) SaveControlSetStates(ctx context.Context, systemModelID string, states []threat.ControlSetState) error {
	data, err := encodeStates(systemModelID, states)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, systemKey(systemModelID, "controls"), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: save control set states of %s: %v", ErrStorageFailed, systemModelID, err)
	}
	return nil
}

// LoadControlSetStates implements Store.
func (r *Redis) LoadControlSetStates(ctx context.Context, systemModelID string) ([]threat.ControlSetState, error) {
	data, err := r.client.Get(ctx, systemKey(systemModelID, "controls")).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []threat.ControlSetState{}, nil
		}
		return nil, fmt.Errorf("%w: load control set states of %s: %v", ErrStorageFailed, systemModelID, err)
	}
	return decodeStates(data)
}

// Close implements Store.
func (r *Redis) Close() error {
	return r.client.Close()
}

func assessmentKey(id string, suffix ...string) string {
	return strings.Join(append([]string{redisPrefix, "assessment", id}, suffix...), ":")
}

func systemKey(systemModelID, suffix string) string {
	return strings.Join([]string{redisPrefix, "system", systemModelID, suffix}, ":")
}
