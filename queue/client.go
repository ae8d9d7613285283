package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefix shared by every key the queue writes.
const keyPrefix = "riskengine"

// JobsQueue is the list validation jobs are pushed to.
var JobsQueue = formatKeyName(keyPrefix, "jobs")

// HeartbeatTTL is how long a worker counts as alive after its last heartbeat.
const HeartbeatTTL = 30 * time.Second

// ResultChannel returns the pub/sub channel a job's result is published on.
func ResultChannel(jobID string) string {
	return formatKeyName(keyPrefix, "results", jobID)
}

// Client defines the interface for interacting with the Redis job queue.
type Client interface {
	// Push adds a job to the end of a queue (LPUSH).
	Push(ctx context.Context, queue string, job Job) error

	// Pop removes and returns a job from the front of a queue (BRPOP).
	// It waits at most the configured poll timeout and returns nil, nil
	// when no job arrived.
	Pop(ctx context.Context, queue string) (*Job, error)

	// Publish sends a result to a pub/sub channel.
	Publish(ctx context.Context, channel string, result Result) error

	// Subscribe creates a subscription to a pub/sub channel.
	// Returns a channel that receives results until ctx is done.
	Subscribe(ctx context.Context, channel string) (<-chan Result, error)

	// RegisterWorker writes worker metadata and adds it to the worker set.
	RegisterWorker(ctx context.Context, meta WorkerMeta) error

	// DeregisterWorker removes a worker's metadata and health key.
	DeregisterWorker(ctx context.Context, workerID string) error

	// ListWorkers returns metadata for all registered workers.
	ListWorkers(ctx context.Context) ([]WorkerMeta, error)

	// Heartbeat refreshes the health key of a worker with HeartbeatTTL.
	Heartbeat(ctx context.Context, workerID string) error

	// IsAlive reports whether the worker's health key is present.
	IsAlive(ctx context.Context, workerID string) (bool, error)

	// GetWorkerCount returns the number of running workers.
	GetWorkerCount(ctx context.Context) (int, error)

	// IncrementWorkerCount increments the active worker count.
	IncrementWorkerCount(ctx context.Context) error

	// DecrementWorkerCount decrements the active worker count.
	DecrementWorkerCount(ctx context.Context) error

	// Close closes the Redis connection.
	Close() error
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration

	// PollTimeout is how long Pop waits for a job before returning nil.
	PollTimeout time.Duration
}

// RedisClient implements the Client interface using go-redis/v9.
type RedisClient struct {
	client      *redis.Client
	pollTimeout time.Duration
}

// NewRedisClient creates a new Redis queue client with the given options.
func NewRedisClient(opts RedisOptions) (*RedisClient, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}

	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}

	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	if opts.PollTimeout == 0 {
		opts.PollTimeout = time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client, pollTimeout: opts.PollTimeout}, nil
}

// Push adds a job to the end of a queue.
func (c *RedisClient) Push(ctx context.Context, queue string, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := c.client.LPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("failed to push to queue %s: %w", queue, err)
	}

	return nil
}

// Pop removes and returns a job from the front of a queue.
func (c *RedisClient) Pop(ctx context.Context, queue string) (*Job, error) {
	// BRPOP returns [queue_name, value], or redis.Nil on timeout
	result, err := c.client.BRPop(ctx, c.pollTimeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from queue %s: %w", queue, err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP result length: %d", len(result))
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// Publish sends a result to a pub/sub channel.
func (c *RedisClient) Publish(ctx context.Context, channel string, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}

	return nil
}

// Subscribe creates a subscription to a pub/sub channel.
func (c *RedisClient) Subscribe(ctx context.Context, channel string) (<-chan Result, error) {
	pubsub := c.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	resultChan := make(chan Result)

	go func() {
		defer close(resultChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var result Result
				if err := json.Unmarshal([]byte(msg.Payload), &result); err != nil {
					continue
				}

				select {
				case resultChan <- result:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return resultChan, nil
}

// RegisterWorker writes worker metadata and adds it to the worker set.
func (c *RedisClient) RegisterWorker(ctx context.Context, meta WorkerMeta) error {
	domainsJSON, err := json.Marshal(meta.Domains)
	if err != nil {
		return fmt.Errorf("failed to marshal domains: %w", err)
	}

	metaKey := workerKey(meta.ID, "meta")
	if err := c.client.HSet(ctx, metaKey,
		"id", meta.ID,
		"version", meta.Version,
		"domains", string(domainsJSON),
		"started_at", strconv.FormatInt(meta.StartedAt, 10),
	).Err(); err != nil {
		return fmt.Errorf("failed to set worker metadata: %w", err)
	}

	if err := c.client.SAdd(ctx, workersSet(), meta.ID).Err(); err != nil {
		return fmt.Errorf("failed to add worker to set: %w", err)
	}

	return nil
}

// DeregisterWorker removes a worker's metadata and health key.
func (c *RedisClient) DeregisterWorker(ctx context.Context, workerID string) error {
	if err := c.client.Del(ctx, workerKey(workerID, "meta"), workerKey(workerID, "health")).Err(); err != nil {
		return fmt.Errorf("failed to delete worker %s: %w", workerID, err)
	}
	if err := c.client.SRem(ctx, workersSet(), workerID).Err(); err != nil {
		return fmt.Errorf("failed to remove worker %s from set: %w", workerID, err)
	}
	return nil
}

// ListWorkers returns metadata for all registered workers, sorted by ID.
func (c *RedisClient) ListWorkers(ctx context.Context) ([]WorkerMeta, error) {
	ids, err := c.client.SMembers(ctx, workersSet()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get workers: %w", err)
	}
	sort.Strings(ids)

	workers := make([]WorkerMeta, 0, len(ids))
	for _, id := range ids {
		metaMap, err := c.client.HGetAll(ctx, workerKey(id, "meta")).Result()
		if err != nil || len(metaMap) == 0 {
			// Skip workers with missing metadata
			continue
		}

		meta := WorkerMeta{ID: metaMap["id"], Version: metaMap["version"]}
		if s, ok := metaMap["domains"]; ok {
			_ = json.Unmarshal([]byte(s), &meta.Domains)
		}
		if s, ok := metaMap["started_at"]; ok {
			meta.StartedAt, _ = strconv.ParseInt(s, 10, 64)
		}
		workers = append(workers, meta)
	}

	return workers, nil
}

// Heartbeat refreshes the health key of a worker.
func (c *RedisClient) Heartbeat(ctx context.Context, workerID string) error {
	if err := c.client.Set(ctx, workerKey(workerID, "health"), "ok", HeartbeatTTL).Err(); err != nil {
		return fmt.Errorf("failed to set heartbeat for worker %s: %w", workerID, err)
	}
	return nil
}

// IsAlive reports whether the worker's health key is present.
func (c *RedisClient) IsAlive(ctx context.Context, workerID string) (bool, error) {
	n, err := c.client.Exists(ctx, workerKey(workerID, "health")).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check heartbeat for worker %s: %w", workerID, err)
	}
	return n == 1, nil
}

// GetWorkerCount returns the number of running workers.
func (c *RedisClient) GetWorkerCount(ctx context.Context) (int, error) {
	countStr, err := c.client.Get(ctx, activeKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get worker count: %w", err)
	}

	count, err := strconv.Atoi(countStr)
	if err != nil {
		return 0, fmt.Errorf("invalid worker count value: %w", err)
	}

	return count, nil
}

// IncrementWorkerCount increments the active worker count.
func (c *RedisClient) IncrementWorkerCount(ctx context.Context) error {
	if err := c.client.Incr(ctx, activeKey()).Err(); err != nil {
		return fmt.Errorf("failed to increment worker count: %w", err)
	}
	return nil
}

// DecrementWorkerCount decrements the active worker count.
func (c *RedisClient) DecrementWorkerCount(ctx context.Context) error {
	if err := c.client.Decr(ctx, activeKey()).Err(); err != nil {
		return fmt.Errorf("failed to decrement worker count: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}

func workerKey(id, suffix string) string { return formatKeyName(keyPrefix, "worker", id, suffix) }
func workersSet() string                 { return formatKeyName(keyPrefix, "workers") }
func activeKey() string                  { return formatKeyName(keyPrefix, "workers", "active") }

// formatKeyName joins key parts with ':'.
func formatKeyName(parts ...string) string {
	return strings.Join(parts, ":")
}
