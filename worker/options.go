package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Spyderisk/system-modeller-sub004/queue"
	"github.com/Spyderisk/system-modeller-sub004/store"
	"github.com/Spyderisk/system-modeller-sub004/validator"
)

// Default values applied by Run to zero Options fields.
const (
	DefaultConcurrency       = 4
	DefaultJobTimeout        = 2 * time.Minute
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
)

// ErrInvalidOptions is returned by Run when a required option is missing.
var ErrInvalidOptions = errors.New("worker: invalid options")

// Assessor runs one validation. *modeller.Engine implements it.
type Assessor interface {
	Assess(ctx context.Context, domainName, version string, in validator.Input) (*validator.Assessment, error)
}

// Options configures the worker behavior.
type Options struct {
	// Client is the job queue connection. Required.
	Client queue.Client

	// Assessor runs validations. Required.
	Assessor Assessor

	// Store receives assessments and control set states.
	// If nil, an in-memory store is used.
	Store store.Store

	// Queue is the list jobs are popped from. Default: queue.JobsQueue.
	Queue string

	// WorkerID identifies this worker. If empty, one is generated from
	// hostname, PID and a UUID prefix.
	WorkerID string

	// Version is the worker build version, advertised in worker metadata.
	Version string

	// Domains lists the loaded domain models as name@version.
	Domains []string

	// Concurrency is the number of job loops to start.
	Concurrency int

	// JobTimeout bounds a single assessment.
	JobTimeout time.Duration

	// ShutdownTimeout is how long in-flight jobs may run after ctx is done.
	ShutdownTimeout time.Duration

	// HeartbeatInterval is the period between health key refreshes.
	HeartbeatInterval time.Duration

	// Logger is the structured logger for worker operations.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	// Metrics records job outcomes. Optional.
	Metrics *Metrics

	// OnServing is called with true once the worker takes jobs and with
	// false when it stops. Optional.
	OnServing func(serving bool)
}

func (o Options) withDefaults() (Options, error) {
	if o.Client == nil {
		return o, fmt.Errorf("%w: queue client is required", ErrInvalidOptions)
	}
	if o.Assessor == nil {
		return o, fmt.Errorf("%w: assessor is required", ErrInvalidOptions)
	}
	if o.Store == nil {
		o.Store = store.NewMemory()
	}
	if o.Queue == "" {
		o.Queue = queue.JobsQueue
	}
	if o.WorkerID == "" {
		o.WorkerID = generateWorkerID()
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = DefaultJobTimeout
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = DefaultShutdownTimeout
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.OnServing == nil {
		o.OnServing = func(bool) {}
	}
	return o, nil
}

// generateWorkerID creates a unique identifier for this worker instance.
func generateWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
}
