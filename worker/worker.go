package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Spyderisk/system-modeller-sub004/queue"
	"github.com/Spyderisk/system-modeller-sub004/validator"
)

// Run registers the worker, starts Concurrency job loops and a heartbeat,
// and blocks until ctx is done.
//
// Each job loop pops a job, runs the assessment under JobTimeout, saves the
// assessment and the resulting control set states, and publishes a Result
// on the job's result channel. A Result is published for every popped job,
// failed ones included.
//
// When ctx is done the loops stop popping. Jobs already running get up to
// ShutdownTimeout to finish before they are cancelled.
func Run(ctx context.Context, opts Options) error {
	opts, err := opts.withDefaults()
	if err != nil {
		return err
	}

	logger := opts.Logger.With("worker_id", opts.WorkerID)
	logger.Info("worker starting",
		"concurrency", opts.Concurrency,
		"queue", opts.Queue,
		"domains", opts.Domains,
	)

	meta := queue.WorkerMeta{
		ID:        opts.WorkerID,
		Version:   opts.Version,
		Domains:   opts.Domains,
		StartedAt: time.Now().UnixMilli(),
	}
	if err := opts.Client.RegisterWorker(ctx, meta); err != nil {
		return fmt.Errorf("failed to register worker: %w", err)
	}
	if err := opts.Client.Heartbeat(ctx, opts.WorkerID); err != nil {
		logger.Warn("initial heartbeat failed", "error", err)
	}
	if err := opts.Client.IncrementWorkerCount(ctx); err != nil {
		logger.Error("failed to increment worker count", "error", err)
	}

	defer func() {
		// ctx is done by now
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := opts.Client.DecrementWorkerCount(cleanupCtx); err != nil {
			logger.Error("failed to decrement worker count", "error", err)
		}
		if err := opts.Client.DeregisterWorker(cleanupCtx, opts.WorkerID); err != nil {
			logger.Error("failed to deregister worker", "error", err)
		}
	}()

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go runHeartbeat(heartbeatCtx, opts.Client, opts.WorkerID, opts.HeartbeatInterval, logger)

	// In-flight jobs outlive ctx until the shutdown timeout.
	jobBase, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func(loopNum int) {
			defer wg.Done()
			jobLoop(ctx, jobBase, opts, logger.With("loop", loopNum))
		}(i)
	}

	opts.OnServing(true)
	logger.Info("worker started", "loops", opts.Concurrency)

	<-ctx.Done()
	opts.OnServing(false)
	logger.Info("context done, initiating graceful shutdown")

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		logger.Info("worker shutdown complete")
	case <-time.After(opts.ShutdownTimeout):
		logger.Warn("worker shutdown timeout exceeded, cancelling jobs", "timeout", opts.ShutdownTimeout)
		cancelJobs()
		<-doneChan
	}

	return nil
}

// runHeartbeat refreshes the worker's health key until ctx is done.
func runHeartbeat(ctx context.Context, client queue.Client, workerID string, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(ctx, workerID); err != nil {
				logger.Debug("heartbeat failed", "error", err)
			}
		}
	}
}

// jobLoop pops and processes jobs until ctx is done.
func jobLoop(ctx, jobBase context.Context, opts Options, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := opts.Client.Pop(ctx, opts.Queue)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to pop job", "error", err)
			continue
		}
		if job == nil {
			continue
		}

		result := processJob(jobBase, opts, *job, logger)

		publishCtx, cancel := context.WithTimeout(jobBase, 5*time.Second)
		if err := opts.Client.Publish(publishCtx, queue.ResultChannel(job.JobID), result); err != nil {
			logger.Error("failed to publish result", "job_id", job.JobID, "error", err)
		}
		cancel()
	}
}

// processJob runs one job and always returns a result.
func processJob(ctx context.Context, opts Options, job queue.Job, logger *slog.Logger) queue.Result {
	started := time.Now()
	result := queue.Result{
		JobID:         job.JobID,
		SystemModelID: job.SystemModelID,
		WorkerID:      opts.WorkerID,
		StartedAt:     started.UnixMilli(),
	}
	logger = logger.With("job_id", job.JobID, "system_model_id", job.SystemModelID, "trace_id", job.TraceID)

	opts.Metrics.start()
	fail := func(status string, err error) queue.Result {
		result.Error = err.Error()
		result.CompletedAt = time.Now().UnixMilli()
		opts.Metrics.finish(status, time.Since(started), 0, 0)
		logger.Error("job failed", "status", status, "error", err)
		return result
	}

	if err := job.IsValid(); err != nil {
		return fail(StatusInvalid, fmt.Errorf("invalid job: %w", err))
	}

	in := job.Input
	if job.UseStoredStates {
		stored, err := opts.Store.LoadControlSetStates(ctx, job.SystemModelID)
		if err != nil {
			return fail(StatusFailed, fmt.Errorf("load control set states: %w", err))
		}
		// Later states win, so the job's own decisions override stored ones.
		in.ControlSets = append(stored, in.ControlSets...)
	}

	jobCtx, cancel := context.WithTimeout(ctx, opts.JobTimeout)
	defer cancel()

	a, err := opts.Assessor.Assess(jobCtx, job.Domain, job.Version, in)
	if err != nil {
		status := StatusFailed
		if errors.Is(err, validator.ErrInvalidInput) {
			status = StatusInvalid
		}
		return fail(status, err)
	}

	if err := opts.Store.SaveAssessment(ctx, job.SystemModelID, a); err != nil {
		return fail(StatusFailed, fmt.Errorf("save assessment: %w", err))
	}
	if err := opts.Store.SaveControlSetStates(ctx, job.SystemModelID, a.Model.States()); err != nil {
		return fail(StatusFailed, fmt.Errorf("save control set states: %w", err))
	}

	unresolved := len(a.Model.Unresolved())
	result.AssessmentID = a.ID
	result.Threats = len(a.Model.Threats())
	result.Unresolved = unresolved
	result.Incomplete = len(a.Incomplete)
	result.RiskVector = a.RiskVector.String()
	result.CompletedAt = time.Now().UnixMilli()
	opts.Metrics.finish(StatusOK, time.Since(started), unresolved, len(a.Incomplete))

	logger.Info("job completed",
		"assessment_id", a.ID,
		"threats", result.Threats,
		"unresolved", unresolved,
		"risk_vector", result.RiskVector,
		"duration_ms", result.CompletedAt-result.StartedAt,
		"queue_age_ms", job.Age().Milliseconds(),
	)
	return result
}
