package worker_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modeller "github.com/Spyderisk/system-modeller-sub004"
	"github.com/Spyderisk/system-modeller-sub004/assetgraph"
	"github.com/Spyderisk/system-modeller-sub004/queue"
	"github.com/Spyderisk/system-modeller-sub004/store"
	"github.com/Spyderisk/system-modeller-sub004/threat"
	"github.com/Spyderisk/system-modeller-sub004/validator"
	"github.com/Spyderisk/system-modeller-sub004/worker"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type harness struct {
	client *queue.RedisClient
	store  *store.Memory
	engine *modeller.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := queue.NewRedisClient(queue.RedisOptions{
		URL:         fmt.Sprintf("redis://%s", mr.Addr()),
		PollTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	engine := modeller.NewEngine(modeller.WithLogger(discard))
	_, err = engine.LoadDomain(filepath.Join("..", "domain", "testdata", "network.yaml"))
	require.NoError(t, err)

	return &harness{client: client, store: store.NewMemory(), engine: engine}
}

func (h *harness) options() worker.Options {
	return worker.Options{
		Client:            h.client,
		Assessor:          h.engine,
		Store:             h.store,
		WorkerID:          "w-test",
		Version:           "test",
		Domains:           h.engine.Domains(),
		Concurrency:       2,
		JobTimeout:        5 * time.Second,
		ShutdownTimeout:   2 * time.Second,
		HeartbeatInterval: 50 * time.Millisecond,
		Logger:            discard,
	}
}

// start runs the worker until the test ends and returns a func that stops
// it and reports Run's error.
func start(t *testing.T, opts worker.Options) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- worker.Run(ctx, opts) }()

	var once sync.Once
	var runErr error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case runErr = <-errCh:
			case <-time.After(10 * time.Second):
				runErr = errors.New("worker did not stop")
			}
		})
		return runErr
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

func systemJob() queue.Job {
	return queue.Job{
		JobID:         uuid.NewString(),
		SystemModelID: "sys-1",
		Domain:        "network",
		Input: validator.Input{
			Assets: []assetgraph.Asset{
				{ID: "s1", Type: "Server", Label: "Web"},
				{ID: "p1", Type: "Process", Label: "Nginx"},
				{ID: "d1", Type: "Data", Label: "Orders"},
			},
			Relations: []assetgraph.Relation{
				{From: "s1", Type: "hosts", To: "p1"},
				{From: "p1", Type: "uses", To: "d1"},
			},
		},
		SubmittedAt: time.Now().UnixMilli(),
	}
}

// submit pushes job and waits for its result.
func (h *harness) submit(t *testing.T, job queue.Job) queue.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := h.client.Subscribe(ctx, queue.ResultChannel(job.JobID))
	require.NoError(t, err)
	require.NoError(t, h.client.Push(ctx, queue.JobsQueue, job))

	select {
	case r, ok := <-results:
		require.True(t, ok, "result channel closed")
		return r
	case <-ctx.Done():
		t.Fatalf("timed out waiting for result of %s", job.JobID)
		return queue.Result{}
	}
}

func TestRun_ProcessesJob(t *testing.T) {
	h := newHarness(t)
	start(t, h.options())

	job := systemJob()
	r := h.submit(t, job)

	require.False(t, r.HasError(), r.Error)
	require.NoError(t, r.IsValid())
	assert.Equal(t, job.JobID, r.JobID)
	assert.Equal(t, "sys-1", r.SystemModelID)
	assert.Equal(t, "w-test", r.WorkerID)
	assert.Equal(t, 4, r.Threats)
	assert.Equal(t, 4, r.Unresolved)
	assert.Zero(t, r.Incomplete)
	assert.NotEmpty(t, r.RiskVector)

	a, err := h.store.LoadAssessment(context.Background(), r.AssessmentID)
	require.NoError(t, err)
	assert.Equal(t, "network", a.Domain)
	assert.Len(t, a.Model.Threats(), 4)

	states, err := h.store.LoadControlSetStates(context.Background(), "sys-1")
	require.NoError(t, err)
	assert.Len(t, states, len(a.Model.ControlSets()))
}

func TestRun_StoredStatesResolveThreats(t *testing.T) {
	h := newHarness(t)
	start(t, h.options())
	ctx := context.Background()

	first := h.submit(t, systemJob())
	require.False(t, first.HasError(), first.Error)

	// Propose every control for the system model.
	saved, err := h.store.LoadControlSetStates(ctx, "sys-1")
	require.NoError(t, err)
	require.NotEmpty(t, saved)
	for i := range saved {
		saved[i].Proposed = true
	}
	require.NoError(t, h.store.SaveControlSetStates(ctx, "sys-1", saved))

	job := systemJob()
	job.UseStoredStates = true
	second := h.submit(t, job)
	require.False(t, second.HasError(), second.Error)
	assert.Less(t, second.Unresolved, first.Unresolved)

	// The job's own states override stored ones.
	job = systemJob()
	job.UseStoredStates = true
	for _, s := range saved {
		job.Input.ControlSets = append(job.Input.ControlSets, threat.ControlSetState{URI: s.URI})
	}
	third := h.submit(t, job)
	require.False(t, third.HasError(), third.Error)
	assert.Equal(t, first.Unresolved, third.Unresolved)

	latest, err := h.store.LatestAssessment(ctx, "sys-1")
	require.NoError(t, err)
	assert.Equal(t, third.AssessmentID, latest.ID)
}

func TestRun_FailedJobs(t *testing.T) {
	h := newHarness(t)
	start(t, h.options())

	tests := []struct {
		name   string
		mutate func(*queue.Job)
		errMsg string
	}{
		{
			name:   "invalid job",
			mutate: func(j *queue.Job) { j.SystemModelID = "" },
			errMsg: "system_model_id is required",
		},
		{
			name:   "unknown domain",
			mutate: func(j *queue.Job) { j.Domain = "cloud" },
			errMsg: "not found",
		},
		{
			name: "dangling relation",
			mutate: func(j *queue.Job) {
				j.Input.Relations = append(j.Input.Relations, assetgraph.Relation{From: "p1", Type: "uses", To: "ghost"})
			},
			errMsg: "ghost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := systemJob()
			tt.mutate(&job)
			r := h.submit(t, job)
			require.True(t, r.HasError())
			assert.Contains(t, r.Error, tt.errMsg)
			assert.Empty(t, r.AssessmentID)
			assert.NoError(t, r.IsValid())
		})
	}
}

func TestRun_RegistrationLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var mu sync.Mutex
	var serving []bool
	opts := h.options()
	opts.OnServing = func(s bool) {
		mu.Lock()
		defer mu.Unlock()
		serving = append(serving, s)
	}
	stop := start(t, opts)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(serving) == 1
	}, 5*time.Second, 10*time.Millisecond)

	workers, err := h.client.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "w-test", workers[0].ID)
	assert.True(t, workers[0].Serves("network@1.0.0"))

	alive, err := h.client.IsAlive(ctx, "w-test")
	require.NoError(t, err)
	assert.True(t, alive)

	count, err := h.client.GetWorkerCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, stop())

	mu.Lock()
	assert.Equal(t, []bool{true, false}, serving)
	mu.Unlock()

	workers, err = h.client.ListWorkers(ctx)
	require.NoError(t, err)
	assert.Empty(t, workers)

	alive, err = h.client.IsAlive(ctx, "w-test")
	require.NoError(t, err)
	assert.False(t, alive)

	count, err = h.client.GetWorkerCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

type slowAssessor struct {
	release chan struct{}
	started chan struct{}
}

func (s *slowAssessor) Assess(ctx context.Context, _, _ string, _ validator.Input) (*validator.Assessment, error) {
	close(s.started)
	select {
	case <-s.release:
		return nil, errors.New("released")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestRun_ShutdownWaitsForInFlightJob(t *testing.T) {
	h := newHarness(t)
	slow := &slowAssessor{release: make(chan struct{}), started: make(chan struct{})}
	opts := h.options()
	opts.Assessor = slow
	opts.Concurrency = 1
	stop := start(t, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	job := systemJob()
	results, err := h.client.Subscribe(ctx, queue.ResultChannel(job.JobID))
	require.NoError(t, err)
	require.NoError(t, h.client.Push(ctx, queue.JobsQueue, job))

	select {
	case <-slow.started:
	case <-ctx.Done():
		t.Fatal("job never started")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- stop() }()

	// The job is still running after shutdown began.
	select {
	case <-stopped:
		t.Fatal("worker stopped before in-flight job finished")
	case <-time.After(100 * time.Millisecond):
	}
	close(slow.release)

	select {
	case r := <-results:
		assert.Equal(t, "released", r.Error)
	case <-ctx.Done():
		t.Fatal("no result for in-flight job")
	}
	require.NoError(t, <-stopped)
}

func TestRun_ShutdownTimeoutCancelsJob(t *testing.T) {
	h := newHarness(t)
	slow := &slowAssessor{release: make(chan struct{}), started: make(chan struct{})}
	opts := h.options()
	opts.Assessor = slow
	opts.Concurrency = 1
	opts.ShutdownTimeout = 100 * time.Millisecond
	stop := start(t, opts)

	require.NoError(t, h.client.Push(context.Background(), queue.JobsQueue, systemJob()))
	select {
	case <-slow.started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	began := time.Now()
	require.NoError(t, stop())
	assert.Less(t, time.Since(began), 5*time.Second)
}

func TestRun_InvalidOptions(t *testing.T) {
	err := worker.Run(context.Background(), worker.Options{})
	assert.True(t, errors.Is(err, worker.ErrInvalidOptions))

	h := newHarness(t)
	err = worker.Run(context.Background(), worker.Options{Client: h.client})
	assert.True(t, errors.Is(err, worker.ErrInvalidOptions))
}
