package queue

import (
	"strings"
	"testing"
	"time"

	"github.com/Spyderisk/system-modeller-sub004/assetgraph"
	"github.com/Spyderisk/system-modeller-sub004/validator"
)

func validJob() Job {
	return Job{
		JobID:         "job-123",
		SystemModelID: "sys-1",
		Domain:        "network",
		Input: validator.Input{
			Assets: []assetgraph.Asset{{ID: "s1", Type: "Server"}},
		},
		SubmittedAt: time.Now().UnixMilli(),
	}
}

func TestJob_IsValid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Job)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid job",
			mutate: func(*Job) {},
		},
		{
			name:    "missing job_id",
			mutate:  func(j *Job) { j.JobID = "" },
			wantErr: true,
			errMsg:  "job_id is required",
		},
		{
			name:    "missing system_model_id",
			mutate:  func(j *Job) { j.SystemModelID = "" },
			wantErr: true,
			errMsg:  "system_model_id is required",
		},
		{
			name:    "missing domain",
			mutate:  func(j *Job) { j.Domain = "" },
			wantErr: true,
			errMsg:  "domain is required",
		},
		{
			name:    "no assets",
			mutate:  func(j *Job) { j.Input.Assets = nil },
			wantErr: true,
			errMsg:  "input has no assets",
		},
		{
			name:    "invalid submitted_at",
			mutate:  func(j *Job) { j.SubmittedAt = -1 },
			wantErr: true,
			errMsg:  "submitted_at must be positive, got -1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := validJob()
			tt.mutate(&job)
			err := job.IsValid()
			if (err != nil) != tt.wantErr {
				t.Errorf("Job.IsValid() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err.Error() != tt.errMsg {
				t.Errorf("Job.IsValid() error = %v, want %v", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestJob_Age(t *testing.T) {
	now := time.Now().UnixMilli()

	tests := []struct {
		name        string
		submittedAt int64
		wantMin     time.Duration
		wantMax     time.Duration
	}{
		{
			name:        "recent submission",
			submittedAt: now,
			wantMin:     0,
			wantMax:     100 * time.Millisecond,
		},
		{
			name:        "one second old",
			submittedAt: now - 1000,
			wantMin:     900 * time.Millisecond,
			wantMax:     1100 * time.Millisecond,
		},
		{
			name:        "zero timestamp",
			submittedAt: 0,
			wantMin:     0,
			wantMax:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := Job{SubmittedAt: tt.submittedAt}
			age := job.Age()
			if age < tt.wantMin || age > tt.wantMax {
				t.Errorf("Job.Age() = %v, want between %v and %v", age, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestResult_IsValid(t *testing.T) {
	now := time.Now().UnixMilli()

	tests := []struct {
		name    string
		result  Result
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid successful result",
			result: Result{
				JobID:        "job-123",
				AssessmentID: "a-1",
				WorkerID:     "worker-1",
				StartedAt:    now,
				CompletedAt:  now + 100,
			},
		},
		{
			name: "valid error result",
			result: Result{
				JobID:       "job-123",
				Error:       "domain not found",
				WorkerID:    "worker-1",
				StartedAt:   now,
				CompletedAt: now,
			},
		},
		{
			name: "missing worker_id",
			result: Result{
				JobID:        "job-123",
				AssessmentID: "a-1",
				StartedAt:    now,
				CompletedAt:  now,
			},
			wantErr: true,
			errMsg:  "worker_id is required",
		},
		{
			name: "completed before started",
			result: Result{
				JobID:        "job-123",
				AssessmentID: "a-1",
				WorkerID:     "worker-1",
				StartedAt:    now,
				CompletedAt:  now - 1,
			},
			wantErr: true,
			errMsg:  "cannot be before started_at",
		},
		{
			name: "success without assessment",
			result: Result{
				JobID:       "job-123",
				WorkerID:    "worker-1",
				StartedAt:   now,
				CompletedAt: now,
			},
			wantErr: true,
			errMsg:  "assessment_id is required when error is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.IsValid()
			if (err != nil) != tt.wantErr {
				t.Errorf("Result.IsValid() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Result.IsValid() error = %v, want %v", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestResult_Duration(t *testing.T) {
	r := Result{StartedAt: 1000, CompletedAt: 1250}
	if got := r.Duration(); got != 250*time.Millisecond {
		t.Errorf("Result.Duration() = %v, want 250ms", got)
	}

	r = Result{CompletedAt: 1250}
	if got := r.Duration(); got != 0 {
		t.Errorf("Result.Duration() = %v, want 0", got)
	}
}

func TestWorkerMeta_Serves(t *testing.T) {
	w := WorkerMeta{ID: "w1", Domains: []string{"network", "cloud"}}
	if !w.Serves("cloud") {
		t.Error("expected worker to serve cloud")
	}
	if w.Serves("iot") {
		t.Error("expected worker not to serve iot")
	}
}
