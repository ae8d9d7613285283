package queue

import (
	"fmt"
	"time"

	"github.com/Spyderisk/system-modeller-sub004/validator"
)

// Job asks a worker to assess one system model against a domain model.
type Job struct {
	// JobID is a UUID identifying the job and naming its result channel.
	JobID string `json:"job_id"`

	// SystemModelID identifies the assessed system in the store. Assessments
	// and control set states are saved under it.
	SystemModelID string `json:"system_model_id"`

	// Domain and Version select the domain model. An empty version selects
	// the highest version the worker has loaded.
	Domain  string `json:"domain"`
	Version string `json:"version,omitempty"`

	// Input is the system model and the user's decisions about it.
	Input validator.Input `json:"input"`

	// UseStoredStates merges the control set states saved for the system
	// model under the ones in Input.
	UseStoredStates bool `json:"use_stored_states,omitempty"`

	// TraceID is the distributed tracing trace ID for observability.
	TraceID string `json:"trace_id,omitempty"`

	// SubmittedAt is the Unix timestamp in milliseconds when the job was submitted.
	SubmittedAt int64 `json:"submitted_at"`
}

// Result is the outcome of a Job, published on the job's result channel.
type Result struct {
	JobID         string `json:"job_id"`
	SystemModelID string `json:"system_model_id"`

	// AssessmentID is the ID the assessment was stored under.
	// Empty if Error is set.
	AssessmentID string `json:"assessment_id,omitempty"`

	Threats    int    `json:"threats"`
	Unresolved int    `json:"unresolved"`
	Incomplete int    `json:"incomplete"`
	RiskVector string `json:"risk_vector,omitempty"`

	// Error is the error message if the job failed.
	Error string `json:"error,omitempty"`

	// WorkerID is the unique identifier of the worker that ran the job.
	WorkerID string `json:"worker_id"`

	StartedAt   int64 `json:"started_at"`
	CompletedAt int64 `json:"completed_at"`
}

// WorkerMeta describes a running worker. It is stored as a Redis hash and
// used to see which domain models are being served.
type WorkerMeta struct {
	ID      string   `json:"id"`
	Version string   `json:"version"`
	Domains []string `json:"domains"`

	// StartedAt is the Unix timestamp in milliseconds when the worker started.
	StartedAt int64 `json:"started_at"`
}

// IsValid checks if the Job has all required fields populated correctly.
func (j *Job) IsValid() error {
	if j.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if j.SystemModelID == "" {
		return fmt.Errorf("system_model_id is required")
	}
	if j.Domain == "" {
		return fmt.Errorf("domain is required")
	}
	if len(j.Input.Assets) == 0 {
		return fmt.Errorf("input has no assets")
	}
	if j.SubmittedAt <= 0 {
		return fmt.Errorf("submitted_at must be positive, got %d", j.SubmittedAt)
	}
	return nil
}

// Age returns the duration since this job was submitted.
func (j *Job) Age() time.Duration {
	if j.SubmittedAt <= 0 {
		return 0
	}
	return time.Duration(time.Now().UnixMilli()-j.SubmittedAt) * time.Millisecond
}

// HasError returns true if the result represents a failed job.
func (r *Result) HasError() bool {
	return r.Error != ""
}

// Duration returns the wall-clock time the worker spent on the job.
func (r *Result) Duration() time.Duration {
	if r.StartedAt <= 0 || r.CompletedAt <= 0 {
		return 0
	}
	return time.Duration(r.CompletedAt-r.StartedAt) * time.Millisecond
}

// IsValid checks if the Result has all required fields populated correctly.
func (r *Result) IsValid() error {
	if r.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if r.WorkerID == "" {
		return fmt.Errorf("worker_id is required")
	}
	if r.StartedAt <= 0 {
		return fmt.Errorf("started_at must be positive, got %d", r.StartedAt)
	}
	if r.CompletedAt < r.StartedAt {
		return fmt.Errorf("completed_at (%d) cannot be before started_at (%d)", r.CompletedAt, r.StartedAt)
	}
	if !r.HasError() && r.AssessmentID == "" {
		return fmt.Errorf("assessment_id is required when error is empty")
	}
	return nil
}

// Serves reports whether the worker has the named domain loaded.
func (w *WorkerMeta) Serves(domain string) bool {
	for _, d := range w.Domains {
		if d == domain {
			return true
		}
	}
	return false
}
