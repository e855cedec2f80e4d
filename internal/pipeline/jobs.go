package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// JobStatus represents the state of a queued preview.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusCancelled JobStatus = "cancelled"
	StatusFailed    JobStatus = "failed"
)

// Job tracks one asynchronous preview pass.
type Job struct {
	mu sync.Mutex

	ID       string    `json:"job_id"`
	Document string    `json:"document"`
	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Progress Progress  `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	request PreviewRequest
	result  *PreviewResult
	errMsg  string
	ctx     context.Context
	cancel  context.CancelFunc
}

// Progress counts images whose model call has finished.
type Progress struct {
	Total int `json:"total"`
	Done  int `json:"done"`
}

// NewJob wraps req in a queued job with its own cancellation token.
func NewJob(req PreviewRequest) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Document:  req.Path,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
		request:   req,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// SetProgress records how many images are done.
func (j *Job) SetProgress(done, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress = Progress{Total: total, Done: done}
	j.UpdatedAt = time.Now()
}

// Finish stores the outcome and the terminal status.
func (j *Job) Finish(status JobStatus, res *PreviewResult, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = string(status)
	j.result = res
	if err != nil {
		j.errMsg = err.Error()
	}
	j.UpdatedAt = time.Now()
}

// Cancel signals the pass to stop dispatching. It reports whether the job
// was still queued or running.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	active := j.Status == StatusQueued || j.Status == StatusRunning
	if j.Status == StatusQueued {
		j.Status = StatusCancelled
		j.Phase = string(StatusCancelled)
		j.UpdatedAt = time.Now()
	}
	j.mu.Unlock()
	if j.cancel != nil {
		j.cancel()
	}
	return active
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string         `json:"job_id"`
	Document  string         `json:"document"`
	Status    JobStatus      `json:"status"`
	Phase     string         `json:"phase"`
	Progress  Progress       `json:"progress"`
	Error     string         `json:"error,omitempty"`
	Result    *PreviewResult `json:"result,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		ID:        j.ID,
		Document:  j.Document,
		Status:    j.Status,
		Phase:     j.Phase,
		Progress:  j.Progress,
		Error:     j.errMsg,
		Result:    j.result,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// JobStore is an in-memory job registry with TTL eviction.
type JobStore struct {
	c *cache.Cache
}

func NewJobStore(ttl time.Duration) *JobStore {
	cleanup := ttl / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	return &JobStore{c: cache.New(ttl, cleanup)}
}

// Put stores job and restarts its TTL.
func (s *JobStore) Put(job *Job) {
	s.c.Set(job.ID, job, cache.DefaultExpiration)
}

func (s *JobStore) Get(id string) *Job {
	v, ok := s.c.Get(id)
	if !ok {
		return nil
	}
	return v.(*Job)
}

// Cleanup removes expired jobs now instead of waiting for the janitor.
func (s *JobStore) Cleanup() {
	s.c.DeleteExpired()
}

func (s *JobStore) Len() int {
	return s.c.ItemCount()
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
