package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a batch job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job represents a background batch job over one input file
type Job struct {
	ID            string    `json:"id"`
	InputPath     string    `json:"input_path"`
	OutputPath    string    `json:"output_path"`
	Status        JobStatus `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at,omitempty"`
	RowsCompleted int64     `json:"rows_completed"`
	RowsTotal     int64     `json:"rows_total"`
	Succeeded     int64     `json:"succeeded"`
	Failed        int64     `json:"failed"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Resume        bool      `json:"resume"`

	// Internal fields
	ctx    context.Context
	cancel context.CancelFunc
}

// JobManager manages background batch jobs
type JobManager struct {
	jobs    map[string]*Job
	mu      sync.RWMutex
	byInput map[string]string // input path -> jobID for running jobs
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:    make(map[string]*Job),
		byInput: make(map[string]string),
	}
}

// CreateJob creates a new job for an input file
func (m *JobManager) CreateJob(inputPath, outputPath string, resume bool) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// One job at a time per input file
	if existingJobID, exists := m.byInput[inputPath]; exists {
		existingJob := m.jobs[existingJobID]
		if existingJob != nil && (existingJob.Status == JobStatusPending || existingJob.Status == JobStatusRunning) {
			return existingJob, nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:         uuid.New().String(),
		InputPath:  inputPath,
		OutputPath: outputPath,
		Status:     JobStatusPending,
		StartedAt:  time.Now(),
		Resume:     resume,
		ctx:        ctx,
		cancel:     cancel,
	}

	m.jobs[job.ID] = job
	m.byInput[inputPath] = job.ID

	return job, nil
}

// GetJob retrieves a job by ID
func (m *JobManager) GetJob(jobID string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[jobID]
}

// GetJobByInput retrieves the current job for an input file
func (m *JobManager) GetJobByInput(inputPath string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if jobID, exists := m.byInput[inputPath]; exists {
		return m.jobs[jobID]
	}
	return nil
}

// IsRunning checks if a job is currently running for an input file
func (m *JobManager) IsRunning(inputPath string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if jobID, exists := m.byInput[inputPath]; exists {
		job := m.jobs[jobID]
		return job != nil && (job.Status == JobStatusPending || job.Status == JobStatusRunning)
	}
	return false
}

// UpdateStatus updates the status of a job
func (m *JobManager) UpdateStatus(jobID string, status JobStatus, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, exists := m.jobs[jobID]; exists {
		job.Status = status
		if status == JobStatusCompleted || status == JobStatusFailed || status == JobStatusCancelled {
			job.CompletedAt = time.Now()
			// Remove from byInput to allow new jobs
			delete(m.byInput, job.InputPath)
		}
		if errorMsg != "" {
			job.ErrorMessage = errorMsg
		}
	}
}

// UpdateProgress updates the progress counters of a job
func (m *JobManager) UpdateProgress(jobID string, completed, total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, exists := m.jobs[jobID]; exists {
		job.RowsCompleted = completed
		job.RowsTotal = total
	}
}

// RecordOutcome stores the final success/failure counts for a job
func (m *JobManager) RecordOutcome(jobID string, succeeded, failed int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, exists := m.jobs[jobID]; exists {
		job.Succeeded = succeeded
		job.Failed = failed
	}
}

// CancelJob cancels a running job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, exists := m.jobs[jobID]; exists {
		if job.Status == JobStatusPending || job.Status == JobStatusRunning {
			job.cancel()
			job.Status = JobStatusCancelled
			job.CompletedAt = time.Now()
			delete(m.byInput, job.InputPath)
			return true
		}
	}
	return false
}

// CancelAll cancels all running jobs
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if job.Status == JobStatusPending || job.Status == JobStatusRunning {
			job.cancel()
			job.Status = JobStatusCancelled
			job.CompletedAt = time.Now()
		}
	}
	m.byInput = make(map[string]string)
}

// ListJobs returns all jobs
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// GetContext returns the context for a job (for running the pipeline)
func (m *JobManager) GetContext(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if job, exists := m.jobs[jobID]; exists {
		return job.ctx
	}
	return context.Background()
}
