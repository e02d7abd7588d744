package api

import (
	"time"

	"stemd/internal/queue"
)

// Health status values.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// HealthStatus summarizes daemon readiness for producers.
type HealthStatus struct {
	Status   string          `json:"status"`
	Store    bool            `json:"store"`
	Binaries map[string]bool `json:"binaries"`
	Models   []string        `json:"models"`
}

// JobView is the producer projection of a job record.
type JobView struct {
	ID                string        `json:"id"`
	Status            queue.Status  `json:"status"`
	Progress          int           `json:"progress"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	InputType         string        `json:"input_type"`
	InputSource       string        `json:"input_source"`
	Model             string        `json:"model"`
	Error             string        `json:"error,omitempty"`
	ErrorKind         string        `json:"error_kind,omitempty"`
	EstimatedDuration int           `json:"estimated_duration"`
	ActualDuration    int           `json:"actual_duration,omitempty"`
	Result            *queue.Result `json:"result,omitempty"`
}

// NewJobView projects a stored record into the producer view.
func NewJobView(job *queue.Job) JobView {
	if job == nil {
		return JobView{}
	}
	return JobView{
		ID:                job.ID,
		Status:            job.Status,
		Progress:          job.Progress,
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
		InputType:         string(job.InputType),
		InputSource:       job.InputSource,
		Model:             job.Model,
		Error:             job.Error,
		ErrorKind:         job.ErrorKind,
		EstimatedDuration: job.EstimatedDuration,
		ActualDuration:    job.ActualDuration,
		Result:            job.Result,
	}
}
