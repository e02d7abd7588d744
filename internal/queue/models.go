package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// validTransitions enumerates the permitted state machine edges. Failed is
// reachable directly from pending so setup failures can short-circuit.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the state machine permits moving from one
// status to another.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InputType identifies the source of a job's audio input.
type InputType string

const (
	InputFile      InputType = "file_upload"
	InputRemoteURL InputType = "remote_url"
)

// ParseInputType converts a string into a known InputType.
func ParseInputType(value string) (InputType, bool) {
	normalized := InputType(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case InputFile, InputRemoteURL:
		return normalized, true
	default:
		return "", false
	}
}

// Options describes processing configuration attached to a job at creation.
type Options struct {
	OutputFormat string `json:"output_format"`
	Normalize    bool   `json:"normalize"`
}

// StemInfo records one produced stem file.
type StemInfo struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
}

// Stems holds the four named stems a separation run produces.
type Stems struct {
	Vocals StemInfo `json:"vocals"`
	Drums  StemInfo `json:"drums"`
	Bass   StemInfo `json:"bass"`
	Other  StemInfo `json:"other"`
}

// TotalSize returns the combined size of all stem files in bytes.
func (s Stems) TotalSize() int64 {
	return s.Vocals.Size + s.Drums.Size + s.Bass.Size + s.Other.Size
}

// Result captures the artifacts of a completed job.
type Result struct {
	JobID          string `json:"job_id"`
	OutputDir      string `json:"output_dir"`
	Stems          Stems  `json:"stems"`
	ProcessingTime int    `json:"processing_time"`
	ModelUsed      string `json:"model_used"`
	FileSize       int64  `json:"file_size"`
}

// Job represents one unit of submitted work and its persistent state.
type Job struct {
	ID                string     `json:"id"`
	Status            Status     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	InputType         InputType  `json:"input_type"`
	InputSource       string     `json:"input_source"`
	Model             string     `json:"model"`
	Options           Options    `json:"options"`
	Progress          int        `json:"progress"`
	Result            *Result    `json:"result,omitempty"`
	Error             string     `json:"error,omitempty"`
	ErrorKind         string     `json:"error_kind,omitempty"`
	EstimatedDuration int        `json:"estimated_duration"`
	ActualDuration    int        `json:"actual_duration,omitempty"`
	LastHeartbeat     *time.Time `json:"last_heartbeat,omitempty"`
}

// ClampProgress bounds a progress value to [0, 100].
func ClampProgress(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// SetProgress applies a clamped progress value and refreshes UpdatedAt.
func (j *Job) SetProgress(pct int, now time.Time) {
	j.Progress = ClampProgress(pct)
	j.UpdatedAt = now
}
