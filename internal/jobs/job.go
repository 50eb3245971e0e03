// Package jobs owns the in-memory registry of background jobs: lifecycle
// state, progress counters, and terminal results. The registry is the only
// shared mutable state in the process and is lost on restart by design.
package jobs

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a job
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	// StatusPartial marks a job that finished with some operands failed
	// and some succeeded, so neither "done" nor "error" tells the truth.
	StatusPartial   Status = "partial"
	StatusFailed    Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusPartial, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ErrPartialFailure is returned by job work functions when some operands
// succeeded and some failed. The registry maps it to StatusPartial instead
// of StatusFailed.
var ErrPartialFailure = errors.New("completed with partial failures")

// Progress tracks how far a job has advanced. Completed never decreases
// and never exceeds Total.
type Progress struct {
	Completed  uint32  `json:"completed"`
	Total      uint32  `json:"total"`
	Percentage float32 `json:"percentage"`
	Step       string  `json:"step,omitempty"`
}

// JobInfo is a read-only snapshot of one job
type JobInfo struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Status    Status    `json:"status"`
	Progress  Progress  `json:"progress"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
