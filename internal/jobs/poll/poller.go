// Package poll implements the long-polling service: it re-reads the job
// registry on behalf of a caller until a job reaches a terminal state or
// a timeout elapses. This is deliberately a pull design; there is no
// push/webhook transport.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mgaillard/solbatch/internal/jobs"
)

// ErrTimeout is returned when the job is still live after the configured
// polling window
var ErrTimeout = errors.New("polling timed out")

// Config tunes one poll request
type Config struct {
	Timeout  time.Duration
	Interval time.Duration
}

// DefaultConfig matches the service-wide defaults: 30s window, 500ms
// between registry reads
func DefaultConfig() Config {
	return Config{
		Timeout:  30 * time.Second,
		Interval: 500 * time.Millisecond,
	}
}

// BatchResult summarizes a batch poll across several job ids
type BatchResult struct {
	JobIDs    []string       `json:"job_ids"`
	Total     int            `json:"total"`
	Completed int            `json:"completed"`
	Failed    int            `json:"failed"`
	Cancelled int            `json:"cancelled"`
	Jobs      []jobs.JobInfo `json:"jobs"`
}

// Service polls the job registry for callers
type Service struct {
	registry *jobs.Registry
	logger   *slog.Logger
}

// NewService creates a poller bound to registry
func NewService(registry *jobs.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: registry,
		logger:   logger.With("component", "poller"),
	}
}

// PollJob blocks until the job reaches a terminal status or the window
// elapses. An unknown job id fails immediately rather than burning the
// full timeout.
func (s *Service) PollJob(ctx context.Context, jobID string, cfg Config) (jobs.JobInfo, error) {
	cfg = withDefaults(cfg)
	deadline := time.Now().Add(cfg.Timeout)

	s.logger.Debug("long poll started", "job_id", jobID, "timeout", cfg.Timeout)

	for {
		info, ok := s.registry.Get(jobID)
		if !ok {
			return jobs.JobInfo{}, fmt.Errorf("job not found: %s", jobID)
		}
		if info.Status.Terminal() {
			s.logger.Debug("long poll done", "job_id", jobID, "status", info.Status)
			return info, nil
		}
		if time.Now().After(deadline) {
			return info, fmt.Errorf("%w: job %s still %s after %s", ErrTimeout, jobID, info.Status, cfg.Timeout)
		}

		select {
		case <-ctx.Done():
			return info, ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
}

// PollBatch polls until every listed job is terminal or the window
// elapses, and reports completed/failed/cancelled counts either way.
func (s *Service) PollBatch(ctx context.Context, jobIDs []string, cfg Config) (*BatchResult, error) {
	cfg = withDefaults(cfg)
	deadline := time.Now().Add(cfg.Timeout)

	s.logger.Debug("batch poll started", "jobs", len(jobIDs), "timeout", cfg.Timeout)

	for {
		result := s.snapshot(jobIDs)
		allTerminal := true
		for _, info := range result.Jobs {
			if !info.Status.Terminal() {
				allTerminal = false
				break
			}
		}
		if allTerminal {
			return result, nil
		}
		if time.Now().After(deadline) {
			return result, fmt.Errorf("%w: %d of %d jobs still running after %s",
				ErrTimeout, result.Total-terminalCount(result), result.Total, cfg.Timeout)
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
}

// Launcher starts one job and returns its id
type Launcher func() string

// StartControlledBatch launches jobs in groups no larger than
// maxConcurrent, waiting for each group to finish before starting the
// next. Returns every launched job id in launch order.
func (s *Service) StartControlledBatch(ctx context.Context, launchers []Launcher, maxConcurrent int, cfg Config) ([]string, error) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	cfg = withDefaults(cfg)

	s.logger.Info("controlled batch start", "jobs", len(launchers), "max_concurrent", maxConcurrent)

	var jobIDs []string
	for start := 0; start < len(launchers); start += maxConcurrent {
		end := start + maxConcurrent
		if end > len(launchers) {
			end = len(launchers)
		}

		group := make([]string, 0, end-start)
		for _, launch := range launchers[start:end] {
			id := launch()
			group = append(group, id)
			jobIDs = append(jobIDs, id)
		}

		if _, err := s.PollBatch(ctx, group, cfg); err != nil {
			return jobIDs, fmt.Errorf("group starting at %d: %w", start, err)
		}
	}
	return jobIDs, nil
}

func (s *Service) snapshot(jobIDs []string) *BatchResult {
	result := &BatchResult{
		JobIDs: jobIDs,
		Total:  len(jobIDs),
		Jobs:   make([]jobs.JobInfo, 0, len(jobIDs)),
	}
	for _, id := range jobIDs {
		info, ok := s.registry.Get(id)
		if !ok {
			continue
		}
		result.Jobs = append(result.Jobs, info)
		switch info.Status {
		case jobs.StatusSucceeded, jobs.StatusPartial:
			result.Completed++
		case jobs.StatusFailed:
			result.Failed++
		case jobs.StatusCancelled:
			result.Cancelled++
		}
	}
	return result
}

func terminalCount(r *BatchResult) int {
	n := 0
	for _, info := range r.Jobs {
		if info.Status.Terminal() {
			n++
		}
	}
	return n
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	return cfg
}
