package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mgaillard/solbatch/internal/metrics"
)

// job pairs the public snapshot with the cancellation handle.
// All mutation happens under the registry lock; the work goroutine never
// touches the struct directly.
type job struct {
	info   JobInfo
	cancel context.CancelFunc
}

// Registry is the process-wide job store. It is constructed once at
// startup and passed by pointer to every component that needs it;
// there is no ambient global instance.
type Registry struct {
	mu      sync.RWMutex
	jobs    map[string]*job
	order   []string // creation order, oldest first, drives eviction
	maxJobs int
	logger  *slog.Logger
	collect *metrics.Collector
	wg      sync.WaitGroup
}

// NewRegistry creates a registry capped at maxJobs entries. When the cap
// is exceeded the oldest terminal jobs are evicted; live jobs are never
// evicted, so the registry can briefly exceed the cap under load.
func NewRegistry(maxJobs int, collect *metrics.Collector, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if maxJobs < 1 {
		maxJobs = 1
	}
	return &Registry{
		jobs:    make(map[string]*job),
		maxJobs: maxJobs,
		logger:  logger.With("component", "job_registry"),
		collect: collect,
	}
}

// Create allocates a new pending job and returns its id. Safe for
// concurrent use; ids never collide.
func (r *Registry) Create(kind string) string {
	id := uuid.NewString()
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictLocked()
	r.jobs[id] = &job{
		info: JobInfo{
			ID:        id,
			Kind:      kind,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	r.order = append(r.order, id)

	if r.collect != nil {
		r.collect.JobCreated()
	}
	r.logger.Debug("job created", "job_id", id, "kind", kind)
	return id
}

// Spawn creates a job and runs work on its own goroutine. The returned id
// is valid before work starts, so progress updates keyed by it are safe
// from the first line of the closure.
//
// The closure's result decides the terminal status: nil means done,
// ErrPartialFailure (wrapped or not) means partial, a context
// cancellation means cancelled, anything else means error with the
// message stored as the job result.
func (r *Registry) Spawn(kind string, work func(ctx context.Context) error) string {
	id := r.Create(kind)
	r.Start(id, work)
	return id
}

// Start transitions a pending job to running and executes work
// asynchronously. Returns false if the job is unknown or already started.
func (r *Registry) Start(id string, work func(ctx context.Context) error) bool {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok || j.info.Status != StatusPending {
		r.mu.Unlock()
		cancel()
		return false
	}
	j.info.Status = StatusRunning
	j.info.UpdatedAt = time.Now().UTC()
	j.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		started := time.Now()
		err := runWork(ctx, work)
		r.finish(id, err, time.Since(started))
		cancel()
	}()
	return true
}

// runWork shields the registry from panicking strategies: a panic becomes
// a normal job failure instead of taking the process down.
func runWork(ctx context.Context, work func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return work(ctx)
}

// finish applies the terminal transition for a completed work closure
func (r *Registry) finish(id string, err error, elapsed time.Duration) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok || j.info.Status.Terminal() {
		r.mu.Unlock()
		return
	}

	switch {
	case err == nil:
		j.info.Status = StatusSucceeded
	case errors.Is(err, context.Canceled):
		j.info.Status = StatusCancelled
		j.info.Error = "cancelled"
	case errors.Is(err, ErrPartialFailure):
		j.info.Status = StatusPartial
		j.info.Error = err.Error()
	default:
		j.info.Status = StatusFailed
		j.info.Error = err.Error()
	}
	j.info.UpdatedAt = time.Now().UTC()
	status := j.info.Status
	kind := j.info.Kind
	r.mu.Unlock()

	if r.collect != nil {
		r.collect.JobFinished(string(status), elapsed)
	}
	r.logger.Info("job finished",
		"job_id", id, "kind", kind, "status", status,
		"duration", elapsed.Round(time.Millisecond))
}

// Cancel requests cooperative cancellation of a running job. Strategies
// observe it at chunk boundaries, so in-flight transactions still finish.
// A job that is still pending has no work to interrupt and is moved to
// cancelled immediately; Start then refuses to run it. Returns false for
// unknown or already-terminal jobs.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok || j.info.Status.Terminal() {
		r.mu.Unlock()
		return false
	}
	if j.info.Status == StatusPending {
		j.info.Status = StatusCancelled
		j.info.Error = "cancelled"
		j.info.UpdatedAt = time.Now().UTC()
		r.mu.Unlock()

		if r.collect != nil {
			r.collect.JobFinished(string(StatusCancelled), 0)
		}
		r.logger.Info("pending job cancelled", "job_id", id)
		return true
	}
	cancel := j.cancel
	r.mu.Unlock()

	cancel()
	r.logger.Info("job cancellation requested", "job_id", id)
	return true
}

// UpdateProgress sets a job's completion percentage and current step.
// Progress reporting is advisory: unknown or terminal job ids return
// false with no other effect, and callers must not treat that as an
// error.
func (r *Registry) UpdateProgress(id string, percentage float32, step string) bool {
	return r.mutateLive(id, func(info *JobInfo) {
		if percentage > info.Progress.Percentage {
			info.Progress.Percentage = percentage
		}
		info.Progress.Step = step
	})
}

// UpdateProgressItems sets item counters. Completed is clamped so it
// never decreases and never exceeds total.
func (r *Registry) UpdateProgressItems(id string, completed, total uint32, step string) bool {
	return r.mutateLive(id, func(info *JobInfo) {
		if total > 0 {
			info.Progress.Total = total
		}
		if completed > info.Progress.Completed {
			info.Progress.Completed = completed
		}
		if info.Progress.Total > 0 && info.Progress.Completed > info.Progress.Total {
			info.Progress.Completed = info.Progress.Total
		}
		if info.Progress.Total > 0 {
			info.Progress.Percentage = float32(info.Progress.Completed) / float32(info.Progress.Total) * 100
		}
		info.Progress.Step = step
	})
}

// SetTotalItems declares the expected item count before the first
// progress update
func (r *Registry) SetTotalItems(id string, total uint32) bool {
	return r.mutateLive(id, func(info *JobInfo) {
		info.Progress.Total = total
		if total > 0 {
			info.Progress.Percentage = float32(info.Progress.Completed) / float32(total) * 100
		}
	})
}

// SetResult attaches a JSON-serialized payload to a live job. A payload
// that cannot be serialized is reported as an error so the strategy can
// fail the job: an unreadable result is equivalent to no result.
func (r *Registry) SetResult(id string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize job result: %w", err)
	}
	if !r.mutateLive(id, func(info *JobInfo) {
		info.Result = string(data)
	}) {
		return fmt.Errorf("job not found or already finished: %s", id)
	}
	return nil
}

// mutateLive applies fn to a non-terminal job under the lock. The lock is
// held only for the mutation, never across I/O.
func (r *Registry) mutateLive(id string, fn func(*JobInfo)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok || j.info.Status.Terminal() {
		return false
	}
	fn(&j.info)
	j.info.UpdatedAt = time.Now().UTC()
	return true
}

// Get returns a snapshot of one job
func (r *Registry) Get(id string) (JobInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return JobInfo{}, false
	}
	return j.info, true
}

// List returns snapshots of every registered job, oldest first
func (r *Registry) List() []JobInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]JobInfo, 0, len(r.jobs))
	for _, id := range r.order {
		if j, ok := r.jobs[id]; ok {
			out = append(out, j.info)
		}
	}
	return out
}

// Len returns the number of registered jobs
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Wait blocks until every spawned job goroutine has returned. Used during
// shutdown so in-flight transactions are not abandoned mid-chunk.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// evictLocked drops the oldest terminal jobs while the registry is at or
// over capacity. Caller holds the write lock.
func (r *Registry) evictLocked() {
	if len(r.jobs) < r.maxJobs {
		return
	}
	kept := r.order[:0]
	for _, id := range r.order {
		j, ok := r.jobs[id]
		if !ok {
			continue
		}
		if len(r.jobs) >= r.maxJobs && j.info.Status.Terminal() {
			delete(r.jobs, id)
			r.logger.Debug("evicted terminal job", "job_id", id, "status", j.info.Status)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
}
