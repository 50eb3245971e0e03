package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgaillard/solbatch/internal/jobs"
)

func quickConfig() Config {
	return Config{Timeout: 2 * time.Second, Interval: 5 * time.Millisecond}
}

func TestPollJobCompletes(t *testing.T) {
	registry := jobs.NewRegistry(10, nil, nil)
	svc := NewService(registry, nil)

	release := make(chan struct{})
	id := registry.Spawn("slowish", func(ctx context.Context) error {
		<-release
		return nil
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	info, err := svc.PollJob(context.Background(), id, quickConfig())
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusSucceeded, info.Status)
}

func TestPollJobTimesOut(t *testing.T) {
	registry := jobs.NewRegistry(10, nil, nil)
	svc := NewService(registry, nil)

	release := make(chan struct{})
	id := registry.Spawn("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})
	defer func() { close(release); registry.Wait() }()

	info, err := svc.PollJob(context.Background(), id, Config{Timeout: 30 * time.Millisecond, Interval: 5 * time.Millisecond})
	require.ErrorIs(t, err, ErrTimeout)
	// The last observed snapshot comes back with the timeout
	assert.Equal(t, jobs.StatusRunning, info.Status)
}

func TestPollJobUnknownIDFailsFast(t *testing.T) {
	registry := jobs.NewRegistry(10, nil, nil)
	svc := NewService(registry, nil)

	start := time.Now()
	_, err := svc.PollJob(context.Background(), "missing", quickConfig())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.Less(t, time.Since(start), time.Second, "unknown id must not burn the timeout")
}

func TestPollJobHonorsContext(t *testing.T) {
	registry := jobs.NewRegistry(10, nil, nil)
	svc := NewService(registry, nil)

	release := make(chan struct{})
	id := registry.Spawn("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})
	defer func() { close(release); registry.Wait() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.PollJob(ctx, id, quickConfig())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPollBatchCounts(t *testing.T) {
	registry := jobs.NewRegistry(10, nil, nil)
	svc := NewService(registry, nil)

	ok1 := registry.Spawn("ok", func(ctx context.Context) error { return nil })
	ok2 := registry.Spawn("ok", func(ctx context.Context) error { return nil })
	bad := registry.Spawn("bad", func(ctx context.Context) error { return errors.New("boom") })
	partial := registry.Spawn("mixed", func(ctx context.Context) error { return jobs.ErrPartialFailure })

	started := make(chan struct{})
	cancelled := registry.Spawn("cancelme", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started
	require.True(t, registry.Cancel(cancelled))

	result, err := svc.PollBatch(context.Background(),
		[]string{ok1, ok2, bad, partial, cancelled}, quickConfig())
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total)
	// Partial counts as completed: work finished, some operands failed
	assert.Equal(t, 3, result.Completed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Cancelled)
	assert.Len(t, result.Jobs, 5)
}

func TestPollBatchTimesOut(t *testing.T) {
	registry := jobs.NewRegistry(10, nil, nil)
	svc := NewService(registry, nil)

	release := make(chan struct{})
	done := registry.Spawn("ok", func(ctx context.Context) error { return nil })
	stuck := registry.Spawn("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})
	defer func() { close(release); registry.Wait() }()

	result, err := svc.PollBatch(context.Background(), []string{done, stuck},
		Config{Timeout: 30 * time.Millisecond, Interval: 5 * time.Millisecond})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 2, result.Total)
}

func TestStartControlledBatchGroups(t *testing.T) {
	registry := jobs.NewRegistry(100, nil, nil)
	svc := NewService(registry, nil)

	// Track how many jobs run at once; the group size caps concurrency
	var mu = make(chan struct{}, 1)
	running, peak := 0, 0

	launcher := func() string {
		return registry.Spawn("grouped", func(ctx context.Context) error {
			mu <- struct{}{}
			running++
			if running > peak {
				peak = running
			}
			<-mu
			time.Sleep(10 * time.Millisecond)
			mu <- struct{}{}
			running--
			<-mu
			return nil
		})
	}

	launchers := make([]Launcher, 7)
	for i := range launchers {
		launchers[i] = launcher
	}

	ids, err := svc.StartControlledBatch(context.Background(), launchers, 3, quickConfig())
	require.NoError(t, err)
	assert.Len(t, ids, 7)
	assert.LessOrEqual(t, peak, 3)

	for _, id := range ids {
		info, ok := registry.Get(id)
		require.True(t, ok)
		assert.Equal(t, jobs.StatusSucceeded, info.Status)
	}
}
