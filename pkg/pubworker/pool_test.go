package pubworker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_DispatchNonBlocking(t *testing.T) {
	pool := NewPublishWorkerPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	start := time.Now()
	pool.Dispatch(PublishJob{
		ProjectID:  "proj1",
		ScheduleID: "sched1",
		Handler: func(ctx context.Context) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 10*time.Millisecond, "Dispatch must not block the caller")
}

func TestPool_SameProjectSequentialProcessing(t *testing.T) {
	pool := NewPublishWorkerPool(4, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	var results []int
	var mu sync.Mutex

	for i := 1; i <= 5; i++ {
		val := i
		pool.Dispatch(PublishJob{
			ProjectID:  "proj1",
			ScheduleID: fmt.Sprintf("sched-%d", val),
			Handler: func(ctx context.Context) error {
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				results = append(results, val)
				mu.Unlock()
				return nil
			},
		})
	}

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3, 4, 5}, results, "Jobs for the same project must run in order")
}

func TestPool_DifferentProjectsParallelProcessing(t *testing.T) {
	pool := NewPublishWorkerPool(4, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	var activeCount int32

	for i := 0; i < 4; i++ {
		projectID := string(rune('A' + i))
		pool.Dispatch(PublishJob{
			ProjectID:  projectID,
			ScheduleID: "sched1",
			Handler: func(ctx context.Context) error {
				atomic.AddInt32(&activeCount, 1)
				time.Sleep(50 * time.Millisecond)
				atomic.AddInt32(&activeCount, -1)
				return nil
			},
		})
	}

	time.Sleep(10 * time.Millisecond)

	active := atomic.LoadInt32(&activeCount)
	assert.GreaterOrEqual(t, active, int32(2), "Different projects should run in parallel")
}

func TestPool_GracefulShutdownCompletesInFlightJobs(t *testing.T) {
	pool := NewPublishWorkerPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())

	pool.Start(ctx)

	var completed int32

	for i := 0; i < 2; i++ {
		pool.Dispatch(PublishJob{
			ProjectID:  string(rune('A' + i)),
			ScheduleID: "sched1",
			Handler: func(ctx context.Context) error {
				time.Sleep(50 * time.Millisecond)
				atomic.AddInt32(&completed, 1)
				return nil
			},
		})
	}

	time.Sleep(10 * time.Millisecond)

	cancel()
	pool.Stop()

	assert.Equal(t, int32(2), atomic.LoadInt32(&completed), "In-flight jobs must finish on shutdown")
}

func TestPool_ConsistentHashing(t *testing.T) {
	pool := NewPublishWorkerPool(4, 100)

	shard1 := pool.shardForProject("proj-123")
	shard2 := pool.shardForProject("proj-123")
	shard3 := pool.shardForProject("proj-123")

	assert.Equal(t, shard1, shard2)
	assert.Equal(t, shard2, shard3)
	assert.GreaterOrEqual(t, shard1, 0)
	assert.Less(t, shard1, 4)
}

func TestPool_TryDispatchBackpressure(t *testing.T) {
	// A pool that was never started does not drain its queues, so the
	// per-worker queue fills up and TryDispatch starts refusing.
	pool := NewPublishWorkerPool(1, 2)

	handler := func(ctx context.Context) error { return nil }

	assert.True(t, pool.TryDispatch(PublishJob{ProjectID: "p", ScheduleID: "1", Handler: handler}))
	assert.True(t, pool.TryDispatch(PublishJob{ProjectID: "p", ScheduleID: "2", Handler: handler}))
	assert.False(t, pool.TryDispatch(PublishJob{ProjectID: "p", ScheduleID: "3", Handler: handler}))

	stats := pool.GetStats()
	assert.EqualValues(t, 3, stats.TotalDispatched)
	assert.EqualValues(t, 1, stats.TotalDropped)
}

func TestPool_StatsCountProcessedAndErrors(t *testing.T) {
	pool := NewPublishWorkerPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)

	pool.Dispatch(PublishJob{
		ProjectID:  "proj1",
		ScheduleID: "ok",
		Handler:    func(ctx context.Context) error { return nil },
	})
	pool.Dispatch(PublishJob{
		ProjectID:  "proj2",
		ScheduleID: "bad",
		Handler:    func(ctx context.Context) error { return fmt.Errorf("boom") },
	})

	time.Sleep(100 * time.Millisecond)
	pool.Stop()

	stats := pool.GetStats()
	assert.EqualValues(t, 2, stats.TotalDispatched)
	assert.EqualValues(t, 2, stats.TotalProcessed)
	assert.EqualValues(t, 1, stats.TotalErrors)
}
