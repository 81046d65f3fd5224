package application_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Zer0phucks/devconsul/pkg/pubworker"
	pubApp "github.com/Zer0phucks/devconsul/publishing/application"
	pubDomain "github.com/Zer0phucks/devconsul/publishing/domain"
	schedApp "github.com/Zer0phucks/devconsul/scheduling/application"
	schedDomain "github.com/Zer0phucks/devconsul/scheduling/domain"
	schedRepo "github.com/Zer0phucks/devconsul/scheduling/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// stubPublisher records calls and fails on demand.
type stubPublisher struct {
	name  string
	calls int32
	fail  bool
}

func (p *stubPublisher) Name() string { return p.name }

func (p *stubPublisher) Publish(ctx context.Context, req pubDomain.PublishRequest) (*pubDomain.PublishResult, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.fail {
		return nil, fmt.Errorf("stub publish failure")
	}
	return &pubDomain.PublishResult{Platform: req.Platform, PublishedAt: time.Now().UTC()}, nil
}

type testEnv struct {
	repo       schedDomain.IScheduleRepository
	queue      *schedApp.QueueService
	dispatcher *pubApp.Dispatcher
	pool       *pubworker.PublishWorkerPool
	publisher  *stubPublisher
}

func setupDispatcher(t *testing.T, failPublishes bool) *testEnv {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open("file:"+dbPath+"?_journal_mode=WAL&_foreign_keys=on"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	repo := schedRepo.NewScheduleGormRepository(db)
	require.NoError(t, repo.Init(context.Background()))
	metricsRepo := schedRepo.NewMetricsGormRepository(db)
	require.NoError(t, metricsRepo.Init(context.Background()))

	clock := schedDomain.SystemClock()
	metrics := schedApp.NewMetricsService(repo, metricsRepo, clock)
	queue := schedApp.NewQueueService(repo, metrics, clock, nil, schedApp.QueueDefaults{
		Priority:          5,
		MaxRetries:        3,
		RetryDelaySeconds: 300,
	}, "srv-test")

	publisher := &stubPublisher{name: "log", fail: failPublishes}
	registry := pubDomain.NewRegistry()
	registry.Register(publisher)
	registry.SetFallback(publisher)

	pool := pubworker.NewPublishWorkerPool(2, 50)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Stop()
	})

	dispatcher := pubApp.NewDispatcher(queue, repo, registry, pool, nil, clock, pubApp.DispatcherConfig{
		BatchSize:    10,
		PollInterval: time.Minute,
		MaxSleep:     time.Minute,
	})

	return &testEnv{repo: repo, queue: queue, dispatcher: dispatcher, pool: pool, publisher: publisher}
}

func TestProcessDue_PublishesAndCompletes(t *testing.T) {
	env := setupDispatcher(t, false)
	ctx := context.Background()

	item, err := env.queue.Enqueue(ctx, "content-1", "proj1", time.Now().UTC().Add(-time.Minute), schedApp.EnqueueOptions{
		Platforms: []string{"log"},
	})
	require.NoError(t, err)

	env.dispatcher.ProcessDue(ctx)

	require.Eventually(t, func() bool {
		got, err := env.queue.GetSchedule(ctx, item.ID)
		return err == nil && got.QueueStatus == schedDomain.QueueStatusCompleted
	}, 2*time.Second, 20*time.Millisecond)

	got, err := env.queue.GetSchedule(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, schedDomain.ContentStatusPublished, got.Status)
	require.NotNil(t, got.PublishedAt)
	assert.EqualValues(t, 1, atomic.LoadInt32(&env.publisher.calls))
}

func TestProcessDue_FailureSchedulesRetry(t *testing.T) {
	env := setupDispatcher(t, true)
	ctx := context.Background()

	item, err := env.queue.Enqueue(ctx, "content-1", "proj1", time.Now().UTC().Add(-time.Minute), schedApp.EnqueueOptions{
		Platforms: []string{"log"},
	})
	require.NoError(t, err)

	env.dispatcher.ProcessDue(ctx)

	require.Eventually(t, func() bool {
		got, err := env.queue.GetSchedule(ctx, item.ID)
		return err == nil && got.RetryCount == 1
	}, 2*time.Second, 20*time.Millisecond)

	got, err := env.queue.GetSchedule(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, schedDomain.QueueStatusPending, got.QueueStatus)
	assert.Equal(t, schedDomain.ContentStatusScheduled, got.Status)
	assert.Contains(t, got.Error, "publish failed")
	// retry pushed out by the delay, so it is not immediately due again
	assert.True(t, got.ScheduledFor.After(time.Now().UTC().Add(4*time.Minute)))
}

func TestProcessDue_LeavesFutureItemsAlone(t *testing.T) {
	env := setupDispatcher(t, false)
	ctx := context.Background()

	item, err := env.queue.Enqueue(ctx, "content-1", "proj1", time.Now().UTC().Add(time.Hour), schedApp.EnqueueOptions{})
	require.NoError(t, err)

	env.dispatcher.ProcessDue(ctx)
	time.Sleep(100 * time.Millisecond)

	got, err := env.queue.GetSchedule(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, schedDomain.QueueStatusPending, got.QueueStatus)
	assert.Zero(t, atomic.LoadInt32(&env.publisher.calls))
}
