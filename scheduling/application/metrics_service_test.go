package application_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Zer0phucks/devconsul/scheduling/application"
	"github.com/Zer0phucks/devconsul/scheduling/domain"
	"github.com/Zer0phucks/devconsul/scheduling/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMetricsService(t *testing.T) (*application.MetricsService, *application.QueueService, *fakeClock) {
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

	repo := repository.NewScheduleGormRepository(db)
	require.NoError(t, repo.Init(context.Background()))
	metricsRepo := repository.NewMetricsGormRepository(db)
	require.NoError(t, metricsRepo.Init(context.Background()))

	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	metrics := application.NewMetricsService(repo, metricsRepo, clock)
	queue := application.NewQueueService(repo, metrics, clock, nil, application.QueueDefaults{
		Priority:          5,
		MaxRetries:        3,
		RetryDelaySeconds: 300,
	}, "srv-test")
	return metrics, queue, clock
}

func TestComputeStats_CountsAndQueueLength(t *testing.T) {
	metrics, queue, clock := setupMetricsService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := queue.Enqueue(ctx, "content", "proj1", clock.Now().Add(time.Hour), application.EnqueueOptions{})
		require.NoError(t, err)
	}

	stats, err := metrics.ComputeStats(ctx, "proj1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.QueueLength)
	assert.Equal(t, 3, stats.Counts[domain.QueueStatusPending])
	assert.Zero(t, stats.SuccessRate)
}

func TestUpdateQueueMetrics_PeakRatchetsUpNotDown(t *testing.T) {
	metrics, queue, clock := setupMetricsService(t)
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		item, err := queue.Enqueue(ctx, "content", "proj1", clock.Now().Add(-time.Minute), application.EnqueueOptions{})
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}

	row, err := metrics.UpdateQueueMetrics(ctx, "proj1")
	require.NoError(t, err)
	assert.Equal(t, 3, row.PeakQueueLength)
	assert.Equal(t, 3, row.QueuedCount)

	// Drain the queue; the peak must survive the recompute.
	_, err = queue.Dequeue(ctx, "proj1", 10)
	require.NoError(t, err)
	for _, id := range ids {
		_, err = queue.MarkProcessing(ctx, id)
		require.NoError(t, err)
		_, err = queue.MarkCompleted(ctx, id, nil)
		require.NoError(t, err)
	}

	row, err = metrics.UpdateQueueMetrics(ctx, "proj1")
	require.NoError(t, err)
	assert.Equal(t, 0, row.QueuedCount)
	assert.Equal(t, 3, row.PeakQueueLength)
	assert.Equal(t, 3, row.CompletedCount)
	assert.Equal(t, 1.0, row.SuccessRate)
}

func TestSuccessRate_MixedOutcomes(t *testing.T) {
	metrics, queue, clock := setupMetricsService(t)
	ctx := context.Background()

	maxRetries := 1
	ok, err := queue.Enqueue(ctx, "ok", "proj1", clock.Now().Add(-time.Minute), application.EnqueueOptions{})
	require.NoError(t, err)
	bad, err := queue.Enqueue(ctx, "bad", "proj1", clock.Now().Add(-time.Minute), application.EnqueueOptions{MaxRetries: &maxRetries})
	require.NoError(t, err)

	_, err = queue.Dequeue(ctx, "proj1", 10)
	require.NoError(t, err)
	_, err = queue.MarkProcessing(ctx, ok.ID)
	require.NoError(t, err)
	_, err = queue.MarkCompleted(ctx, ok.ID, nil)
	require.NoError(t, err)
	_, err = queue.MarkProcessing(ctx, bad.ID)
	require.NoError(t, err)
	willRetry, err := queue.MarkFailed(ctx, bad.ID, "boom", nil)
	require.NoError(t, err)
	require.False(t, willRetry)

	stats, err := metrics.ComputeStats(ctx, "proj1")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, stats.SuccessRate, 0.001)
}

func TestGetMetrics_UnknownPeriod(t *testing.T) {
	metrics, _, clock := setupMetricsService(t)
	_, err := metrics.GetMetrics(context.Background(), "proj1", clock.Now())
	assert.ErrorIs(t, err, domain.ErrMetricsNotFound)
}
