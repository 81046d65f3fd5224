package domain

import (
	"context"
	"time"
)

// IScheduleRepository is the persistence port for scheduled content.
// All conditional state transitions return the number of rows actually
// changed so callers can detect lost races.
type IScheduleRepository interface {
	Init(ctx context.Context) error

	Create(ctx context.Context, item *ScheduledContent) error
	GetByID(ctx context.Context, id string) (*ScheduledContent, error)
	ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*ScheduledContent, error)

	// ClaimDue atomically claims up to limit due rows for the project
	// (scheduled_for <= now, queue status PENDING or QUEUED, lifecycle
	// SCHEDULED), ordered by priority descending then scheduled_for
	// ascending, and marks them QUEUED. A row claimed by a concurrent
	// caller is skipped, never returned twice.
	ClaimDue(ctx context.Context, projectID string, limit int, now time.Time, claimedBy string) ([]*ScheduledContent, error)

	// MarkProcessing moves a QUEUED or PENDING row to PROCESSING/ACTIVE.
	MarkProcessing(ctx context.Context, id string, now time.Time) (int64, error)

	// MarkCompleted moves a PROCESSING row to COMPLETED/PUBLISHED.
	MarkCompleted(ctx context.Context, id string, publishedAt time.Time) (int64, error)

	// MarkFailedRetry puts a PROCESSING row back to PENDING/SCHEDULED with
	// the new retry count and next attempt time.
	MarkFailedRetry(ctx context.Context, id string, retryCount int, nextAttempt time.Time, errMsg string, details map[string]any) (int64, error)

	// MarkFailedTerminal moves a PROCESSING row to FAILED/FAILED.
	MarkFailedTerminal(ctx context.Context, id string, retryCount int, failedAt time.Time, errMsg string, details map[string]any) (int64, error)

	// Batch status writes, guarded by current queue status. Each returns
	// the number of affected rows.
	CancelMany(ctx context.Context, ids []string) (int64, error)
	PauseMany(ctx context.Context, ids []string) (int64, error)
	ResumeMany(ctx context.Context, ids []string) (int64, error)

	// Stats queries.
	CountsByQueueStatus(ctx context.Context, projectID string) (map[QueueStatus]int, error)
	RecentCompleted(ctx context.Context, projectID string, limit int) ([]*ScheduledContent, error)

	// Dispatcher support.
	DueProjects(ctx context.Context, now time.Time) ([]string, error)
	NextDueAt(ctx context.Context) (*time.Time, error)
	// RequeueStuckProcessing moves rows stuck in PROCESSING since before
	// the cutoff back to PENDING/SCHEDULED.
	RequeueStuckProcessing(ctx context.Context, cutoff time.Time) (int64, error)
}

// IMetricsRepository is the persistence port for the per-day rollups.
type IMetricsRepository interface {
	Init(ctx context.Context) error

	// Upsert inserts or replaces the rollup keyed by (project, period start).
	Upsert(ctx context.Context, m *QueueMetrics) error
	GetByPeriod(ctx context.Context, projectID string, periodStart time.Time) (*QueueMetrics, error)
	// GetLatest returns the most recent rollup for the project.
	GetLatest(ctx context.Context, projectID string) (*QueueMetrics, error)
}
