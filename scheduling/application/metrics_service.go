package application

import (
	"context"
	"time"

	"github.com/Zer0phucks/devconsul/scheduling/domain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// recentSample bounds how many completed items feed the duration averages.
const recentSample = 100

// MetricsService computes live queue views and maintains the daily rollup
// rows in queue_metrics.
type MetricsService struct {
	schedules domain.IScheduleRepository
	metrics   domain.IMetricsRepository
	clock     domain.Clock
}

func NewMetricsService(schedules domain.IScheduleRepository, metrics domain.IMetricsRepository, clock domain.Clock) *MetricsService {
	if clock == nil {
		clock = domain.SystemClock()
	}
	return &MetricsService{schedules: schedules, metrics: metrics, clock: clock}
}

// ComputeStats builds the live view for a project from current row counts
// plus a sample of recently completed items. peakQueueLength is read from the
// latest rollup so the live view survives restarts.
func (s *MetricsService) ComputeStats(ctx context.Context, projectID string) (*domain.QueueStats, error) {
	counts, err := s.schedules.CountsByQueueStatus(ctx, projectID)
	if err != nil {
		return nil, err
	}

	stats := &domain.QueueStats{
		ProjectID:   projectID,
		Counts:      counts,
		QueueLength: counts[domain.QueueStatusPending] + counts[domain.QueueStatusQueued],
		ComputedAt:  s.clock.Now(),
	}

	completed := counts[domain.QueueStatusCompleted]
	failed := counts[domain.QueueStatusFailed]
	if completed+failed > 0 {
		stats.SuccessRate = float64(completed) / float64(completed+failed)
	}

	recent, err := s.schedules.RecentCompleted(ctx, projectID, recentSample)
	if err != nil {
		return nil, err
	}
	stats.AvgWaitSeconds, stats.AvgProcessingSeconds = averageDurations(recent)

	if latest, err := s.metrics.GetLatest(ctx, projectID); err == nil {
		stats.PeakQueueLength = latest.PeakQueueLength
	} else if err != domain.ErrMetricsNotFound {
		return nil, err
	}
	if stats.QueueLength > stats.PeakQueueLength {
		stats.PeakQueueLength = stats.QueueLength
	}
	return stats, nil
}

// UpdateQueueMetrics upserts the rollup row for the current UTC day. Counters
// are recomputed from the schedule store; peakQueueLength only ratchets up,
// never down, within a period.
func (s *MetricsService) UpdateQueueMetrics(ctx context.Context, projectID string) (*domain.QueueMetrics, error) {
	stats, err := s.ComputeStats(ctx, projectID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	periodStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 0, 1)

	row := &domain.QueueMetrics{
		ID:                   uuid.New().String(),
		ProjectID:            projectID,
		PeriodStart:          periodStart,
		PeriodEnd:            periodEnd,
		QueuedCount:          stats.QueueLength,
		ProcessedCount:       stats.Counts[domain.QueueStatusCompleted] + stats.Counts[domain.QueueStatusFailed],
		CompletedCount:       stats.Counts[domain.QueueStatusCompleted],
		FailedCount:          stats.Counts[domain.QueueStatusFailed],
		CancelledCount:       stats.Counts[domain.QueueStatusCancelled],
		PeakQueueLength:      stats.QueueLength,
		AvgWaitSeconds:       stats.AvgWaitSeconds,
		AvgProcessingSeconds: stats.AvgProcessingSeconds,
		SuccessRate:          stats.SuccessRate,
		UpdatedAt:            now,
	}

	if existing, err := s.metrics.GetByPeriod(ctx, projectID, periodStart); err == nil {
		row.ID = existing.ID
		if existing.PeakQueueLength > row.PeakQueueLength {
			row.PeakQueueLength = existing.PeakQueueLength
		}
	} else if err != domain.ErrMetricsNotFound {
		return nil, err
	}

	if err := s.metrics.Upsert(ctx, row); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"project_id":   projectID,
		"period_start": periodStart.Format("2006-01-02"),
		"queue_length": row.QueuedCount,
	}).Debug("[METRICS] Rollup updated")
	return row, nil
}

// GetMetrics returns the rollup row covering the given instant's UTC day.
func (s *MetricsService) GetMetrics(ctx context.Context, projectID string, at time.Time) (*domain.QueueMetrics, error) {
	at = at.UTC()
	periodStart := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	return s.metrics.GetByPeriod(ctx, projectID, periodStart)
}

func averageDurations(items []*domain.ScheduledContent) (wait, processing float64) {
	var waitSum, procSum float64
	var waitN, procN int
	for _, it := range items {
		if it.QueuedAt != nil && it.ProcessingAt != nil {
			waitSum += it.ProcessingAt.Sub(*it.QueuedAt).Seconds()
			waitN++
		}
		if it.ProcessingAt != nil && it.PublishedAt != nil {
			procSum += it.PublishedAt.Sub(*it.ProcessingAt).Seconds()
			procN++
		}
	}
	if waitN > 0 {
		wait = waitSum / float64(waitN)
	}
	if procN > 0 {
		processing = procSum / float64(procN)
	}
	return wait, processing
}
