package repository

import (
	"context"
	"time"

	"github.com/Zer0phucks/devconsul/scheduling/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type queueMetricsModel struct {
	ID          string    `gorm:"primaryKey"`
	ProjectID   string    `gorm:"column:project_id;not null;uniqueIndex:idx_project_period"`
	PeriodStart time.Time `gorm:"column:period_start;not null;uniqueIndex:idx_project_period"`
	PeriodEnd   time.Time `gorm:"column:period_end;not null"`

	QueuedCount    int `gorm:"column:queued_count;default:0"`
	ProcessedCount int `gorm:"column:processed_count;default:0"`
	CompletedCount int `gorm:"column:completed_count;default:0"`
	FailedCount    int `gorm:"column:failed_count;default:0"`
	CancelledCount int `gorm:"column:cancelled_count;default:0"`

	AvgWaitSeconds       float64 `gorm:"column:avg_wait_seconds;default:0"`
	AvgProcessingSeconds float64 `gorm:"column:avg_processing_seconds;default:0"`
	PeakQueueLength      int     `gorm:"column:peak_queue_length;default:0"`
	SuccessRate          float64 `gorm:"column:success_rate;default:0"`

	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (queueMetricsModel) TableName() string { return "queue_metrics" }

type MetricsGormRepository struct {
	db *gorm.DB
}

func NewMetricsGormRepository(db *gorm.DB) *MetricsGormRepository {
	return &MetricsGormRepository{db: db}
}

func (r *MetricsGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&queueMetricsModel{})
}

// Upsert writes the rollup keyed by (project_id, period_start); an existing
// row for the same period is replaced field by field.
func (r *MetricsGormRepository) Upsert(ctx context.Context, m *domain.QueueMetrics) error {
	model := toQueueMetricsModel(m)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "project_id"}, {Name: "period_start"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"period_end", "queued_count", "processed_count", "completed_count",
				"failed_count", "cancelled_count", "avg_wait_seconds",
				"avg_processing_seconds", "peak_queue_length", "success_rate",
				"updated_at",
			}),
		}).
		Create(&model).Error
}

func (r *MetricsGormRepository) GetByPeriod(ctx context.Context, projectID string, periodStart time.Time) (*domain.QueueMetrics, error) {
	var m queueMetricsModel
	err := r.db.WithContext(ctx).
		First(&m, "project_id = ? AND period_start = ?", projectID, periodStart).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrMetricsNotFound
		}
		return nil, err
	}
	return fromQueueMetricsModel(m), nil
}

func (r *MetricsGormRepository) GetLatest(ctx context.Context, projectID string) (*domain.QueueMetrics, error) {
	var m queueMetricsModel
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("period_start DESC").
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrMetricsNotFound
		}
		return nil, err
	}
	return fromQueueMetricsModel(m), nil
}

func toQueueMetricsModel(m *domain.QueueMetrics) queueMetricsModel {
	return queueMetricsModel{
		ID:                   m.ID,
		ProjectID:            m.ProjectID,
		PeriodStart:          m.PeriodStart,
		PeriodEnd:            m.PeriodEnd,
		QueuedCount:          m.QueuedCount,
		ProcessedCount:       m.ProcessedCount,
		CompletedCount:       m.CompletedCount,
		FailedCount:          m.FailedCount,
		CancelledCount:       m.CancelledCount,
		AvgWaitSeconds:       m.AvgWaitSeconds,
		AvgProcessingSeconds: m.AvgProcessingSeconds,
		PeakQueueLength:      m.PeakQueueLength,
		SuccessRate:          m.SuccessRate,
		UpdatedAt:            m.UpdatedAt,
	}
}

func fromQueueMetricsModel(m queueMetricsModel) *domain.QueueMetrics {
	return &domain.QueueMetrics{
		ID:                   m.ID,
		ProjectID:            m.ProjectID,
		PeriodStart:          m.PeriodStart,
		PeriodEnd:            m.PeriodEnd,
		QueuedCount:          m.QueuedCount,
		ProcessedCount:       m.ProcessedCount,
		CompletedCount:       m.CompletedCount,
		FailedCount:          m.FailedCount,
		CancelledCount:       m.CancelledCount,
		AvgWaitSeconds:       m.AvgWaitSeconds,
		AvgProcessingSeconds: m.AvgProcessingSeconds,
		PeakQueueLength:      m.PeakQueueLength,
		SuccessRate:          m.SuccessRate,
		UpdatedAt:            m.UpdatedAt,
	}
}
