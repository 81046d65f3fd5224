package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Zer0phucks/devconsul/pkg/timeutils"
	"github.com/Zer0phucks/devconsul/scheduling/domain"
	"gorm.io/gorm"
)

// --- Persistence Models ---

type scheduledContentModel struct {
	ID                string         `gorm:"primaryKey"`
	ContentID         string         `gorm:"column:content_id;not null;index"`
	ProjectID         string         `gorm:"column:project_id;not null;index:idx_project_due"`
	ScheduledFor      time.Time      `gorm:"column:scheduled_for;not null;index:idx_project_due"`
	Timezone          sql.NullString `gorm:"column:timezone"`
	Platforms         string         `gorm:"column:platforms;type:text;not null"` // JSON
	Priority          int            `gorm:"column:priority;default:5"`
	QueueStatus       string         `gorm:"column:queue_status;default:'PENDING';index"`
	Status            string         `gorm:"column:status;default:'SCHEDULED';index"`
	RetryCount        int            `gorm:"column:retry_count;default:0"`
	MaxRetries        int            `gorm:"column:max_retries;default:3"`
	RetryDelaySeconds int            `gorm:"column:retry_delay_seconds;default:300"`
	IsRecurring       bool           `gorm:"column:is_recurring;default:false"`
	RecurringPattern  sql.NullString `gorm:"column:recurring_pattern"`
	RecurringConfig   sql.NullString `gorm:"column:recurring_config"` // JSON
	RecurringUntil    *time.Time     `gorm:"column:recurring_until"`
	Error             sql.NullString `gorm:"column:error"`
	ErrorDetails      sql.NullString `gorm:"column:error_details"` // JSON
	QueuedAt          *time.Time     `gorm:"column:queued_at"`
	ProcessingAt      *time.Time     `gorm:"column:processing_at"`
	PublishedAt       *time.Time     `gorm:"column:published_at"`
	FailedAt          *time.Time     `gorm:"column:failed_at"`
	ClaimedBy         sql.NullString `gorm:"column:claimed_by"`
	CreatedAt         time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;not null"`
}

func (scheduledContentModel) TableName() string { return "scheduled_content" }

// claimable are the queue states a dequeue may take a row from.
var claimable = []string{string(domain.QueueStatusPending), string(domain.QueueStatusQueued)}

// active are the states an outcome report (complete/fail) may transition from.
// Terminal rows and paused rows never accept outcome reports, which keeps
// double completion impossible: the first report wins, the second matches
// zero rows.
var active = []string{
	string(domain.QueueStatusPending),
	string(domain.QueueStatusQueued),
	string(domain.QueueStatusProcessing),
}

// --- Repository Implementation ---

type ScheduleGormRepository struct {
	db *gorm.DB
}

func NewScheduleGormRepository(db *gorm.DB) *ScheduleGormRepository {
	return &ScheduleGormRepository{db: db}
}

func (r *ScheduleGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&scheduledContentModel{})
}

func (r *ScheduleGormRepository) Create(ctx context.Context, item *domain.ScheduledContent) error {
	model, err := toScheduledContentModel(item)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *ScheduleGormRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledContent, error) {
	var m scheduledContentModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, err
	}
	return fromScheduledContentModel(m)
}

func (r *ScheduleGormRepository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.ScheduledContent, error) {
	var models []scheduledContentModel
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("scheduled_for ASC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromScheduledContentModels(models)
}

// ClaimDue selects due candidates in dispatch order and claims each one with a
// conditional UPDATE guarded on the current queue status. The read is
// optimistic; the guarded write is what makes the claim atomic, so a row
// grabbed by a concurrent dispatcher simply yields zero affected rows here
// and is skipped.
func (r *ScheduleGormRepository) ClaimDue(ctx context.Context, projectID string, limit int, now time.Time, claimedBy string) ([]*domain.ScheduledContent, error) {
	var candidates []scheduledContentModel
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND scheduled_for <= ? AND queue_status IN ? AND status = ?",
			projectID, now, claimable, string(domain.ContentStatusScheduled)).
		Order("priority DESC, scheduled_for ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	claimed := make([]*domain.ScheduledContent, 0, len(candidates))
	for _, c := range candidates {
		res := r.db.WithContext(ctx).
			Model(&scheduledContentModel{}).
			Where("id = ? AND queue_status IN ? AND status = ?", c.ID, claimable, string(domain.ContentStatusScheduled)).
			Updates(map[string]any{
				"queue_status": string(domain.QueueStatusQueued),
				"queued_at":    gorm.Expr("COALESCE(queued_at, ?)", now),
				"claimed_by":   claimedBy,
			})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 0 {
			// lost the race to another dispatcher
			continue
		}
		item, err := r.GetByID(ctx, c.ID)
		if err != nil {
			return claimed, err
		}
		claimed = append(claimed, item)
	}
	return claimed, nil
}

func (r *ScheduleGormRepository) MarkProcessing(ctx context.Context, id string, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&scheduledContentModel{}).
		Where("id = ? AND queue_status IN ?", id, claimable).
		Updates(map[string]any{
			"queue_status":  string(domain.QueueStatusProcessing),
			"status":        string(domain.ContentStatusActive),
			"processing_at": now,
		})
	return res.RowsAffected, res.Error
}

func (r *ScheduleGormRepository) MarkCompleted(ctx context.Context, id string, publishedAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&scheduledContentModel{}).
		Where("id = ? AND queue_status IN ?", id, active).
		Updates(map[string]any{
			"queue_status": string(domain.QueueStatusCompleted),
			"status":       string(domain.ContentStatusPublished),
			"published_at": publishedAt,
		})
	return res.RowsAffected, res.Error
}

func (r *ScheduleGormRepository) MarkFailedRetry(ctx context.Context, id string, retryCount int, nextAttempt time.Time, errMsg string, details map[string]any) (int64, error) {
	detailsJSON, err := encodeDetails(details)
	if err != nil {
		return 0, err
	}
	res := r.db.WithContext(ctx).
		Model(&scheduledContentModel{}).
		Where("id = ? AND queue_status IN ?", id, active).
		Updates(map[string]any{
			"queue_status":  string(domain.QueueStatusPending),
			"status":        string(domain.ContentStatusScheduled),
			"retry_count":   retryCount,
			"scheduled_for": nextAttempt,
			"error":         errMsg,
			"error_details": detailsJSON,
			"claimed_by":    "",
		})
	return res.RowsAffected, res.Error
}

func (r *ScheduleGormRepository) MarkFailedTerminal(ctx context.Context, id string, retryCount int, failedAt time.Time, errMsg string, details map[string]any) (int64, error) {
	detailsJSON, err := encodeDetails(details)
	if err != nil {
		return 0, err
	}
	res := r.db.WithContext(ctx).
		Model(&scheduledContentModel{}).
		Where("id = ? AND queue_status IN ?", id, active).
		Updates(map[string]any{
			"queue_status":  string(domain.QueueStatusFailed),
			"status":        string(domain.ContentStatusFailed),
			"retry_count":   retryCount,
			"failed_at":     failedAt,
			"error":         errMsg,
			"error_details": detailsJSON,
		})
	return res.RowsAffected, res.Error
}

func (r *ScheduleGormRepository) CancelMany(ctx context.Context, ids []string) (int64, error) {
	nonTerminal := []string{
		string(domain.QueueStatusPending),
		string(domain.QueueStatusQueued),
		string(domain.QueueStatusProcessing),
		string(domain.QueueStatusPaused),
	}
	res := r.db.WithContext(ctx).
		Model(&scheduledContentModel{}).
		Where("id IN ? AND queue_status IN ?", ids, nonTerminal).
		Updates(map[string]any{
			"queue_status": string(domain.QueueStatusCancelled),
			"status":       string(domain.ContentStatusCancelled),
		})
	return res.RowsAffected, res.Error
}

func (r *ScheduleGormRepository) PauseMany(ctx context.Context, ids []string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&scheduledContentModel{}).
		Where("id IN ? AND queue_status IN ?", ids, claimable).
		Update("queue_status", string(domain.QueueStatusPaused))
	return res.RowsAffected, res.Error
}

func (r *ScheduleGormRepository) ResumeMany(ctx context.Context, ids []string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&scheduledContentModel{}).
		Where("id IN ? AND queue_status = ?", ids, string(domain.QueueStatusPaused)).
		Update("queue_status", string(domain.QueueStatusPending))
	return res.RowsAffected, res.Error
}

func (r *ScheduleGormRepository) CountsByQueueStatus(ctx context.Context, projectID string) (map[domain.QueueStatus]int, error) {
	type row struct {
		QueueStatus string
		Total       int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&scheduledContentModel{}).
		Select("queue_status, COUNT(*) AS total").
		Where("project_id = ?", projectID).
		Group("queue_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.QueueStatus]int, len(rows))
	for _, r := range rows {
		counts[domain.QueueStatus(r.QueueStatus)] = int(r.Total)
	}
	return counts, nil
}

func (r *ScheduleGormRepository) RecentCompleted(ctx context.Context, projectID string, limit int) ([]*domain.ScheduledContent, error) {
	var models []scheduledContentModel
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND queue_status = ?", projectID, string(domain.QueueStatusCompleted)).
		Order("published_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromScheduledContentModels(models)
}

func (r *ScheduleGormRepository) DueProjects(ctx context.Context, now time.Time) ([]string, error) {
	var projects []string
	err := r.db.WithContext(ctx).
		Model(&scheduledContentModel{}).
		Distinct("project_id").
		Where("scheduled_for <= ? AND queue_status IN ? AND status = ?",
			now, claimable, string(domain.ContentStatusScheduled)).
		Pluck("project_id", &projects).Error
	return projects, err
}

func (r *ScheduleGormRepository) NextDueAt(ctx context.Context) (*time.Time, error) {
	var models []scheduledContentModel
	err := r.db.WithContext(ctx).
		Where("queue_status IN ? AND status = ?", claimable, string(domain.ContentStatusScheduled)).
		Order("scheduled_for ASC").
		Limit(1).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	t := models[0].ScheduledFor
	return &t, nil
}

func (r *ScheduleGormRepository) RequeueStuckProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&scheduledContentModel{}).
		Where("queue_status = ? AND processing_at < ?", string(domain.QueueStatusProcessing), cutoff).
		Updates(map[string]any{
			"queue_status": string(domain.QueueStatusPending),
			"status":       string(domain.ContentStatusScheduled),
			"claimed_by":   "",
		})
	return res.RowsAffected, res.Error
}

// --- Mapping ---

func toScheduledContentModel(item *domain.ScheduledContent) (scheduledContentModel, error) {
	platformsJSON, err := json.Marshal(item.Platforms)
	if err != nil {
		return scheduledContentModel{}, err
	}

	m := scheduledContentModel{
		ID:                item.ID,
		ContentID:         item.ContentID,
		ProjectID:         item.ProjectID,
		ScheduledFor:      item.ScheduledFor,
		Timezone:          toNullString(item.Timezone),
		Platforms:         string(platformsJSON),
		Priority:          item.Priority,
		QueueStatus:       string(item.QueueStatus),
		Status:            string(item.Status),
		RetryCount:        item.RetryCount,
		MaxRetries:        item.MaxRetries,
		RetryDelaySeconds: item.RetryDelaySeconds,
		IsRecurring:       item.IsRecurring,
		RecurringUntil:    item.RecurringUntil,
		Error:             toNullString(item.Error),
		QueuedAt:          item.QueuedAt,
		ProcessingAt:      item.ProcessingAt,
		PublishedAt:       item.PublishedAt,
		FailedAt:          item.FailedAt,
		ClaimedBy:         toNullString(item.ClaimedBy),
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
	}

	if item.Recurrence != nil {
		recJSON, err := json.Marshal(item.Recurrence)
		if err != nil {
			return scheduledContentModel{}, err
		}
		m.RecurringPattern = toNullString(item.Recurrence.Pattern)
		m.RecurringConfig = toNullString(string(recJSON))
	}
	if item.ErrorDetails != nil {
		detJSON, err := json.Marshal(item.ErrorDetails)
		if err != nil {
			return scheduledContentModel{}, err
		}
		m.ErrorDetails = toNullString(string(detJSON))
	}
	return m, nil
}

func fromScheduledContentModel(m scheduledContentModel) (*domain.ScheduledContent, error) {
	item := &domain.ScheduledContent{
		ID:                m.ID,
		ContentID:         m.ContentID,
		ProjectID:         m.ProjectID,
		ScheduledFor:      m.ScheduledFor,
		Timezone:          m.Timezone.String,
		Priority:          m.Priority,
		QueueStatus:       domain.QueueStatus(m.QueueStatus),
		Status:            domain.ContentStatus(m.Status),
		RetryCount:        m.RetryCount,
		MaxRetries:        m.MaxRetries,
		RetryDelaySeconds: m.RetryDelaySeconds,
		IsRecurring:       m.IsRecurring,
		RecurringUntil:    m.RecurringUntil,
		Error:             m.Error.String,
		QueuedAt:          m.QueuedAt,
		ProcessingAt:      m.ProcessingAt,
		PublishedAt:       m.PublishedAt,
		FailedAt:          m.FailedAt,
		ClaimedBy:         m.ClaimedBy.String,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}

	if m.Platforms != "" {
		if err := json.Unmarshal([]byte(m.Platforms), &item.Platforms); err != nil {
			return nil, err
		}
	}
	if m.RecurringConfig.Valid && m.RecurringConfig.String != "" {
		var rec timeutils.Recurrence
		if err := json.Unmarshal([]byte(m.RecurringConfig.String), &rec); err != nil {
			return nil, err
		}
		item.Recurrence = &rec
	}
	if m.ErrorDetails.Valid && m.ErrorDetails.String != "" {
		if err := json.Unmarshal([]byte(m.ErrorDetails.String), &item.ErrorDetails); err != nil {
			return nil, err
		}
	}
	return item, nil
}

func fromScheduledContentModels(models []scheduledContentModel) ([]*domain.ScheduledContent, error) {
	res := make([]*domain.ScheduledContent, 0, len(models))
	for _, m := range models {
		item, err := fromScheduledContentModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, nil
}

func encodeDetails(details map[string]any) (string, error) {
	if details == nil {
		return "", nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
