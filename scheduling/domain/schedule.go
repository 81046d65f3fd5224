package domain

import (
	"time"

	"github.com/Zer0phucks/devconsul/pkg/timeutils"
)

// QueueStatus is the fine-grained queue state of a scheduled item.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "PENDING"
	QueueStatusQueued     QueueStatus = "QUEUED"
	QueueStatusProcessing QueueStatus = "PROCESSING"
	QueueStatusCompleted  QueueStatus = "COMPLETED"
	QueueStatusFailed     QueueStatus = "FAILED"
	QueueStatusCancelled  QueueStatus = "CANCELLED"
	QueueStatusPaused     QueueStatus = "PAUSED"
)

// Terminal reports whether no further queue transitions are possible.
func (s QueueStatus) Terminal() bool {
	switch s {
	case QueueStatusCompleted, QueueStatusFailed, QueueStatusCancelled:
		return true
	}
	return false
}

// ContentStatus is the higher-level publishing lifecycle of a scheduled item.
type ContentStatus string

const (
	ContentStatusScheduled ContentStatus = "SCHEDULED"
	ContentStatusActive    ContentStatus = "ACTIVE"
	ContentStatusPublished ContentStatus = "PUBLISHED"
	ContentStatusFailed    ContentStatus = "FAILED"
	ContentStatusCancelled ContentStatus = "CANCELLED"
)

// ScheduledContent represents one (content item x target platform set x time)
// publishing intent.
//
// Queue lifecycle: PENDING -> QUEUED -> PROCESSING -> {COMPLETED | retry loop
// back to PENDING | FAILED}, with side transitions to CANCELLED or PAUSED from
// any non-terminal state and PAUSED -> PENDING on resume. Recurring items spawn
// a successor row when they complete.
type ScheduledContent struct {
	ID           string    `json:"id"`
	ContentID    string    `json:"content_id"`
	ProjectID    string    `json:"project_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Timezone     string    `json:"timezone,omitempty"`
	Platforms    []string  `json:"platforms"`
	// Priority: higher publishes sooner. Default 5.
	Priority    int           `json:"priority"`
	QueueStatus QueueStatus   `json:"queue_status"`
	Status      ContentStatus `json:"status"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
	// RetryDelay is the fixed (not exponential) delay between attempts, in seconds.
	RetryDelaySeconds int `json:"retry_delay_seconds"`

	IsRecurring    bool                  `json:"is_recurring"`
	Recurrence     *timeutils.Recurrence `json:"recurrence,omitempty"`
	RecurringUntil *time.Time            `json:"recurring_until,omitempty"`

	Error        string         `json:"error,omitempty"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`

	QueuedAt     *time.Time `json:"queued_at,omitempty"`
	ProcessingAt *time.Time `json:"processing_at,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`

	// ClaimedBy records which dispatcher instance claimed the row.
	ClaimedBy string `json:"claimed_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RetryDelay returns the configured retry delay as a duration.
func (s *ScheduledContent) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelaySeconds) * time.Second
}

// Due reports whether the item is ready to be claimed at the given instant.
func (s *ScheduledContent) Due(now time.Time) bool {
	return !s.ScheduledFor.After(now) &&
		(s.QueueStatus == QueueStatusPending || s.QueueStatus == QueueStatusQueued) &&
		s.Status == ContentStatusScheduled
}
