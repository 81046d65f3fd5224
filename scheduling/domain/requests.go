package domain

import (
	"time"

	"github.com/Zer0phucks/devconsul/pkg/timeutils"
)

// CreateScheduleRequest is the inbound payload for scheduling content.
type CreateScheduleRequest struct {
	ContentID         string                `json:"content_id"`
	ProjectID         string                `json:"project_id"`
	ScheduledFor      time.Time             `json:"scheduled_for"`
	Timezone          string                `json:"timezone,omitempty"`
	Platforms         []string              `json:"platforms,omitempty"`
	Priority          *int                  `json:"priority,omitempty"`
	MaxRetries        *int                  `json:"max_retries,omitempty"`
	RetryDelaySeconds *int                  `json:"retry_delay_seconds,omitempty"`
	Recurrence        *timeutils.Recurrence `json:"recurrence,omitempty"`
	RecurringUntil    *time.Time            `json:"recurring_until,omitempty"`
}

// BatchRequest carries the schedule IDs for a batch operation.
type BatchRequest struct {
	IDs []string `json:"ids"`
}

// DequeueRequest asks for up to Limit due items to be claimed.
type DequeueRequest struct {
	Limit int `json:"limit"`
}
