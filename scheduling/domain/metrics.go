package domain

import "time"

// QueueMetrics is the per-project, per-UTC-day rollup row. Owned by the
// metrics aggregator; read-only to everything else.
type QueueMetrics struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	QueuedCount    int `json:"queued_count"`
	ProcessedCount int `json:"processed_count"`
	CompletedCount int `json:"completed_count"`
	FailedCount    int `json:"failed_count"`
	CancelledCount int `json:"cancelled_count"`

	AvgWaitSeconds       float64 `json:"avg_wait_seconds"`
	AvgProcessingSeconds float64 `json:"avg_processing_seconds"`
	// PeakQueueLength ratchets up within the day, never down.
	PeakQueueLength int     `json:"peak_queue_length"`
	SuccessRate     float64 `json:"success_rate"`

	UpdatedAt time.Time `json:"updated_at"`
}

// QueueStats is the live view computed on demand from the schedule store.
type QueueStats struct {
	ProjectID string              `json:"project_id"`
	Counts    map[QueueStatus]int `json:"counts"`
	// QueueLength is the number of rows currently waiting (PENDING + QUEUED).
	QueueLength          int     `json:"queue_length"`
	AvgWaitSeconds       float64 `json:"avg_wait_seconds"`
	AvgProcessingSeconds float64 `json:"avg_processing_seconds"`
	SuccessRate          float64 `json:"success_rate"`
	// PeakQueueLength comes from the latest persisted rollup, not live data.
	PeakQueueLength int       `json:"peak_queue_length"`
	ComputedAt      time.Time `json:"computed_at"`
}
