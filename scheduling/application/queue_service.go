package application

import (
	"context"
	"fmt"
	"time"

	"github.com/Zer0phucks/devconsul/infrastructure/valkey"
	"github.com/Zer0phucks/devconsul/pkg/timeutils"
	"github.com/Zer0phucks/devconsul/scheduling/domain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SignalChannel is the pub/sub channel (before key prefixing) used to wake a
// sleeping dispatcher when new work is enqueued.
const SignalChannel = "queue:signal"

// QueueDefaults are applied when an enqueue request leaves a field unset.
type QueueDefaults struct {
	Priority          int
	MaxRetries        int
	RetryDelaySeconds int
}

// EnqueueOptions carries the optional parts of an enqueue request.
type EnqueueOptions struct {
	Timezone          string
	Platforms         []string
	Priority          *int
	MaxRetries        *int
	RetryDelaySeconds *int
	Recurrence        *timeutils.Recurrence
	RecurringUntil    *time.Time
}

// QueueService implements the queue state machine over the schedule store.
type QueueService struct {
	repo     domain.IScheduleRepository
	metrics  *MetricsService
	clock    domain.Clock
	vk       *valkey.Client // optional; nil disables wake-up signals
	defaults QueueDefaults
	serverID string
}

func NewQueueService(repo domain.IScheduleRepository, metrics *MetricsService, clock domain.Clock, vk *valkey.Client, defaults QueueDefaults, serverID string) *QueueService {
	if clock == nil {
		clock = domain.SystemClock()
	}
	return &QueueService{
		repo:     repo,
		metrics:  metrics,
		clock:    clock,
		vk:       vk,
		defaults: defaults,
		serverID: serverID,
	}
}

// Enqueue inserts a new publishing intent in PENDING/SCHEDULED. A past
// scheduledFor is allowed and means "due immediately". No uniqueness is
// enforced across concurrent enqueues of the same content and platforms.
func (s *QueueService) Enqueue(ctx context.Context, contentID, projectID string, scheduledFor time.Time, opts EnqueueOptions) (*domain.ScheduledContent, error) {
	if contentID == "" || projectID == "" {
		return nil, fmt.Errorf("contentID and projectID are required")
	}
	if opts.Recurrence != nil {
		if err := opts.Recurrence.Validate(); err != nil {
			return nil, fmt.Errorf("invalid recurrence: %w", err)
		}
	}

	now := s.clock.Now()
	item := &domain.ScheduledContent{
		ID:                uuid.New().String(),
		ContentID:         contentID,
		ProjectID:         projectID,
		ScheduledFor:      scheduledFor.UTC(),
		Timezone:          opts.Timezone,
		Platforms:         opts.Platforms,
		Priority:          s.defaults.Priority,
		QueueStatus:       domain.QueueStatusPending,
		Status:            domain.ContentStatusScheduled,
		MaxRetries:        s.defaults.MaxRetries,
		RetryDelaySeconds: s.defaults.RetryDelaySeconds,
		IsRecurring:       opts.Recurrence != nil,
		Recurrence:        opts.Recurrence,
		RecurringUntil:    opts.RecurringUntil,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if opts.Priority != nil {
		item.Priority = *opts.Priority
	}
	if opts.MaxRetries != nil {
		item.MaxRetries = *opts.MaxRetries
	}
	if opts.RetryDelaySeconds != nil {
		item.RetryDelaySeconds = *opts.RetryDelaySeconds
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}

	s.recomputeMetrics(ctx, projectID)
	s.signal(ctx, item.ID)
	return item, nil
}

// Dequeue atomically claims up to limit due items for the project, ordered by
// priority descending then scheduledFor ascending, and marks them QUEUED.
func (s *QueueService) Dequeue(ctx context.Context, projectID string, limit int) ([]*domain.ScheduledContent, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.repo.ClaimDue(ctx, projectID, limit, s.clock.Now(), s.serverID)
}

// MarkProcessing moves a claimed item to PROCESSING/ACTIVE.
func (s *QueueService) MarkProcessing(ctx context.Context, id string) (*domain.ScheduledContent, error) {
	affected, err := s.repo.MarkProcessing(ctx, id, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, s.transitionError(ctx, id)
	}
	return s.repo.GetByID(ctx, id)
}

// MarkCompleted reports terminal success. For a recurring item the successor
// row is inserted in PENDING before the current row is completed, so an
// observer never sees a recurring chain with no live row. The successor is
// only spawned while recurringUntil is unset or the next occurrence falls on
// or before it.
func (s *QueueService) MarkCompleted(ctx context.Context, id string, publishedAt *time.Time) (*domain.ScheduledContent, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// A row already in a terminal state never accepts another outcome
	// report; without this check a duplicate completion of a recurring
	// item would insert a second successor.
	if item.QueueStatus.Terminal() || item.QueueStatus == domain.QueueStatusPaused {
		return nil, domain.ErrInvalidTransition
	}

	if item.IsRecurring && item.Recurrence != nil {
		if err := s.spawnSuccessor(ctx, item); err != nil {
			return nil, err
		}
	}

	done := s.clock.Now()
	if publishedAt != nil {
		done = publishedAt.UTC()
	}
	affected, err := s.repo.MarkCompleted(ctx, id, done)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, s.transitionError(ctx, id)
	}

	s.recomputeMetrics(ctx, item.ProjectID)
	return s.repo.GetByID(ctx, id)
}

// MarkFailed reports a failed publish attempt. While retries remain the item
// is put back to PENDING with scheduledFor pushed out by the fixed retry
// delay and true is returned; once retries are exhausted the item goes
// terminal FAILED and false is returned.
func (s *QueueService) MarkFailed(ctx context.Context, id string, errMsg string, details map[string]any) (bool, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	now := s.clock.Now()
	newCount := item.RetryCount + 1

	if newCount < item.MaxRetries {
		nextAttempt := now.Add(item.RetryDelay())
		affected, err := s.repo.MarkFailedRetry(ctx, id, newCount, nextAttempt, errMsg, details)
		if err != nil {
			return false, err
		}
		if affected == 0 {
			return false, s.transitionError(ctx, id)
		}
		logrus.WithFields(logrus.Fields{
			"schedule_id": id,
			"retry":       newCount,
			"max_retries": item.MaxRetries,
			"next_at":     nextAttempt.Format(time.RFC3339),
		}).Warn("[QUEUE] Publish failed, retry scheduled")
		s.signal(ctx, id)
		return true, nil
	}

	affected, err := s.repo.MarkFailedTerminal(ctx, id, newCount, now, errMsg, details)
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, s.transitionError(ctx, id)
	}
	logrus.WithField("schedule_id", id).Error("[QUEUE] Publish failed terminally, retries exhausted")

	s.recomputeMetrics(ctx, item.ProjectID)
	return false, nil
}

// CancelSchedule cancels a single non-terminal item. Cancellation is
// cooperative: a publish already in flight is not interrupted, the row just
// stops being dequeued.
func (s *QueueService) CancelSchedule(ctx context.Context, id string) error {
	return s.single(ctx, id, s.repo.CancelMany)
}

// PauseSchedule pauses a waiting item; only queueStatus changes.
func (s *QueueService) PauseSchedule(ctx context.Context, id string) error {
	return s.single(ctx, id, s.repo.PauseMany)
}

// ResumeSchedule moves a paused item back to PENDING.
func (s *QueueService) ResumeSchedule(ctx context.Context, id string) error {
	if err := s.single(ctx, id, s.repo.ResumeMany); err != nil {
		return err
	}
	s.signal(ctx, id)
	return nil
}

// Batch variants return how many rows the guard actually let through.

func (s *QueueService) BatchCancel(ctx context.Context, ids []string) (int64, error) {
	return s.repo.CancelMany(ctx, ids)
}

func (s *QueueService) BatchPause(ctx context.Context, ids []string) (int64, error) {
	return s.repo.PauseMany(ctx, ids)
}

func (s *QueueService) BatchResume(ctx context.Context, ids []string) (int64, error) {
	n, err := s.repo.ResumeMany(ctx, ids)
	if err == nil && n > 0 {
		s.signal(ctx, "batch-resume")
	}
	return n, err
}

// GetSchedule returns a single item by ID.
func (s *QueueService) GetSchedule(ctx context.Context, id string) (*domain.ScheduledContent, error) {
	return s.repo.GetByID(ctx, id)
}

// ListSchedules returns the project's items ordered by due time.
func (s *QueueService) ListSchedules(ctx context.Context, projectID string, limit, offset int) ([]*domain.ScheduledContent, error) {
	return s.repo.ListByProject(ctx, projectID, limit, offset)
}

// GetQueueStats returns the live queue view for a project.
func (s *QueueService) GetQueueStats(ctx context.Context, projectID string) (*domain.QueueStats, error) {
	return s.metrics.ComputeStats(ctx, projectID)
}

// spawnSuccessor inserts the next occurrence of a recurring item.
func (s *QueueService) spawnSuccessor(ctx context.Context, item *domain.ScheduledContent) error {
	next, err := timeutils.NextOccurrence(*item.Recurrence, item.ScheduledFor)
	if err != nil {
		return fmt.Errorf("compute next occurrence: %w", err)
	}
	if item.RecurringUntil != nil && next.After(*item.RecurringUntil) {
		logrus.WithField("schedule_id", item.ID).Info("[QUEUE] Recurrence window closed, no successor")
		return nil
	}

	now := s.clock.Now()
	successor := &domain.ScheduledContent{
		ID:                uuid.New().String(),
		ContentID:         item.ContentID,
		ProjectID:         item.ProjectID,
		ScheduledFor:      next,
		Timezone:          item.Timezone,
		Platforms:         item.Platforms,
		Priority:          item.Priority,
		QueueStatus:       domain.QueueStatusPending,
		Status:            domain.ContentStatusScheduled,
		MaxRetries:        item.MaxRetries,
		RetryDelaySeconds: item.RetryDelaySeconds,
		IsRecurring:       true,
		Recurrence:        item.Recurrence,
		RecurringUntil:    item.RecurringUntil,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, successor); err != nil {
		return fmt.Errorf("create successor: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"schedule_id":  item.ID,
		"successor_id": successor.ID,
		"next_at":      next.Format(time.RFC3339),
	}).Info("[QUEUE] Recurring successor scheduled")
	return nil
}

// single runs a batch guard over one ID and translates a zero count into the
// right error.
func (s *QueueService) single(ctx context.Context, id string, op func(context.Context, []string) (int64, error)) error {
	n, err := op(ctx, []string{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

// transitionError distinguishes "row missing" from "row in a state the
// transition does not permit".
func (s *QueueService) transitionError(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

func (s *QueueService) recomputeMetrics(ctx context.Context, projectID string) {
	if s.metrics == nil {
		return
	}
	if _, err := s.metrics.UpdateQueueMetrics(ctx, projectID); err != nil {
		logrus.WithError(err).WithField("project_id", projectID).Warn("[QUEUE] Metrics recompute failed")
	}
}

// signal wakes sleeping dispatchers through Valkey pub/sub. Best effort; the
// safety poll covers lost signals.
func (s *QueueService) signal(ctx context.Context, payload string) {
	if s.vk == nil {
		return
	}
	if err := s.vk.Publish(ctx, SignalChannel, payload); err != nil {
		logrus.WithError(err).Debug("[QUEUE] Wake-up signal failed")
	}
}
