package application

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Zer0phucks/devconsul/infrastructure/valkey"
	"github.com/Zer0phucks/devconsul/pkg/pubworker"
	pubDomain "github.com/Zer0phucks/devconsul/publishing/domain"
	schedApp "github.com/Zer0phucks/devconsul/scheduling/application"
	schedDomain "github.com/Zer0phucks/devconsul/scheduling/domain"
	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"
)

// DispatcherConfig tunes the background publishing loop.
type DispatcherConfig struct {
	BatchSize    int           // items claimed per project per cycle
	PollInterval time.Duration // safety ticker period
	MaxSleep     time.Duration // cap on the adaptive sleep
	// StuckSweepEnabled turns on reclaiming of rows stuck in PROCESSING.
	// Off by default: a slow publish and a crashed one look the same, and
	// requeueing a slow one can double-publish.
	StuckSweepEnabled bool
	ProcessingTimeout time.Duration
}

// Dispatcher is the background worker that drains due items: it claims them,
// runs each publish on the worker pool, and reports the outcome back to the
// queue. Multiple dispatcher instances are safe against each other because
// claiming is conditional in the store.
type Dispatcher struct {
	queue    *schedApp.QueueService
	repo     schedDomain.IScheduleRepository
	registry *pubDomain.Registry
	pool     *pubworker.PublishWorkerPool
	vk       *valkey.Client // optional; nil means poll-only
	clock    schedDomain.Clock
	cfg      DispatcherConfig
	wake     chan struct{}

	cycles       atomic.Int64
	totalClaimed atomic.Int64
	lastRunUnix  atomic.Int64
}

func NewDispatcher(
	queue *schedApp.QueueService,
	repo schedDomain.IScheduleRepository,
	registry *pubDomain.Registry,
	pool *pubworker.PublishWorkerPool,
	vk *valkey.Client,
	clock schedDomain.Clock,
	cfg DispatcherConfig,
) *Dispatcher {
	if clock == nil {
		clock = schedDomain.SystemClock()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.MaxSleep <= 0 {
		cfg.MaxSleep = 1 * time.Hour
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 15 * time.Minute
	}
	return &Dispatcher{
		queue:    queue,
		repo:     repo,
		registry: registry,
		pool:     pool,
		vk:       vk,
		clock:    clock,
		cfg:      cfg,
		wake:     make(chan struct{}, 1),
	}
}

// StartLoop launches the reactive background worker.
func (d *Dispatcher) StartLoop(ctx context.Context) {
	if d.vk != nil {
		signalChan := d.vk.Key(schedApp.SignalChannel)
		logrus.Infof("[DISPATCH] Reactive worker started. Watching channel %s", signalChan)

		go func() {
			err := d.vk.Inner().Receive(ctx, d.vk.Inner().B().Subscribe().Channel(signalChan).Build(), func(msg valkeylib.PubSubMessage) {
				logrus.Debug("[DISPATCH] Wake-up signal received from Valkey")
				select {
				case d.wake <- struct{}{}:
				default:
				}
			})
			if err != nil && ctx.Err() == nil {
				logrus.WithError(err).Error("[DISPATCH] Pub/Sub listener failed")
			}
		}()
	} else {
		logrus.Warn("[DISPATCH] Valkey disabled. Running on safety polling only.")
	}

	go d.runWorker(ctx)
}

func (d *Dispatcher) runWorker(ctx context.Context) {
	// Initial hydration
	d.ProcessDue(ctx)

	safetyTicker := time.NewTicker(d.cfg.PollInterval)
	defer safetyTicker.Stop()

	for {
		nextAt := d.nextDue(ctx)

		sleepDuration := d.cfg.MaxSleep
		if !nextAt.IsZero() {
			sleepDuration = nextAt.Sub(d.clock.Now())
			if sleepDuration < 0 {
				sleepDuration = 1 * time.Second
			}
			if sleepDuration > d.cfg.MaxSleep {
				sleepDuration = d.cfg.MaxSleep
			}
		}

		adaptiveTimer := time.NewTimer(sleepDuration)
		select {
		case <-ctx.Done():
			adaptiveTimer.Stop()
			return
		case <-safetyTicker.C:
			adaptiveTimer.Stop()
			d.sweepStuck(ctx)
			d.ProcessDue(ctx)
		case <-d.wake:
			adaptiveTimer.Stop()
			d.ProcessDue(ctx)
		case <-adaptiveTimer.C:
			d.ProcessDue(ctx)
		}
	}
}

// ProcessDue runs one dispatch cycle: claim due items per project and hand
// each one to the worker pool.
func (d *Dispatcher) ProcessDue(ctx context.Context) {
	now := d.clock.Now()
	d.cycles.Add(1)
	d.lastRunUnix.Store(now.Unix())

	projects, err := d.repo.DueProjects(ctx, now)
	if err != nil {
		logrus.WithError(err).Error("[DISPATCH] Listing due projects failed")
		return
	}

	for _, projectID := range projects {
		items, err := d.queue.Dequeue(ctx, projectID, d.cfg.BatchSize)
		if err != nil {
			logrus.WithError(err).WithField("project_id", projectID).Error("[DISPATCH] Claim failed")
			continue
		}
		d.totalClaimed.Add(int64(len(items)))
		for _, item := range items {
			it := item
			dispatched := d.pool.TryDispatch(pubworker.PublishJob{
				ProjectID:  it.ProjectID,
				ScheduleID: it.ID,
				Handler: func(jobCtx context.Context) error {
					return d.publishItem(jobCtx, it.ID)
				},
			})
			if !dispatched {
				// Stays QUEUED; the next cycle re-claims nothing (already
				// QUEUED rows are claimable again) so it is retried then.
				logrus.Warnf("[DISPATCH] Pool rejected %s, will retry next cycle", it.ID)
			}
		}
	}
}

// publishItem runs the full lifecycle for one claimed item.
func (d *Dispatcher) publishItem(ctx context.Context, id string) error {
	item, err := d.queue.MarkProcessing(ctx, id)
	if err != nil {
		if err == schedDomain.ErrInvalidTransition {
			// Lost the race to another dispatcher or the item was paused
			// or cancelled after claiming. Nothing to do.
			logrus.Debugf("[DISPATCH] Skipping %s, no longer claimable", id)
			return nil
		}
		return err
	}

	platforms := item.Platforms
	if len(platforms) == 0 {
		platforms = []string{"log"}
	}

	var (
		failed      []string
		successes   int
		publishedAt time.Time
	)
	for _, platform := range platforms {
		publisher, ok := d.registry.Get(platform)
		if !ok {
			failed = append(failed, fmt.Sprintf("%s: no publisher registered", platform))
			continue
		}
		res, err := publisher.Publish(ctx, pubDomain.PublishRequest{
			ScheduleID: item.ID,
			ContentID:  item.ContentID,
			ProjectID:  item.ProjectID,
			Platform:   platform,
			PublishAt:  item.ScheduledFor,
		})
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", platform, err))
			logrus.Warnf("Failed publishing %s to %s: %v", item.ID, platform, err)
			continue
		}
		successes++
		if res.PublishedAt.After(publishedAt) {
			publishedAt = res.PublishedAt
		}
	}

	if len(failed) > 0 {
		errMsg := fmt.Sprintf("publish failed (succeeded: %d/%d): %s",
			successes, len(platforms), strings.Join(failed, "; "))
		willRetry, err := d.queue.MarkFailed(ctx, item.ID, errMsg, map[string]any{
			"platforms_failed": len(failed),
			"platforms_total":  len(platforms),
		})
		if err != nil {
			return err
		}
		if !willRetry {
			logrus.Errorf("[DISPATCH] Item %s failed terminally", item.ID)
		}
		return nil
	}

	if publishedAt.IsZero() {
		publishedAt = d.clock.Now()
	}
	_, err = d.queue.MarkCompleted(ctx, item.ID, &publishedAt)
	return err
}

// sweepStuck requeues rows that have sat in PROCESSING past the timeout.
// Guarded by a cluster-wide lock so only one instance sweeps at a time.
func (d *Dispatcher) sweepStuck(ctx context.Context) {
	if !d.cfg.StuckSweepEnabled {
		return
	}
	if d.vk != nil && !d.vk.TryLock(ctx, "lock:dispatch:sweep", 55*time.Second) {
		return
	}

	cutoff := d.clock.Now().Add(-d.cfg.ProcessingTimeout)
	n, err := d.repo.RequeueStuckProcessing(ctx, cutoff)
	if err != nil {
		logrus.WithError(err).Error("[DISPATCH] Stuck sweep failed")
		return
	}
	if n > 0 {
		logrus.Warnf("[DISPATCH] Requeued %d items stuck in processing", n)
	}
}

// nextDue asks the store when the earliest waiting item comes due.
func (d *Dispatcher) nextDue(ctx context.Context) time.Time {
	at, err := d.repo.NextDueAt(ctx)
	if err != nil {
		logrus.WithError(err).Debug("[DISPATCH] Next-due lookup failed")
		return time.Time{}
	}
	if at == nil {
		return time.Time{}
	}
	return *at
}

// DispatcherStats is the live snapshot served by the stats endpoint.
type DispatcherStats struct {
	Cycles       int64               `json:"cycles"`
	TotalClaimed int64               `json:"total_claimed"`
	LastRunAt    *time.Time          `json:"last_run_at,omitempty"`
	Pool         pubworker.PoolStats `json:"pool"`
}

func (d *Dispatcher) Stats() DispatcherStats {
	stats := DispatcherStats{
		Cycles:       d.cycles.Load(),
		TotalClaimed: d.totalClaimed.Load(),
		Pool:         d.pool.GetStats(),
	}
	if unix := d.lastRunUnix.Load(); unix > 0 {
		t := time.Unix(unix, 0).UTC()
		stats.LastRunAt = &t
	}
	return stats
}
