package pubworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// PublishJob is one publish attempt handed to the pool. Jobs for the same
// project land on the same worker, so a project's publishes run in order.
type PublishJob struct {
	ProjectID  string
	ScheduleID string
	Handler    func(ctx context.Context) error
}

// PoolStats is a point-in-time snapshot of the pool.
type PoolStats struct {
	NumWorkers      int            `json:"num_workers"`
	QueueSize       int            `json:"queue_size"`
	ActiveWorkers   int            `json:"active_workers"`
	TotalDispatched int64          `json:"total_dispatched"`
	TotalProcessed  int64          `json:"total_processed"`
	TotalDropped    int64          `json:"total_dropped"`
	TotalErrors     int64          `json:"total_errors"`
	WorkerStats     []WorkerStats  `json:"worker_stats"`
	ActiveJobs      map[string]int `json:"active_jobs"` // projectID|scheduleID -> worker_id
}

// WorkerStats holds per-worker counters.
type WorkerStats struct {
	WorkerID      int   `json:"worker_id"`
	QueueDepth    int   `json:"queue_depth"`
	IsProcessing  bool  `json:"is_processing"`
	JobsProcessed int64 `json:"jobs_processed"`
}

type activeJobEntry struct {
	workerID  int
	updatedAt time.Time
}

// PublishWorkerPool runs publish attempts on a fixed set of workers, one
// queue per worker, sharded by project.
type PublishWorkerPool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    int32
	stopCh     chan struct{}

	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64
	activeJobsMu    sync.RWMutex
	activeJobs      map[string]activeJobEntry
	startTime       time.Time

	// Hooks for external monitoring.
	OnWorkerStart func(workerID int, jobKey string)
	OnWorkerEnd   func(workerID int, jobKey string)
}

type worker struct {
	id            int
	jobQueue      chan PublishJob
	ctx           context.Context
	cancel        context.CancelFunc
	isProcessing  int32
	jobsProcessed int64
	pool          *PublishWorkerPool
}

// NewPublishWorkerPool creates a pool with the given worker and queue sizes.
func NewPublishWorkerPool(numWorkers, queueSize int) *PublishWorkerPool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if queueSize <= 0 {
		queueSize = 100
	}

	p := &PublishWorkerPool{
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
		activeJobs: make(map[string]activeJobEntry),
		stopCh:     make(chan struct{}),
		startTime:  time.Now(),
	}
	// Queues exist from construction so TryDispatch works (and applies
	// backpressure) before Start.
	for i := 0; i < numWorkers; i++ {
		p.workers[i] = &worker{
			id:       i,
			jobQueue: make(chan PublishJob, queueSize),
			pool:     p,
		}
	}
	return p
}

// Start launches the workers plus a janitor that drops stale active-job
// entries left behind by crashed handlers.
func (p *PublishWorkerPool) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				now := time.Now()
				p.activeJobsMu.Lock()
				for k, v := range p.activeJobs {
					if !v.updatedAt.IsZero() && now.Sub(v.updatedAt) > 2*time.Second {
						delete(p.activeJobs, k)
					}
				}
				p.activeJobsMu.Unlock()
			}
		}
	}()

	for _, w := range p.workers {
		w.ctx, w.cancel = context.WithCancel(ctx)
		p.wg.Add(1)
		go w.run(&p.wg)
	}

	logrus.Infof("[PUB_WORKER_POOL] Started with %d workers, queue size: %d", p.numWorkers, p.queueSize)
}

// TryDispatch enqueues the job on its project's worker without blocking and
// reports whether the job was accepted. Lets callers apply backpressure.
func (p *PublishWorkerPool) TryDispatch(job PublishJob) bool {
	if atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}

	shard := p.shardForProject(job.ProjectID)
	atomic.AddInt64(&p.totalDispatched, 1)

	jobKey := job.ProjectID + "|" + job.ScheduleID
	p.activeJobsMu.Lock()
	p.activeJobs[jobKey] = activeJobEntry{workerID: shard, updatedAt: time.Now()}
	p.activeJobsMu.Unlock()

	sent := func() (ok bool) {
		defer func() {
			if r := recover(); r != nil {
				ok = false
			}
		}()
		select {
		case p.workers[shard].jobQueue <- job:
			return true
		default:
			return false
		}
	}()

	if sent {
		return true
	}
	p.activeJobsMu.Lock()
	delete(p.activeJobs, jobKey)
	p.activeJobsMu.Unlock()

	atomic.AddInt64(&p.totalDropped, 1)
	logrus.Warnf("[PUB_WORKER_POOL] Worker %d queue full (or stopped), dropping job for %s|%s",
		shard, job.ProjectID, job.ScheduleID)
	return false
}

// Dispatch is TryDispatch with the result discarded.
func (p *PublishWorkerPool) Dispatch(job PublishJob) {
	_ = p.TryDispatch(job)
}

// Stop shuts the pool down gracefully, draining queued jobs first.
func (p *PublishWorkerPool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		close(p.stopCh)
		logrus.Info("[PUB_WORKER_POOL] Stopping workers...")

		for _, w := range p.workers {
			if w.cancel != nil {
				w.cancel()
			}
			close(w.jobQueue)
		}

		p.wg.Wait()

		logrus.Info("[PUB_WORKER_POOL] All workers stopped")
	})
}

func (p *PublishWorkerPool) shardForProject(projectID string) int {
	h := fnv.New32a()
	h.Write([]byte(projectID))
	return int(h.Sum32() % uint32(p.numWorkers))
}

// GetStats returns a live snapshot of the pool.
func (p *PublishWorkerPool) GetStats() PoolStats {
	workerStats := make([]WorkerStats, len(p.workers))
	activeWorkers := 0

	for i, w := range p.workers {
		isProcessing := atomic.LoadInt32(&w.isProcessing) == 1
		if isProcessing {
			activeWorkers++
		}

		workerStats[i] = WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.jobQueue),
			IsProcessing:  isProcessing,
			JobsProcessed: atomic.LoadInt64(&w.jobsProcessed),
		}
	}

	now := time.Now()
	p.activeJobsMu.Lock()
	activeJobsSnapshot := make(map[string]int, len(p.activeJobs))
	for k, v := range p.activeJobs {
		if !v.updatedAt.IsZero() && now.Sub(v.updatedAt) > 2*time.Second {
			delete(p.activeJobs, k)
			continue
		}
		activeJobsSnapshot[k] = v.workerID
	}
	p.activeJobsMu.Unlock()

	return PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		ActiveWorkers:   activeWorkers,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
		WorkerStats:     workerStats,
		ActiveJobs:      activeJobsSnapshot,
	}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	logrus.Debugf("[PUB_WORKER_POOL] Worker %d started", w.id)

	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				logrus.Debugf("[PUB_WORKER_POOL] Worker %d shutting down", w.id)
				return
			}

			func() {
				jobKey := job.ProjectID + "|" + job.ScheduleID

				if w.pool.OnWorkerStart != nil {
					w.pool.OnWorkerStart(w.id, jobKey)
				}
				atomic.StoreInt32(&w.isProcessing, 1)
				defer func() {
					if r := recover(); r != nil {
						atomic.AddInt64(&w.pool.totalErrors, 1)
						logrus.Errorf("[PUB_WORKER_POOL] Worker %d panic for %s: %v", w.id, jobKey, r)
					}
					if w.pool.OnWorkerEnd != nil {
						w.pool.OnWorkerEnd(w.id, jobKey)
					}
					atomic.StoreInt32(&w.isProcessing, 0)
					atomic.AddInt64(&w.jobsProcessed, 1)
					atomic.AddInt64(&w.pool.totalProcessed, 1)
				}()

				err := job.Handler(w.ctx)

				if err != nil {
					atomic.AddInt64(&w.pool.totalErrors, 1)
					logrus.WithError(err).Errorf("[PUB_WORKER_POOL] Worker %d job failed for %s|%s",
						w.id, job.ProjectID, job.ScheduleID)
				}
			}()

		case <-w.ctx.Done():
			logrus.Debugf("[PUB_WORKER_POOL] Worker %d context cancelled, draining queue...", w.id)
			w.drainQueue()
			return
		}
	}
}

func (w *worker) drainQueue() {
	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				return
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						atomic.AddInt64(&w.pool.totalErrors, 1)
						logrus.Errorf("[PUB_WORKER_POOL] Worker %d drain panic: %v", w.id, r)
					}
				}()
				if err := job.Handler(w.ctx); err != nil {
					logrus.WithError(err).Errorf("[PUB_WORKER_POOL] Worker %d drain job failed", w.id)
				}
			}()
		default:
			return
		}
	}
}
