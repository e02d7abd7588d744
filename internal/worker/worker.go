package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"stemd/internal/config"
	"stemd/internal/logging"
	"stemd/internal/queue"
)

// Processor handles one dequeued job end to end.
type Processor interface {
	Process(ctx context.Context, job *queue.Job) error
}

// Worker consumes the job queue until its context is cancelled. Idle polls
// sleep for the configured poll interval; repository failures back off for
// the error retry interval.
type Worker struct {
	cfg       *config.Config
	store     *queue.Store
	processor Processor
	heartbeat *HeartbeatMonitor
	logger    *slog.Logger

	// reclaims enables the periodic stale-job sweep on this worker. Only one
	// worker per pool needs it.
	reclaims    bool
	lastReclaim time.Time
}

// New constructs a worker.
func New(cfg *config.Config, store *queue.Store, processor Processor, logger *slog.Logger, opts ...OptionFunc) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &Worker{
		cfg:       cfg,
		store:     store,
		processor: processor,
		heartbeat: NewHeartbeatMonitor(store, logger, cfg.HeartbeatInterval(), cfg.HeartbeatTimeout()),
		logger:    logging.NewComponentLogger(logger, "worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OptionFunc configures a worker.
type OptionFunc func(*Worker)

// WithReclaim enables periodic stale-job reclamation on this worker.
func WithReclaim() OptionFunc {
	return func(w *Worker) {
		w.reclaims = true
	}
}

// WithName tags the worker's log output.
func WithName(name string) OptionFunc {
	return func(w *Worker) {
		w.logger = w.logger.With(logging.String("worker", name))
	}
}

// Run polls the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started",
		logging.Duration("poll_interval", w.cfg.PollInterval()),
		logging.Duration("error_retry_interval", w.cfg.ErrorRetryInterval()),
	)
	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return
		}

		w.maybeReclaim(ctx)

		job, err := w.store.DequeueNext(ctx)
		if err != nil {
			w.logger.Error("queue poll failed", logging.Error(err))
			sleepContext(ctx, w.cfg.ErrorRetryInterval())
			continue
		}
		if job == nil {
			sleepContext(ctx, w.cfg.PollInterval())
			continue
		}

		w.handle(ctx, job)
	}
}

// handle drives one job while a heartbeat loop keeps its lease fresh.
// Cancellation only stops the polling loop: the in-flight run keeps a
// non-cancellable context so the current job reaches a terminal state
// before the worker exits.
func (w *Worker) handle(ctx context.Context, job *queue.Job) {
	jobCtx := context.WithoutCancel(ctx)

	hbCtx, stopHeartbeat := context.WithCancel(jobCtx)
	var wg sync.WaitGroup
	wg.Add(1)
	go w.heartbeat.StartLoop(hbCtx, &wg, job.ID)

	err := w.processor.Process(jobCtx, job)

	stopHeartbeat()
	wg.Wait()

	if err != nil {
		w.logger.Error("job processing errored",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
		sleepContext(ctx, w.cfg.ErrorRetryInterval())
	}
}

// maybeReclaim runs the stale sweep at half the lease timeout.
func (w *Worker) maybeReclaim(ctx context.Context) {
	if !w.reclaims {
		return
	}
	timeout := w.cfg.HeartbeatTimeout()
	if timeout <= 0 {
		return
	}
	if !w.lastReclaim.IsZero() && time.Since(w.lastReclaim) < timeout/2 {
		return
	}
	w.lastReclaim = time.Now()
	if err := w.heartbeat.ReclaimStale(ctx); err != nil {
		w.logger.Warn("stale reclaim failed", logging.Error(err))
	}
}

// sleepContext pauses for d or until ctx is cancelled. It reports whether
// the full duration elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
