package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"stemd/internal/api"
	"stemd/internal/config"
	"stemd/internal/logging"
	"stemd/internal/queue"
	"stemd/internal/worker"
)

// Daemon composes the queue store, the worker pool, and the retention sweep
// into a single lifecycle, with flock-based locking so only one daemon
// instance runs per host.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *queue.Store
	service   *api.Service
	processor worker.Processor

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, service *api.Service, processor worker.Processor, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || service == nil || processor == nil {
		return nil, errors.New("daemon requires config, store, service, and processor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "stemd.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		service:   service,
		processor: processor,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the worker pool and the
// retention sweeper.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another stemd daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	workers := d.cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		opts := []worker.OptionFunc{worker.WithName(fmt.Sprintf("worker-%d", i+1))}
		if i == 0 {
			opts = append(opts, worker.WithReclaim())
		}
		w := worker.New(d.cfg, d.store, d.processor, d.logger, opts...)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			w.Run(runCtx)
		}()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runSweeper(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("stemd daemon started",
		logging.Int("workers", workers),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop halts background processing and releases the instance lock. It blocks
// until all workers have exited.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("stemd daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon lifecycle is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Health reports aggregated readiness.
func (d *Daemon) Health(ctx context.Context) api.HealthStatus {
	return d.service.Health(ctx)
}
