package daemon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"stemd/internal/logging"
)

// runSweeper periodically deletes expired jobs and their artifacts. The
// sweep itself takes a host-wide file lock so at most one process prunes at
// a time, even when several daemons share the staging volume.
func (d *Daemon) runSweeper(ctx context.Context) {
	interval := d.cfg.CleanupSweepInterval()
	retention := d.cfg.Retention()
	if interval <= 0 || retention <= 0 {
		d.logger.Info("retention sweep disabled")
		return
	}

	logger := logging.NewComponentLogger(d.logger, "sweeper")
	logger.Info("retention sweep scheduled",
		logging.Duration("interval", interval),
		logging.Duration("retention", retention),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweepOnce(ctx, retention)
		}
	}
}

// sweepOnce runs a single guarded sweep. A held lock means another process
// is already pruning, so the tick is skipped.
func (d *Daemon) sweepOnce(ctx context.Context, retention time.Duration) {
	logger := logging.NewComponentLogger(d.logger, "sweeper")
	sweepLock := flock.New(filepath.Join(d.cfg.Paths.LogDir, "stemd-sweep.lock"))
	ok, err := sweepLock.TryLock()
	if err != nil {
		logger.Warn("sweep lock failed", logging.Error(err))
		return
	}
	if !ok {
		logger.Debug("sweep already running elsewhere, skipping")
		return
	}
	defer func() {
		if err := sweepLock.Unlock(); err != nil {
			logger.Warn("failed to release sweep lock", logging.Error(err))
		}
	}()

	deleted, err := d.service.Cleanup(ctx, retention)
	if err != nil {
		logger.Error("retention sweep failed", logging.Error(err))
		return
	}
	if deleted > 0 {
		logger.Info("retention sweep completed", logging.Int("deleted", deleted))
	}
}
