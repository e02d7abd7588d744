package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"stemd/internal/config"
	"stemd/internal/download"
	"stemd/internal/fileutil"
	"stemd/internal/logging"
	"stemd/internal/media/ffprobe"
	"stemd/internal/queue"
	"stemd/internal/separation"
	"stemd/internal/services"
	"stemd/internal/validation"
)

// Progress checkpoints for the fixed stage schedule. The separation engine's
// raw percent is folded into the band between checkpointValidated and
// checkpointSeparated.
const (
	checkpointAcquired   = 10
	checkpointDownloaded = 30
	checkpointValidated  = 40
	checkpointSeparated  = 90
	checkpointFinalizing = 95
)

// Orchestrator drives one job through acquire, validate, separate, and
// finalize. It owns all status transitions for jobs it processes; workers
// only hand it dequeued jobs.
type Orchestrator struct {
	cfg        *config.Config
	store      *queue.Store
	separator  separation.Client
	downloader download.Client
	catalog    *separation.Catalog
	logger     *slog.Logger

	inspect func(ctx context.Context, binary, path string) (ffprobe.Result, error)
}

// New constructs an orchestrator. A nil logger disables logging.
func New(cfg *config.Config, store *queue.Store, separator separation.Client, downloader download.Client, catalog *separation.Catalog, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg,
		store:      store,
		separator:  separator,
		downloader: downloader,
		catalog:    catalog,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
		inspect:    ffprobe.Inspect,
	}
}

// Process runs the full pipeline for a dequeued job. Stage failures are
// absorbed into the job record via MarkFailed and do not propagate; only
// repository failures return an error so the worker can back off.
func (o *Orchestrator) Process(ctx context.Context, job *queue.Job) error {
	if job == nil {
		return services.Wrap(services.ErrValidation, "pipeline", "process", "nil job", nil)
	}
	ctx = services.WithJobID(ctx, job.ID)
	logger := o.logger.With(logging.String(logging.FieldJobID, job.ID))

	current, err := o.store.MarkProcessing(ctx, job.ID)
	if err != nil {
		if errors.Is(err, services.ErrValidation) || errors.Is(err, services.ErrNotFound) {
			logger.Warn("skipping job that is no longer pending", logging.Error(err))
			return nil
		}
		return err
	}
	logger.Info("processing job",
		logging.String("input_type", string(current.InputType)),
		logging.String("model", o.modelFor(current)),
	)

	started := time.Now()
	var downloadedPath string
	defer func() {
		if downloadedPath == "" {
			return
		}
		if err := fileutil.RemoveIfExists(downloadedPath); err != nil {
			logger.Warn("failed to remove downloaded input",
				logging.String("path", downloadedPath),
				logging.Error(err))
		}
	}()

	result, procErr := o.run(ctx, logger, current, &downloadedPath)
	if procErr != nil {
		kind := services.Kind(procErr)
		if kind == "" {
			kind = "processing"
		}
		logger.Error("job failed", logging.String("error_kind", kind), logging.Error(procErr))
		if _, err := o.store.MarkFailed(ctx, current.ID, procErr.Error(), kind); err != nil {
			return fmt.Errorf("record failure for job %s: %w", current.ID, err)
		}
		return nil
	}

	elapsed := int(time.Since(started).Seconds())
	result.ProcessingTime = elapsed
	if _, err := o.store.MarkCompleted(ctx, current.ID, result, elapsed); err != nil {
		return fmt.Errorf("record completion for job %s: %w", current.ID, err)
	}
	logger.Info("job completed",
		logging.Duration("elapsed", time.Since(started)),
		logging.Int64("output_bytes", result.FileSize),
	)
	return nil
}

// run executes the stage schedule and returns the completed result.
func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, job *queue.Job, downloadedPath *string) (*queue.Result, error) {
	var inputPath string
	err := o.runStage(ctx, logger, "acquire", func(ctx context.Context) error {
		path, err := o.acquire(ctx, job, downloadedPath)
		if err != nil {
			return err
		}
		inputPath = path
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := o.runStage(ctx, logger, "validate", func(ctx context.Context) error {
		return o.validate(ctx, job, inputPath)
	}); err != nil {
		return nil, err
	}

	var stems separation.StemSet
	var outputDir string
	if err := o.runStage(ctx, logger, "separate", func(ctx context.Context) error {
		set, dir, err := o.separate(ctx, logger, job, inputPath)
		if err != nil {
			return err
		}
		stems, outputDir = set, dir
		return nil
	}); err != nil {
		return nil, err
	}

	o.persistProgress(ctx, logger, job.ID, checkpointFinalizing)
	return &queue.Result{
		JobID:     job.ID,
		OutputDir: outputDir,
		Stems: queue.Stems{
			Vocals: toStemInfo(stems.Vocals),
			Drums:  toStemInfo(stems.Drums),
			Bass:   toStemInfo(stems.Bass),
			Other:  toStemInfo(stems.Other),
		},
		ModelUsed: o.modelFor(job),
		FileSize:  stems.TotalSize(),
	}, nil
}

// acquire resolves the local input file, downloading remote sources first.
func (o *Orchestrator) acquire(ctx context.Context, job *queue.Job, downloadedPath *string) (string, error) {
	switch job.InputType {
	case queue.InputFile:
		if _, err := os.Stat(job.InputSource); err != nil {
			return "", services.Wrap(services.ErrValidation, "pipeline", "acquire", fmt.Sprintf("input file %s", job.InputSource), err)
		}
		o.persistProgress(ctx, o.logger, job.ID, checkpointAcquired)
		return job.InputSource, nil
	case queue.InputRemoteURL:
		o.persistProgress(ctx, o.logger, job.ID, checkpointAcquired)
		if err := fileutil.EnsureDir(o.cfg.Paths.DownloadDir); err != nil {
			return "", services.Wrap(services.ErrProcessing, "pipeline", "acquire", "create download dir", err)
		}
		template := filepath.Join(o.cfg.Paths.DownloadDir, job.ID+".%(ext)s")
		path, err := o.downloader.Fetch(ctx, job.InputSource, template)
		if err != nil {
			return "", err
		}
		*downloadedPath = path
		if err := validation.CheckFileSize(path, o.cfg.Limits.MaxFileSizeBytes); err != nil {
			return "", err
		}
		o.persistProgress(ctx, o.logger, job.ID, checkpointDownloaded)
		return path, nil
	default:
		return "", services.Wrap(services.ErrValidation, "pipeline", "acquire", fmt.Sprintf("unknown input type %q", job.InputType), nil)
	}
}

// validate probes the input and enforces the configured limits.
func (o *Orchestrator) validate(ctx context.Context, job *queue.Job, inputPath string) error {
	probe, err := o.inspect(ctx, o.cfg.FFprobeBinary(), inputPath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "pipeline", "validate", fmt.Sprintf("probe %s", inputPath), err)
	}
	if probe.AudioStreamCount() == 0 {
		return services.Wrap(services.ErrValidation, "pipeline", "validate", "input has no audio streams", nil)
	}
	if err := validation.CheckDuration(probe.DurationSeconds(), o.cfg.Limits.MaxDurationSeconds); err != nil {
		return err
	}
	o.persistProgress(ctx, o.logger, job.ID, checkpointValidated)
	return nil
}

// separate runs the engine and maps its raw percent into the transform band.
func (o *Orchestrator) separate(ctx context.Context, logger *slog.Logger, job *queue.Job, inputPath string) (separation.StemSet, string, error) {
	model := o.modelFor(job)
	if err := o.catalog.EnsureModel(model); err != nil {
		return separation.StemSet{}, "", err
	}

	outputDir := filepath.Join(o.cfg.Paths.StagingDir, job.ID, "stems")
	if err := fileutil.EnsureDir(outputDir); err != nil {
		return separation.StemSet{}, "", services.Wrap(services.ErrProcessing, "pipeline", "separate", "create output dir", err)
	}

	format := job.Options.OutputFormat
	if format == "" {
		format = o.cfg.Separation.OutputFormat
	}

	lastSent := checkpointValidated
	stems, err := o.separator.Separate(ctx, separation.Request{
		InputPath: inputPath,
		OutputDir: outputDir,
		Model:     model,
		Format:    format,
		Normalize: job.Options.Normalize,
	}, func(raw int) {
		mapped := checkpointValidated + queue.ClampProgress(raw)/2
		if mapped <= lastSent {
			return
		}
		lastSent = mapped
		o.persistProgress(ctx, logger, job.ID, mapped)
	})
	if err != nil {
		return separation.StemSet{}, "", services.Wrap(services.ErrProcessing, "pipeline", "separate", "separation run", err)
	}

	o.catalog.MarkLoaded(model)
	if lastSent < checkpointSeparated {
		o.persistProgress(ctx, logger, job.ID, checkpointSeparated)
	}
	return stems, outputDir, nil
}

// persistProgress is best effort; a lost checkpoint never fails the job.
func (o *Orchestrator) persistProgress(ctx context.Context, logger *slog.Logger, id string, pct int) {
	if _, err := o.store.UpdateProgress(ctx, id, pct); err != nil {
		logger.Warn("failed to persist progress", logging.Int("progress", pct), logging.Error(err))
	}
}

func (o *Orchestrator) runStage(ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) error) error {
	stageLogger := logger.With(logging.String(logging.FieldStage, name))
	stageLogger.Info("stage started")
	start := time.Now()
	if err := fn(services.WithStage(ctx, name)); err != nil {
		stageLogger.Error("stage failed", logging.Duration("elapsed", time.Since(start)), logging.Error(err))
		return err
	}
	stageLogger.Info("stage completed", logging.Duration("elapsed", time.Since(start)))
	return nil
}

func (o *Orchestrator) modelFor(job *queue.Job) string {
	if job.Model != "" {
		return job.Model
	}
	return o.cfg.Separation.DefaultModel
}

func toStemInfo(stem separation.StemFile) queue.StemInfo {
	return queue.StemInfo{Filename: stem.Name, Path: stem.Path, Size: stem.Size}
}
