package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"stemd/internal/config"
	"stemd/internal/deps"
	"stemd/internal/download"
	"stemd/internal/fileutil"
	"stemd/internal/logging"
	"stemd/internal/media/ffprobe"
	"stemd/internal/queue"
	"stemd/internal/separation"
	"stemd/internal/services"
	"stemd/internal/validation"
)

// remoteEstimatePadding covers download time on top of the processing
// estimate for remote jobs.
const remoteEstimatePadding = 30

// SubmitOptions carries per-job overrides a producer may set.
type SubmitOptions struct {
	Model        string
	OutputFormat string
	Normalize    bool
}

// Service is the producer-facing facade: submit, inspect, and manage jobs.
// Transport layers sit on top of it; it owns validation and estimates.
type Service struct {
	cfg        *config.Config
	store      *queue.Store
	downloader download.Client
	catalog    *separation.Catalog
	logger     *slog.Logger

	inspect func(ctx context.Context, binary, path string) (ffprobe.Result, error)
}

// NewService constructs the facade. A nil logger disables logging.
func NewService(cfg *config.Config, store *queue.Store, downloader download.Client, catalog *separation.Catalog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:        cfg,
		store:      store,
		downloader: downloader,
		catalog:    catalog,
		logger:     logging.NewComponentLogger(logger, "api"),
		inspect:    ffprobe.Inspect,
	}
}

// CreateJobFromFile validates a local file and enqueues a job for it.
func (s *Service) CreateJobFromFile(ctx context.Context, path string, opts SubmitOptions) (*queue.Job, error) {
	if err := validation.CheckFileInput(path, s.cfg.Limits); err != nil {
		return nil, err
	}
	model, err := s.resolveModel(opts.Model)
	if err != nil {
		return nil, err
	}

	probe, err := s.inspect(ctx, s.cfg.FFprobeBinary(), path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "api", "submit file", fmt.Sprintf("probe %s", path), err)
	}
	duration := probe.DurationSeconds()
	if err := validation.CheckDuration(duration, s.cfg.Limits.MaxDurationSeconds); err != nil {
		return nil, err
	}

	job, err := s.store.Create(ctx, queue.NewJobSpec{
		InputType:         queue.InputFile,
		InputSource:       path,
		Model:             model,
		Options:           s.jobOptions(opts),
		EstimatedDuration: estimateProcessing(duration),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("input_type", string(queue.InputFile)),
		logging.String("model", model),
	)
	return job, nil
}

// CreateJobFromURL probes a remote source, enforces the remote duration
// limit, and enqueues a job. Nothing is downloaded until the pipeline picks
// the job up.
func (s *Service) CreateJobFromURL(ctx context.Context, url string, opts SubmitOptions) (*queue.Job, error) {
	if err := validation.CheckURL(url); err != nil {
		return nil, err
	}
	model, err := s.resolveModel(opts.Model)
	if err != nil {
		return nil, err
	}

	info, err := s.downloader.Probe(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := validation.CheckDuration(info.DurationSeconds, s.cfg.Download.MaxDurationSeconds); err != nil {
		return nil, err
	}

	job, err := s.store.Create(ctx, queue.NewJobSpec{
		InputType:         queue.InputRemoteURL,
		InputSource:       url,
		Model:             model,
		Options:           s.jobOptions(opts),
		EstimatedDuration: estimateProcessing(info.DurationSeconds) + remoteEstimatePadding,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("input_type", string(queue.InputRemoteURL)),
		logging.String("model", model),
		logging.String("title", info.Title),
	)
	return job, nil
}

// GetJob returns the producer projection of a job.
func (s *Service) GetJob(ctx context.Context, id string) (JobView, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return JobView{}, err
	}
	return NewJobView(job), nil
}

// ListJobs returns projections of every stored job, oldest first.
func (s *Service) ListJobs(ctx context.Context) ([]JobView, error) {
	jobs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, NewJobView(job))
	}
	return views, nil
}

// DeleteJob removes a job record and its on-disk artifacts.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.removeArtifacts(id)
	s.logger.Info("job deleted", logging.String(logging.FieldJobID, id))
	return nil
}

// QueueStatus reports queue occupancy counters.
func (s *Service) QueueStatus(ctx context.Context) (queue.QueueCounts, error) {
	return s.store.QueueStatus(ctx)
}

// Cleanup deletes records older than retention together with their
// artifacts and returns the number removed.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	deleted, err := s.store.CleanupOlderThan(ctx, retention)
	if err != nil {
		return 0, err
	}
	for _, id := range deleted {
		s.removeArtifacts(id)
	}
	if len(deleted) > 0 {
		s.logger.Info("cleanup removed expired jobs", logging.Int("count", len(deleted)))
	}
	return len(deleted), nil
}

// Health aggregates store connectivity and external binary availability.
func (s *Service) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Store:    s.store.HealthCheck(ctx),
		Binaries: map[string]bool{},
		Models:   s.catalog.Available(),
	}
	for _, dep := range deps.Check(deps.Requirements(s.cfg)) {
		status.Binaries[dep.Command] = dep.Available
	}
	status.Status = StatusHealthy
	if !status.Store {
		status.Status = StatusDegraded
	}
	for _, ok := range status.Binaries {
		if !ok {
			status.Status = StatusDegraded
			break
		}
	}
	return status
}

// removeArtifacts deletes staging output and any downloaded input for id.
// Best effort; partial removal only logs.
func (s *Service) removeArtifacts(id string) {
	staging := filepath.Join(s.cfg.Paths.StagingDir, id)
	if freed, err := fileutil.DirSize(staging); err == nil && freed > 0 {
		s.logger.Debug("removing staged output",
			logging.String(logging.FieldJobID, id),
			logging.Int64("bytes", freed))
	}
	if err := os.RemoveAll(staging); err != nil {
		s.logger.Warn("failed to remove staging dir",
			logging.String("path", staging),
			logging.Error(err))
	}
	matches, err := filepath.Glob(filepath.Join(s.cfg.Paths.DownloadDir, id+".*"))
	if err != nil {
		return
	}
	for _, match := range matches {
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove downloaded input",
				logging.String("path", match),
				logging.Error(err))
		}
	}
}

func (s *Service) resolveModel(model string) (string, error) {
	if model == "" {
		model = s.cfg.Separation.DefaultModel
	}
	if err := s.catalog.EnsureModel(model); err != nil {
		return "", services.Wrap(services.ErrValidation, "api", "submit", fmt.Sprintf("unknown model %q", model), nil)
	}
	return model, nil
}

func (s *Service) jobOptions(opts SubmitOptions) queue.Options {
	format := opts.OutputFormat
	if format == "" {
		format = s.cfg.Separation.OutputFormat
	}
	return queue.Options{OutputFormat: format, Normalize: opts.Normalize}
}

// estimateProcessing predicts processing seconds from audio duration.
func estimateProcessing(durationSeconds float64) int {
	return int(durationSeconds * 1.5)
}
