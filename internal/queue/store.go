package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"stemd/internal/config"
	"stemd/internal/services"
)

// casRetries bounds how often a read-modify-write is retried when another
// writer wins the compare-and-swap.
const casRetries = 5

// errNoChange signals that a mutation decided not to write anything.
var errNoChange = errors.New("no change")

// Store manages job persistence over the Conn protocol. It owns the record
// keyspace, the FIFO dispatch list, and the active membership set.
type Store struct {
	conn   Conn
	prefix string
}

// NewStore wraps an existing connection. The prefix namespaces every key the
// store touches.
func NewStore(conn Conn, prefix string) *Store {
	if prefix == "" {
		prefix = "stemd"
	}
	return &Store{conn: conn, prefix: prefix}
}

// Open dials the configured Redis backend and returns a store over it.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	conn, err := Dial(ctx, cfg.Redis)
	if err != nil {
		return nil, services.Wrap(services.ErrQueue, "queue", "open", "connect backing store", err)
	}
	return NewStore(conn, cfg.Redis.KeyPrefix), nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Store) jobKey(id string) string  { return s.prefix + ":job:" + id }
func (s *Store) jobKeyPrefix() string     { return s.prefix + ":job:" }
func (s *Store) queueKey() string         { return s.prefix + ":jobs:queue" }
func (s *Store) activeKey() string        { return s.prefix + ":jobs:active" }
func (s *Store) idFromKey(key string) string {
	prefix := s.jobKeyPrefix()
	if len(key) <= len(prefix) {
		return ""
	}
	return key[len(prefix):]
}

// NewJobSpec describes a job to be created.
type NewJobSpec struct {
	InputType         InputType
	InputSource       string
	Model             string
	Options           Options
	EstimatedDuration int
}

// Create persists a new pending job and appends it to the FIFO. Both effects
// are observable before Create returns; when the enqueue fails the record is
// rolled back so a half-created job is never visible.
func (s *Store) Create(ctx context.Context, spec NewJobSpec) (*Job, error) {
	if spec.InputSource == "" {
		return nil, services.Wrap(services.ErrValidation, "queue", "create", "input source required", nil)
	}
	now := time.Now().UTC()
	job := &Job{
		ID:                uuid.NewString(),
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
		InputType:         spec.InputType,
		InputSource:       spec.InputSource,
		Model:             spec.Model,
		Options:           spec.Options,
		EstimatedDuration: spec.EstimatedDuration,
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return nil, services.Wrap(services.ErrQueue, "queue", "create", "marshal job", err)
	}
	if err := s.conn.Set(ctx, s.jobKey(job.ID), string(raw)); err != nil {
		return nil, services.Wrap(services.ErrQueue, "queue", "create", "persist job", err)
	}
	if err := s.conn.RPush(ctx, s.queueKey(), job.ID); err != nil {
		_ = s.conn.Del(ctx, s.jobKey(job.ID))
		return nil, services.Wrap(services.ErrQueue, "queue", "create", "enqueue job", err)
	}
	return job, nil
}

// Get returns the job record for id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	raw, ok, err := s.conn.Get(ctx, s.jobKey(id))
	if err != nil {
		return nil, services.Wrap(services.ErrQueue, "queue", "get", "read job", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "queue", "get", fmt.Sprintf("job %s", id), nil)
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, services.Wrap(services.ErrQueue, "queue", "get", "decode job", err)
	}
	return &job, nil
}

// mutate applies fn to the stored record under compare-and-swap protection,
// retrying when a concurrent writer wins. fn is responsible for enforcing
// transition rules; mutate refreshes UpdatedAt and clamps progress.
func (s *Store) mutate(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	key := s.jobKey(id)
	for attempt := 0; attempt < casRetries; attempt++ {
		raw, ok, err := s.conn.Get(ctx, key)
		if err != nil {
			return nil, services.Wrap(services.ErrQueue, "queue", "update", "read job", err)
		}
		if !ok {
			return nil, services.Wrap(services.ErrNotFound, "queue", "update", fmt.Sprintf("job %s", id), nil)
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, services.Wrap(services.ErrQueue, "queue", "update", "decode job", err)
		}

		if err := fn(&job); err != nil {
			if errors.Is(err, errNoChange) {
				return &job, nil
			}
			return nil, err
		}
		job.Progress = ClampProgress(job.Progress)
		job.UpdatedAt = time.Now().UTC()

		next, err := json.Marshal(&job)
		if err != nil {
			return nil, services.Wrap(services.ErrQueue, "queue", "update", "marshal job", err)
		}
		swapped, err := s.conn.CompareAndSwap(ctx, key, raw, string(next))
		if err != nil {
			return nil, services.Wrap(services.ErrQueue, "queue", "update", "write job", err)
		}
		if swapped {
			return &job, nil
		}
	}
	return nil, services.Wrap(services.ErrQueue, "queue", "update", fmt.Sprintf("job %s: update contention", id), nil)
}

// Update overwrites the mutable fields of the stored record with those from
// job. Terminal records reject every change, and status changes must follow
// the state machine.
func (s *Store) Update(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, services.Wrap(services.ErrValidation, "queue", "update", "nil job", nil)
	}
	return s.mutate(ctx, job.ID, func(cur *Job) error {
		if err := checkTransition(cur.Status, job.Status); err != nil {
			return err
		}
		id, created := cur.ID, cur.CreatedAt
		*cur = *job
		cur.ID, cur.CreatedAt = id, created
		return nil
	})
}

// UpdateProgress clamps pct to [0,100] and writes it back. Progress never
// decreases while a job is non-terminal.
func (s *Store) UpdateProgress(ctx context.Context, id string, pct int) (*Job, error) {
	return s.mutate(ctx, id, func(cur *Job) error {
		if cur.Status.IsTerminal() {
			return services.Wrap(services.ErrValidation, "queue", "update progress", fmt.Sprintf("job %s is %s", id, cur.Status), nil)
		}
		clamped := ClampProgress(pct)
		if clamped < cur.Progress {
			return errNoChange
		}
		cur.Progress = clamped
		return nil
	})
}

// MarkProcessing transitions a pending job to processing, adds it to the
// active set, and stamps the heartbeat lease. Any other current status is
// rejected.
func (s *Store) MarkProcessing(ctx context.Context, id string) (*Job, error) {
	job, err := s.mutate(ctx, id, func(cur *Job) error {
		if cur.Status != StatusPending {
			return services.Wrap(services.ErrValidation, "queue", "mark processing", fmt.Sprintf("job %s is %s, not pending", id, cur.Status), nil)
		}
		now := time.Now().UTC()
		cur.Status = StatusProcessing
		cur.LastHeartbeat = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.conn.SAdd(ctx, s.activeKey(), id); err != nil {
		return nil, services.Wrap(services.ErrQueue, "queue", "mark processing", "add to active set", err)
	}
	return job, nil
}

// MarkCompleted finalizes a processing job with its result.
func (s *Store) MarkCompleted(ctx context.Context, id string, result *Result, actualDuration int) (*Job, error) {
	job, err := s.mutate(ctx, id, func(cur *Job) error {
		if err := checkTransition(cur.Status, StatusCompleted); err != nil {
			return err
		}
		cur.Status = StatusCompleted
		cur.Progress = 100
		cur.Result = result
		cur.ActualDuration = actualDuration
		cur.Error = ""
		cur.ErrorKind = ""
		cur.LastHeartbeat = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.conn.SRem(ctx, s.activeKey(), id); err != nil {
		return nil, services.Wrap(services.ErrQueue, "queue", "mark completed", "remove from active set", err)
	}
	return job, nil
}

// MarkFailed records a failure. Valid from any non-terminal status; progress
// is left where it was.
func (s *Store) MarkFailed(ctx context.Context, id, message, kind string) (*Job, error) {
	job, err := s.mutate(ctx, id, func(cur *Job) error {
		if err := checkTransition(cur.Status, StatusFailed); err != nil {
			return err
		}
		cur.Status = StatusFailed
		cur.Error = message
		cur.ErrorKind = kind
		cur.Result = nil
		cur.LastHeartbeat = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.conn.SRem(ctx, s.activeKey(), id); err != nil {
		return nil, services.Wrap(services.ErrQueue, "queue", "mark failed", "remove from active set", err)
	}
	return job, nil
}

// DequeueNext pops the FIFO head. Ids whose record was deleted after enqueue
// are skipped transparently. Returns (nil, nil) when the queue is empty.
func (s *Store) DequeueNext(ctx context.Context) (*Job, error) {
	for {
		id, ok, err := s.conn.LPop(ctx, s.queueKey())
		if err != nil {
			return nil, services.Wrap(services.ErrQueue, "queue", "dequeue", "pop queue head", err)
		}
		if !ok {
			return nil, nil
		}
		job, err := s.Get(ctx, id)
		if errors.Is(err, services.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return job, nil
	}
}

// Delete removes the record, any FIFO occurrence, and active-set membership.
func (s *Store) Delete(ctx context.Context, id string) error {
	exists, err := s.conn.Exists(ctx, s.jobKey(id))
	if err != nil {
		return services.Wrap(services.ErrQueue, "queue", "delete", "check job", err)
	}
	if !exists {
		return services.Wrap(services.ErrNotFound, "queue", "delete", fmt.Sprintf("job %s", id), nil)
	}
	if err := s.conn.Del(ctx, s.jobKey(id)); err != nil {
		return services.Wrap(services.ErrQueue, "queue", "delete", "remove record", err)
	}
	if err := s.conn.LRem(ctx, s.queueKey(), id); err != nil {
		return services.Wrap(services.ErrQueue, "queue", "delete", "remove queue entry", err)
	}
	if err := s.conn.SRem(ctx, s.activeKey(), id); err != nil {
		return services.Wrap(services.ErrQueue, "queue", "delete", "remove active entry", err)
	}
	return nil
}

// QueueCounts aggregates queue occupancy.
type QueueCounts struct {
	Queued int64
	Active int64
	Total  int64
}

// QueueStatus reports FIFO length, active-set cardinality, and the total
// record count. Total requires a full prefix scan, which is O(n).
func (s *Store) QueueStatus(ctx context.Context) (QueueCounts, error) {
	queued, err := s.conn.LLen(ctx, s.queueKey())
	if err != nil {
		return QueueCounts{}, services.Wrap(services.ErrQueue, "queue", "status", "queue length", err)
	}
	active, err := s.conn.SCard(ctx, s.activeKey())
	if err != nil {
		return QueueCounts{}, services.Wrap(services.ErrQueue, "queue", "status", "active cardinality", err)
	}
	keys, err := s.conn.ScanKeys(ctx, s.jobKeyPrefix())
	if err != nil {
		return QueueCounts{}, services.Wrap(services.ErrQueue, "queue", "status", "scan records", err)
	}
	return QueueCounts{Queued: queued, Active: active, Total: int64(len(keys))}, nil
}

// List returns every stored job ordered by creation time. Malformed records
// are skipped.
func (s *Store) List(ctx context.Context) ([]*Job, error) {
	keys, err := s.conn.ScanKeys(ctx, s.jobKeyPrefix())
	if err != nil {
		return nil, services.Wrap(services.ErrQueue, "queue", "list", "scan records", err)
	}
	jobs := make([]*Job, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := s.conn.Get(ctx, key)
		if err != nil {
			return nil, services.Wrap(services.ErrQueue, "queue", "list", "read record", err)
		}
		if !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs, nil
}

// CleanupOlderThan deletes every record created before now minus retention
// and returns the deleted ids so callers can remove associated artifacts.
// Malformed records are tolerated and skipped.
func (s *Store) CleanupOlderThan(ctx context.Context, retention time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-retention)
	keys, err := s.conn.ScanKeys(ctx, s.jobKeyPrefix())
	if err != nil {
		return nil, services.Wrap(services.ErrQueue, "queue", "cleanup", "scan records", err)
	}

	var deleted []string
	for _, key := range keys {
		raw, ok, err := s.conn.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		if job.CreatedAt.IsZero() || !job.CreatedAt.Before(cutoff) {
			continue
		}
		id := job.ID
		if id == "" {
			id = s.idFromKey(key)
		}
		if err := s.Delete(ctx, id); err != nil && !errors.Is(err, services.ErrNotFound) {
			continue
		}
		deleted = append(deleted, id)
	}
	return deleted, nil
}

// UpdateHeartbeat refreshes the processing lease for id. A job that is no
// longer processing is left untouched.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	_, err := s.mutate(ctx, id, func(cur *Job) error {
		if cur.Status != StatusProcessing {
			return errNoChange
		}
		now := time.Now().UTC()
		cur.LastHeartbeat = &now
		return nil
	})
	return err
}

// ReclaimStale requeues processing jobs whose heartbeat predates cutoff.
// The worker that owned them is presumed dead; the job returns to pending at
// the queue tail with progress reset. Returns the number reclaimed.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int, error) {
	members, err := s.conn.SMembers(ctx, s.activeKey())
	if err != nil {
		return 0, services.Wrap(services.ErrQueue, "queue", "reclaim", "list active set", err)
	}

	reclaimed := 0
	for _, id := range members {
		job, err := s.Get(ctx, id)
		if errors.Is(err, services.ErrNotFound) {
			// Dangling membership for a deleted record.
			_ = s.conn.SRem(ctx, s.activeKey(), id)
			continue
		}
		if err != nil {
			return reclaimed, err
		}
		if job.Status != StatusProcessing || job.LastHeartbeat == nil || !job.LastHeartbeat.Before(cutoff) {
			continue
		}
		_, err = s.mutate(ctx, id, func(cur *Job) error {
			if cur.Status != StatusProcessing || cur.LastHeartbeat == nil || !cur.LastHeartbeat.Before(cutoff) {
				return errNoChange
			}
			cur.Status = StatusPending
			cur.LastHeartbeat = nil
			cur.Progress = 0
			cur.Error = ""
			cur.ErrorKind = ""
			return nil
		})
		if err != nil {
			return reclaimed, err
		}
		if err := s.conn.SRem(ctx, s.activeKey(), id); err != nil {
			return reclaimed, services.Wrap(services.ErrQueue, "queue", "reclaim", "remove active entry", err)
		}
		if err := s.conn.RPush(ctx, s.queueKey(), id); err != nil {
			return reclaimed, services.Wrap(services.ErrQueue, "queue", "reclaim", "requeue job", err)
		}
		reclaimed++
	}
	return reclaimed, nil
}

// HealthCheck probes the backing store. It never returns an error; any
// failure reports unhealthy.
func (s *Store) HealthCheck(ctx context.Context) bool {
	if s == nil || s.conn == nil {
		return false
	}
	return s.conn.Ping(ctx) == nil
}

func checkTransition(from, to Status) error {
	if from == to {
		if from.IsTerminal() {
			return services.Wrap(services.ErrValidation, "queue", "transition", fmt.Sprintf("job is terminal (%s)", from), nil)
		}
		return nil
	}
	if !CanTransition(from, to) {
		return services.Wrap(services.ErrValidation, "queue", "transition", fmt.Sprintf("invalid transition %s -> %s", from, to), nil)
	}
	return nil
}
