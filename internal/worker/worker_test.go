package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"stemd/internal/config"
	"stemd/internal/logging"
	"stemd/internal/queue"
	"stemd/internal/testsupport"
	"stemd/internal/worker"
)

type fakeProcessor struct {
	mu        sync.Mutex
	processed []string
	errOnce   error
	done      chan string
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{done: make(chan string, 16)}
}

func (f *fakeProcessor) Process(_ context.Context, job *queue.Job) error {
	f.mu.Lock()
	f.processed = append(f.processed, job.ID)
	err := f.errOnce
	f.errOnce = nil
	f.mu.Unlock()
	f.done <- job.ID
	return err
}

func (f *fakeProcessor) jobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.processed...)
}

func fastConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 0
	cfg.Workflow.ErrorRetryInterval = 0
	return cfg
}

func waitFor(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for processor")
		return ""
	}
}

func TestWorkerProcessesQueuedJobsInOrder(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	first := testsupport.NewJob(t, store, "/tmp/a.mp3", "htdemucs")
	second := testsupport.NewJob(t, store, "/tmp/b.mp3", "htdemucs")

	processor := newFakeProcessor()
	w := worker.New(cfg, store, processor, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	if got := waitFor(t, processor.done); got != first.ID {
		t.Fatalf("first processed = %s, want %s", got, first.ID)
	}
	if got := waitFor(t, processor.done); got != second.ID {
		t.Fatalf("second processed = %s, want %s", got, second.ID)
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}

func TestWorkerContinuesAfterProcessorError(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	first := testsupport.NewJob(t, store, "/tmp/a.mp3", "htdemucs")
	second := testsupport.NewJob(t, store, "/tmp/b.mp3", "htdemucs")

	processor := newFakeProcessor()
	processor.errOnce = errors.New("store hiccup")
	w := worker.New(cfg, store, processor, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	waitFor(t, processor.done)
	waitFor(t, processor.done)

	jobs := processor.jobs()
	if len(jobs) != 2 || jobs[0] != first.ID || jobs[1] != second.ID {
		t.Fatalf("processed = %v", jobs)
	}
}

func TestWorkerStopsPromptlyWhenIdle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	w := worker.New(cfg, store, newFakeProcessor(), logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("idle worker did not stop on cancel")
	}
}

type blockingProcessor struct {
	started chan string
	release chan struct{}
	ctxErr  chan error
}

func newBlockingProcessor() *blockingProcessor {
	return &blockingProcessor{
		started: make(chan string, 1),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 1),
	}
}

func (p *blockingProcessor) Process(ctx context.Context, job *queue.Job) error {
	p.started <- job.ID
	<-p.release
	p.ctxErr <- ctx.Err()
	return nil
}

func TestWorkerFinishesInFlightJobOnShutdown(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "/tmp/a.mp3", "htdemucs")

	processor := newBlockingProcessor()
	w := worker.New(cfg, store, processor, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	if got := waitFor(t, processor.started); got != job.ID {
		t.Fatalf("started job = %s, want %s", got, job.ID)
	}

	// Shut down with the job still in flight. The loop must wait for it.
	cancel()
	select {
	case <-stopped:
		t.Fatal("worker exited with a job still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(processor.release)
	select {
	case err := <-processor.ctxErr:
		if err != nil {
			t.Fatalf("in-flight run context was cancelled: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for in-flight job to finish")
	}

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after the in-flight job finished")
	}
}

func TestWorkerReclaimsStaleJobs(t *testing.T) {
	cfg := fastConfig(t)
	conn := testsupport.NewMemConn()
	store := queue.NewStore(conn, cfg.Redis.KeyPrefix)
	t.Cleanup(func() { store.Close() })

	job := testsupport.NewJob(t, store, "/tmp/a.mp3", "htdemucs")
	ctx := context.Background()
	if _, err := store.DequeueNext(ctx); err != nil {
		t.Fatalf("DequeueNext: %v", err)
	}
	if _, err := store.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	// Expire the lease as if the owning worker died.
	key := cfg.Redis.KeyPrefix + ":job:" + job.ID
	raw, ok, err := conn.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get raw: %v %v", ok, err)
	}
	var stored queue.Job
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	stale := time.Now().UTC().Add(-time.Hour)
	stored.LastHeartbeat = &stale
	rewritten, err := json.Marshal(&stored)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.Set(ctx, key, string(rewritten)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	processor := newFakeProcessor()
	w := worker.New(cfg, store, processor, logging.NewNop(), worker.WithReclaim(), worker.WithName("reclaimer"))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.Run(runCtx)

	if got := waitFor(t, processor.done); got != job.ID {
		t.Fatalf("reclaimed job = %s, want %s", got, job.ID)
	}
}

func TestHeartbeatLoopRefreshesLease(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "/tmp/a.mp3", "htdemucs")

	ctx := context.Background()
	if _, err := store.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	before, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	monitor := worker.NewHeartbeatMonitor(store, logging.NewNop(), 10*time.Millisecond, time.Minute)
	loopCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go monitor.StartLoop(loopCtx, &wg, job.ID)

	time.Sleep(60 * time.Millisecond)
	cancel()
	wg.Wait()

	after, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.LastHeartbeat == nil || !after.LastHeartbeat.After(*before.LastHeartbeat) {
		t.Fatalf("lease not refreshed: before=%v after=%v", before.LastHeartbeat, after.LastHeartbeat)
	}
}
