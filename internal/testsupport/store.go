package testsupport

import (
	"context"
	"testing"

	"stemd/internal/config"
	"stemd/internal/queue"
)

// MustOpenStore builds a queue.Store over an in-memory connection and
// registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store := queue.NewStore(NewMemConn(), cfg.Redis.KeyPrefix)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a pending file-input job for tests using the provided
// store.
func NewJob(t testing.TB, store *queue.Store, source, model string) *queue.Job {
	t.Helper()

	job, err := store.Create(context.Background(), queue.NewJobSpec{
		InputType:   queue.InputFile,
		InputSource: source,
		Model:       model,
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
