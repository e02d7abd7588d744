package queue

import "context"

// Conn is the narrow protocol the job repository requires of its backing
// store: point get/set, an ordered list for the FIFO, a membership set for
// active jobs, key-prefix scanning, a connectivity probe, and a guarded
// compare-and-swap for read-modify-write record updates. Any store offering
// these primitives is a valid substrate.
type Conn interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	CompareAndSwap(ctx context.Context, key, old, next string) (bool, error)

	RPush(ctx context.Context, key, value string) error
	LPop(ctx context.Context, key string) (string, bool, error)
	LRem(ctx context.Context, key, value string) error
	LLen(ctx context.Context, key string) (int64, error)

	SAdd(ctx context.Context, key, member string) error
	SRem(ctx context.Context, key, member string) error
	SCard(ctx context.Context, key string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)

	ScanKeys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
