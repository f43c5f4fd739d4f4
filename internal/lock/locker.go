package lock

import "context"

// ReleaseFunc gives a held lock back.
type ReleaseFunc func(ctx context.Context) error

// Locker guards a named job so that only one process runs it at a time.
type Locker interface {
	TryAcquire(ctx context.Context, name string) (ReleaseFunc, bool, error)
}

// Noop always grants the lock. It is used when jobs run in a single process.
type Noop struct{}

func (Noop) TryAcquire(context.Context, string) (ReleaseFunc, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}
