package lock

import (
	"context"

	"pkt.systems/pslog"

	"github.com/swamireddy/ceph-lcm/pkg/lockstore"
)

// Locker is the acquire/release surface shared by Lock and
// AutoProlongLock, enough for scoped acquisition.
type Locker interface {
	Acquire(ctx context.Context, opts AcquireOptions) error
	Release(ctx context.Context, force bool) error
}

// WithLock runs fn while holding l and releases on every exit path,
// including a panic inside fn. An error from fn is returned unchanged; a
// release failure is returned only when fn itself succeeded, otherwise
// it is logged so it cannot mask the original error.
func WithLock(ctx context.Context, l Locker, opts AcquireOptions, fn func(context.Context) error) (err error) {
	if err := l.Acquire(ctx, opts); err != nil {
		return err
	}

	defer func() {
		// release even when fn's context is already cancelled
		relErr := l.Release(context.WithoutCancel(ctx), false)
		if relErr == nil {
			return
		}
		if err == nil {
			err = relErr
			return
		}
		scopedLogger(l).Warn("lock.scoped.release_failed", "error", relErr)
	}()

	return fn(ctx)
}

// WithAutoProlongLock is WithLock over a fresh auto-prolonging lock, for
// work whose duration is unknown up front.
func WithAutoProlongLock(ctx context.Context, name string, store lockstore.Store, opts AcquireOptions, fn func(context.Context) error, lockOpts ...Option) error {
	return WithLock(ctx, NewAutoProlong(name, store, lockOpts...), opts, fn)
}

func scopedLogger(l Locker) pslog.Logger {
	switch v := l.(type) {
	case *Lock:
		return v.logger
	case *AutoProlongLock:
		return v.logger
	default:
		return pslog.NoopLogger()
	}
}
