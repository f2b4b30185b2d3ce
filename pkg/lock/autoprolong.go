package lock

import (
	"context"
	"errors"

	"github.com/swamireddy/ceph-lcm/pkg/lockstore"
	"github.com/swamireddy/ceph-lcm/pkg/metrics"
)

var (
	// ErrRenewalActive is returned when Acquire is called while the
	// renewal task from a previous acquire is still running.
	ErrRenewalActive = errors.New("auto-prolong renewal task already running")

	// ErrReused is returned when a released auto-prolong lock is
	// acquired again; construct a fresh instance instead.
	ErrReused = errors.New("auto-prolong lock reused after release")
)

// AutoProlongLock keeps its lease alive for long-running work. A
// successful Acquire starts a background task that force-prolongs the
// lease at a fixed fraction of the lease TTL; Release stops the task,
// waits for it to finish, and only then releases the store record, so no
// renewal write can land after Release returns.
type AutoProlongLock struct {
	*Lock

	stop     chan struct{}
	done     chan struct{}
	released bool
}

// NewAutoProlong returns an unacquired auto-prolonging lock. The renewal
// interval is a third of the lease TTL, comfortably inside the lease.
func NewAutoProlong(name string, store lockstore.Store, opts ...Option) *AutoProlongLock {
	return &AutoProlongLock{Lock: New(name, store, opts...)}
}

func (a *AutoProlongLock) Acquire(ctx context.Context, opts AcquireOptions) error {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return ErrReused
	}
	if a.stop != nil {
		a.mu.Unlock()
		return ErrRenewalActive
	}
	a.mu.Unlock()

	if err := a.Lock.Acquire(ctx, opts); err != nil {
		return err
	}

	a.mu.Lock()
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	go a.prolongLoop(a.stop, a.done)
	a.mu.Unlock()
	return nil
}

func (a *AutoProlongLock) Release(ctx context.Context, force bool) error {
	a.mu.Lock()
	stop, done := a.stop, a.done
	a.stop, a.done = nil, nil
	a.released = true
	a.mu.Unlock()

	if stop != nil {
		close(stop)
		// bounded join: a stuck store call must not wedge release forever
		select {
		case <-done:
		case <-a.clock.After(a.leaseTTL):
			a.logger.Warn("lock.autoprolong.join_timeout",
				"name", a.name, "owner", a.owner)
		}
	}

	return a.Lock.Release(ctx, force)
}

func (a *AutoProlongLock) prolongLoop(stop, done chan struct{}) {
	defer close(done)
	interval := a.leaseTTL / 3

	for {
		select {
		case <-stop:
			return
		case <-a.clock.After(interval):
			// store failures are logged and retried at the next tick,
			// the task itself never dies while the lock is held
			if err := a.Lock.Prolong(context.Background(), true); err != nil {
				metrics.RenewalFailureTotal.WithLabelValues(a.name).Inc()
				a.logger.Warn("lock.autoprolong.renew_failed",
					"name", a.name, "owner", a.owner, "error", err)
			}
		}
	}
}
