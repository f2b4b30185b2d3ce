package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/swamireddy/ceph-lcm/pkg/clock"
	"github.com/swamireddy/ceph-lcm/pkg/lockstore"
	"github.com/swamireddy/ceph-lcm/pkg/metrics"
	"github.com/swamireddy/ceph-lcm/pkg/types"
)

const (
	// DefaultLeaseTTL is how long a claim stays valid without prolongation.
	DefaultLeaseTTL = 30 * time.Second

	// DefaultPollInterval is the sleep between claim attempts of a
	// blocking acquire.
	DefaultPollInterval = 1 * time.Second
)

// Lock is a lease on a named critical section, coordinated through a
// shared store. Each instance mints its own owner token on construction,
// so two Locks on the same name never mistake each other for themselves.
//
// cross-process exclusion comes entirely from the store's atomic
// conditional updates; the local mutex only protects the acquired flag
// when one instance is shared between goroutines
type Lock struct {
	name         string
	owner        string
	store        lockstore.Store
	clock        clock.Clock
	logger       pslog.Logger
	leaseTTL     time.Duration
	pollInterval time.Duration

	mu       sync.Mutex
	acquired bool
}

type Option func(*Lock)

// WithClock swaps the time source, letting tests drive expiry and
// timeouts without real sleeping.
func WithClock(c clock.Clock) Option {
	return func(l *Lock) { l.clock = c }
}

// WithLeaseTTL overrides the default lease duration.
func WithLeaseTTL(d time.Duration) Option {
	return func(l *Lock) {
		if d > 0 {
			l.leaseTTL = d
		}
	}
}

// WithPollInterval overrides the sleep between blocking claim attempts.
func WithPollInterval(d time.Duration) Option {
	return func(l *Lock) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

func WithLogger(logger pslog.Logger) Option {
	return func(l *Lock) { l.logger = logger }
}

// New returns an unacquired lock bound to name with a fresh owner token.
func New(name string, store lockstore.Store, opts ...Option) *Lock {
	l := &Lock{
		name:         name,
		owner:        uuid.NewString(),
		store:        store,
		clock:        clock.Real{},
		logger:       pslog.NoopLogger(),
		leaseTTL:     DefaultLeaseTTL,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AcquireOptions controls a single Acquire call.
type AcquireOptions struct {
	// Block makes Acquire retry until the lock frees up instead of
	// failing on the first conflict.
	Block bool

	// Timeout bounds a blocking acquire; zero means wait indefinitely.
	Timeout time.Duration

	// Force steals the lock from any current holder.
	Force bool
}

func (l *Lock) Name() string  { return l.name }
func (l *Lock) Owner() string { return l.owner }

func (l *Lock) Acquired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquired
}

// Acquire claims the lock. Without Block it fails immediately on
// conflict with types.ErrCannotAcquire; with Block it polls the store
// until the record frees up (by explicit release or lease expiry),
// bounded by Timeout when set. Force claims unconditionally.
func (l *Lock) Acquire(ctx context.Context, opts AcquireOptions) error {
	start := l.clock.Now()

	if opts.Force {
		now := l.clock.Now()
		if err := l.store.ForceClaim(ctx, l.name, l.owner, l.expiry(now)); err != nil {
			metrics.LockAcquireTotal.WithLabelValues(l.name, metrics.StatusError).Inc()
			return err
		}
		l.markAcquired()
		l.observeAcquire(start)
		return nil
	}

	var deadline time.Time
	if opts.Block && opts.Timeout > 0 {
		deadline = start.Add(opts.Timeout)
	}

	for {
		now := l.clock.Now()
		ok, err := l.store.TryClaim(ctx, l.name, l.owner, now.Unix(), l.expiry(now))
		if err != nil {
			metrics.LockAcquireTotal.WithLabelValues(l.name, metrics.StatusError).Inc()
			return err
		}
		if ok {
			l.markAcquired()
			l.observeAcquire(start)
			return nil
		}

		if !opts.Block {
			metrics.LockAcquireTotal.WithLabelValues(l.name, metrics.StatusConflict).Inc()
			return types.ErrCannotAcquire
		}
		if !deadline.IsZero() && !l.clock.Now().Before(deadline) {
			metrics.LockAcquireTotal.WithLabelValues(l.name, metrics.StatusConflict).Inc()
			return fmt.Errorf("%w: timed out after %s", types.ErrCannotAcquire, opts.Timeout)
		}

		select {
		case <-l.clock.After(l.pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release gives the lock up. Without force the store only honors the
// release when this instance's owner token still matches the record;
// a mismatch (lease expired and reclaimed, or never held) fails with
// types.ErrCannotRelease. Forced release always succeeds and frees the
// record no matter who holds it. Either way the instance itself ends up
// unacquired.
func (l *Lock) Release(ctx context.Context, force bool) error {
	if force {
		if err := l.store.ForceRelease(ctx, l.name); err != nil {
			metrics.LockReleaseTotal.WithLabelValues(l.name, metrics.StatusError).Inc()
			return err
		}
		l.markReleased()
		metrics.LockReleaseTotal.WithLabelValues(l.name, metrics.StatusSuccess).Inc()
		return nil
	}

	ok, err := l.store.TryRelease(ctx, l.name, l.owner)
	if err != nil {
		metrics.LockReleaseTotal.WithLabelValues(l.name, metrics.StatusError).Inc()
		return err
	}
	if !ok {
		metrics.LockReleaseTotal.WithLabelValues(l.name, metrics.StatusConflict).Inc()
		return types.ErrCannotRelease
	}
	l.markReleased()
	metrics.LockReleaseTotal.WithLabelValues(l.name, metrics.StatusSuccess).Inc()
	return nil
}

// Prolong pushes the lease expiry to now + lease TTL. Without force the
// store rejects a non-matching owner token with types.ErrCannotProlong;
// with force the expiry is set unconditionally and ownership is
// reassigned to this instance's token.
func (l *Lock) Prolong(ctx context.Context, force bool) error {
	now := l.clock.Now()

	if force {
		if err := l.store.ForceProlong(ctx, l.name, l.owner, l.expiry(now)); err != nil {
			metrics.LockProlongTotal.WithLabelValues(l.name, metrics.StatusError).Inc()
			return err
		}
		metrics.LockProlongTotal.WithLabelValues(l.name, metrics.StatusSuccess).Inc()
		return nil
	}

	// prolonging an instance that never acquired is a usage error and
	// fails before reaching the store
	if !l.Acquired() {
		return types.ErrCannotProlong
	}

	ok, err := l.store.TryProlong(ctx, l.name, l.owner, l.expiry(now))
	if err != nil {
		metrics.LockProlongTotal.WithLabelValues(l.name, metrics.StatusError).Inc()
		return err
	}
	if !ok {
		metrics.LockProlongTotal.WithLabelValues(l.name, metrics.StatusConflict).Inc()
		return types.ErrCannotProlong
	}
	metrics.LockProlongTotal.WithLabelValues(l.name, metrics.StatusSuccess).Inc()
	return nil
}

func (l *Lock) expiry(now time.Time) int64 {
	return now.Unix() + int64(l.leaseTTL/time.Second)
}

func (l *Lock) markAcquired() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.acquired {
		l.acquired = true
		metrics.LocksHeld.Inc()
	}
}

func (l *Lock) markReleased() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquired {
		l.acquired = false
		metrics.LocksHeld.Dec()
	}
}

func (l *Lock) observeAcquire(start time.Time) {
	metrics.LockAcquireTotal.WithLabelValues(l.name, metrics.StatusSuccess).Inc()
	metrics.LockAcquireDuration.WithLabelValues(l.name).Observe(l.clock.Now().Sub(start).Seconds())
}
