package lockstore

import (
	"context"

	"github.com/swamireddy/ceph-lcm/pkg/types"
)

// Store is the only surface the lock layer uses to talk to the shared
// document store. Every Try operation is a single atomic conditional
// update : the check and the mutation happen in one round trip, so two
// contenders can never interleave a read-then-write race.
//
// now and expiredAt are unix seconds. The caller supplies now so freeness
// is always evaluated against the same injected clock the lock uses for
// its own deadlines.
type Store interface {
	// TryClaim claims the record iff it is free (no locker, or lease
	// expired at now). Returns false without touching the record otherwise.
	TryClaim(ctx context.Context, name, owner string, now, expiredAt int64) (bool, error)

	// TryRelease frees the record iff owner matches the current locker.
	TryRelease(ctx context.Context, name, owner string) (bool, error)

	// TryProlong moves the expiry forward iff owner matches the current locker.
	TryProlong(ctx context.Context, name, owner string, expiredAt int64) (bool, error)

	// ForceClaim overwrites the record unconditionally, stealing from any holder.
	ForceClaim(ctx context.Context, name, owner string, expiredAt int64) error

	// ForceRelease frees the record unconditionally. A no-op on a free record.
	ForceRelease(ctx context.Context, name string) error

	// ForceProlong sets locker and expiry unconditionally, reassigning
	// ownership to owner.
	ForceProlong(ctx context.Context, name, owner string, expiredAt int64) error

	// Get returns the current record, or types.ErrNotFound when no claim
	// was ever made for name.
	Get(ctx context.Context, name string) (*types.LockRecord, error)
}
