package lockstore

import (
	"context"
	"sync"

	"github.com/swamireddy/ceph-lcm/pkg/types"
)

// MemoryStore keeps lock records in a mutex-guarded map. Atomicity of the
// conditional updates comes from the mutex : every operation checks and
// mutates under the same critical section.
//
// It backs unit tests and single-node deployments; cross-process
// deployments need the redis or bolt backends.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*types.LockRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*types.LockRecord),
	}
}

func (s *MemoryStore) TryClaim(_ context.Context, name, owner string, now, expiredAt int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[name]
	if exists && !rec.Free(now) {
		return false, nil
	}

	s.records[name] = &types.LockRecord{
		Name:      name,
		Locker:    owner,
		ExpiredAt: expiredAt,
	}
	return true, nil
}

func (s *MemoryStore) TryRelease(_ context.Context, name, owner string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[name]
	if !exists || rec.Locker != owner {
		return false, nil
	}

	rec.Locker = ""
	rec.ExpiredAt = 0
	return true, nil
}

func (s *MemoryStore) TryProlong(_ context.Context, name, owner string, expiredAt int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[name]
	if !exists || rec.Locker != owner {
		return false, nil
	}

	rec.ExpiredAt = expiredAt
	return true, nil
}

func (s *MemoryStore) ForceClaim(_ context.Context, name, owner string, expiredAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[name] = &types.LockRecord{
		Name:      name,
		Locker:    owner,
		ExpiredAt: expiredAt,
	}
	return nil
}

func (s *MemoryStore) ForceRelease(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// the record survives release, it just reverts to the free state
	s.records[name] = &types.LockRecord{Name: name}
	return nil
}

func (s *MemoryStore) ForceProlong(_ context.Context, name, owner string, expiredAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[name] = &types.LockRecord{
		Name:      name,
		Locker:    owner,
		ExpiredAt: expiredAt,
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, name string) (*types.LockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[name]
	if !exists {
		return nil, types.ErrNotFound
	}

	copied := *rec
	return &copied, nil
}
