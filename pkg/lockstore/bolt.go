package lockstore

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/swamireddy/ceph-lcm/pkg/types"
)

var lockBucket = []byte("locks")

// BoltStore persists lock records in a bbolt bucket. Each operation runs
// inside a single write transaction, which gives the conditional updates
// their atomicity on shared-disk deployments.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(lockBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create lock bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) TryClaim(_ context.Context, name, owner string, now, expiredAt int64) (bool, error) {
	claimed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(lockBucket)
		rec, err := decodeRecord(bucket.Get([]byte(name)), name)
		if err != nil {
			return err
		}
		if rec != nil && !rec.Free(now) {
			return nil
		}
		claimed = true
		return putRecord(bucket, &types.LockRecord{
			Name:      name,
			Locker:    owner,
			ExpiredAt: expiredAt,
		})
	})
	return claimed, err
}

func (s *BoltStore) TryRelease(_ context.Context, name, owner string) (bool, error) {
	released := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(lockBucket)
		rec, err := decodeRecord(bucket.Get([]byte(name)), name)
		if err != nil {
			return err
		}
		if rec == nil || rec.Locker != owner {
			return nil
		}
		released = true
		rec.Locker = ""
		rec.ExpiredAt = 0
		return putRecord(bucket, rec)
	})
	return released, err
}

func (s *BoltStore) TryProlong(_ context.Context, name, owner string, expiredAt int64) (bool, error) {
	prolonged := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(lockBucket)
		rec, err := decodeRecord(bucket.Get([]byte(name)), name)
		if err != nil {
			return err
		}
		if rec == nil || rec.Locker != owner {
			return nil
		}
		prolonged = true
		rec.ExpiredAt = expiredAt
		return putRecord(bucket, rec)
	})
	return prolonged, err
}

func (s *BoltStore) ForceClaim(_ context.Context, name, owner string, expiredAt int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putRecord(tx.Bucket(lockBucket), &types.LockRecord{
			Name:      name,
			Locker:    owner,
			ExpiredAt: expiredAt,
		})
	})
}

func (s *BoltStore) ForceRelease(_ context.Context, name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putRecord(tx.Bucket(lockBucket), &types.LockRecord{Name: name})
	})
}

func (s *BoltStore) ForceProlong(_ context.Context, name, owner string, expiredAt int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putRecord(tx.Bucket(lockBucket), &types.LockRecord{
			Name:      name,
			Locker:    owner,
			ExpiredAt: expiredAt,
		})
	})
}

func (s *BoltStore) Get(_ context.Context, name string) (*types.LockRecord, error) {
	var rec *types.LockRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		decoded, err := decodeRecord(tx.Bucket(lockBucket).Get([]byte(name)), name)
		if err != nil {
			return err
		}
		rec = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, types.ErrNotFound
	}
	return rec, nil
}

func decodeRecord(raw []byte, name string) (*types.LockRecord, error) {
	if raw == nil {
		return nil, nil
	}
	var rec types.LockRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode lock record %q: %w", name, err)
	}
	rec.Name = name
	return &rec, nil
}

func putRecord(bucket *bolt.Bucket, rec *types.LockRecord) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode lock record %q: %w", rec.Name, err)
	}
	return bucket.Put([]byte(rec.Name), encoded)
}
