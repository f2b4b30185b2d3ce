package types

// a lock is a single document in the shared store, keyed by name
// ownership is fully determined by this one record :
// - locker empty or expired_at in the past means the lock is free
// - otherwise the lock is held by locker until expired_at
//
// backends store the same {locker, expired_at} payload but key it their
// own way (redis keeps the name only in the key, bolt in the bucket
// key); a released record keeps locker as the empty string, it is never
// deleted
type LockRecord struct {
	Name      string `json:"_id"`
	Locker    string `json:"locker"`
	ExpiredAt int64  `json:"expired_at"` //unix seconds, 0 means no active lease
}

// reports whether the record is claimable at the given unix time
func (r *LockRecord) Free(now int64) bool {
	return r.Locker == "" || r.ExpiredAt <= now
}

// reports whether owner holds a live lease at the given unix time
func (r *LockRecord) HeldBy(owner string, now int64) bool {
	return r.Locker == owner && r.ExpiredAt > now
}
