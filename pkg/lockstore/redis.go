package lockstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swamireddy/ceph-lcm/pkg/types"
)

// RedisStore keeps one JSON document per lock under lock:<name>. Every
// conditional update is a Lua script, so the owner/expiry check and the
// write execute as one atomic round trip on the Redis side.
//
// Records carry no key TTL : a released or expired lock reverts to the
// free state instead of disappearing, matching the record lifecycle.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var tryClaimScript = redis.NewScript(`
local payload = redis.call("GET", KEYS[1])
if payload then
  local rec = cjson.decode(payload)
  local locker = rec["locker"]
  local expired_at = tonumber(rec["expired_at"]) or 0
  if locker and locker ~= "" and expired_at > tonumber(ARGV[2]) then
    return 0
  end
end
redis.call("SET", KEYS[1], cjson.encode({locker = ARGV[1], expired_at = tonumber(ARGV[3])}))
return 1
`)

var tryReleaseScript = redis.NewScript(`
local payload = redis.call("GET", KEYS[1])
if not payload then
  return 0
end
local rec = cjson.decode(payload)
if rec["locker"] ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], cjson.encode({locker = "", expired_at = 0}))
return 1
`)

var tryProlongScript = redis.NewScript(`
local payload = redis.call("GET", KEYS[1])
if not payload then
  return 0
end
local rec = cjson.decode(payload)
if rec["locker"] ~= ARGV[1] then
  return 0
end
rec["expired_at"] = tonumber(ARGV[2])
redis.call("SET", KEYS[1], cjson.encode(rec))
return 1
`)

func (s *RedisStore) TryClaim(ctx context.Context, name, owner string, now, expiredAt int64) (bool, error) {
	res, err := tryClaimScript.Run(ctx, s.client, []string{lockKey(name)}, owner, now, expiredAt).Result()
	if err != nil {
		return false, fmt.Errorf("claim %q: %w", name, err)
	}
	return res == int64(1), nil
}

func (s *RedisStore) TryRelease(ctx context.Context, name, owner string) (bool, error) {
	res, err := tryReleaseScript.Run(ctx, s.client, []string{lockKey(name)}, owner).Result()
	if err != nil {
		return false, fmt.Errorf("release %q: %w", name, err)
	}
	return res == int64(1), nil
}

func (s *RedisStore) TryProlong(ctx context.Context, name, owner string, expiredAt int64) (bool, error) {
	res, err := tryProlongScript.Run(ctx, s.client, []string{lockKey(name)}, owner, expiredAt).Result()
	if err != nil {
		return false, fmt.Errorf("prolong %q: %w", name, err)
	}
	return res == int64(1), nil
}

func (s *RedisStore) ForceClaim(ctx context.Context, name, owner string, expiredAt int64) error {
	return s.setRecord(ctx, name, owner, expiredAt)
}

func (s *RedisStore) ForceRelease(ctx context.Context, name string) error {
	return s.setRecord(ctx, name, "", 0)
}

func (s *RedisStore) ForceProlong(ctx context.Context, name, owner string, expiredAt int64) error {
	return s.setRecord(ctx, name, owner, expiredAt)
}

func (s *RedisStore) Get(ctx context.Context, name string) (*types.LockRecord, error) {
	payload, err := s.client.Get(ctx, lockKey(name)).Result()
	if err == redis.Nil {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", name, err)
	}

	var doc recordDoc
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("decode lock record %q: %w", name, err)
	}
	return &types.LockRecord{
		Name:      name,
		Locker:    doc.Locker,
		ExpiredAt: doc.ExpiredAt,
	}, nil
}

// setRecord is the unconditional write behind the force operations. A
// plain SET is already atomic, no script needed.
func (s *RedisStore) setRecord(ctx context.Context, name, owner string, expiredAt int64) error {
	encoded, err := json.Marshal(recordDoc{Locker: owner, ExpiredAt: expiredAt})
	if err != nil {
		return fmt.Errorf("encode lock record %q: %w", name, err)
	}
	if err := s.client.Set(ctx, lockKey(name), string(encoded), 0).Err(); err != nil {
		return fmt.Errorf("set %q: %w", name, err)
	}
	return nil
}

// stored payload, name lives in the key
type recordDoc struct {
	Locker    string `json:"locker"`
	ExpiredAt int64  `json:"expired_at"`
}

func lockKey(name string) string {
	return "lock:" + name
}
