package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/crumbhq/sera/internal/models"
	"github.com/crumbhq/sera/pkg/logger"
)

const lockKeyPrefix = "sera:lock:"

// defaultLinger is how long an expired lock hash stays readable before Redis
// evicts it, standing in for the sweep grace of the SQL backend.
const defaultLinger = 5 * time.Minute

// Script replies; the first element of every reply table is one of these.
const (
	replyHeld     = 0
	replyAcquired = 1
	replyRenewed  = 2
)

// Lock rows live in a hash per resource. Every mutation runs as a single Lua
// script so the ownership and expiry checks happen atomically on the server.
var acquireScript = redis.NewScript(`
local vals = redis.call("HMGET", KEYS[1], "id", "resource_kind", "holder_user_id", "holder_session_id", "acquired_at", "expires_at", "last_activity_at")
if not vals[1] then
    redis.call("HSET", KEYS[1], "id", ARGV[1], "resource_kind", ARGV[2], "resource_id", ARGV[3], "holder_user_id", ARGV[4], "holder_session_id", ARGV[5], "acquired_at", ARGV[6], "expires_at", ARGV[7], "last_activity_at", ARGV[6])
    redis.call("PEXPIRE", KEYS[1], ARGV[8])
    return {1}
end
if vals[4] == ARGV[5] and tonumber(vals[6]) >= tonumber(ARGV[6]) then
    redis.call("HSET", KEYS[1], "expires_at", ARGV[7], "last_activity_at", ARGV[6])
    redis.call("PEXPIRE", KEYS[1], ARGV[8])
    return {2, vals[1], vals[5]}
end
if tonumber(vals[6]) < tonumber(ARGV[6]) then
    redis.call("HSET", KEYS[1], "id", ARGV[1], "resource_kind", ARGV[2], "resource_id", ARGV[3], "holder_user_id", ARGV[4], "holder_session_id", ARGV[5], "acquired_at", ARGV[6], "expires_at", ARGV[7], "last_activity_at", ARGV[6])
    redis.call("PEXPIRE", KEYS[1], ARGV[8])
    return {1}
end
return {0, vals[1], vals[2], vals[3], vals[4], vals[5], vals[6], vals[7]}
`)

var renewScript = redis.NewScript(`
local vals = redis.call("HMGET", KEYS[1], "id", "resource_kind", "holder_user_id", "holder_session_id", "acquired_at", "expires_at", "last_activity_at")
if not vals[1] then
    return {0}
end
if vals[4] ~= ARGV[1] or tonumber(vals[6]) < tonumber(ARGV[2]) then
    return {0}
end
redis.call("HSET", KEYS[1], "expires_at", ARGV[3], "last_activity_at", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return {1, vals[1], vals[2], vals[3], vals[5]}
`)

var releaseScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "holder_session_id") == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// RedisLockStore implements models.LockStore on a Redis backend.
type RedisLockStore struct {
	logger *logger.Logger
	client *redis.Client

	linger time.Duration
	now    func() time.Time
}

// NewRedisLockStore returns a Redis lock store using the provided client.
// linger is how long expired hashes remain readable before native eviction;
// zero picks the default.
func NewRedisLockStore(client *redis.Client, linger time.Duration, logger *logger.Logger) *RedisLockStore {
	if linger <= 0 {
		linger = defaultLinger
	}
	return &RedisLockStore{client: client, logger: logger, linger: linger, now: time.Now}
}

func (s *RedisLockStore) key(resourceID string) string {
	return lockKeyPrefix + resourceID
}

// px is the native key TTL in milliseconds: the logical lifetime plus the
// linger window during which an expired row is still visible.
func (s *RedisLockStore) px(ttl time.Duration) int64 {
	return int64((ttl + s.linger) / time.Millisecond)
}

func (s *RedisLockStore) Acquire(ctx context.Context, req models.AcquireRequest) (*models.EditLock, bool, error) {
	now := s.now().Unix()
	row := models.EditLock{
		ID:              uuid.NewString(),
		ResourceKind:    req.ResourceKind,
		ResourceID:      req.ResourceID,
		HolderUserID:    req.HolderUserID,
		HolderSessionID: req.HolderSessionID,
		AcquiredAt:      now,
		ExpiresAt:       now + int64(req.TTL/time.Second),
		LastActivityAt:  now,
	}
	res, err := acquireScript.Run(ctx, s.client, []string{s.key(req.ResourceID)},
		row.ID, string(row.ResourceKind), row.ResourceID, row.HolderUserID, row.HolderSessionID,
		now, row.ExpiresAt, s.px(req.TTL)).Result()
	if err != nil {
		return nil, false, unavailable("failed to run acquire script", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) == 0 {
		return nil, false, unavailable("failed to decode acquire reply", fmt.Errorf("unexpected reply %v", res))
	}
	switch scriptInt(vals[0]) {
	case replyAcquired:
		return &row, true, nil
	case replyRenewed:
		if len(vals) < 3 {
			return nil, false, unavailable("failed to decode acquire reply", fmt.Errorf("short renew reply %v", res))
		}
		row.ID = scriptString(vals[1])
		row.AcquiredAt = scriptInt(vals[2])
		return &row, true, nil
	default:
		if len(vals) < 8 {
			return nil, false, unavailable("failed to decode acquire reply", fmt.Errorf("short conflict reply %v", res))
		}
		current := &models.EditLock{
			ID:              scriptString(vals[1]),
			ResourceKind:    models.ResourceKind(scriptString(vals[2])),
			ResourceID:      req.ResourceID,
			HolderUserID:    scriptString(vals[3]),
			HolderSessionID: scriptString(vals[4]),
			AcquiredAt:      scriptInt(vals[5]),
			ExpiresAt:       scriptInt(vals[6]),
			LastActivityAt:  scriptInt(vals[7]),
		}
		return current, false, nil
	}
}

func (s *RedisLockStore) Renew(ctx context.Context, resourceID, holderSessionID string, ttl time.Duration) (*models.EditLock, bool, error) {
	now := s.now().Unix()
	expiresAt := now + int64(ttl/time.Second)
	res, err := renewScript.Run(ctx, s.client, []string{s.key(resourceID)},
		holderSessionID, now, expiresAt, s.px(ttl)).Result()
	if err != nil {
		return nil, false, unavailable("failed to run renew script", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) == 0 {
		return nil, false, unavailable("failed to decode renew reply", fmt.Errorf("unexpected reply %v", res))
	}
	if scriptInt(vals[0]) == replyHeld {
		return nil, false, nil
	}
	if len(vals) < 5 {
		return nil, false, unavailable("failed to decode renew reply", fmt.Errorf("short renew reply %v", res))
	}
	row := &models.EditLock{
		ID:              scriptString(vals[1]),
		ResourceKind:    models.ResourceKind(scriptString(vals[2])),
		ResourceID:      resourceID,
		HolderUserID:    scriptString(vals[3]),
		HolderSessionID: holderSessionID,
		AcquiredAt:      scriptInt(vals[4]),
		ExpiresAt:       expiresAt,
		LastActivityAt:  now,
	}
	return row, true, nil
}

func (s *RedisLockStore) Release(ctx context.Context, resourceID, holderSessionID string) (bool, error) {
	res, err := releaseScript.Run(ctx, s.client, []string{s.key(resourceID)}, holderSessionID).Result()
	if err != nil {
		return false, unavailable("failed to run release script", err)
	}
	n, _ := res.(int64)
	return n > 0, nil
}

func (s *RedisLockStore) Get(ctx context.Context, resourceID string) (*models.EditLock, error) {
	fields, err := s.client.HGetAll(ctx, s.key(resourceID)).Result()
	if err != nil {
		return nil, unavailable("failed to get lock", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return &models.EditLock{
		ID:              fields["id"],
		ResourceKind:    models.ResourceKind(fields["resource_kind"]),
		ResourceID:      resourceID,
		HolderUserID:    fields["holder_user_id"],
		HolderSessionID: fields["holder_session_id"],
		AcquiredAt:      hashInt(fields, "acquired_at"),
		ExpiresAt:       hashInt(fields, "expires_at"),
		LastActivityAt:  hashInt(fields, "last_activity_at"),
	}, nil
}

// DeleteExpired is a no-op on Redis: keys carry a native TTL of lifetime
// plus linger, so eviction happens server-side without a sweep.
func (s *RedisLockStore) DeleteExpired(ctx context.Context, grace time.Duration) (int64, error) {
	return 0, nil
}

func (s *RedisLockStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("failed to ping Redis", err)
	}
	return nil
}

func (s *RedisLockStore) Close() error {
	return s.client.Close()
}

func scriptInt(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

func scriptString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func hashInt(fields map[string]string, name string) int64 {
	n, _ := strconv.ParseInt(fields[name], 10, 64)
	return n
}
