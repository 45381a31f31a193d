package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	pkgredis "github.com/prohmpiriya/ticket-broker/pkg/redis"
	"github.com/prohmpiriya/ticket-broker/pkg/telemetry"
)

//go:embed scripts/acquire_lock.lua
var acquireLockScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/index_add.lua
var indexAddScript string

const (
	scriptAcquireLock = "acquire_lock"
	scriptReleaseLock = "release_lock"
	scriptIndexAdd    = "index_add"
)

// RedisLockStore implements LockStore on Redis with Lua scripts
type RedisLockStore struct {
	client *pkgredis.Client
}

// NewRedisLockStore creates a new RedisLockStore
func NewRedisLockStore(client *pkgredis.Client) *RedisLockStore {
	return &RedisLockStore{client: client}
}

// LoadScripts preloads the Lua scripts so the first requests use EVALSHA
func (s *RedisLockStore) LoadScripts(ctx context.Context) error {
	scripts := map[string]string{
		scriptAcquireLock: acquireLockScript,
		scriptReleaseLock: releaseLockScript,
		scriptIndexAdd:    indexAddScript,
	}
	for name, src := range scripts {
		if _, err := s.client.LoadScript(ctx, name, src); err != nil {
			return fmt.Errorf("failed to load script %s: %w", name, err)
		}
	}
	return nil
}

// Get returns the current owner of key
func (s *RedisLockStore) Get(ctx context.Context, key string) (string, bool, error) {
	owner, err := s.client.Client().Get(ctx, key).Result()
	if errors.Is(err, pkgredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return owner, true, nil
}

// AcquireOrExtend runs the acquire script
func (s *RedisLockStore) AcquireOrExtend(ctx context.Context, key, owner string, ttl time.Duration) (status AcquireStatus, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.lock.acquire")
	defer func() { telemetry.End(span, err) }()
	span.SetAttributes(attribute.String("lock.key", key))

	res, err := s.client.EvalWithFallback(ctx, scriptAcquireLock, acquireLockScript,
		[]string{key}, owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return LockHeldByOther, fmt.Errorf("acquire %s: %w", key, err)
	}

	switch res {
	case 1:
		status = LockAcquired
	case 2:
		status = LockExtended
	default:
		status = LockHeldByOther
	}
	span.SetAttributes(attribute.Int("lock.status", int(status)))
	return status, nil
}

// ReleaseIfOwner runs the compare-and-delete script
func (s *RedisLockStore) ReleaseIfOwner(ctx context.Context, key, owner string) (released bool, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.lock.release")
	defer func() { telemetry.End(span, err) }()
	span.SetAttributes(attribute.String("lock.key", key))

	res, err := s.client.EvalWithFallback(ctx, scriptReleaseLock, releaseLockScript,
		[]string{key}, owner).Int64()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", key, err)
	}
	return res == 1, nil
}

// TTL returns the remaining lifetime of key
func (s *RedisLockStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.Client().PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("pttl %s: %w", key, err)
	}
	// -2 missing, -1 no expiry
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

// IndexAdd adds member to the index set and resets its TTL
func (s *RedisLockStore) IndexAdd(ctx context.Context, indexKey, member string, ttl time.Duration) error {
	err := s.client.EvalWithFallback(ctx, scriptIndexAdd, indexAddScript,
		[]string{indexKey}, member, ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("index add %s: %w", indexKey, err)
	}
	return nil
}

// IndexMembers lists the index set
func (s *RedisLockStore) IndexMembers(ctx context.Context, indexKey string) ([]string, error) {
	members, err := s.client.Client().SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", indexKey, err)
	}
	return members, nil
}

// IndexDelete removes the index set
func (s *RedisLockStore) IndexDelete(ctx context.Context, indexKey string) error {
	if err := s.client.Client().Del(ctx, indexKey).Err(); err != nil {
		return fmt.Errorf("del %s: %w", indexKey, err)
	}
	return nil
}

var _ LockStore = (*RedisLockStore)(nil)
