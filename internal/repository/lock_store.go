package repository

import (
	"context"
	"time"
)

// AcquireStatus is the result of a conditional lock write
type AcquireStatus int

const (
	LockHeldByOther AcquireStatus = iota
	LockAcquired
	LockExtended
)

// Granted reports whether the caller owns the lock after the call
func (s AcquireStatus) Granted() bool {
	return s == LockAcquired || s == LockExtended
}

// LockStore is a shared TTL key-value store with owner-conditional writes.
// Every mutating operation is a single atomic step on the server.
type LockStore interface {
	// Get returns the owner of key, ok=false when absent or expired
	Get(ctx context.Context, key string) (owner string, ok bool, err error)
	// AcquireOrExtend sets key to owner when absent, or refreshes the TTL
	// when owner already holds it
	AcquireOrExtend(ctx context.Context, key, owner string, ttl time.Duration) (AcquireStatus, error)
	// ReleaseIfOwner deletes key only when held by owner
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
	// TTL returns the remaining lifetime, zero when absent
	TTL(ctx context.Context, key string) (time.Duration, error)

	// IndexAdd adds member to a set whose TTL is reset to ttl
	IndexAdd(ctx context.Context, indexKey, member string, ttl time.Duration) error
	// IndexMembers lists a set, empty when absent
	IndexMembers(ctx context.Context, indexKey string) ([]string, error)
	// IndexDelete removes a set
	IndexDelete(ctx context.Context, indexKey string) error
}
