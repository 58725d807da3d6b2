package models

import (
	"context"
	"time"
)

// AcquireRequest carries everything a store needs to claim a resource.
type AcquireRequest struct {
	ResourceKind    ResourceKind
	ResourceID      string
	HolderUserID    string
	HolderSessionID string
	TTL             time.Duration
}

// LockStore is the durable home of edit locks, shared by every coordinator
// instance. Each mutation must be a single atomic step against the backing
// storage so that two concurrent callers can never both win the same resource.
type LockStore interface {
	// Acquire claims the resource for the requesting session. It succeeds on
	// a free resource, on an expired lock (takeover under a fresh ID), and on
	// a lock the same session already holds (renewal that keeps AcquiredAt).
	// On success it returns the authoritative row and true. When another
	// session validly holds the resource it returns that row and false.
	Acquire(ctx context.Context, req AcquireRequest) (*EditLock, bool, error)

	// Renew extends the session's lock to now+ttl and stamps LastActivityAt.
	// It returns false when the lock is missing, expired, or held by a
	// different session; an expired lock cannot be revived by a heartbeat.
	Renew(ctx context.Context, resourceID, holderSessionID string, ttl time.Duration) (*EditLock, bool, error)

	// Release removes the session's own row, expired or not. It returns false
	// when the session owns nothing under the resource.
	Release(ctx context.Context, resourceID, holderSessionID string) (bool, error)

	// Get fetches the current row without judging expiry. Missing rows come
	// back as (nil, nil).
	Get(ctx context.Context, resourceID string) (*EditLock, error)

	// DeleteExpired removes rows whose expiry is at least grace in the past
	// and reports how many were removed. It is hygiene only; correctness
	// never depends on it running.
	DeleteExpired(ctx context.Context, grace time.Duration) (int64, error)

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying storage handles.
	Close() error
}
