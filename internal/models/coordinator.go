package models

import (
	"context"
	"time"
)

// Coordinator hands out, refreshes and retires edit locks on orders.
type Coordinator interface {
	// Acquire claims the resource for the given session. A zero ttl asks for
	// the configured default.
	Acquire(ctx context.Context, kind ResourceKind, resourceID, holderUserID, holderSessionID string, ttl time.Duration) (*LockGrant, error)

	// Renew extends a lock the session already holds without moving AcquiredAt.
	Renew(ctx context.Context, resourceID, holderSessionID string, ttl time.Duration) (*LockGrant, error)

	// Release drops the session's own lock.
	Release(ctx context.Context, resourceID, holderSessionID string) error

	// Inspect reports the live lock state of the resource. Expired rows read
	// as unlocked.
	Inspect(ctx context.Context, resourceID string) (*LockStatus, error)

	// Sweep deletes rows that have been expired for longer than the grace
	// period and reports how many went.
	Sweep(ctx context.Context) (int64, error)

	// Ping verifies the lock storage is reachable.
	Ping(ctx context.Context) error
}

// LockGrant is what a holder gets back from a successful acquire or renew.
type LockGrant struct {
	// LockID identifies the granted lock instance.
	LockID string `json:"lock_id"`
	// ResourceKind is the kind of order that was locked.
	ResourceKind ResourceKind `json:"resource_kind"`
	// ResourceID is the locked order.
	ResourceID string `json:"resource_id"`
	// HolderUserID is the user the lock was granted to.
	HolderUserID string `json:"holder_user_id"`
	// AcquiredAt is the Unix timestamp the current claim started.
	AcquiredAt int64 `json:"acquired_at"`
	// ExpiresAt is the Unix timestamp the claim lapses unless renewed.
	ExpiresAt int64 `json:"expires_at"`
}

// LockStatus is the read-side view of a resource for the "who is editing
// this" badge. Holder fields are only set when Locked is true.
type LockStatus struct {
	ResourceID   string       `json:"resource_id"`
	Locked       bool         `json:"locked"`
	ResourceKind ResourceKind `json:"resource_kind,omitempty"`
	HolderUserID string       `json:"holder_user_id,omitempty"`
	AcquiredAt   int64        `json:"acquired_at,omitempty"`
	ExpiresAt    int64        `json:"expires_at,omitempty"`
}
