package models

import (
	"fmt"
	"time"
)

// ResourceKind identifies which kind of order a lock protects.
type ResourceKind string

const (
	// KindCustomerOrder is a retail order placed by a customer.
	KindCustomerOrder ResourceKind = "customer_order"
	// KindInternalOrder is a production or supply order raised by bakery staff.
	KindInternalOrder ResourceKind = "internal_order"
)

// ParseResourceKind converts a wire value into a ResourceKind.
func ParseResourceKind(s string) (ResourceKind, error) {
	switch ResourceKind(s) {
	case KindCustomerOrder, KindInternalOrder:
		return ResourceKind(s), nil
	default:
		return "", fmt.Errorf("unknown resource kind %q", s)
	}
}

// EditLock represents an exclusive edit claim on a single order.
// The claim is scoped to one browser session, so the same user editing
// in two tabs competes with itself.
type EditLock struct {
	// ID is the unique identifier of this lock instance. A takeover of an
	// expired lock produces a fresh ID.
	ID string `json:"id" gorm:"column:id;primaryKey;size:36"`
	// ResourceKind is the kind of order the lock protects.
	ResourceKind ResourceKind `json:"resource_kind" gorm:"column:resource_kind;size:32;not null"`
	// ResourceID is the identifier of the locked order. At most one lock row
	// exists per resource, which is what makes acquisition race-free.
	ResourceID string `json:"resource_id" gorm:"column:resource_id;uniqueIndex;size:128;not null"`
	// HolderUserID is the user currently editing the order.
	HolderUserID string `json:"holder_user_id" gorm:"column:holder_user_id;size:128;not null"`
	// HolderSessionID is the session that owns the claim. Renew and release
	// must present the same session ID.
	HolderSessionID string `json:"holder_session_id" gorm:"column:holder_session_id;size:128;not null"`
	// AcquiredAt is the Unix timestamp when the current holder first took the
	// lock. Renewals do not move it.
	AcquiredAt int64 `json:"acquired_at" gorm:"column:acquired_at;not null"`
	// ExpiresAt is the Unix timestamp after which the lock no longer counts
	// as held. Readers evaluate it live instead of trusting the row.
	ExpiresAt int64 `json:"expires_at" gorm:"column:expires_at;not null;index"`
	// LastActivityAt is the Unix timestamp of the most recent acquire or
	// renew heartbeat from the holder.
	LastActivityAt int64 `json:"last_activity_at" gorm:"column:last_activity_at;not null"`
}

// TableName specifies the table name for GORM
func (EditLock) TableName() string {
	return "edit_locks"
}

// Expired reports whether the claim has lapsed at the given instant.
// A lock is still held at the exact expiry second.
func (l *EditLock) Expired(at time.Time) bool {
	return at.Unix() > l.ExpiresAt
}
