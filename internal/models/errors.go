package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidArgument rejects malformed input before it reaches storage.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotHeld means the caller's session does not hold the lock it tried
	// to renew or release.
	ErrNotHeld = errors.New("lock not held by this session")
	// ErrUnavailable means lock storage could not be reached. Callers must
	// treat it as "state unknown", never as "unlocked".
	ErrUnavailable = errors.New("lock storage unavailable")
)

// ConflictError reports that a resource is validly locked by another session.
// It carries the holder's user identity so the caller can show who is editing,
// but never the holder's session ID.
type ConflictError struct {
	// HolderUserID is the user currently editing the resource.
	HolderUserID string
	// ExpiresAt is the Unix timestamp when the current claim lapses.
	ExpiresAt int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("resource is locked by %s until %s",
		e.HolderUserID, time.Unix(e.ExpiresAt, 0).UTC().Format(time.RFC3339))
}
