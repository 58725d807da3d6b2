package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResourceKind(t *testing.T) {
	kind, err := ParseResourceKind("customer_order")
	require.NoError(t, err)
	assert.Equal(t, KindCustomerOrder, kind)

	kind, err = ParseResourceKind("internal_order")
	require.NoError(t, err)
	assert.Equal(t, KindInternalOrder, kind)

	_, err = ParseResourceKind("recipe")
	assert.ErrorContains(t, err, "unknown resource kind")

	_, err = ParseResourceKind("")
	assert.Error(t, err)
}

func TestEditLockExpired(t *testing.T) {
	lock := &EditLock{ExpiresAt: 2000}

	// The claim holds through the exact expiry second and lapses after it.
	assert.False(t, lock.Expired(time.Unix(1999, 0)))
	assert.False(t, lock.Expired(time.Unix(2000, 0)))
	assert.True(t, lock.Expired(time.Unix(2001, 0)))
}

func TestConflictErrorMessage(t *testing.T) {
	err := &ConflictError{HolderUserID: "alice", ExpiresAt: 1700000000}

	assert.Contains(t, err.Error(), "alice")
	assert.Contains(t, err.Error(), "2023-11-14T22:13:20Z")
}
