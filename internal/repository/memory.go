package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crumbhq/sera/internal/models"
)

// MemoryLockStore implements models.LockStore with a plain map under one
// mutex. It exists for tests and single-instance development runs; nothing
// about it survives a restart.
type MemoryLockStore struct {
	mu    sync.Mutex
	locks map[string]*models.EditLock

	now func() time.Time
}

// MemoryOption adjusts a MemoryLockStore.
type MemoryOption func(*MemoryLockStore)

// WithMemoryClock replaces the store's clock so tests can move time instead
// of sleeping.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryLockStore) { s.now = now }
}

func NewMemoryLockStore(opts ...MemoryOption) *MemoryLockStore {
	s := &MemoryLockStore{
		locks: make(map[string]*models.EditLock),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryLockStore) Acquire(ctx context.Context, req models.AcquireRequest) (*models.EditLock, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	current, exists := s.locks[req.ResourceID]

	// Same session on a still valid row renews in place.
	if exists && current.HolderSessionID == req.HolderSessionID && now <= current.ExpiresAt {
		current.ExpiresAt = now + int64(req.TTL/time.Second)
		current.LastActivityAt = now
		renewed := *current
		return &renewed, true, nil
	}

	if exists && now <= current.ExpiresAt {
		held := *current
		return &held, false, nil
	}

	// Free resource, or an expired row to take over.
	row := &models.EditLock{
		ID:              uuid.NewString(),
		ResourceKind:    req.ResourceKind,
		ResourceID:      req.ResourceID,
		HolderUserID:    req.HolderUserID,
		HolderSessionID: req.HolderSessionID,
		AcquiredAt:      now,
		ExpiresAt:       now + int64(req.TTL/time.Second),
		LastActivityAt:  now,
	}
	s.locks[req.ResourceID] = row
	granted := *row
	return &granted, true, nil
}

func (s *MemoryLockStore) Renew(ctx context.Context, resourceID, holderSessionID string, ttl time.Duration) (*models.EditLock, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	current, exists := s.locks[resourceID]
	if !exists || current.HolderSessionID != holderSessionID || now > current.ExpiresAt {
		return nil, false, nil
	}

	current.ExpiresAt = now + int64(ttl/time.Second)
	current.LastActivityAt = now
	renewed := *current
	return &renewed, true, nil
}

func (s *MemoryLockStore) Release(ctx context.Context, resourceID, holderSessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.locks[resourceID]
	if !exists || current.HolderSessionID != holderSessionID {
		return false, nil
	}

	delete(s.locks, resourceID)
	return true, nil
}

func (s *MemoryLockStore) Get(ctx context.Context, resourceID string) (*models.EditLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.locks[resourceID]
	if !exists {
		return nil, nil
	}
	row := *current
	return &row, nil
}

func (s *MemoryLockStore) DeleteExpired(ctx context.Context, grace time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-grace).Unix()
	var removed int64
	for resourceID, row := range s.locks {
		if row.ExpiresAt < cutoff {
			delete(s.locks, resourceID)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryLockStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryLockStore) Close() error {
	return nil
}
