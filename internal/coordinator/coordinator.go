package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/crumbhq/sera/internal/config"
	"github.com/crumbhq/sera/internal/metrics"
	"github.com/crumbhq/sera/internal/models"
	"github.com/crumbhq/sera/pkg/logger"
	"github.com/crumbhq/sera/pkg/validation"
)

// LockCoordinator is the main struct for the Sera lock service.
// It owns all business rules around edit locks and leaves durability to the
// store, so any number of instances can run against the same storage.
type LockCoordinator struct {
	logger *logger.Logger
	config *config.Config

	store  models.LockStore
	orders models.OrderDirectory

	now func() time.Time
}

// NewLockCoordinator creates a new LockCoordinator instance
func NewLockCoordinator(
	store models.LockStore,
	orders models.OrderDirectory,
	logger *logger.Logger,
	config *config.Config,
) models.Coordinator {
	return &LockCoordinator{
		store:  store,
		orders: orders,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

// Acquire claims an edit lock on an order for the calling session
func (c *LockCoordinator) Acquire(ctx context.Context, kind models.ResourceKind, resourceID, holderUserID, holderSessionID string, ttl time.Duration) (*models.LockGrant, error) {
	if _, err := models.ParseResourceKind(string(kind)); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidArgument, err)
	}
	if err := c.validateKeys(resourceID, holderSessionID); err != nil {
		return nil, err
	}
	if err := validation.ValidateIdentity("holder user id", holderUserID); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidArgument, err)
	}
	ttl, err := c.normalizeTTL(ttl)
	if err != nil {
		return nil, err
	}

	exists, err := c.orders.OrderExists(ctx, kind, resourceID)
	if err != nil {
		metrics.StoreFailures.Inc()
		c.logger.Error("Failed to look up order", "resource_id", resourceID, "error", err)
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: no %s with id %q", models.ErrInvalidArgument, kind, resourceID)
	}

	row, ok, err := c.store.Acquire(ctx, models.AcquireRequest{
		ResourceKind:    kind,
		ResourceID:      resourceID,
		HolderUserID:    holderUserID,
		HolderSessionID: holderSessionID,
		TTL:             ttl,
	})
	if err != nil {
		metrics.StoreFailures.Inc()
		c.logger.Error("Failed to acquire lock", "resource_id", resourceID, "error", err)
		return nil, err
	}
	if !ok {
		metrics.AcquireConflicts.Inc()
		c.logger.Debug("Acquire refused, resource is held", "resource_id", resourceID, "holder_user_id", row.HolderUserID)
		return nil, &models.ConflictError{HolderUserID: row.HolderUserID, ExpiresAt: row.ExpiresAt}
	}

	metrics.AcquiresGranted.Inc()
	c.logger.Debug("Lock acquired", "resource_id", resourceID, "holder_user_id", holderUserID, "expires_at", row.ExpiresAt)
	return grantFrom(row), nil
}

// Renew extends a held lock from a heartbeat
func (c *LockCoordinator) Renew(ctx context.Context, resourceID, holderSessionID string, ttl time.Duration) (*models.LockGrant, error) {
	if err := c.validateKeys(resourceID, holderSessionID); err != nil {
		return nil, err
	}
	ttl, err := c.normalizeTTL(ttl)
	if err != nil {
		return nil, err
	}

	row, ok, err := c.store.Renew(ctx, resourceID, holderSessionID, ttl)
	if err != nil {
		metrics.StoreFailures.Inc()
		c.logger.Error("Failed to renew lock", "resource_id", resourceID, "error", err)
		return nil, err
	}
	if !ok {
		metrics.RenewalsRejected.Inc()
		c.logger.Debug("Renewal rejected, lock not held", "resource_id", resourceID)
		return nil, models.ErrNotHeld
	}

	metrics.Renewals.Inc()
	return grantFrom(row), nil
}

// Release drops the session's own lock
func (c *LockCoordinator) Release(ctx context.Context, resourceID, holderSessionID string) error {
	if err := c.validateKeys(resourceID, holderSessionID); err != nil {
		return err
	}

	released, err := c.store.Release(ctx, resourceID, holderSessionID)
	if err != nil {
		metrics.StoreFailures.Inc()
		c.logger.Error("Failed to release lock", "resource_id", resourceID, "error", err)
		return err
	}
	if !released {
		metrics.ReleasesRejected.Inc()
		c.logger.Debug("Release rejected, lock not held", "resource_id", resourceID)
		return models.ErrNotHeld
	}

	metrics.Releases.Inc()
	c.logger.Debug("Lock released", "resource_id", resourceID)
	return nil
}

// Inspect reports the live lock state of an order. An expired row reads as
// unlocked even before the sweeper removes it.
func (c *LockCoordinator) Inspect(ctx context.Context, resourceID string) (*models.LockStatus, error) {
	if err := validation.ValidateResourceID(resourceID); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidArgument, err)
	}

	row, err := c.store.Get(ctx, resourceID)
	if err != nil {
		metrics.StoreFailures.Inc()
		c.logger.Error("Failed to inspect lock", "resource_id", resourceID, "error", err)
		return nil, err
	}

	status := &models.LockStatus{ResourceID: resourceID}
	if row == nil || row.Expired(c.now()) {
		return status, nil
	}

	status.Locked = true
	status.ResourceKind = row.ResourceKind
	status.HolderUserID = row.HolderUserID
	status.AcquiredAt = row.AcquiredAt
	status.ExpiresAt = row.ExpiresAt
	return status, nil
}

// Sweep removes rows that have been expired for longer than the grace period
func (c *LockCoordinator) Sweep(ctx context.Context) (int64, error) {
	removed, err := c.store.DeleteExpired(ctx, c.config.SweepGrace)
	if err != nil {
		metrics.StoreFailures.Inc()
		c.logger.Error("Failed to sweep expired locks", "error", err)
		return 0, err
	}
	if removed > 0 {
		metrics.SweptLocks.Add(float64(removed))
		c.logger.Debug("Swept expired locks", "count", removed)
	}
	return removed, nil
}

// Ping verifies the lock storage is reachable
func (c *LockCoordinator) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

func (c *LockCoordinator) validateKeys(resourceID, holderSessionID string) error {
	if err := validation.ValidateResourceID(resourceID); err != nil {
		return fmt.Errorf("%w: %s", models.ErrInvalidArgument, err)
	}
	if err := validation.ValidateIdentity("holder session id", holderSessionID); err != nil {
		return fmt.Errorf("%w: %s", models.ErrInvalidArgument, err)
	}
	return nil
}

// normalizeTTL applies the configured default and ceiling to a requested
// lifetime. Zero means "use the default".
func (c *LockCoordinator) normalizeTTL(ttl time.Duration) (time.Duration, error) {
	if ttl == 0 {
		return c.config.LockTTL, nil
	}
	if err := validation.ValidateTTL(ttl, c.config.LockMaxTTL); err != nil {
		return 0, fmt.Errorf("%w: %s", models.ErrInvalidArgument, err)
	}
	return ttl, nil
}

func grantFrom(row *models.EditLock) *models.LockGrant {
	return &models.LockGrant{
		LockID:       row.ID,
		ResourceKind: row.ResourceKind,
		ResourceID:   row.ResourceID,
		HolderUserID: row.HolderUserID,
		AcquiredAt:   row.AcquiredAt,
		ExpiresAt:    row.ExpiresAt,
	}
}
