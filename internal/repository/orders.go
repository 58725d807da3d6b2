package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/crumbhq/sera/internal/models"
	"github.com/crumbhq/sera/pkg/logger"
)

// GormOrderDirectory resolves order existence against the bakery's own
// orders tables, which live in the same PostgreSQL database as the locks.
type GormOrderDirectory struct {
	logger *logger.Logger
	conn   *gorm.DB

	// ownsConn marks a connection the directory opened itself rather than
	// borrowed from the lock store, so Close knows whether to tear it down.
	ownsConn bool

	customerOrdersTable string
	internalOrdersTable string
}

func NewGormOrderDirectory(conn *gorm.DB, customerOrdersTable, internalOrdersTable string, logger *logger.Logger) *GormOrderDirectory {
	return &GormOrderDirectory{
		logger:              logger,
		conn:                conn,
		customerOrdersTable: customerOrdersTable,
		internalOrdersTable: internalOrdersTable,
	}
}

// NewPostgresOrderDirectory opens its own connection to the orders database.
// It serves deployments where the lock backend is not PostgreSQL but the
// orders still are.
func NewPostgresOrderDirectory(user, password, dbname, host string, port int, customerOrdersTable, internalOrdersTable string, logger *logger.Logger) (*GormOrderDirectory, error) {
	conn, err := openGorm(postgresDSN(user, password, dbname, host, port))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %s", err)
	}
	directory := NewGormOrderDirectory(conn, customerOrdersTable, internalOrdersTable, logger)
	directory.ownsConn = true
	return directory, nil
}

// Close tears down the directory's own connection. A connection borrowed
// from the lock store is left to its owner.
func (d *GormOrderDirectory) Close() error {
	if !d.ownsConn {
		return nil
	}
	sqlDB, err := d.conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %s", err)
	}
	return sqlDB.Close()
}

func (d *GormOrderDirectory) OrderExists(ctx context.Context, kind models.ResourceKind, resourceID string) (bool, error) {
	table, err := d.table(kind)
	if err != nil {
		return false, err
	}

	var count int64
	if err := d.conn.WithContext(ctx).Table(table).Where("id = ?", resourceID).Count(&count).Error; err != nil {
		return false, unavailable("failed to look up order", err)
	}
	return count > 0, nil
}

func (d *GormOrderDirectory) table(kind models.ResourceKind) (string, error) {
	switch kind {
	case models.KindCustomerOrder:
		return d.customerOrdersTable, nil
	case models.KindInternalOrder:
		return d.internalOrdersTable, nil
	default:
		return "", fmt.Errorf("%w: unknown resource kind %q", models.ErrInvalidArgument, kind)
	}
}

// AllowAllDirectory skips the existence check. It backs deployments where
// the orders tables are not reachable from the lock service.
type AllowAllDirectory struct{}

func (AllowAllDirectory) OrderExists(ctx context.Context, kind models.ResourceKind, resourceID string) (bool, error) {
	return true, nil
}
