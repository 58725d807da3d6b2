package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/crumbhq/sera/internal/models"
	"github.com/crumbhq/sera/pkg/logger"
)

// acquireAttempts bounds the insert/update/read cycle when a contended row
// keeps changing under us.
const acquireAttempts = 3

type PostgresLockStore struct {
	logger *logger.Logger

	Conn *gorm.DB

	now func() time.Time
}

func NewPostgresLockStore(user, password, dbname, host string, port int, logger *logger.Logger) (*PostgresLockStore, error) {
	return openPostgres(postgresDSN(user, password, dbname, host, port), logger)
}

func postgresDSN(user, password, dbname, host string, port int) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)
}

func openGorm(dsn string) (*gorm.DB, error) {
	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // Use standard logger
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond, // Log queries slower than this
			LogLevel:                  gormLogger.Warn,        // Only log warnings or errors
			IgnoreRecordNotFoundError: true,                   // Suppress "record not found" errors
			Colorful:                  true,                   // Enable colorful logs
		},
	)
	// TranslateError turns driver unique-violation errors into
	// gorm.ErrDuplicatedKey, which the acquire path relies on.
	return gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger, TranslateError: true})
}

func openPostgres(dsn string, logger *logger.Logger) (*PostgresLockStore, error) {
	db, err := openGorm(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %s", err)
	}

	if err := db.AutoMigrate(&models.EditLock{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %s", err)
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return &PostgresLockStore{Conn: db, logger: logger, now: time.Now}, nil
}

func (db *PostgresLockStore) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %s", err)
	}
	return sqlDB.Close()
}

// Acquire first tries a plain insert, which the unique index on resource_id
// turns into a race with exactly one winner. When a row already exists it
// falls back to conditional updates: a heartbeat when the row is our own and
// still valid, a takeover when its claim has lapsed. Each statement is atomic
// on its own, so no read-then-write window exists anywhere on this path.
func (db *PostgresLockStore) Acquire(ctx context.Context, req models.AcquireRequest) (*models.EditLock, bool, error) {
	for attempt := 0; attempt < acquireAttempts; attempt++ {
		now := db.now().Unix()
		row := models.EditLock{
			ID:              uuid.NewString(),
			ResourceKind:    req.ResourceKind,
			ResourceID:      req.ResourceID,
			HolderUserID:    req.HolderUserID,
			HolderSessionID: req.HolderSessionID,
			AcquiredAt:      now,
			ExpiresAt:       now + int64(req.TTL/time.Second),
			LastActivityAt:  now,
		}
		err := db.Conn.WithContext(ctx).Create(&row).Error
		if err == nil {
			return &row, true, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, unavailable("failed to insert lock", err)
		}

		// A row exists. If it is ours and still valid this is a re-acquire,
		// which behaves like a renewal.
		renewed, ok, err := db.Renew(ctx, req.ResourceID, req.HolderSessionID, req.TTL)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return renewed, true, nil
		}

		taken := row
		res := db.Conn.WithContext(ctx).Model(&models.EditLock{}).
			Where("resource_id = ? AND expires_at < ?", req.ResourceID, now).
			Updates(map[string]interface{}{
				"id":                taken.ID,
				"resource_kind":     taken.ResourceKind,
				"holder_user_id":    taken.HolderUserID,
				"holder_session_id": taken.HolderSessionID,
				"acquired_at":       taken.AcquiredAt,
				"expires_at":        taken.ExpiresAt,
				"last_activity_at":  taken.LastActivityAt,
			})
		if res.Error != nil {
			return nil, false, unavailable("failed to take over expired lock", res.Error)
		}
		if res.RowsAffected > 0 {
			return &taken, true, nil
		}

		// Someone else holds it. Report who, unless the row vanished while
		// we were looking, in which case the resource is free to try again.
		current, err := db.Get(ctx, req.ResourceID)
		if err != nil {
			return nil, false, err
		}
		if current != nil {
			return current, false, nil
		}
	}
	return nil, false, fmt.Errorf("%w: gave up acquiring contended lock on %q", models.ErrUnavailable, req.ResourceID)
}

// Renew extends the row in a single guarded update. The session and expiry
// checks live inside the WHERE clause, so a lapsed or foreign lock simply
// matches zero rows.
func (db *PostgresLockStore) Renew(ctx context.Context, resourceID, holderSessionID string, ttl time.Duration) (*models.EditLock, bool, error) {
	now := db.now().Unix()
	var rows []models.EditLock
	res := db.Conn.WithContext(ctx).Model(&rows).
		Clauses(clause.Returning{}).
		Where("resource_id = ? AND holder_session_id = ? AND expires_at >= ?", resourceID, holderSessionID, now).
		Updates(map[string]interface{}{
			"expires_at":       now + int64(ttl/time.Second),
			"last_activity_at": now,
		})
	if res.Error != nil {
		return nil, false, unavailable("failed to renew lock", res.Error)
	}
	if res.RowsAffected == 0 || len(rows) == 0 {
		return nil, false, nil
	}
	return &rows[0], true, nil
}

// Release deletes the session's own row regardless of expiry, so a holder
// can always clean up after itself.
func (db *PostgresLockStore) Release(ctx context.Context, resourceID, holderSessionID string) (bool, error) {
	res := db.Conn.WithContext(ctx).
		Where("resource_id = ? AND holder_session_id = ?", resourceID, holderSessionID).
		Delete(&models.EditLock{})
	if res.Error != nil {
		return false, unavailable("failed to release lock", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (db *PostgresLockStore) Get(ctx context.Context, resourceID string) (*models.EditLock, error) {
	var row models.EditLock
	if err := db.Conn.WithContext(ctx).Where("resource_id = ?", resourceID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, unavailable("failed to get lock", err)
	}

	return &row, nil
}

func (db *PostgresLockStore) DeleteExpired(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := db.now().Add(-grace).Unix()
	res := db.Conn.WithContext(ctx).Where("expires_at < ?", cutoff).Delete(&models.EditLock{})
	if res.Error != nil {
		return 0, unavailable("failed to delete expired locks", res.Error)
	}

	return res.RowsAffected, nil
}

func (db *PostgresLockStore) Ping(ctx context.Context) error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return unavailable("failed to get database connection", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("failed to ping PostgreSQL", err)
	}
	return nil
}
