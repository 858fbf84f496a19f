// Package store manages the RaspTerm database layer.
// It initializes GORM with SQLite and owns the telemetry retention history
// and the custom scripts table.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/vesaa/raspterm/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MaxHistoryHours bounds history queries to 30 days.
const MaxHistoryHours = 24 * 30

var (
	// ErrInvalidRange is returned by Query for an hours argument outside [1, MaxHistoryHours].
	ErrInvalidRange = fmt.Errorf("hours must be between 1 and %d", MaxHistoryHours)
	// ErrNotFound is returned when a script id does not exist.
	ErrNotFound = errors.New("record not found")
)

// Store is the sqlite-backed retention store.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and runs AutoMigrate.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&models.StatsRecord{}, &models.Script{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	log.Printf("[db] opened sqlite/%s", path)
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Append inserts one history row. There is no dedup; a zero Timestamp is
// stamped with the current time.
func (s *Store) Append(ctx context.Context, rec *models.StatsRecord) error {
	if rec.Timestamp == 0 {
		rec.Timestamp = s.now().UnixMilli()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("append stats record: %w", err)
	}
	return nil
}

// Prune deletes every record older than retentionDays and returns how many
// rows were removed.
func (s *Store) Prune(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := s.now().Add(-time.Duration(retentionDays) * 24 * time.Hour).UnixMilli()
	res := s.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&models.StatsRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune stats history: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("[db] cleaned up %d old stats records", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// Query returns the records newer than now-hours, ascending by timestamp.
func (s *Store) Query(ctx context.Context, hours int) ([]models.StatsRecord, error) {
	if hours < 1 || hours > MaxHistoryHours {
		return nil, ErrInvalidRange
	}
	cutoff := s.now().Add(-time.Duration(hours) * time.Hour).UnixMilli()

	var out []models.StatsRecord
	err := s.db.WithContext(ctx).
		Where("timestamp > ?", cutoff).
		Order("timestamp asc").
		Order("id asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query stats history: %w", err)
	}
	return out, nil
}
