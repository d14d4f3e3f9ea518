package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store persists janitor and watchdog events so operators can correlate
// pool accounting with OS-level observations after the fact.
type Store struct {
	db *gorm.DB
}

// Open connects to the event log. A postgres:// DSN selects postgres;
// anything else is treated as a sqlite path or DSN.
func Open(dsn string) (*Store, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to event log: %w", err)
	}

	if err := db.AutoMigrate(&SweepEvent{}, &ProcessCheckEvent{}); err != nil {
		return nil, fmt.Errorf("migrate event tables: %w", err)
	}

	return &Store{db: db}, nil
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) RecordSweep(ctx context.Context, ev *SweepEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(ev).Error
}

func (s *Store) RecordProcessCheck(ctx context.Context, ev *ProcessCheckEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(ev).Error
}

func (s *Store) RecentSweeps(ctx context.Context, limit int) ([]SweepEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var evs []SweepEvent
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&evs).Error
	return evs, err
}

func (s *Store) RecentProcessChecks(ctx context.Context, limit int) ([]ProcessCheckEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var evs []ProcessCheckEvent
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&evs).Error
	return evs, err
}

// Prune deletes events older than the cutoff, returning rows removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&SweepEvent{})
	if res.Error != nil {
		return 0, res.Error
	}
	deleted := res.RowsAffected

	res = s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&ProcessCheckEvent{})
	if res.Error != nil {
		return deleted, res.Error
	}
	return deleted + res.RowsAffected, nil
}
