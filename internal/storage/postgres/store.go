// Package postgres persists studios and scheduled sessions with gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/podnest/studio/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func orderedGuests(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }

// Save upserts the session row and replaces its guest list in one transaction.
func (s *Store) Save(ctx context.Context, sess *domain.ScheduledSession) error {
	row := sessionToRow(sess)
	guests := row.Guests
	row.Guests = nil
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", row.ID).Delete(&guestRow{}).Error; err != nil {
			return err
		}
		if len(guests) == 0 {
			return nil
		}
		return tx.Create(&guests).Error
	})
}

func (s *Store) FindByID(ctx context.Context, id domain.SessionID) (*domain.ScheduledSession, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).Preload("Guests", orderedGuests).Where("id = ?", string(id)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return rowToSession(&row), nil
}

func (s *Store) FindByStudio(ctx context.Context, studio domain.StudioID) ([]*domain.ScheduledSession, error) {
	return s.find(ctx, "studio_id = ?", string(studio))
}

func (s *Store) FindByStatus(ctx context.Context, status domain.SessionStatus) ([]*domain.ScheduledSession, error) {
	return s.find(ctx, "status = ?", string(status))
}

func (s *Store) find(ctx context.Context, query string, arg any) ([]*domain.ScheduledSession, error) {
	var rows []sessionRow
	err := s.db.WithContext(ctx).
		Preload("Guests", orderedGuests).
		Where(query, arg).
		Order("start_time ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.ScheduledSession, 0, len(rows))
	for i := range rows {
		out = append(out, rowToSession(&rows[i]))
	}
	return out, nil
}

// DeleteByID relies on the cascade to drop guests.
func (s *Store) DeleteByID(ctx context.Context, id domain.SessionID) error {
	res := s.db.WithContext(ctx).Where("id = ?", string(id)).Delete(&sessionRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) CreateStudio(ctx context.Context, st *domain.Studio) error {
	return s.db.WithContext(ctx).Create(studioToRow(st)).Error
}

func (s *Store) FindStudio(ctx context.Context, id domain.StudioID) (*domain.Studio, error) {
	return s.findStudio(ctx, "id = ?", string(id))
}

func (s *Store) FindStudioByInviteCode(ctx context.Context, code domain.InviteCode) (*domain.Studio, error) {
	return s.findStudio(ctx, "invite_code = ?", string(code))
}

func (s *Store) findStudio(ctx context.Context, query string, arg any) (*domain.Studio, error) {
	var row studioRow
	err := s.db.WithContext(ctx).Where(query, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrStudioNotFound
	}
	if err != nil {
		return nil, err
	}
	return rowToStudio(&row), nil
}
