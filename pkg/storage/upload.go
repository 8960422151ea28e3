package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Upload tells where a remote file store keeps an audio handle.
type Upload struct {
	Name      string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Backend   string `gorm:"index;not null;default:''"`
	Ref       string `gorm:"not null;default:''"`
	MediaType string `gorm:"not null;default:''"`
	Size      int64  `gorm:"not null;default:0"`
}

func (s *Store) GetUpload(ctx context.Context, name string) (*Upload, error) {
	var v Upload
	if err := s.db.WithContext(ctx).First(&v, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get upload %s: %w", name, err)
	}
	return &v, nil
}

// SetUpload creates the upload or replaces the location of an existing one.
func (s *Store) SetUpload(ctx context.Context, v *Upload) error {
	if v.Name == "" {
		return fmt.Errorf("storage: upload without name")
	}
	v.UpdatedAt = time.Now().UTC()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"backend", "ref", "media_type", "size", "updated_at"}),
	}).Create(v).Error
	if err != nil {
		return fmt.Errorf("storage: failed to set upload %s: %w", v.Name, err)
	}
	return nil
}

func (s *Store) DeleteUpload(ctx context.Context, name string) error {
	if err := s.db.WithContext(ctx).Delete(&Upload{}, "name = ?", name).Error; err != nil {
		return fmt.Errorf("storage: failed to delete upload %s: %w", name, err)
	}
	return nil
}
