package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Remix struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Session   string `gorm:"index;not null;default:''"`
	InputName string `gorm:"not null;default:''"`
	InputType string `gorm:"not null;default:''"`
	InputSize int    `gorm:"not null;default:0"`

	Path        string `gorm:"index;not null;default:''"`
	Description string `gorm:"not null;default:''"`
	Rhythm      string `gorm:"not null;default:''"`
	HandleID    string `gorm:"not null;default:''"`
	MediaType   string `gorm:"not null;default:''"`

	Failed  bool          `gorm:"index"`
	Error   string        `gorm:"not null;default:''"`
	Elapsed time.Duration `gorm:"not null;default:0"`
}

func (s *Store) GetRemix(ctx context.Context, id string) (*Remix, error) {
	var v Remix
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get remix %s: %w", id, err)
	}
	return &v, nil
}

func (s *Store) SetRemix(ctx context.Context, v *Remix) error {
	if err := s.db.WithContext(ctx).Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set remix %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) DeleteRemix(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&Remix{ID: id}, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("storage: failed to delete remix %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListRemixes(ctx context.Context, page, size int, orderBy string, filter ...Filter) ([]*Remix, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * size
	vs := []*Remix{}

	q := s.db.WithContext(ctx).Offset(offset).Limit(size)
	for _, f := range filter {
		q = q.Where(f.Query, f.Args...)
	}
	// Order by
	if orderBy != "" {
		q = q.Order(orderBy)
	}
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list remixes: %w", err)
	}
	return vs, nil
}
