package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"solarcore/internal/domain"
	"solarcore/internal/model"
)

// Security stores the single security state row.
type Security struct {
	db *gorm.DB
}

// NewSecurity returns a security store on db.
func NewSecurity(db *gorm.DB) *Security {
	return &Security{db: db}
}

// LoadSecurity returns the persisted state, or the zero state (door unlocked,
// home) when nothing has been saved yet.
func (s *Security) LoadSecurity(ctx context.Context) (domain.SecurityState, error) {
	var row model.SecurityState
	err := s.db.WithContext(ctx).Where("id = ?", model.SecuritySingletonID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.SecurityState{}, nil
	}
	if err != nil {
		return domain.SecurityState{}, storageErr("loading security state", err)
	}
	return row.Domain(), nil
}

func (s *Security) SaveSecurity(ctx context.Context, state domain.SecurityState) error {
	row := model.SecurityFromDomain(state)
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return storageErr("saving security state", err)
	}
	return nil
}
