package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"solarcore/internal/domain"
	"solarcore/internal/model"
)

// Canonical keeps canonical device records in the database. It stands in for
// the gateway backend when sync.backend is "sql".
type Canonical struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCanonical returns a canonical device store on db.
func NewCanonical(db *gorm.DB) *Canonical {
	return &Canonical{db: db, now: time.Now}
}

func (s *Canonical) SetClock(now func() time.Time) {
	s.now = now
}

// Get returns ErrNotFound for an unknown id.
func (s *Canonical) Get(ctx context.Context, id string) (*domain.CanonicalDevice, error) {
	var row model.CanonicalDevice
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, lookupErr("canonical device", id, err)
	}
	d := row.Domain()
	return &d, nil
}

func (s *Canonical) ListByParent(ctx context.Context, gatewayID string) ([]domain.CanonicalDevice, error) {
	var rows []model.CanonicalDevice
	if err := s.db.WithContext(ctx).Where("gateway_id = ?", gatewayID).Order("id").Find(&rows).Error; err != nil {
		return nil, storageErr("listing devices of gateway "+gatewayID, err)
	}

	out := make([]domain.CanonicalDevice, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Domain())
	}
	return out, nil
}

// UpdateState merges state into the stored payload and stamps last_updated.
// Keys not present in state are kept.
func (s *Canonical) UpdateState(ctx context.Context, id string, state map[string]any) error {
	now := s.now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var row model.CanonicalDevice
		if err := q.Where("id = ?", id).First(&row).Error; err != nil {
			return lookupErr("canonical device", id, err)
		}

		merged := datatypes.JSONMap{}
		for k, v := range row.State {
			merged[k] = v
		}
		for k, v := range state {
			merged[k] = v
		}
		merged[string(domain.FieldLastUpdated)] = now.Format(time.RFC3339Nano)

		err := tx.Model(&model.CanonicalDevice{}).Where("id = ?", id).Updates(map[string]any{
			"state":        merged,
			"last_updated": now,
		}).Error
		if err != nil {
			return storageErr("updating canonical device "+id, err)
		}
		return nil
	})
}

func (s *Canonical) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.CanonicalDevice{})
	if res.Error != nil {
		return storageErr("deleting canonical device "+id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("canonical device %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Upsert creates or replaces a canonical record. A zero LastUpdated is
// stamped with the current time.
func (s *Canonical) Upsert(ctx context.Context, d domain.CanonicalDevice) error {
	if d.LastUpdated.IsZero() {
		d.LastUpdated = s.now().UTC()
	}
	return upsertCanonical(s.db.WithContext(ctx), d)
}

func upsertCanonical(tx *gorm.DB, d domain.CanonicalDevice) error {
	row := model.CanonicalFromDomain(d)
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"gateway_id", "device_type_id", "state", "last_updated"}),
	}).Create(&row).Error
	if err != nil {
		return storageErr("upserting canonical device "+d.ID, err)
	}
	return nil
}
