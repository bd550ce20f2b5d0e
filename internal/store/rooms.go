package store

import (
	"context"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"solarcore/internal/domain"
	"solarcore/internal/model"
)

// Rooms stores room documents.
type Rooms struct {
	db *gorm.DB
}

// NewRooms returns a room store on db.
func NewRooms(db *gorm.DB) *Rooms {
	return &Rooms{db: db}
}

// ListRooms returns the rooms owned by accountID ordered by name. An empty
// accountID lists every room.
func (s *Rooms) ListRooms(ctx context.Context, accountID string) ([]domain.Room, error) {
	q := s.db.WithContext(ctx).Order("name").Order("id")
	if accountID != "" {
		q = q.Where("owner_id = ?", accountID)
	}

	var rows []model.Room
	if err := q.Find(&rows).Error; err != nil {
		return nil, storageErr("listing rooms", err)
	}

	rooms := make([]domain.Room, 0, len(rows))
	for _, r := range rows {
		rooms = append(rooms, r.Domain())
	}
	return rooms, nil
}

func (s *Rooms) ListRoomIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&model.Room{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, storageErr("listing room ids", err)
	}
	return ids, nil
}

// GetRoom returns ErrNotFound for an unknown id.
func (s *Rooms) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	var row model.Room
	if err := s.db.WithContext(ctx).Where("id = ?", roomID).First(&row).Error; err != nil {
		return nil, lookupErr("room", roomID, err)
	}
	room := row.Domain()
	return &room, nil
}

// SaveAppliances replaces the appliance list of an existing room.
func (s *Rooms) SaveAppliances(ctx context.Context, roomID string, appliances []domain.Appliance) error {
	res := s.db.WithContext(ctx).Model(&model.Room{}).
		Where("id = ?", roomID).
		Update("appliances", datatypes.NewJSONType(appliances))
	if res.Error != nil {
		return storageErr("saving room "+roomID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	return nil
}

// RoomsLinking scans the appliance documents for links to canonicalID. The
// JSON layout differs between sqlite and postgres, so the match runs here.
func (s *Rooms) RoomsLinking(ctx context.Context, canonicalID string) ([]string, error) {
	var rows []model.Room
	if err := s.db.WithContext(ctx).Select("id", "appliances").Order("id").Find(&rows).Error; err != nil {
		return nil, storageErr("scanning room links", err)
	}

	var ids []string
	for _, r := range rows {
		for _, a := range r.Appliances.Data() {
			if a.CanonicalDeviceID == canonicalID {
				ids = append(ids, r.ID)
				break
			}
		}
	}
	return ids, nil
}

// UpsertRoom creates the room or overwrites its name, owner and appliances.
func (s *Rooms) UpsertRoom(ctx context.Context, room domain.Room) error {
	return upsertRoom(s.db.WithContext(ctx), room)
}

func upsertRoom(tx *gorm.DB, room domain.Room) error {
	row := model.RoomFromDomain(room)
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_id", "name", "appliances", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return storageErr("upserting room "+room.ID, err)
	}
	return nil
}
