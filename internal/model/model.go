package model

import (
	"time"

	"gorm.io/datatypes"

	"solarcore/internal/domain"
)

// Room is the per-room aggregate document. The appliance list is stored as a
// single JSON column so that a room is always read and written whole.
type Room struct {
	ID         string `gorm:"primaryKey"`
	OwnerID    string `gorm:"index;not null"`
	Name       string `gorm:"not null"`
	Appliances datatypes.JSONType[[]domain.Appliance]
	UpdatedAt  time.Time
}

// CanonicalDevice is the gateway-owned record of a physical device.
type CanonicalDevice struct {
	ID           string `gorm:"primaryKey"`
	GatewayID    string `gorm:"index;not null"`
	DeviceTypeID string
	State        datatypes.JSONMap
	LastUpdated  time.Time
}

// SecurityState is a single-row table; ID is always SecuritySingletonID.
type SecurityState struct {
	ID           uint `gorm:"primaryKey;autoIncrement:false"`
	DoorLocked   bool
	SecurityMode bool
	SessionID    string
	ChangedAt    time.Time
}

const SecuritySingletonID = 1

func (SecurityState) TableName() string { return "security_state" }

func RoomFromDomain(r domain.Room) Room {
	return Room{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Name:       r.Name,
		Appliances: datatypes.NewJSONType(r.Appliances),
	}
}

func (r Room) Domain() domain.Room {
	appliances := r.Appliances.Data()
	if appliances == nil {
		appliances = []domain.Appliance{}
	}
	return domain.Room{ID: r.ID, OwnerID: r.OwnerID, Name: r.Name, Appliances: appliances}
}

func CanonicalFromDomain(d domain.CanonicalDevice) CanonicalDevice {
	state := datatypes.JSONMap{}
	for k, v := range d.State {
		state[k] = v
	}
	return CanonicalDevice{
		ID:           d.ID,
		GatewayID:    d.GatewayID,
		DeviceTypeID: d.DeviceTypeID,
		State:        state,
		LastUpdated:  d.LastUpdated,
	}
}

func (d CanonicalDevice) Domain() domain.CanonicalDevice {
	state := make(map[string]any, len(d.State))
	for k, v := range d.State {
		state[k] = v
	}
	return domain.CanonicalDevice{
		ID:           d.ID,
		GatewayID:    d.GatewayID,
		DeviceTypeID: d.DeviceTypeID,
		State:        state,
		LastUpdated:  d.LastUpdated,
	}
}

func SecurityFromDomain(s domain.SecurityState) SecurityState {
	return SecurityState{
		ID:           SecuritySingletonID,
		DoorLocked:   s.DoorLocked,
		SecurityMode: s.SecurityMode,
		SessionID:    s.SessionID,
		ChangedAt:    s.ChangedAt,
	}
}

func (s SecurityState) Domain() domain.SecurityState {
	return domain.SecurityState{
		DoorLocked:   s.DoorLocked,
		SecurityMode: s.SecurityMode,
		SessionID:    s.SessionID,
		ChangedAt:    s.ChangedAt,
	}
}
