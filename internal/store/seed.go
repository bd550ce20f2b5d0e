package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"solarcore/internal/domain"
)

// Inventory is the seed file layout: rooms with their appliances and the
// canonical devices they link to.
type Inventory struct {
	Rooms   []domain.Room `yaml:"rooms"`
	Devices []SeedDevice  `yaml:"canonical_devices"`
}

// SeedDevice is a canonical device entry in an inventory file.
type SeedDevice struct {
	ID           string         `yaml:"id"`
	GatewayID    string         `yaml:"gateway_id"`
	DeviceTypeID string         `yaml:"device_type_id"`
	State        map[string]any `yaml:"state"`
}

// LoadInventory reads an inventory file, expanding ${ENV} references.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}

	var inv Inventory
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &inv); err != nil {
		return nil, fmt.Errorf("parsing inventory: %w", err)
	}
	return &inv, nil
}

// Seed writes the inventory in one transaction. Rooms without an owner are
// assigned to accountID; missing room and appliance ids are generated.
func Seed(ctx context.Context, db *gorm.DB, inv *Inventory, accountID string) error {
	for i := range inv.Rooms {
		r := &inv.Rooms[i]
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.OwnerID == "" {
			r.OwnerID = accountID
		}
		for j := range r.Appliances {
			a := &r.Appliances[j]
			if a.ID == "" {
				a.ID = uuid.NewString()
			}
			if !a.Type.Valid() {
				return fmt.Errorf("room %s appliance %q: unknown type %q: %w", r.Name, a.Name, a.Type, domain.ErrPrecondition)
			}
		}
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, d := range inv.Devices {
			if d.ID == "" {
				return fmt.Errorf("canonical device without id: %w", domain.ErrPrecondition)
			}
			if err := upsertCanonical(tx, domain.CanonicalDevice{
				ID:           d.ID,
				GatewayID:    d.GatewayID,
				DeviceTypeID: d.DeviceTypeID,
				State:        d.State,
				LastUpdated:  time.Now().UTC(),
			}); err != nil {
				return err
			}
		}
		for _, r := range inv.Rooms {
			if err := upsertRoom(tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}
