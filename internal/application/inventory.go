package application

import (
	"context"

	"solarcore/internal/domain"
)

// RoomRepository is the aggregate store: one document per room holding its
// ordered appliance list.
type RoomRepository interface {
	ListRooms(ctx context.Context, accountID string) ([]domain.Room, error)
	ListRoomIDs(ctx context.Context) ([]string, error)
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	SaveAppliances(ctx context.Context, roomID string, appliances []domain.Appliance) error
	// RoomsLinking returns the ids of rooms holding an appliance linked to the
	// canonical device.
	RoomsLinking(ctx context.Context, canonicalID string) ([]string, error)
}

// CanonicalStore holds gateway-owned device records. UpdateState merges the
// given keys into the stored payload and stamps last_updated.
type CanonicalStore interface {
	Get(ctx context.Context, id string) (*domain.CanonicalDevice, error)
	ListByParent(ctx context.Context, gatewayID string) ([]domain.CanonicalDevice, error)
	UpdateState(ctx context.Context, id string, state map[string]any) error
	Delete(ctx context.Context, id string) error
}

// CommandSource supplies the command catalog.
type CommandSource interface {
	Commands(ctx context.Context) ([]domain.CatalogCommand, error)
}

// SecurityRepository persists the single security state record.
type SecurityRepository interface {
	LoadSecurity(ctx context.Context) (domain.SecurityState, error)
	SaveSecurity(ctx context.Context, state domain.SecurityState) error
}
