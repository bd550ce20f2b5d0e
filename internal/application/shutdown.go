package application

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"solarcore/internal/domain"
	"solarcore/internal/events"
)

const shutdownTimeout = 30 * time.Second

// AutoShutdown powers down the account's switchable appliances when an armed
// away countdown expires.
type AutoShutdown struct {
	rooms     RoomRepository
	devices   BulkUpdater
	accountID string
	logger    *slog.Logger
}

// NewAutoShutdown acts on the rooms of accountID.
func NewAutoShutdown(rooms RoomRepository, devices BulkUpdater, accountID string, logger *slog.Logger) *AutoShutdown {
	return &AutoShutdown{
		rooms:     rooms,
		devices:   devices,
		accountID: accountID,
		logger:    logger,
	}
}

// Watch subscribes to auto-shutdown events until the returned function is
// called.
func (s *AutoShutdown) Watch(bus *events.Bus) (unsubscribe func()) {
	return events.Subscribe(bus, events.TopicAutoShutdown, func(e events.AutoShutdown) {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if _, err := s.Run(ctx, e.Except); err != nil {
			s.logger.Error("auto-shutdown failed", "session_id", e.SessionID, "error", err)
		}
	})
}

// Run switches off every appliance that is on, switchable, and matched by
// neither its id nor its type in except.
func (s *AutoShutdown) Run(ctx context.Context, except []string) (BulkResult, error) {
	rooms, err := s.rooms.ListRooms(ctx, s.accountID)
	if err != nil {
		return BulkResult{}, err
	}

	off := domain.StatusFields(false)
	var updates []RoomUpdate
	for _, r := range rooms {
		u := RoomUpdate{RoomID: r.ID, Origin: OriginAutoShutdown}
		for _, a := range r.Appliances {
			if !a.Status || !a.Type.Switchable() {
				continue
			}
			if slices.Contains(except, a.ID) || slices.Contains(except, string(a.Type)) {
				continue
			}
			u.Items = append(u.Items, ApplianceUpdate{ApplianceID: a.ID, Fields: off})
		}
		if len(u.Items) > 0 {
			updates = append(updates, u)
		}
	}

	res := s.devices.UpdateBulk(ctx, updates)
	s.logger.Info("auto-shutdown applied",
		"switched_off", len(res.Results),
		"failed", len(res.Errors),
	)
	return res, res.Err()
}
