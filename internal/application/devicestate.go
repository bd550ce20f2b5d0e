package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"solarcore/internal/domain"
	"solarcore/internal/events"
)

// SyncStatus tells whether the canonical write followed the room write.
type SyncStatus string

const (
	// SyncSynced: aggregate and canonical record both written.
	SyncSynced SyncStatus = "synced"
	// SyncAggregateOnly: aggregate written, canonical write failed and is
	// pending a later reconcile.
	SyncAggregateOnly SyncStatus = "aggregate_only"
	// SyncLocal: the appliance has no canonical link.
	SyncLocal SyncStatus = "local"
)

const (
	OriginAPI          = "api"
	OriginAssistant    = "assistant"
	OriginAutoShutdown = "auto-shutdown"
	OriginReconcile    = "reconcile"
)

// UpdateResult describes one appliance update.
type UpdateResult struct {
	RoomID       string           `json:"room_id"`
	Appliance    domain.Appliance `json:"appliance"`
	Changed      bool             `json:"changed"`
	Sync         SyncStatus       `json:"sync"`
	CanonicalErr error            `json:"-"`
}

// ApplianceUpdate names one appliance and the fields to merge into it.
type ApplianceUpdate struct {
	ApplianceID string
	Fields      domain.Fields
}

// RoomUpdate groups the appliance updates for one room document.
type RoomUpdate struct {
	RoomID string
	Items  []ApplianceUpdate
	Origin string
}

// BulkResult collects per-item outcomes. One failing item does not stop the
// others.
type BulkResult struct {
	Results []UpdateResult
	Errors  []error
}

// Err joins the per-item errors, or returns nil.
func (b BulkResult) Err() error {
	return errors.Join(b.Errors...)
}

// MutatedRooms lists, in first-seen order, the rooms where at least one
// appliance changed.
func (b BulkResult) MutatedRooms() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range b.Results {
		if r.Changed && !seen[r.RoomID] {
			seen[r.RoomID] = true
			out = append(out, r.RoomID)
		}
	}
	return out
}

// DeviceState writes appliance state to the room document and, for linked
// appliances, propagates it to the canonical store on a best-effort basis.
type DeviceState struct {
	rooms     RoomRepository
	canonical CanonicalStore
	bus       *events.Bus
	locks     *RoomLocks
	logger    *slog.Logger
}

// NewDeviceState writes rooms through rooms and mirrors linked appliances to
// canonical.
func NewDeviceState(rooms RoomRepository, canonical CanonicalStore, bus *events.Bus, locks *RoomLocks, logger *slog.Logger) *DeviceState {
	return &DeviceState{
		rooms:     rooms,
		canonical: canonical,
		bus:       bus,
		locks:     locks,
		logger:    logger,
	}
}

// UpdateState merges fields into one appliance. A canonical write failure is
// reported through the result's Sync status, not as an error.
func (s *DeviceState) UpdateState(ctx context.Context, roomID, applianceID string, fields domain.Fields) (UpdateResult, error) {
	results, errs := s.updateRoom(ctx, RoomUpdate{
		RoomID: roomID,
		Items:  []ApplianceUpdate{{ApplianceID: applianceID, Fields: fields}},
		Origin: OriginAPI,
	})
	if len(errs) > 0 {
		return UpdateResult{}, errs[0]
	}
	return results[0], nil
}

// UpdateBulk applies each room's listed updates as one document write per room.
// Appliances not listed are never touched.
func (s *DeviceState) UpdateBulk(ctx context.Context, updates []RoomUpdate) BulkResult {
	var out BulkResult
	for _, u := range updates {
		results, errs := s.updateRoom(ctx, u)
		out.Results = append(out.Results, results...)
		out.Errors = append(out.Errors, errs...)
	}
	return out
}

type pendingWrite struct {
	index  int
	fields domain.Fields
}

func (s *DeviceState) updateRoom(ctx context.Context, u RoomUpdate) ([]UpdateResult, []error) {
	unlock := s.locks.Lock(u.RoomID)
	defer unlock()

	room, err := s.rooms.GetRoom(ctx, u.RoomID)
	if err != nil {
		return nil, []error{fmt.Errorf("loading room %s: %w", u.RoomID, err)}
	}

	appliances := make([]domain.Appliance, len(room.Appliances))
	copy(appliances, room.Appliances)

	var (
		errs    []error
		pending []pendingWrite
		changed = make(map[int]bool)
	)
	for _, item := range u.Items {
		idx := indexOf(appliances, item.ApplianceID)
		if idx < 0 {
			errs = append(errs, fmt.Errorf("appliance %s in room %s: %w", item.ApplianceID, u.RoomID, domain.ErrNotFound))
			continue
		}
		if err := item.Fields.Validate(appliances[idx].Type); err != nil {
			errs = append(errs, fmt.Errorf("appliance %s: %w", item.ApplianceID, err))
			continue
		}
		if item.Fields.ApplyTo(&appliances[idx]) {
			changed[idx] = true
		}
		pending = append(pending, pendingWrite{index: idx, fields: item.Fields})
	}

	if len(pending) == 0 {
		return nil, errs
	}

	if len(changed) > 0 {
		if err := s.rooms.SaveAppliances(ctx, u.RoomID, appliances); err != nil {
			return nil, append(errs, fmt.Errorf("saving room %s: %w", u.RoomID, err))
		}
	}

	results := make([]UpdateResult, 0, len(pending))
	var changedIDs []string
	for _, p := range pending {
		a := appliances[p.index]
		res := UpdateResult{
			RoomID:    u.RoomID,
			Appliance: a,
			Changed:   changed[p.index],
			Sync:      SyncLocal,
		}
		if res.Changed {
			changedIDs = append(changedIDs, a.ID)
		}

		if a.Linked() {
			res.Sync = SyncSynced
			if err := s.canonical.UpdateState(ctx, a.CanonicalDeviceID, p.fields.Canonical()); err != nil {
				s.logger.Warn("canonical write failed, aggregate kept",
					"room_id", u.RoomID,
					"appliance_id", a.ID,
					"canonical_id", a.CanonicalDeviceID,
					"error", err,
				)
				res.Sync = SyncAggregateOnly
				res.CanonicalErr = err
			}
		}
		results = append(results, res)
	}

	if len(changedIDs) > 0 {
		origin := u.Origin
		if origin == "" {
			origin = OriginAPI
		}
		events.Publish(s.bus, events.TopicDeviceUpdated, events.DeviceUpdated{
			RoomID:       u.RoomID,
			ApplianceIDs: changedIDs,
			Origin:       origin,
		})
	}

	return results, errs
}

func indexOf(appliances []domain.Appliance, id string) int {
	for i := range appliances {
		if appliances[i].ID == id {
			return i
		}
	}
	return -1
}
