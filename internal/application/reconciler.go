package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"solarcore/internal/domain"
	"solarcore/internal/events"
)

// ReconcileConfig sets the admission gate and the periodic interval.
type ReconcileConfig struct {
	Cooldown time.Duration
	// MaxRuns caps admitted runs per room within one Window.
	MaxRuns int
	Window  time.Duration
	// Interval drives StartPeriodic. Zero disables the ticker.
	Interval time.Duration
}

// ReconcileResult reports one reconcile attempt.
type ReconcileResult struct {
	RoomID   string `json:"room_id"`
	Admitted bool   `json:"admitted"`
	Checked  int    `json:"checked"`
	Updated  int    `json:"updated"`
	// Unreachable counts linked appliances whose canonical record could not
	// be read this run.
	Unreachable int `json:"unreachable"`
}

// Reconciler copies canonical device state back into room documents. It
// never writes to the canonical store.
type Reconciler struct {
	rooms     RoomRepository
	canonical CanonicalStore
	locks     *RoomLocks
	bus       *events.Bus
	cfg       ReconcileConfig
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	active  map[string]bool
	lastRun map[string]time.Time
	runs    *cache.Cache
}

// NewReconciler shares locks with DeviceState so both serialize writes to a
// room document.
func NewReconciler(rooms RoomRepository, canonical CanonicalStore, locks *RoomLocks, bus *events.Bus, cfg ReconcileConfig, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		rooms:     rooms,
		canonical: canonical,
		locks:     locks,
		bus:       bus,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		active:    make(map[string]bool),
		lastRun:   make(map[string]time.Time),
		runs:      cache.New(cfg.Window, 2*cfg.Window),
	}
}

// SetClock replaces the time source used for the cooldown check.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Reconcile runs one read-back for roomID if the admission gate allows it.
// A denied run returns Admitted=false and no error.
func (r *Reconciler) Reconcile(ctx context.Context, roomID string) (ReconcileResult, error) {
	result := ReconcileResult{RoomID: roomID}

	if reason, ok := r.admit(roomID); !ok {
		r.logger.Debug("reconcile not admitted", "room_id", roomID, "reason", reason)
		return result, nil
	}
	defer r.release(roomID)
	result.Admitted = true

	room, err := r.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return result, fmt.Errorf("loading room %s: %w", roomID, err)
	}

	remote := make(map[string]domain.Fields)
	for _, a := range room.Appliances {
		if !a.Linked() {
			continue
		}
		result.Checked++

		dev, err := r.canonical.Get(ctx, a.CanonicalDeviceID)
		if err != nil {
			result.Unreachable++
			level := slog.LevelWarn
			if errors.Is(err, domain.ErrNotFound) {
				level = slog.LevelInfo
			}
			r.logger.Log(ctx, level, "canonical read failed",
				"room_id", roomID,
				"appliance_id", a.ID,
				"canonical_id", a.CanonicalDeviceID,
				"error", err,
			)
			continue
		}
		fields, dropped := dev.Fields().Sanitize(a.Type)
		if len(dropped) > 0 {
			r.logger.Warn("ignoring invalid canonical values",
				"room_id", roomID,
				"appliance_id", a.ID,
				"canonical_id", a.CanonicalDeviceID,
				"fields", dropped,
			)
		}
		remote[a.ID] = fields
	}

	if len(remote) == 0 {
		return result, nil
	}

	updated, err := r.apply(ctx, roomID, remote)
	if err != nil {
		return result, err
	}
	result.Updated = len(updated)

	if len(updated) > 0 {
		r.logger.Info("room reconciled", "room_id", roomID, "updated", len(updated))
		events.Publish(r.bus, events.TopicDeviceUpdated, events.DeviceUpdated{
			RoomID:       roomID,
			ApplianceIDs: updated,
			Origin:       OriginReconcile,
		})
	}
	return result, nil
}

// apply reloads the room under its write lock so a concurrent DeviceState
// write is not overwritten with a stale document.
func (r *Reconciler) apply(ctx context.Context, roomID string, remote map[string]domain.Fields) ([]string, error) {
	unlock := r.locks.Lock(roomID)
	defer unlock()

	room, err := r.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("reloading room %s: %w", roomID, err)
	}

	appliances := make([]domain.Appliance, len(room.Appliances))
	copy(appliances, room.Appliances)

	var updated []string
	for i := range appliances {
		fields, ok := remote[appliances[i].ID]
		if !ok {
			continue
		}
		if fields.ApplyTo(&appliances[i]) {
			updated = append(updated, appliances[i].ID)
		}
	}

	if len(updated) == 0 {
		return nil, nil
	}
	if err := r.rooms.SaveAppliances(ctx, roomID, appliances); err != nil {
		return nil, fmt.Errorf("saving room %s: %w", roomID, err)
	}
	return updated, nil
}

// ReconcileAll reconciles every known room. Failures are logged per room and
// joined into the returned error.
func (r *Reconciler) ReconcileAll(ctx context.Context) ([]ReconcileResult, error) {
	ids, err := r.rooms.ListRoomIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}

	var (
		results []ReconcileResult
		errs    []error
	)
	for _, id := range ids {
		res, err := r.Reconcile(ctx, id)
		if err != nil {
			r.logger.Error("reconciling room", "room_id", id, "error", err)
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// StartPeriodic reconciles every room on each tick until ctx is done.
func (r *Reconciler) StartPeriodic(ctx context.Context) {
	if r.cfg.Interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.ReconcileAll(ctx); err != nil {
					r.logger.Warn("periodic reconcile finished with errors", "error", err)
				}
			}
		}
	}()
}

// Watch reconciles the rooms linking a canonical device whenever the gateway
// reports a change to it.
func (r *Reconciler) Watch(ctx context.Context) (unsubscribe func()) {
	return events.Subscribe(r.bus, events.TopicCanonicalChanged, func(e events.CanonicalChanged) {
		roomIDs, err := r.rooms.RoomsLinking(ctx, e.DeviceID)
		if err != nil {
			r.logger.Error("finding rooms for canonical device", "canonical_id", e.DeviceID, "error", err)
			return
		}
		for _, id := range roomIDs {
			if _, err := r.Reconcile(ctx, id); err != nil {
				r.logger.Error("reconciling room", "room_id", id, "error", err)
			}
		}
	})
}

func (r *Reconciler) admit(roomID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[roomID] {
		return "in flight", false
	}
	now := r.now()
	if last, ok := r.lastRun[roomID]; ok && now.Sub(last) < r.cfg.Cooldown {
		return "cooldown", false
	}
	if n, ok := r.runs.Get(roomID); ok && r.cfg.MaxRuns > 0 && n.(int) >= r.cfg.MaxRuns {
		return "window limit", false
	}

	r.active[roomID] = true
	r.lastRun[roomID] = now
	if _, err := r.runs.IncrementInt(roomID, 1); err != nil {
		r.runs.Set(roomID, 1, cache.DefaultExpiration)
	}
	return "", true
}

func (r *Reconciler) release(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, roomID)
}
