package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"solarcore/internal/domain"
)

const (
	ResponseNotUnderstood  = "Sorry, I didn't understand that."
	ResponseNoTarget       = "I couldn't tell which room or device you meant."
	ResponseNoDevices      = "I couldn't find a matching device."
	ResponseLockFirst      = "Please lock the door before changing the security mode."
	ResponseNoCountdown    = "There is no auto-shutdown countdown running."
	ResponseSomethingWrong = "Something went wrong, please try again."
)

// ErrNoTarget is returned when an action has neither an all-rooms scope, a
// room qualifier for a room phrase, nor a device qualifier.
var ErrNoTarget = errors.New("cannot determine target")

// EffectKind tells what a dispatched command did to one target.
type EffectKind string

const (
	EffectAppliance EffectKind = "appliance"
	EffectSecurity  EffectKind = "security"
	EffectCountdown EffectKind = "countdown_cancelled"
)

// Effect is one observable result of a dispatched command.
type Effect struct {
	Kind        EffectKind            `json:"kind"`
	RoomID      string                `json:"room_id,omitempty"`
	ApplianceID string                `json:"appliance_id,omitempty"`
	Status      *bool                 `json:"status,omitempty"`
	Sync        SyncStatus            `json:"sync,omitempty"`
	Security    *domain.SecurityState `json:"security,omitempty"`
}

// Outcome is what a dispatched command did. Err is for logs and callers;
// Response never carries internal detail.
type Outcome struct {
	Response string   `json:"response"`
	Effects  []Effect `json:"effects,omitempty"`
	Err      error    `json:"-"`
}

// prefix -> affected appliance types, checked in order.
var typeRoutes = []struct {
	prefix string
	types  []domain.ApplianceType
}{
	{"system_all_", []domain.ApplianceType{
		domain.ApplianceLighting,
		domain.ApplianceHVAC,
		domain.ApplianceShading,
		domain.ApplianceSocket,
		domain.ApplianceFan,
	}},
	{"lights_", []domain.ApplianceType{domain.ApplianceLighting}},
	{"window_", []domain.ApplianceType{domain.ApplianceShading}},
	{"curtain_", []domain.ApplianceType{domain.ApplianceShading}},
	{"ac_", []domain.ApplianceType{domain.ApplianceHVAC}},
	{"fan_", []domain.ApplianceType{domain.ApplianceFan}},
	{"socket_", []domain.ApplianceType{domain.ApplianceSocket}},
}

// RouteTypes returns the appliance types an action type affects.
func RouteTypes(action string) ([]domain.ApplianceType, bool) {
	for _, r := range typeRoutes {
		if strings.HasPrefix(action, r.prefix) {
			return r.types, true
		}
	}
	return nil, false
}

// TargetState reads the desired on/off state from the action suffix.
func TargetState(action string) bool {
	return strings.HasSuffix(action, "_on") || strings.HasSuffix(action, "_open")
}

// SecurityController is the part of Security the dispatcher drives.
type SecurityController interface {
	LockDoor(ctx context.Context) (domain.SecurityState, error)
	UnlockDoor(ctx context.Context) (domain.SecurityState, error)
	SetAway(ctx context.Context) (domain.SecurityState, error)
	SetHome(ctx context.Context) (domain.SecurityState, error)
	CancelCountdown() bool
}

// BulkUpdater applies per-appliance updates across rooms.
type BulkUpdater interface {
	UpdateBulk(ctx context.Context, updates []RoomUpdate) BulkResult
}

// Dispatcher turns a matched command into device mutations or a security
// transition and words the reply.
type Dispatcher struct {
	devices  BulkUpdater
	security SecurityController
	logger   *slog.Logger
}

// NewDispatcher wires the dispatcher to the device store and the security
// state machine.
func NewDispatcher(devices BulkUpdater, security SecurityController, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		devices:  devices,
		security: security,
		logger:   logger,
	}
}

// Dispatch carries out a matched command against rooms. Failures are
// reported in the Outcome, never as a panic or partial silence.
func (d *Dispatcher) Dispatch(ctx context.Context, m domain.Match, rooms []domain.Room) Outcome {
	action := m.Command.Action

	switch action {
	case domain.ActionLockDoor:
		return d.securityOutcome(ctx, m, d.security.LockDoor)
	case domain.ActionUnlockDoor:
		return d.securityOutcome(ctx, m, d.security.UnlockDoor)
	case domain.ActionAwayMode:
		return d.securityOutcome(ctx, m, d.security.SetAway)
	case domain.ActionHomeMode:
		return d.securityOutcome(ctx, m, d.security.SetHome)
	case domain.ActionCancelLock:
		if !d.security.CancelCountdown() {
			return Outcome{Response: ResponseNoCountdown}
		}
		return Outcome{
			Response: d.fill(m, ""),
			Effects:  []Effect{{Kind: EffectCountdown}},
		}
	case domain.ActionSocketOn, domain.ActionSocketOff:
		return d.socketSpecific(ctx, m, rooms, TargetState(action))
	}

	types, ok := RouteTypes(action)
	if !ok {
		return d.failure(fmt.Errorf("unknown action type %q", action))
	}

	updates, roomName, err := d.plan(m, rooms, types, TargetState(action))
	if err != nil {
		if errors.Is(err, ErrNoTarget) {
			return Outcome{Response: ResponseNoTarget, Err: err}
		}
		return d.failure(err)
	}
	if len(updates) == 0 {
		return Outcome{Response: ResponseNoDevices}
	}

	return d.apply(ctx, m, updates, roomName)
}

// plan resolves the room scope and lists the appliances of the routed types
// inside it. Appliances of other types are never listed.
func (d *Dispatcher) plan(m domain.Match, rooms []domain.Room, types []domain.ApplianceType, on bool) ([]RoomUpdate, string, error) {
	fields := domain.StatusFields(on)

	var (
		scope    []domain.Room
		roomName string
		device   string
	)
	switch {
	case strings.Contains(m.Command.Action, "_all_"):
		scope = rooms
	case m.PhraseHasRoom() && m.RoomQualifier != "":
		for _, r := range rooms {
			if Normalize(r.Name) == m.RoomQualifier {
				scope = append(scope, r)
				roomName = r.Name
				break
			}
		}
		if len(scope) == 0 {
			return nil, "", fmt.Errorf("room %q: %w", m.RoomQualifier, domain.ErrNotFound)
		}
	case m.DeviceQualifier != "":
		scope = rooms
		device = m.DeviceQualifier
	default:
		return nil, "", ErrNoTarget
	}

	var updates []RoomUpdate
	for _, r := range scope {
		u := RoomUpdate{RoomID: r.ID, Origin: OriginAssistant}
		for _, a := range r.Appliances {
			if !slices.Contains(types, a.Type) {
				continue
			}
			if device != "" && !strings.Contains(Normalize(a.Name), device) {
				continue
			}
			u.Items = append(u.Items, ApplianceUpdate{ApplianceID: a.ID, Fields: fields})
		}
		if len(u.Items) > 0 {
			updates = append(updates, u)
		}
	}
	return updates, roomName, nil
}

// socketSpecific switches, in every room, the first socket whose name
// contains the device qualifier. Equally named sockets in several rooms are
// all switched.
func (d *Dispatcher) socketSpecific(ctx context.Context, m domain.Match, rooms []domain.Room, on bool) Outcome {
	if m.DeviceQualifier == "" {
		return Outcome{Response: ResponseNoTarget, Err: ErrNoTarget}
	}

	var updates []RoomUpdate
	for _, r := range rooms {
		for _, a := range r.Appliances {
			if a.Type != domain.ApplianceSocket || !strings.Contains(Normalize(a.Name), m.DeviceQualifier) {
				continue
			}
			updates = append(updates, RoomUpdate{
				RoomID: r.ID,
				Items:  []ApplianceUpdate{{ApplianceID: a.ID, Fields: domain.StatusFields(on)}},
				Origin: OriginAssistant,
			})
			break
		}
	}
	if len(updates) == 0 {
		return Outcome{Response: ResponseNoDevices}
	}

	return d.apply(ctx, m, updates, "")
}

func (d *Dispatcher) apply(ctx context.Context, m domain.Match, updates []RoomUpdate, roomName string) Outcome {
	res := d.devices.UpdateBulk(ctx, updates)

	effects := make([]Effect, 0, len(res.Results))
	for _, r := range res.Results {
		status := r.Appliance.Status
		effects = append(effects, Effect{
			Kind:        EffectAppliance,
			RoomID:      r.RoomID,
			ApplianceID: r.Appliance.ID,
			Status:      &status,
			Sync:        r.Sync,
		})
	}

	if err := res.Err(); err != nil {
		d.logger.Error("dispatch partially failed",
			"action", m.Command.Action,
			"applied", len(res.Results),
			"failed", len(res.Errors),
			"error", err,
		)
		return Outcome{Response: ResponseSomethingWrong, Effects: effects, Err: err}
	}

	return Outcome{Response: d.fill(m, roomName), Effects: effects}
}

func (d *Dispatcher) securityOutcome(ctx context.Context, m domain.Match, transition func(context.Context) (domain.SecurityState, error)) Outcome {
	state, err := transition(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPrecondition) {
			return Outcome{Response: ResponseLockFirst, Err: err}
		}
		return d.failure(err)
	}
	return Outcome{
		Response: d.fill(m, ""),
		Effects:  []Effect{{Kind: EffectSecurity, Security: &state}},
	}
}

func (d *Dispatcher) failure(err error) Outcome {
	d.logger.Error("dispatch failed", "error", err)
	return Outcome{Response: ResponseSomethingWrong, Err: err}
}

func (d *Dispatcher) fill(m domain.Match, roomName string) string {
	if roomName == "" {
		roomName = m.RoomQualifier
	}
	return domain.Fill(m.Command.Response, roomName, m.DeviceQualifier)
}
