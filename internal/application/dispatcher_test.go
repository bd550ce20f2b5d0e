package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarcore/internal/application"
	"solarcore/internal/domain"
)

func newDispatcher(t *testing.T, h *harness, repo *fakeSecurityRepo) (*application.Dispatcher, *application.Security) {
	t.Helper()
	sec, err := application.NewSecurity(context.Background(), repo, h.bus, application.SecurityConfig{
		Countdown: time.Hour,
	}, testLogger())
	require.NoError(t, err)
	return application.NewDispatcher(h.devices, sec, testLogger()), sec
}

func match(action, phrase, response, room, device string) domain.Match {
	return domain.Match{
		Command:         domain.CatalogCommand{Name: action, Phrases: []string{phrase}, Response: response, Action: action},
		Phrase:          phrase,
		RoomQualifier:   room,
		DeviceQualifier: device,
		Score:           1,
	}
}

func TestRouteTypes(t *testing.T) {
	tests := []struct {
		action string
		want   []domain.ApplianceType
	}{
		{"lights_on", []domain.ApplianceType{domain.ApplianceLighting}},
		{"lights_all_off", []domain.ApplianceType{domain.ApplianceLighting}},
		{"window_open", []domain.ApplianceType{domain.ApplianceShading}},
		{"curtain_close", []domain.ApplianceType{domain.ApplianceShading}},
		{"ac_on", []domain.ApplianceType{domain.ApplianceHVAC}},
		{"fan_off", []domain.ApplianceType{domain.ApplianceFan}},
		{"system_all_off", []domain.ApplianceType{
			domain.ApplianceLighting, domain.ApplianceHVAC, domain.ApplianceShading, domain.ApplianceSocket, domain.ApplianceFan,
		}},
	}
	for _, tt := range tests {
		got, ok := application.RouteTypes(tt.action)
		require.True(t, ok, tt.action)
		assert.Equal(t, tt.want, got, tt.action)
	}

	_, ok := application.RouteTypes("sprinkler_on")
	assert.False(t, ok)
}

func TestTargetState(t *testing.T) {
	assert.True(t, application.TargetState("lights_on"))
	assert.True(t, application.TargetState("window_open"))
	assert.False(t, application.TargetState("lights_off"))
	assert.False(t, application.TargetState("curtain_close"))
}

func TestDispatch_RoomLightsOffLeavesSocketOn(t *testing.T) {
	rooms := []domain.Room{{
		ID:   "r1",
		Name: "Study",
		Appliances: []domain.Appliance{
			{ID: "light", Name: "Desk Lamp", Type: domain.ApplianceLighting, Status: true},
			{ID: "socket", Name: "Charger", Type: domain.ApplianceSocket, Status: true},
		},
	}}
	h := newHarness(rooms...)
	d, _ := newDispatcher(t, h, &fakeSecurityRepo{})

	out := d.Dispatch(context.Background(),
		match("lights_off", "turn off {room} lights", "Turning off the lights in {room}.", "study", ""),
		rooms)

	require.NoError(t, out.Err)
	assert.Equal(t, "Turning off the lights in Study.", out.Response)
	assert.False(t, h.rooms.appliance("r1", "light").Status)
	assert.True(t, h.rooms.appliance("r1", "socket").Status)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, "light", out.Effects[0].ApplianceID)
}

func TestDispatch_AllLightsAcrossRooms(t *testing.T) {
	rooms := home()
	h := newHarness(rooms...)
	rec := record(h.bus)
	d, _ := newDispatcher(t, h, &fakeSecurityRepo{})

	out := d.Dispatch(context.Background(), match("lights_all_on", "turn on all lights", "Turning on all the lights.", "", ""), rooms)

	require.NoError(t, out.Err)
	assert.True(t, h.rooms.appliance("living", "l1").Status)
	assert.True(t, h.rooms.appliance("kitchen", "k1").Status)
	assert.False(t, h.rooms.appliance("living", "c1").Status)

	// k1 was already on, so only the living room is reported as mutated.
	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, "living", got[0].RoomID)
	assert.Equal(t, application.OriginAssistant, got[0].Origin)
}

func TestDispatch_SystemAllOffSkipsCameras(t *testing.T) {
	rooms := home()
	h := newHarness(rooms...)
	d, _ := newDispatcher(t, h, &fakeSecurityRepo{})

	out := d.Dispatch(context.Background(), match("system_all_off", "turn off everything", "Turning off all devices.", "", ""), rooms)

	require.NoError(t, out.Err)
	assert.False(t, h.rooms.appliance("living", "s1").Status)
	assert.False(t, h.rooms.appliance("kitchen", "k1").Status)
	assert.False(t, h.rooms.appliance("kitchen", "k2").Status)
	assert.True(t, h.rooms.appliance("kitchen", "k3").Status)
}

func TestDispatch_NoScopeIsRejected(t *testing.T) {
	rooms := home()
	h := newHarness(rooms...)
	d, _ := newDispatcher(t, h, &fakeSecurityRepo{})

	out := d.Dispatch(context.Background(), match("lights_on", "turn on {room} lights", "Turning on {room}.", "", ""), rooms)

	assert.Equal(t, application.ResponseNoTarget, out.Response)
	assert.ErrorIs(t, out.Err, application.ErrNoTarget)
	assert.Equal(t, 0, h.rooms.saveCount())
}

func TestDispatch_RoomQualifierWithoutRoomPhraseIsRejected(t *testing.T) {
	rooms := home()
	h := newHarness(rooms...)
	d, _ := newDispatcher(t, h, &fakeSecurityRepo{})

	out := d.Dispatch(context.Background(), match("lights_on", "lights on", "Lights on.", "kitchen", ""), rooms)

	assert.ErrorIs(t, out.Err, application.ErrNoTarget)
}

func TestDispatch_SocketSpecificHitsFirstMatchPerRoom(t *testing.T) {
	rooms := []domain.Room{
		{ID: "a", Name: "Bedroom", Appliances: []domain.Appliance{
			{ID: "a1", Name: "Heater Plug", Type: domain.ApplianceSocket},
			{ID: "a2", Name: "Heater Plug 2", Type: domain.ApplianceSocket},
		}},
		{ID: "b", Name: "Office", Appliances: []domain.Appliance{
			{ID: "b1", Name: "Heater Plug", Type: domain.ApplianceSocket},
		}},
	}
	h := newHarness(rooms...)
	d, _ := newDispatcher(t, h, &fakeSecurityRepo{})

	out := d.Dispatch(context.Background(), match("socket_specific_on", "turn on {device}", "Turning on {device}.", "", "heater plug"), rooms)

	require.NoError(t, out.Err)
	assert.Equal(t, "Turning on heater plug.", out.Response)
	assert.True(t, h.rooms.appliance("a", "a1").Status)
	assert.False(t, h.rooms.appliance("a", "a2").Status)
	assert.True(t, h.rooms.appliance("b", "b1").Status)
}

func TestDispatch_SocketSpecificWithoutDevice(t *testing.T) {
	rooms := home()
	h := newHarness(rooms...)
	d, _ := newDispatcher(t, h, &fakeSecurityRepo{})

	out := d.Dispatch(context.Background(), match("socket_specific_on", "turn on {device}", "Turning on {device}.", "", ""), rooms)

	assert.Equal(t, application.ResponseNoTarget, out.Response)
}

func TestDispatch_AwayWhileUnlockedIsCorrected(t *testing.T) {
	rooms := home()
	h := newHarness(rooms...)
	repo := &fakeSecurityRepo{}
	d, sec := newDispatcher(t, h, repo)

	out := d.Dispatch(context.Background(), match("away_mode", "away mode", "Away mode is on.", "", ""), rooms)

	assert.Equal(t, application.ResponseLockFirst, out.Response)
	assert.ErrorIs(t, out.Err, domain.ErrPrecondition)
	assert.Equal(t, domain.PhaseHomeUnlocked, sec.State().Phase())
	assert.Equal(t, 0, repo.saves)
}

func TestDispatch_LockThenAway(t *testing.T) {
	rooms := home()
	h := newHarness(rooms...)
	d, sec := newDispatcher(t, h, &fakeSecurityRepo{})

	out := d.Dispatch(context.Background(), match("lock_door", "lock the door", "The door is now locked.", "", ""), rooms)
	require.NoError(t, out.Err)
	assert.Equal(t, "The door is now locked.", out.Response)

	out = d.Dispatch(context.Background(), match("away_mode", "away mode", "Away mode is on.", "", ""), rooms)
	require.NoError(t, out.Err)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, application.EffectSecurity, out.Effects[0].Kind)
	assert.Equal(t, domain.PhaseAwayLocked, sec.State().Phase())
}

func TestDispatch_CancelWithoutCountdown(t *testing.T) {
	rooms := home()
	h := newHarness(rooms...)
	d, _ := newDispatcher(t, h, &fakeSecurityRepo{})

	out := d.Dispatch(context.Background(), match("cancel_auto_lock", "cancel auto shutdown", "Auto shutdown cancelled.", "", ""), rooms)

	assert.Equal(t, application.ResponseNoCountdown, out.Response)
}

func TestDispatch_UnknownActionIsGenericFailure(t *testing.T) {
	rooms := home()
	h := newHarness(rooms...)
	d, _ := newDispatcher(t, h, &fakeSecurityRepo{})

	out := d.Dispatch(context.Background(), match("sprinkler_on", "water the lawn", "Watering.", "", ""), rooms)

	assert.Equal(t, application.ResponseSomethingWrong, out.Response)
	assert.Error(t, out.Err)
}

func TestDispatch_StoreFailureIsGenericFailure(t *testing.T) {
	rooms := home()
	h := newHarness(rooms...)
	h.rooms.saveErr = errors.New("connection reset")
	d, _ := newDispatcher(t, h, &fakeSecurityRepo{})

	out := d.Dispatch(context.Background(), match("lights_on", "turn on {room} lights", "On.", "living room", ""), rooms)

	assert.Equal(t, application.ResponseSomethingWrong, out.Response)
	assert.NotContains(t, out.Response, "connection reset")
	assert.Error(t, out.Err)
}
