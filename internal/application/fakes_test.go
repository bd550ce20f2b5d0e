package application_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"solarcore/internal/application"
	"solarcore/internal/domain"
	"solarcore/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func boolPtr(b bool) *bool { return &b }

func intPtr(i int) *int { return &i }

// fakeRooms is an in-memory RoomRepository that deep-copies on every read and
// write like a real document store.
type fakeRooms struct {
	mu      sync.Mutex
	rooms   []domain.Room
	gets    int
	saves   int
	saveErr error

	// onGet runs after a GetRoom call is served, outside the lock.
	onGet func(roomID string)
}

func newFakeRooms(rooms ...domain.Room) *fakeRooms {
	f := &fakeRooms{}
	for _, r := range rooms {
		f.rooms = append(f.rooms, cloneRoom(r))
	}
	return f
}

func cloneRoom(r domain.Room) domain.Room {
	out := r
	out.Appliances = make([]domain.Appliance, len(r.Appliances))
	for i, a := range r.Appliances {
		if a.Intensity != nil {
			v := *a.Intensity
			a.Intensity = &v
		}
		if a.ColorTint != nil {
			v := *a.ColorTint
			a.ColorTint = &v
		}
		if a.AutoMode != nil {
			v := *a.AutoMode
			a.AutoMode = &v
		}
		out.Appliances[i] = a
	}
	return out
}

func (f *fakeRooms) ListRooms(_ context.Context, accountID string) ([]domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Room
	for _, r := range f.rooms {
		if accountID == "" || r.OwnerID == accountID {
			out = append(out, cloneRoom(r))
		}
	}
	return out, nil
}

func (f *fakeRooms) ListRoomIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, r := range f.rooms {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (f *fakeRooms) GetRoom(_ context.Context, roomID string) (*domain.Room, error) {
	f.mu.Lock()
	f.gets++
	var found *domain.Room
	for _, r := range f.rooms {
		if r.ID == roomID {
			c := cloneRoom(r)
			found = &c
			break
		}
	}
	hook := f.onGet
	f.mu.Unlock()

	if hook != nil {
		hook(roomID)
	}
	if found == nil {
		return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	return found, nil
}

func (f *fakeRooms) SaveAppliances(_ context.Context, roomID string, appliances []domain.Appliance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	for i := range f.rooms {
		if f.rooms[i].ID == roomID {
			f.saves++
			f.rooms[i] = cloneRoom(domain.Room{
				ID:         roomID,
				OwnerID:    f.rooms[i].OwnerID,
				Name:       f.rooms[i].Name,
				Appliances: appliances,
			})
			return nil
		}
	}
	return fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
}

func (f *fakeRooms) RoomsLinking(_ context.Context, canonicalID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, r := range f.rooms {
		for _, a := range r.Appliances {
			if a.CanonicalDeviceID == canonicalID {
				ids = append(ids, r.ID)
				break
			}
		}
	}
	return ids, nil
}

func (f *fakeRooms) appliance(roomID, applianceID string) domain.Appliance {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.ID != roomID {
			continue
		}
		for _, a := range r.Appliances {
			if a.ID == applianceID {
				return a
			}
		}
	}
	return domain.Appliance{}
}

func (f *fakeRooms) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

// fakeCanonical is an in-memory CanonicalStore. failUpdates makes the next n
// UpdateState calls fail without applying.
type fakeCanonical struct {
	mu          sync.Mutex
	devices     map[string]domain.CanonicalDevice
	reads       int
	writes      int
	failUpdates int
	failGets    bool

	// getGate, when set, blocks Get until it is closed.
	getGate chan struct{}
}

func newFakeCanonical(devices ...domain.CanonicalDevice) *fakeCanonical {
	f := &fakeCanonical{devices: make(map[string]domain.CanonicalDevice)}
	for _, d := range devices {
		f.devices[d.ID] = d
	}
	return f
}

func (f *fakeCanonical) Get(_ context.Context, id string) (*domain.CanonicalDevice, error) {
	if f.getGate != nil {
		<-f.getGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failGets {
		return nil, fmt.Errorf("gateway unreachable: %w", domain.ErrTransientIO)
	}
	d, ok := f.devices[id]
	if !ok {
		return nil, fmt.Errorf("canonical device %s: %w", id, domain.ErrNotFound)
	}
	d.State = maps.Clone(d.State)
	return &d, nil
}

func (f *fakeCanonical) ListByParent(_ context.Context, gatewayID string) ([]domain.CanonicalDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CanonicalDevice
	for _, id := range slices.Sorted(maps.Keys(f.devices)) {
		if d := f.devices[id]; d.GatewayID == gatewayID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeCanonical) UpdateState(_ context.Context, id string, state map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdates > 0 {
		f.failUpdates--
		return fmt.Errorf("gateway unreachable: %w", domain.ErrTransientIO)
	}
	d, ok := f.devices[id]
	if !ok {
		return fmt.Errorf("canonical device %s: %w", id, domain.ErrNotFound)
	}
	f.writes++
	merged := maps.Clone(d.State)
	if merged == nil {
		merged = make(map[string]any)
	}
	maps.Copy(merged, state)
	merged[string(domain.FieldLastUpdated)] = time.Now().UTC().Format(time.RFC3339Nano)
	d.State = merged
	f.devices[id] = d
	return nil
}

func (f *fakeCanonical) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.devices[id]; !ok {
		return fmt.Errorf("canonical device %s: %w", id, domain.ErrNotFound)
	}
	delete(f.devices, id)
	return nil
}

// put simulates the gateway reporting a state change on its own.
func (f *fakeCanonical) put(id string, state map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.devices[id]
	d.ID = id
	merged := maps.Clone(d.State)
	if merged == nil {
		merged = make(map[string]any)
	}
	maps.Copy(merged, state)
	d.State = merged
	f.devices[id] = d
}

func (f *fakeCanonical) state(id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.devices[id].State)
}

func (f *fakeCanonical) counts() (reads, writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads, f.writes
}

type fakeSecurityRepo struct {
	mu      sync.Mutex
	state   domain.SecurityState
	saves   int
	saveErr error
}

func (f *fakeSecurityRepo) LoadSecurity(_ context.Context) (domain.SecurityState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeSecurityRepo) SaveSecurity(_ context.Context, s domain.SecurityState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.state = s
	return nil
}

type fakeCommands struct {
	commands []domain.CatalogCommand
}

func (f *fakeCommands) Commands(_ context.Context) ([]domain.CatalogCommand, error) {
	return slices.Clone(f.commands), nil
}

type fakeSTT struct {
	text  string
	err   error
	delay time.Duration
}

func (f *fakeSTT) Transcribe(ctx context.Context, _ []byte) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

type fakeSynth struct {
	mu     sync.Mutex
	spoken []string
	fails  int
	calls  int
}

func (f *fakeSynth) Speak(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		return fmt.Errorf("synthesizer unavailable")
	}
	f.spoken = append(f.spoken, text)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []application.Alert
	sent   chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(chan struct{}, 16)}
}

func (f *fakeNotifier) Notify(_ context.Context, a application.Alert) error {
	f.mu.Lock()
	f.alerts = append(f.alerts, a)
	f.mu.Unlock()
	f.sent <- struct{}{}
	return nil
}

func (f *fakeNotifier) titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, a := range f.alerts {
		out = append(out, a.Title)
	}
	return out
}

// recorder collects device-updated events.
type recorder struct {
	mu     sync.Mutex
	events []events.DeviceUpdated
}

func record(bus *events.Bus) *recorder {
	r := &recorder{}
	events.Subscribe(bus, events.TopicDeviceUpdated, func(e events.DeviceUpdated) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
	})
	return r
}

func (r *recorder) all() []events.DeviceUpdated {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// home builds a two-room inventory used across tests.
func home() []domain.Room {
	return []domain.Room{
		{
			ID:      "living",
			OwnerID: "acct",
			Name:    "Living Room",
			Appliances: []domain.Appliance{
				{ID: "l1", Name: "Ceiling Light", Type: domain.ApplianceLighting, Status: false, CanonicalDeviceID: "dev-l1"},
				{ID: "s1", Name: "TV Socket", Type: domain.ApplianceSocket, Status: true},
				{ID: "c1", Name: "Curtain", Type: domain.ApplianceShading, Status: false},
			},
		},
		{
			ID:      "kitchen",
			OwnerID: "acct",
			Name:    "Kitchen",
			Appliances: []domain.Appliance{
				{ID: "k1", Name: "Spot Light", Type: domain.ApplianceLighting, Status: true},
				{ID: "k2", Name: "Kettle Plug", Type: domain.ApplianceSocket, Status: true},
				{ID: "k3", Name: "Camera", Type: domain.ApplianceCamera, Status: true},
			},
		},
	}
}

type harness struct {
	rooms     *fakeRooms
	canonical *fakeCanonical
	bus       *events.Bus
	locks     *application.RoomLocks
	devices   *application.DeviceState
}

func newHarness(rooms ...domain.Room) *harness {
	h := &harness{
		rooms: newFakeRooms(rooms...),
		canonical: newFakeCanonical(domain.CanonicalDevice{
			ID:        "dev-l1",
			GatewayID: "gw-1",
			State:     map[string]any{"status": false},
		}),
		bus:   events.NewBus(testLogger()),
		locks: application.NewRoomLocks(),
	}
	h.devices = application.NewDeviceState(h.rooms, h.canonical, h.bus, h.locks, testLogger())
	return h
}
