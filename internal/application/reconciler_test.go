package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarcore/internal/application"
	"solarcore/internal/domain"
	"solarcore/internal/events"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newReconciler(h *harness, cfg application.ReconcileConfig) (*application.Reconciler, *manualClock) {
	r := application.NewReconciler(h.rooms, h.canonical, h.locks, h.bus, cfg, testLogger())
	clock := &manualClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	r.SetClock(clock.now)
	return r, clock
}

func TestReconcile_PullsCanonicalStateWithoutWritingBack(t *testing.T) {
	h := newHarness(home()...)
	rec := record(h.bus)
	h.canonical.put("dev-l1", map[string]any{"status": true, "intensity": 30.0})
	r, _ := newReconciler(h, application.ReconcileConfig{})

	res, err := r.Reconcile(context.Background(), "living")

	require.NoError(t, err)
	assert.True(t, res.Admitted)
	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, 1, res.Updated)

	a := h.rooms.appliance("living", "l1")
	assert.True(t, a.Status)
	require.NotNil(t, a.Intensity)
	assert.Equal(t, 30, *a.Intensity)

	_, writes := h.canonical.counts()
	assert.Equal(t, 0, writes)

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, application.OriginReconcile, got[0].Origin)
}

func TestReconcile_DropsOutOfRangeCanonicalValues(t *testing.T) {
	h := newHarness(home()...)
	h.canonical.put("dev-l1", map[string]any{"status": true, "intensity": 250.0, "color_tint": "cool"})
	r, _ := newReconciler(h, application.ReconcileConfig{})

	res, err := r.Reconcile(context.Background(), "living")

	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	a := h.rooms.appliance("living", "l1")
	assert.True(t, a.Status)
	assert.Nil(t, a.Intensity)
	require.NotNil(t, a.ColorTint)
	assert.Equal(t, domain.TintCool, *a.ColorTint)
	assert.NoError(t, domain.Fields{Intensity: a.Intensity, ColorTint: a.ColorTint}.Validate(a.Type))
}

func TestReconcile_InvalidOnlyValuesLeaveRoomUntouched(t *testing.T) {
	h := newHarness(home()...)
	h.canonical.put("dev-l1", map[string]any{"status": false, "intensity": -5.0})
	r, _ := newReconciler(h, application.ReconcileConfig{})

	res, err := r.Reconcile(context.Background(), "living")

	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 0, h.rooms.saveCount())
	assert.Nil(t, h.rooms.appliance("living", "l1").Intensity)
}

func TestReconcile_NoDiffDoesNotPersist(t *testing.T) {
	h := newHarness(home()...)
	r, _ := newReconciler(h, application.ReconcileConfig{})

	res, err := r.Reconcile(context.Background(), "living")

	require.NoError(t, err)
	assert.True(t, res.Admitted)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 0, h.rooms.saveCount())
}

func TestReconcile_SingleFlight(t *testing.T) {
	h := newHarness(home()...)
	gate := make(chan struct{})
	h.canonical.getGate = gate
	r, _ := newReconciler(h, application.ReconcileConfig{})

	first := make(chan application.ReconcileResult)
	go func() {
		res, err := r.Reconcile(context.Background(), "living")
		assert.NoError(t, err)
		first <- res
	}()

	// Wait for the first run to be inside the canonical read.
	require.Eventually(t, func() bool {
		h.rooms.mu.Lock()
		defer h.rooms.mu.Unlock()
		return h.rooms.gets >= 1
	}, time.Second, time.Millisecond)

	second, err := r.Reconcile(context.Background(), "living")
	require.NoError(t, err)
	assert.False(t, second.Admitted)

	close(gate)
	assert.True(t, (<-first).Admitted)

	reads, _ := h.canonical.counts()
	assert.Equal(t, 1, reads)
}

func TestReconcile_Cooldown(t *testing.T) {
	h := newHarness(home()...)
	r, clock := newReconciler(h, application.ReconcileConfig{Cooldown: 5 * time.Second})
	ctx := context.Background()

	res, err := r.Reconcile(ctx, "living")
	require.NoError(t, err)
	assert.True(t, res.Admitted)

	clock.advance(4 * time.Second)
	res, err = r.Reconcile(ctx, "living")
	require.NoError(t, err)
	assert.False(t, res.Admitted)

	// Other rooms have their own gate.
	res, err = r.Reconcile(ctx, "kitchen")
	require.NoError(t, err)
	assert.True(t, res.Admitted)

	clock.advance(time.Second)
	res, err = r.Reconcile(ctx, "living")
	require.NoError(t, err)
	assert.True(t, res.Admitted)
}

func TestReconcile_WindowLimit(t *testing.T) {
	h := newHarness(home()...)
	r, clock := newReconciler(h, application.ReconcileConfig{MaxRuns: 2, Window: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := r.Reconcile(ctx, "living")
		require.NoError(t, err)
		assert.True(t, res.Admitted)
		clock.advance(time.Second)
	}

	res, err := r.Reconcile(ctx, "living")
	require.NoError(t, err)
	assert.False(t, res.Admitted)
}

func TestReconcile_WindowResets(t *testing.T) {
	h := newHarness(home()...)
	r, _ := newReconciler(h, application.ReconcileConfig{MaxRuns: 1, Window: 20 * time.Millisecond})
	ctx := context.Background()

	res, err := r.Reconcile(ctx, "living")
	require.NoError(t, err)
	require.True(t, res.Admitted)

	res, err = r.Reconcile(ctx, "living")
	require.NoError(t, err)
	require.False(t, res.Admitted)

	require.Eventually(t, func() bool {
		res, err := r.Reconcile(ctx, "living")
		return err == nil && res.Admitted
	}, time.Second, 5*time.Millisecond)
}

func TestReconcile_UnreachableCanonicalIsSkipped(t *testing.T) {
	h := newHarness(home()...)
	h.canonical.failGets = true
	r, _ := newReconciler(h, application.ReconcileConfig{})

	res, err := r.Reconcile(context.Background(), "living")

	require.NoError(t, err)
	assert.Equal(t, 1, res.Unreachable)
	assert.Equal(t, 0, res.Updated)
	assert.False(t, h.rooms.appliance("living", "l1").Status)
}

func TestReconcile_MissingRoom(t *testing.T) {
	h := newHarness(home()...)
	r, _ := newReconciler(h, application.ReconcileConfig{})

	res, err := r.Reconcile(context.Background(), "garage")

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, res.Admitted)
}

// A canonical write fails during an update, the gateway later catches up,
// and reconcile then finds nothing to change.
func TestReconcile_AfterTransientCanonicalFailureIsNoOp(t *testing.T) {
	h := newHarness(home()...)
	h.canonical.failUpdates = 1
	r, _ := newReconciler(h, application.ReconcileConfig{})
	ctx := context.Background()

	res, err := h.devices.UpdateState(ctx, "living", "l1", domain.StatusFields(true))
	require.NoError(t, err)
	assert.Equal(t, application.SyncAggregateOnly, res.Sync)
	assert.True(t, h.rooms.appliance("living", "l1").Status)
	savesAfterUpdate := h.rooms.saveCount()

	h.canonical.put("dev-l1", map[string]any{"status": true})

	rr, err := r.Reconcile(ctx, "living")
	require.NoError(t, err)
	assert.True(t, rr.Admitted)
	assert.Equal(t, 0, rr.Updated)
	assert.True(t, h.rooms.appliance("living", "l1").Status)
	assert.Equal(t, savesAfterUpdate, h.rooms.saveCount())
}

func TestReconcileAll(t *testing.T) {
	h := newHarness(home()...)
	h.canonical.put("dev-l1", map[string]any{"status": true})
	r, _ := newReconciler(h, application.ReconcileConfig{})

	results, err := r.ReconcileAll(context.Background())

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "living", results[0].RoomID)
	assert.Equal(t, 1, results[0].Updated)
	assert.Equal(t, 0, results[1].Checked)
}

func TestReconciler_WatchReconcilesLinkingRooms(t *testing.T) {
	h := newHarness(home()...)
	r, _ := newReconciler(h, application.ReconcileConfig{})
	unsubscribe := r.Watch(context.Background())
	defer unsubscribe()

	h.canonical.put("dev-l1", map[string]any{"status": true})
	events.Publish(h.bus, events.TopicCanonicalChanged, events.CanonicalChanged{DeviceID: "dev-l1"})

	assert.True(t, h.rooms.appliance("living", "l1").Status)
}

func TestReconciler_StartPeriodic(t *testing.T) {
	h := newHarness(home()...)
	h.canonical.put("dev-l1", map[string]any{"status": true})
	r := application.NewReconciler(h.rooms, h.canonical, h.locks, h.bus, application.ReconcileConfig{
		Interval: 10 * time.Millisecond,
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartPeriodic(ctx)

	require.Eventually(t, func() bool {
		return h.rooms.appliance("living", "l1").Status
	}, time.Second, 5*time.Millisecond)
}
