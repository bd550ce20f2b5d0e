package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarcore/internal/application"
	"solarcore/internal/domain"
	"solarcore/internal/events"
)

// steppingClock hands out strictly increasing timestamps so every transition
// gets its own session id.
type steppingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *steppingClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type shutdownLog struct {
	mu       sync.Mutex
	sessions []string
	fired    chan string
}

func watchShutdown(bus *events.Bus) *shutdownLog {
	l := &shutdownLog{fired: make(chan string, 8)}
	events.Subscribe(bus, events.TopicAutoShutdown, func(e events.AutoShutdown) {
		l.mu.Lock()
		l.sessions = append(l.sessions, e.SessionID)
		l.mu.Unlock()
		l.fired <- e.SessionID
	})
	return l
}

func (l *shutdownLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func newSecurity(t *testing.T, repo *fakeSecurityRepo, bus *events.Bus, cfg application.SecurityConfig) *application.Security {
	t.Helper()
	sec, err := application.NewSecurity(context.Background(), repo, bus, cfg, testLogger())
	require.NoError(t, err)
	clock := &steppingClock{t: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	sec.SetClock(clock.now)
	return sec
}

func waitFired(t *testing.T, l *shutdownLog) string {
	t.Helper()
	select {
	case id := <-l.fired:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("auto-shutdown did not fire")
		return ""
	}
}

func TestSecurity_Transitions(t *testing.T) {
	repo := &fakeSecurityRepo{}
	bus := events.NewBus(testLogger())
	sec := newSecurity(t, repo, bus, application.SecurityConfig{Countdown: time.Hour})
	ctx := context.Background()

	var topics []string
	bus.SubscribeAll(func(e events.Envelope) { topics = append(topics, e.Topic) })

	s, err := sec.LockDoor(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseHomeLocked, s.Phase())
	locked := s.SessionID

	s, err = sec.SetAway(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAwayLocked, s.Phase())
	assert.NotEqual(t, locked, s.SessionID)

	s, err = sec.SetHome(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseHomeLocked, s.Phase())

	s, err = sec.UnlockDoor(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseHomeUnlocked, s.Phase())

	assert.Equal(t, []string{"door-locked", "security-mode-changed", "security-mode-changed", "door-unlocked"}, topics)
	assert.Equal(t, 4, repo.saves)
	assert.Equal(t, sec.State(), repo.state)
}

func TestSecurity_SetAwayWhileUnlockedIsRejected(t *testing.T) {
	repo := &fakeSecurityRepo{}
	sec := newSecurity(t, repo, events.NewBus(testLogger()), application.SecurityConfig{})

	before := sec.State()
	_, err := sec.SetAway(context.Background())

	assert.ErrorIs(t, err, domain.ErrPrecondition)
	assert.Equal(t, before, sec.State())
	assert.Equal(t, 0, repo.saves)
}

func TestSecurity_SetHomeWhileUnlockedIsRejected(t *testing.T) {
	sec := newSecurity(t, &fakeSecurityRepo{}, events.NewBus(testLogger()), application.SecurityConfig{})

	_, err := sec.SetHome(context.Background())

	assert.ErrorIs(t, err, domain.ErrPrecondition)
}

func TestSecurity_UnlockFromAwayPublishesModeChange(t *testing.T) {
	bus := events.NewBus(testLogger())
	sec := newSecurity(t, &fakeSecurityRepo{}, bus, application.SecurityConfig{Countdown: time.Hour, AutoShutdown: true})
	ctx := context.Background()

	_, err := sec.LockDoor(ctx)
	require.NoError(t, err)
	_, err = sec.SetAway(ctx)
	require.NoError(t, err)
	_, running := sec.Countdown()
	require.True(t, running)

	var topics []string
	bus.SubscribeAll(func(e events.Envelope) { topics = append(topics, e.Topic) })

	_, err = sec.UnlockDoor(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"door-unlocked", "security-mode-changed"}, topics)
	_, running = sec.Countdown()
	assert.False(t, running)
}

func TestSecurity_SaveFailureLeavesStateUnchanged(t *testing.T) {
	repo := &fakeSecurityRepo{saveErr: errors.New("db down")}
	sec := newSecurity(t, repo, events.NewBus(testLogger()), application.SecurityConfig{})

	_, err := sec.LockDoor(context.Background())

	require.Error(t, err)
	assert.False(t, sec.State().DoorLocked)
}

func TestSecurity_FailedUnlockKeepsCompletedSession(t *testing.T) {
	bus := events.NewBus(testLogger())
	fired := watchShutdown(bus)
	repo := &fakeSecurityRepo{}
	sec := newSecurity(t, repo, bus, application.SecurityConfig{AutoShutdown: true, Countdown: 10 * time.Millisecond})
	ctx := context.Background()

	_, err := sec.LockDoor(ctx)
	require.NoError(t, err)
	_, err = sec.SetAway(ctx)
	require.NoError(t, err)
	waitFired(t, fired)

	repo.mu.Lock()
	repo.saveErr = errors.New("db down")
	repo.mu.Unlock()

	_, err = sec.UnlockDoor(ctx)
	require.Error(t, err)
	assert.Equal(t, domain.PhaseAwayLocked, sec.State().Phase())

	// Still the completed session, so toggling the preference must not re-arm.
	sec.SetAutoShutdown(false)
	sec.SetAutoShutdown(true)
	_, running := sec.Countdown()
	assert.False(t, running)
	assert.Equal(t, 1, fired.count())
}

func TestSecurity_RestoresPersistedState(t *testing.T) {
	repo := &fakeSecurityRepo{state: domain.SecurityState{DoorLocked: true, SecurityMode: true, SessionID: "s-1"}}
	sec := newSecurity(t, repo, events.NewBus(testLogger()), application.SecurityConfig{AutoShutdown: true, Countdown: time.Millisecond})

	assert.Equal(t, domain.PhaseAwayLocked, sec.State().Phase())
	_, running := sec.Countdown()
	assert.False(t, running)
}

func TestSecurity_CountdownFiresOncePerSession(t *testing.T) {
	bus := events.NewBus(testLogger())
	fired := watchShutdown(bus)
	sec := newSecurity(t, &fakeSecurityRepo{}, bus, application.SecurityConfig{
		AutoShutdown: true,
		Countdown:    10 * time.Millisecond,
		Exceptions:   []string{"fridge"},
	})
	ctx := context.Background()

	_, err := sec.LockDoor(ctx)
	require.NoError(t, err)
	away, err := sec.SetAway(ctx)
	require.NoError(t, err)

	assert.Equal(t, away.SessionID, waitFired(t, fired))

	// Re-triggering away without leaving it keeps the completed session.
	again, err := sec.SetAway(ctx)
	require.NoError(t, err)
	assert.Equal(t, away.SessionID, again.SessionID)
	_, running := sec.Countdown()
	assert.False(t, running)

	// Leaving and re-entering away is a new session and re-arms.
	_, err = sec.SetHome(ctx)
	require.NoError(t, err)
	second, err := sec.SetAway(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, away.SessionID, second.SessionID)

	assert.Equal(t, second.SessionID, waitFired(t, fired))
	assert.Equal(t, 2, fired.count())
}

func TestSecurity_CancelDoesNotMarkComplete(t *testing.T) {
	bus := events.NewBus(testLogger())
	fired := watchShutdown(bus)
	sec := newSecurity(t, &fakeSecurityRepo{}, bus, application.SecurityConfig{
		AutoShutdown: true,
		Countdown:    50 * time.Millisecond,
	})
	ctx := context.Background()

	_, err := sec.LockDoor(ctx)
	require.NoError(t, err)
	away, err := sec.SetAway(ctx)
	require.NoError(t, err)

	assert.True(t, sec.CancelCountdown())
	assert.False(t, sec.CancelCountdown())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, fired.count())

	// The cancelled session was not completed, so enabling the preference
	// again re-arms the same session.
	sec.SetAutoShutdown(true)
	id, running := sec.Countdown()
	require.True(t, running)
	assert.Equal(t, away.SessionID, id)
	assert.Equal(t, away.SessionID, waitFired(t, fired))
}

func TestSecurity_DisabledPreferenceDoesNotArm(t *testing.T) {
	sec := newSecurity(t, &fakeSecurityRepo{}, events.NewBus(testLogger()), application.SecurityConfig{Countdown: time.Millisecond})
	ctx := context.Background()

	_, err := sec.LockDoor(ctx)
	require.NoError(t, err)
	_, err = sec.SetAway(ctx)
	require.NoError(t, err)

	_, running := sec.Countdown()
	assert.False(t, running)
}

func TestSecurity_UnlockThenAwayAgainRearms(t *testing.T) {
	bus := events.NewBus(testLogger())
	fired := watchShutdown(bus)
	sec := newSecurity(t, &fakeSecurityRepo{}, bus, application.SecurityConfig{
		AutoShutdown: true,
		Countdown:    10 * time.Millisecond,
	})
	ctx := context.Background()

	_, err := sec.LockDoor(ctx)
	require.NoError(t, err)
	_, err = sec.SetAway(ctx)
	require.NoError(t, err)
	waitFired(t, fired)

	_, err = sec.UnlockDoor(ctx)
	require.NoError(t, err)
	_, err = sec.LockDoor(ctx)
	require.NoError(t, err)
	_, err = sec.SetAway(ctx)
	require.NoError(t, err)
	waitFired(t, fired)

	assert.Equal(t, 2, fired.count())
}

func TestSessionID_Deterministic(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 42, time.UTC)

	assert.Equal(t, domain.SessionID(true, true, at), domain.SessionID(true, true, at))
	assert.NotEqual(t, domain.SessionID(true, true, at), domain.SessionID(true, false, at))
	assert.NotEqual(t, domain.SessionID(true, true, at), domain.SessionID(true, true, at.Add(time.Nanosecond)))
}
