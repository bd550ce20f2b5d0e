package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"solarcore/internal/domain"
	"solarcore/internal/events"
)

// SecurityConfig holds the auto-shutdown settings.
type SecurityConfig struct {
	AutoShutdown bool
	Countdown    time.Duration
	// Exceptions holds appliance ids or appliance types spared by auto-shutdown.
	Exceptions []string
}

// Security is the door-lock / away-mode state machine. One instance is built
// at startup and shared by every caller.
type Security struct {
	repo   SecurityRepository
	bus    *events.Bus
	logger *slog.Logger
	now    func() time.Time

	mu           sync.Mutex
	state        domain.SecurityState
	autoShutdown bool
	countdown    time.Duration
	exceptions   []string
	completed    map[string]bool
	running      string
	timer        *time.Timer
}

// NewSecurity restores the last persisted state. A restored AwayLocked state
// does not arm a countdown; only a fresh transition does.
func NewSecurity(ctx context.Context, repo SecurityRepository, bus *events.Bus, cfg SecurityConfig, logger *slog.Logger) (*Security, error) {
	state, err := repo.LoadSecurity(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading security state: %w", err)
	}

	return &Security{
		repo:         repo,
		bus:          bus,
		logger:       logger,
		now:          time.Now,
		state:        state,
		autoShutdown: cfg.AutoShutdown,
		countdown:    cfg.Countdown,
		exceptions:   slices.Clone(cfg.Exceptions),
		completed:    make(map[string]bool),
	}, nil
}

// SetClock replaces the time source used to stamp transitions.
func (s *Security) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// State returns the current state.
func (s *Security) State() domain.SecurityState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Countdown reports the session whose countdown is currently armed.
func (s *Security) Countdown() (sessionID string, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.running != ""
}

// AutoShutdownEnabled reports the current preference.
func (s *Security) AutoShutdownEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoShutdown
}

// LockDoor moves HomeUnlocked to HomeLocked. Locking a locked door is a
// no-op.
func (s *Security) LockDoor(ctx context.Context) (domain.SecurityState, error) {
	s.mu.Lock()
	if s.state.DoorLocked {
		state := s.state
		s.mu.Unlock()
		return state, nil
	}

	next, err := s.transition(ctx, true, false)
	s.mu.Unlock()
	if err != nil {
		return domain.SecurityState{}, err
	}

	events.Publish(s.bus, events.TopicDoorLocked, events.SecurityChanged{State: next})
	return next, nil
}

// UnlockDoor moves to HomeUnlocked from any state and forgets which sessions
// already completed their countdown.
func (s *Security) UnlockDoor(ctx context.Context) (domain.SecurityState, error) {
	s.mu.Lock()
	if !s.state.DoorLocked {
		clear(s.completed)
		state := s.state
		s.mu.Unlock()
		return state, nil
	}

	wasAway := s.state.SecurityMode
	next, err := s.transition(ctx, false, false)
	if err == nil {
		clear(s.completed)
	}
	s.mu.Unlock()
	if err != nil {
		return domain.SecurityState{}, err
	}

	events.Publish(s.bus, events.TopicDoorUnlocked, events.SecurityChanged{State: next})
	if wasAway {
		events.Publish(s.bus, events.TopicSecurityModeChanged, events.SecurityChanged{State: next})
	}
	return next, nil
}

// SetAway requires a locked door. Calling it again while already away keeps
// the current session, so a completed countdown is not re-armed.
func (s *Security) SetAway(ctx context.Context) (domain.SecurityState, error) {
	s.mu.Lock()
	if !s.state.DoorLocked {
		s.mu.Unlock()
		return domain.SecurityState{}, fmt.Errorf("away mode needs a locked door: %w", domain.ErrPrecondition)
	}
	if s.state.SecurityMode {
		state := s.state
		s.mu.Unlock()
		return state, nil
	}

	next, err := s.transition(ctx, true, true)
	if err == nil && s.autoShutdown {
		s.armLocked(next.SessionID)
	}
	s.mu.Unlock()
	if err != nil {
		return domain.SecurityState{}, err
	}

	events.Publish(s.bus, events.TopicSecurityModeChanged, events.SecurityChanged{State: next})
	return next, nil
}

// SetHome leaves away mode. It requires a locked door.
func (s *Security) SetHome(ctx context.Context) (domain.SecurityState, error) {
	s.mu.Lock()
	if !s.state.DoorLocked {
		s.mu.Unlock()
		return domain.SecurityState{}, fmt.Errorf("home mode needs a locked door: %w", domain.ErrPrecondition)
	}
	if !s.state.SecurityMode {
		state := s.state
		s.mu.Unlock()
		return state, nil
	}

	next, err := s.transition(ctx, true, false)
	s.mu.Unlock()
	if err != nil {
		return domain.SecurityState{}, err
	}

	events.Publish(s.bus, events.TopicSecurityModeChanged, events.SecurityChanged{State: next})
	return next, nil
}

// CancelCountdown stops an armed countdown without marking its session
// complete. It reports whether a countdown was running.
func (s *Security) CancelCountdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running == "" {
		return false
	}
	s.logger.Info("auto-shutdown countdown cancelled", "session_id", s.running)
	s.stopLocked()
	return true
}

// SetAutoShutdown changes the preference. Enabling it while away arms the
// current session unless that session already completed.
func (s *Security) SetAutoShutdown(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.autoShutdown = enabled
	if !enabled {
		s.stopLocked()
		return
	}
	if s.state.Phase() == domain.PhaseAwayLocked {
		s.armLocked(s.state.SessionID)
	}
}

// transition persists the new state before adopting it. Any transition stops
// a running countdown; SetAway re-arms for its own new session. Callers hold
// s.mu.
func (s *Security) transition(ctx context.Context, locked, away bool) (domain.SecurityState, error) {
	at := s.now().UTC()
	next := domain.SecurityState{
		DoorLocked:   locked,
		SecurityMode: away,
		SessionID:    domain.SessionID(locked, away, at),
		ChangedAt:    at,
	}

	if err := s.repo.SaveSecurity(ctx, next); err != nil {
		return domain.SecurityState{}, fmt.Errorf("saving security state: %w", err)
	}

	s.stopLocked()
	prev := s.state.Phase()
	s.state = next
	s.logger.Info("security state changed",
		"from", prev,
		"to", next.Phase(),
		"session_id", next.SessionID,
	)
	return next, nil
}

func (s *Security) armLocked(sessionID string) {
	if s.completed[sessionID] || s.running == sessionID {
		return
	}
	s.stopLocked()

	s.running = sessionID
	s.timer = time.AfterFunc(s.countdown, func() { s.fire(sessionID) })
	s.logger.Info("auto-shutdown countdown armed", "session_id", sessionID, "after", s.countdown)
}

func (s *Security) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.running = ""
}

func (s *Security) fire(sessionID string) {
	s.mu.Lock()
	if s.running != sessionID {
		// Cancelled or superseded after the timer had already fired.
		s.mu.Unlock()
		return
	}
	s.running = ""
	s.timer = nil
	s.completed[sessionID] = true
	except := slices.Clone(s.exceptions)
	s.mu.Unlock()

	s.logger.Info("auto-shutdown countdown expired", "session_id", sessionID)
	events.Publish(s.bus, events.TopicAutoShutdown, events.AutoShutdown{
		SessionID: sessionID,
		Except:    except,
	})
}
