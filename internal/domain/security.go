package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SecurityPhase names the three states of the security machine.
type SecurityPhase string

const (
	PhaseHomeUnlocked SecurityPhase = "home_unlocked"
	PhaseHomeLocked   SecurityPhase = "home_locked"
	PhaseAwayLocked   SecurityPhase = "away_locked"
)

// SecurityState is the persisted security record.
type SecurityState struct {
	DoorLocked   bool      `json:"is_door_locked"`
	SecurityMode bool      `json:"is_security_mode"`
	SessionID    string    `json:"session_id"`
	ChangedAt    time.Time `json:"changed_at"`
}

func (s SecurityState) Phase() SecurityPhase {
	switch {
	case s.DoorLocked && s.SecurityMode:
		return PhaseAwayLocked
	case s.DoorLocked:
		return PhaseHomeLocked
	default:
		return PhaseHomeUnlocked
	}
}

var sessionNamespace = uuid.MustParse("6f1c2a4e-93b7-4d0a-8b57-2f0f4b1e9c3d")

// SessionID derives the countdown dedup key of a transition. Equal inputs give
// equal ids; it carries no meaning beyond that.
func SessionID(locked, away bool, at time.Time) string {
	key := fmt.Sprintf("%t:%t:%d", locked, away, at.UnixNano())
	return uuid.NewSHA1(sessionNamespace, []byte(key)).String()
}
