package domain

import "strings"

const (
	PlaceholderRoom   = "{room}"
	PlaceholderDevice = "{device}"
)

// TextCommandPrefix marks an utterance that arrived as text instead of audio.
const TextCommandPrefix = "__TEXT__:"

// Action types the dispatcher treats specially. Appliance actions are derived
// from their prefix and suffix instead (lights_on, window_close, ...).
const (
	ActionLockDoor   = "lock_door"
	ActionUnlockDoor = "unlock_door"
	ActionHomeMode   = "home_mode"
	ActionAwayMode   = "away_mode"
	ActionSocketOn   = "socket_specific_on"
	ActionSocketOff  = "socket_specific_off"
	ActionCancelLock = "cancel_auto_lock"
)

// CatalogCommand is one entry of the command catalog.
type CatalogCommand struct {
	Category string   `json:"category" yaml:"category"`
	Name     string   `json:"name" yaml:"name"`
	Phrases  []string `json:"phrases" yaml:"phrases"`
	Response string   `json:"response" yaml:"response"`
	Action   string   `json:"action" yaml:"action"`
}

// Match is the interpreter's verdict for one utterance.
type Match struct {
	Command         CatalogCommand `json:"command"`
	Phrase          string         `json:"phrase"`
	RoomQualifier   string         `json:"room_qualifier,omitempty"`
	DeviceQualifier string         `json:"device_qualifier,omitempty"`
	Score           float64        `json:"score"`
}

func (m Match) PhraseHasRoom() bool {
	return strings.Contains(strings.ToLower(m.Phrase), PlaceholderRoom)
}

func (m Match) PhraseHasDevice() bool {
	return strings.Contains(strings.ToLower(m.Phrase), PlaceholderDevice)
}

// Fill substitutes the placeholders in template.
func Fill(template, room, device string) string {
	out := strings.ReplaceAll(template, PlaceholderRoom, room)
	return strings.ReplaceAll(out, PlaceholderDevice, device)
}
