package application

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"solarcore/internal/domain"
)

const (
	// MatchThreshold is exclusive: a best score of exactly 0.4 is no match.
	MatchThreshold = 0.4

	scoreSubstring   = 0.5
	scoreRoomBonus   = 0.3
	scoreDeviceBonus = 0.4
	scoreExact       = 1.0
)

// Interpreter maps an utterance onto the command catalog by literal substring
// matching. It holds no state and is safe for concurrent use.
type Interpreter struct{}

// NewInterpreter returns an interpreter. It holds no state and is safe for
// concurrent use.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// Normalize lowercases, trims and collapses whitespace.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = cases.Lower(language.Und).String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Interpret returns the best scoring (command, phrase) pair for utterance.
// Ties keep the first pair seen in catalog order. The second result is false
// when nothing scores above MatchThreshold.
func (i *Interpreter) Interpret(utterance string, rooms []domain.Room, commands []domain.CatalogCommand) (domain.Match, bool) {
	text := Normalize(utterance)
	if text == "" {
		return domain.Match{}, false
	}

	room, device := ExtractQualifiers(text, rooms)

	var best domain.Match
	for _, cmd := range commands {
		for _, phrase := range cmd.Phrases {
			score := ScorePhrase(text, phrase, room, device)
			if score > best.Score {
				best = domain.Match{
					Command:         cmd,
					Phrase:          phrase,
					RoomQualifier:   room,
					DeviceQualifier: device,
					Score:           score,
				}
			}
		}
	}

	if best.Score <= MatchThreshold {
		return domain.Match{}, false
	}
	return best, true
}

// ExtractQualifiers finds at most one qualifier in a normalized utterance.
// Socket names are checked first, in room then appliance order; only when none
// matches is a room name looked for. An utterance naming both a room and a
// socket therefore only yields the socket.
func ExtractQualifiers(text string, rooms []domain.Room) (room, device string) {
	for _, r := range rooms {
		for _, a := range r.Appliances {
			if a.Type != domain.ApplianceSocket {
				continue
			}
			name := Normalize(a.Name)
			if name != "" && strings.Contains(text, name) {
				return "", name
			}
		}
	}

	for _, r := range rooms {
		name := Normalize(r.Name)
		if name != "" && strings.Contains(text, name) {
			return name, ""
		}
	}

	return "", ""
}

// ScorePhrase scores one catalog phrase against a normalized utterance and its
// extracted qualifiers.
func ScorePhrase(text, phrase, room, device string) float64 {
	p := Normalize(phrase)
	hasRoom := strings.Contains(p, domain.PlaceholderRoom)
	hasDevice := strings.Contains(p, domain.PlaceholderDevice)

	if substituted, ok := substitute(p, hasRoom, hasDevice, room, device); ok && substituted == text {
		return scoreExact
	}

	qualifier := device
	if qualifier == "" {
		qualifier = room
	}
	u := text
	if qualifier != "" {
		u = collapse(strings.ReplaceAll(u, qualifier, " "))
	}
	stripped := collapse(strings.NewReplacer(domain.PlaceholderRoom, " ", domain.PlaceholderDevice, " ").Replace(p))

	if stripped == "" || !strings.Contains(u, stripped) {
		return 0
	}

	score := scoreSubstring
	if hasRoom && room != "" {
		score += scoreRoomBonus
	}
	if hasDevice && device != "" {
		score += scoreDeviceBonus
	}
	if score > scoreExact {
		score = scoreExact
	}
	return score
}

func substitute(p string, hasRoom, hasDevice bool, room, device string) (string, bool) {
	if hasRoom {
		if room == "" {
			return "", false
		}
		p = strings.ReplaceAll(p, domain.PlaceholderRoom, room)
	}
	if hasDevice {
		if device == "" {
			return "", false
		}
		p = strings.ReplaceAll(p, domain.PlaceholderDevice, device)
	}
	return p, true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
