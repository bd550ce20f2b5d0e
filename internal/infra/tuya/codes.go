package tuya

import (
	"time"

	"solarcore/internal/domain"
)

// Brightness and colour temperature data points range over 10-1000 and
// 0-1000. Legacy bright_value and temp_value use 25-255 and 0-255.
const (
	brightMin = 10
	brightMax = 1000
	tempMax   = 1000

	legacyBrightMin = 25
	legacyBrightMax = 255
	legacyTempMax   = 255
)

func switchCode(category string) string {
	switch category {
	case "dj", "dd", "fwd", "xdd", "dc", "tgq":
		return "switch_led"
	case "cz", "pc", "kg", "tdq":
		return "switch_1"
	default:
		return "switch"
	}
}

func toCommands(category string, state map[string]any) []dataPoint {
	f := domain.FieldsFromCanonical(state)

	var cmds []dataPoint
	if f.Status != nil {
		cmds = append(cmds, dataPoint{Code: switchCode(category), Value: *f.Status})
	}
	if f.Intensity != nil {
		cmds = append(cmds, dataPoint{Code: "bright_value_v2", Value: brightMin + *f.Intensity*(brightMax-brightMin)/100})
	}
	if f.ColorTint != nil {
		cmds = append(cmds, dataPoint{Code: "temp_value_v2", Value: tintToTemp(*f.ColorTint)})
	}
	if f.AutoMode != nil {
		mode := "manual"
		if *f.AutoMode {
			mode = "auto"
		}
		cmds = append(cmds, dataPoint{Code: "mode", Value: mode})
	}
	return cmds
}

// toCanonical maps data points onto canonical state keys. Codes with no
// appliance meaning are kept under their own name.
func toCanonical(info deviceInfo) domain.CanonicalDevice {
	state := make(map[string]any, len(info.Status)+1)
	for _, dp := range info.Status {
		switch dp.Code {
		case "switch_led", "switch_1", "switch":
			state[string(domain.FieldStatus)] = dp.Value
		case "bright_value_v2":
			if v, ok := dp.Value.(float64); ok {
				state[string(domain.FieldIntensity)] = percent(v, brightMin, brightMax)
			}
		case "bright_value":
			if v, ok := dp.Value.(float64); ok {
				state[string(domain.FieldIntensity)] = percent(v, legacyBrightMin, legacyBrightMax)
			}
		case "temp_value_v2":
			if v, ok := dp.Value.(float64); ok {
				state[string(domain.FieldColorTint)] = string(tempToTint(percent(v, 0, tempMax)))
			}
		case "temp_value":
			if v, ok := dp.Value.(float64); ok {
				state[string(domain.FieldColorTint)] = string(tempToTint(percent(v, 0, legacyTempMax)))
			}
		case "mode":
			state[string(domain.FieldAutoMode)] = dp.Value == "auto"
		default:
			state[dp.Code] = dp.Value
		}
	}

	updated := time.Unix(info.UpdateTime, 0).UTC()
	state[string(domain.FieldLastUpdated)] = updated.Format(time.RFC3339)

	return domain.CanonicalDevice{
		ID:           info.ID,
		GatewayID:    info.GatewayID,
		DeviceTypeID: info.Category,
		State:        state,
		LastUpdated:  updated,
	}
}

func tintToTemp(t domain.ColorTint) int {
	switch t {
	case domain.TintWarm:
		return 0
	case domain.TintCool:
		return tempMax
	default:
		return tempMax / 2
	}
}

// percent scales v from [lo, hi] onto 0-100, clamping values outside the range.
func percent(v float64, lo, hi int) int {
	p := int((v - float64(lo)) * 100 / float64(hi-lo))
	return max(0, min(100, p))
}

// tempToTint buckets a colour temperature given as a percentage.
func tempToTint(pct int) domain.ColorTint {
	switch {
	case pct < 100/3:
		return domain.TintWarm
	case pct > 200/3:
		return domain.TintCool
	default:
		return domain.TintWhite
	}
}
