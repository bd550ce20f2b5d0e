package domain

import (
	"encoding/json"
	"fmt"
)

// Fields is a partial appliance update. Nil members are left untouched when
// merged, so an update never replaces the whole appliance.
type Fields struct {
	Status    *bool      `json:"status,omitempty"`
	Intensity *int       `json:"intensity,omitempty"`
	ColorTint *ColorTint `json:"color_tint,omitempty"`
	AutoMode  *bool      `json:"auto_mode,omitempty"`
}

// StatusFields is an update that only switches the appliance on or off.
func StatusFields(on bool) Fields {
	return Fields{Status: &on}
}

func (f Fields) Empty() bool {
	return f.Status == nil && f.Intensity == nil && f.ColorTint == nil && f.AutoMode == nil
}

// Validate checks the update against the capability table of t.
func (f Fields) Validate(t ApplianceType) error {
	if !t.Valid() {
		return fmt.Errorf("unknown appliance type %q: %w", t, ErrPrecondition)
	}
	if f.Intensity != nil {
		if !t.Supports(FieldIntensity) {
			return fmt.Errorf("%s does not support %s: %w", t, FieldIntensity, ErrPrecondition)
		}
		if *f.Intensity < 0 || *f.Intensity > 100 {
			return fmt.Errorf("intensity %d out of range 0-100: %w", *f.Intensity, ErrPrecondition)
		}
	}
	if f.ColorTint != nil {
		if !t.Supports(FieldColorTint) {
			return fmt.Errorf("%s does not support %s: %w", t, FieldColorTint, ErrPrecondition)
		}
		if !f.ColorTint.Valid() {
			return fmt.Errorf("invalid color tint %q: %w", *f.ColorTint, ErrPrecondition)
		}
	}
	if f.AutoMode != nil && !t.Supports(FieldAutoMode) {
		return fmt.Errorf("%s does not support %s: %w", t, FieldAutoMode, ErrPrecondition)
	}
	return nil
}

// Only drops the fields t does not carry.
func (f Fields) Only(t ApplianceType) Fields {
	out := Fields{Status: f.Status}
	if t.Supports(FieldIntensity) {
		out.Intensity = f.Intensity
	}
	if t.Supports(FieldColorTint) {
		out.ColorTint = f.ColorTint
	}
	if t.Supports(FieldAutoMode) {
		out.AutoMode = f.AutoMode
	}
	return out
}

// Sanitize keeps the fields t carries and drops values outside their allowed
// range. The dropped fields are returned so callers can report them.
func (f Fields) Sanitize(t ApplianceType) (Fields, []Field) {
	out := f.Only(t)
	var dropped []Field
	if out.Intensity != nil && (*out.Intensity < 0 || *out.Intensity > 100) {
		out.Intensity = nil
		dropped = append(dropped, FieldIntensity)
	}
	if out.ColorTint != nil && !out.ColorTint.Valid() {
		out.ColorTint = nil
		dropped = append(dropped, FieldColorTint)
	}
	return out, dropped
}

// ApplyTo merges f into a and reports whether any value changed.
func (f Fields) ApplyTo(a *Appliance) bool {
	changed := false
	if f.Status != nil && a.Status != *f.Status {
		a.Status = *f.Status
		changed = true
	}
	if f.Intensity != nil && (a.Intensity == nil || *a.Intensity != *f.Intensity) {
		v := *f.Intensity
		a.Intensity = &v
		changed = true
	}
	if f.ColorTint != nil && (a.ColorTint == nil || *a.ColorTint != *f.ColorTint) {
		v := *f.ColorTint
		a.ColorTint = &v
		changed = true
	}
	if f.AutoMode != nil && (a.AutoMode == nil || *a.AutoMode != *f.AutoMode) {
		v := *f.AutoMode
		a.AutoMode = &v
		changed = true
	}
	return changed
}

// Canonical projects the update onto the canonical state schema.
func (f Fields) Canonical() map[string]any {
	out := make(map[string]any, 4)
	if f.Status != nil {
		out[string(FieldStatus)] = *f.Status
	}
	if f.Intensity != nil {
		out[string(FieldIntensity)] = *f.Intensity
	}
	if f.ColorTint != nil {
		out[string(FieldColorTint)] = string(*f.ColorTint)
	}
	if f.AutoMode != nil {
		out[string(FieldAutoMode)] = *f.AutoMode
	}
	return out
}

// FieldsFromCanonical reads the appliance-relevant values out of a canonical
// state payload. Keys with unexpected value types are ignored.
func FieldsFromCanonical(state map[string]any) Fields {
	var f Fields
	if v, ok := state[string(FieldStatus)].(bool); ok {
		f.Status = &v
	}
	if v, ok := asInt(state[string(FieldIntensity)]); ok {
		f.Intensity = &v
	}
	if v, ok := state[string(FieldColorTint)].(string); ok {
		tint := ColorTint(v)
		if tint.Valid() {
			f.ColorTint = &tint
		}
	}
	if v, ok := state[string(FieldAutoMode)].(bool); ok {
		f.AutoMode = &v
	}
	return f
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}
