package domain

// ApplianceType is the semantic type of an appliance.
type ApplianceType string

const (
	ApplianceLighting   ApplianceType = "lighting"
	ApplianceHVAC       ApplianceType = "hvac"
	ApplianceShading    ApplianceType = "shading"
	ApplianceSocket     ApplianceType = "socket"
	ApplianceCamera     ApplianceType = "camera"
	ApplianceMotion     ApplianceType = "motion_sensor"
	ApplianceAirQuality ApplianceType = "air_quality_sensor"
	ApplianceFan        ApplianceType = "fan"
	ApplianceLock       ApplianceType = "lock"
)

// ColorTint is the colour temperature preset of a light.
type ColorTint string

const (
	TintWhite ColorTint = "white"
	TintWarm  ColorTint = "warm"
	TintCool  ColorTint = "cool"
)

func (t ColorTint) Valid() bool {
	switch t {
	case TintWhite, TintWarm, TintCool:
		return true
	}
	return false
}

// Field names an optional appliance attribute. The same names are used as keys
// in canonical device state payloads.
type Field string

const (
	FieldStatus    Field = "status"
	FieldIntensity Field = "intensity"
	FieldColorTint Field = "color_tint"
	FieldAutoMode  Field = "auto_mode"

	// FieldLastUpdated is only present on canonical records.
	FieldLastUpdated Field = "last_updated"
)

// capabilities lists the optional fields each semantic type carries. Status is
// universal and not listed.
var capabilities = map[ApplianceType][]Field{
	ApplianceLighting:   {FieldIntensity, FieldColorTint},
	ApplianceHVAC:       {FieldIntensity, FieldAutoMode},
	ApplianceShading:    {FieldIntensity},
	ApplianceSocket:     nil,
	ApplianceCamera:     {FieldAutoMode},
	ApplianceMotion:     {FieldAutoMode},
	ApplianceAirQuality: {FieldAutoMode},
	ApplianceFan:        {FieldIntensity, FieldAutoMode},
	ApplianceLock:       nil,
}

func (t ApplianceType) Valid() bool {
	_, ok := capabilities[t]
	return ok
}

func (t ApplianceType) Supports(f Field) bool {
	if f == FieldStatus {
		return t.Valid()
	}
	for _, c := range capabilities[t] {
		if c == f {
			return true
		}
	}
	return false
}

// Switchable reports whether the type is powered on and off by bulk actions.
// Cameras, sensors and locks are left alone by "all" commands.
func (t ApplianceType) Switchable() bool {
	switch t {
	case ApplianceLighting, ApplianceHVAC, ApplianceShading, ApplianceSocket, ApplianceFan:
		return true
	}
	return false
}

// Appliance is a room-scoped device with its local state.
type Appliance struct {
	ID     string        `json:"id" yaml:"id"`
	Name   string        `json:"name" yaml:"name"`
	Type   ApplianceType `json:"type" yaml:"type"`
	Series string        `json:"series,omitempty" yaml:"series"`
	Status bool          `json:"status" yaml:"status"`

	Intensity *int       `json:"intensity,omitempty" yaml:"intensity"`
	ColorTint *ColorTint `json:"color_tint,omitempty" yaml:"color_tint"`
	AutoMode  *bool      `json:"auto_mode,omitempty" yaml:"auto_mode"`

	// CanonicalDeviceID is a lookup-only link to the gateway record. The
	// appliance does not depend on the canonical device existing.
	CanonicalDeviceID string `json:"canonical_device_id,omitempty" yaml:"canonical_device_id"`
}

func (a Appliance) Linked() bool {
	return a.CanonicalDeviceID != ""
}

// Room is the aggregate document: one account's room and its ordered
// appliances.
type Room struct {
	ID         string      `json:"id" yaml:"id"`
	OwnerID    string      `json:"owner_id" yaml:"owner_id"`
	Name       string      `json:"name" yaml:"name"`
	Appliances []Appliance `json:"appliances" yaml:"appliances"`
}

func (r *Room) Appliance(id string) (*Appliance, bool) {
	for i := range r.Appliances {
		if r.Appliances[i].ID == id {
			return &r.Appliances[i], true
		}
	}
	return nil, false
}
