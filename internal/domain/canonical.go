package domain

import "time"

// CanonicalDevice is the gateway-owned record of a physical device. State is a
// free-form payload holding at least the appliance fields.
type CanonicalDevice struct {
	ID           string         `json:"id"`
	GatewayID    string         `json:"gateway_id"`
	DeviceTypeID string         `json:"device_type_id"`
	State        map[string]any `json:"state"`
	LastUpdated  time.Time      `json:"last_updated"`
}

func (d CanonicalDevice) Fields() Fields {
	return FieldsFromCanonical(d.State)
}
