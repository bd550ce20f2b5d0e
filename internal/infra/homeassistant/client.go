// Package homeassistant exposes Home Assistant entities as canonical device
// records, for homes whose gateway is a Home Assistant instance.
package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"solarcore/internal/domain"
	"solarcore/internal/infra"
)

// GatewayID is the parent id reported for every entity.
const GatewayID = "homeassistant"

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      infra.RetryConfig
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      infra.DefaultRetryConfig(),
	}
}

func (c *Client) SetRetry(cfg infra.RetryConfig) {
	c.retry = cfg
}

type Entity struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
}

func (c *Client) Get(ctx context.Context, id string) (*domain.CanonicalDevice, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/states/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching entity %s: %w", id, err)
	}

	var e Entity
	if err := json.Unmarshal(resp, &e); err != nil {
		return nil, fmt.Errorf("parsing entity: %w", err)
	}

	d := toCanonical(e)
	return &d, nil
}

// ListByParent returns every device entity. Home Assistant has a single
// parent, so any other gateway id yields nothing.
func (c *Client) ListByParent(ctx context.Context, gatewayID string) ([]domain.CanonicalDevice, error) {
	if gatewayID != GatewayID {
		return nil, nil
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/api/states", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching states: %w", err)
	}

	var entities []Entity
	if err := json.Unmarshal(resp, &entities); err != nil {
		return nil, fmt.Errorf("parsing states: %w", err)
	}

	devices := make([]domain.CanonicalDevice, 0, len(entities))
	for _, e := range entities {
		if entityType(e.EntityID) == "" {
			continue
		}
		devices = append(devices, toCanonical(e))
	}
	return devices, nil
}

type serviceCall struct {
	service string
	data    map[string]any
}

// UpdateState translates state into service calls and runs them in order.
func (c *Client) UpdateState(ctx context.Context, id string, state map[string]any) error {
	for _, call := range serviceCalls(id, domain.FieldsFromCanonical(state)) {
		call.data["entity_id"] = id

		body, err := json.Marshal(call.data)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}

		if _, err := c.doRequest(ctx, http.MethodPost, "/api/services/"+call.service, body); err != nil {
			return fmt.Errorf("calling %s on %s: %w", call.service, id, err)
		}
	}
	return nil
}

// Delete is refused: entities are removed from Home Assistant itself.
func (c *Client) Delete(_ context.Context, id string) error {
	return fmt.Errorf("entity %s is managed by home assistant: %w", id, domain.ErrPrecondition)
}

func serviceCalls(id string, f domain.Fields) []serviceCall {
	entityDomain, _, _ := strings.Cut(id, ".")

	var calls []serviceCall
	if f.Status != nil {
		svc := "turn_off"
		if *f.Status {
			svc = "turn_on"
		}
		calls = append(calls, serviceCall{service: entityDomain + "/" + svc, data: map[string]any{}})
	}

	light := map[string]any{}
	if f.Intensity != nil {
		light["brightness_pct"] = *f.Intensity
	}
	if f.ColorTint != nil {
		light["color_temp_kelvin"] = tintToKelvin(*f.ColorTint)
	}
	if len(light) > 0 {
		svc := entityDomain + "/turn_on"
		if entityDomain == "fan" {
			svc = "fan/set_percentage"
			light = map[string]any{"percentage": light["brightness_pct"]}
		}
		if entityDomain == "cover" {
			svc = "cover/set_cover_position"
			light = map[string]any{"position": light["brightness_pct"]}
		}
		calls = append(calls, serviceCall{service: svc, data: light})
	}

	if f.AutoMode != nil && entityDomain == "climate" {
		mode := "heat_cool"
		if *f.AutoMode {
			mode = "auto"
		}
		calls = append(calls, serviceCall{service: "climate/set_hvac_mode", data: map[string]any{"hvac_mode": mode}})
	}
	return calls
}

func toCanonical(e Entity) domain.CanonicalDevice {
	state := make(map[string]any, len(e.Attributes)+4)
	for k, v := range e.Attributes {
		state[k] = v
	}

	switch e.State {
	case "on", "open", "heat", "cool", "heat_cool", "auto", "unlocked":
		state[string(domain.FieldStatus)] = true
	case "off", "closed", "locked":
		state[string(domain.FieldStatus)] = false
	}
	if e.State == "auto" {
		state[string(domain.FieldAutoMode)] = true
	}

	if v, ok := e.Attributes["brightness"].(float64); ok {
		state[string(domain.FieldIntensity)] = int(v*100/255 + 0.5)
	}
	if v, ok := e.Attributes["percentage"].(float64); ok {
		state[string(domain.FieldIntensity)] = int(v)
	}
	if v, ok := e.Attributes["current_position"].(float64); ok {
		state[string(domain.FieldIntensity)] = int(v)
	}
	if v, ok := e.Attributes["color_temp_kelvin"].(float64); ok {
		state[string(domain.FieldColorTint)] = string(kelvinToTint(int(v)))
	}
	state[string(domain.FieldLastUpdated)] = e.LastChanged.UTC().Format(time.RFC3339Nano)

	return domain.CanonicalDevice{
		ID:           e.EntityID,
		GatewayID:    GatewayID,
		DeviceTypeID: string(entityType(e.EntityID)),
		State:        state,
		LastUpdated:  e.LastChanged.UTC(),
	}
}

func tintToKelvin(t domain.ColorTint) int {
	switch t {
	case domain.TintWarm:
		return 2700
	case domain.TintCool:
		return 6500
	default:
		return 4000
	}
}

func kelvinToTint(k int) domain.ColorTint {
	switch {
	case k < 3500:
		return domain.TintWarm
	case k > 5000:
		return domain.TintCool
	default:
		return domain.TintWhite
	}
}

func entityType(entityID string) domain.ApplianceType {
	entityDomain, _, ok := strings.Cut(entityID, ".")
	if !ok {
		return ""
	}

	switch entityDomain {
	case "light":
		return domain.ApplianceLighting
	case "switch":
		return domain.ApplianceSocket
	case "climate":
		return domain.ApplianceHVAC
	case "cover":
		return domain.ApplianceShading
	case "fan":
		return domain.ApplianceFan
	case "camera":
		return domain.ApplianceCamera
	case "lock":
		return domain.ApplianceLock
	case "binary_sensor":
		return domain.ApplianceMotion
	case "sensor":
		return domain.ApplianceAirQuality
	default:
		return ""
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var respBody []byte

	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = strings.NewReader(string(body))
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return infra.Permanent(fmt.Errorf("unauthorized: check your Home Assistant token"))
		}
		if resp.StatusCode >= 400 {
			return infra.StatusError("home assistant", resp.StatusCode, respBody)
		}
		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}
	return respBody, nil
}
