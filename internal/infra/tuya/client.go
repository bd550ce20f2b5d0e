// Package tuya is the canonical device backend for homes whose devices are
// managed by the Tuya cloud. Canonical state keys are translated to and from
// Tuya data point codes.
package tuya

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"solarcore/internal/domain"
	"solarcore/internal/infra"
)

type Client struct {
	clientID   string
	secret     string
	baseURL    string
	httpClient *http.Client
	retry      infra.RetryConfig

	mu         sync.RWMutex
	token      string
	expireAt   time.Time
	categories map[string]string
}

func NewClient(clientID, secret, region string) *Client {
	baseURL := "https://openapi.tuyaus.com"
	switch strings.ToLower(region) {
	case "eu":
		baseURL = "https://openapi.tuyaeu.com"
	case "cn":
		baseURL = "https://openapi.tuyacn.com"
	case "in":
		baseURL = "https://openapi.tuyain.com"
	}

	return NewClientWithURL(clientID, secret, baseURL)
}

func NewClientWithURL(clientID, secret, baseURL string) *Client {
	return &Client{
		clientID:   clientID,
		secret:     secret,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      infra.DefaultRetryConfig(),
		categories: make(map[string]string),
	}
}

// SetRetry replaces the backoff used for every request.
func (c *Client) SetRetry(cfg infra.RetryConfig) {
	c.retry = cfg
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Result  json.RawMessage `json:"result"`
}

type dataPoint struct {
	Code  string `json:"code"`
	Value any    `json:"value"`
}

type deviceInfo struct {
	ID         string      `json:"id"`
	Category   string      `json:"category"`
	GatewayID  string      `json:"gateway_id"`
	UpdateTime int64       `json:"update_time"`
	Status     []dataPoint `json:"status"`
}

func (c *Client) Get(ctx context.Context, id string) (*domain.CanonicalDevice, error) {
	var info deviceInfo
	if err := c.call(ctx, http.MethodGet, "/v1.0/devices/"+id, nil, &info); err != nil {
		return nil, fmt.Errorf("fetching device %s: %w", id, err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("device %s: %w", id, domain.ErrNotFound)
	}

	c.mu.Lock()
	c.categories[id] = info.Category
	c.mu.Unlock()

	d := toCanonical(info)
	return &d, nil
}

// ListByParent returns the sub-devices of a gateway with their current state.
func (c *Client) ListByParent(ctx context.Context, gatewayID string) ([]domain.CanonicalDevice, error) {
	var subs []struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1.0/devices/"+gatewayID+"/sub-devices", nil, &subs); err != nil {
		return nil, fmt.Errorf("listing sub-devices of %s: %w", gatewayID, err)
	}

	out := make([]domain.CanonicalDevice, 0, len(subs))
	for _, s := range subs {
		d, err := c.Get(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		if d.GatewayID == "" {
			d.GatewayID = gatewayID
		}
		out = append(out, *d)
	}
	return out, nil
}

// UpdateState sends the known keys of state as device commands. The cloud
// stamps its own update time, so last_updated is not sent.
func (c *Client) UpdateState(ctx context.Context, id string, state map[string]any) error {
	category, err := c.category(ctx, id)
	if err != nil {
		return err
	}

	commands := toCommands(category, state)
	if len(commands) == 0 {
		return nil
	}

	body, err := json.Marshal(map[string]any{"commands": commands})
	if err != nil {
		return fmt.Errorf("encoding commands: %w", err)
	}

	path := fmt.Sprintf("/v1.0/iot-03/devices/%s/commands", id)
	if err := c.call(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("updating device %s: %w", id, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.call(ctx, http.MethodDelete, "/v1.0/devices/"+id, nil, nil); err != nil {
		return fmt.Errorf("removing device %s: %w", id, err)
	}
	c.mu.Lock()
	delete(c.categories, id)
	c.mu.Unlock()
	return nil
}

func (c *Client) category(ctx context.Context, id string) (string, error) {
	c.mu.RLock()
	category, ok := c.categories[id]
	c.mu.RUnlock()
	if ok {
		return category, nil
	}

	d, err := c.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return d.DeviceTypeID, nil
}

// call performs a signed request and decodes the result member of the
// response envelope into out.
func (c *Client) call(ctx context.Context, method, path string, body []byte, out any) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(resp, &env); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if !env.Success {
		return fmt.Errorf("tuya error %d: %s", env.Code, env.Msg)
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("parsing result: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	var respBody []byte
	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())

		var bodyReader io.Reader
		if body != nil {
			bodyReader = strings.NewReader(string(body))
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}

		req.Header.Set("client_id", c.clientID)
		req.Header.Set("access_token", token)
		req.Header.Set("sign", c.calcSign(timestamp, token, method, path, body))
		req.Header.Set("t", timestamp)
		req.Header.Set("sign_method", "HMAC-SHA256")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode/100 != 2 {
			return infra.StatusError("tuya", resp.StatusCode, respBody)
		}
		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}
	return respBody, nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.RLock()
	if c.token != "" && time.Now().Add(5*time.Minute).Before(c.expireAt) {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Add(5*time.Minute).Before(c.expireAt) {
		return nil
	}

	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())
	path := "/v1.0/token?grant_type=1"
	sign := c.calcSign(timestamp, "", http.MethodGet, path, nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating token request: %w", err)
	}

	req.Header.Set("client_id", c.clientID)
	req.Header.Set("sign", sign)
	req.Header.Set("t", timestamp)
	req.Header.Set("sign_method", "HMAC-SHA256")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending token request: %w: %w", domain.ErrTransientIO, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading token response: %w: %w", domain.ErrTransientIO, err)
	}

	var tokenResp struct {
		Success bool   `json:"success"`
		Msg     string `json:"msg"`
		Result  struct {
			AccessToken string `json:"access_token"`
			ExpireTime  int64  `json:"expire_time"`
		} `json:"result"`
	}

	if err = json.Unmarshal(body, &tokenResp); err != nil {
		return fmt.Errorf("parsing token response: %w", err)
	}

	if !tokenResp.Success {
		return fmt.Errorf("token error: %s", tokenResp.Msg)
	}

	c.token = tokenResp.Result.AccessToken
	c.expireAt = time.Now().Add(time.Duration(tokenResp.Result.ExpireTime) * time.Second)

	return nil
}

func (c *Client) calcSign(timestamp, token, method, path string, body []byte) string {
	str := c.clientID + token + timestamp + c.stringToSign(method, path, body)
	h := hmac.New(sha256.New, []byte(c.secret))
	h.Write([]byte(str))
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

func (c *Client) stringToSign(method, path string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	return method + "\n" + hex.EncodeToString(bodyHash[:]) + "\n\n" + path
}
