package pushover

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"solarcore/internal/application"
	"solarcore/internal/infra"
)

const DefaultBaseURL = "https://api.pushover.net"

type Client struct {
	token      string
	userKey    string
	baseURL    string
	httpClient *http.Client
}

func NewClient(token, userKey string) *Client {
	return NewClientWithURL(token, userKey, DefaultBaseURL)
}

func NewClientWithURL(token, userKey, baseURL string) *Client {
	return &Client{
		token:      token,
		userKey:    userKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify sends the alert. It is a no-op when credentials are missing.
func (c *Client) Notify(ctx context.Context, alert application.Alert) error {
	if c.token == "" || c.userKey == "" {
		return nil
	}

	title := alert.Title
	if title == "" {
		title = "SolarCore"
	}

	data := url.Values{}
	data.Set("token", c.token)
	data.Set("user", c.userKey)
	data.Set("message", alert.Message)
	data.Set("title", title)
	data.Set("priority", strconv.Itoa(alert.Priority))

	return infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			c.baseURL+"/1/messages.json",
			strings.NewReader(data.Encode()),
		)
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}

		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending notification: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return infra.StatusError("pushover", resp.StatusCode, body)
		}
		return nil
	})
}
