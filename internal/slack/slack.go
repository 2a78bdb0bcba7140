package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client posts to a Slack incoming webhook. An empty hook disables it.
type Client struct {
	hook string
	http *http.Client
}

func New(hook string) *Client {
	return &Client{hook: hook, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *Client) Enabled() bool { return c != nil && c.hook != "" }

func (c *Client) Post(ctx context.Context, text string) error {
	if !c.Enabled() {
		return nil
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.hook, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %s", resp.Status)
	}
	return nil
}
