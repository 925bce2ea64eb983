package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
	"github.com/tw20th/kangaroo-post-sub000/internal/ports"
)

// Client talks to the search analytics service that aggregates impressions,
// clicks and CTR per topic.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.TelemetryFeed = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Fetch returns telemetry keyed by topic id. Topics unknown to the service are absent.
func (c *Client) Fetch(ctx context.Context, siteID string, intent domain.Intent, ids []string) (map[string]domain.Telemetry, error) {
	if c.http == nil || len(ids) == 0 {
		return map[string]domain.Telemetry{}, nil
	}

	payload := map[string]any{
		"siteId": siteID,
		"intent": string(intent),
		"ids":    ids,
	}

	var resp struct {
		Topics map[string]domain.Telemetry `json:"topics"`
	}
	if err := c.post(ctx, "/telemetry", payload, &resp); err != nil {
		return nil, err
	}

	if resp.Topics == nil {
		return map[string]domain.Telemetry{}, nil
	}
	return resp.Topics, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if v == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
