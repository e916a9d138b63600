// Package gateway implements the channel client against the messaging
// gateway HTTP API. Each tenant channel corresponds to a gateway session;
// the dispatcher treats the transport as opaque and only consumes the three
// capabilities below: capability probe, send, connectivity probe.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/httpretry"
)

// Client talks to the messaging gateway REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    httpretry.HTTPDoer
}

// New creates a gateway client. Probe endpoints are retried on transient
// errors; sends are NOT retried at the HTTP layer, because the failure
// classifier must see the provider's first answer and a blind retry could
// double-deliver.
func New(baseURL, apiKey string, timeout time.Duration, maxRetries int) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpretry.New(&http.Client{Timeout: timeout}, maxRetries),
	}
}

type sendRequest struct {
	Address string         `json:"address"`
	Payload domain.Payload `json:"payload"`
}

type sendResponse struct {
	OK        bool   `json:"ok"`
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// Send delivers one payload to an address through the given channel.
// A non-2xx gateway answer is returned as a failed SendResult, not an error:
// the classifier downstream owns the interpretation of provider failures.
// Transport-level errors (timeout, refused connection) are returned as errors.
func (c *Client) Send(ctx context.Context, channelID, address string, payload domain.Payload) (domain.SendResult, error) {
	body, err := json.Marshal(sendRequest{Address: address, Payload: payload})
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/channels/%s/messages", c.baseURL, url.PathEscape(channelID)),
		bytes.NewReader(body))
	if err != nil {
		return domain.SendResult{}, err
	}
	c.setHeaders(req)

	// Single attempt on purpose, see New.
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("gateway send: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode >= 400 {
			return domain.SendResult{
				OK:        false,
				ErrorText: fmt.Sprintf("gateway status %d: %s", resp.StatusCode, truncate(string(raw), 500)),
				SentAt:    time.Now(),
			}, nil
		}
		return domain.SendResult{}, fmt.Errorf("decode send response: %w", err)
	}

	return domain.SendResult{
		OK:                parsed.OK && resp.StatusCode < 400,
		ProviderMessageID: parsed.MessageID,
		ErrorText:         parsed.Error,
		SentAt:            time.Now(),
	}, nil
}

// ProbeCapability asks the gateway whether the address can receive messages
// on this channel at all.
func (c *Client) ProbeCapability(ctx context.Context, channelID, address string) (domain.CapabilityResult, error) {
	var out struct {
		Reachable bool `json:"reachable"`
	}
	path := fmt.Sprintf("/channels/%s/contacts/%s/capability",
		url.PathEscape(channelID), url.PathEscape(address))
	if err := c.getJSON(ctx, path, &out); err != nil {
		return domain.CapabilityResult{}, err
	}
	return domain.CapabilityResult{Reachable: out.Reachable}, nil
}

// ProbeConnectivity reports whether the channel's gateway session is live.
func (c *Client) ProbeConnectivity(ctx context.Context, channelID string) (domain.ConnectivityResult, error) {
	var out struct {
		Connected bool `json:"connected"`
	}
	path := fmt.Sprintf("/channels/%s/status", url.PathEscape(channelID))
	if err := c.getJSON(ctx, path, &out); err != nil {
		return domain.ConnectivityResult{}, err
	}
	return domain.ConnectivityResult{Connected: out.Connected}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway status %d for %s: %s", resp.StatusCode, path, truncate(string(raw), 500))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
