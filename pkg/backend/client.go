// Package backend is the HTTP client for the business backend: message
// persistence, the per-tenant auto-reply policy, and (optionally) reply
// generation. Every call is bounded by a client-side timeout and the
// caller decides the fail-safe behavior; this client only reports
// errors, it never retries.
package backend

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

	"github.com/google/uuid"
)

// Record is the persistence payload for one conversation turn.
// Outbound is empty for inbound-only records.
type Record struct {
	TenantID       string `json:"tenant_id"`
	ContactKey     string `json:"contact_key"`
	DisplayName    string `json:"display_name,omitempty"`
	Inbound        string `json:"inbound_text,omitempty"`
	Outbound       string `json:"outbound_text,omitempty"`
	OriginalHandle string `json:"original_handle"`
	Private        bool   `json:"private,omitempty"`
}

type Config struct {
	BaseURL string
	APIKey  string
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid backend base URL: %w", err)
	}
	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		// Per-call deadlines come from the caller's context; this is a
		// hard upper bound against stuck connections.
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// RecordMessage persists one conversation turn. Idempotency is the
// backend's concern; the core never retries.
func (c *Client) RecordMessage(ctx context.Context, rec Record) error {
	return c.post(ctx, "/api/messages", rec, nil)
}

// ShouldAutoReply asks the per-tenant policy (plan tier, toggle state)
// whether an automated reply is warranted.
func (c *Client) ShouldAutoReply(ctx context.Context, tenantID string) (bool, error) {
	var out struct {
		AutoReply bool `json:"auto_reply"`
	}
	path := "/api/tenants/" + url.PathEscape(tenantID) + "/auto-reply"
	if err := c.get(ctx, path, &out); err != nil {
		return false, err
	}
	return out.AutoReply, nil
}

// GenerateReply asks the backend for a reply to the inbound text. An
// empty reply means no reply should be sent.
func (c *Client) GenerateReply(ctx context.Context, tenantID, inboundText string) (string, error) {
	body := struct {
		Text string `json:"text"`
	}{Text: inboundText}
	var out struct {
		Reply string `json:"reply"`
	}
	path := "/api/tenants/" + url.PathEscape(tenantID) + "/replies"
	if err := c.post(ctx, path, body, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Reply), nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend %s %s: status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend response decode: %w", err)
	}
	return nil
}
