// Package whatsapp sends messages through the WhatsApp HTTP gateway. Each
// sales agent has its own gateway device, addressed by X-Device-Id.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"leadcrm_backend/platform/config"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/phone"
)

var (
	// ErrNotConfigured is returned when no gateway URL is set.
	ErrNotConfigured = errors.New("whatsapp gateway not configured")
	// ErrSessionUnavailable is returned when the agent's device is not logged in.
	ErrSessionUnavailable = errors.New("whatsapp session unavailable")
)

// OutboundMessage is one text message sent on behalf of an agent.
type OutboundMessage struct {
	SalesID int64
	// To is a phone number or a chat id such as "1234@lid".
	To   string
	Body string
	Meta map[string]string
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type gatewayResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Results struct {
		MessageID string `json:"message_id"`
		Connected *bool  `json:"is_connected"`
		LoggedIn  *bool  `json:"is_logged_in"`
	} `json:"results"`
}

// NewClient returns nil when the gateway is not configured; a nil client
// reports ErrNotConfigured on every call.
func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:  cfg.GetWhatsAppKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// EnsureSession verifies the agent's device is connected and logged in.
func (c *Client) EnsureSession(ctx context.Context, salesID int64) error {
	if c == nil {
		return ErrNotConfigured
	}

	var resp gatewayResponse
	if err := c.do(ctx, http.MethodGet, "/app/status", salesID, nil, &resp); err != nil {
		return err
	}
	if resp.Results.Connected != nil && !*resp.Results.Connected {
		return ErrSessionUnavailable
	}
	if resp.Results.LoggedIn != nil && !*resp.Results.LoggedIn {
		return ErrSessionUnavailable
	}
	return nil
}

// SendMessage delivers a text message and returns the provider message id.
func (c *Client) SendMessage(ctx context.Context, msg OutboundMessage) (string, error) {
	if c == nil {
		return "", ErrNotConfigured
	}

	to := recipient(msg.To)
	if to == "" {
		return "", fmt.Errorf("whatsapp recipient is empty")
	}

	var resp gatewayResponse
	if err := c.do(ctx, http.MethodPost, "/send/message", msg.SalesID, sendRequest{Phone: to, Message: msg.Body}, &resp); err != nil {
		return "", err
	}

	c.log.Info("whatsapp sent via gateway", "salesId", msg.SalesID, "to", to, "providerId", resp.Results.MessageID, "kind", msg.Meta["kind"])
	return resp.Results.MessageID, nil
}

func (c *Client) do(ctx context.Context, method, path string, salesID int64, payload any, out *gatewayResponse) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal whatsapp payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}
	req.Header.Set("X-Device-Id", DeviceID(salesID))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("whatsapp service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode whatsapp response: %w", err)
		}
	}
	return nil
}

// DeviceID is the gateway device that belongs to an agent.
func DeviceID(salesID int64) string {
	return "sales-" + strconv.FormatInt(salesID, 10)
}

// recipient keeps chat ids as-is and reduces phone numbers to digits.
func recipient(to string) string {
	trimmed := strings.TrimSpace(to)
	if strings.Contains(trimmed, "@") {
		return trimmed
	}
	return phone.NormalizeDigits(trimmed)
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
