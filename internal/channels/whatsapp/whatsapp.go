// Package whatsapp sends text messages through an Evolution-style HTTP
// gateway.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	// Endpoint is the full sendText URL, instance included.
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	// RatePerSecond paces outbound requests; zero disables pacing.
	RatePerSecond float64
	Burst         int
	// TypingDelay is the presence delay the gateway shows before sending.
	TypingDelay time.Duration
}

// Client implements dispatch.MessageSender. Safe for concurrent use.
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.TypingDelay == 0 {
		cfg.TypingDelay = 1200 * time.Millisecond
	}
	c := &Client{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return c
}

type sendOptions struct {
	Delay    int64  `json:"delay"`
	Presence string `json:"presence"`
}

type sendRequest struct {
	Number  string      `json:"number"`
	Text    string      `json:"text"`
	Options sendOptions `json:"options"`
}

// StatusError reports a gateway response other than 201 Created.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("whatsapp gateway returned %d: %s", e.Status, e.Body)
}

func (c *Client) SendText(ctx context.Context, phone, body string) error {
	if c.cfg.Endpoint == "" {
		return errors.New("whatsapp: endpoint not configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("whatsapp: rate limit wait: %w", err)
		}
	}
	payload, err := json.Marshal(sendRequest{
		Number:  phone,
		Text:    body,
		Options: sendOptions{Delay: c.cfg.TypingDelay.Milliseconds(), Presence: "composing"},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("apikey", c.cfg.APIKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
