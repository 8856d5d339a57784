package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultGreeting is shown when the greeting endpoint is unavailable.
const DefaultGreeting = "> Welcome to your session. I am PNEUMA. Let's begin."

const greetingPrompt = "Generate a friendly and professional greeting for a user starting a chat session."

// maxLookupBody caps identity and greeting response bodies.
const maxLookupBody = 64 << 10

// Initialize resolves the client identifier. It is best effort: any failure
// leaves the identifier at UnknownClientID.
func (c *Client) Initialize(ctx context.Context) {
	id, err := c.lookupIdentity(ctx)
	if err != nil {
		c.logger.Warn("identity lookup failed", "error", err)
		id = UnknownClientID
	}

	c.idMu.Lock()
	c.clientID = id
	c.idMu.Unlock()
}

func (c *Client) lookupIdentity(ctx context.Context) (string, error) {
	if c.cfg.IdentityURL == "" {
		return UnknownClientID, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.IdentityURL, nil)
	if err != nil {
		return "", fmt.Errorf("build identity request: %w", err)
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := c.doJSON(req, "identity lookup", &body); err != nil {
		return "", err
	}
	if strings.TrimSpace(body.IP) == "" {
		return "", &ProtocolError{Op: "identity lookup", Err: fmt.Errorf("empty ip")}
	}
	return body.IP, nil
}

// Greeting asks the greeting endpoint for an opening line and falls back to
// DefaultGreeting on any failure.
func (c *Client) Greeting(ctx context.Context) string {
	if c.cfg.GreetingURL == "" {
		return DefaultGreeting
	}

	text, err := c.fetchGreeting(ctx)
	if err != nil {
		c.logger.Warn("greeting request failed", "error", err)
		return DefaultGreeting
	}
	if strings.TrimSpace(text) == "" {
		return DefaultGreeting
	}
	return text
}

func (c *Client) fetchGreeting(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"prompt": greetingPrompt,
		"model":  c.cfg.GreetingModel,
	})
	if err != nil {
		return "", fmt.Errorf("marshal greeting request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GreetingURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build greeting request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var body struct {
		Text string `json:"text"`
	}
	if err := c.doJSON(req, "greeting", &body); err != nil {
		return "", err
	}
	return body.Text, nil
}

func (c *Client) doJSON(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "op", op, "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProtocolError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxLookupBody)).Decode(out); err != nil {
		return &ProtocolError{Op: op, Err: fmt.Errorf("decode body: %w", err)}
	}
	return nil
}
