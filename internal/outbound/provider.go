package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/calltrail/calltrail/internal/errs"
)

// ProviderConfig holds the messaging provider credentials.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
}

// Valid returns true if the minimum required fields are set.
func (c ProviderConfig) Valid() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

// ProviderClient sends messages through the provider's HTTP API.
type ProviderClient struct {
	cfg ProviderConfig
	// doFunc allows injecting a custom transport for testing.
	doFunc func(req *http.Request) (*http.Response, error)
}

// NewProviderClient creates a ProviderClient.
func NewProviderClient(cfg ProviderConfig) *ProviderClient {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	return &ProviderClient{cfg: cfg, doFunc: httpClient.Do}
}

// Name implements Sender.
func (c *ProviderClient) Name() string { return "provider" }

// sendPayload is the provider's message creation request body.
type sendPayload struct {
	Channel  string `json:"channel"`
	To       string `json:"to"`
	Body     string `json:"body,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
}

// sendResult is the provider's message creation response body.
type sendResult struct {
	ID string `json:"id"`
}

// Send implements Sender. Credentials are checked before any network
// activity so an unconfigured deployment fails as a precondition, not a
// transport error.
func (c *ProviderClient) Send(ctx context.Context, req SendRequest) (string, string, error) {
	if !c.cfg.Valid() {
		return "", "", errs.Configurationf("outbound provider credentials not configured")
	}

	switch req.Channel {
	case ChannelSMS, ChannelVoice:
		if req.Body == "" {
			return "", "", errs.Validationf("%s send requires a body", req.Channel)
		}
	case ChannelFax:
		if req.MediaURL == "" {
			return "", "", errs.Validationf("fax send requires a media URL")
		}
	default:
		return "", "", errs.Validationf("unsupported channel %q", req.Channel)
	}

	body, err := json.Marshal(sendPayload{
		Channel:  req.Channel,
		To:       req.Recipient,
		Body:     req.Body,
		MediaURL: req.MediaURL,
	})
	if err != nil {
		return "", "", fmt.Errorf("encoding send payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v2/messages", bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("building provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.doFunc(httpReq)
	if err != nil {
		return "", "", fmt.Errorf("calling provider: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("reading provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", string(respBody), fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var result sendResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", string(respBody), fmt.Errorf("decoding provider response: %w", err)
	}

	return result.ID, string(respBody), nil
}
