package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tpepperobubra-cell/stripe-webhook/checkout"
	"github.com/tpepperobubra-cell/stripe-webhook/core"
)

// Relay forwards the flat field map to an automation relay webhook.
type Relay struct {
	url    string
	client *http.Client
}

func NewRelay(cfg core.RelayConfig, client *http.Client) (*Relay, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, core.ConfigError("sink: relay url is required", nil)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Relay{url: cfg.URL, client: client}, nil
}

func (r *Relay) Name() string { return "relay" }

func (r *Relay) Deliver(ctx context.Context, record checkout.Record) error {
	if r == nil || r.client == nil {
		return core.ConfigError("sink: relay sink is not initialized", nil)
	}

	body, err := json.Marshal(record.Fields())
	if err != nil {
		return PermanentError("sink: encode relay payload", err, map[string]any{
			"session_id": record.SessionID,
		})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return PermanentError("sink: build relay request", err, nil)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return TransientError("sink: relay request failed", err, map[string]any{
			"session_id": record.SessionID,
		})
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return statusError(r.Name(), resp.StatusCode, readSnippet(resp.Body))
}
