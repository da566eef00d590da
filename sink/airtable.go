package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tpepperobubra-cell/stripe-webhook/checkout"
	"github.com/tpepperobubra-cell/stripe-webhook/core"
)

const DefaultAirtableBaseURL = "https://api.airtable.com"

// Airtable posts records into one fixed, pre-provisioned table. The table is
// configuration, never created at delivery time; the record's session id field
// acts as the natural key for downstream dedup.
type Airtable struct {
	baseURL string
	baseID  string
	table   string
	token   string
	client  *http.Client
}

func NewAirtable(cfg core.AirtableConfig, client *http.Client) (*Airtable, error) {
	if strings.TrimSpace(cfg.BaseID) == "" {
		return nil, core.ConfigError("sink: airtable base id is required", nil)
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, core.ConfigError("sink: airtable table is required", nil)
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, core.ConfigError("sink: airtable token is required", nil)
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultAirtableBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Airtable{
		baseURL: strings.TrimRight(baseURL, "/"),
		baseID:  cfg.BaseID,
		table:   cfg.Table,
		token:   cfg.Token,
		client:  client,
	}, nil
}

func (a *Airtable) Name() string { return "airtable" }

func (a *Airtable) Deliver(ctx context.Context, record checkout.Record) error {
	if a == nil || a.client == nil {
		return core.ConfigError("sink: airtable sink is not initialized", nil)
	}

	body, err := json.Marshal(map[string]any{
		"records": []map[string]any{
			{"fields": record.Fields()},
		},
		"typecast": true,
	})
	if err != nil {
		return PermanentError("sink: encode airtable payload", err, map[string]any{
			"session_id": record.SessionID,
		})
	}

	endpoint := a.baseURL + "/v0/" + url.PathEscape(a.baseID) + "/" + url.PathEscape(a.table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return PermanentError("sink: build airtable request", err, nil)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return TransientError("sink: airtable request failed", err, map[string]any{
			"session_id": record.SessionID,
		})
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return statusError(a.Name(), resp.StatusCode, readSnippet(resp.Body))
}

// readSnippet drains up to a short prefix of an error response for logging.
func readSnippet(r io.Reader) string {
	snippet, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(snippet))
}
