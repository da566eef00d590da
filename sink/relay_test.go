package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tpepperobubra-cell/stripe-webhook/core"
)

func TestRelay_PostsFlatFieldMap(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	relay, err := NewRelay(core.RelayConfig{Enabled: true, URL: server.URL}, server.Client())
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}

	if err := relay.Deliver(context.Background(), testRecord()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if gotBody["session_id"] != "cs_1" {
		t.Fatalf("expected flat field map, got %v", gotBody)
	}
	if gotBody["phenom_partner"] != false {
		t.Fatalf("expected partner flag in payload, got %v", gotBody["phenom_partner"])
	}
}

func TestRelay_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	relay, err := NewRelay(core.RelayConfig{Enabled: true, URL: server.URL}, server.Client())
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}

	deliverErr := relay.Deliver(context.Background(), testRecord())
	if deliverErr == nil {
		t.Fatalf("expected failure")
	}
	if IsPermanent(deliverErr) {
		t.Fatalf("expected transient classification, got %v", deliverErr)
	}
}

func TestNewRelay_RequiresURL(t *testing.T) {
	if _, err := NewRelay(core.RelayConfig{}, nil); err == nil {
		t.Fatalf("expected error for missing url")
	}
}
