package webhooks

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/tpepperobubra-cell/stripe-webhook/core"
)

func TestReadBody_ReturnsExactBytes(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set(SignatureHeader, "t=1,v1=abc")

	capture, err := ReadBody(httptest.NewRecorder(), req, 0)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(capture.Body, payload) {
		t.Fatalf("expected byte-exact body, got %q", capture.Body)
	}
	if capture.Signature != "t=1,v1=abc" {
		t.Fatalf("expected signature header to be captured, got %q", capture.Signature)
	}
}

func TestReadBody_MissingSignatureHeader(t *testing.T) {
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader([]byte(`{}`)))

	_, err := ReadBody(httptest.NewRecorder(), req, 0)
	if err == nil {
		t.Fatalf("expected error for missing header")
	}
	if !core.IsSignatureError(err) {
		t.Fatalf("expected signature classification, got %v", err)
	}
}

func TestReadBody_IncompleteBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader([]byte(`{"id":"evt`)))
	req.Header.Set(SignatureHeader, "t=1,v1=abc")
	req.ContentLength = 100

	_, err := ReadBody(httptest.NewRecorder(), req, 0)
	if err == nil {
		t.Fatalf("expected error for truncated body")
	}
	if !core.IsTransportError(err) {
		t.Fatalf("expected transport classification, got %v", err)
	}
}

func TestReadBody_EmptyBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(nil))
	req.Header.Set(SignatureHeader, "t=1,v1=abc")

	if _, err := ReadBody(httptest.NewRecorder(), req, 0); err == nil {
		t.Fatalf("expected error for empty body")
	}
}
