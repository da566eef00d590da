package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tpepperobubra-cell/stripe-webhook/core"
)

// DefaultTolerance bounds how far a signed timestamp may drift from the
// receiver clock before the payload is treated as a replay.
const DefaultTolerance = 5 * time.Minute

const signingVersion = "v1"

// SignatureVerifier authenticates raw payloads against the provider's signed
// header scheme: `t=<unix seconds>,v1=<hex hmac-sha256>` where the MAC covers
// `<t>.<raw body>`. Comparison is constant time and verification performs no
// side effects, so a forged request never touches ledger or store.
type SignatureVerifier struct {
	Secret    string
	Tolerance time.Duration

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewSignatureVerifier(secret string, tolerance time.Duration) (*SignatureVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, core.ConfigError("webhooks: signing secret is required", nil)
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &SignatureVerifier{Secret: secret, Tolerance: tolerance}, nil
}

// Verify authenticates body against header and decodes the event. The event
// is only materialized after the MAC and timestamp checks pass.
func (v *SignatureVerifier) Verify(body []byte, header string) (core.Event, error) {
	if v == nil || strings.TrimSpace(v.Secret) == "" {
		return core.Event{}, core.ConfigError("webhooks: verifier requires a signing secret", nil)
	}
	if len(body) == 0 {
		return core.Event{}, core.SignatureError("webhooks: cannot verify an empty payload", nil, nil)
	}

	timestamp, candidates, err := parseSignatureHeader(header)
	if err != nil {
		return core.Event{}, err
	}

	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	signedAt := time.Unix(timestamp, 0)
	if drift := now.Sub(signedAt); drift > tolerance || drift < -tolerance {
		return core.Event{}, core.SignatureError("webhooks: signed timestamp outside tolerance", nil, map[string]any{
			"signed_at": signedAt.UTC().Format(time.RFC3339),
			"tolerance": tolerance.String(),
		})
	}

	expected := computeSignature(v.Secret, timestamp, body)
	matched := false
	for _, candidate := range candidates {
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			matched = true
		}
	}
	if !matched {
		return core.Event{}, core.SignatureError("webhooks: signature mismatch", nil, nil)
	}

	evt, err := core.ParseEvent(body)
	if err != nil {
		return core.Event{}, err
	}
	return evt, nil
}

// parseSignatureHeader splits the comma separated `k=v` pairs, returning the
// signed timestamp and every candidate signature for the supported version.
// Unknown keys are ignored so the provider can introduce new schemes.
func parseSignatureHeader(header string) (int64, []string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, nil, core.SignatureError("webhooks: signature header is empty", nil, nil)
	}

	var (
		timestamp  int64
		sawStamp   bool
		candidates []string
	)
	for _, pair := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			return 0, nil, core.SignatureError("webhooks: malformed signature header element", nil, map[string]any{
				"element": pair,
			})
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, core.SignatureError("webhooks: malformed signature timestamp", err, nil)
			}
			timestamp = parsed
			sawStamp = true
		case signingVersion:
			if strings.TrimSpace(value) != "" {
				candidates = append(candidates, strings.TrimSpace(value))
			}
		}
	}
	if !sawStamp {
		return 0, nil, core.SignatureError("webhooks: signature header is missing a timestamp", nil, nil)
	}
	if len(candidates) == 0 {
		return 0, nil, core.SignatureError("webhooks: signature header carries no "+signingVersion+" signature", nil, nil)
	}
	return timestamp, candidates, nil
}

func computeSignature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignPayload produces a header value the verifier accepts. Used by tests and
// by local tooling that replays captured payloads.
func SignPayload(secret string, timestamp time.Time, body []byte) string {
	signature := computeSignature(secret, timestamp.Unix(), body)
	return fmt.Sprintf("t=%d,%s=%s", timestamp.Unix(), signingVersion, signature)
}
