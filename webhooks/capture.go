package webhooks

import (
	"io"
	"net/http"
	"strings"

	"github.com/tpepperobubra-cell/stripe-webhook/core"
)

// SignatureHeader carries the provider's signature token.
const SignatureHeader = "Stripe-Signature"

const DefaultMaxBodyBytes int64 = 1 << 20

// Capture holds the exact bytes of an inbound notification together with the
// claimed signature header value. The bytes are complete and unmodified; the
// signature scheme is defined over byte-exact content.
type Capture struct {
	Body      []byte
	Signature string
}

// ReadBody drains the request body without re-encoding or reinterpretation.
// The missing-header check runs first so callers get a clear failure instead
// of a confusing verification mismatch.
func ReadBody(w http.ResponseWriter, r *http.Request, maxBytes int64) (Capture, error) {
	if r == nil {
		return Capture{}, core.TransportError("webhooks: request is required", nil, nil)
	}
	signature := strings.TrimSpace(r.Header.Get(SignatureHeader))
	if signature == "" {
		return Capture{}, core.SignatureError("webhooks: "+SignatureHeader+" header is required", nil, nil)
	}

	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	body := r.Body
	if w != nil {
		body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		return Capture{}, core.TransportError("webhooks: read request body", err, map[string]any{
			"content_length": r.ContentLength,
		})
	}
	if r.ContentLength >= 0 && int64(len(payload)) != r.ContentLength {
		return Capture{}, core.TransportError("webhooks: body ended before declared length", nil, map[string]any{
			"content_length": r.ContentLength,
			"read_bytes":     len(payload),
		})
	}
	if len(payload) == 0 {
		return Capture{}, core.TransportError("webhooks: request body is empty", nil, nil)
	}
	return Capture{Body: payload, Signature: signature}, nil
}
