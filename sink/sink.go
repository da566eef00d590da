// Package sink delivers normalized checkout records to external systems and
// classifies delivery failures so the retry wrapper knows what is worth
// retrying.
package sink

import (
	"context"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/tpepperobubra-cell/stripe-webhook/checkout"
)

// Sink delivers one record to one external system. Implementations must be
// safe to call multiple times with the same record; the pipeline's ledger
// prevents duplicate dispatch per event, but the contract does not assume it.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, record checkout.Record) error
}

const (
	sinkErrorTransient = "SINK_TRANSIENT"
	sinkErrorPermanent = "SINK_PERMANENT"
)

// TransientError marks a failure worth retrying: network trouble, timeouts,
// throttling, upstream 5xx.
func TransientError(message string, cause error, metadata map[string]any) error {
	return sinkError(cause, message, goerrors.CategoryExternal, sinkErrorTransient, metadata)
}

// PermanentError marks a failure retrying cannot fix: malformed record,
// rejected credentials, permanent upstream rejection.
func PermanentError(message string, cause error, metadata map[string]any) error {
	return sinkError(cause, message, goerrors.CategoryBadInput, sinkErrorPermanent, metadata)
}

func sinkError(source error, message string, category goerrors.Category, textCode string, metadata map[string]any) error {
	var err *goerrors.Error
	if source != nil {
		err = goerrors.Wrap(source, category, message)
	} else {
		err = goerrors.New(message, category)
	}
	err = err.WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// IsPermanent reports whether a delivery failure should propagate without
// further attempts. Explicitly marked errors win; otherwise the error category
// decides. Unclassified errors count as transient so flaky transports get
// their retries.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	switch richErr.TextCode {
	case sinkErrorPermanent:
		return true
	case sinkErrorTransient:
		return false
	}
	switch richErr.Category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation, goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return true
	default:
		return false
	}
}

// transientStatus reports whether an HTTP response status is worth retrying.
func transientStatus(status int) bool {
	if status >= http.StatusInternalServerError {
		return true
	}
	return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
}

// statusError classifies an upstream HTTP rejection for one sink.
func statusError(name string, status int, body string) error {
	metadata := map[string]any{
		"sink":   name,
		"status": status,
	}
	if body != "" {
		metadata["response"] = body
	}
	if transientStatus(status) {
		return TransientError("sink: "+name+" rejected delivery", nil, metadata)
	}
	return PermanentError("sink: "+name+" rejected delivery", nil, metadata)
}
