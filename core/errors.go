package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	WebhookErrorTransport = "WEBHOOK_TRANSPORT"
	WebhookErrorSignature = "WEBHOOK_SIGNATURE"
	WebhookErrorBadInput  = "WEBHOOK_BAD_INPUT"
	WebhookErrorHandler   = "WEBHOOK_HANDLER"
	WebhookErrorConfig    = "WEBHOOK_CONFIG"
	WebhookErrorInternal  = "WEBHOOK_INTERNAL"
)

// TransportError covers incomplete or unreadable request bodies. Fatal to the
// request, performed before any side effect.
func TransportError(message string, cause error, metadata map[string]any) error {
	return webhookError(cause, message, goerrors.CategoryBadInput, http.StatusBadRequest, WebhookErrorTransport, metadata)
}

// SignatureError covers missing, garbled, or mismatching signatures and stale
// timestamps. The response contract maps authentication failures to 400, so
// the explicit code overrides the category default.
func SignatureError(message string, cause error, metadata map[string]any) error {
	return webhookError(cause, message, goerrors.CategoryAuth, http.StatusBadRequest, WebhookErrorSignature, metadata)
}

func BadInputError(message string, cause error, metadata map[string]any) error {
	return webhookError(cause, message, goerrors.CategoryBadInput, http.StatusBadRequest, WebhookErrorBadInput, metadata)
}

// HandlerError covers builder or sink failures after successful verification.
// Recoverable: the dispatcher releases the claim so the provider retry
// re-enters the pipeline.
func HandlerError(message string, cause error, metadata map[string]any) error {
	return webhookError(cause, message, goerrors.CategoryOperation, http.StatusInternalServerError, WebhookErrorHandler, metadata)
}

func ConfigError(message string, metadata map[string]any) error {
	return webhookError(nil, message, goerrors.CategoryValidation, http.StatusInternalServerError, WebhookErrorConfig, metadata)
}

func InternalError(message string, cause error, metadata map[string]any) error {
	return webhookError(cause, message, goerrors.CategoryInternal, http.StatusInternalServerError, WebhookErrorInternal, metadata)
}

func webhookError(
	source error,
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	var err *goerrors.Error
	if source != nil {
		err = goerrors.Wrap(source, category, message)
	} else {
		err = goerrors.New(message, category)
	}
	err = err.WithCode(code).WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(richErr.TextCode), textCode)
}

func IsSignatureError(err error) bool {
	return hasTextCode(err, WebhookErrorSignature)
}

func IsTransportError(err error) bool {
	return hasTextCode(err, WebhookErrorTransport)
}

func IsHandlerError(err error) bool {
	return hasTextCode(err, WebhookErrorHandler)
}

// HTTPStatus resolves the response code for an error, falling back to the
// category mapping when no explicit code was set.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Code != 0 {
			return richErr.Code
		}
		return categoryHTTPStatus(richErr.Category)
	}
	return http.StatusInternalServerError
}

func categoryHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
