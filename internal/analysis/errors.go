package analysis

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"trafficlens/internal/result"
	"trafficlens/internal/services"
)

// SetupURL is where operators obtain a Gemini API key.
const SetupURL = "https://aistudio.google.com/app/apikeys"

// Kind classifies adapter failures.
type Kind string

const (
	KindMissingCredential       Kind = "missing_credential"
	KindInvalidCredential       Kind = "invalid_credential"
	KindPayloadTooLarge         Kind = "payload_too_large"
	KindTransportFailure        Kind = "transport_failure"
	KindEmptyModelResponse      Kind = "empty_model_response"
	KindUnparsableModelResponse Kind = "unparsable_model_response"
)

const (
	snippetLimit = 512
	rawLimit     = 4096
)

// ErrNoFrames is returned when a request carries no frames. It is a
// precondition failure and never reaches the remote service.
var ErrNoFrames = fmt.Errorf("%w: No frames provided for analysis", services.ErrValidation)

// Error describes a failed analysis call. Message is safe to show to end
// users; it never contains the API key.
type Error struct {
	Kind      Kind
	Message   string
	Status    int    // remote HTTP status, when one was received
	SizeBytes int    // encoded request size for payload failures
	Detail    string // truncated remote body or transport cause
	Raw       string // truncated model text for unparsable responses
	SetupLink string
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := "analysis: " + string(e.Kind) + ": " + e.Message
	if e.Status > 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the adapter failure kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// HTTPStatus maps an analysis failure to the status code exposed by the HTTP
// surface.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrNoFrames) {
		return http.StatusBadRequest
	}
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case KindInvalidCredential:
		return http.StatusUnauthorized
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// SetupLink returns the credential setup link attached to err, if any.
func SetupLink(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.SetupLink
	}
	return ""
}

func missingCredential() *Error {
	return &Error{
		Kind:      KindMissingCredential,
		Message:   "GEMINI_API_KEY is not configured. Set gemini.api_key in the config file or export GEMINI_API_KEY.",
		SetupLink: SetupURL,
		Err:       services.ErrConfiguration,
	}
}

func invalidCredential(status int) *Error {
	return &Error{
		Kind:      KindInvalidCredential,
		Message:   "Invalid Gemini API key. Please check gemini.api_key or GEMINI_API_KEY.",
		Status:    status,
		SetupLink: SetupURL,
		Err:       services.ErrConfiguration,
	}
}

func payloadTooLarge(size int) *Error {
	return &Error{
		Kind:      KindPayloadTooLarge,
		Message:   fmt.Sprintf("Payload too large (%.2fMB). Please upload a smaller video or reduce quality.", float64(size)/(1024*1024)),
		SizeBytes: size,
		Err:       services.ErrValidation,
	}
}

func remotePayloadTooLarge(status int) *Error {
	return &Error{
		Kind:    KindPayloadTooLarge,
		Message: "Request payload too large for Gemini API. Please use a smaller video file.",
		Status:  status,
		Err:     services.ErrValidation,
	}
}

func transportFailure(status int, detail string, cause error) *Error {
	marker := error(services.ErrExternalTool)
	if cause != nil {
		marker = fmt.Errorf("%w: %w", services.ErrExternalTool, cause)
	}
	return &Error{
		Kind:    KindTransportFailure,
		Message: "Failed to analyze video with Gemini API",
		Status:  status,
		Detail:  snippet(detail, snippetLimit),
		Err:     marker,
	}
}

func emptyResponse() *Error {
	return &Error{
		Kind:    KindEmptyModelResponse,
		Message: "No content in Gemini response",
		Err:     services.ErrExternalTool,
	}
}

func unparsableResponse(raw string, cause error) *Error {
	err := &Error{
		Kind:    KindUnparsableModelResponse,
		Message: "Could not parse JSON from Gemini response",
		Raw:     snippet(raw, rawLimit),
		Err:     services.ErrValidation,
	}
	if cause != nil {
		err.Err = fmt.Errorf("%w: %w", services.ErrValidation, cause)
		var ve *result.ValidationError
		if errors.As(cause, &ve) {
			err.Detail = ve.Error()
		} else {
			err.Detail = snippet(cause.Error(), snippetLimit)
		}
	}
	return err
}

func snippet(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit]) + "..."
}
