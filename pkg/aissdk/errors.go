package aissdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/aisconsent/pkg/httpx"
)

// ============================================================================
// Message codes (NextGenPSD2 tppMessages)
// ============================================================================

const (
	CodeFormatError          = "FORMAT_ERROR"
	CodeConsentUnknown       = "CONSENT_UNKNOWN"
	CodeConsentInvalid       = "CONSENT_INVALID"
	CodeConsentExpired       = "CONSENT_EXPIRED"
	CodeAccessExceeded       = "ACCESS_EXCEEDED"
	CodeResourceUnknown      = "RESOURCE_UNKNOWN"
	CodeStatusInvalid        = "STATUS_INVALID"
	CodeAuthorisationExpired = "AUTHORISATION_EXPIRED"
	CodeCredentialsInvalid   = "PSU_CREDENTIALS_INVALID"
	CodeScaMethodUnknown     = "SCA_METHOD_UNKNOWN"
	CodeServiceInvalid       = "SERVICE_INVALID"
	CodeConflict             = "CONFLICT"
	CodeInternalServerError  = "INTERNAL_SERVER_ERROR"
)

// TppMessage is one entry of the "tppMessages" error envelope.
type TppMessage struct {
	Category string `json:"category" example:"ERROR"`
	Code     string `json:"code" example:"CONSENT_UNKNOWN"`
	Path     string `json:"path,omitempty"`
	Text     string `json:"text,omitempty"`
}

// ErrorResponse is the error body returned by every endpoint.
type ErrorResponse struct {
	TppMessages []TppMessage `json:"tppMessages"`
}

// ============================================================================
// TppError
// ============================================================================

// TppError is a typed API error. The server writes it with WriteError and
// the client reconstructs it from the response body, so errors.Is works
// against the predefined values on both sides.
type TppError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	Code string `json:"code"`
	Text string `json:"text"`
}

// Error implements the error interface.
func (e *TppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Text)
}

// Is matches on status code and message code, ignoring the text.
func (e *TppError) Is(target error) bool {
	var t *TppError
	if !errors.As(target, &t) {
		return false
	}
	return e.StatusCode == t.StatusCode && e.Code == t.Code
}

// WithText returns a copy of e carrying a request-specific text.
func (e *TppError) WithText(text string) *TppError {
	return &TppError{StatusCode: e.StatusCode, Code: e.Code, Text: text}
}

// WriteError writes this error as a tppMessages envelope.
func (e *TppError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	httpx.WriteJSON(w, e.StatusCode, ErrorResponse{
		TppMessages: []TppMessage{{Category: "ERROR", Code: e.Code, Text: e.Text}},
	})
}

// ============================================================================
// Predefined errors
// ============================================================================

var (
	ErrFormat = &TppError{
		StatusCode: http.StatusBadRequest,
		Code:       CodeFormatError,
		Text:       "the request is malformed or missing required fields",
	}

	// ErrConsentUnknown is used on the account endpoints where the consent
	// is addressed through the Consent-ID header.
	ErrConsentUnknown = &TppError{
		StatusCode: http.StatusForbidden,
		Code:       CodeConsentUnknown,
		Text:       "the consent id does not match any consent of this TPP",
	}

	// ErrConsentNotFound is used where the consent is a path resource.
	ErrConsentNotFound = &TppError{
		StatusCode: http.StatusNotFound,
		Code:       CodeConsentUnknown,
		Text:       "consent not found",
	}

	ErrConsentInvalid = &TppError{
		StatusCode: http.StatusUnauthorized,
		Code:       CodeConsentInvalid,
		Text:       "the consent does not cover the addressed service or account",
	}

	ErrConsentExpired = &TppError{
		StatusCode: http.StatusUnauthorized,
		Code:       CodeConsentExpired,
		Text:       "the consent has expired",
	}

	ErrAccessExceeded = &TppError{
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeAccessExceeded,
		Text:       "the daily access limit of this consent is exhausted",
	}

	ErrResourceUnknown = &TppError{
		StatusCode: http.StatusNotFound,
		Code:       CodeResourceUnknown,
		Text:       "the addressed resource is unknown",
	}

	ErrStatusInvalid = &TppError{
		StatusCode: http.StatusConflict,
		Code:       CodeStatusInvalid,
		Text:       "the resource does not allow this operation in its current status",
	}

	ErrAuthorisationExpired = &TppError{
		StatusCode: http.StatusForbidden,
		Code:       CodeAuthorisationExpired,
		Text:       "SCA expired",
	}

	ErrCredentialsInvalid = &TppError{
		StatusCode: http.StatusUnauthorized,
		Code:       CodeCredentialsInvalid,
		Text:       "the PSU credentials or authentication data are invalid",
	}

	ErrScaMethodUnknown = &TppError{
		StatusCode: http.StatusBadRequest,
		Code:       CodeScaMethodUnknown,
		Text:       "the selected SCA method is unknown",
	}

	ErrServiceInvalid = &TppError{
		StatusCode: http.StatusBadRequest,
		Code:       CodeServiceInvalid,
		Text:       "the requested service is not supported by this ASPSP",
	}

	ErrConflict = &TppError{
		StatusCode: http.StatusConflict,
		Code:       CodeConflict,
		Text:       "the consent was modified concurrently, retry the request",
	}

	ErrInternal = &TppError{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternalServerError,
		Text:       "internal server error",
	}
)

// ============================================================================
// Error parsing
// ============================================================================

// parseErrorResponse turns a non-2xx response into a *TppError. Returns nil
// for 2xx responses.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && len(errResp.TppMessages) > 0 {
		m := errResp.TppMessages[0]
		return &TppError{StatusCode: resp.StatusCode, Code: m.Code, Text: m.Text}
	}

	// Bearer failures from the authn middleware carry no body.
	if resp.StatusCode == http.StatusUnauthorized {
		return &TppError{
			StatusCode: resp.StatusCode,
			Code:       "TOKEN_INVALID",
			Text:       resp.Header.Get("WWW-Authenticate"),
		}
	}

	return &TppError{
		StatusCode: resp.StatusCode,
		Code:       CodeInternalServerError,
		Text:       fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
