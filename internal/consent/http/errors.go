package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/aisconsent/internal/consent/service"
	"github.com/aussiebroadwan/aisconsent/pkg/aissdk"
	"github.com/aussiebroadwan/aisconsent/pkg/slogx"
)

// errorScope selects the consent-unknown flavour: account endpoints address
// the consent through the Consent-ID header (403), consent endpoints through
// the path (404).
type errorScope int

const (
	scopeConsentPath errorScope = iota
	scopeConsentHeader
)

// apiError maps a service error onto the NextGenPSD2 message it is reported
// as. Unknown errors are internal.
func apiError(err error, scope errorScope) *aissdk.TppError {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return aissdk.ErrFormat.WithText(err.Error())
	case errors.Is(err, service.ErrConsentUnknown):
		if scope == scopeConsentHeader {
			return aissdk.ErrConsentUnknown
		}
		return aissdk.ErrConsentNotFound
	case errors.Is(err, service.ErrTppMismatch):
		return aissdk.ErrConsentUnknown
	case errors.Is(err, service.ErrConsentExpired):
		return aissdk.ErrConsentExpired
	case errors.Is(err, service.ErrConsentInvalid):
		return aissdk.ErrConsentInvalid.WithText("the consent is not valid")
	case errors.Is(err, service.ErrAccessDenied):
		return aissdk.ErrConsentInvalid
	case errors.Is(err, service.ErrConsentExhausted):
		return aissdk.ErrAccessExceeded
	case errors.Is(err, service.ErrResourceUnknown), errors.Is(err, service.ErrAuthorisationUnknown):
		return aissdk.ErrResourceUnknown
	case errors.Is(err, service.ErrAuthorisationExpired):
		return aissdk.ErrAuthorisationExpired
	case errors.Is(err, service.ErrInvalidStatusTransition):
		return aissdk.ErrStatusInvalid
	case errors.Is(err, service.ErrConcurrentModification):
		return aissdk.ErrConflict
	case errors.Is(err, service.ErrScaFailed):
		return aissdk.ErrCredentialsInvalid
	case errors.Is(err, service.ErrScaMethodUnknown):
		return aissdk.ErrScaMethodUnknown
	case errors.Is(err, service.ErrServiceUnsupported):
		return aissdk.ErrServiceInvalid.WithText(err.Error())
	}
	return aissdk.ErrInternal
}

// writeServiceError writes err as a tppMessages envelope. Internal errors
// are logged; their text never reaches the caller.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error, scope errorScope) {
	e := apiError(err, scope)
	if e.StatusCode >= http.StatusInternalServerError {
		slogx.FromContext(ctx).Error("request failed", "error", err)
	}
	e.WriteError(w)
}
