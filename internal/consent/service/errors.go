package service

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/aisconsent/internal/consent/store"
)

var (
	ErrConsentUnknown         = errors.New("consent unknown")
	ErrAccessDenied           = errors.New("access denied")
	ErrConsentExhausted       = errors.New("consent usage exhausted")
	ErrConsentExpired         = errors.New("consent expired")
	ErrAuthorisationExpired   = errors.New("authorisation expired")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrConfiguration          = errors.New("configuration error")

	ErrConsentInvalid          = errors.New("consent invalid")
	ErrAuthorisationUnknown    = errors.New("authorisation unknown")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrTppMismatch             = errors.New("consent belongs to another tpp")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrScaFailed               = errors.New("sca failed")
	ErrScaMethodUnknown        = errors.New("sca method unknown")
	ErrServiceUnsupported      = errors.New("service not supported by aspsp")
	ErrResourceUnknown         = errors.New("resource unknown")
)

// mapStoreErr translates store errors into service kinds; store.ErrNotFound
// becomes notFound.
func mapStoreErr(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return notFound
	case errors.Is(err, store.ErrVersionConflict):
		return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
	case errors.Is(err, store.ErrInvalidData):
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return err
}
