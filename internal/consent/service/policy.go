package service

import (
	"slices"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
)

// Policy is the ASPSP's consent and SCA policy. app.Profile builds it from
// the YAML profile.
type Policy struct {
	RedirectURLTTL   time.Duration
	AuthorisationTTL time.Duration

	// ConfirmationMandated requires an explicit authorisation confirmation
	// step: SCA ends in UNCONFIRMED and the TPP confirms with a code.
	ConfirmationMandated bool
	RedirectFlow         domain.ScaRedirectFlow
	Approaches           []domain.ScaApproach // first is the default

	MaxConsentValidityDays int // 0 means unbounded
	NotConfirmedConsentTTL time.Duration

	GlobalConsentSupported            bool
	AvailableAccountsConsentSupported bool
	FrequencyPerDayOneOff             int

	// ScaRedirectURL is a template with {redirect-id} and
	// {encrypted-consent-id} placeholders.
	ScaRedirectURL string

	UsageRetry RetryPolicy
}

// DefaultPolicy mirrors the built-in profile defaults.
func DefaultPolicy() Policy {
	return Policy{
		RedirectURLTTL:                    10 * time.Minute,
		AuthorisationTTL:                  24 * time.Hour,
		RedirectFlow:                      domain.RedirectFlowRedirect,
		Approaches:                        []domain.ScaApproach{domain.ScaRedirect, domain.ScaEmbedded, domain.ScaDecoupled},
		NotConfirmedConsentTTL:            24 * time.Hour,
		GlobalConsentSupported:            true,
		AvailableAccountsConsentSupported: true,
		FrequencyPerDayOneOff:             1,
		ScaRedirectURL:                    "http://localhost:4200/ais/{redirect-id}/{encrypted-consent-id}",
		UsageRetry:                        DefaultRetryPolicy,
	}
}

// DefaultApproach is the approach used when a TPP does not ask for one.
func (p Policy) DefaultApproach() domain.ScaApproach {
	if len(p.Approaches) == 0 {
		return domain.ScaRedirect
	}
	return p.Approaches[0]
}

// Supports reports whether the ASPSP offers approach a.
func (p Policy) Supports(a domain.ScaApproach) bool {
	return slices.Contains(p.Approaches, a)
}
