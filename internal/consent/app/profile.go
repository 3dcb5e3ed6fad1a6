package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/internal/consent/service"
	"gopkg.in/yaml.v3"
)

// Profile is the ASPSP profile file. Durations are milliseconds. Pointer
// fields distinguish "absent" from an explicit zero or false.
type Profile struct {
	RedirectURLExpirationTimeMs              *int64        `yaml:"redirectUrlExpirationTimeMs"`
	AuthorisationExpirationTimeMs            *int64        `yaml:"authorisationExpirationTimeMs"`
	AuthorisationConfirmationRequestMandated *bool         `yaml:"authorisationConfirmationRequestMandated"`
	ScaRedirectFlow                          string        `yaml:"scaRedirectFlow"`
	ScaApproaches                            []string      `yaml:"scaApproaches"`
	MaxConsentValidityDays                   *int          `yaml:"maxConsentValidityDays"`
	NotConfirmedConsentExpirationTimeMs      *int64        `yaml:"notConfirmedConsentExpirationTimeMs"`
	GlobalConsentSupported                   *bool         `yaml:"globalConsentSupported"`
	AvailableAccountsConsentSupported        *bool         `yaml:"availableAccountsConsentSupported"`
	FrequencyPerDayOneOff                    *int          `yaml:"frequencyPerDayOneOff"`
	ScaRedirectURL                           string        `yaml:"scaRedirectUrl"`
	UsageRetry                               *ProfileRetry `yaml:"usageRetry"`
}

// ProfileRetry bounds the retry of usage writes that lost a version check.
type ProfileRetry struct {
	Attempts  int   `yaml:"attempts"`
	BackoffMs int64 `yaml:"backoffMs"`
}

// LoadProfile reads the profile at path and converts it to a policy. An
// empty path yields the built-in defaults.
func LoadProfile(path string) (service.Policy, error) {
	if path == "" {
		return service.DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return service.Policy{}, fmt.Errorf("%w: read profile: %v", service.ErrConfiguration, err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a YAML profile. Unknown keys are rejected.
func ParseProfile(data []byte) (service.Policy, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return service.Policy{}, fmt.Errorf("%w: parse profile: %v", service.ErrConfiguration, err)
	}
	return p.Policy()
}

// Policy applies the profile over the defaults and validates the result.
func (p Profile) Policy() (service.Policy, error) {
	pol := service.DefaultPolicy()

	if p.RedirectURLExpirationTimeMs != nil {
		pol.RedirectURLTTL = millis(*p.RedirectURLExpirationTimeMs)
	}
	if p.AuthorisationExpirationTimeMs != nil {
		pol.AuthorisationTTL = millis(*p.AuthorisationExpirationTimeMs)
	}
	if p.NotConfirmedConsentExpirationTimeMs != nil {
		pol.NotConfirmedConsentTTL = millis(*p.NotConfirmedConsentExpirationTimeMs)
	}
	if p.AuthorisationConfirmationRequestMandated != nil {
		pol.ConfirmationMandated = *p.AuthorisationConfirmationRequestMandated
	}
	if p.MaxConsentValidityDays != nil {
		pol.MaxConsentValidityDays = *p.MaxConsentValidityDays
	}
	if p.GlobalConsentSupported != nil {
		pol.GlobalConsentSupported = *p.GlobalConsentSupported
	}
	if p.AvailableAccountsConsentSupported != nil {
		pol.AvailableAccountsConsentSupported = *p.AvailableAccountsConsentSupported
	}
	if p.FrequencyPerDayOneOff != nil {
		pol.FrequencyPerDayOneOff = *p.FrequencyPerDayOneOff
	}
	if p.ScaRedirectURL != "" {
		pol.ScaRedirectURL = p.ScaRedirectURL
	}
	if p.UsageRetry != nil {
		pol.UsageRetry = service.RetryPolicy{
			Attempts: p.UsageRetry.Attempts,
			Backoff:  millis(p.UsageRetry.BackoffMs),
		}
	}

	if p.ScaRedirectFlow != "" {
		flow := domain.ScaRedirectFlow(strings.ToUpper(p.ScaRedirectFlow))
		if flow != domain.RedirectFlowRedirect && flow != domain.RedirectFlowOAuth {
			return service.Policy{}, fmt.Errorf("%w: unknown scaRedirectFlow %q", service.ErrConfiguration, p.ScaRedirectFlow)
		}
		pol.RedirectFlow = flow
	}
	if len(p.ScaApproaches) > 0 {
		pol.Approaches = nil
		for _, s := range p.ScaApproaches {
			a := domain.ScaApproach(strings.ToUpper(s))
			if !a.Valid() {
				return service.Policy{}, fmt.Errorf("%w: unknown sca approach %q", service.ErrConfiguration, s)
			}
			pol.Approaches = append(pol.Approaches, a)
		}
	}

	if err := validatePolicy(pol); err != nil {
		return service.Policy{}, err
	}
	return pol, nil
}

func validatePolicy(p service.Policy) error {
	switch {
	case p.RedirectURLTTL <= 0:
		return fmt.Errorf("%w: redirectUrlExpirationTimeMs must be positive", service.ErrConfiguration)
	case p.AuthorisationTTL <= 0:
		return fmt.Errorf("%w: authorisationExpirationTimeMs must be positive", service.ErrConfiguration)
	case p.NotConfirmedConsentTTL <= 0:
		return fmt.Errorf("%w: notConfirmedConsentExpirationTimeMs must be positive", service.ErrConfiguration)
	case p.MaxConsentValidityDays < 0:
		return fmt.Errorf("%w: maxConsentValidityDays must not be negative", service.ErrConfiguration)
	case p.FrequencyPerDayOneOff < 1:
		return fmt.Errorf("%w: frequencyPerDayOneOff must be at least 1", service.ErrConfiguration)
	case p.UsageRetry.Attempts < 1 || p.UsageRetry.Backoff < 0:
		return fmt.Errorf("%w: usageRetry needs at least one attempt", service.ErrConfiguration)
	case !strings.Contains(p.ScaRedirectURL, "{redirect-id}") || !strings.Contains(p.ScaRedirectURL, "{encrypted-consent-id}"):
		return fmt.Errorf("%w: scaRedirectUrl needs {redirect-id} and {encrypted-consent-id}", service.ErrConfiguration)
	}
	return nil
}

func millis(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
