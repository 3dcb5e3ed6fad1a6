package domain_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/stretchr/testify/require"
)

func finalisedFor(psu string) domain.Authorisation {
	return domain.Authorisation{
		Type:      domain.AuthorisationConsent,
		ScaStatus: domain.ScaFinalised,
		PSU:       &domain.PsuIdData{PsuID: psu},
	}
}

func TestAuthorisedStatus(t *testing.T) {
	t.Run("no authorisations", func(t *testing.T) {
		c := &domain.Consent{}
		require.Equal(t, domain.ConsentReceived, c.AuthorisedStatus())
	})

	t.Run("single level", func(t *testing.T) {
		c := &domain.Consent{Authorisations: []domain.Authorisation{finalisedFor("a")}}
		require.Equal(t, domain.ConsentValid, c.AuthorisedStatus())
	})

	t.Run("exempted counts as finalised", func(t *testing.T) {
		c := &domain.Consent{Authorisations: []domain.Authorisation{{
			Type: domain.AuthorisationConsent, ScaStatus: domain.ScaExempted,
		}}}
		require.Equal(t, domain.ConsentValid, c.AuthorisedStatus())
	})

	t.Run("cancellation authorisations ignored", func(t *testing.T) {
		auth := finalisedFor("a")
		auth.Type = domain.AuthorisationPisCancellation
		c := &domain.Consent{Authorisations: []domain.Authorisation{auth}}
		require.Equal(t, domain.ConsentReceived, c.AuthorisedStatus())
	})

	t.Run("multilevel needs every psu", func(t *testing.T) {
		c := &domain.Consent{
			MultilevelScaRequired: true,
			PSUs:                  []domain.PsuIdData{{PsuID: "a"}, {PsuID: "b"}},
			Authorisations: []domain.Authorisation{
				finalisedFor("a"),
				{Type: domain.AuthorisationConsent, ScaStatus: domain.ScaReceived, PSU: &domain.PsuIdData{PsuID: "b"}},
			},
		}
		require.Equal(t, domain.ConsentPartiallyAuthorised, c.AuthorisedStatus())

		c.Authorisations[1].ScaStatus = domain.ScaFinalised
		require.Equal(t, domain.ConsentValid, c.AuthorisedStatus())
	})

	t.Run("multilevel same psu twice is not enough", func(t *testing.T) {
		c := &domain.Consent{
			MultilevelScaRequired: true,
			PSUs:                  []domain.PsuIdData{{PsuID: "a"}, {PsuID: "b"}},
			Authorisations:        []domain.Authorisation{finalisedFor("a"), finalisedFor("a")},
		}
		require.Equal(t, domain.ConsentPartiallyAuthorised, c.AuthorisedStatus())
	})
}

func TestConsentExpiry(t *testing.T) {
	c := &domain.Consent{ValidUntil: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}

	require.False(t, c.IsExpiredAt(time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)), "last day is inclusive")
	require.True(t, c.IsExpiredAt(time.Date(2025, 3, 2, 0, 0, 1, 0, time.UTC)))
	require.False(t, (&domain.Consent{}).IsExpiredAt(time.Now()))
}

func TestConsentType(t *testing.T) {
	dedicated := domain.AccountAccess{Accounts: []domain.AccountReference{{IBAN: "DE1"}}}

	require.Equal(t, domain.ConsentTypeGlobal, (&domain.Consent{Flags: domain.AccessFlags{AllPsd2: domain.AllAccounts}}).Type())
	require.Equal(t, domain.ConsentTypeAllAvailableAccounts, (&domain.Consent{Flags: domain.AccessFlags{AvailableAccounts: domain.AllAccounts}}).Type())
	require.Equal(t, domain.ConsentTypeBankOffered, (&domain.Consent{}).Type())
	require.Equal(t, domain.ConsentTypeDedicatedAccounts, (&domain.Consent{TppAccess: dedicated}).Type())
}

func TestConsentStatusWire(t *testing.T) {
	require.Equal(t, "partiallyAuthorised", domain.ConsentPartiallyAuthorised.Wire())
	require.Equal(t, "terminatedByTpp", domain.ConsentTerminatedByTpp.Wire())
	require.True(t, domain.ConsentExpired.IsTerminal())
	require.False(t, domain.ConsentValid.IsTerminal())
}
