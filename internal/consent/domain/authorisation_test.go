package domain_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		approach domain.ScaApproach
		from, to domain.ScaStatus
		ok       bool
	}{
		{domain.ScaRedirect, domain.ScaReceived, domain.ScaFinalised, true},
		{domain.ScaRedirect, domain.ScaStarted, domain.ScaUnconfirmed, true},
		{domain.ScaRedirect, domain.ScaUnconfirmed, domain.ScaStarted, false},
		{domain.ScaEmbedded, domain.ScaReceived, domain.ScaFinalised, false},
		{domain.ScaEmbedded, domain.ScaPsuAuthenticated, domain.ScaMethodSelected, true},
		{domain.ScaEmbedded, domain.ScaMethodSelected, domain.ScaFinalised, true},
		{domain.ScaDecoupled, domain.ScaStarted, domain.ScaUnconfirmed, true},
		{domain.ScaDecoupled, domain.ScaUnconfirmed, domain.ScaStarted, true},
		{domain.ScaDecoupled, domain.ScaReceived, domain.ScaFailed, true},
		{domain.ScaEmbedded, domain.ScaUnconfirmed, domain.ScaFailed, true},
		{domain.ScaRedirect, domain.ScaFinalised, domain.ScaFailed, false},
		{domain.ScaRedirect, domain.ScaFailed, domain.ScaFinalised, false},
		{domain.ScaApproach("SMOKE_SIGNAL"), domain.ScaReceived, domain.ScaFinalised, false},
	}
	for _, tt := range tests {
		name := string(tt.approach) + "/" + string(tt.from) + "->" + string(tt.to)
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tt.ok, domain.CanTransition(tt.approach, tt.from, tt.to))
		})
	}
}

func TestAuthorisationIsExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := domain.Authorisation{
		ScaStatus:            domain.ScaReceived,
		RedirectURLExpiresAt: now.Add(10 * time.Minute),
		ExpiresAt:            now.Add(time.Hour),
	}

	require.False(t, a.IsExpired(now))
	require.True(t, a.IsExpired(now.Add(11*time.Minute)), "redirect link expired")
	require.True(t, a.IsExpired(now.Add(2*time.Hour)))

	a.ScaStatus = domain.ScaFinalised
	require.False(t, a.IsExpired(now.Add(2*time.Hour)), "terminal authorisations never expire")

	a.ScaStatus = domain.ScaFailed
	a.ExpiredAt = now.Add(time.Hour)
	require.True(t, a.IsExpired(now.Add(2*time.Hour)), "failed by housekeeping stays expired")
}

func TestParseScaStatus(t *testing.T) {
	for _, in := range []string{"psuIdentified", "PSUIDENTIFIED"} {
		s, ok := domain.ParseScaStatus(in)
		require.True(t, ok)
		require.Equal(t, domain.ScaPsuIdentified, s)
	}
	_, ok := domain.ParseScaStatus("done")
	require.False(t, ok)
	require.Equal(t, "scaMethodSelected", domain.ScaMethodSelected.Wire())
}
