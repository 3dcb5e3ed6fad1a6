package http

import (
	"context"
	"net/http"
	"testing"

	"github.com/aussiebroadwan/aisconsent/pkg/aissdk"
	"github.com/stretchr/testify/require"
)

func requireTppError(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	var perr *aissdk.TppError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, status, perr.StatusCode, perr.Error())
	require.Equal(t, code, perr.Code)
}

func TestRedirectFlow(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	tpp := s.tpp(t)
	aspsp := s.aspsp(t)

	created, err := tpp.CreateConsent(ctx, dedicatedRequest("2026-06-30", 4), aissdk.ConsentOptions{
		PsuID:       "psu-1",
		RedirectURI: "https://tpp.example/ok",
	})
	require.NoError(t, err)
	require.Equal(t, "received", created.ConsentStatus)
	require.NotEmpty(t, created.ConsentID)
	require.Contains(t, created.Links, "startAuthorisation")

	started, err := tpp.StartAuthorisation(ctx, created.ConsentID, aissdk.StartAuthorisationRequest{}, aissdk.ConsentOptions{PsuID: "psu-1"})
	require.NoError(t, err)
	require.Equal(t, "received", started.ScaStatus)
	require.Contains(t, started.Links, "scaRedirect")
	require.Contains(t, started.Links, "scaStatus")

	redirectID, encrypted := redirectIDs(t, started.Links["scaRedirect"].Href)
	require.Equal(t, started.AuthorisationID, redirectID)
	require.NotEqual(t, created.ConsentID, encrypted)

	resolved, err := aspsp.ResolveRedirect(ctx, encrypted, redirectID)
	require.NoError(t, err)
	require.Equal(t, created.ConsentID, resolved.Consent.ConsentID)
	require.Equal(t, "tpp-1", resolved.Consent.TppID)
	require.Equal(t, started.AuthorisationID, resolved.Authorisation.AuthorisationID)
	require.Equal(t, "REDIRECT", resolved.Authorisation.ScaApproach)

	status, err := aspsp.UpdatePsuScaStatus(ctx, created.ConsentID, started.AuthorisationID, "finalised")
	require.NoError(t, err)
	require.Equal(t, "finalised", status.ScaStatus)

	sca, err := tpp.GetScaStatus(ctx, created.ConsentID, started.AuthorisationID)
	require.NoError(t, err)
	require.Equal(t, "finalised", sca.ScaStatus)

	cs, err := tpp.GetConsentStatus(ctx, created.ConsentID)
	require.NoError(t, err)
	require.Equal(t, "valid", cs.ConsentStatus)

	t.Run("balances are read and counted", func(t *testing.T) {
		b, err := tpp.GetBalances(ctx, created.ConsentID, "acc-1")
		require.NoError(t, err)
		require.Equal(t, "DE89370400440532013000", b.Account.IBAN)
		require.Empty(t, b.Account.ResourceID)
		require.NotEmpty(t, b.Balances)

		view, err := aspsp.GetPsuConsent(ctx, created.ConsentID)
		require.NoError(t, err)
		require.Equal(t, 3, view.Usage["/v1/accounts/acc-1/balances"])
		require.Greater(t, view.Version, int64(0))
	})

	t.Run("card numbers are masked", func(t *testing.T) {
		list, err := tpp.ListCardAccounts(ctx, created.ConsentID)
		require.NoError(t, err)
		require.Len(t, list.CardAccounts, 1)
		require.Equal(t, "card-1", list.CardAccounts[0].ResourceID)
		require.Equal(t, "411111xxxxxx1111", list.CardAccounts[0].MaskedPAN)
	})

	t.Run("TPP view masks the card reference", func(t *testing.T) {
		info, err := tpp.GetConsent(ctx, created.ConsentID)
		require.NoError(t, err)
		require.Equal(t, "valid", info.ConsentStatus)
		var masked []string
		for _, ref := range info.Access.Accounts {
			require.Empty(t, ref.PAN)
			if ref.MaskedPAN != "" {
				masked = append(masked, ref.MaskedPAN)
			}
		}
		require.Equal(t, []string{"411111xxxxxx1111"}, masked)
	})

	t.Run("account outside the consent", func(t *testing.T) {
		_, err := tpp.GetBalances(ctx, created.ConsentID, "acc-2")
		require.Error(t, err)
		var perr *aissdk.TppError
		require.ErrorAs(t, err, &perr)
		require.Contains(t, []int{http.StatusUnauthorized, http.StatusNotFound}, perr.StatusCode)
	})
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	consentID := s.validConsent(t, 4)

	t.Run("missing token", func(t *testing.T) {
		anon := s.tpp(t).WithToken("")
		_, err := anon.GetConsentStatus(ctx, consentID)
		requireTppError(t, err, http.StatusUnauthorized, "TOKEN_INVALID")
	})

	t.Run("garbage token", func(t *testing.T) {
		bad := s.tpp(t).WithToken("not-a-jwt")
		_, err := bad.GetConsentStatus(ctx, consentID)
		requireTppError(t, err, http.StatusUnauthorized, "TOKEN_INVALID")
	})

	t.Run("TPP token on the PSU-API", func(t *testing.T) {
		_, err := s.tpp(t).GetPsuConsent(ctx, consentID)
		require.Error(t, err)
		var perr *aissdk.TppError
		require.ErrorAs(t, err, &perr)
		require.Equal(t, http.StatusForbidden, perr.StatusCode)
	})

	t.Run("ASPSP token without ais scope on TPP routes", func(t *testing.T) {
		_, err := s.aspsp(t).GetConsentStatus(ctx, consentID)
		require.Error(t, err)
		var perr *aissdk.TppError
		require.ErrorAs(t, err, &perr)
		require.Equal(t, http.StatusForbidden, perr.StatusCode)
	})

	t.Run("consent of another TPP", func(t *testing.T) {
		other := s.client(t, "tpp-2", "ais")
		_, err := other.GetBalances(ctx, consentID, "acc-1")
		requireTppError(t, err, http.StatusForbidden, aissdk.CodeConsentUnknown)
	})
}

func TestConsentErrors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	tpp := s.tpp(t)

	t.Run("unknown consent on the path", func(t *testing.T) {
		_, err := tpp.GetConsent(ctx, "00000000-0000-0000-0000-000000000000")
		requireTppError(t, err, http.StatusNotFound, aissdk.CodeConsentUnknown)
	})

	t.Run("unknown consent in the header", func(t *testing.T) {
		_, err := tpp.ListAccounts(ctx, "00000000-0000-0000-0000-000000000000", false)
		requireTppError(t, err, http.StatusForbidden, aissdk.CodeConsentUnknown)
	})

	t.Run("missing Consent-ID", func(t *testing.T) {
		_, err := tpp.ListAccounts(ctx, "", false)
		requireTppError(t, err, http.StatusBadRequest, aissdk.CodeFormatError)
	})

	t.Run("validUntil in the past", func(t *testing.T) {
		_, err := tpp.CreateConsent(ctx, dedicatedRequest("2020-01-01", 4), aissdk.ConsentOptions{PsuID: "psu-1"})
		requireTppError(t, err, http.StatusBadRequest, aissdk.CodeFormatError)
	})

	t.Run("malformed validUntil", func(t *testing.T) {
		_, err := tpp.CreateConsent(ctx, dedicatedRequest("next tuesday", 4), aissdk.ConsentOptions{PsuID: "psu-1"})
		requireTppError(t, err, http.StatusBadRequest, aissdk.CodeFormatError)
	})

	t.Run("deleting twice", func(t *testing.T) {
		created, err := tpp.CreateConsent(ctx, dedicatedRequest("2026-06-30", 4), aissdk.ConsentOptions{PsuID: "psu-1"})
		require.NoError(t, err)

		require.NoError(t, tpp.DeleteConsent(ctx, created.ConsentID))
		err = tpp.DeleteConsent(ctx, created.ConsentID)
		requireTppError(t, err, http.StatusConflict, aissdk.CodeStatusInvalid)

		cs, err := tpp.GetConsentStatus(ctx, created.ConsentID)
		require.NoError(t, err)
		require.Equal(t, "terminatedByTpp", cs.ConsentStatus)
	})
}

func TestConsentExhaustion(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	tpp := s.tpp(t)
	consentID := s.validConsent(t, 1)

	_, err := tpp.GetBalances(ctx, consentID, "acc-1")
	require.NoError(t, err)

	_, err = tpp.GetBalances(ctx, consentID, "acc-1")
	requireTppError(t, err, http.StatusTooManyRequests, aissdk.CodeAccessExceeded)

	t.Run("PSU-initiated reads are not counted", func(t *testing.T) {
		withPsu := *tpp
		withPsu.PsuIPAddress = "192.0.2.10"
		for range 3 {
			_, err := withPsu.GetBalances(ctx, consentID, "acc-1")
			require.NoError(t, err)
		}
	})

	t.Run("other endpoints keep their own allowance", func(t *testing.T) {
		acc, err := tpp.GetAccount(ctx, consentID, "acc-1")
		require.NoError(t, err)
		require.Equal(t, "acc-1", acc.Account.ResourceID)
	})
}

func TestPsuAPIVersioning(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	aspsp := s.aspsp(t)
	consentID := s.validConsent(t, 4)

	view, err := aspsp.GetPsuConsent(ctx, consentID)
	require.NoError(t, err)

	update := aissdk.UpdateAspspAccessRequest{
		Access: aissdk.AccountAccess{
			Accounts: []aissdk.AccountReference{
				{IBAN: "DE89370400440532013000", Currency: "EUR", ResourceID: "acc-1"},
			},
		},
	}

	t.Run("stale If-Match", func(t *testing.T) {
		_, err := aspsp.UpdateAspspAccess(ctx, consentID, update, view.Version+7)
		requireTppError(t, err, http.StatusConflict, aissdk.CodeConflict)
	})

	t.Run("current If-Match", func(t *testing.T) {
		out, err := aspsp.UpdateAspspAccess(ctx, consentID, update, view.Version)
		require.NoError(t, err)
		require.Greater(t, out.Version, view.Version)
		require.Len(t, out.AspspAccess.Accounts, 1)
		require.Equal(t, "acc-1", out.AspspAccess.Accounts[0].ResourceID)
	})

	t.Run("revoke", func(t *testing.T) {
		require.NoError(t, aspsp.RevokeConsent(ctx, consentID))

		cs, err := s.tpp(t).GetConsentStatus(ctx, consentID)
		require.NoError(t, err)
		require.Equal(t, "revokedByPsu", cs.ConsentStatus)

		_, err = s.tpp(t).GetBalances(ctx, consentID, "acc-1")
		requireTppError(t, err, http.StatusUnauthorized, aissdk.CodeConsentInvalid)
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	anon := aissdk.NewClient(s.srv.URL, "")

	live, err := anon.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := anon.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Store)
	require.Equal(t, "ok", ready.Checks.Keys)
}
