package service

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const psu1TOTPSecret = "JBSWY3DPEHPK3PXP"

func TestNewAuthorisation(t *testing.T) {
	t.Parallel()

	parent := domain.AuthorisationParent{
		ExternalID:        "consent-1",
		InstanceID:        "inst-1",
		TppRedirectURI:    "https://tpp.example/ok",
		TppNokRedirectURI: "https://tpp.example/nok",
	}

	t.Run("falls back to the parent's redirects", func(t *testing.T) {
		a := NewAuthorisation(parent, CreateAuthorisationRequest{Approach: domain.ScaRedirect},
			domain.AuthorisationConsent, testNow, 10*time.Minute, time.Hour)

		require.NotEmpty(t, a.ExternalID)
		require.Equal(t, "consent-1", a.ParentID)
		require.Equal(t, "inst-1", a.InstanceID)
		require.Equal(t, domain.ScaReceived, a.ScaStatus)
		require.Equal(t, "https://tpp.example/ok", a.RedirectURI)
		require.Equal(t, "https://tpp.example/nok", a.NokRedirectURI)
		require.Equal(t, testNow.Add(10*time.Minute), a.RedirectURLExpiresAt)
		require.Equal(t, testNow.Add(time.Hour), a.ExpiresAt)
		require.Nil(t, a.PSU)
	})

	t.Run("request values win", func(t *testing.T) {
		a := NewAuthorisation(parent, CreateAuthorisationRequest{
			ExternalID:  "auth-1",
			PSU:         &domain.PsuIdData{PsuID: "psu-1"},
			RedirectURI: "https://tpp.example/other",
		}, domain.AuthorisationConsent, testNow, time.Minute, time.Hour)

		require.Equal(t, "auth-1", a.ExternalID)
		require.Equal(t, "https://tpp.example/other", a.RedirectURI)
		require.Equal(t, "psu-1", a.PSU.PsuID)
	})
}

func TestRedirectAuthorisation(t *testing.T) {
	t.Parallel()

	access := domain.AccountAccess{
		Accounts: []domain.AccountReference{ibanAcc1},
		Balances: []domain.AccountReference{ibanAcc1},
	}

	t.Run("finalised sca makes the consent valid and confirms access", func(t *testing.T) {
		h := newHarness(t)
		ctx := testContext()
		c, err := h.consents.CreateConsent(ctx, "tpp-1", recurring(access, "psu-1"))
		require.NoError(t, err)

		res, err := h.auths.StartAuthorisation(ctx, "tpp-1", c.ExternalID, StartAuthorisationInput{})
		require.NoError(t, err)
		require.Equal(t, domain.ScaReceived, res.Authorisation.ScaStatus)
		require.Contains(t, res.RedirectURL, res.Authorisation.ExternalID)

		status, err := h.auths.GetScaStatus(ctx, "tpp-1", c.ExternalID, res.Authorisation.ExternalID)
		require.NoError(t, err)
		require.Equal(t, domain.ScaReceived, status)

		_, err = h.auths.UpdateScaStatus(ctx, c.ExternalID, res.Authorisation.ExternalID, domain.ScaPsuAuthenticated, 0)
		require.NoError(t, err)
		_, err = h.auths.UpdateScaStatus(ctx, c.ExternalID, res.Authorisation.ExternalID, domain.ScaFinalised, 0)
		require.NoError(t, err)

		c, err = h.consents.GetConsent(ctx, "tpp-1", c.ExternalID)
		require.NoError(t, err)
		require.Equal(t, domain.ConsentValid, c.Status)
		require.Equal(t, []domain.AccountReference{withID(ibanAcc1, "acc-1")}, c.AspspAccess.Balances)
		require.Equal(t, "acc-1", c.AspspAccess.Accounts[0].ResourceID)
	})

	t.Run("redirect link resolves until it expires", func(t *testing.T) {
		h := newHarness(t)
		ctx := testContext()
		c, err := h.consents.CreateConsent(ctx, "tpp-1", recurring(access, "psu-1"))
		require.NoError(t, err)
		res, err := h.auths.StartAuthorisation(ctx, "tpp-1", c.ExternalID, StartAuthorisationInput{})
		require.NoError(t, err)

		enc, err := h.auths.RedirectIDs.Encrypt(c.ExternalID)
		require.NoError(t, err)
		gotConsent, gotAuth, err := h.auths.ResolveRedirect(ctx, enc, res.Authorisation.ExternalID)
		require.NoError(t, err)
		require.Equal(t, c.ExternalID, gotConsent.ExternalID)
		require.Equal(t, res.Authorisation.ExternalID, gotAuth.ExternalID)

		_, _, err = h.auths.ResolveRedirect(ctx, "garbage", res.Authorisation.ExternalID)
		require.ErrorIs(t, err, ErrConsentUnknown)

		h.clock.Advance(h.policy.RedirectURLTTL + time.Second)
		_, _, err = h.auths.ResolveRedirect(ctx, enc, res.Authorisation.ExternalID)
		require.ErrorIs(t, err, ErrAuthorisationExpired)
		_, err = h.auths.GetScaStatus(ctx, "tpp-1", c.ExternalID, res.Authorisation.ExternalID)
		require.ErrorIs(t, err, ErrAuthorisationExpired)
	})

	t.Run("failed sca rejects a single level consent", func(t *testing.T) {
		h := newHarness(t)
		ctx := testContext()
		c, err := h.consents.CreateConsent(ctx, "tpp-1", recurring(access, "psu-1"))
		require.NoError(t, err)
		res, err := h.auths.StartAuthorisation(ctx, "tpp-1", c.ExternalID, StartAuthorisationInput{})
		require.NoError(t, err)

		_, err = h.auths.UpdateScaStatus(ctx, c.ExternalID, res.Authorisation.ExternalID, domain.ScaFailed, 0)
		require.NoError(t, err)

		status, err := h.consents.GetConsentStatus(ctx, "tpp-1", c.ExternalID)
		require.NoError(t, err)
		require.Equal(t, domain.ConsentRejected, status)

		_, err = h.auths.StartAuthorisation(ctx, "tpp-1", c.ExternalID, StartAuthorisationInput{})
		require.ErrorIs(t, err, ErrInvalidStatusTransition)
	})

	t.Run("stale authorisation version is a concurrent modification", func(t *testing.T) {
		h := newHarness(t)
		ctx := testContext()
		c, err := h.consents.CreateConsent(ctx, "tpp-1", recurring(access, "psu-1"))
		require.NoError(t, err)
		res, err := h.auths.StartAuthorisation(ctx, "tpp-1", c.ExternalID, StartAuthorisationInput{})
		require.NoError(t, err)

		_, err = h.auths.UpdateScaStatus(ctx, c.ExternalID, res.Authorisation.ExternalID, domain.ScaPsuAuthenticated, res.Authorisation.Version)
		require.NoError(t, err)
		_, err = h.auths.UpdateScaStatus(ctx, c.ExternalID, res.Authorisation.ExternalID, domain.ScaFinalised, res.Authorisation.Version)
		require.ErrorIs(t, err, ErrConcurrentModification)
	})

	t.Run("illegal transitions are refused", func(t *testing.T) {
		h := newHarness(t)
		ctx := testContext()
		c := h.validConsent(t, recurring(access, "psu-1"))
		auths, err := h.store.Authorisations().ListAuthorisationsByParent(ctx, c.ExternalID)
		require.NoError(t, err)
		require.Len(t, auths, 1)

		_, err = h.auths.UpdateScaStatus(ctx, c.ExternalID, auths[0].ExternalID, domain.ScaStarted, 0)
		require.ErrorIs(t, err, ErrInvalidStatusTransition)
	})

	t.Run("expired consent cannot start sca", func(t *testing.T) {
		h := newHarness(t, func(p *Policy) { p.NotConfirmedConsentTTL = 0 })
		ctx := testContext()
		c, err := h.consents.CreateConsent(ctx, "tpp-1", recurring(access, "psu-1"))
		require.NoError(t, err)

		h.clock.Set(c.ValidUntil.AddDate(0, 0, 1))
		_, err = h.auths.StartAuthorisation(ctx, "tpp-1", c.ExternalID, StartAuthorisationInput{})
		require.ErrorIs(t, err, ErrConsentExpired)
	})

	t.Run("other tpp and unknown ids", func(t *testing.T) {
		h := newHarness(t)
		ctx := testContext()
		c, err := h.consents.CreateConsent(ctx, "tpp-1", recurring(access, "psu-1"))
		require.NoError(t, err)

		_, err = h.auths.StartAuthorisation(ctx, "tpp-2", c.ExternalID, StartAuthorisationInput{})
		require.ErrorIs(t, err, ErrTppMismatch)
		_, err = h.auths.GetScaStatus(ctx, "tpp-1", c.ExternalID, "missing")
		require.ErrorIs(t, err, ErrAuthorisationUnknown)
		_, err = h.auths.StartAuthorisation(ctx, "tpp-1", c.ExternalID, StartAuthorisationInput{Approach: "OAUTH"})
		require.ErrorIs(t, err, ErrServiceUnsupported)
	})
}

func TestMultilevelAuthorisation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := testContext()
	in := recurring(domain.AccountAccess{Accounts: []domain.AccountReference{ibanAcc1}}, "")
	in.PSU = domain.PsuIdData{PsuID: "psu-1", PsuCorporateID: "corp-1"}
	c, err := h.consents.CreateConsent(ctx, "tpp-1", in)
	require.NoError(t, err)
	require.True(t, c.MultilevelScaRequired)

	c = h.authorise(t, c, domain.PsuIdData{PsuID: "psu-1", PsuCorporateID: "corp-1"})
	require.Equal(t, domain.ConsentPartiallyAuthorised, c.Status)
	require.False(t, c.AspspAccess.IsNotEmpty())

	c = h.authorise(t, c, domain.PsuIdData{PsuID: "psu-2", PsuCorporateID: "corp-1"})
	require.Equal(t, domain.ConsentValid, c.Status)
	require.Equal(t, "acc-1", c.AspspAccess.Accounts[0].ResourceID)
}

func TestEmbeddedAuthorisation(t *testing.T) {
	t.Parallel()

	access := domain.AccountAccess{Accounts: []domain.AccountReference{ibanAcc1}}
	psu := domain.PsuIdData{PsuID: "psu-1"}

	t.Run("password, method and tan finalise the consent", func(t *testing.T) {
		h := newHarness(t)
		ctx := testContext()
		c, err := h.consents.CreateConsent(ctx, "tpp-1", recurring(access, "psu-1"))
		require.NoError(t, err)

		res, err := h.auths.StartAuthorisation(ctx, "tpp-1", c.ExternalID, StartAuthorisationInput{
			PSU: psu, Approach: domain.ScaEmbedded, Password: "correct horse",
		})
		require.NoError(t, err)
		require.Equal(t, domain.ScaPsuAuthenticated, res.Authorisation.ScaStatus)
		require.Len(t, res.Methods, 1)
		authID := res.Authorisation.ExternalID

		_, err = h.auths.UpdateAuthorisation(ctx, "tpp-1", c.ExternalID, authID, UpdateAuthorisationInput{MethodID: "sms"})
		require.ErrorIs(t, err, ErrScaMethodUnknown)

		res, err = h.auths.UpdateAuthorisation(ctx, "tpp-1", c.ExternalID, authID, UpdateAuthorisationInput{MethodID: "totp"})
		require.NoError(t, err)
		require.Equal(t, domain.ScaMethodSelected, res.Authorisation.ScaStatus)
		require.Equal(t, "totp", res.ChosenMethod.ID)

		code, err := totp.GenerateCode(psu1TOTPSecret, h.clock.Now())
		require.NoError(t, err)
		res, err = h.auths.UpdateAuthorisation(ctx, "tpp-1", c.ExternalID, authID, UpdateAuthorisationInput{TAN: code})
		require.NoError(t, err)
		require.Equal(t, domain.ScaFinalised, res.Authorisation.ScaStatus)

		status, err := h.consents.GetConsentStatus(ctx, "tpp-1", c.ExternalID)
		require.NoError(t, err)
		require.Equal(t, domain.ConsentValid, status)
	})

	t.Run("wrong password fails the authorisation", func(t *testing.T) {
		h := newHarness(t)
		ctx := testContext()
		c, err := h.consents.CreateConsent(ctx, "tpp-1", recurring(access, "psu-1"))
		require.NoError(t, err)

		res, err := h.auths.StartAuthorisation(ctx, "tpp-1", c.ExternalID, StartAuthorisationInput{
			PSU: psu, Approach: domain.ScaEmbedded, Password: "wrong",
		})
		require.ErrorIs(t, err, ErrScaFailed)
		require.Equal(t, domain.ScaFailed, res.Authorisation.ScaStatus)

		stored, err := h.store.Authorisations().GetAuthorisation(ctx, res.Authorisation.ExternalID)
		require.NoError(t, err)
		require.Equal(t, domain.ScaFailed, stored.ScaStatus)

		status, err := h.consents.GetConsentStatus(ctx, "tpp-1", c.ExternalID)
		require.NoError(t, err)
		require.Equal(t, domain.ConsentRejected, status)
	})

	t.Run("wrong tan fails the authorisation", func(t *testing.T) {
		h := newHarness(t)
		ctx := testContext()
		c, err := h.consents.CreateConsent(ctx, "tpp-1", recurring(access, "psu-1"))
		require.NoError(t, err)

		res, err := h.auths.StartAuthorisation(ctx, "tpp-1", c.ExternalID, StartAuthorisationInput{PSU: psu, Approach: domain.ScaEmbedded})
		require.NoError(t, err)
		require.Equal(t, domain.ScaPsuIdentified, res.Authorisation.ScaStatus)
		authID := res.Authorisation.ExternalID

		_, err = h.auths.UpdateAuthorisation(ctx, "tpp-1", c.ExternalID, authID, UpdateAuthorisationInput{Password: "correct horse"})
		require.NoError(t, err)
		_, err = h.auths.UpdateAuthorisation(ctx, "tpp-1", c.ExternalID, authID, UpdateAuthorisationInput{MethodID: "totp"})
		require.NoError(t, err)

		res, err = h.auths.UpdateAuthorisation(ctx, "tpp-1", c.ExternalID, authID, UpdateAuthorisationInput{TAN: "000000"})
		require.ErrorIs(t, err, ErrScaFailed)
		require.Equal(t, domain.ScaFailed, res.Authorisation.ScaStatus)

		_, err = h.auths.UpdateAuthorisation(ctx, "tpp-1", c.ExternalID, authID, UpdateAuthorisationInput{TAN: "000000"})
		require.ErrorIs(t, err, ErrInvalidStatusTransition)
	})
}

func TestDecoupledAuthorisation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := testContext()
	c, err := h.consents.CreateConsent(ctx, "tpp-1",
		recurring(domain.AccountAccess{Accounts: []domain.AccountReference{ibanAcc1}}, "psu-1"))
	require.NoError(t, err)

	res, err := h.auths.StartAuthorisation(ctx, "tpp-1", c.ExternalID, StartAuthorisationInput{
		PSU: domain.PsuIdData{PsuID: "psu-1"}, Approach: domain.ScaDecoupled,
	})
	require.NoError(t, err)
	authID := res.Authorisation.ExternalID

	res, err = h.auths.UpdateAuthorisation(ctx, "tpp-1", c.ExternalID, authID, UpdateAuthorisationInput{Password: "correct horse"})
	require.NoError(t, err)
	require.Equal(t, domain.ScaStarted, res.Authorisation.ScaStatus)
	require.Equal(t, "totp", res.ChosenMethod.ID)

	_, err = h.auths.UpdateScaStatus(ctx, c.ExternalID, authID, domain.ScaFinalised, 0)
	require.NoError(t, err)
	status, err := h.consents.GetConsentStatus(ctx, "tpp-1", c.ExternalID)
	require.NoError(t, err)
	require.Equal(t, domain.ConsentValid, status)
}

func TestConfirmationMandated(t *testing.T) {
	t.Parallel()

	mandated := func(p *Policy) { p.ConfirmationMandated = true }
	access := domain.AccountAccess{Accounts: []domain.AccountReference{ibanAcc1}}

	t.Run("redirect sca ends with the tpp confirming a code", func(t *testing.T) {
		h := newHarness(t, mandated)
		ctx := testContext()
		c, err := h.consents.CreateConsent(ctx, "tpp-1", recurring(access, "psu-1"))
		require.NoError(t, err)
		res, err := h.auths.StartAuthorisation(ctx, "tpp-1", c.ExternalID, StartAuthorisationInput{})
		require.NoError(t, err)
		authID := res.Authorisation.ExternalID

		ok, err := h.auths.IsEndpointAccessible(ctx, authID, c.ExternalID, false)
		require.NoError(t, err)
		require.False(t, ok)

		_, err = h.auths.UpdateScaStatus(ctx, c.ExternalID, authID, domain.ScaFinalised, 0)
		require.ErrorIs(t, err, ErrInvalidStatusTransition)

		_, err = h.auths.UpdateScaStatus(ctx, c.ExternalID, authID, domain.ScaPsuAuthenticated, 0)
		require.NoError(t, err)
		a, err := h.auths.UpdateScaStatus(ctx, c.ExternalID, authID, domain.ScaStarted, 0)
		require.NoError(t, err)
		require.Empty(t, a.ConfirmationCode)
		a, err = h.auths.UpdateScaStatus(ctx, c.ExternalID, authID, domain.ScaUnconfirmed, 0)
		require.NoError(t, err)
		require.Len(t, a.ConfirmationCode, 8)

		ok, err = h.auths.IsEndpointAccessible(ctx, authID, c.ExternalID, true)
		require.NoError(t, err)
		require.True(t, ok)

		res, err = h.auths.UpdateAuthorisation(ctx, "tpp-1", c.ExternalID, authID, UpdateAuthorisationInput{ConfirmationCode: a.ConfirmationCode})
		require.NoError(t, err)
		require.Equal(t, domain.ScaFinalised, res.Authorisation.ScaStatus)

		ok, err = h.auths.IsEndpointAccessible(ctx, authID, c.ExternalID, true)
		require.NoError(t, err)
		require.False(t, ok)

		status, err := h.consents.GetConsentStatus(ctx, "tpp-1", c.ExternalID)
		require.NoError(t, err)
		require.Equal(t, domain.ConsentValid, status)
	})

	t.Run("oauth flow accepts authorisations not created yet", func(t *testing.T) {
		h := newHarness(t, mandated, func(p *Policy) { p.RedirectFlow = domain.RedirectFlowOAuth })
		ok, err := h.auths.IsEndpointAccessible(testContext(), "not-yet", "consent-1", false)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("unknown authorisation without oauth", func(t *testing.T) {
		h := newHarness(t, mandated)
		_, err := h.auths.IsEndpointAccessible(testContext(), "missing", "consent-1", false)
		require.ErrorIs(t, err, ErrAuthorisationUnknown)
	})

	t.Run("expired authorisation", func(t *testing.T) {
		h := newHarness(t)
		ctx := testContext()
		c, err := h.consents.CreateConsent(ctx, "tpp-1", recurring(access, "psu-1"))
		require.NoError(t, err)
		res, err := h.auths.StartAuthorisation(ctx, "tpp-1", c.ExternalID, StartAuthorisationInput{})
		require.NoError(t, err)

		ok, err := h.auths.IsEndpointAccessible(ctx, res.Authorisation.ExternalID, c.ExternalID, true)
		require.NoError(t, err)
		require.True(t, ok)

		h.clock.Advance(h.policy.AuthorisationTTL + time.Second)
		_, err = h.auths.IsEndpointAccessible(ctx, res.Authorisation.ExternalID, c.ExternalID, true)
		require.ErrorIs(t, err, ErrAuthorisationExpired)
	})
}
