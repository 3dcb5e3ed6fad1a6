package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/internal/consent/service"
	"github.com/aussiebroadwan/aisconsent/pkg/aissdk"
	"github.com/aussiebroadwan/aisconsent/pkg/httpx"
)

// PsuAPIHandler serves the ASPSP's own PSU-facing frontend: it shows the
// PSU what a TPP asked for, records what the PSU confirmed and drives the
// REDIRECT flow.
type PsuAPIHandler struct {
	ConsentService       *service.ConsentService
	AuthorisationService *service.AuthorisationService
}

func etag(version int64) string {
	return strconv.Quote(strconv.FormatInt(version, 10))
}

// ifMatchVersion reads the expected version from If-Match. 0 means absent.
func ifMatchVersion(r *http.Request) (int64, error) {
	v := strings.TrimSpace(r.Header.Get(aissdk.HeaderIfMatch))
	if v == "" {
		return 0, nil
	}
	v = strings.Trim(strings.TrimPrefix(v, "W/"), `"`)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: If-Match must carry a consent version", service.ErrInvalidRequest)
	}
	return n, nil
}

// HandleGetConsent handles GET /psu-api/v1/consents/{consentId}
//
//	@Summary		Get Consent (ASPSP)
//	@Description	Returns the full consent: both access sets, usage counters and authorisations. The ETag carries the consent version.
//	@Tags			PSU-API
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string	true	"Bearer token with aspsp:read or aspsp:write scope"
//	@Param			consentId		path		string	true	"Consent identifier"
//	@Success		200				{object}	aissdk.PsuConsentResponse
//	@Header			200				{string}	ETag	"consent version"
//	@Failure		404				{object}	aissdk.ErrorResponse
//	@Router			/psu-api/v1/consents/{consentId} [get].
func (h *PsuAPIHandler) HandleGetConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c, err := h.ConsentService.GetPsuConsent(ctx, r.PathValue("consentId"))
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}
	w.Header().Set(aissdk.HeaderETag, etag(c.Version))
	httpx.WriteJSON(w, http.StatusOK, psuConsent(c))
}

// HandleUpdateAccess handles PUT /psu-api/v1/consents/{consentId}/account-access
//
//	@Summary		Confirm Account Access
//	@Description	Records the accounts the PSU confirmed. Every reference needs an identifier and a resourceId.
//	@Tags			PSU-API
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string							true	"Bearer token with aspsp:write scope"
//	@Param			consentId		path		string							true	"Consent identifier"
//	@Param			If-Match		header		string							false	"Expected consent version"
//	@Param			request			body		aissdk.UpdateAspspAccessRequest	true	"Confirmed access"
//	@Success		200				{object}	aissdk.PsuConsentResponse
//	@Failure		400				{object}	aissdk.ErrorResponse
//	@Failure		404				{object}	aissdk.ErrorResponse
//	@Failure		409				{object}	aissdk.ErrorResponse	"version mismatch or terminal consent"
//	@Router			/psu-api/v1/consents/{consentId}/account-access [put].
func (h *PsuAPIHandler) HandleUpdateAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	expected, err := ifMatchVersion(r)
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}
	var req aissdk.UpdateAspspAccessRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		aissdk.ErrFormat.WithText("invalid JSON in request body").WriteError(w)
		return
	}
	access, _, err := accessFromWire(req.Access, true)
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}
	upd := service.AspspAccessUpdate{Access: access, FrequencyPerDay: req.FrequencyPerDay}
	if req.ValidUntil != "" {
		validUntil, err := parseDate("validUntil", req.ValidUntil)
		if err != nil {
			writeServiceError(ctx, w, err, scopeConsentPath)
			return
		}
		upd.ValidUntil = &validUntil
	}

	c, err := h.ConsentService.UpdateAspspAccess(ctx, r.PathValue("consentId"), upd, expected)
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}
	w.Header().Set(aissdk.HeaderETag, etag(c.Version))
	httpx.WriteJSON(w, http.StatusOK, psuConsent(c))
}

// HandleUpdateScaStatus handles PUT /psu-api/v1/consents/{consentId}/authorisations/{authorisationId}/status/{status}
//
//	@Summary		Update SCA Status (ASPSP)
//	@Description	Moves an authorisation on behalf of the PSU, typically at the end of the REDIRECT flow. The consent status follows.
//	@Tags			PSU-API
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string	true	"Bearer token with aspsp:write scope"
//	@Param			consentId		path		string	true	"Consent identifier"
//	@Param			authorisationId	path		string	true	"Authorisation identifier"
//	@Param			status			path		string	true	"Target SCA status"
//	@Param			If-Match		header		string	false	"Expected authorisation version"
//	@Success		200				{object}	aissdk.ScaStatusResponse
//	@Failure		400				{object}	aissdk.ErrorResponse
//	@Failure		403				{object}	aissdk.ErrorResponse	"SCA expired"
//	@Failure		409				{object}	aissdk.ErrorResponse
//	@Router			/psu-api/v1/consents/{consentId}/authorisations/{authorisationId}/status/{status} [put].
func (h *PsuAPIHandler) HandleUpdateScaStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, ok := domain.ParseScaStatus(r.PathValue("status"))
	if !ok {
		aissdk.ErrFormat.WithText("unknown SCA status").WriteError(w)
		return
	}
	expected, err := ifMatchVersion(r)
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}

	a, err := h.AuthorisationService.UpdateScaStatus(ctx, r.PathValue("consentId"), r.PathValue("authorisationId"), status, expected)
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}
	w.Header().Set(aissdk.HeaderETag, etag(a.Version))
	httpx.WriteJSON(w, http.StatusOK, aissdk.ScaStatusResponse{ScaStatus: a.ScaStatus.Wire()})
}

// HandleRevoke handles PUT /psu-api/v1/consents/{consentId}/revoke
//
//	@Summary		Revoke Consent (PSU)
//	@Tags			PSU-API
//	@Security		BearerAuth
//	@Param			Authorization	header	string	true	"Bearer token with aspsp:write scope"
//	@Param			consentId		path	string	true	"Consent identifier"
//	@Success		204
//	@Failure		404	{object}	aissdk.ErrorResponse
//	@Failure		409	{object}	aissdk.ErrorResponse
//	@Router			/psu-api/v1/consents/{consentId}/revoke [put].
func (h *PsuAPIHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := h.ConsentService.RevokeByPsu(ctx, r.PathValue("consentId")); err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResolveRedirect handles GET /psu-api/v1/redirects/{encryptedConsentId}/{redirectId}
//
//	@Summary		Resolve SCA Redirect
//	@Description	Maps the ids of an SCA redirect link to the consent and authorisation the PSU is asked to approve.
//	@Tags			PSU-API
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization		header		string	true	"Bearer token with aspsp:read or aspsp:write scope"
//	@Param			encryptedConsentId	path		string	true	"Encrypted consent id from the redirect link"
//	@Param			redirectId			path		string	true	"Redirect id (authorisation id)"
//	@Success		200					{object}	aissdk.RedirectResponse
//	@Failure		403					{object}	aissdk.ErrorResponse	"SCA expired"
//	@Failure		404					{object}	aissdk.ErrorResponse
//	@Router			/psu-api/v1/redirects/{encryptedConsentId}/{redirectId} [get].
func (h *PsuAPIHandler) HandleResolveRedirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c, a, err := h.AuthorisationService.ResolveRedirect(ctx, r.PathValue("encryptedConsentId"), r.PathValue("redirectId"))
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, aissdk.RedirectResponse{
		Consent:       psuConsent(c),
		Authorisation: psuAuthorisation(a),
	})
}
