package http

import (
	"net/http"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/internal/consent/service"
	"github.com/aussiebroadwan/aisconsent/pkg/aissdk"
	"github.com/aussiebroadwan/aisconsent/pkg/httpx"
	"github.com/aussiebroadwan/aisconsent/pkg/slogx"
)

// ConsentsHandler serves the TPP consent endpoints.
type ConsentsHandler struct {
	ConsentService *service.ConsentService
}

// psuFromHeaders reads the optional PSU identification headers.
func psuFromHeaders(r *http.Request) domain.PsuIdData {
	return domain.PsuIdData{
		PsuID:          r.Header.Get(aissdk.HeaderPsuID),
		PsuCorporateID: r.Header.Get(aissdk.HeaderPsuCorporateID),
	}
}

// HandleCreate handles POST /v1/consents
//
//	@Summary		Create AIS Consent
//	@Description	Creates an account information consent in status received. The consent must be authorised by the PSU before it can be used.
//	@Tags			Consents
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization		header		string						true	"Bearer token with ais scope"
//	@Param			PSU-ID				header		string						false	"PSU identifier"
//	@Param			PSU-Corporate-ID	header		string						false	"Corporate identifier; all signatories must authorise"
//	@Param			TPP-Redirect-URI	header		string						false	"Redirect after successful SCA"
//	@Param			request				body		aissdk.CreateConsentRequest	true	"Consent request"
//	@Success		201					{object}	aissdk.ConsentResponse
//	@Failure		400					{object}	aissdk.ErrorResponse
//	@Failure		401					{object}	aissdk.ErrorResponse
//	@Router			/v1/consents [post].
func (h *ConsentsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req aissdk.CreateConsentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		aissdk.ErrFormat.WithText("invalid JSON in request body").WriteError(w)
		return
	}

	access, flags, err := accessFromWire(req.Access, false)
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}
	validUntil, err := parseDate("validUntil", req.ValidUntil)
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}

	c, err := h.ConsentService.CreateConsent(ctx, httpx.TppIDFromContext(ctx), service.CreateConsentInput{
		Access:                   access,
		Flags:                    flags,
		RecurringIndicator:       req.RecurringIndicator,
		ValidUntil:               validUntil,
		FrequencyPerDay:          req.FrequencyPerDay,
		CombinedServiceIndicator: req.CombinedServiceIndicator,
		PSU:                      psuFromHeaders(r),
		RedirectURI:              r.Header.Get(aissdk.HeaderTppRedirectURI),
		NokRedirectURI:           r.Header.Get(aissdk.HeaderTppNokRedirect),
		InternalRequestID:        r.Header.Get(slogx.RequestIDHeader),
	})
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}

	w.Header().Set("Location", "/v1/consents/"+c.ExternalID)
	httpx.WriteJSON(w, http.StatusCreated, aissdk.ConsentResponse{
		ConsentStatus: c.Status.Wire(),
		ConsentID:     c.ExternalID,
		Links:         consentLinks(c.ExternalID),
	})
}

// HandleGet handles GET /v1/consents/{consentId}
//
//	@Summary		Get Consent
//	@Description	Returns the consent as requested by the TPP together with its current status.
//	@Tags			Consents
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string	true	"Bearer token with ais scope"
//	@Param			consentId		path		string	true	"Consent identifier"
//	@Success		200				{object}	aissdk.ConsentInformation
//	@Failure		403				{object}	aissdk.ErrorResponse
//	@Failure		404				{object}	aissdk.ErrorResponse
//	@Router			/v1/consents/{consentId} [get].
func (h *ConsentsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c, err := h.ConsentService.GetConsent(ctx, httpx.TppIDFromContext(ctx), r.PathValue("consentId"))
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, consentInformation(c))
}

// HandleStatus handles GET /v1/consents/{consentId}/status
//
//	@Summary		Get Consent Status
//	@Tags			Consents
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string	true	"Bearer token with ais scope"
//	@Param			consentId		path		string	true	"Consent identifier"
//	@Success		200				{object}	aissdk.ConsentStatusResponse
//	@Failure		403				{object}	aissdk.ErrorResponse
//	@Failure		404				{object}	aissdk.ErrorResponse
//	@Router			/v1/consents/{consentId}/status [get].
func (h *ConsentsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := h.ConsentService.GetConsentStatus(ctx, httpx.TppIDFromContext(ctx), r.PathValue("consentId"))
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, aissdk.ConsentStatusResponse{ConsentStatus: status.Wire()})
}

// HandleDelete handles DELETE /v1/consents/{consentId}
//
//	@Summary		Terminate Consent
//	@Description	Terminates the consent on behalf of the TPP. Terminated consents cannot be used or reactivated.
//	@Tags			Consents
//	@Security		BearerAuth
//	@Param			Authorization	header	string	true	"Bearer token with ais scope"
//	@Param			consentId		path	string	true	"Consent identifier"
//	@Success		204
//	@Failure		404	{object}	aissdk.ErrorResponse
//	@Failure		409	{object}	aissdk.ErrorResponse	"consent already terminal"
//	@Router			/v1/consents/{consentId} [delete].
func (h *ConsentsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.ConsentService.TerminateConsent(ctx, httpx.TppIDFromContext(ctx), r.PathValue("consentId")); err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
