package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/internal/consent/service"
	"github.com/aussiebroadwan/aisconsent/pkg/aissdk"
	"github.com/aussiebroadwan/aisconsent/pkg/httpx"
)

// AuthorisationsHandler serves the TPP side of consent SCA.
type AuthorisationsHandler struct {
	AuthorisationService *service.AuthorisationService
}

// HandleStart handles POST /v1/consents/{consentId}/authorisations
//
//	@Summary		Start Consent Authorisation
//	@Description	Starts an SCA flow for the consent. REDIRECT returns an scaRedirect link; EMBEDDED accepts the PSU password right away.
//	@Tags			Authorisations
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization		header		string								true	"Bearer token with ais scope"
//	@Param			consentId			path		string								true	"Consent identifier"
//	@Param			PSU-ID				header		string								false	"PSU identifier"
//	@Param			TPP-Redirect-URI	header		string								false	"Redirect after successful SCA"
//	@Param			request				body		aissdk.StartAuthorisationRequest	false	"Approach and optional PSU credentials"
//	@Success		201					{object}	aissdk.StartScaProcessResponse
//	@Failure		400					{object}	aissdk.ErrorResponse
//	@Failure		401					{object}	aissdk.ErrorResponse	"wrong PSU credentials, authorisation failed"
//	@Failure		404					{object}	aissdk.ErrorResponse
//	@Failure		409					{object}	aissdk.ErrorResponse
//	@Router			/v1/consents/{consentId}/authorisations [post].
func (h *AuthorisationsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	consentID := r.PathValue("consentId")

	var req aissdk.StartAuthorisationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		aissdk.ErrFormat.WithText("invalid JSON in request body").WriteError(w)
		return
	}

	in := service.StartAuthorisationInput{
		PSU:            psuFromHeaders(r),
		Approach:       domain.ScaApproach(strings.ToUpper(req.ScaApproach)),
		RedirectURI:    r.Header.Get(aissdk.HeaderTppRedirectURI),
		NokRedirectURI: r.Header.Get(aissdk.HeaderTppNokRedirect),
	}
	if req.PsuData != nil {
		in.Password = req.PsuData.Password
	}

	res, err := h.AuthorisationService.StartAuthorisation(ctx, httpx.TppIDFromContext(ctx), consentID, in)
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, scaProcessResponse(consentID, res))
}

// HandleUpdate handles PUT /v1/consents/{consentId}/authorisations/{authorisationId}
//
//	@Summary		Update Consent Authorisation
//	@Description	Submits one SCA step: PSU password, authentication method, TAN or the confirmation code of an unconfirmed authorisation.
//	@Tags			Authorisations
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string								true	"Bearer token with ais scope"
//	@Param			consentId		path		string								true	"Consent identifier"
//	@Param			authorisationId	path		string								true	"Authorisation identifier"
//	@Param			PSU-ID			header		string								false	"PSU identifier"
//	@Param			request			body		aissdk.UpdateAuthorisationRequest	true	"One SCA step"
//	@Success		200				{object}	aissdk.StartScaProcessResponse
//	@Failure		400				{object}	aissdk.ErrorResponse
//	@Failure		401				{object}	aissdk.ErrorResponse
//	@Failure		403				{object}	aissdk.ErrorResponse	"SCA expired"
//	@Failure		409				{object}	aissdk.ErrorResponse
//	@Router			/v1/consents/{consentId}/authorisations/{authorisationId} [put].
func (h *AuthorisationsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	consentID := r.PathValue("consentId")

	var req aissdk.UpdateAuthorisationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		aissdk.ErrFormat.WithText("invalid JSON in request body").WriteError(w)
		return
	}

	in := service.UpdateAuthorisationInput{
		PSU:              psuFromHeaders(r),
		MethodID:         req.AuthenticationMethodID,
		TAN:              req.ScaAuthenticationData,
		ConfirmationCode: req.ConfirmationCode,
	}
	if req.PsuData != nil {
		in.Password = req.PsuData.Password
	}

	res, err := h.AuthorisationService.UpdateAuthorisation(ctx, httpx.TppIDFromContext(ctx), consentID, r.PathValue("authorisationId"), in)
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, scaProcessResponse(consentID, res))
}

// HandleStatus handles GET /v1/consents/{consentId}/authorisations/{authorisationId}
//
//	@Summary		Get SCA Status
//	@Tags			Authorisations
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string	true	"Bearer token with ais scope"
//	@Param			consentId		path		string	true	"Consent identifier"
//	@Param			authorisationId	path		string	true	"Authorisation identifier"
//	@Success		200				{object}	aissdk.ScaStatusResponse
//	@Failure		403				{object}	aissdk.ErrorResponse	"SCA expired"
//	@Failure		404				{object}	aissdk.ErrorResponse
//	@Router			/v1/consents/{consentId}/authorisations/{authorisationId} [get].
func (h *AuthorisationsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := h.AuthorisationService.GetScaStatus(ctx, httpx.TppIDFromContext(ctx), r.PathValue("consentId"), r.PathValue("authorisationId"))
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentPath)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, aissdk.ScaStatusResponse{ScaStatus: status.Wire()})
}
