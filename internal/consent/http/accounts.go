package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/aisconsent/internal/consent/service"
	"github.com/aussiebroadwan/aisconsent/pkg/aissdk"
	"github.com/aussiebroadwan/aisconsent/pkg/httpx"
)

// AccountsHandler serves the account information reads. One instance
// serves /v1/accounts and another /v1/card-accounts.
type AccountsHandler struct {
	AccountService *service.AccountService
	Card           bool
}

// readRequest builds the service request from the Consent-ID header and
// the path. A request carrying PSU-IP-Address was initiated by the PSU.
func (h *AccountsHandler) readRequest(w http.ResponseWriter, r *http.Request) (service.ReadRequest, bool) {
	consentID := r.Header.Get(aissdk.HeaderConsentID)
	if consentID == "" {
		aissdk.ErrFormat.WithText("Consent-ID header is required").WriteError(w)
		return service.ReadRequest{}, false
	}
	return service.ReadRequest{
		TppID:      httpx.TppIDFromContext(r.Context()),
		ConsentID:  consentID,
		AccountID:  r.PathValue("accountId"),
		RequestURI: r.URL.Path,
		IsFromTpp:  r.Header.Get(aissdk.HeaderPsuIPAddress) == "",
		Card:       h.Card,
	}, true
}

func withBalance(r *http.Request) (bool, error) {
	v := r.URL.Query().Get("withBalance")
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// HandleList handles GET /v1/accounts and GET /v1/card-accounts
//
//	@Summary		List Accounts
//	@Description	Lists the accounts the consent gives access to. Card numbers are always masked.
//	@Tags			Accounts
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string	true	"Bearer token with ais scope"
//	@Param			Consent-ID		header		string	true	"Consent identifier"
//	@Param			PSU-IP-Address	header		string	false	"Present when the PSU initiated the request"
//	@Param			withBalance		query		bool	false	"Include balances"
//	@Success		200				{object}	aissdk.AccountList
//	@Failure		401				{object}	aissdk.ErrorResponse
//	@Failure		403				{object}	aissdk.ErrorResponse
//	@Failure		429				{object}	aissdk.ErrorResponse	"daily access limit exhausted"
//	@Router			/v1/accounts [get]
//	@Router			/v1/card-accounts [get].
func (h *AccountsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rr, ok := h.readRequest(w, r)
	if !ok {
		return
	}
	balances, err := withBalance(r)
	if err != nil {
		aissdk.ErrFormat.WithText("withBalance must be a boolean").WriteError(w)
		return
	}

	list, err := h.AccountService.ListAccounts(ctx, rr, balances)
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentHeader)
		return
	}

	if h.Card {
		out := aissdk.CardAccountList{CardAccounts: []aissdk.CardAccountDetails{}}
		for _, d := range list {
			out.CardAccounts = append(out.CardAccounts, cardAccountToWire(d))
		}
		httpx.WriteJSON(w, http.StatusOK, out)
		return
	}
	out := aissdk.AccountList{Accounts: []aissdk.AccountDetails{}}
	for _, d := range list {
		out.Accounts = append(out.Accounts, accountToWire(d))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /v1/accounts/{accountId} and GET /v1/card-accounts/{accountId}
//
//	@Summary		Get Account
//	@Tags			Accounts
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string	true	"Bearer token with ais scope"
//	@Param			Consent-ID		header		string	true	"Consent identifier"
//	@Param			accountId		path		string	true	"Account resource id"
//	@Param			withBalance		query		bool	false	"Include balances"
//	@Success		200				{object}	aissdk.AccountDetailsResponse
//	@Failure		401				{object}	aissdk.ErrorResponse
//	@Failure		404				{object}	aissdk.ErrorResponse
//	@Failure		429				{object}	aissdk.ErrorResponse
//	@Router			/v1/accounts/{accountId} [get]
//	@Router			/v1/card-accounts/{accountId} [get].
func (h *AccountsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rr, ok := h.readRequest(w, r)
	if !ok {
		return
	}
	balances, err := withBalance(r)
	if err != nil {
		aissdk.ErrFormat.WithText("withBalance must be a boolean").WriteError(w)
		return
	}

	d, err := h.AccountService.GetAccount(ctx, rr, balances)
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentHeader)
		return
	}
	if h.Card {
		httpx.WriteJSON(w, http.StatusOK, aissdk.CardAccountDetailsResponse{CardAccount: cardAccountToWire(d)})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, aissdk.AccountDetailsResponse{Account: accountToWire(d)})
}

// HandleBalances handles GET /v1/accounts/{accountId}/balances
//
//	@Summary		Read Balances
//	@Tags			Accounts
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string	true	"Bearer token with ais scope"
//	@Param			Consent-ID		header		string	true	"Consent identifier"
//	@Param			accountId		path		string	true	"Account resource id"
//	@Success		200				{object}	aissdk.ReadBalanceResponse
//	@Failure		401				{object}	aissdk.ErrorResponse
//	@Failure		429				{object}	aissdk.ErrorResponse
//	@Router			/v1/accounts/{accountId}/balances [get]
//	@Router			/v1/card-accounts/{accountId}/balances [get].
func (h *AccountsHandler) HandleBalances(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rr, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	ref, balances, err := h.AccountService.GetBalances(ctx, rr)
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentHeader)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, aissdk.ReadBalanceResponse{
		Account:  refToWire(ref, false),
		Balances: balances,
	})
}

// HandleTransactions handles GET /v1/accounts/{accountId}/transactions
//
//	@Summary		Read Transactions
//	@Tags			Accounts
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string	true	"Bearer token with ais scope"
//	@Param			Consent-ID		header		string	true	"Consent identifier"
//	@Param			accountId		path		string	true	"Account resource id"
//	@Param			bookingStatus	query		string	false	"booked (default), pending or both"
//	@Success		200				{object}	aissdk.TransactionsResponse
//	@Failure		400				{object}	aissdk.ErrorResponse
//	@Failure		401				{object}	aissdk.ErrorResponse
//	@Failure		429				{object}	aissdk.ErrorResponse
//	@Router			/v1/accounts/{accountId}/transactions [get]
//	@Router			/v1/card-accounts/{accountId}/transactions [get].
func (h *AccountsHandler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rr, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	ref, report, err := h.AccountService.GetTransactions(ctx, rr, r.URL.Query().Get("bookingStatus"))
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentHeader)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, aissdk.TransactionsResponse{
		Account:      refToWire(ref, false),
		Transactions: report,
	})
}

// HandleTransactionDetails handles GET /v1/accounts/{accountId}/transactions/{transactionId}
//
//	@Summary		Read Transaction Details
//	@Tags			Accounts
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string	true	"Bearer token with ais scope"
//	@Param			Consent-ID		header		string	true	"Consent identifier"
//	@Param			accountId		path		string	true	"Account resource id"
//	@Param			transactionId	path		string	true	"Transaction id"
//	@Success		200				{object}	aissdk.TransactionDetailsResponse
//	@Failure		401				{object}	aissdk.ErrorResponse
//	@Failure		404				{object}	aissdk.ErrorResponse
//	@Router			/v1/accounts/{accountId}/transactions/{transactionId} [get].
func (h *AccountsHandler) HandleTransactionDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rr, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	tx, err := h.AccountService.GetTransactionDetails(ctx, rr, r.PathValue("transactionId"))
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentHeader)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, aissdk.TransactionDetailsResponse{TransactionsDetails: tx})
}

// HandleTrustedBeneficiaries handles GET /v1/accounts/{accountId}/trusted-beneficiaries
//
//	@Summary		Read Trusted Beneficiaries
//	@Tags			Accounts
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string	true	"Bearer token with ais scope"
//	@Param			Consent-ID		header		string	true	"Consent identifier"
//	@Param			accountId		path		string	true	"Account resource id"
//	@Success		200				{object}	aissdk.TrustedBeneficiariesResponse
//	@Failure		401				{object}	aissdk.ErrorResponse
//	@Router			/v1/accounts/{accountId}/trusted-beneficiaries [get].
func (h *AccountsHandler) HandleTrustedBeneficiaries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rr, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	list, err := h.AccountService.GetTrustedBeneficiaries(ctx, rr)
	if err != nil {
		writeServiceError(ctx, w, err, scopeConsentHeader)
		return
	}
	if list == nil {
		list = []aissdk.TrustedBeneficiary{}
	}
	httpx.WriteJSON(w, http.StatusOK, aissdk.TrustedBeneficiariesResponse{TrustedBeneficiaries: list})
}
