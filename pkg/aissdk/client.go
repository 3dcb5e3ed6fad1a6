package aissdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Header names used by the AIS API.
const (
	HeaderConsentID      = "Consent-ID"
	HeaderRequestID      = "X-Request-ID"
	HeaderPsuID          = "PSU-ID"
	HeaderPsuCorporateID = "PSU-Corporate-ID"
	HeaderPsuIPAddress   = "PSU-IP-Address"
	HeaderTppRedirectURI = "TPP-Redirect-URI"
	HeaderTppNokRedirect = "TPP-Nok-Redirect-URI"
	HeaderIfMatch        = "If-Match"
	HeaderETag           = "ETag"
)

// Client talks to the consent service on behalf of one caller (a TPP or the
// ASPSP's PSU-facing frontend). Token is sent as a bearer token on every
// request except the health checks.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string

	// PsuIPAddress, when set, is forwarded on account reads. Requests that
	// carry it are PSU-initiated and do not consume the consent's daily
	// allowance.
	PsuIPAddress string
}

// NewClient creates a client for baseURL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Token: token,
	}
}

// WithToken returns a copy of c authenticating with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.Token = token
	return &cp
}

// ============================================================================
// Health
// ============================================================================

// GetLiveness checks if the service is alive.
func (c *Client) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/livez", nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReadiness checks if the service is ready.
func (c *Client) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/readyz", nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ============================================================================
// Consents
// ============================================================================

// ConsentOptions carries the optional headers of a consent request.
type ConsentOptions struct {
	PsuID          string
	RedirectURI    string
	NokRedirectURI string
}

func (o ConsentOptions) headers() map[string]string {
	h := map[string]string{}
	if o.PsuID != "" {
		h[HeaderPsuID] = o.PsuID
	}
	if o.RedirectURI != "" {
		h[HeaderTppRedirectURI] = o.RedirectURI
	}
	if o.NokRedirectURI != "" {
		h[HeaderTppNokRedirect] = o.NokRedirectURI
	}
	return h
}

// CreateConsent creates an AIS consent.
func (c *Client) CreateConsent(ctx context.Context, req CreateConsentRequest, opts ConsentOptions) (*ConsentResponse, error) {
	var out ConsentResponse
	if err := c.do(ctx, http.MethodPost, "/v1/consents", req, opts.headers(), http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConsent reads a consent.
func (c *Client) GetConsent(ctx context.Context, consentID string) (*ConsentInformation, error) {
	var out ConsentInformation
	if err := c.do(ctx, http.MethodGet, "/v1/consents/"+url.PathEscape(consentID), nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConsentStatus reads a consent's status.
func (c *Client) GetConsentStatus(ctx context.Context, consentID string) (*ConsentStatusResponse, error) {
	var out ConsentStatusResponse
	path := "/v1/consents/" + url.PathEscape(consentID) + "/status"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConsent terminates a consent.
func (c *Client) DeleteConsent(ctx context.Context, consentID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/consents/"+url.PathEscape(consentID), nil, nil, http.StatusNoContent, nil)
}

// ============================================================================
// Authorisations
// ============================================================================

// StartAuthorisation starts an SCA flow for a consent.
func (c *Client) StartAuthorisation(ctx context.Context, consentID string, req StartAuthorisationRequest, opts ConsentOptions) (*StartScaProcessResponse, error) {
	var out StartScaProcessResponse
	path := "/v1/consents/" + url.PathEscape(consentID) + "/authorisations"
	if err := c.do(ctx, http.MethodPost, path, req, opts.headers(), http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAuthorisation submits one EMBEDDED or DECOUPLED SCA step.
func (c *Client) UpdateAuthorisation(ctx context.Context, consentID, authorisationID string, req UpdateAuthorisationRequest, opts ConsentOptions) (*StartScaProcessResponse, error) {
	var out StartScaProcessResponse
	if err := c.do(ctx, http.MethodPut, authorisationPath(consentID, authorisationID), req, opts.headers(), http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetScaStatus reads the SCA status of an authorisation.
func (c *Client) GetScaStatus(ctx context.Context, consentID, authorisationID string) (*ScaStatusResponse, error) {
	var out ScaStatusResponse
	if err := c.do(ctx, http.MethodGet, authorisationPath(consentID, authorisationID), nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func authorisationPath(consentID, authorisationID string) string {
	return "/v1/consents/" + url.PathEscape(consentID) + "/authorisations/" + url.PathEscape(authorisationID)
}

// ============================================================================
// Account information
// ============================================================================

func (c *Client) consentHeaders(consentID string) map[string]string {
	h := map[string]string{HeaderConsentID: consentID}
	if c.PsuIPAddress != "" {
		h[HeaderPsuIPAddress] = c.PsuIPAddress
	}
	return h
}

// ListAccounts lists the accounts covered by the consent.
func (c *Client) ListAccounts(ctx context.Context, consentID string, withBalance bool) (*AccountList, error) {
	var out AccountList
	path := "/v1/accounts"
	if withBalance {
		path += "?withBalance=true"
	}
	if err := c.do(ctx, http.MethodGet, path, nil, c.consentHeaders(consentID), http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccount reads one account.
func (c *Client) GetAccount(ctx context.Context, consentID, accountID string) (*AccountDetailsResponse, error) {
	var out AccountDetailsResponse
	path := "/v1/accounts/" + url.PathEscape(accountID)
	if err := c.do(ctx, http.MethodGet, path, nil, c.consentHeaders(consentID), http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBalances reads the balances of one account.
func (c *Client) GetBalances(ctx context.Context, consentID, accountID string) (*ReadBalanceResponse, error) {
	var out ReadBalanceResponse
	path := "/v1/accounts/" + url.PathEscape(accountID) + "/balances"
	if err := c.do(ctx, http.MethodGet, path, nil, c.consentHeaders(consentID), http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransactions reads the transactions of one account.
func (c *Client) GetTransactions(ctx context.Context, consentID, accountID, bookingStatus string) (*TransactionsResponse, error) {
	var out TransactionsResponse
	q := url.Values{}
	if bookingStatus != "" {
		q.Set("bookingStatus", bookingStatus)
	}
	path := "/v1/accounts/" + url.PathEscape(accountID) + "/transactions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	if err := c.do(ctx, http.MethodGet, path, nil, c.consentHeaders(consentID), http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransactionDetails reads one transaction.
func (c *Client) GetTransactionDetails(ctx context.Context, consentID, accountID, transactionID string) (*TransactionDetailsResponse, error) {
	var out TransactionDetailsResponse
	path := "/v1/accounts/" + url.PathEscape(accountID) + "/transactions/" + url.PathEscape(transactionID)
	if err := c.do(ctx, http.MethodGet, path, nil, c.consentHeaders(consentID), http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTrustedBeneficiaries reads the trusted beneficiaries of one account.
func (c *Client) GetTrustedBeneficiaries(ctx context.Context, consentID, accountID string) (*TrustedBeneficiariesResponse, error) {
	var out TrustedBeneficiariesResponse
	path := "/v1/accounts/" + url.PathEscape(accountID) + "/trusted-beneficiaries"
	if err := c.do(ctx, http.MethodGet, path, nil, c.consentHeaders(consentID), http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCardAccounts lists the card accounts covered by the consent.
func (c *Client) ListCardAccounts(ctx context.Context, consentID string) (*CardAccountList, error) {
	var out CardAccountList
	if err := c.do(ctx, http.MethodGet, "/v1/card-accounts", nil, c.consentHeaders(consentID), http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCardAccount reads one card account.
func (c *Client) GetCardAccount(ctx context.Context, consentID, accountID string) (*CardAccountDetailsResponse, error) {
	var out CardAccountDetailsResponse
	path := "/v1/card-accounts/" + url.PathEscape(accountID)
	if err := c.do(ctx, http.MethodGet, path, nil, c.consentHeaders(consentID), http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCardBalances reads the balances of one card account.
func (c *Client) GetCardBalances(ctx context.Context, consentID, accountID string) (*ReadBalanceResponse, error) {
	var out ReadBalanceResponse
	path := "/v1/card-accounts/" + url.PathEscape(accountID) + "/balances"
	if err := c.do(ctx, http.MethodGet, path, nil, c.consentHeaders(consentID), http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCardTransactions reads the transactions of one card account.
func (c *Client) GetCardTransactions(ctx context.Context, consentID, accountID string) (*TransactionsResponse, error) {
	var out TransactionsResponse
	path := "/v1/card-accounts/" + url.PathEscape(accountID) + "/transactions"
	if err := c.do(ctx, http.MethodGet, path, nil, c.consentHeaders(consentID), http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ============================================================================
// ASPSP PSU-API
// ============================================================================

// GetPsuConsent reads the ASPSP view of a consent. The returned version is
// the value to send as expectedVersion on updates.
func (c *Client) GetPsuConsent(ctx context.Context, consentID string) (*PsuConsentResponse, error) {
	var out PsuConsentResponse
	if err := c.do(ctx, http.MethodGet, "/psu-api/v1/consents/"+url.PathEscape(consentID), nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAspspAccess records the access the ASPSP confirmed. A zero
// expectedVersion skips the optimistic check.
func (c *Client) UpdateAspspAccess(ctx context.Context, consentID string, req UpdateAspspAccessRequest, expectedVersion int64) (*PsuConsentResponse, error) {
	var out PsuConsentResponse
	h := map[string]string{}
	if expectedVersion > 0 {
		h[HeaderIfMatch] = strconv.Quote(strconv.FormatInt(expectedVersion, 10))
	}
	path := "/psu-api/v1/consents/" + url.PathEscape(consentID) + "/account-access"
	if err := c.do(ctx, http.MethodPut, path, req, h, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePsuScaStatus moves an authorisation to status on behalf of the PSU
// (REDIRECT approach).
func (c *Client) UpdatePsuScaStatus(ctx context.Context, consentID, authorisationID, status string) (*ScaStatusResponse, error) {
	var out ScaStatusResponse
	path := "/psu-api/v1/consents/" + url.PathEscape(consentID) +
		"/authorisations/" + url.PathEscape(authorisationID) + "/status/" + url.PathEscape(status)
	if err := c.do(ctx, http.MethodPut, path, nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RevokeConsent revokes a consent on behalf of the PSU.
func (c *Client) RevokeConsent(ctx context.Context, consentID string) error {
	path := "/psu-api/v1/consents/" + url.PathEscape(consentID) + "/revoke"
	return c.do(ctx, http.MethodPut, path, nil, nil, http.StatusNoContent, nil)
}

// ResolveRedirect resolves the ids of an SCA redirect link.
func (c *Client) ResolveRedirect(ctx context.Context, encryptedConsentID, redirectID string) (*RedirectResponse, error) {
	var out RedirectResponse
	path := "/psu-api/v1/redirects/" + url.PathEscape(encryptedConsentID) + "/" + url.PathEscape(redirectID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ============================================================================
// Transport
// ============================================================================

// do sends a request, checks the status and decodes the body into out
// (skipped when out is nil).
func (c *Client) do(
	ctx context.Context,
	method, path string,
	body any,
	headers map[string]string,
	expectedStatus int,
	out any,
) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderRequestID, uuid.NewString())
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != expectedStatus {
		if perr := parseErrorResponse(resp, bodyBytes); perr != nil {
			return perr
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
