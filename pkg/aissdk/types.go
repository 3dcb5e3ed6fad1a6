package aissdk

import (
	"github.com/shopspring/decimal"
)

// ============================================================================
// Account references and access
// ============================================================================

// AccountReference identifies an account by exactly one of IBAN, BBAN, PAN,
// masked PAN or MSISDN. ResourceID and AspspAccountID are only exchanged on
// the ASPSP PSU-API; TPPs never send them.
type AccountReference struct {
	IBAN           string `json:"iban,omitempty" example:"DE89370400440532013000"`
	BBAN           string `json:"bban,omitempty"`
	PAN            string `json:"pan,omitempty"`
	MaskedPAN      string `json:"maskedPan,omitempty" example:"411111xxxxxx1111"`
	MSISDN         string `json:"msisdn,omitempty"`
	Currency       string `json:"currency,omitempty" example:"EUR"`
	ResourceID     string `json:"resourceId,omitempty"`
	AspspAccountID string `json:"aspspAccountId,omitempty"`
}

// AdditionalInformationAccess grants owner-name and trusted-beneficiary reads.
type AdditionalInformationAccess struct {
	OwnerName            []AccountReference `json:"ownerName,omitempty"`
	TrustedBeneficiaries []AccountReference `json:"trustedBeneficiaries,omitempty"`
}

// AccountAccess is the access object of a consent request.
//
// AvailableAccounts, AvailableAccountsWithBalance and AllPsd2 take
// "allAccounts" or "allAccountsWithOwnerName" when set.
type AccountAccess struct {
	Accounts                     []AccountReference           `json:"accounts,omitempty"`
	Balances                     []AccountReference           `json:"balances,omitempty"`
	Transactions                 []AccountReference           `json:"transactions,omitempty"`
	AdditionalInformation        *AdditionalInformationAccess `json:"additionalInformation,omitempty"`
	AvailableAccounts            string                       `json:"availableAccounts,omitempty"`
	AvailableAccountsWithBalance string                       `json:"availableAccountsWithBalance,omitempty"`
	AllPsd2                      string                       `json:"allPsd2,omitempty"`
}

// ============================================================================
// Consents
// ============================================================================

// Href is a hypermedia link.
type Href struct {
	Href string `json:"href"`
}

// Links are the "_links" of a response keyed by relation name
// ("self", "status", "scaRedirect", "startAuthorisation", "scaStatus").
type Links map[string]Href

// CreateConsentRequest is the body of POST /v1/consents.
type CreateConsentRequest struct {
	Access                   AccountAccess `json:"access"`
	RecurringIndicator       bool          `json:"recurringIndicator"`
	ValidUntil               string        `json:"validUntil" example:"2026-12-31"`
	FrequencyPerDay          int           `json:"frequencyPerDay" example:"4"`
	CombinedServiceIndicator bool          `json:"combinedServiceIndicator"`
}

// ConsentResponse is returned by POST /v1/consents.
type ConsentResponse struct {
	ConsentStatus string                 `json:"consentStatus" example:"received"`
	ConsentID     string                 `json:"consentId"`
	ScaMethods    []AuthenticationObject `json:"scaMethods,omitempty"`
	Links         Links                  `json:"_links,omitempty"`
	PsuMessage    string                 `json:"psuMessage,omitempty"`
}

// ConsentInformation is returned by GET /v1/consents/{consentId}.
type ConsentInformation struct {
	Access             AccountAccess `json:"access"`
	RecurringIndicator bool          `json:"recurringIndicator"`
	ValidUntil         string        `json:"validUntil"`
	FrequencyPerDay    int           `json:"frequencyPerDay"`
	LastActionDate     string        `json:"lastActionDate"`
	ConsentStatus      string        `json:"consentStatus"`
	Links              Links         `json:"_links,omitempty"`
}

// ConsentStatusResponse is returned by GET /v1/consents/{consentId}/status.
type ConsentStatusResponse struct {
	ConsentStatus string `json:"consentStatus" example:"valid"`
}

// ============================================================================
// Authorisations
// ============================================================================

// PsuData carries PSU credentials for the EMBEDDED approach.
type PsuData struct {
	Password string `json:"password,omitempty"`
}

// StartAuthorisationRequest is the optional body of
// POST /v1/consents/{consentId}/authorisations.
type StartAuthorisationRequest struct {
	ScaApproach string   `json:"scaApproach,omitempty" example:"REDIRECT"`
	PsuData     *PsuData `json:"psuData,omitempty"`
}

// UpdateAuthorisationRequest is the body of
// PUT /v1/consents/{consentId}/authorisations/{authorisationId}. Exactly one
// step is sent per call.
type UpdateAuthorisationRequest struct {
	PsuData                *PsuData `json:"psuData,omitempty"`
	AuthenticationMethodID string   `json:"authenticationMethodId,omitempty"`
	ScaAuthenticationData  string   `json:"scaAuthenticationData,omitempty"`
	ConfirmationCode       string   `json:"confirmationCode,omitempty"`
}

// AuthenticationObject describes one SCA method offered to the PSU.
type AuthenticationObject struct {
	AuthenticationType     string `json:"authenticationType" example:"SMS_OTP"`
	AuthenticationMethodID string `json:"authenticationMethodId" example:"totp"`
	Name                   string `json:"name,omitempty"`
}

// StartScaProcessResponse is returned when an authorisation is started or
// updated.
type StartScaProcessResponse struct {
	ScaStatus       string                 `json:"scaStatus" example:"received"`
	AuthorisationID string                 `json:"authorisationId"`
	ScaMethods      []AuthenticationObject `json:"scaMethods,omitempty"`
	ChosenScaMethod *AuthenticationObject  `json:"chosenScaMethod,omitempty"`
	Links           Links                  `json:"_links,omitempty"`
	PsuMessage      string                 `json:"psuMessage,omitempty"`
}

// ScaStatusResponse is returned by GET .../authorisations/{authorisationId}.
type ScaStatusResponse struct {
	ScaStatus string `json:"scaStatus" example:"finalised"`
}

// ============================================================================
// Account information
// ============================================================================

// Amount is a currency amount. Amounts are serialised as JSON strings.
type Amount struct {
	Currency string          `json:"currency" example:"EUR"`
	Amount   decimal.Decimal `json:"amount" swaggertype:"string" example:"123.45"`
}

// Balance is one balance of an account.
type Balance struct {
	BalanceAmount Amount `json:"balanceAmount"`
	BalanceType   string `json:"balanceType" example:"closingBooked"`
	ReferenceDate string `json:"referenceDate,omitempty"`
}

// AccountDetails describes one payment account.
type AccountDetails struct {
	ResourceID string    `json:"resourceId"`
	IBAN       string    `json:"iban,omitempty"`
	BBAN       string    `json:"bban,omitempty"`
	MSISDN     string    `json:"msisdn,omitempty"`
	Currency   string    `json:"currency"`
	Name       string    `json:"name,omitempty"`
	OwnerName  string    `json:"ownerName,omitempty"`
	Product    string    `json:"product,omitempty"`
	Status     string    `json:"status,omitempty" example:"enabled"`
	Balances   []Balance `json:"balances,omitempty"`
	Links      Links     `json:"_links,omitempty"`
}

// CardAccountDetails describes one card account. The PAN is always masked.
type CardAccountDetails struct {
	ResourceID string    `json:"resourceId"`
	MaskedPAN  string    `json:"maskedPan"`
	Currency   string    `json:"currency"`
	Name       string    `json:"name,omitempty"`
	OwnerName  string    `json:"ownerName,omitempty"`
	Product    string    `json:"product,omitempty"`
	Status     string    `json:"status,omitempty"`
	Balances   []Balance `json:"balances,omitempty"`
	Links      Links     `json:"_links,omitempty"`
}

// AccountList is returned by GET /v1/accounts.
type AccountList struct {
	Accounts []AccountDetails `json:"accounts"`
}

// AccountDetailsResponse is returned by GET /v1/accounts/{account-id}.
type AccountDetailsResponse struct {
	Account AccountDetails `json:"account"`
}

// CardAccountList is returned by GET /v1/card-accounts.
type CardAccountList struct {
	CardAccounts []CardAccountDetails `json:"cardAccounts"`
}

// CardAccountDetailsResponse is returned by GET /v1/card-accounts/{account-id}.
type CardAccountDetailsResponse struct {
	CardAccount CardAccountDetails `json:"cardAccount"`
}

// ReadBalanceResponse is returned by the balances endpoints.
type ReadBalanceResponse struct {
	Account  AccountReference `json:"account"`
	Balances []Balance        `json:"balances"`
}

// Transaction is one booked or pending transaction.
type Transaction struct {
	TransactionID                     string            `json:"transactionId"`
	BookingDate                       string            `json:"bookingDate,omitempty"`
	ValueDate                         string            `json:"valueDate,omitempty"`
	TransactionAmount                 Amount            `json:"transactionAmount"`
	CreditorName                      string            `json:"creditorName,omitempty"`
	CreditorAccount                   *AccountReference `json:"creditorAccount,omitempty"`
	DebtorName                        string            `json:"debtorName,omitempty"`
	DebtorAccount                     *AccountReference `json:"debtorAccount,omitempty"`
	RemittanceInformationUnstructured string            `json:"remittanceInformationUnstructured,omitempty"`
}

// AccountReport groups transactions by booking status.
type AccountReport struct {
	Booked  []Transaction `json:"booked"`
	Pending []Transaction `json:"pending,omitempty"`
}

// TransactionsResponse is returned by the transactions endpoints.
type TransactionsResponse struct {
	Account      AccountReference `json:"account"`
	Transactions AccountReport    `json:"transactions"`
}

// TransactionDetailsResponse is returned by
// GET /v1/accounts/{account-id}/transactions/{transactionId}.
type TransactionDetailsResponse struct {
	TransactionsDetails Transaction `json:"transactionsDetails"`
}

// TrustedBeneficiary is a payee the PSU marked as trusted.
type TrustedBeneficiary struct {
	TrustedBeneficiaryID string           `json:"trustedBeneficiaryId"`
	CreditorAccount      AccountReference `json:"creditorAccount"`
	CreditorName         string           `json:"creditorName"`
	CreditorAlias        string           `json:"creditorAlias,omitempty"`
}

// TrustedBeneficiariesResponse is returned by
// GET /v1/accounts/{account-id}/trusted-beneficiaries.
type TrustedBeneficiariesResponse struct {
	TrustedBeneficiaries []TrustedBeneficiary `json:"trustedBeneficiaries"`
}

// ============================================================================
// ASPSP PSU-API
// ============================================================================

// UpdateAspspAccessRequest is the body of
// PUT /psu-api/v1/consents/{consentId}/account-access.
type UpdateAspspAccessRequest struct {
	Access          AccountAccess `json:"access"`
	ValidUntil      string        `json:"validUntil,omitempty"`
	FrequencyPerDay int           `json:"frequencyPerDay,omitempty"`
}

// PsuConsentResponse is the ASPSP view of a consent.
type PsuConsentResponse struct {
	ConsentID          string             `json:"consentId"`
	TppID              string             `json:"tppId"`
	ConsentStatus      string             `json:"consentStatus"`
	ConsentType        string             `json:"consentType"`
	RecurringIndicator bool               `json:"recurringIndicator"`
	ValidUntil         string             `json:"validUntil"`
	FrequencyPerDay    int                `json:"frequencyPerDay"`
	TppAccess          AccountAccess      `json:"tppAccess"`
	AspspAccess        AccountAccess      `json:"aspspAccess"`
	Usage              map[string]int     `json:"usage,omitempty"`
	Authorisations     []PsuAuthorisation `json:"authorisations,omitempty"`
	Version            int64              `json:"version"`
}

// PsuAuthorisation is the ASPSP view of an authorisation.
type PsuAuthorisation struct {
	AuthorisationID string `json:"authorisationId"`
	PsuID           string `json:"psuId,omitempty"`
	ScaStatus       string `json:"scaStatus"`
	ScaApproach     string `json:"scaApproach"`
	RedirectURI     string `json:"tppOkRedirectUri,omitempty"`
	NokRedirectURI  string `json:"tppNokRedirectUri,omitempty"`
	ExpiresAt       string `json:"authorisationExpirationTimestamp"`
}

// RedirectResponse is returned by GET /psu-api/v1/redirects/{encrypted-consent-id}/{redirect-id}.
type RedirectResponse struct {
	Consent       PsuConsentResponse `json:"consent"`
	Authorisation PsuAuthorisation   `json:"authorisation"`
}

// ============================================================================
// Health
// ============================================================================

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status" example:"ok"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the state of each dependency checked by /readyz.
type HealthChecks struct {
	Store string `json:"store" example:"ok"`
	Keys  string `json:"keys" example:"ok"`
}
