package http

import (
	"fmt"
	"net/url"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/internal/consent/service"
	"github.com/aussiebroadwan/aisconsent/pkg/aissdk"
)

// Wire values of the consent-level access flags.
const (
	wireAllAccounts              = "allAccounts"
	wireAllAccountsWithOwnerName = "allAccountsWithOwnerName"
)

func flagFromWire(name, v string) (domain.AccountAccessType, error) {
	switch v {
	case "":
		return "", nil
	case wireAllAccounts:
		return domain.AllAccounts, nil
	case wireAllAccountsWithOwnerName:
		return domain.AllAccountsWithOwnerName, nil
	}
	return "", fmt.Errorf("%w: %s must be %q or %q", service.ErrInvalidRequest, name, wireAllAccounts, wireAllAccountsWithOwnerName)
}

func flagToWire(v domain.AccountAccessType) string {
	switch v {
	case domain.AllAccounts:
		return wireAllAccounts
	case domain.AllAccountsWithOwnerName:
		return wireAllAccountsWithOwnerName
	}
	return ""
}

// accessFromWire converts an access object. TPPs address accounts by
// identifier only, so their resource ids are dropped; the ASPSP keeps them.
func accessFromWire(in aissdk.AccountAccess, fromAspsp bool) (domain.AccountAccess, domain.AccessFlags, error) {
	var (
		flags domain.AccessFlags
		err   error
	)
	if flags.AvailableAccounts, err = flagFromWire("availableAccounts", in.AvailableAccounts); err != nil {
		return domain.AccountAccess{}, flags, err
	}
	if flags.AvailableAccountsWithBalance, err = flagFromWire("availableAccountsWithBalance", in.AvailableAccountsWithBalance); err != nil {
		return domain.AccountAccess{}, flags, err
	}
	if flags.AllPsd2, err = flagFromWire("allPsd2", in.AllPsd2); err != nil {
		return domain.AccountAccess{}, flags, err
	}

	conv := func(refs []aissdk.AccountReference) []domain.AccountReference {
		if refs == nil {
			return nil
		}
		out := make([]domain.AccountReference, 0, len(refs))
		for _, r := range refs {
			out = append(out, refFromWire(r, fromAspsp))
		}
		return out
	}

	access := domain.AccountAccess{
		Accounts:     conv(in.Accounts),
		Balances:     conv(in.Balances),
		Transactions: conv(in.Transactions),
	}
	if ai := in.AdditionalInformation; ai != nil {
		access.AdditionalInformation = &domain.AdditionalInformationAccess{
			OwnerName:            conv(ai.OwnerName),
			TrustedBeneficiaries: conv(ai.TrustedBeneficiaries),
		}
	}
	return access, flags, nil
}

func refFromWire(r aissdk.AccountReference, fromAspsp bool) domain.AccountReference {
	ref := domain.AccountReference{
		IBAN:      r.IBAN,
		BBAN:      r.BBAN,
		PAN:       r.PAN,
		MaskedPAN: r.MaskedPAN,
		MSISDN:    r.MSISDN,
		Currency:  r.Currency,
	}
	if fromAspsp {
		ref.ResourceID = r.ResourceID
		ref.AspspAccountID = r.AspspAccountID
	}
	return ref
}

// refToWire always masks PANs. ASPSP-side keys are only shown to the ASPSP.
func refToWire(ref domain.AccountReference, forAspsp bool) aissdk.AccountReference {
	m := ref.Masked()
	out := aissdk.AccountReference{
		IBAN:      m.IBAN,
		BBAN:      m.BBAN,
		MaskedPAN: m.MaskedPAN,
		MSISDN:    m.MSISDN,
		Currency:  m.Currency,
	}
	if forAspsp {
		out.ResourceID = m.ResourceID
		out.AspspAccountID = m.AspspAccountID
	}
	return out
}

func accessToWire(a domain.AccountAccess, flags domain.AccessFlags, forAspsp bool) aissdk.AccountAccess {
	conv := func(refs []domain.AccountReference) []aissdk.AccountReference {
		if refs == nil {
			return nil
		}
		out := make([]aissdk.AccountReference, 0, len(refs))
		for _, r := range refs {
			out = append(out, refToWire(r, forAspsp))
		}
		return out
	}

	out := aissdk.AccountAccess{
		Accounts:                     conv(a.Accounts),
		Balances:                     conv(a.Balances),
		Transactions:                 conv(a.Transactions),
		AvailableAccounts:            flagToWire(flags.AvailableAccounts),
		AvailableAccountsWithBalance: flagToWire(flags.AvailableAccountsWithBalance),
		AllPsd2:                      flagToWire(flags.AllPsd2),
	}
	if ai := a.AdditionalInformation; ai != nil {
		out.AdditionalInformation = &aissdk.AdditionalInformationAccess{
			OwnerName:            conv(ai.OwnerName),
			TrustedBeneficiaries: conv(ai.TrustedBeneficiaries),
		}
	}
	return out
}

// parseDate parses a YYYY-MM-DD date. Empty is the zero time.
func parseDate(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", service.ErrInvalidRequest, name)
	}
	return t, nil
}

func consentLinks(consentID string) aissdk.Links {
	self := "/v1/consents/" + url.PathEscape(consentID)
	return aissdk.Links{
		"self":               {Href: self},
		"status":             {Href: self + "/status"},
		"startAuthorisation": {Href: self + "/authorisations"},
	}
}

func consentInformation(c domain.Consent) aissdk.ConsentInformation {
	info := aissdk.ConsentInformation{
		Access:             accessToWire(c.TppAccess, c.Flags, false),
		RecurringIndicator: c.RecurringIndicator,
		FrequencyPerDay:    c.FrequencyPerDay,
		ConsentStatus:      c.Status.Wire(),
		Links:              consentLinks(c.ExternalID),
	}
	if !c.ValidUntil.IsZero() {
		info.ValidUntil = domain.FormatDate(c.ValidUntil)
	}
	if c.LastActionDate != nil {
		info.LastActionDate = domain.FormatDate(*c.LastActionDate)
	}
	return info
}

func methodToWire(m domain.ScaMethod) aissdk.AuthenticationObject {
	return aissdk.AuthenticationObject{
		AuthenticationType:     m.Type,
		AuthenticationMethodID: m.ID,
		Name:                   m.Name,
	}
}

func scaProcessResponse(consentID string, res service.ScaResult) aissdk.StartScaProcessResponse {
	a := res.Authorisation
	out := aissdk.StartScaProcessResponse{
		ScaStatus:       a.ScaStatus.Wire(),
		AuthorisationID: a.ExternalID,
		Links: aissdk.Links{
			"scaStatus": {Href: "/v1/consents/" + url.PathEscape(consentID) + "/authorisations/" + url.PathEscape(a.ExternalID)},
		},
	}
	for _, m := range res.Methods {
		out.ScaMethods = append(out.ScaMethods, methodToWire(m))
	}
	if res.ChosenMethod != nil {
		chosen := methodToWire(*res.ChosenMethod)
		out.ChosenScaMethod = &chosen
	}
	if res.RedirectURL != "" {
		out.Links["scaRedirect"] = aissdk.Href{Href: res.RedirectURL}
	}
	switch {
	case a.ScaStatus == domain.ScaPsuAuthenticated && len(res.Methods) > 1:
		out.Links["selectAuthenticationMethod"] = out.Links["scaStatus"]
	case a.ScaStatus == domain.ScaMethodSelected:
		out.Links["authoriseTransaction"] = out.Links["scaStatus"]
	case a.ScaStatus == domain.ScaUnconfirmed:
		out.Links["confirmation"] = out.Links["scaStatus"]
	}
	return out
}

func psuAuthorisation(a domain.Authorisation) aissdk.PsuAuthorisation {
	out := aissdk.PsuAuthorisation{
		AuthorisationID: a.ExternalID,
		ScaStatus:       a.ScaStatus.Wire(),
		ScaApproach:     string(a.ScaApproach),
		RedirectURI:     a.RedirectURI,
		NokRedirectURI:  a.NokRedirectURI,
		ExpiresAt:       a.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if a.PSU != nil {
		out.PsuID = a.PSU.PsuID
	}
	return out
}

func psuConsent(c domain.Consent) aissdk.PsuConsentResponse {
	out := aissdk.PsuConsentResponse{
		ConsentID:          c.ExternalID,
		TppID:              c.TppID,
		ConsentStatus:      c.Status.Wire(),
		ConsentType:        string(c.Type()),
		RecurringIndicator: c.RecurringIndicator,
		FrequencyPerDay:    c.FrequencyPerDay,
		TppAccess:          accessToWire(c.TppAccess, c.Flags, true),
		AspspAccess:        accessToWire(c.AspspAccess, c.Flags, true),
		Version:            c.Version,
	}
	if !c.ValidUntil.IsZero() {
		out.ValidUntil = domain.FormatDate(c.ValidUntil)
	}
	if len(c.Usages) > 0 {
		out.Usage = make(map[string]int, len(c.Usages))
		for path, u := range c.Usages {
			out.Usage[path] = u.Remaining
		}
	}
	for _, a := range c.Authorisations {
		out.Authorisations = append(out.Authorisations, psuAuthorisation(a))
	}
	return out
}

func accountLinks(base, resourceID string, balances, transactions bool) aissdk.Links {
	links := aissdk.Links{}
	self := base + "/" + url.PathEscape(resourceID)
	if balances {
		links["balances"] = aissdk.Href{Href: self + "/balances"}
	}
	if transactions {
		links["transactions"] = aissdk.Href{Href: self + "/transactions"}
	}
	return links
}

func accountToWire(d service.AccountDetails) aissdk.AccountDetails {
	return aissdk.AccountDetails{
		ResourceID: d.Account.ResourceID,
		IBAN:       d.Reference.IBAN,
		BBAN:       d.Reference.BBAN,
		MSISDN:     d.Reference.MSISDN,
		Currency:   d.Account.Currency,
		Name:       d.Account.Name,
		OwnerName:  d.Account.OwnerName,
		Product:    d.Account.Product,
		Status:     d.Account.Status,
		Balances:   d.Balances,
		Links:      accountLinks("/v1/accounts", d.Account.ResourceID, true, true),
	}
}

func cardAccountToWire(d service.AccountDetails) aissdk.CardAccountDetails {
	return aissdk.CardAccountDetails{
		ResourceID: d.Account.ResourceID,
		MaskedPAN:  d.Reference.MaskedPAN,
		Currency:   d.Account.Currency,
		Name:       d.Account.Name,
		OwnerName:  d.Account.OwnerName,
		Product:    d.Account.Product,
		Status:     d.Account.Status,
		Balances:   d.Balances,
		Links:      accountLinks("/v1/card-accounts", d.Account.ResourceID, true, true),
	}
}
