package service

import (
	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
)

// AccessRequest is one AIS read to authorise against a consent.
type AccessRequest struct {
	AccountID  string // resource id; empty for list endpoints
	TypeAccess domain.TypeAccess
	RequestURI string
	IsFromTpp  bool // no PSU-IP-Address on the request
}

// AccessValidator decides whether a consent covers a request. It never
// mutates the consent; consuming usage is left to the caller once the data
// fetch has succeeded.
type AccessValidator struct {
	Usage *UsageCounter
}

// Authorize resolves req.AccountID against the consent's effective access
// for req.TypeAccess and returns the granted reference with any PAN masked.
//
// A global consent grants ACCOUNT reads on any resource id; the bank fetch
// has to confirm the account belongs to the consent's PSU. Other reads need
// a reference in the matching list whose identity equals that of the
// account carrying the resource id.
func (v *AccessValidator) Authorize(c *domain.Consent, req AccessRequest) (domain.AccountReference, error) {
	if c == nil {
		return domain.AccountReference{}, ErrConsentUnknown
	}
	if !req.TypeAccess.Valid() {
		return domain.AccountReference{}, ErrInvalidRequest
	}

	view := EffectiveAccess(c)
	ref, ok := findGranted(view.Access, req.TypeAccess, req.AccountID)
	if !ok && view.IsGlobal() && req.TypeAccess == domain.TypeAccount && req.AccountID != "" {
		ref, ok = domain.AccountReference{ResourceID: req.AccountID}, true
	}
	if !ok {
		return domain.AccountReference{}, ErrAccessDenied
	}

	if err := v.checkRemaining(c, req); err != nil {
		return domain.AccountReference{}, err
	}
	return ref.Masked(), nil
}

// ListGrant is what a consent allows on an account list endpoint.
type ListGrant struct {
	// All is set for global and available-accounts consents: every account
	// of the consent's PSUs may be listed.
	All bool

	// WithBalance allows balances on every listed account; otherwise only
	// accounts in BalanceReferences get them.
	WithBalance bool

	References        []domain.AccountReference
	BalanceReferences []domain.AccountReference
}

// AuthorizeList authorises an account list read. References are masked and
// deduplicated by identity.
func (v *AccessValidator) AuthorizeList(c *domain.Consent, req AccessRequest) (ListGrant, error) {
	if c == nil {
		return ListGrant{}, ErrConsentUnknown
	}

	view := EffectiveAccess(c)
	flags := view.Flags
	grant := ListGrant{
		All:         flags.AllPsd2 != "" || flags.AvailableAccounts != "" || flags.AvailableAccountsWithBalance != "",
		WithBalance: flags.AllPsd2 != "" || flags.AvailableAccountsWithBalance != "",
	}
	if !grant.All || view.IsNotEmpty() {
		grant.References = maskAll(distinct(view.Access.Accounts))
		grant.BalanceReferences = maskAll(distinct(view.Access.Balances))
	}
	if !grant.All && len(grant.References) == 0 {
		return ListGrant{}, ErrAccessDenied
	}

	if err := v.checkRemaining(c, req); err != nil {
		return ListGrant{}, err
	}
	return grant, nil
}

func (v *AccessValidator) checkRemaining(c *domain.Consent, req AccessRequest) error {
	if v.Usage == nil || !v.Usage.NeedsUpdate(c, req.IsFromTpp) {
		return nil
	}
	if v.Usage.Remaining(c, req.RequestURI) <= 0 {
		return ErrConsentExhausted
	}
	return nil
}

// findGranted looks up the account carrying resource id id and then the
// reference of list t with the same identity. The ACCOUNT list is searched
// first for the anchor since balance and transaction rows may lack resource
// ids.
func findGranted(access domain.AccountAccess, t domain.TypeAccess, id string) (domain.AccountReference, bool) {
	list := access.References(t)
	anchor, ok := domain.FindByResourceID(access.Accounts, id)
	if !ok {
		anchor, ok = domain.FindByResourceID(list, id)
	}
	if !ok {
		return domain.AccountReference{}, false
	}

	for _, ref := range list {
		if ref.ResourceID == id || ref.Matches(anchor) {
			if ref.ResourceID == "" {
				ref.ResourceID = id
			}
			return ref, true
		}
	}
	return domain.AccountReference{}, false
}

func distinct(refs []domain.AccountReference) []domain.AccountReference {
	var out []domain.AccountReference
	for _, ref := range refs {
		if !domain.ContainsMatch(out, ref) {
			out = append(out, ref)
		}
	}
	return out
}

func maskAll(refs []domain.AccountReference) []domain.AccountReference {
	if refs == nil {
		return nil
	}
	out := make([]domain.AccountReference, len(refs))
	for i, ref := range refs {
		out[i] = ref.Masked()
	}
	return out
}
