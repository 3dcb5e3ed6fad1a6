package domain

// TypeAccess is the capability a grant row carries or a request needs.
type TypeAccess string

const (
	TypeAccount       TypeAccess = "ACCOUNT"
	TypeBalance       TypeAccess = "BALANCE"
	TypeTransaction   TypeAccess = "TRANSACTION"
	TypeOwnerName     TypeAccess = "OWNER_NAME"
	TypeBeneficiaries TypeAccess = "BENEFICIARIES"
)

// AdditionalInformationAccess grants owner-name and trusted-beneficiary
// reads.
type AdditionalInformationAccess struct {
	OwnerName            []AccountReference
	TrustedBeneficiaries []AccountReference
}

// AccountAccess is one access set of a consent. Lists keep their order;
// duplicates are allowed.
type AccountAccess struct {
	Accounts              []AccountReference
	Balances              []AccountReference
	Transactions          []AccountReference
	AdditionalInformation *AdditionalInformationAccess
}

// IsNotEmpty reports whether any list of the access set has an entry.
func (a AccountAccess) IsNotEmpty() bool {
	for _, t := range allTypeAccess {
		if len(a.References(t)) > 0 {
			return true
		}
	}
	return false
}

// DistinctIdentities returns the references of every list, deduplicated by
// identity (Matches), in first-seen order.
func (a AccountAccess) DistinctIdentities() []AccountReference {
	var out []AccountReference
	for _, t := range allTypeAccess {
		for _, ref := range a.References(t) {
			if !ContainsMatch(out, ref) {
				out = append(out, ref)
			}
		}
	}
	return out
}

// IsOneAccessType reports whether the access set covers exactly one account
// identity across all lists.
func (a AccountAccess) IsOneAccessType() bool {
	return len(a.DistinctIdentities()) == 1
}

// AccountAccessType is the value of the consent-level "global" flags.
type AccountAccessType string

const (
	AllAccounts              AccountAccessType = "ALL_ACCOUNTS"
	AllAccountsWithOwnerName AccountAccessType = "ALL_ACCOUNTS_WITH_OWNER_NAME"
)

// AccessFlags are stored on the consent and apply to both access sets. An
// empty value means the flag is not set.
type AccessFlags struct {
	AvailableAccounts            AccountAccessType
	AvailableAccountsWithBalance AccountAccessType
	AllPsd2                      AccountAccessType
}

// AccessSource tells which party an access set came from.
type AccessSource string

const (
	SourceTPP   AccessSource = "TPP"
	SourceASPSP AccessSource = "ASPSP"
)

// AccessView is an access set together with the consent-level flags.
type AccessView struct {
	Access AccountAccess
	Flags  AccessFlags
	Source AccessSource
}

// IsGlobal reports whether the view is an all-PSD2 consent.
func (v AccessView) IsGlobal() bool {
	return v.Flags.AllPsd2 != ""
}

// IsNotEmpty reports whether the view's access set has any reference.
func (v AccessView) IsNotEmpty() bool {
	return v.Access.IsNotEmpty()
}

// AdditionalAccountInformationType says how owner-name or trusted
// beneficiary access was granted.
type AdditionalAccountInformationType string

const (
	AdditionalInfoNone              AdditionalAccountInformationType = "NONE"
	AdditionalInfoDedicatedAccounts AdditionalAccountInformationType = "DEDICATED_ACCOUNTS"
	AdditionalInfoAllAccounts       AdditionalAccountInformationType = "ALL_ACCOUNTS"
)

// AdditionalInfoTypeOf classifies a requested additional-information list:
// absent (nil) is NONE, present but empty is ALL_ACCOUNTS, anything else
// is DEDICATED_ACCOUNTS.
func AdditionalInfoTypeOf(refs []AccountReference) AdditionalAccountInformationType {
	switch {
	case refs == nil:
		return AdditionalInfoNone
	case len(refs) == 0:
		return AdditionalInfoAllAccounts
	default:
		return AdditionalInfoDedicatedAccounts
	}
}
