package domain

// typeAccessLists maps each TypeAccess to the list of an AccountAccess that
// grants it. Reconciliation, validation and persistence all read lists
// through this table.
var typeAccessLists = map[TypeAccess]func(AccountAccess) []AccountReference{
	TypeAccount:     func(a AccountAccess) []AccountReference { return a.Accounts },
	TypeBalance:     func(a AccountAccess) []AccountReference { return a.Balances },
	TypeTransaction: func(a AccountAccess) []AccountReference { return a.Transactions },
	TypeOwnerName: func(a AccountAccess) []AccountReference {
		if a.AdditionalInformation == nil {
			return nil
		}
		return a.AdditionalInformation.OwnerName
	},
	TypeBeneficiaries: func(a AccountAccess) []AccountReference {
		if a.AdditionalInformation == nil {
			return nil
		}
		return a.AdditionalInformation.TrustedBeneficiaries
	},
}

// allTypeAccess fixes the iteration order over typeAccessLists.
var allTypeAccess = []TypeAccess{
	TypeAccount, TypeBalance, TypeTransaction, TypeOwnerName, TypeBeneficiaries,
}

// AllTypeAccess returns every TypeAccess in canonical order.
func AllTypeAccess() []TypeAccess {
	return append([]TypeAccess(nil), allTypeAccess...)
}

// Valid reports whether t is a known TypeAccess.
func (t TypeAccess) Valid() bool {
	_, ok := typeAccessLists[t]
	return ok
}

// References returns the list of a granting t. Unknown types grant nothing.
func (a AccountAccess) References(t TypeAccess) []AccountReference {
	if f, ok := typeAccessLists[t]; ok {
		return f(a)
	}
	return nil
}
