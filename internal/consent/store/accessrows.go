package store

import (
	"fmt"
	"slices"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
)

// AccessRow is one persisted grant: a reference tagged with the access set
// it belongs to and the capability it grants.
type AccessRow struct {
	Kind       domain.AccessSource
	TypeAccess domain.TypeAccess
	Reference  domain.AccountReference
}

// ToRows flattens an access set. Owner-name and beneficiary lists are
// written as rows only for DEDICATED_ACCOUNTS; ALL_ACCOUNTS is implied by
// the consent-level type and NONE has nothing to store.
func ToRows(
	access domain.AccountAccess,
	kind domain.AccessSource,
	ownerNameType, beneficiariesType domain.AdditionalAccountInformationType,
) ([]AccessRow, error) {
	if err := checkInfoType(ownerNameType); err != nil {
		return nil, err
	}
	if err := checkInfoType(beneficiariesType); err != nil {
		return nil, err
	}

	var rows []AccessRow
	for _, t := range domain.AllTypeAccess() {
		switch t {
		case domain.TypeOwnerName:
			if ownerNameType != domain.AdditionalInfoDedicatedAccounts {
				continue
			}
		case domain.TypeBeneficiaries:
			if beneficiariesType != domain.AdditionalInfoDedicatedAccounts {
				continue
			}
		}
		for _, ref := range access.References(t) {
			rows = append(rows, AccessRow{Kind: kind, TypeAccess: t, Reference: ref})
		}
	}
	return rows, nil
}

// FromRows rebuilds the access set of one kind from persisted rows, in row
// order. ALL_ACCOUNTS additional information is expanded from the accounts
// list.
func FromRows(
	rows []AccessRow,
	kind domain.AccessSource,
	ownerNameType, beneficiariesType domain.AdditionalAccountInformationType,
) (domain.AccountAccess, error) {
	if err := checkInfoType(ownerNameType); err != nil {
		return domain.AccountAccess{}, err
	}
	if err := checkInfoType(beneficiariesType); err != nil {
		return domain.AccountAccess{}, err
	}

	var (
		access        domain.AccountAccess
		owner, benefs []domain.AccountReference
	)
	for _, row := range rows {
		if row.Kind != kind {
			continue
		}
		switch row.TypeAccess {
		case domain.TypeAccount:
			access.Accounts = append(access.Accounts, row.Reference)
		case domain.TypeBalance:
			access.Balances = append(access.Balances, row.Reference)
		case domain.TypeTransaction:
			access.Transactions = append(access.Transactions, row.Reference)
		case domain.TypeOwnerName:
			owner = append(owner, row.Reference)
		case domain.TypeBeneficiaries:
			benefs = append(benefs, row.Reference)
		default:
			return domain.AccountAccess{}, fmt.Errorf("%w: type access %q", ErrInvalidData, row.TypeAccess)
		}
	}

	if ownerNameType == domain.AdditionalInfoNone && beneficiariesType == domain.AdditionalInfoNone {
		return access, nil
	}

	access.AdditionalInformation = &domain.AdditionalInformationAccess{
		OwnerName:            expandInfo(ownerNameType, owner, access.Accounts),
		TrustedBeneficiaries: expandInfo(beneficiariesType, benefs, access.Accounts),
	}
	return access, nil
}

func expandInfo(t domain.AdditionalAccountInformationType, dedicated, accounts []domain.AccountReference) []domain.AccountReference {
	switch t {
	case domain.AdditionalInfoDedicatedAccounts:
		return dedicated
	case domain.AdditionalInfoAllAccounts:
		return slices.Clone(accounts)
	}
	return nil
}

func checkInfoType(t domain.AdditionalAccountInformationType) error {
	switch t {
	case domain.AdditionalInfoNone, domain.AdditionalInfoDedicatedAccounts, domain.AdditionalInfoAllAccounts:
		return nil
	}
	return fmt.Errorf("%w: additional information type %q", ErrInvalidData, t)
}
