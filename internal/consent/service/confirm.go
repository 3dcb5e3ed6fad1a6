package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/aussiebroadwan/aisconsent/internal/consent/bank"
	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
)

// confirmAccess fills the ASPSP access of a freshly authorised consent from
// the accounts the consent's PSUs hold at the bank. It does nothing when the
// ASPSP already confirmed the access or no provider is configured.
func confirmAccess(ctx context.Context, provider bank.Provider, c *domain.Consent) error {
	if provider == nil || c.AspspAccess.IsNotEmpty() || len(c.PSUs) == 0 {
		return nil
	}

	accounts, err := provider.AccountsOf(ctx, c.PSUs)
	if err != nil {
		return fmt.Errorf("confirm access: %w", err)
	}
	all := make([]domain.AccountReference, 0, len(accounts))
	for _, acc := range accounts {
		all = append(all, acc.Reference())
	}

	var confirmed domain.AccountAccess
	switch c.Type() {
	case domain.ConsentTypeGlobal, domain.ConsentTypeBankOffered:
		confirmed = domain.AccountAccess{Accounts: all, Balances: all, Transactions: all}
	case domain.ConsentTypeAllAvailableAccounts:
		confirmed.Accounts = all
		if c.Flags.AvailableAccountsWithBalance != "" {
			confirmed.Balances = all
		}
	default:
		tpp := c.TppAccess
		confirmed = domain.AccountAccess{
			Balances:     bank.Resolve(tpp.Balances, accounts),
			Transactions: bank.Resolve(tpp.Transactions, accounts),
		}
		// Balance and transaction access imply access to the account itself.
		confirmed.Accounts = distinct(slices.Concat(
			bank.Resolve(tpp.Accounts, accounts), confirmed.Balances, confirmed.Transactions))
		if info := tpp.AdditionalInformation; info != nil {
			confirmed.AdditionalInformation = &domain.AdditionalInformationAccess{
				OwnerName:            bank.Resolve(info.OwnerName, accounts),
				TrustedBeneficiaries: bank.Resolve(info.TrustedBeneficiaries, accounts),
			}
		}
	}

	c.AspspAccess = confirmed
	if c.Flags.AllPsd2 != "" {
		c.TppAccess = confirmed
	}
	return nil
}
