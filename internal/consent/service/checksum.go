package service

import (
	"strings"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/pkg/cryptox"
)

// checksumInput is the part of a consent that must not change behind the
// service's back. Lists are reduced to identity keys so nil and empty
// slices, and the expansion of ALL_ACCOUNTS lists, hash the same.
type checksumInput struct {
	TppAccess         accessKeys
	AspspAccess       accessKeys
	OwnerNameType     string
	BeneficiariesType string
	Flags             [3]string
	Recurring         bool
	ValidUntil        string
	FrequencyPerDay   int
	TppID             string
}

type accessKeys struct {
	Accounts      []string
	Balances      []string
	Transactions  []string
	OwnerName     []string
	Beneficiaries []string
}

func consentChecksum(c *domain.Consent) (string, error) {
	return cryptox.Checksum(checksumInput{
		TppAccess:         keysOf(c.TppAccess, c),
		AspspAccess:       keysOf(c.AspspAccess, c),
		OwnerNameType:     string(c.OwnerNameType),
		BeneficiariesType: string(c.TrustedBeneficiariesType),
		Flags: [3]string{
			string(c.Flags.AvailableAccounts),
			string(c.Flags.AvailableAccountsWithBalance),
			string(c.Flags.AllPsd2),
		},
		Recurring:       c.RecurringIndicator,
		ValidUntil:      domain.FormatDate(c.ValidUntil),
		FrequencyPerDay: c.FrequencyPerDay,
		TppID:           c.TppID,
	})
}

func keysOf(a domain.AccountAccess, c *domain.Consent) accessKeys {
	k := accessKeys{
		Accounts:     refKeys(a.Accounts),
		Balances:     refKeys(a.Balances),
		Transactions: refKeys(a.Transactions),
	}
	if c.OwnerNameType == domain.AdditionalInfoDedicatedAccounts {
		k.OwnerName = refKeys(a.References(domain.TypeOwnerName))
	}
	if c.TrustedBeneficiariesType == domain.AdditionalInfoDedicatedAccounts {
		k.Beneficiaries = refKeys(a.References(domain.TypeBeneficiaries))
	}
	return k
}

func refKeys(refs []domain.AccountReference) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, len(refs))
	for i, ref := range refs {
		t, v := ref.UsedSelector()
		out[i] = strings.Join([]string{
			string(t),
			strings.ToUpper(strings.ReplaceAll(v, " ", "")),
			strings.ToUpper(ref.Currency),
			ref.ResourceID,
		}, "|")
	}
	return out
}

// verifyChecksum reports whether the stored checksum still matches the
// consent. Consents stored without a checksum pass.
func verifyChecksum(c *domain.Consent) (bool, error) {
	if c.Checksum == "" {
		return true, nil
	}
	sum, err := consentChecksum(c)
	if err != nil {
		return false, err
	}
	return sum == c.Checksum, nil
}
