package bank

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/pkg/aissdk"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// fixtureFile is the YAML layout of a bank fixture. Amounts are decimal
// strings so no precision is lost to float parsing.
type fixtureFile struct {
	Accounts []fixtureAccount `yaml:"accounts"`
}

type fixtureAccount struct {
	ResourceID    string               `yaml:"resourceId"`
	IBAN          string               `yaml:"iban"`
	BBAN          string               `yaml:"bban"`
	PAN           string               `yaml:"pan"`
	MSISDN        string               `yaml:"msisdn"`
	Currency      string               `yaml:"currency"`
	Name          string               `yaml:"name"`
	OwnerName     string               `yaml:"ownerName"`
	Product       string               `yaml:"product"`
	Status        string               `yaml:"status"`
	Owners        []string             `yaml:"owners"`
	Balances      []fixtureBalance     `yaml:"balances"`
	Transactions  []fixtureTransaction `yaml:"transactions"`
	Beneficiaries []fixtureBeneficiary `yaml:"beneficiaries"`
}

type fixtureBalance struct {
	Type          string `yaml:"type"`
	Amount        string `yaml:"amount"`
	Currency      string `yaml:"currency"`
	ReferenceDate string `yaml:"referenceDate"`
}

type fixtureTransaction struct {
	ID           string `yaml:"id"`
	Status       string `yaml:"status"` // booked or pending
	BookingDate  string `yaml:"bookingDate"`
	ValueDate    string `yaml:"valueDate"`
	Amount       string `yaml:"amount"`
	Currency     string `yaml:"currency"`
	CreditorName string `yaml:"creditorName"`
	CreditorIBAN string `yaml:"creditorIban"`
	DebtorName   string `yaml:"debtorName"`
	DebtorIBAN   string `yaml:"debtorIban"`
	Remittance   string `yaml:"remittance"`
}

type fixtureBeneficiary struct {
	ID    string `yaml:"id"`
	IBAN  string `yaml:"iban"`
	Name  string `yaml:"name"`
	Alias string `yaml:"alias"`
}

type accountData struct {
	account       Account
	balances      []aissdk.Balance
	booked        []aissdk.Transaction
	pending       []aissdk.Transaction
	beneficiaries []aissdk.TrustedBeneficiary
}

// FixtureProvider serves account data loaded from a YAML file. It is the
// sandbox stand-in for a core banking system and is read-only once parsed.
type FixtureProvider struct {
	order    []string
	accounts map[string]*accountData
}

// LoadFixture reads a fixture file.
func LoadFixture(path string) (*FixtureProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bank: read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture builds a provider from YAML bytes. Resource ids must be
// unique and amounts valid decimals.
func ParseFixture(data []byte) (*FixtureProvider, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("bank: parse fixture: %w", err)
	}

	p := &FixtureProvider{accounts: make(map[string]*accountData, len(f.Accounts))}
	for _, fa := range f.Accounts {
		if fa.ResourceID == "" {
			return nil, fmt.Errorf("bank: fixture account without resourceId")
		}
		if _, dup := p.accounts[fa.ResourceID]; dup {
			return nil, fmt.Errorf("bank: duplicate resourceId %q", fa.ResourceID)
		}
		ad, err := fa.build()
		if err != nil {
			return nil, fmt.Errorf("bank: account %q: %w", fa.ResourceID, err)
		}
		p.accounts[fa.ResourceID] = ad
		p.order = append(p.order, fa.ResourceID)
	}
	return p, nil
}

func (fa fixtureAccount) build() (*accountData, error) {
	status := fa.Status
	if status == "" {
		status = "enabled"
	}
	ad := &accountData{account: Account{
		ResourceID: fa.ResourceID,
		IBAN:       fa.IBAN,
		BBAN:       fa.BBAN,
		PAN:        fa.PAN,
		MSISDN:     fa.MSISDN,
		Currency:   fa.Currency,
		Name:       fa.Name,
		OwnerName:  fa.OwnerName,
		Product:    fa.Product,
		Status:     status,
		Owners:     fa.Owners,
	}}

	for _, b := range fa.Balances {
		amt, err := parseAmount(b.Amount, b.Currency, fa.Currency)
		if err != nil {
			return nil, err
		}
		ad.balances = append(ad.balances, aissdk.Balance{
			BalanceAmount: amt,
			BalanceType:   b.Type,
			ReferenceDate: b.ReferenceDate,
		})
	}

	for _, t := range fa.Transactions {
		amt, err := parseAmount(t.Amount, t.Currency, fa.Currency)
		if err != nil {
			return nil, fmt.Errorf("transaction %q: %w", t.ID, err)
		}
		tx := aissdk.Transaction{
			TransactionID:                     t.ID,
			BookingDate:                       t.BookingDate,
			ValueDate:                         t.ValueDate,
			TransactionAmount:                 amt,
			CreditorName:                      t.CreditorName,
			DebtorName:                        t.DebtorName,
			RemittanceInformationUnstructured: t.Remittance,
		}
		if t.CreditorIBAN != "" {
			tx.CreditorAccount = &aissdk.AccountReference{IBAN: t.CreditorIBAN}
		}
		if t.DebtorIBAN != "" {
			tx.DebtorAccount = &aissdk.AccountReference{IBAN: t.DebtorIBAN}
		}
		switch strings.ToLower(t.Status) {
		case "", BookingBooked:
			ad.booked = append(ad.booked, tx)
		case BookingPending:
			ad.pending = append(ad.pending, tx)
		default:
			return nil, fmt.Errorf("transaction %q: unknown status %q", t.ID, t.Status)
		}
	}

	for _, b := range fa.Beneficiaries {
		ad.beneficiaries = append(ad.beneficiaries, aissdk.TrustedBeneficiary{
			TrustedBeneficiaryID: b.ID,
			CreditorAccount:      aissdk.AccountReference{IBAN: b.IBAN},
			CreditorName:         b.Name,
			CreditorAlias:        b.Alias,
		})
	}
	return ad, nil
}

func parseAmount(s, currency, fallback string) (aissdk.Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return aissdk.Amount{}, fmt.Errorf("amount %q: %w", s, err)
	}
	if currency == "" {
		currency = fallback
	}
	return aissdk.Amount{Currency: currency, Amount: d}, nil
}

func (p *FixtureProvider) get(resourceID string) (*accountData, error) {
	ad, ok := p.accounts[resourceID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return ad, nil
}

func (p *FixtureProvider) AccountsOf(ctx context.Context, psus []domain.PsuIdData) ([]Account, error) {
	var out []Account
	for _, id := range p.order {
		if acc := p.accounts[id].account; acc.OwnedByAny(psus) {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (p *FixtureProvider) Account(ctx context.Context, resourceID string) (Account, error) {
	ad, err := p.get(resourceID)
	if err != nil {
		return Account{}, err
	}
	return ad.account, nil
}

func (p *FixtureProvider) Balances(ctx context.Context, resourceID string) ([]aissdk.Balance, error) {
	ad, err := p.get(resourceID)
	if err != nil {
		return nil, err
	}
	return append([]aissdk.Balance{}, ad.balances...), nil
}

func (p *FixtureProvider) Transactions(ctx context.Context, resourceID, bookingStatus string) (aissdk.AccountReport, error) {
	ad, err := p.get(resourceID)
	if err != nil {
		return aissdk.AccountReport{}, err
	}

	report := aissdk.AccountReport{Booked: []aissdk.Transaction{}}
	switch strings.ToLower(bookingStatus) {
	case "", BookingBooked:
		report.Booked = append(report.Booked, ad.booked...)
	case BookingPending:
		report.Pending = append([]aissdk.Transaction{}, ad.pending...)
	case BookingBoth:
		report.Booked = append(report.Booked, ad.booked...)
		report.Pending = append([]aissdk.Transaction{}, ad.pending...)
	default:
		return aissdk.AccountReport{}, fmt.Errorf("%w: %q", ErrInvalidBookingStatus, bookingStatus)
	}
	return report, nil
}

func (p *FixtureProvider) Transaction(ctx context.Context, resourceID, transactionID string) (aissdk.Transaction, error) {
	ad, err := p.get(resourceID)
	if err != nil {
		return aissdk.Transaction{}, err
	}
	for _, list := range [][]aissdk.Transaction{ad.booked, ad.pending} {
		for _, tx := range list {
			if tx.TransactionID == transactionID {
				return tx, nil
			}
		}
	}
	return aissdk.Transaction{}, ErrTransactionNotFound
}

func (p *FixtureProvider) TrustedBeneficiaries(ctx context.Context, resourceID string) ([]aissdk.TrustedBeneficiary, error) {
	ad, err := p.get(resourceID)
	if err != nil {
		return nil, err
	}
	return append([]aissdk.TrustedBeneficiary{}, ad.beneficiaries...), nil
}
