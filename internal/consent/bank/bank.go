// Package bank is the financial-data adapter consulted after a request has
// been authorised. It owns account identity, ownership and the account data
// itself; it knows nothing about consents.
package bank

import (
	"context"
	"errors"
	"slices"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/pkg/aissdk"
)

var (
	ErrAccountNotFound     = errors.New("bank: account not found")
	ErrTransactionNotFound = errors.New("bank: transaction not found")

	ErrInvalidBookingStatus = errors.New("bank: invalid booking status")
)

// Booking statuses accepted by Transactions.
const (
	BookingBooked  = "booked"
	BookingPending = "pending"
	BookingBoth    = "both"
)

// Account is one account held at the bank.
type Account struct {
	ResourceID string
	IBAN       string
	BBAN       string
	PAN        string
	MSISDN     string
	Currency   string
	Name       string
	OwnerName  string
	Product    string
	Status     string
	Owners     []string // PSU ids allowed to see the account
}

// Reference returns the account's reference with the raw PAN, if any.
func (a Account) Reference() domain.AccountReference {
	return domain.AccountReference{
		IBAN:       a.IBAN,
		BBAN:       a.BBAN,
		PAN:        a.PAN,
		MSISDN:     a.MSISDN,
		Currency:   a.Currency,
		ResourceID: a.ResourceID,
	}
}

// IsCard reports whether the account is a card account.
func (a Account) IsCard() bool { return a.PAN != "" }

// OwnedByAny reports whether one of psus may see the account. Corporate PSUs
// match by corporate id as well.
func (a Account) OwnedByAny(psus []domain.PsuIdData) bool {
	for _, p := range psus {
		if p.PsuID != "" && slices.Contains(a.Owners, p.PsuID) {
			return true
		}
		if p.PsuCorporateID != "" && slices.Contains(a.Owners, p.PsuCorporateID) {
			return true
		}
	}
	return false
}

// Provider reads account data. Implementations are safe for concurrent use.
type Provider interface {
	// AccountsOf lists the accounts visible to any of psus.
	AccountsOf(ctx context.Context, psus []domain.PsuIdData) ([]Account, error)

	// Account returns the account with resourceID or ErrAccountNotFound.
	Account(ctx context.Context, resourceID string) (Account, error)

	Balances(ctx context.Context, resourceID string) ([]aissdk.Balance, error)

	// Transactions filters by booking status (booked, pending, both).
	Transactions(ctx context.Context, resourceID, bookingStatus string) (aissdk.AccountReport, error)

	Transaction(ctx context.Context, resourceID, transactionID string) (aissdk.Transaction, error)
	TrustedBeneficiaries(ctx context.Context, resourceID string) ([]aissdk.TrustedBeneficiary, error)
}

// Resolve looks up every reference among accounts by identity and returns
// the references with the bank's resource id filled in. References without
// a matching account are dropped.
func Resolve(refs []domain.AccountReference, accounts []Account) []domain.AccountReference {
	var out []domain.AccountReference
	for _, ref := range refs {
		for _, acc := range accounts {
			if acc.Reference().Matches(ref) {
				ref.ResourceID = acc.ResourceID
				out = append(out, ref)
				break
			}
		}
	}
	return out
}
