package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/aisconsent/internal/consent/bank"
	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/pkg/aissdk"
	"github.com/aussiebroadwan/aisconsent/pkg/clock"
	"github.com/aussiebroadwan/aisconsent/pkg/idx"
	"github.com/aussiebroadwan/aisconsent/pkg/slogx"
)

// ReadRequest identifies one AIS read.
type ReadRequest struct {
	TppID      string
	ConsentID  string
	AccountID  string // empty for list endpoints
	RequestURI string
	IsFromTpp  bool // no PSU-IP-Address on the request
	Card       bool // card-accounts endpoints
}

// AccountDetails is one account as a consent allows it to be shown.
type AccountDetails struct {
	Account   bank.Account
	Reference domain.AccountReference // PAN masked
	Balances  []aissdk.Balance        // only when requested and granted
}

// AccountService serves the AIS read endpoints. Each read is authorised
// against the consent, the bank is asked once, and only then is the usage
// counted. A lost version race re-authorises and retries the count without
// calling the bank again, so a request is never charged twice.
type AccountService struct {
	Consents  *ConsentService
	Validator *AccessValidator
	Usage     *UsageCounter
	Bank      bank.Provider
	Actions   ActionLogger // optional
	Clock     clock.Clock
}

// read runs the shared flow of every single-account read. fetch receives
// the granted reference and is called at most once.
func (s *AccountService) read(ctx context.Context, rr ReadRequest, t domain.TypeAccess, fetch func(c *domain.Consent, ref domain.AccountReference) error) (ref domain.AccountReference, err error) {
	ctx = slogx.WithConsent(ctx, rr.ConsentID)
	var counted bool
	defer func() { s.record(ctx, rr, counted, err) }()

	c, err := s.usableConsent(ctx, rr)
	if err != nil {
		return domain.AccountReference{}, err
	}
	req := AccessRequest{AccountID: rr.AccountID, TypeAccess: t, RequestURI: rr.RequestURI, IsFromTpp: rr.IsFromTpp}
	if ref, err = s.Validator.Authorize(&c, req); err != nil {
		return domain.AccountReference{}, err
	}

	if err := fetch(&c, ref); err != nil {
		return domain.AccountReference{}, err
	}
	if counted, err = s.charge(ctx, rr, &c, req); err != nil {
		return domain.AccountReference{}, err
	}
	return ref, nil
}

// charge consumes one call of the consent's allowance when the request is
// counted. On a version conflict the consent is reloaded and the request
// authorised again before the next try. It reports whether the request
// was counted.
func (s *AccountService) charge(ctx context.Context, rr ReadRequest, c *domain.Consent, req AccessRequest) (bool, error) {
	if !s.Usage.NeedsUpdate(c, rr.IsFromTpp) {
		return false, nil
	}
	err := s.Consents.retry().Do(ctx, func(attempt int) error {
		if attempt > 0 {
			fresh, err := s.usableConsent(ctx, rr)
			if err != nil {
				return err
			}
			*c = fresh
			if req.AccountID != "" {
				_, err = s.Validator.Authorize(c, req)
			} else {
				_, err = s.Validator.AuthorizeList(c, req)
			}
			if err != nil {
				return err
			}
		}
		return s.Usage.Decrement(ctx, c, rr.RequestURI)
	})
	return err == nil, err
}

// usableConsent loads a VALID, unexpired consent of the requesting TPP whose
// stored checksum still matches its access.
func (s *AccountService) usableConsent(ctx context.Context, rr ReadRequest) (domain.Consent, error) {
	c, err := s.Consents.GetConsent(ctx, rr.TppID, rr.ConsentID)
	if err != nil {
		return domain.Consent{}, err
	}
	switch {
	case c.Status == domain.ConsentValid && !c.IsExpiredAt(s.Clock.Now()):
	case c.Status == domain.ConsentValid, c.Status == domain.ConsentExpired:
		return domain.Consent{}, ErrConsentExpired
	default:
		return domain.Consent{}, fmt.Errorf("%w: consent is %s", ErrConsentInvalid, c.Status)
	}

	ok, err := verifyChecksum(&c)
	if err != nil {
		return domain.Consent{}, err
	}
	if !ok {
		slogx.FromContext(ctx).Error("consent checksum mismatch", "consent_id", c.ExternalID)
		return domain.Consent{}, fmt.Errorf("%w: checksum mismatch", ErrConsentInvalid)
	}
	return c, nil
}

// account fetches the account of ref and checks that it is of the requested
// kind and, for consents bound to PSUs, held by one of them.
func (s *AccountService) account(ctx context.Context, rr ReadRequest, c *domain.Consent, ref domain.AccountReference) (bank.Account, error) {
	acc, err := s.Bank.Account(ctx, ref.ResourceID)
	if err != nil {
		return bank.Account{}, mapBankErr(err)
	}
	if acc.IsCard() != rr.Card {
		return bank.Account{}, ErrResourceUnknown
	}
	if len(c.PSUs) > 0 && !acc.OwnedByAny(c.PSUs) {
		return bank.Account{}, ErrResourceUnknown
	}
	return acc, nil
}

// ListAccounts returns the accounts (or card accounts) a consent covers.
// withBalance asks for balances, which the consent must grant for at least
// one account.
func (s *AccountService) ListAccounts(ctx context.Context, rr ReadRequest, withBalance bool) (out []AccountDetails, err error) {
	ctx = slogx.WithConsent(ctx, rr.ConsentID)
	var counted bool
	defer func() { s.record(ctx, rr, counted, err) }()

	c, err := s.usableConsent(ctx, rr)
	if err != nil {
		return nil, err
	}
	req := AccessRequest{TypeAccess: domain.TypeAccount, RequestURI: rr.RequestURI, IsFromTpp: rr.IsFromTpp}
	grant, err := s.Validator.AuthorizeList(&c, req)
	if err != nil {
		return nil, err
	}
	if withBalance && !grant.WithBalance && len(grant.BalanceReferences) == 0 {
		return nil, fmt.Errorf("%w: balances not granted", ErrAccessDenied)
	}

	accounts, err := s.candidates(ctx, &c, grant)
	if err != nil {
		return nil, err
	}
	for _, acc := range accounts {
		if acc.IsCard() != rr.Card {
			continue
		}
		raw := acc.Reference()
		if len(grant.References) > 0 && !domain.ContainsMatch(grant.References, raw.Masked()) {
			continue
		}
		d := AccountDetails{Account: acc, Reference: raw.Masked()}
		if !ownerNameVisible(&c, d.Reference) {
			d.Account.OwnerName = ""
		}
		if withBalance && (grant.WithBalance || domain.ContainsMatch(grant.BalanceReferences, d.Reference)) {
			if d.Balances, err = s.Bank.Balances(ctx, acc.ResourceID); err != nil {
				return nil, mapBankErr(err)
			}
		}
		out = append(out, d)
	}

	if counted, err = s.charge(ctx, rr, &c, req); err != nil {
		return nil, err
	}
	return out, nil
}

// candidates lists the bank accounts a list grant is matched against: the
// PSUs' accounts when the consent names PSUs, the referenced resources
// otherwise.
func (s *AccountService) candidates(ctx context.Context, c *domain.Consent, grant ListGrant) ([]bank.Account, error) {
	if len(c.PSUs) > 0 {
		accounts, err := s.Bank.AccountsOf(ctx, c.PSUs)
		return accounts, mapBankErr(err)
	}

	var accounts []bank.Account
	for _, ref := range grant.References {
		if ref.ResourceID == "" {
			continue
		}
		acc, err := s.Bank.Account(ctx, ref.ResourceID)
		if errors.Is(err, bank.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, mapBankErr(err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

// GetAccount returns one account. withBalance needs balance access on it.
func (s *AccountService) GetAccount(ctx context.Context, rr ReadRequest, withBalance bool) (AccountDetails, error) {
	var out AccountDetails
	_, err := s.read(ctx, rr, domain.TypeAccount, func(c *domain.Consent, ref domain.AccountReference) error {
		acc, err := s.account(ctx, rr, c, ref)
		if err != nil {
			return err
		}
		out = AccountDetails{Account: acc, Reference: acc.Reference().Masked()}
		if !ownerNameVisible(c, out.Reference) {
			out.Account.OwnerName = ""
		}
		if !withBalance {
			return nil
		}
		if _, ok := findGranted(EffectiveAccess(c).Access, domain.TypeBalance, rr.AccountID); !ok && !EffectiveAccess(c).IsGlobal() {
			return fmt.Errorf("%w: balances not granted", ErrAccessDenied)
		}
		out.Balances, err = s.Bank.Balances(ctx, acc.ResourceID)
		return mapBankErr(err)
	})
	return out, err
}

// GetBalances returns the balances of one account.
func (s *AccountService) GetBalances(ctx context.Context, rr ReadRequest) (domain.AccountReference, []aissdk.Balance, error) {
	var balances []aissdk.Balance
	ref, err := s.read(ctx, rr, domain.TypeBalance, func(c *domain.Consent, ref domain.AccountReference) error {
		acc, err := s.account(ctx, rr, c, ref)
		if err != nil {
			return err
		}
		balances, err = s.Bank.Balances(ctx, acc.ResourceID)
		return mapBankErr(err)
	})
	return ref, balances, err
}

// GetTransactions returns the transactions of one account filtered by
// booking status.
func (s *AccountService) GetTransactions(ctx context.Context, rr ReadRequest, bookingStatus string) (domain.AccountReference, aissdk.AccountReport, error) {
	var report aissdk.AccountReport
	ref, err := s.read(ctx, rr, domain.TypeTransaction, func(c *domain.Consent, ref domain.AccountReference) error {
		acc, err := s.account(ctx, rr, c, ref)
		if err != nil {
			return err
		}
		report, err = s.Bank.Transactions(ctx, acc.ResourceID, bookingStatus)
		return mapBankErr(err)
	})
	return ref, report, err
}

// GetTransactionDetails returns one transaction of an account.
func (s *AccountService) GetTransactionDetails(ctx context.Context, rr ReadRequest, transactionID string) (aissdk.Transaction, error) {
	var tx aissdk.Transaction
	_, err := s.read(ctx, rr, domain.TypeTransaction, func(c *domain.Consent, ref domain.AccountReference) error {
		acc, err := s.account(ctx, rr, c, ref)
		if err != nil {
			return err
		}
		tx, err = s.Bank.Transaction(ctx, acc.ResourceID, transactionID)
		return mapBankErr(err)
	})
	return tx, err
}

// GetTrustedBeneficiaries returns the trusted beneficiaries of one account.
func (s *AccountService) GetTrustedBeneficiaries(ctx context.Context, rr ReadRequest) ([]aissdk.TrustedBeneficiary, error) {
	var out []aissdk.TrustedBeneficiary
	_, err := s.read(ctx, rr, domain.TypeBeneficiaries, func(c *domain.Consent, ref domain.AccountReference) error {
		acc, err := s.account(ctx, rr, c, ref)
		if err != nil {
			return err
		}
		out, err = s.Bank.TrustedBeneficiaries(ctx, acc.ResourceID)
		return mapBankErr(err)
	})
	return out, err
}

// ownerNameVisible reports whether the consent lets the TPP see the owner
// name of the account behind ref.
func ownerNameVisible(c *domain.Consent, ref domain.AccountReference) bool {
	view := EffectiveAccess(c)
	for _, f := range []domain.AccountAccessType{view.Flags.AllPsd2, view.Flags.AvailableAccounts, view.Flags.AvailableAccountsWithBalance} {
		if f == domain.AllAccountsWithOwnerName {
			return true
		}
	}
	switch c.OwnerNameType {
	case domain.AdditionalInfoAllAccounts:
		return true
	case domain.AdditionalInfoDedicatedAccounts:
		if _, ok := findGranted(view.Access, domain.TypeOwnerName, ref.ResourceID); ok {
			return true
		}
		return domain.ContainsMatch(view.Access.References(domain.TypeOwnerName), ref)
	}
	return false
}

// record hands the outcome of a read to the action log.
func (s *AccountService) record(ctx context.Context, rr ReadRequest, counted bool, err error) {
	if s.Actions == nil {
		return
	}
	now := s.Clock.Now()
	s.Actions.Log(domain.ActionLogEntry{
		ID:           idx.NewAt(now).String(),
		TppID:        rr.TppID,
		ConsentID:    rr.ConsentID,
		ActionStatus: ActionStatusOf(err),
		RequestURI:   NormalizePath(rr.RequestURI),
		UpdateUsage:  counted,
		ResourceID:   rr.AccountID,
		CreatedAt:    now,
	})
	if err != nil {
		slogx.FromContext(ctx).Info("ais read refused", "path", rr.RequestURI, "error", err)
	}
}

// ActionStatusOf classifies the outcome of an AIS request.
func ActionStatusOf(err error) domain.ActionStatus {
	switch {
	case err == nil:
		return domain.ActionSuccess
	case errors.Is(err, ErrConsentUnknown), errors.Is(err, ErrTppMismatch):
		return domain.ActionConsentNotFound
	case errors.Is(err, ErrConsentExpired):
		return domain.ActionConsentExpired
	case errors.Is(err, ErrConsentInvalid), errors.Is(err, ErrInvalidStatusTransition):
		return domain.ActionConsentInvalidStatus
	case errors.Is(err, ErrConsentExhausted):
		return domain.ActionAccessExceeded
	case errors.Is(err, ErrAccessDenied):
		return domain.ActionConsentAccessDenied
	case errors.Is(err, ErrInvalidRequest):
		return domain.ActionBadPayload
	}
	return domain.ActionFailure
}

func mapBankErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bank.ErrAccountNotFound), errors.Is(err, bank.ErrTransactionNotFound):
		return fmt.Errorf("%w: %v", ErrResourceUnknown, err)
	case errors.Is(err, bank.ErrInvalidBookingStatus):
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return err
}
