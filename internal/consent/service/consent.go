package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/bank"
	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/internal/consent/store"
	"github.com/aussiebroadwan/aisconsent/pkg/clock"
	"github.com/aussiebroadwan/aisconsent/pkg/idx"
	"github.com/aussiebroadwan/aisconsent/pkg/slogx"
)

// SignatoryDirectory resolves the PSUs that must all authorise a consent
// given on behalf of a corporate.
type SignatoryDirectory interface {
	Signatories(ctx context.Context, corporateID string) ([]domain.PsuIdData, error)
}

// CreateConsentInput is a TPP's consent request.
type CreateConsentInput struct {
	Access                   domain.AccountAccess
	Flags                    domain.AccessFlags
	RecurringIndicator       bool
	ValidUntil               time.Time
	FrequencyPerDay          int
	CombinedServiceIndicator bool

	PSU               domain.PsuIdData
	RedirectURI       string
	NokRedirectURI    string
	InternalRequestID string
	InstanceID        string
}

// AspspAccessUpdate is the ASPSP's confirmation of a consent's access.
type AspspAccessUpdate struct {
	Access          domain.AccountAccess
	ValidUntil      *time.Time
	FrequencyPerDay int // 0 keeps the current value
}

// ConsentService manages the consent lifecycle outside of SCA.
type ConsentService struct {
	Store       store.Store
	Clock       clock.Clock
	Policy      Policy
	Signatories SignatoryDirectory // optional
	Bank        bank.Provider      // optional, used by ConfirmAccess
}

// CreateConsent validates and stores a new RECEIVED consent.
func (s *ConsentService) CreateConsent(ctx context.Context, tppID string, in CreateConsentInput) (domain.Consent, error) {
	l := slogx.FromContext(ctx)
	now := s.Clock.Now()
	today := domain.DateOf(now)

	if tppID == "" {
		return domain.Consent{}, fmt.Errorf("%w: missing tpp", ErrInvalidRequest)
	}
	if err := s.validateAccessRequest(in.Access, in.Flags); err != nil {
		return domain.Consent{}, err
	}

	validUntil := domain.DateOf(in.ValidUntil)
	freq := in.FrequencyPerDay
	if !in.RecurringIndicator {
		freq = s.Policy.FrequencyPerDayOneOff
		validUntil = today
	}
	switch {
	case in.ValidUntil.IsZero() && in.RecurringIndicator:
		return domain.Consent{}, fmt.Errorf("%w: validUntil is required", ErrInvalidRequest)
	case validUntil.Before(today):
		return domain.Consent{}, fmt.Errorf("%w: validUntil is in the past", ErrInvalidRequest)
	case freq < 1:
		return domain.Consent{}, fmt.Errorf("%w: frequencyPerDay must be at least 1", ErrInvalidRequest)
	}
	if maxDays := s.Policy.MaxConsentValidityDays; maxDays > 0 {
		if last := today.AddDate(0, 0, maxDays-1); validUntil.After(last) {
			validUntil = last
		}
	}

	c := domain.Consent{
		ID:                       idx.NewAt(now).String(),
		ExternalID:               idx.NewExternal(),
		TppID:                    tppID,
		InstanceID:               in.InstanceID,
		InternalRequestID:        in.InternalRequestID,
		Status:                   domain.ConsentReceived,
		RecurringIndicator:       in.RecurringIndicator,
		CombinedServiceIndicator: in.CombinedServiceIndicator,
		ValidUntil:               validUntil,
		FrequencyPerDay:          freq,
		TppAccess:                in.Access,
		Flags:                    in.Flags,
		OwnerNameType:            ownerNameType(in.Access, in.Flags),
		TrustedBeneficiariesType: beneficiariesType(in.Access),
		TppRedirectURI:           in.RedirectURI,
		TppNokRedirectURI:        in.NokRedirectURI,
		Usages:                   map[string]domain.UsageRecord{},
		CreationTimestamp:        now,
		StatusChangeTimestamp:    now,
		Version:                  1,
	}

	psus, err := s.resolvePsus(ctx, in.PSU)
	if err != nil {
		return domain.Consent{}, err
	}
	c.PSUs = psus
	c.MultilevelScaRequired = len(psus) > 1

	if c.Checksum, err = consentChecksum(&c); err != nil {
		return domain.Consent{}, err
	}
	if err := s.Store.Consents().CreateConsent(ctx, c); err != nil {
		return domain.Consent{}, mapStoreErr(err, ErrConsentUnknown)
	}

	l.Info("consent created",
		"consent_id", c.ExternalID,
		"consent_type", c.Type(),
		"recurring", c.RecurringIndicator,
		"multilevel_sca", c.MultilevelScaRequired,
	)
	return c, nil
}

func (s *ConsentService) validateAccessRequest(access domain.AccountAccess, flags domain.AccessFlags) error {
	for _, f := range []domain.AccountAccessType{flags.AvailableAccounts, flags.AvailableAccountsWithBalance, flags.AllPsd2} {
		if f != "" && f != domain.AllAccounts && f != domain.AllAccountsWithOwnerName {
			return fmt.Errorf("%w: unknown access type %q", ErrInvalidRequest, f)
		}
	}

	global := flags.AllPsd2 != ""
	available := flags.AvailableAccounts != "" || flags.AvailableAccountsWithBalance != ""
	switch {
	case global && available:
		return fmt.Errorf("%w: allPsd2 and availableAccounts are exclusive", ErrInvalidRequest)
	case (global || available) && access.IsNotEmpty():
		return fmt.Errorf("%w: account lists are not allowed with a global access type", ErrInvalidRequest)
	case global && !s.Policy.GlobalConsentSupported:
		return fmt.Errorf("%w: global consent", ErrServiceUnsupported)
	case available && !s.Policy.AvailableAccountsConsentSupported:
		return fmt.Errorf("%w: available accounts consent", ErrServiceUnsupported)
	}

	for _, t := range domain.AllTypeAccess() {
		for _, ref := range access.References(t) {
			if ref.Type() == "" {
				return fmt.Errorf("%w: account reference without identifier in %s", ErrInvalidRequest, t)
			}
			if !ref.WellFormed() {
				return fmt.Errorf("%w: malformed %s reference in %s", ErrInvalidRequest, ref.Type(), t)
			}
		}
	}
	return nil
}

func ownerNameType(access domain.AccountAccess, flags domain.AccessFlags) domain.AdditionalAccountInformationType {
	for _, f := range []domain.AccountAccessType{flags.AvailableAccounts, flags.AvailableAccountsWithBalance, flags.AllPsd2} {
		if f == domain.AllAccountsWithOwnerName {
			return domain.AdditionalInfoAllAccounts
		}
	}
	if access.AdditionalInformation == nil {
		return domain.AdditionalInfoNone
	}
	return domain.AdditionalInfoTypeOf(access.AdditionalInformation.OwnerName)
}

func beneficiariesType(access domain.AccountAccess) domain.AdditionalAccountInformationType {
	if access.AdditionalInformation == nil {
		return domain.AdditionalInfoNone
	}
	return domain.AdditionalInfoTypeOf(access.AdditionalInformation.TrustedBeneficiaries)
}

// resolvePsus expands a corporate PSU into its signatories. A consent with
// more than one PSU needs multilevel SCA.
func (s *ConsentService) resolvePsus(ctx context.Context, psu domain.PsuIdData) ([]domain.PsuIdData, error) {
	if psu.IsEmpty() {
		return nil, nil
	}
	if psu.PsuCorporateID == "" || s.Signatories == nil {
		return []domain.PsuIdData{psu}, nil
	}

	signatories, err := s.Signatories.Signatories(ctx, psu.PsuCorporateID)
	if err != nil {
		return nil, fmt.Errorf("%w: corporate %q: %v", ErrInvalidRequest, psu.PsuCorporateID, err)
	}
	if len(signatories) == 0 {
		return []domain.PsuIdData{psu}, nil
	}
	return signatories, nil
}

// GetConsent returns a consent owned by tppID after applying read-time
// status transitions.
func (s *ConsentService) GetConsent(ctx context.Context, tppID, consentID string) (domain.Consent, error) {
	c, err := s.load(ctx, consentID)
	if err != nil {
		return domain.Consent{}, err
	}
	if c.TppID != tppID {
		return domain.Consent{}, ErrTppMismatch
	}
	return c, nil
}

// GetConsentStatus returns the status of a consent owned by tppID.
func (s *ConsentService) GetConsentStatus(ctx context.Context, tppID, consentID string) (domain.ConsentStatus, error) {
	c, err := s.GetConsent(ctx, tppID, consentID)
	if err != nil {
		return "", err
	}
	return c.Status, nil
}

// GetPsuConsent returns any consent for the ASPSP PSU-API.
func (s *ConsentService) GetPsuConsent(ctx context.Context, consentID string) (domain.Consent, error) {
	return s.load(ctx, consentID)
}

// TerminateConsent ends a consent on the TPP's request.
func (s *ConsentService) TerminateConsent(ctx context.Context, tppID, consentID string) error {
	_, err := s.transition(ctx, consentID, tppID, domain.ConsentTerminatedByTpp)
	return err
}

// RevokeByPsu ends a consent on the PSU's request, relayed by the ASPSP.
func (s *ConsentService) RevokeByPsu(ctx context.Context, consentID string) (domain.Consent, error) {
	return s.transition(ctx, consentID, "", domain.ConsentRevokedByPsu)
}

func (s *ConsentService) transition(ctx context.Context, consentID, tppID string, to domain.ConsentStatus) (domain.Consent, error) {
	var out domain.Consent
	err := s.retry().Do(ctx, func(int) error {
		c, err := s.load(ctx, consentID)
		if err != nil {
			return err
		}
		if tppID != "" && c.TppID != tppID {
			return ErrTppMismatch
		}
		if c.Status.IsTerminal() {
			return fmt.Errorf("%w: consent is %s", ErrInvalidStatusTransition, c.Status)
		}

		c.Status = to
		c.StatusChangeTimestamp = s.Clock.Now()
		if err := saveConsent(ctx, s.Store, &c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err == nil {
		slogx.FromContext(ctx).Info("consent status changed", "consent_id", consentID, "status", to)
	}
	return out, err
}

// UpdateAspspAccess stores the access the ASPSP confirmed. expectedVersion
// 0 skips the caller's version check; the write itself is always
// versioned. For a global consent the confirmed lists also become the TPP
// access, since the TPP view governs global consents.
func (s *ConsentService) UpdateAspspAccess(ctx context.Context, consentID string, upd AspspAccessUpdate, expectedVersion int64) (domain.Consent, error) {
	for _, t := range domain.AllTypeAccess() {
		for _, ref := range upd.Access.References(t) {
			if ref.Type() == "" || ref.ResourceID == "" {
				return domain.Consent{}, fmt.Errorf("%w: aspsp references need an identifier and a resourceId", ErrInvalidRequest)
			}
			if !ref.WellFormed() {
				return domain.Consent{}, fmt.Errorf("%w: malformed %s reference in %s", ErrInvalidRequest, ref.Type(), t)
			}
		}
	}

	today := domain.DateOf(s.Clock.Now())
	if upd.ValidUntil != nil && domain.DateOf(*upd.ValidUntil).Before(today) {
		return domain.Consent{}, fmt.Errorf("%w: validUntil is in the past", ErrInvalidRequest)
	}
	if upd.FrequencyPerDay < 0 {
		return domain.Consent{}, fmt.Errorf("%w: frequencyPerDay", ErrInvalidRequest)
	}

	policy := s.retry()
	if expectedVersion > 0 {
		policy.Attempts = 1
	}

	var out domain.Consent
	err := policy.Do(ctx, func(int) error {
		c, err := s.load(ctx, consentID)
		if err != nil {
			return err
		}
		if expectedVersion > 0 && c.Version != expectedVersion {
			return fmt.Errorf("%w: version %d, expected %d", ErrConcurrentModification, c.Version, expectedVersion)
		}
		if c.Status.IsTerminal() {
			return fmt.Errorf("%w: consent is %s", ErrInvalidStatusTransition, c.Status)
		}

		c.AspspAccess = upd.Access
		if c.Flags.AllPsd2 != "" {
			c.TppAccess = upd.Access
		}
		if upd.ValidUntil != nil {
			c.ValidUntil = domain.DateOf(*upd.ValidUntil)
		}
		if upd.FrequencyPerDay > 0 {
			c.FrequencyPerDay = upd.FrequencyPerDay
		}
		if err := saveConsent(ctx, s.Store, &c); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// load reads a consent and applies the status changes that are due: a
// VALID consent past its last day becomes EXPIRED and a consent still
// waiting for authorisation after the not-confirmed TTL becomes REJECTED.
func (s *ConsentService) load(ctx context.Context, consentID string) (domain.Consent, error) {
	var (
		c       domain.Consent
		changed bool
	)
	err := s.retry().Do(ctx, func(int) error {
		var err error
		c, err = s.Store.Consents().GetConsentByExternalID(ctx, consentID)
		if err != nil {
			return mapStoreErr(err, ErrConsentUnknown)
		}
		changed = applyDueStatus(&c, s.Clock.Now(), s.Policy.NotConfirmedConsentTTL)
		if !changed {
			return nil
		}
		return saveConsent(ctx, s.Store, &c)
	})
	switch {
	case errors.Is(err, ErrConcurrentModification):
		// The due status still holds for this read; a later read or the
		// housekeeping sweep persists it.
		slogx.FromContext(ctx).Warn("consent status change on read not persisted", "consent_id", consentID, "status", c.Status)
		return c, nil
	case err != nil:
		return domain.Consent{}, err
	}
	if changed {
		slogx.FromContext(ctx).Info("consent status changed on read", "consent_id", c.ExternalID, "status", c.Status)
	}
	return c, nil
}

func (s *ConsentService) retry() RetryPolicy {
	if s.Policy.UsageRetry.Attempts > 0 {
		return s.Policy.UsageRetry
	}
	return DefaultRetryPolicy
}

// applyDueStatus moves c to the status implied by now. It reports whether
// anything changed.
func applyDueStatus(c *domain.Consent, now time.Time, notConfirmedTTL time.Duration) bool {
	switch {
	case c.Status == domain.ConsentValid && c.IsExpiredAt(now):
		c.Status = domain.ConsentExpired
		today := domain.DateOf(now)
		c.ExpireDate = &today
	case (c.Status == domain.ConsentReceived || c.Status == domain.ConsentPartiallyAuthorised) &&
		notConfirmedTTL > 0 && now.Sub(c.CreationTimestamp) > notConfirmedTTL:
		c.Status = domain.ConsentRejected
	default:
		return false
	}
	c.StatusChangeTimestamp = now
	return true
}

// saveConsent writes c with a fresh checksum under its current version and
// bumps c.Version.
func saveConsent(ctx context.Context, st store.Store, c *domain.Consent) error {
	sum, err := consentChecksum(c)
	if err != nil {
		return err
	}
	c.Checksum = sum

	next, err := st.Consents().UpdateConsent(ctx, *c, c.Version)
	if err != nil {
		return mapStoreErr(err, ErrConsentUnknown)
	}
	c.Version = next
	return nil
}
