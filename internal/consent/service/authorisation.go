package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/bank"
	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/internal/consent/store"
	"github.com/aussiebroadwan/aisconsent/pkg/clock"
	"github.com/aussiebroadwan/aisconsent/pkg/cryptox"
	"github.com/aussiebroadwan/aisconsent/pkg/idx"
	"github.com/aussiebroadwan/aisconsent/pkg/slogx"
)

// PsuAuthenticator verifies PSU credentials and TANs for the EMBEDDED and
// DECOUPLED approaches.
type PsuAuthenticator interface {
	Authenticate(ctx context.Context, psu domain.PsuIdData, password string) error
	Methods(ctx context.Context, psu domain.PsuIdData) ([]domain.ScaMethod, error)
	VerifyTAN(ctx context.Context, psu domain.PsuIdData, methodID, tan string, at time.Time) error
}

// CreateAuthorisationRequest carries what the caller supplies for a new
// authorisation.
type CreateAuthorisationRequest struct {
	ExternalID     string // generated when empty
	PSU            *domain.PsuIdData
	Approach       domain.ScaApproach
	RedirectURI    string // falls back to the parent's
	NokRedirectURI string
}

// NewAuthorisation builds a RECEIVED authorisation below parent. Both
// expiry timestamps are counted from now. The parent is not modified.
func NewAuthorisation(
	parent domain.AuthorisationParent,
	req CreateAuthorisationRequest,
	typ domain.AuthorisationType,
	now time.Time,
	redirectTTL, authorisationTTL time.Duration,
) domain.Authorisation {
	externalID := req.ExternalID
	if externalID == "" {
		externalID = idx.NewExternal()
	}
	redirect := req.RedirectURI
	if redirect == "" {
		redirect = parent.TppRedirectURI
	}
	nok := req.NokRedirectURI
	if nok == "" {
		nok = parent.TppNokRedirectURI
	}

	var psu *domain.PsuIdData
	if req.PSU != nil && !req.PSU.IsEmpty() {
		p := *req.PSU
		psu = &p
	}

	return domain.Authorisation{
		ID:                   idx.NewAt(now).String(),
		ExternalID:           externalID,
		ParentID:             parent.ExternalID,
		Type:                 typ,
		InstanceID:           parent.InstanceID,
		PSU:                  psu,
		ScaStatus:            domain.ScaReceived,
		ScaApproach:          req.Approach,
		RedirectURI:          redirect,
		NokRedirectURI:       nok,
		RedirectURLExpiresAt: now.Add(redirectTTL),
		ExpiresAt:            now.Add(authorisationTTL),
		CreatedAt:            now,
		UpdatedAt:            now,
		Version:              1,
	}
}

// AuthorisationService runs the SCA state machine of consent
// authorisations and keeps the consent status in step with it.
type AuthorisationService struct {
	Store  store.Store
	Clock  clock.Clock
	Policy Policy

	PSUs        PsuAuthenticator   // required for EMBEDDED and DECOUPLED
	Bank        bank.Provider      // optional, confirms access once VALID
	RedirectIDs *cryptox.IDCipher // encrypts consent ids in redirect links
}

// StartAuthorisationInput is a TPP's request to start SCA.
type StartAuthorisationInput struct {
	PSU            domain.PsuIdData
	Approach       domain.ScaApproach // policy default when empty
	Password       string             // EMBEDDED only
	RedirectURI    string
	NokRedirectURI string
}

// UpdateAuthorisationInput is one EMBEDDED/DECOUPLED step or a
// confirmation. Exactly one of Password, MethodID, TAN and
// ConfirmationCode is expected.
type UpdateAuthorisationInput struct {
	PSU              domain.PsuIdData
	Password         string
	MethodID         string
	TAN              string
	ConfirmationCode string
}

// ScaResult describes an authorisation after a step.
type ScaResult struct {
	Authorisation domain.Authorisation
	Methods       []domain.ScaMethod
	ChosenMethod  *domain.ScaMethod
	RedirectURL   string // REDIRECT approach only
}

// StartAuthorisation creates an authorisation for a consent awaiting SCA.
// A PSU not yet on the consent is added to it; two or more PSUs make the
// consent multilevel. An EMBEDDED start with a password authenticates the
// PSU right away; a wrong password leaves a FAILED authorisation and
// returns ErrScaFailed.
func (s *AuthorisationService) StartAuthorisation(ctx context.Context, tppID, consentID string, in StartAuthorisationInput) (ScaResult, error) {
	l := slogx.FromContext(ctx)
	now := s.Clock.Now()

	approach := in.Approach
	if approach == "" {
		approach = s.Policy.DefaultApproach()
	}
	if !approach.Valid() || !s.Policy.Supports(approach) {
		return ScaResult{}, fmt.Errorf("%w: sca approach %q", ErrServiceUnsupported, approach)
	}
	if approach != domain.ScaRedirect && s.PSUs == nil {
		return ScaResult{}, fmt.Errorf("%w: no psu directory for %s", ErrConfiguration, approach)
	}

	var (
		res     ScaResult
		outcome error
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		c, err := loadOwned(ctx, tx, consentID, tppID)
		if err != nil {
			return err
		}
		switch {
		case c.IsExpiredAt(now):
			return ErrConsentExpired
		case c.Status != domain.ConsentReceived && c.Status != domain.ConsentPartiallyAuthorised:
			return fmt.Errorf("%w: consent is %s", ErrInvalidStatusTransition, c.Status)
		}

		if !in.PSU.IsEmpty() && !c.HasPsu(in.PSU) {
			c.PSUs = append(c.PSUs, in.PSU)
			c.MultilevelScaRequired = c.MultilevelScaRequired || len(c.PSUs) > 1
			if err := saveConsent(ctx, tx, &c); err != nil {
				return err
			}
		}

		a := NewAuthorisation(c.Parent(), CreateAuthorisationRequest{
			PSU:            &in.PSU,
			Approach:       approach,
			RedirectURI:    in.RedirectURI,
			NokRedirectURI: in.NokRedirectURI,
		}, domain.AuthorisationConsent, now, s.Policy.RedirectURLTTL, s.Policy.AuthorisationTTL)
		if a.PSU != nil && approach != domain.ScaRedirect {
			a.ScaStatus = domain.ScaPsuIdentified
		}

		if approach == domain.ScaEmbedded && in.Password != "" && a.PSU != nil {
			if res, outcome = s.authenticate(ctx, &a, in.Password); outcome != nil && !errors.Is(outcome, ErrScaFailed) {
				return outcome
			}
		}
		if err := tx.Authorisations().CreateAuthorisation(ctx, a); err != nil {
			return mapStoreErr(err, ErrAuthorisationUnknown)
		}
		if a.ScaStatus.IsTerminal() {
			c.Authorisations = append(c.Authorisations, a)
			if err := s.aggregate(ctx, tx, &c, a.ScaStatus, now); err != nil {
				return err
			}
		}
		res.Authorisation = a

		if approach == domain.ScaRedirect {
			if res.RedirectURL, err = s.redirectURL(c.ExternalID, a.ExternalID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ScaResult{}, err
	}

	l.Info("authorisation started",
		"consent_id", consentID,
		"authorisation_id", res.Authorisation.ExternalID,
		"sca_approach", approach,
		"sca_status", res.Authorisation.ScaStatus,
	)
	return res, outcome
}

func (s *AuthorisationService) redirectURL(consentID, authorisationID string) (string, error) {
	if s.RedirectIDs == nil {
		return "", fmt.Errorf("%w: no redirect id cipher", ErrConfiguration)
	}
	enc, err := s.RedirectIDs.Encrypt(consentID)
	if err != nil {
		return "", err
	}
	return strings.NewReplacer(
		"{redirect-id}", authorisationID,
		"{encrypted-consent-id}", enc,
	).Replace(s.Policy.ScaRedirectURL), nil
}

// authenticate checks the PSU's password and moves a to the next status:
// EXEMPTED without SCA methods, STARTED for DECOUPLED with a single method,
// PSUAUTHENTICATED otherwise. A wrong password moves a to FAILED and is
// reported as ErrScaFailed.
func (s *AuthorisationService) authenticate(ctx context.Context, a *domain.Authorisation, password string) (ScaResult, error) {
	if err := s.PSUs.Authenticate(ctx, *a.PSU, password); err != nil {
		a.ScaStatus = domain.ScaFailed
		return ScaResult{}, fmt.Errorf("%w: %v", ErrScaFailed, err)
	}

	methods, err := s.PSUs.Methods(ctx, *a.PSU)
	if err != nil {
		return ScaResult{}, err
	}
	res := ScaResult{Methods: methods}
	switch {
	case len(methods) == 0:
		a.ScaStatus = domain.ScaExempted
	case a.ScaApproach == domain.ScaDecoupled && len(methods) == 1:
		a.ScaStatus = domain.ScaStarted
		a.AuthenticationMethodID = methods[0].ID
		res.ChosenMethod = &methods[0]
	default:
		a.ScaStatus = domain.ScaPsuAuthenticated
	}
	return res, nil
}

// GetScaStatus returns the status of an authorisation of a TPP's consent.
// An authorisation past either expiry is ErrAuthorisationExpired.
func (s *AuthorisationService) GetScaStatus(ctx context.Context, tppID, consentID, authorisationID string) (domain.ScaStatus, error) {
	if _, err := loadOwned(ctx, s.Store, consentID, tppID); err != nil {
		return "", err
	}
	a, err := s.loadAuthorisation(ctx, s.Store, consentID, authorisationID)
	if err != nil {
		return "", err
	}
	if a.IsExpired(s.Clock.Now()) {
		return "", ErrAuthorisationExpired
	}
	return a.ScaStatus, nil
}

// IsEndpointAccessible reports whether SCA may proceed on an authorisation.
//
// With confirmation mandated, a REDIRECT authorisation still RECEIVED is not
// accessible; DECOUPLED and EMBEDDED ones are. Under the OAUTH redirect
// flow with confirmation mandated, an authorisation that does not exist yet
// is accessible since the OAuth provider gates access. Writes need a
// non-terminal authorisation.
func (s *AuthorisationService) IsEndpointAccessible(ctx context.Context, authorisationID, consentID string, isWriteOperation bool) (bool, error) {
	a, err := s.loadAuthorisation(ctx, s.Store, consentID, authorisationID)
	if errors.Is(err, ErrAuthorisationUnknown) &&
		s.Policy.RedirectFlow == domain.RedirectFlowOAuth && s.Policy.ConfirmationMandated {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return s.accessible(a, isWriteOperation)
}

func (s *AuthorisationService) accessible(a domain.Authorisation, isWriteOperation bool) (bool, error) {
	if a.IsExpired(s.Clock.Now()) {
		return false, ErrAuthorisationExpired
	}
	if s.Policy.ConfirmationMandated && a.ScaStatus == domain.ScaReceived && a.ScaApproach == domain.ScaRedirect {
		return false, nil
	}
	if isWriteOperation && a.ScaStatus.IsTerminal() {
		return false, nil
	}
	return true, nil
}

// UpdateAuthorisation performs one TPP-driven SCA step.
func (s *AuthorisationService) UpdateAuthorisation(
	ctx context.Context,
	tppID, consentID, authorisationID string,
	in UpdateAuthorisationInput,
) (ScaResult, error) {
	now := s.Clock.Now()

	var (
		res     ScaResult
		outcome error
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		c, err := loadOwned(ctx, tx, consentID, tppID)
		if err != nil {
			return err
		}
		a, err := s.loadAuthorisation(ctx, tx, consentID, authorisationID)
		if err != nil {
			return err
		}
		ok, err := s.accessible(a, true)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: authorisation is %s", ErrInvalidStatusTransition, a.ScaStatus)
		}

		from := a.ScaStatus
		switch {
		case in.ConfirmationCode != "":
			if a.ScaStatus != domain.ScaUnconfirmed {
				return fmt.Errorf("%w: authorisation is %s", ErrInvalidStatusTransition, a.ScaStatus)
			}
			if subtle.ConstantTimeCompare([]byte(in.ConfirmationCode), []byte(a.ConfirmationCode)) != 1 {
				a.ScaStatus = domain.ScaFailed
				outcome = fmt.Errorf("%w: confirmation code mismatch", ErrScaFailed)
			} else {
				a.ScaStatus = domain.ScaFinalised
			}

		case in.Password != "":
			if a.ScaApproach == domain.ScaRedirect {
				return fmt.Errorf("%w: psu credentials on a redirect authorisation", ErrInvalidRequest)
			}
			if a.PSU == nil {
				if in.PSU.IsEmpty() {
					return fmt.Errorf("%w: PSU-ID is required", ErrInvalidRequest)
				}
				psu := in.PSU
				a.PSU = &psu
			} else if !in.PSU.IsEmpty() && !a.PSU.SamePsu(in.PSU) {
				return fmt.Errorf("%w: PSU-ID differs from the authorisation", ErrInvalidRequest)
			}
			if !c.HasPsu(*a.PSU) {
				c.PSUs = append(c.PSUs, *a.PSU)
				c.MultilevelScaRequired = c.MultilevelScaRequired || len(c.PSUs) > 1
				if err := saveConsent(ctx, tx, &c); err != nil {
					return err
				}
			}
			if a.ScaStatus != domain.ScaReceived && a.ScaStatus != domain.ScaPsuIdentified {
				return fmt.Errorf("%w: psu already authenticated", ErrInvalidStatusTransition)
			}
			if res, outcome = s.authenticate(ctx, &a, in.Password); outcome != nil && !errors.Is(outcome, ErrScaFailed) {
				return outcome
			}

		case in.MethodID != "":
			if a.PSU == nil || a.ScaApproach == domain.ScaRedirect {
				return fmt.Errorf("%w: method selection needs an authenticated psu", ErrInvalidStatusTransition)
			}
			methods, err := s.PSUs.Methods(ctx, *a.PSU)
			if err != nil {
				return err
			}
			chosen, found := findMethod(methods, in.MethodID)
			if !found {
				return fmt.Errorf("%w: %q", ErrScaMethodUnknown, in.MethodID)
			}
			a.AuthenticationMethodID = chosen.ID
			a.ScaStatus = domain.ScaMethodSelected
			if a.ScaApproach == domain.ScaDecoupled {
				a.ScaStatus = domain.ScaStarted
			}
			res.ChosenMethod = &chosen

		case in.TAN != "":
			if a.PSU == nil || a.ScaApproach != domain.ScaEmbedded || a.ScaStatus != domain.ScaMethodSelected {
				return fmt.Errorf("%w: authorisation is %s", ErrInvalidStatusTransition, a.ScaStatus)
			}
			if err := s.PSUs.VerifyTAN(ctx, *a.PSU, a.AuthenticationMethodID, in.TAN, now); err != nil {
				a.ScaStatus = domain.ScaFailed
				outcome = fmt.Errorf("%w: %v", ErrScaFailed, err)
			} else {
				a.ScaStatus = domain.ScaFinalised
			}

		default:
			return fmt.Errorf("%w: nothing to update", ErrInvalidRequest)
		}

		to := a.ScaStatus
		a.ScaStatus = from
		if err := s.transition(ctx, tx, &c, &a, to, now); err != nil {
			return err
		}
		res.Authorisation = a
		return nil
	})
	if err != nil {
		return ScaResult{}, err
	}

	slogx.FromContext(ctx).Info("authorisation updated",
		"consent_id", consentID,
		"authorisation_id", authorisationID,
		"sca_status", res.Authorisation.ScaStatus,
	)
	return res, outcome
}

// UpdateScaStatus moves an authorisation on behalf of the ASPSP, typically
// at the end of a REDIRECT flow. expectedVersion 0 skips the caller's
// version check. Entering UNCONFIRMED issues the confirmation code the TPP
// must present; with confirmation mandated a REDIRECT authorisation can
// only be finalised that way.
func (s *AuthorisationService) UpdateScaStatus(
	ctx context.Context,
	consentID, authorisationID string,
	status domain.ScaStatus,
	expectedVersion int64,
) (domain.Authorisation, error) {
	now := s.Clock.Now()

	var out domain.Authorisation
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		c, err := loadConsent(ctx, tx, consentID)
		if err != nil {
			return err
		}
		a, err := s.loadAuthorisation(ctx, tx, consentID, authorisationID)
		if err != nil {
			return err
		}
		if expectedVersion > 0 && a.Version != expectedVersion {
			return fmt.Errorf("%w: authorisation version %d, expected %d", ErrConcurrentModification, a.Version, expectedVersion)
		}
		if a.IsExpired(now) {
			return ErrAuthorisationExpired
		}
		if s.Policy.ConfirmationMandated && a.ScaApproach == domain.ScaRedirect && status == domain.ScaFinalised {
			return fmt.Errorf("%w: confirmation by the tpp is mandated", ErrInvalidStatusTransition)
		}
		if status == domain.ScaUnconfirmed {
			if a.ConfirmationCode, err = newConfirmationCode(); err != nil {
				return err
			}
		}

		if err := s.transition(ctx, tx, &c, &a, status, now); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Authorisation{}, err
	}

	slogx.FromContext(ctx).Info("sca status updated by aspsp",
		"consent_id", consentID, "authorisation_id", authorisationID, "sca_status", status)
	return out, nil
}

// ResolveRedirect maps an SCA redirect link back to its consent and
// authorisation. The link is unusable once its own expiry has passed.
func (s *AuthorisationService) ResolveRedirect(ctx context.Context, encryptedConsentID, redirectID string) (domain.Consent, domain.Authorisation, error) {
	if s.RedirectIDs == nil {
		return domain.Consent{}, domain.Authorisation{}, fmt.Errorf("%w: no redirect id cipher", ErrConfiguration)
	}
	consentID, err := s.RedirectIDs.Decrypt(encryptedConsentID)
	if err != nil {
		return domain.Consent{}, domain.Authorisation{}, ErrConsentUnknown
	}

	c, err := loadConsent(ctx, s.Store, consentID)
	if err != nil {
		return domain.Consent{}, domain.Authorisation{}, err
	}
	a, err := s.loadAuthorisation(ctx, s.Store, consentID, redirectID)
	if err != nil {
		return domain.Consent{}, domain.Authorisation{}, err
	}
	if now := s.Clock.Now(); a.IsExpired(now) || now.After(a.RedirectURLExpiresAt) {
		return domain.Consent{}, domain.Authorisation{}, ErrAuthorisationExpired
	}
	return c, a, nil
}

// transition moves a to status to, persists it and re-derives the consent
// status from all of its authorisations.
func (s *AuthorisationService) transition(ctx context.Context, tx store.Store, c *domain.Consent, a *domain.Authorisation, to domain.ScaStatus, now time.Time) error {
	if !domain.CanTransition(a.ScaApproach, a.ScaStatus, to) {
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidStatusTransition, a.ScaStatus, to, a.ScaApproach)
	}

	a.ScaStatus = to
	a.UpdatedAt = now
	next, err := tx.Authorisations().UpdateAuthorisation(ctx, *a, a.Version)
	if err != nil {
		return mapStoreErr(err, ErrAuthorisationUnknown)
	}
	a.Version = next

	for i := range c.Authorisations {
		if c.Authorisations[i].ExternalID == a.ExternalID {
			c.Authorisations[i] = *a
		}
	}
	return s.aggregate(ctx, tx, c, to, now)
}

// aggregate updates the consent status after an authorisation reached a
// new status. A failed authorisation rejects a single-level consent that
// no authorisation has finalised yet.
func (s *AuthorisationService) aggregate(ctx context.Context, tx store.Store, c *domain.Consent, to domain.ScaStatus, now time.Time) error {
	if c.Status != domain.ConsentReceived && c.Status != domain.ConsentPartiallyAuthorised {
		return nil
	}

	next := c.AuthorisedStatus()
	if to == domain.ScaFailed && !c.MultilevelScaRequired && next == domain.ConsentReceived {
		next = domain.ConsentRejected
	}
	if next == c.Status {
		return nil
	}

	c.Status = next
	c.StatusChangeTimestamp = now
	if next == domain.ConsentValid {
		if err := confirmAccess(ctx, s.Bank, c); err != nil {
			return err
		}
	}
	if err := saveConsent(ctx, tx, c); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("consent status changed by sca", "consent_id", c.ExternalID, "status", next)
	return nil
}

func (s *AuthorisationService) loadAuthorisation(ctx context.Context, st store.Store, consentID, authorisationID string) (domain.Authorisation, error) {
	a, err := st.Authorisations().GetAuthorisation(ctx, authorisationID)
	if err != nil {
		return domain.Authorisation{}, mapStoreErr(err, ErrAuthorisationUnknown)
	}
	if a.ParentID != consentID {
		return domain.Authorisation{}, ErrAuthorisationUnknown
	}
	return a, nil
}

func loadConsent(ctx context.Context, st store.Store, consentID string) (domain.Consent, error) {
	c, err := st.Consents().GetConsentByExternalID(ctx, consentID)
	if err != nil {
		return domain.Consent{}, mapStoreErr(err, ErrConsentUnknown)
	}
	return c, nil
}

func loadOwned(ctx context.Context, st store.Store, consentID, tppID string) (domain.Consent, error) {
	c, err := loadConsent(ctx, st, consentID)
	if err != nil {
		return domain.Consent{}, err
	}
	if c.TppID != tppID {
		return domain.Consent{}, ErrTppMismatch
	}
	return c, nil
}

func findMethod(methods []domain.ScaMethod, id string) (domain.ScaMethod, bool) {
	for _, m := range methods {
		if m.ID == id {
			return m, true
		}
	}
	return domain.ScaMethod{}, false
}

// newConfirmationCode returns eight random decimal digits.
func newConfirmationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%08d", n.Int64()), nil
}
