package domain

import (
	"slices"
	"time"
)

// ConsentStatus is the lifecycle status of a consent.
type ConsentStatus string

const (
	ConsentReceived            ConsentStatus = "RECEIVED"
	ConsentPartiallyAuthorised ConsentStatus = "PARTIALLY_AUTHORISED"
	ConsentValid               ConsentStatus = "VALID"
	ConsentRejected            ConsentStatus = "REJECTED"
	ConsentRevokedByPsu        ConsentStatus = "REVOKED_BY_PSU"
	ConsentExpired             ConsentStatus = "EXPIRED"
	ConsentTerminatedByTpp     ConsentStatus = "TERMINATED_BY_TPP"
	ConsentTerminatedByAspsp   ConsentStatus = "TERMINATED_BY_ASPSP"
)

var consentStatusWire = map[ConsentStatus]string{
	ConsentReceived:            "received",
	ConsentPartiallyAuthorised: "partiallyAuthorised",
	ConsentValid:               "valid",
	ConsentRejected:            "rejected",
	ConsentRevokedByPsu:        "revokedByPsu",
	ConsentExpired:             "expired",
	ConsentTerminatedByTpp:     "terminatedByTpp",
	ConsentTerminatedByAspsp:   "terminatedByAspsp",
}

// IsTerminal reports whether no further transition is possible.
func (s ConsentStatus) IsTerminal() bool {
	switch s {
	case ConsentReceived, ConsentPartiallyAuthorised, ConsentValid:
		return false
	}
	return true
}

// Wire returns the NextGenPSD2 spelling ("partiallyAuthorised").
func (s ConsentStatus) Wire() string {
	if w, ok := consentStatusWire[s]; ok {
		return w
	}
	return string(s)
}

// ConsentType is derived from the consent's access request.
type ConsentType string

const (
	ConsentTypeDedicatedAccounts    ConsentType = "DEDICATED_ACCOUNTS"
	ConsentTypeBankOffered          ConsentType = "BANK_OFFERED"
	ConsentTypeGlobal               ConsentType = "GLOBAL"
	ConsentTypeAllAvailableAccounts ConsentType = "ALL_AVAILABLE_ACCOUNTS"
)

// PsuIdData identifies a PSU.
type PsuIdData struct {
	PsuID              string
	PsuIDType          string
	PsuCorporateID     string
	PsuCorporateIDType string
}

// IsEmpty reports whether no PSU id is set.
func (p PsuIdData) IsEmpty() bool {
	return p.PsuID == "" && p.PsuCorporateID == ""
}

// SamePsu compares by PSU id and corporate id; the id types are ignored.
func (p PsuIdData) SamePsu(o PsuIdData) bool {
	return p.PsuID == o.PsuID && p.PsuCorporateID == o.PsuCorporateID
}

// UsageRecord is the remaining allowance of one endpoint on one day.
type UsageRecord struct {
	Remaining int
	Date      string // YYYY-MM-DD, UTC
}

// DateLayout is the layout of consent dates (validUntil, usage days).
const DateLayout = "2006-01-02"

// Consent is the aggregate root of an AIS consent.
type Consent struct {
	ID                string // internal ULID
	ExternalID        string // handed to the TPP
	TppID             string
	InstanceID        string
	InternalRequestID string

	Status                   ConsentStatus
	RecurringIndicator       bool
	CombinedServiceIndicator bool
	ValidUntil               time.Time // date, UTC midnight, inclusive
	ExpireDate               *time.Time
	FrequencyPerDay          int

	TppAccess                AccountAccess
	AspspAccess              AccountAccess
	Flags                    AccessFlags
	OwnerNameType            AdditionalAccountInformationType
	TrustedBeneficiariesType AdditionalAccountInformationType

	PSUs                  []PsuIdData
	MultilevelScaRequired bool
	TppRedirectURI        string
	TppNokRedirectURI     string

	Usages         map[string]UsageRecord
	Authorisations []Authorisation

	LastActionDate        *time.Time
	CreationTimestamp     time.Time
	StatusChangeTimestamp time.Time

	Checksum string
	Version  int64
}

// TppView is the access set the TPP requested.
func (c *Consent) TppView() AccessView {
	return AccessView{Access: c.TppAccess, Flags: c.Flags, Source: SourceTPP}
}

// AspspView is the access set the ASPSP confirmed, with the same flags.
func (c *Consent) AspspView() AccessView {
	return AccessView{Access: c.AspspAccess, Flags: c.Flags, Source: SourceASPSP}
}

// Type derives the consent type from the flags and TPP access.
func (c *Consent) Type() ConsentType {
	switch {
	case c.Flags.AllPsd2 != "":
		return ConsentTypeGlobal
	case c.Flags.AvailableAccounts != "" || c.Flags.AvailableAccountsWithBalance != "":
		return ConsentTypeAllAvailableAccounts
	case !c.TppAccess.IsNotEmpty():
		return ConsentTypeBankOffered
	}
	return ConsentTypeDedicatedAccounts
}

// IsOneOff reports whether the consent may only be used on a single day.
func (c *Consent) IsOneOff() bool {
	return !c.RecurringIndicator
}

// IsExpiredAt reports whether now is past the last valid day.
func (c *Consent) IsExpiredAt(now time.Time) bool {
	if c.ValidUntil.IsZero() {
		return false
	}
	return DateOf(now).After(DateOf(c.ValidUntil))
}

// HasPsu reports whether psu is one of the consent's PSUs.
func (c *Consent) HasPsu(psu PsuIdData) bool {
	return slices.ContainsFunc(c.PSUs, psu.SamePsu)
}

// AuthorisedStatus derives the consent status implied by its consent
// authorisations. Without multilevel SCA one finalised authorisation makes
// the consent VALID. With multilevel SCA every PSU of the consent needs its
// own finalised authorisation; until then the consent is
// PARTIALLY_AUTHORISED once at least one PSU has finished.
func (c *Consent) AuthorisedStatus() ConsentStatus {
	var done []PsuIdData
	anyDone := false
	for _, a := range c.Authorisations {
		if a.Type != AuthorisationConsent || !a.ScaStatus.IsFinalised() {
			continue
		}
		anyDone = true
		if a.PSU != nil && !slices.ContainsFunc(done, a.PSU.SamePsu) {
			done = append(done, *a.PSU)
		}
	}

	if !anyDone {
		return ConsentReceived
	}
	if !c.MultilevelScaRequired {
		return ConsentValid
	}

	required := c.PSUs
	if len(required) == 0 {
		return ConsentValid
	}
	for _, psu := range required {
		if !slices.ContainsFunc(done, psu.SamePsu) {
			return ConsentPartiallyAuthorised
		}
	}
	return ConsentValid
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate formats t as YYYY-MM-DD in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
