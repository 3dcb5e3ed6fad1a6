package domain

import "time"

// ScaStatus is the status of one SCA attempt.
type ScaStatus string

const (
	ScaReceived         ScaStatus = "RECEIVED"
	ScaPsuIdentified    ScaStatus = "PSUIDENTIFIED"
	ScaPsuAuthenticated ScaStatus = "PSUAUTHENTICATED"
	ScaMethodSelected   ScaStatus = "SCAMETHODSELECTED"
	ScaStarted          ScaStatus = "STARTED"
	ScaUnconfirmed      ScaStatus = "UNCONFIRMED"
	ScaFinalised        ScaStatus = "FINALISED"
	ScaFailed           ScaStatus = "FAILED"
	ScaExempted         ScaStatus = "EXEMPTED"
)

var scaStatusWire = map[ScaStatus]string{
	ScaReceived:         "received",
	ScaPsuIdentified:    "psuIdentified",
	ScaPsuAuthenticated: "psuAuthenticated",
	ScaMethodSelected:   "scaMethodSelected",
	ScaStarted:          "started",
	ScaUnconfirmed:      "unconfirmed",
	ScaFinalised:        "finalised",
	ScaFailed:           "failed",
	ScaExempted:         "exempted",
}

// ParseScaStatus accepts both the stored ("PSUIDENTIFIED") and the wire
// ("psuIdentified") spelling.
func ParseScaStatus(s string) (ScaStatus, bool) {
	if _, ok := scaStatusWire[ScaStatus(s)]; ok {
		return ScaStatus(s), true
	}
	for st, w := range scaStatusWire {
		if w == s {
			return st, true
		}
	}
	return "", false
}

// Wire returns the NextGenPSD2 spelling.
func (s ScaStatus) Wire() string {
	if w, ok := scaStatusWire[s]; ok {
		return w
	}
	return string(s)
}

// IsFinalised reports a successful terminal status.
func (s ScaStatus) IsFinalised() bool {
	return s == ScaFinalised || s == ScaExempted
}

// IsTerminal reports whether no further transition is possible.
func (s ScaStatus) IsTerminal() bool {
	return s == ScaFinalised || s == ScaFailed || s == ScaExempted
}

// ScaApproach is how the PSU performs SCA.
type ScaApproach string

const (
	ScaRedirect  ScaApproach = "REDIRECT"
	ScaEmbedded  ScaApproach = "EMBEDDED"
	ScaDecoupled ScaApproach = "DECOUPLED"
)

// Valid reports whether a is a known approach.
func (a ScaApproach) Valid() bool {
	return a == ScaRedirect || a == ScaEmbedded || a == ScaDecoupled
}

// ScaRedirectFlow is the ASPSP's redirect flavour.
type ScaRedirectFlow string

const (
	RedirectFlowRedirect ScaRedirectFlow = "REDIRECT"
	RedirectFlowOAuth    ScaRedirectFlow = "OAUTH"
)

// AuthorisationType is what an authorisation confirms.
type AuthorisationType string

const (
	AuthorisationConsent         AuthorisationType = "CONSENT"
	AuthorisationPisCancellation AuthorisationType = "PIS_CANCELLATION"
)

// Authorisation is one SCA attempt on a consent (or on a payment
// cancellation). It is never deleted.
type Authorisation struct {
	ID         string // internal ULID
	ExternalID string
	ParentID   string // external id of the consent
	Type       AuthorisationType
	InstanceID string

	PSU                    *PsuIdData
	ScaStatus              ScaStatus
	ScaApproach            ScaApproach
	AuthenticationMethodID string

	// ConfirmationCode is issued when the authorisation becomes UNCONFIRMED
	// and must be presented by the TPP to finalise it.
	ConfirmationCode string

	RedirectURI          string
	NokRedirectURI       string
	RedirectURLExpiresAt time.Time
	ExpiresAt            time.Time

	// ExpiredAt is set when housekeeping failed the authorisation for
	// outliving its expiry.
	ExpiredAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// IsExpired reports whether an authorisation has outlived its redirect link
// or its own lifetime. Authorisations that reached a terminal status through
// SCA never expire; those failed by housekeeping stay expired.
func (a *Authorisation) IsExpired(now time.Time) bool {
	if !a.ExpiredAt.IsZero() {
		return true
	}
	if a.ScaStatus.IsTerminal() {
		return false
	}
	if !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt) {
		return true
	}
	return !a.RedirectURLExpiresAt.IsZero() && now.After(a.RedirectURLExpiresAt)
}

// AuthorisationParent is what a new authorisation copies from its parent.
type AuthorisationParent struct {
	ExternalID        string
	InstanceID        string
	TppRedirectURI    string
	TppNokRedirectURI string
}

// Parent returns the consent's view as an authorisation parent.
func (c *Consent) Parent() AuthorisationParent {
	return AuthorisationParent{
		ExternalID:        c.ExternalID,
		InstanceID:        c.InstanceID,
		TppRedirectURI:    c.TppRedirectURI,
		TppNokRedirectURI: c.TppNokRedirectURI,
	}
}

type edgeSet map[ScaStatus][]ScaStatus

// scaTransitions lists the legal forward edges per approach. FAILED is
// reachable from every non-terminal status and is not listed.
var scaTransitions = map[ScaApproach]edgeSet{
	ScaRedirect: {
		ScaReceived:         {ScaPsuIdentified, ScaPsuAuthenticated, ScaMethodSelected, ScaStarted, ScaFinalised, ScaExempted},
		ScaPsuIdentified:    {ScaPsuAuthenticated, ScaMethodSelected, ScaStarted, ScaFinalised},
		ScaPsuAuthenticated: {ScaMethodSelected, ScaStarted, ScaFinalised, ScaExempted},
		ScaMethodSelected:   {ScaStarted, ScaUnconfirmed, ScaFinalised},
		ScaStarted:          {ScaUnconfirmed, ScaFinalised},
		ScaUnconfirmed:      {ScaFinalised},
	},
	ScaEmbedded: {
		ScaReceived:         {ScaPsuIdentified, ScaPsuAuthenticated, ScaExempted},
		ScaPsuIdentified:    {ScaPsuAuthenticated, ScaExempted},
		ScaPsuAuthenticated: {ScaMethodSelected, ScaFinalised, ScaExempted},
		ScaMethodSelected:   {ScaUnconfirmed, ScaFinalised},
		ScaUnconfirmed:      {ScaFinalised},
	},
	ScaDecoupled: {
		ScaReceived:         {ScaPsuIdentified, ScaPsuAuthenticated, ScaStarted, ScaExempted},
		ScaPsuIdentified:    {ScaPsuAuthenticated, ScaStarted, ScaExempted},
		ScaPsuAuthenticated: {ScaMethodSelected, ScaStarted, ScaExempted},
		ScaMethodSelected:   {ScaStarted},
		ScaStarted:          {ScaUnconfirmed, ScaFinalised},
		ScaUnconfirmed:      {ScaStarted, ScaFinalised},
	},
}

// CanTransition reports whether approach allows moving from one status to
// another.
func CanTransition(approach ScaApproach, from, to ScaStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == ScaFailed {
		return true
	}
	for _, next := range scaTransitions[approach][from] {
		if next == to {
			return true
		}
	}
	return false
}

// ScaMethod is one authentication method a PSU can use for SCA.
type ScaMethod struct {
	ID   string // authenticationMethodId
	Type string // e.g. SMS_OTP, PUSH_OTP
	Name string
}
