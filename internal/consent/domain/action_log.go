package domain

import "time"

// ActionStatus is the outcome of one AIS request, as written to the action
// log.
type ActionStatus string

const (
	ActionSuccess              ActionStatus = "SUCCESS"
	ActionBadPayload           ActionStatus = "BAD_PAYLOAD"
	ActionConsentNotFound      ActionStatus = "CONSENT_NOT_FOUND"
	ActionConsentInvalidStatus ActionStatus = "CONSENT_INVALID_STATUS"
	ActionConsentExpired       ActionStatus = "CONSENT_EXPIRED"
	ActionAccessExceeded       ActionStatus = "ACCESS_EXCEEDED"
	ActionConsentAccessDenied  ActionStatus = "CONSENT_ACCESS_DENIED"
	ActionFailure              ActionStatus = "FAILURE"
)

// ActionLogEntry records one AIS request against a consent.
type ActionLogEntry struct {
	ID            string
	TppID         string
	ConsentID     string
	ActionStatus  ActionStatus
	RequestURI    string
	UpdateUsage   bool
	ResourceID    string // optional
	TransactionID string // optional
	CreatedAt     time.Time
}
