package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
)

var (
	ErrNotFound        = errors.New("store: not found")
	ErrAlreadyExists   = errors.New("store: already exists")
	ErrVersionConflict = errors.New("store: version conflict")

	// ErrInvalidData reports stored or supplied data that cannot be mapped,
	// such as an unknown additional-information type.
	ErrInvalidData = errors.New("store: invalid data")
)

// Store is the root data access interface. Drivers implement it and expose
// sub-repositories; a Tx exposes the same repositories bound to one
// transaction and refuses to nest.
type Store interface {
	Consents() Consents
	Authorisations() Authorisations
	ActionLog() ActionLog

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing when fn returns
	// nil and rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Consents persists the consent aggregate. Every mutation is guarded by the
// consent's version: it succeeds only when the stored version equals
// expectedVersion and returns the incremented version.
type Consents interface {
	// CreateConsent inserts the consent with both access sets, PSUs and
	// usage records. The stored version is c.Version.
	CreateConsent(ctx context.Context, c domain.Consent) error

	// GetConsentByExternalID loads the full aggregate: access sets, PSUs,
	// usage records and authorisations.
	GetConsentByExternalID(ctx context.Context, externalID string) (domain.Consent, error)

	// UpdateConsent writes the mutable consent fields, both access sets
	// and the PSU list.
	UpdateConsent(ctx context.Context, c domain.Consent, expectedVersion int64) (int64, error)

	// SaveUsage stores the usage record of one endpoint and the last action
	// date.
	SaveUsage(ctx context.Context, consentID, path string, rec domain.UsageRecord, lastAction time.Time, expectedVersion int64) (int64, error)

	// ExpireConsents moves VALID consents whose last valid day is before
	// today to EXPIRED. Returns the number of consents changed.
	ExpireConsents(ctx context.Context, today, now time.Time) (int, error)

	// RejectStaleConsents moves consents still awaiting authorisation and
	// created before createdBefore to REJECTED.
	RejectStaleConsents(ctx context.Context, createdBefore, now time.Time) (int, error)
}

// Authorisations persists SCA authorisations. Rows are never deleted.
type Authorisations interface {
	CreateAuthorisation(ctx context.Context, a domain.Authorisation) error
	GetAuthorisation(ctx context.Context, externalID string) (domain.Authorisation, error)
	ListAuthorisationsByParent(ctx context.Context, parentID string) ([]domain.Authorisation, error)

	// UpdateAuthorisation writes status, approach, method, PSU and
	// timestamps when the stored version equals expectedVersion.
	UpdateAuthorisation(ctx context.Context, a domain.Authorisation, expectedVersion int64) (int64, error)

	// FailExpiredAuthorisations moves non-terminal authorisations whose
	// lifetime ended before now to FAILED and stamps them as expired.
	FailExpiredAuthorisations(ctx context.Context, now time.Time) (int, error)
}

// ActionLog is the append-only audit trail of AIS requests.
type ActionLog interface {
	AppendAction(ctx context.Context, e domain.ActionLogEntry) error

	// ListActions returns the newest entries of a consent first.
	ListActions(ctx context.Context, consentID string, limit int) ([]domain.ActionLogEntry, error)
}
