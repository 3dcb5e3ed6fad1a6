package service

import (
	"context"
	"maps"
	"strings"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/internal/consent/store"
	"github.com/aussiebroadwan/aisconsent/pkg/clock"
)

// UsageCounter tracks how often a consent was used per endpoint and UTC day.
// Counters are keyed by normalised request path, so /v1/accounts and
// /v1/accounts/{id}/balances are counted independently.
type UsageCounter struct {
	Store store.Store
	Clock clock.Clock
}

// NormalizePath reduces a request URI to its usage key: no query or
// fragment, no repeated or trailing slashes.
func NormalizePath(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	var b strings.Builder
	b.Grow(len(uri) + 1)
	for _, seg := range strings.Split(uri, "/") {
		if seg == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(seg)
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// Remaining returns the calls left today on path. A path never used, or last
// used on an earlier day, has the full daily allowance.
func (u *UsageCounter) Remaining(c *domain.Consent, path string) int {
	rec, ok := c.Usages[NormalizePath(path)]
	if !ok || rec.Date != domain.FormatDate(u.Clock.Now()) {
		return c.FrequencyPerDay
	}
	return rec.Remaining
}

// NeedsUpdate reports whether a request is counted: the effective access
// covers exactly one account identity, or the TPP called without the PSU
// being present.
func (u *UsageCounter) NeedsUpdate(c *domain.Consent, isFromTpp bool) bool {
	return isOneAccessType(c) || isFromTpp
}

func isOneAccessType(c *domain.Consent) bool {
	return EffectiveAccess(c).Access.IsOneAccessType()
}

// Decrement consumes one call on path. It writes through the store guarded
// by c.Version and, on success, updates c in place with the new record and
// version. A counter at zero is ErrConsentExhausted; a version mismatch is
// ErrConcurrentModification and leaves c untouched.
func (u *UsageCounter) Decrement(ctx context.Context, c *domain.Consent, path string) error {
	path = NormalizePath(path)
	remaining := u.Remaining(c, path)
	if remaining <= 0 {
		return ErrConsentExhausted
	}

	now := u.Clock.Now()
	rec := domain.UsageRecord{Remaining: remaining - 1, Date: domain.FormatDate(now)}
	next, err := u.Store.Consents().SaveUsage(ctx, c.ID, path, rec, now, c.Version)
	if err != nil {
		return mapStoreErr(err, ErrConsentUnknown)
	}

	usages := maps.Clone(c.Usages)
	if usages == nil {
		usages = map[string]domain.UsageRecord{}
	}
	usages[path] = rec
	c.Usages = usages
	c.Version = next
	day := domain.DateOf(now)
	c.LastActionDate = &day
	return nil
}
