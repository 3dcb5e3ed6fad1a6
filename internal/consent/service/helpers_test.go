package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/bank"
	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/internal/consent/sca"
	"github.com/aussiebroadwan/aisconsent/internal/consent/store/drivers/sqlite"
	"github.com/aussiebroadwan/aisconsent/pkg/clock"
	"github.com/aussiebroadwan/aisconsent/pkg/cryptox"
	"github.com/aussiebroadwan/aisconsent/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const fixturePath = "../bank/testdata/fixture.yaml"

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

var (
	ibanAcc1 = domain.AccountReference{IBAN: "DE89370400440532013000", Currency: "EUR"}
	ibanAcc2 = domain.AccountReference{IBAN: "DE75512108001245126199", Currency: "USD"}
	panCard1 = domain.AccountReference{PAN: "4111111111111111"}
)

// recordingLogger keeps logged actions in memory.
type recordingLogger struct {
	mu      sync.Mutex
	entries []domain.ActionLogEntry
}

func (r *recordingLogger) Log(e domain.ActionLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingLogger) Entries() []domain.ActionLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ActionLogEntry(nil), r.entries...)
}

type harness struct {
	store    *sqlite.Store
	clock    *clock.FakeClock
	bank     *bank.FixtureProvider
	psus     *sca.Directory
	policy   Policy
	consents *ConsentService
	auths    *AuthorisationService
	accounts *AccountService
	usage    *UsageCounter
	actions  *recordingLogger
}

func newHarness(t *testing.T, tweak ...func(*Policy)) *harness {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	provider, err := bank.LoadFixture(fixturePath)
	require.NoError(t, err)
	dir, err := sca.LoadDirectory(fixturePath)
	require.NoError(t, err)
	ids, err := cryptox.NewIDCipher([]byte("test-redirect-key"))
	require.NoError(t, err)

	policy := DefaultPolicy()
	policy.UsageRetry = RetryPolicy{Attempts: 5, Backoff: time.Millisecond}
	for _, fn := range tweak {
		fn(&policy)
	}

	clk := clock.Fake(testNow)
	usage := &UsageCounter{Store: st, Clock: clk}
	consents := &ConsentService{Store: st, Clock: clk, Policy: policy, Signatories: dir, Bank: provider}
	actions := &recordingLogger{}

	return &harness{
		store:    st,
		clock:    clk,
		bank:     provider,
		psus:     dir,
		policy:   policy,
		consents: consents,
		auths: &AuthorisationService{
			Store: st, Clock: clk, Policy: policy,
			PSUs: dir, Bank: provider, RedirectIDs: ids,
		},
		accounts: &AccountService{
			Consents:  consents,
			Validator: &AccessValidator{Usage: usage},
			Usage:     usage,
			Bank:      provider,
			Actions:   actions,
			Clock:     clk,
		},
		usage:   usage,
		actions: actions,
	}
}

func testContext() context.Context {
	return slogx.WithContext(context.Background(), slogx.Discard())
}

func recurring(access domain.AccountAccess, psu string) CreateConsentInput {
	return CreateConsentInput{
		Access:             access,
		RecurringIndicator: true,
		ValidUntil:         testNow.AddDate(0, 1, 0),
		FrequencyPerDay:    4,
		PSU:                domain.PsuIdData{PsuID: psu},
		RedirectURI:        "https://tpp.example/ok",
		NokRedirectURI:     "https://tpp.example/nok",
	}
}

// authorise runs a REDIRECT authorisation for psu to FINALISED and returns
// the reloaded consent.
func (h *harness) authorise(t *testing.T, c domain.Consent, psu domain.PsuIdData) domain.Consent {
	t.Helper()
	ctx := testContext()

	res, err := h.auths.StartAuthorisation(ctx, c.TppID, c.ExternalID, StartAuthorisationInput{
		PSU: psu, Approach: domain.ScaRedirect,
	})
	require.NoError(t, err)
	_, err = h.auths.UpdateScaStatus(ctx, c.ExternalID, res.Authorisation.ExternalID, domain.ScaFinalised, 0)
	require.NoError(t, err)

	out, err := h.consents.GetConsent(ctx, c.TppID, c.ExternalID)
	require.NoError(t, err)
	return out
}

// validConsent creates a consent for tpp-1 and authorises it.
func (h *harness) validConsent(t *testing.T, in CreateConsentInput) domain.Consent {
	t.Helper()

	c, err := h.consents.CreateConsent(testContext(), "tpp-1", in)
	require.NoError(t, err)
	c = h.authorise(t, c, in.PSU)
	require.Equal(t, domain.ConsentValid, c.Status)
	return c
}
