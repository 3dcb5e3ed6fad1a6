package http

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/bank"
	"github.com/aussiebroadwan/aisconsent/internal/consent/sca"
	"github.com/aussiebroadwan/aisconsent/internal/consent/service"
	"github.com/aussiebroadwan/aisconsent/internal/consent/store/drivers/sqlite"
	"github.com/aussiebroadwan/aisconsent/pkg/aissdk"
	"github.com/aussiebroadwan/aisconsent/pkg/clock"
	"github.com/aussiebroadwan/aisconsent/pkg/cryptox"
	"github.com/aussiebroadwan/aisconsent/pkg/jwtx"
	"github.com/aussiebroadwan/aisconsent/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const (
	fixturePath = "../bank/testdata/fixture.yaml"
	testIssuer  = "tpp-registry"
)

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type testServer struct {
	srv     *httptest.Server
	clock   *clock.FakeClock
	signers map[string]*jwtx.Signer
}

func newTestServer(t *testing.T) *testServer {
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

	keys := jwtx.NewKeySet()
	signers := map[string]*jwtx.Signer{}
	for _, kid := range []string{"tpp-1", "tpp-2", "aspsp"} {
		priv, pub, err := cryptox.GenerateEd25519KeyPair()
		require.NoError(t, err)
		s, err := jwtx.NewSigner(kid, priv)
		require.NoError(t, err)
		require.NoError(t, keys.AddPublicKeyPEM(kid, pub))
		signers[kid] = s
	}
	verifier := jwtx.NewVerifier(keys, jwtx.VerifyOptions{Issuer: testIssuer, Leeway: time.Minute})

	clk := clock.Fake(testNow)
	policy := service.DefaultPolicy()
	policy.ScaRedirectURL = "https://bank.example/sca/{redirect-id}/{encrypted-consent-id}"
	usage := &service.UsageCounter{Store: st, Clock: clk}
	consents := &service.ConsentService{Store: st, Clock: clk, Policy: policy, Signatories: dir, Bank: provider}

	router := NewRouter(keys, verifier, "test", st, slogx.Discard())
	router.ConsentService = consents
	router.AuthorisationService = &service.AuthorisationService{
		Store: st, Clock: clk, Policy: policy,
		PSUs: dir, Bank: provider, RedirectIDs: ids,
	}
	router.AccountService = &service.AccountService{
		Consents:  consents,
		Validator: &service.AccessValidator{Usage: usage},
		Usage:     usage,
		Bank:      provider,
		Actions:   service.NewAsyncActionLogger(service.StoreSink{Store: st}, slogx.Discard(), 16),
		Clock:     clk,
	}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, clock: clk, signers: signers}
}

// client returns an SDK client authenticated as kid with scopes.
func (s *testServer) client(t *testing.T, kid string, scopes ...string) *aissdk.Client {
	t.Helper()
	claims := jwtx.NewTppClaims(kid, kid, scopes, []string{"PSP_AI"},
		jwtx.DefaultTokenTTL, testIssuer, nil, time.Now())
	token, err := s.signers[kid].Sign(claims)
	require.NoError(t, err)
	return aissdk.NewClient(s.srv.URL, token)
}

func (s *testServer) tpp(t *testing.T) *aissdk.Client {
	return s.client(t, "tpp-1", "ais")
}

func (s *testServer) aspsp(t *testing.T) *aissdk.Client {
	return s.client(t, "aspsp", "aspsp:read", "aspsp:write")
}

// redirectIDs splits an scaRedirect link built from the test template into
// its redirect id and encrypted consent id.
func redirectIDs(t *testing.T, link string) (redirectID, encryptedConsentID string) {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	parts := strings.Split(strings.TrimPrefix(u.Path, "/sca/"), "/")
	require.Len(t, parts, 2)
	return parts[0], parts[1]
}

func dedicatedRequest(validUntil string, freq int) aissdk.CreateConsentRequest {
	return aissdk.CreateConsentRequest{
		Access: aissdk.AccountAccess{
			Accounts: []aissdk.AccountReference{
				{IBAN: "DE89370400440532013000", Currency: "EUR"},
				{PAN: "4111111111111111"},
			},
			Balances: []aissdk.AccountReference{{IBAN: "DE89370400440532013000", Currency: "EUR"}},
		},
		RecurringIndicator: true,
		ValidUntil:         validUntil,
		FrequencyPerDay:    freq,
	}
}

// validConsent creates a dedicated consent for psu-1 and authorises it
// through the REDIRECT flow.
func (s *testServer) validConsent(t *testing.T, freq int) string {
	t.Helper()
	ctx := context.Background()
	tpp := s.tpp(t)

	created, err := tpp.CreateConsent(ctx, dedicatedRequest("2026-06-30", freq), aissdk.ConsentOptions{PsuID: "psu-1"})
	require.NoError(t, err)

	started, err := tpp.StartAuthorisation(ctx, created.ConsentID, aissdk.StartAuthorisationRequest{}, aissdk.ConsentOptions{PsuID: "psu-1"})
	require.NoError(t, err)

	_, err = s.aspsp(t).UpdatePsuScaStatus(ctx, created.ConsentID, started.AuthorisationID, "finalised")
	require.NoError(t, err)
	return created.ConsentID
}
