package app

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/aisconsent/pkg/aissdk"
	"github.com/aussiebroadwan/aisconsent/pkg/cryptox"
	"github.com/aussiebroadwan/aisconsent/pkg/jwtx"
	"github.com/aussiebroadwan/aisconsent/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const fixturePath = "../bank/testdata/fixture.yaml"

// writeKey stores a fresh public key as <kid>.pem in dir and returns the
// matching signer.
func writeKey(t *testing.T, dir, kid string) *jwtx.Signer {
	t.Helper()
	priv, pub, err := cryptox.GenerateEd25519KeyPair()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, kid+".pem"), pub, 0o600))
	s, err := jwtx.NewSigner(kid, priv)
	require.NoError(t, err)
	return s
}

func testConfig(t *testing.T) Config {
	dir := t.TempDir()
	keysDir := filepath.Join(dir, "keys")
	require.NoError(t, os.Mkdir(keysDir, 0o700))

	return Config{
		DatabaseFile:         filepath.Join(dir, "consent.db"),
		BankFixtureFile:      fixturePath,
		TppKeysDir:           keysDir,
		TokenIssuer:          "tpp-registry",
		ActionLogBuffer:      8,
		Env:                  "test",
		LogLevel:             "error",
		LogFormat:            "text",
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
	}
}

func TestLoadTppKeys(t *testing.T) {
	dir := t.TempDir()
	writeKey(t, dir, "tpp-1")
	writeKey(t, dir, "aspsp")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("ignored"), 0o600))

	keys, err := LoadTppKeys(dir, slogx.Discard())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"tpp-1", "aspsp"}, keys.KIDs())

	t.Run("invalid pem", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.pem"), []byte("nope"), 0o600))
		_, err := LoadTppKeys(dir, slogx.Discard())
		require.Error(t, err)
	})

	t.Run("missing dir", func(t *testing.T) {
		_, err := LoadTppKeys(filepath.Join(dir, "absent"), slogx.Discard())
		require.Error(t, err)
	})
}

func TestInitRedirectCipher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redirect.key")
	require.NoError(t, os.WriteFile(path, []byte("a stable redirect key"), 0o600))

	a, err := InitRedirectCipher(path, slogx.Discard())
	require.NoError(t, err)
	b, err := InitRedirectCipher(path, slogx.Discard())
	require.NoError(t, err)

	token, err := a.Encrypt("consent-1")
	require.NoError(t, err)
	id, err := b.Decrypt(token)
	require.NoError(t, err)
	require.Equal(t, "consent-1", id)

	ephemeral, err := InitRedirectCipher("", slogx.Discard())
	require.NoError(t, err)
	_, err = ephemeral.Decrypt(token)
	require.Error(t, err)
}

func TestApplication(t *testing.T) {
	cfg := testConfig(t)
	tpp := writeKey(t, cfg.TppKeysDir, "tpp-1")

	app, err := New(cfg)
	require.NoError(t, err)
	require.Nil(t, app.graph)

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	claims := jwtx.NewTppClaims("tpp-1", "Test TPP", []string{"ais"}, nil,
		jwtx.DefaultTokenTTL, cfg.TokenIssuer, nil, time.Now())
	token, err := tpp.Sign(claims)
	require.NoError(t, err)
	client := aissdk.NewClient(srv.URL, token)
	ctx := context.Background()

	ready, err := client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)

	created, err := client.CreateConsent(ctx, aissdk.CreateConsentRequest{
		Access: aissdk.AccountAccess{
			Accounts: []aissdk.AccountReference{{IBAN: "DE89370400440532013000", Currency: "EUR"}},
		},
		RecurringIndicator: true,
		ValidUntil:         time.Now().AddDate(0, 1, 0).Format(time.DateOnly),
		FrequencyPerDay:    4,
	}, aissdk.ConsentOptions{PsuID: "psu-1"})
	require.NoError(t, err)
	require.Equal(t, "received", created.ConsentStatus)

	app.housekeepingService.Start()
	require.NoError(t, app.Shutdown())
}

func TestApplicationConfigErrors(t *testing.T) {
	t.Run("missing fixture", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.BankFixtureFile = filepath.Join(t.TempDir(), "absent.yaml")
		_, err := New(cfg)
		require.Error(t, err)
	})

	t.Run("invalid profile", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.ProfileFile = filepath.Join(t.TempDir(), "profile.yaml")
		require.NoError(t, os.WriteFile(cfg.ProfileFile, []byte("scaApproaches: [SMOKE_SIGNALS]\n"), 0o600))
		_, err := New(cfg)
		require.Error(t, err)
	})
}
