package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/aisconsent/pkg/cryptox"
	"github.com/aussiebroadwan/aisconsent/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testIssuer = "tpp-registry"

func newSigner(t *testing.T, kid string) (*jwtx.Signer, []byte) {
	t.Helper()
	priv, pub, err := cryptox.GenerateEd25519KeyPair()
	require.NoError(t, err)
	s, err := jwtx.NewSigner(kid, priv)
	require.NoError(t, err)
	return s, pub
}

func TestSignAndVerify(t *testing.T) {
	signer, pubPEM := newSigner(t, "tpp-1")
	require.Equal(t, "EdDSA", signer.Alg())
	require.Equal(t, "tpp-1", signer.KID())

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	claims := jwtx.NewTppClaims("tpp-1", "Acme AIS", []string{"ais"}, []string{"PSP_AI"},
		jwtx.DefaultTokenTTL, testIssuer, []string{"aisconsent"}, now)

	token, err := signer.Sign(claims)
	require.NoError(t, err)

	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddPublicKeyPEM("tpp-1", pubPEM))
	require.True(t, keys.IsReady())
	require.Equal(t, []string{"tpp-1"}, keys.KIDs())

	v := jwtx.NewVerifier(keys, jwtx.VerifyOptions{
		Issuer:   testIssuer,
		Audience: []string{"aisconsent"},
		Now:      func() time.Time { return now.Add(time.Minute) },
	})

	got, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, claims.Subject, got.Subject)
	require.Equal(t, claims.TppName, got.TppName)
	require.ElementsMatch(t, claims.Scopes, got.Scopes)
	require.ElementsMatch(t, claims.Roles, got.Roles)
	require.Equal(t, claims.ID, got.ID)
}

func TestVerifyFailures(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	signer, _ := newSigner(t, "tpp-1")
	other, _ := newSigner(t, "tpp-2")

	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddSigner(other))

	sign := func(s *jwtx.Signer, c jwtx.Claims) string {
		tok, err := s.Sign(c)
		require.NoError(t, err)
		return tok
	}
	base := func() jwtx.Claims {
		return jwtx.NewTppClaims("tpp-2", "", []string{"ais"}, nil, time.Minute, testIssuer, nil, now)
	}
	at := func(ts time.Time) func() time.Time { return func() time.Time { return ts } }

	t.Run("unknown kid", func(t *testing.T) {
		v := jwtx.NewVerifier(keys, jwtx.VerifyOptions{Now: at(now)})
		_, err := v.Verify(sign(signer, base()))
		require.ErrorIs(t, err, jwtx.ErrUnknownKID)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		v := jwtx.NewVerifier(keys, jwtx.VerifyOptions{Issuer: "elsewhere", Now: at(now)})
		_, err := v.Verify(sign(other, base()))
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("wrong audience", func(t *testing.T) {
		v := jwtx.NewVerifier(keys, jwtx.VerifyOptions{Audience: []string{"aisconsent"}, Now: at(now)})
		_, err := v.Verify(sign(other, base()))
		require.ErrorIs(t, err, jwtx.ErrAudience)
	})

	t.Run("expired against injected clock", func(t *testing.T) {
		v := jwtx.NewVerifier(keys, jwtx.VerifyOptions{Now: at(now.Add(time.Hour))})
		_, err := v.Verify(sign(other, base()))
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("leeway tolerates skew", func(t *testing.T) {
		v := jwtx.NewVerifier(keys, jwtx.VerifyOptions{Leeway: time.Minute, Now: at(now.Add(90 * time.Second))})
		_, err := v.Verify(sign(other, base()))
		require.NoError(t, err)
	})

	t.Run("non EdDSA token rejected", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, base())
		tok.Header["kid"] = "tpp-2"
		raw, err := tok.SignedString([]byte("secret"))
		require.NoError(t, err)

		v := jwtx.NewVerifier(keys, jwtx.VerifyOptions{Now: at(now)})
		_, err = v.Verify(raw)
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		v := jwtx.NewVerifier(keys, jwtx.VerifyOptions{Now: at(now)})
		_, err := v.Verify("not.a.jwt")
		require.Error(t, err)
	})
}

func TestKeySetRejectsBadKeys(t *testing.T) {
	keys := jwtx.NewKeySet()
	require.Error(t, keys.AddPublicKey("", make([]byte, 32)))
	require.Error(t, keys.AddPublicKey("k", []byte{1, 2, 3}))
	require.Error(t, keys.AddPublicKeyPEM("k", []byte("not pem")))

	_, err := keys.Get("missing")
	require.ErrorIs(t, err, jwtx.ErrNoKey)
	require.False(t, keys.IsReady())
}
