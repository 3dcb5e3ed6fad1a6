package cryptox_test

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/aussiebroadwan/aisconsent/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestGenerateEd25519KeyPair(t *testing.T) {
	privPEM, pubPEM, err := cryptox.GenerateEd25519KeyPair()
	require.NoError(t, err)

	block, _ := pem.Decode(privPEM)
	require.NotNil(t, block)
	require.Equal(t, "PRIVATE KEY", block.Type)

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	require.NoError(t, err)
	priv, ok := parsed.(ed25519.PrivateKey)
	require.True(t, ok)

	pub, err := cryptox.ParseEd25519PublicKey(pubPEM)
	require.NoError(t, err)
	require.Equal(t, priv.Public(), pub)
}

func TestParseEd25519PublicKey(t *testing.T) {
	t.Run("rejects non-PEM input", func(t *testing.T) {
		_, err := cryptox.ParseEd25519PublicKey([]byte("not a key"))
		require.Error(t, err)
	})

	t.Run("rejects private key blocks", func(t *testing.T) {
		privPEM, _, err := cryptox.GenerateEd25519KeyPair()
		require.NoError(t, err)

		_, err = cryptox.ParseEd25519PublicKey(privPEM)
		require.Error(t, err)
	})
}
