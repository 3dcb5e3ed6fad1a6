package sca_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/internal/consent/sca"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const directoryYAML = `
psus:
  - id: psu-1
    password: correct horse
    totpSecret: JBSWY3DPEHPK3PXP
  - id: psu-2
    password: battery staple
corporates:
  - id: corp-1
    signatories: [psu-1, psu-2]
`

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	d, err := sca.ParseDirectory([]byte(directoryYAML))
	require.NoError(t, err)

	alice := domain.PsuIdData{PsuID: "psu-1"}

	t.Run("password", func(t *testing.T) {
		require.NoError(t, d.Authenticate(ctx, alice, "correct horse"))
		require.ErrorIs(t, d.Authenticate(ctx, alice, "wrong"), sca.ErrCredentialsInvalid)
		require.ErrorIs(t, d.Authenticate(ctx, domain.PsuIdData{PsuID: "nobody"}, "x"), sca.ErrUnknownPsu)
	})

	t.Run("methods", func(t *testing.T) {
		methods, err := d.Methods(ctx, alice)
		require.NoError(t, err)
		require.Equal(t, []domain.ScaMethod{sca.MethodTOTP}, methods)

		methods, err = d.Methods(ctx, domain.PsuIdData{PsuID: "psu-2"})
		require.NoError(t, err)
		require.Empty(t, methods)
	})

	t.Run("totp tan", func(t *testing.T) {
		at := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
		code, err := totp.GenerateCode("JBSWY3DPEHPK3PXP", at)
		require.NoError(t, err)

		require.NoError(t, d.VerifyTAN(ctx, alice, "totp", code, at))
		require.ErrorIs(t, d.VerifyTAN(ctx, alice, "totp", code, at.Add(10*time.Minute)), sca.ErrTANInvalid)
		require.ErrorIs(t, d.VerifyTAN(ctx, alice, "sms", code, at), sca.ErrTANInvalid)
	})

	t.Run("signatories", func(t *testing.T) {
		psus, err := d.Signatories(ctx, "corp-1")
		require.NoError(t, err)
		require.Len(t, psus, 2)
		require.Equal(t, "psu-2", psus[1].PsuID)
		require.Equal(t, "corp-1", psus[1].PsuCorporateID)

		_, err = d.Signatories(ctx, "corp-x")
		require.ErrorIs(t, err, sca.ErrUnknownCorporate)
	})
}

func TestParseDirectoryRejectsUnknownSignatory(t *testing.T) {
	t.Parallel()

	_, err := sca.ParseDirectory([]byte("corporates:\n  - id: c\n    signatories: [ghost]\n"))
	require.Error(t, err)
}
