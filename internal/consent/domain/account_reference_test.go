package domain_test

import (
	"testing"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/stretchr/testify/require"
)

func TestUsedSelectorPriority(t *testing.T) {
	tests := []struct {
		name string
		ref  domain.AccountReference
		typ  domain.AccountReferenceType
		val  string
	}{
		{"iban wins", domain.AccountReference{IBAN: "DE1", BBAN: "B1", PAN: "4111"}, domain.RefIBAN, "DE1"},
		{"bban before pan", domain.AccountReference{BBAN: "B1", PAN: "4111", MSISDN: "+49"}, domain.RefBBAN, "B1"},
		{"pan before masked", domain.AccountReference{PAN: "4111", MaskedPAN: "41xx"}, domain.RefPAN, "4111"},
		{"masked before msisdn", domain.AccountReference{MaskedPAN: "41xx", MSISDN: "+49"}, domain.RefMaskedPAN, "41xx"},
		{"msisdn", domain.AccountReference{MSISDN: "+49"}, domain.RefMSISDN, "+49"},
		{"none", domain.AccountReference{Currency: "EUR", ResourceID: "r"}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, val := tt.ref.UsedSelector()
			require.Equal(t, tt.typ, typ)
			require.Equal(t, tt.val, val)
		})
	}
}

func TestMatches(t *testing.T) {
	iban := domain.AccountReference{IBAN: "DE89370400440532013000", Currency: "EUR"}

	t.Run("same iban different formatting", func(t *testing.T) {
		other := domain.AccountReference{IBAN: "de89 3704 0044 0532 0130 00"}
		require.True(t, iban.Matches(other))
	})

	t.Run("currency only compared when both set", func(t *testing.T) {
		require.True(t, iban.Matches(domain.AccountReference{IBAN: iban.IBAN}))
		require.False(t, iban.Matches(domain.AccountReference{IBAN: iban.IBAN, Currency: "USD"}))
	})

	t.Run("other fields ignored", func(t *testing.T) {
		other := domain.AccountReference{IBAN: iban.IBAN, ResourceID: "x", BBAN: "different"}
		require.True(t, iban.Matches(other))
	})

	t.Run("different selector types never match", func(t *testing.T) {
		require.False(t, iban.Matches(domain.AccountReference{BBAN: iban.IBAN}))
	})

	t.Run("raw pan matches masked pan both ways", func(t *testing.T) {
		raw := domain.AccountReference{PAN: "1234567890121234"}
		masked := domain.AccountReference{MaskedPAN: "123456xxxxxx1234"}
		require.True(t, raw.Matches(masked))
		require.True(t, masked.Matches(raw))
		require.True(t, raw.Masked().Matches(raw))
	})

	t.Run("masked pan with different tail", func(t *testing.T) {
		raw := domain.AccountReference{PAN: "1234567890121234"}
		require.False(t, raw.Matches(domain.AccountReference{MaskedPAN: "123456xxxxxx9999"}))
	})

	t.Run("masked pan without visible digits matches no card", func(t *testing.T) {
		blind := domain.AccountReference{MaskedPAN: "xxxxxxxxxxxxxxxx"}
		require.False(t, blind.Matches(domain.AccountReference{PAN: "4111111111111111"}))
		require.False(t, blind.Matches(domain.AccountReference{PAN: "5500000000000004"}))
		require.False(t, blind.Matches(blind))
	})

	t.Run("empty references", func(t *testing.T) {
		require.False(t, domain.AccountReference{}.Matches(domain.AccountReference{}))
	})
}

func TestMasked(t *testing.T) {
	ref := domain.AccountReference{PAN: "4111111111111111", ResourceID: "card-1"}
	m := ref.Masked()
	require.Empty(t, m.PAN)
	require.Equal(t, "411111xxxxxx1111", m.MaskedPAN)
	require.Equal(t, "card-1", m.ResourceID)
	require.Equal(t, m, ref.Masked(), "masking is deterministic")

	plain := domain.AccountReference{IBAN: "DE1"}
	require.Equal(t, plain, plain.Masked())
}

func TestFindByResourceID(t *testing.T) {
	refs := []domain.AccountReference{
		{IBAN: "DE1", ResourceID: "a"},
		{IBAN: "DE2", ResourceID: "b"},
		{IBAN: "DE3", ResourceID: "b"},
	}

	got, ok := domain.FindByResourceID(refs, "b")
	require.True(t, ok)
	require.Equal(t, "DE2", got.IBAN)

	_, ok = domain.FindByResourceID(refs, "")
	require.False(t, ok)
	_, ok = domain.FindByResourceID(refs, "zzz")
	require.False(t, ok)
}

func TestWellFormed(t *testing.T) {
	tests := []struct {
		name string
		ref  domain.AccountReference
		want bool
	}{
		{"iban", domain.AccountReference{IBAN: "DE89370400440532013000"}, true},
		{"msisdn", domain.AccountReference{MSISDN: "+491701234567"}, true},
		{"raw pan", domain.AccountReference{PAN: "4111111111111111"}, true},
		{"masked pan", domain.AccountReference{MaskedPAN: "411111xxxxxx1111"}, true},
		{"masked value in the pan field", domain.AccountReference{PAN: "411111xxxxxx1111"}, false},
		{"fully masked pan", domain.AccountReference{MaskedPAN: "xxxxxxxxxxxxxxxx"}, false},
		{"masked pan with suffix only", domain.AccountReference{MaskedPAN: "xxxxxxxxxxxx1111"}, false},
		{"short pan", domain.AccountReference{PAN: "4111"}, false},
		{"no identifier", domain.AccountReference{Currency: "EUR"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.ref.WellFormed())
		})
	}
}
