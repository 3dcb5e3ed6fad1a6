package service

import "github.com/aussiebroadwan/aisconsent/internal/consent/domain"

// ResolveEffectiveAccess picks the access set a request is checked against.
// A global consent is governed by what the TPP declared, and so is a consent
// the ASPSP has not confirmed yet. Otherwise the ASPSP-confirmed set wins.
func ResolveEffectiveAccess(tpp, aspsp domain.AccessView) domain.AccessView {
	if tpp.Flags.AllPsd2 != "" || !aspsp.IsNotEmpty() {
		return tpp
	}
	return aspsp
}

// EffectiveAccess resolves the consent's two access sets.
func EffectiveAccess(c *domain.Consent) domain.AccessView {
	return ResolveEffectiveAccess(c.TppView(), c.AspspView())
}
