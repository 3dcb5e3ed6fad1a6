/*
Package aissdk holds the wire types of the AIS consent service and a small
HTTP client for it.

The same types are used by the server handlers and by the client, so the
JSON shapes cannot drift. Errors travel as a NextGenPSD2 "tppMessages"
envelope; the client turns them back into *TppError values that compare
equal (errors.Is) to the predefined errors in this package:

	c := aissdk.NewClient("https://aspsp.example.com", token)

	consent, err := c.CreateConsent(ctx, aissdk.CreateConsentRequest{
		Access: aissdk.AccountAccess{
			Accounts: []aissdk.AccountReference{{IBAN: "DE89370400440532013000"}},
		},
		RecurringIndicator: true,
		ValidUntil:         "2026-12-31",
		FrequencyPerDay:    4,
	}, aissdk.ConsentOptions{PsuID: "psu-1", RedirectURI: "https://tpp.example.com/ok"})

	_, err = c.GetBalances(ctx, consent.ConsentID, accountID)
	if errors.Is(err, aissdk.ErrAccessExceeded) {
		// daily allowance used up
	}

The PSU-API methods (GetPsuConsent, UpdateAspspAccess, UpdatePsuScaStatus,
RevokeConsent, ResolveRedirect) are meant for the ASPSP's own frontend and
need a token carrying the aspsp:write scope.
*/
package aissdk
