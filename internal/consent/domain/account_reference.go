package domain

import (
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/aisconsent/pkg/cryptox"
)

// AccountReferenceType names the identity field a reference is matched by.
type AccountReferenceType string

const (
	RefIBAN      AccountReferenceType = "IBAN"
	RefBBAN      AccountReferenceType = "BBAN"
	RefPAN       AccountReferenceType = "PAN"
	RefMaskedPAN AccountReferenceType = "MASKED_PAN"
	RefMSISDN    AccountReferenceType = "MSISDN"
)

// AccountReference identifies an account through one identity field plus
// optional currency and ASPSP-side keys.
type AccountReference struct {
	IBAN           string
	BBAN           string
	PAN            string
	MaskedPAN      string
	MSISDN         string
	Currency       string
	ResourceID     string
	AspspAccountID string
}

// UsedSelector returns the identity the reference is compared by: the first
// non-empty field in the order IBAN, BBAN, PAN, masked PAN, MSISDN.
func (r AccountReference) UsedSelector() (AccountReferenceType, string) {
	switch {
	case r.IBAN != "":
		return RefIBAN, r.IBAN
	case r.BBAN != "":
		return RefBBAN, r.BBAN
	case r.PAN != "":
		return RefPAN, r.PAN
	case r.MaskedPAN != "":
		return RefMaskedPAN, r.MaskedPAN
	case r.MSISDN != "":
		return RefMSISDN, r.MSISDN
	}
	return "", ""
}

// Type returns the selector type, or "" for a reference with no identity.
func (r AccountReference) Type() AccountReferenceType {
	t, _ := r.UsedSelector()
	return t
}

// WellFormed reports whether the used selector can identify one account.
// Card numbers must keep six leading and four trailing digits readable; a
// raw PAN must not be masked at all.
func (r AccountReference) WellFormed() bool {
	t, v := r.UsedSelector()
	switch t {
	case "":
		return false
	case RefPAN:
		return cryptox.ValidMaskedPAN(v) && !strings.ContainsFunc(v, func(c rune) bool {
			return c < 128 && cryptox.IsMaskChar(byte(c))
		})
	case RefMaskedPAN:
		return cryptox.ValidMaskedPAN(v)
	}
	return true
}

// IsCard reports whether the reference identifies a card.
func (r AccountReference) IsCard() bool {
	t := r.Type()
	return t == RefPAN || t == RefMaskedPAN
}

// Matches reports whether r and o denote the same account. Only the used
// selectors are compared; a raw PAN matches a masked PAN when every
// unmasked digit agrees. Currency is compared only when both carry one.
func (r AccountReference) Matches(o AccountReference) bool {
	rt, rv := r.UsedSelector()
	ot, ov := o.UsedSelector()
	if rt == "" || ot == "" {
		return false
	}
	if r.Currency != "" && o.Currency != "" && !strings.EqualFold(r.Currency, o.Currency) {
		return false
	}

	switch {
	case rt == ot && (rt == RefIBAN || rt == RefBBAN):
		return normaliseAccountNumber(rv) == normaliseAccountNumber(ov)
	case rt == ot && rt != RefMaskedPAN:
		return rv == ov
	case isPANType(rt) && isPANType(ot):
		return cryptox.MaskedEqual(rv, ov)
	}
	return false
}

// Masked returns a copy whose raw PAN is replaced by its masked form.
// References without a PAN are returned unchanged.
func (r AccountReference) Masked() AccountReference {
	if r.PAN == "" {
		return r
	}
	r.MaskedPAN = cryptox.MaskPAN(r.PAN)
	r.PAN = ""
	return r
}

// LogValue logs the selector only, with PANs masked.
func (r AccountReference) LogValue() slog.Value {
	t, v := r.Masked().UsedSelector()
	return slog.GroupValue(
		slog.String("type", string(t)),
		slog.String("id", v),
		slog.String("resource_id", r.ResourceID),
	)
}

func isPANType(t AccountReferenceType) bool {
	return t == RefPAN || t == RefMaskedPAN
}

func normaliseAccountNumber(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, " ", ""))
}

// FindByResourceID returns the first reference in refs whose resource id
// is id.
func FindByResourceID(refs []AccountReference, id string) (AccountReference, bool) {
	if id == "" {
		return AccountReference{}, false
	}
	for _, ref := range refs {
		if ref.ResourceID == id {
			return ref, true
		}
	}
	return AccountReference{}, false
}

// ContainsMatch reports whether any reference in refs matches ref.
func ContainsMatch(refs []AccountReference, ref AccountReference) bool {
	for _, r := range refs {
		if r.Matches(ref) {
			return true
		}
	}
	return false
}
