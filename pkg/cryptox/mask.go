package cryptox

import "strings"

const (
	// panVisiblePrefix and panVisibleSuffix are the digits left readable in
	// a masked PAN, e.g. "4111111111111111" becomes "411111xxxxxx1111".
	panVisiblePrefix = 6
	panVisibleSuffix = 4

	maskChar = 'x'
)

// MaskPAN replaces the middle digits of a card number with 'x', keeping the
// first six and last four. PANs too short to keep both ends keep only the
// last four. An empty input returns an empty string.
func MaskPAN(pan string) string {
	pan = strings.TrimSpace(pan)
	n := len(pan)
	if n == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(n)

	if n <= panVisiblePrefix+panVisibleSuffix {
		keep := min(panVisibleSuffix, n)
		for range n - keep {
			b.WriteByte(maskChar)
		}
		b.WriteString(pan[n-keep:])
		return b.String()
	}

	b.WriteString(pan[:panVisiblePrefix])
	for range n - panVisiblePrefix - panVisibleSuffix {
		b.WriteByte(maskChar)
	}
	b.WriteString(pan[n-panVisibleSuffix:])
	return b.String()
}

// IsMaskChar reports whether c is accepted as a redaction character in a
// masked PAN supplied by a TPP or the ASPSP.
func IsMaskChar(c byte) bool {
	return c == 'x' || c == 'X' || c == '*'
}

// ValidMaskedPAN reports whether s is a card number, raw or masked, that
// keeps its first six and last four digits readable. Only digits and mask
// characters may appear in between.
func ValidMaskedPAN(s string) bool {
	s = strings.TrimSpace(s)
	n := len(s)
	if n <= panVisiblePrefix+panVisibleSuffix {
		return false
	}
	for i := range n {
		c := s[i]
		visible := i < panVisiblePrefix || i >= n-panVisibleSuffix
		switch {
		case isDigit(c):
		case !visible && IsMaskChar(c):
		default:
			return false
		}
	}
	return true
}

// MaskedEqual reports whether two PAN forms (raw or masked, in any
// combination) denote the same card. Both must satisfy ValidMaskedPAN and
// have the same length. The six leading and four trailing digits must
// agree; in between, positions redacted on either side are skipped.
func MaskedEqual(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if len(a) != len(b) || !ValidMaskedPAN(a) || !ValidMaskedPAN(b) {
		return false
	}

	for i := range len(a) {
		if IsMaskChar(a[i]) || IsMaskChar(b[i]) {
			continue
		}
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
