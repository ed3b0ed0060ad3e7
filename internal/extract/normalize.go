package extract

import "strings"

// NormalizeMoney converts an amount such as "$75,000.5" into "75000.50".
// It returns false when s holds no digits before the decimal point or more
// than two fraction digits.
func NormalizeMoney(s string) (string, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	intPart, frac, hasDot := strings.Cut(s, ".")
	if intPart == "" || !allDigits(intPart) {
		return "", false
	}
	if hasDot && (len(frac) > 2 || !allDigits(frac)) {
		return "", false
	}

	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	for len(frac) < 2 {
		frac += "0"
	}
	return intPart + "." + frac, true
}

// NormalizeEIN converts "123456789" or "12-3456789" into "12-3456789".
func NormalizeEIN(s string) (string, bool) {
	d := digitsOnly(s)
	if len(d) != 9 {
		return "", false
	}
	return d[:2] + "-" + d[2:], true
}

// NormalizeSSN converts "123456789" or "123-45-6789" into "123-45-6789".
func NormalizeSSN(s string) (string, bool) {
	d := digitsOnly(s)
	if len(d) != 9 {
		return "", false
	}
	return d[:3] + "-" + d[3:5] + "-" + d[5:], true
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
