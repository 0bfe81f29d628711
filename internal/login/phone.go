// File: internal/login/phone.go

package login

import (
	"fmt"
	"strings"
)

// NormalizePhone brings a spreadsheet phone value into the +7XXXXXXXXXX form
// the login form expects. Values already carrying a plus sign are trusted as
// internationally formatted and only stripped of separators.
func NormalizePhone(raw, countryCode string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("empty phone number")
	}

	hadPlus := strings.HasPrefix(trimmed, "+")
	digits := stripNonDigits(trimmed)
	if digits == "" {
		return "", fmt.Errorf("phone number %q contains no digits", raw)
	}

	if hadPlus {
		return "+" + digits, nil
	}

	switch {
	case len(digits) == 11 && digits[0] == '8':
		return countryCode + digits[1:], nil
	case len(digits) == 11 && digits[0] == '7':
		return "+" + digits, nil
	case len(digits) == 10 && digits[0] == '9':
		return countryCode + digits, nil
	}
	return "", fmt.Errorf("unrecognized phone number format: %q", raw)
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
