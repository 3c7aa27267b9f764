package values

import (
	"fmt"
	"strings"
)

// Phone number helpers shared by the suppression store and the compliance
// checkers. The canonical comparison/storage key is E.164-like: "+" followed
// by the digits, with US numbers always carrying the leading country code 1.

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

// PhoneDigits strips every non-digit character.
func PhoneDigits(phone string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
}

// NormalizePhone canonicalizes a phone number.
//
// Non-digits are removed, an 11-digit number starting with 1 loses that 1,
// a 10-digit number gains a leading 1, and the result is prefixed with "+".
// Numbers of other lengths are not rejected here; callers that need a length
// guarantee use ValidatePhoneDigits.
func NormalizePhone(phone string) string {
	digits := PhoneDigits(phone)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) == 10 {
		digits = "1" + digits
	}
	return "+" + digits
}

// NationalNumber returns the 10-digit US subscriber form when the input
// reduces to one, otherwise the bare digits.
func NationalNumber(phone string) string {
	digits := PhoneDigits(phone)
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// ValidatePhoneDigits reports whether the number carries between 10 and 15
// digits once formatting is removed.
func ValidatePhoneDigits(phone string) error {
	if strings.TrimSpace(phone) == "" {
		return fmt.Errorf("phone number is required")
	}
	n := len(PhoneDigits(phone))
	if n < minPhoneDigits || n > maxPhoneDigits {
		return fmt.Errorf("invalid phone number %q: expected %d-%d digits, got %d", phone, minPhoneDigits, maxPhoneDigits, n)
	}
	return nil
}
