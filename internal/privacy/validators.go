package privacy

import (
	"math/big"
	"strconv"
	"strings"
	"unicode"
)

// Validator rejects pattern matches that look right but fail a checksum or
// structural rule.
type Validator func(value string) bool

// ValidLuhn reports whether a card number passes the Luhn checksum.
// Spaces and hyphens are ignored; at least 13 digits are required.
func ValidLuhn(value string) bool {
	digits := strings.NewReplacer(" ", "", "-", "").Replace(value)
	if len(digits) < 13 {
		return false
	}

	sum := 0
	alt := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

// ValidIBAN verifies the ISO 13616 mod-97 check digits. Whitespace is
// stripped and letters are uppercased before checking.
func ValidIBAN(value string) bool {
	iban := strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, value))
	if len(iban) < 15 || len(iban) > 34 {
		return false
	}

	rearranged := iban[4:] + iban[:4]
	var numeric strings.Builder
	for _, ch := range rearranged {
		switch {
		case ch >= '0' && ch <= '9':
			numeric.WriteRune(ch)
		case ch >= 'A' && ch <= 'Z':
			numeric.WriteString(strconv.Itoa(int(ch-'A') + 10))
		default:
			return false
		}
	}

	n, ok := new(big.Int).SetString(numeric.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}

// ValidVIN checks the structural VIN rules: 17 characters from the VIN
// alphabet, which excludes I, O and Q.
func ValidVIN(value string) bool {
	if len(value) != 17 {
		return false
	}
	for _, ch := range value {
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'A' && ch <= 'Z' && ch != 'I' && ch != 'O' && ch != 'Q':
		default:
			return false
		}
	}
	return true
}
