package whatsapp

import (
	"errors"
	"strings"
)

// ErrInvalidNumber is returned for phones that cannot be turned into 91XXXXXXXXXX.
var ErrInvalidNumber = errors.New("invalid number")

// NormalizePhone strips everything but digits and applies the country code:
// 10 digits get 91, 12 digits starting with 91 pass through, 11 digits with a
// leading 0 lose the 0 and get 91. Anything else is invalid.
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, c := range phone {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	cleaned := b.String()

	switch {
	case len(cleaned) == 10:
		return "91" + cleaned, nil
	case len(cleaned) == 12 && strings.HasPrefix(cleaned, "91"):
		return cleaned, nil
	case len(cleaned) == 11 && cleaned[0] == '0':
		return "91" + cleaned[1:], nil
	}
	return "", ErrInvalidNumber
}
