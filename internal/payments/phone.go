package payments

import (
	"strings"

	"github.com/sudo-init-do/umoja/internal/domain"
)

const countryCode = "254"

// NormalizePhone rewrites a Kenyan mobile number to the 12-digit 254XXXXXXXXX
// form the gateway expects.
func NormalizePhone(raw string) (string, error) {
	p := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '+':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	switch {
	case p == "":
		return "", domain.Validation("phone number is required")
	case strings.HasPrefix(p, "0"):
		p = countryCode + p[1:]
	case !strings.HasPrefix(p, countryCode):
		p = countryCode + p
	}

	if len(p) != 12 {
		return "", domain.Validation("phone number must have 9 digits after the 254 country code")
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", domain.Validation("phone number must contain digits only")
		}
	}
	return p, nil
}
