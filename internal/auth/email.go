package auth

import (
	"fmt"
	"net/mail"
	"strings"
)

// NormalizeEmail trims and lower-cases a bare address. Display-name forms
// ("Alice <a@x.com>") are rejected.
func NormalizeEmail(raw string) (string, error) {
	addr := strings.ToLower(strings.TrimSpace(raw))
	if addr == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return "", fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	return addr, nil
}
