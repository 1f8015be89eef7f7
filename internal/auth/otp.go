package auth

import (
	"strings"

	"github.com/pquerna/otp/totp"
)

// TOTPVerifier checks 6 digit, 30 second RFC 6238 codes against a base32 secret
type TOTPVerifier struct{}

// NewTOTPVerifier creates a TOTPVerifier
func NewTOTPVerifier() *TOTPVerifier {
	return &TOTPVerifier{}
}

// Verify reports whether code is valid for secret at the current time
func (TOTPVerifier) Verify(secret, code string) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	return totp.Validate(code, strings.ToUpper(strings.TrimSpace(secret)))
}
