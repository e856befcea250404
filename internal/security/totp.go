package security

import (
	"fmt"
	"strings"

	"github.com/pquerna/otp/totp"
)

// TOTPKey is a freshly generated TOTP secret and its provisioning URL.
type TOTPKey struct {
	Secret string
	URL    string
}

// GenerateTOTP creates a TOTP secret for accountName under issuer.
func GenerateTOTP(issuer, accountName string) (TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
	if err != nil {
		return TOTPKey{}, fmt.Errorf("totp: generate: %w", err)
	}
	return TOTPKey{Secret: key.Secret(), URL: key.URL()}, nil
}

// ValidateTOTP reports whether code is valid for secret right now.
func ValidateTOTP(code, secret string) bool {
	code = strings.TrimSpace(code)
	if code == "" || strings.TrimSpace(secret) == "" {
		return false
	}
	return totp.Validate(code, secret)
}
