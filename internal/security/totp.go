package security

import (
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// TOTPKey is a freshly generated TOTP secret and its provisioning URL.
type TOTPKey struct {
	Secret string
	URL    string
}

// GenerateTOTP creates a new TOTP secret for accountName.
func GenerateTOTP(issuer, accountName string) (TOTPKey, error) {
	key, errGenerate := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
	if errGenerate != nil {
		return TOTPKey{}, errGenerate
	}
	return TOTPKey{Secret: key.Secret(), URL: key.URL()}, nil
}

// ValidateTOTP checks a 6-digit code against secret at the current time.
func ValidateTOTP(secret, code string) bool {
	return ValidateTOTPAt(secret, code, time.Now().UTC())
}

// ValidateTOTPAt checks a code against secret at t, allowing one step of clock skew.
func ValidateTOTPAt(secret, code string, t time.Time) bool {
	secret = strings.TrimSpace(secret)
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	ok, errValidate := totp.ValidateCustom(code, secret, t, totp.ValidateOpts{
		Period: 30,
		Skew:   1,
		Digits: 6,
	})
	return errValidate == nil && ok
}
