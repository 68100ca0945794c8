package security

import (
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "correct horse") {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(hash, "wrong horse") {
		t.Fatalf("expected mismatch")
	}
	if _, errShort := HashPassword("abc"); !errors.Is(errShort, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", errShort)
	}
}

func TestUserTokenRoundTrip(t *testing.T) {
	token, expiresAt, err := IssueUserToken("secret", 42, "user", 7*24*time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if d := time.Until(expiresAt); d < 7*24*time.Hour-time.Minute || d > 7*24*time.Hour {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}
	claims, err := ParseUserToken("secret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 42 || claims.Role != "user" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, errWrong := ParseUserToken("other", token); !errors.Is(errWrong, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", errWrong)
	}
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	userToken, _, _ := IssueUserToken("secret", 1, "admin", time.Hour)
	if _, err := ParseAdminToken("secret", userToken); !errors.Is(err, ErrWrongToken) {
		t.Fatalf("expected ErrWrongToken, got %v", err)
	}
	adminToken, _, _ := IssueAdminToken("secret", 1, "admin", time.Hour)
	if _, err := ParseUserToken("secret", adminToken); !errors.Is(err, ErrWrongToken) {
		t.Fatalf("expected ErrWrongToken, got %v", err)
	}
	if _, err := ParseAdminToken("secret", adminToken); err != nil {
		t.Fatalf("expected admin token accepted, got %v", err)
	}
}

func TestValidateTOTP(t *testing.T) {
	key, err := GenerateTOTP("MarketForge", "admin@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	now := time.Now().UTC()
	code, err := totp.GenerateCode(key.Secret, now)
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if !ValidateTOTPAt(key.Secret, code, now) {
		t.Fatalf("expected code to validate")
	}
	later, _ := totp.GenerateCode(key.Secret, now.Add(10*time.Minute))
	if later != code && ValidateTOTPAt(key.Secret, later, now) {
		t.Fatalf("expected a code from ten minutes ahead to be rejected")
	}
	if ValidateTOTP("", code) {
		t.Fatalf("expected empty secret to fail")
	}
}
