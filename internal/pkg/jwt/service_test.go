package jwt

import (
	"errors"
	"testing"
	"time"
)

func TestHMACService_RoundTrip(t *testing.T) {
	s := NewHMACService("secret", time.Hour)
	tok, exp, err := s.GenerateAdminToken("admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if exp.Before(time.Now()) {
		t.Fatalf("expected expiry in the future, got %s", exp)
	}

	c, err := s.ValidateToken(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.Admin != "admin" || c.RegisteredClaims.Subject != "admin" || c.TokenType != TokenTypeAdmin {
		t.Fatalf("unexpected claims %+v", c)
	}
}

func TestHMACService_Expired(t *testing.T) {
	s := NewHMACService("secret", time.Minute)
	issued := time.Now().Add(-2 * time.Hour)
	s.now = func() time.Time { return issued }
	tok, _, err := s.GenerateAdminToken("admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	s.now = time.Now
	if _, err := s.ValidateToken(tok); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestHMACService_RejectsForeignSecret(t *testing.T) {
	tok, _, err := NewHMACService("one", time.Hour).GenerateAdminToken("admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := NewHMACService("two", time.Hour).ValidateToken(tok); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if _, err := NewHMACService("one", time.Hour).ValidateToken("not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestHMACService_RequiresSecret(t *testing.T) {
	if _, _, err := NewHMACService("", time.Hour).GenerateAdminToken("admin"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}
