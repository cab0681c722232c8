package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"notebook-scout/internal/pkg/jwt"
)

func TestAdminAuth_LoginAndAuthorize(t *testing.T) {
	hash, err := HashAdminPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	uc := NewAdminAuthUsecase("admin", hash, jwt.NewHMACService("secret", time.Hour))

	tok, exp, err := uc.Login(context.Background(), "admin", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tok == "" || exp.IsZero() {
		t.Fatalf("expected token and expiry")
	}
	c, err := uc.Authorize(tok)
	if err != nil || c.Admin != "admin" {
		t.Fatalf("authorize: %+v %v", c, err)
	}
}

func TestAdminAuth_RejectsBadCredentials(t *testing.T) {
	hash, err := HashAdminPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	uc := NewAdminAuthUsecase("admin", hash, jwt.NewHMACService("secret", time.Hour))

	cases := []struct{ user, pass string }{
		{"admin", "wrong password"},
		{"root", "correct horse"},
		{"", "correct horse"},
		{"admin", ""},
	}
	for _, tc := range cases {
		if _, _, err := uc.Login(context.Background(), tc.user, tc.pass); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%q/%q: expected ErrInvalidCredentials, got %v", tc.user, tc.pass, err)
		}
	}
	if _, err := uc.Authorize("garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAdminAuth_DisabledWithoutHash(t *testing.T) {
	uc := NewAdminAuthUsecase("admin", "", jwt.NewHMACService("secret", time.Hour))
	if _, _, err := uc.Login(context.Background(), "admin", "anything"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestHashAdminPassword_TooShort(t *testing.T) {
	if _, err := HashAdminPassword("short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
