package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"notebook-scout/internal/pkg/jwt"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type AdminAuthUsecase interface {
	Login(ctx context.Context, username, password string) (string, time.Time, error)
	Authorize(token string) (jwt.Claims, error)
}

type AdminAuth struct {
	username     string
	passwordHash []byte
	jwt          jwt.Service
}

func NewAdminAuthUsecase(username, passwordHash string, jwtSvc jwt.Service) *AdminAuth {
	return &AdminAuth{
		username:     strings.TrimSpace(username),
		passwordHash: []byte(strings.TrimSpace(passwordHash)),
		jwt:          jwtSvc,
	}
}

func (u *AdminAuth) Login(_ context.Context, username, password string) (string, time.Time, error) {
	if len(u.passwordHash) == 0 {
		// No hash configured: admin login is disabled.
		return "", time.Time{}, ErrUnauthorized
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(u.username)) != 1 {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	tok, exp, err := u.jwt.GenerateAdminToken(u.username)
	if err != nil {
		return "", time.Time{}, ErrInternal
	}
	return tok, exp, nil
}

func (u *AdminAuth) Authorize(token string) (jwt.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return jwt.Claims{}, ErrUnauthorized
	}
	c, err := u.jwt.ValidateToken(token)
	if err != nil {
		return jwt.Claims{}, ErrUnauthorized
	}
	return c, nil
}

// HashAdminPassword produces a value for ADMIN_PASSWORD_HASH.
func HashAdminPassword(password string) (string, error) {
	if len(strings.TrimSpace(password)) < 8 {
		return "", ErrInvalidInput
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
