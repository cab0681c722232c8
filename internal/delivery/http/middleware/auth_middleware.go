package middleware

import (
	"errors"
	"strings"

	"notebook-scout/internal/pkg/jwt"

	"github.com/gofiber/fiber/v3"
)

const CtxAdminKey = "admin"

type tokenAuthorizer interface {
	Authorize(token string) (jwt.Claims, error)
}

// AdminAuthMiddleware guards admin routes with an HS256 bearer token.
type AdminAuthMiddleware struct {
	auth tokenAuthorizer
}

func NewAdminAuthMiddleware(auth tokenAuthorizer) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{auth: auth}
}

func (m *AdminAuthMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		token, ok := bearerTokenFromHeader(c.Get("Authorization"))
		if !ok {
			return NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil, nil)
		}

		claims, err := m.auth.Authorize(token)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return NewAppError(fiber.StatusUnauthorized, "Token expired", nil, err)
			}
			return NewAppError(fiber.StatusUnauthorized, "Invalid token", nil, err)
		}

		c.Locals(CtxAdminKey, claims.Admin)
		return c.Next()
	}
}

func bearerTokenFromHeader(authHeader string) (string, bool) {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}
