package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"vitrine/internal/models"
	"vitrine/internal/services"
)

// TokenVerifier resolves a bearer token to a user.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*models.User, bool, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Middleware requires a valid bearer token. A missing token or a deleted
// user is Unauthorized; a malformed, expired or forged token is
// InvalidToken. The errors are rendered by the server's error handler.
func (m *AuthMiddleware) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := BearerToken(c)
			if token == "" {
				return services.Unauthorized("no token provided")
			}

			user, isAdmin, err := m.verifier.VerifyToken(c.Request().Context(), token)
			if err != nil {
				return err
			}

			c.Set("user", user)
			c.Set("userID", user.ID)
			c.Set("role", string(user.Role))
			c.Set("isAdmin", isAdmin)

			return next(c)
		}
	}
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return ""
	}
	tokenParts := strings.SplitN(authHeader, " ", 2)
	if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(tokenParts[1])
}

// Helper functions to get values from context
func GetUser(c echo.Context) *models.User {
	if user, ok := c.Get("user").(*models.User); ok {
		return user
	}
	return nil
}

func GetUserID(c echo.Context) string {
	if id, ok := c.Get("userID").(string); ok {
		return id
	}
	return ""
}

func GetUserRole(c echo.Context) string {
	if role, ok := c.Get("role").(string); ok {
		return role
	}
	return ""
}

func IsAdmin(c echo.Context) bool {
	if isAdmin, ok := c.Get("isAdmin").(bool); ok {
		return isAdmin
	}
	return false
}
