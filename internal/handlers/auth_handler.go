package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"vitrine/internal/api/middleware"
	"vitrine/internal/models"
	"vitrine/internal/services"
)

type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// VerifyResponse is returned by VerifyToken.
type VerifyResponse struct {
	IsAdmin bool         `json:"isAdmin"`
	User    *models.User `json:"user"`
}

// Register creates a user account and returns it with a signed token.
// @Summary Register a new user
// @Description Register a new user with name, email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body services.RegisterInput true "Registration details"
// @Success 201 {object} services.AuthResult
// @Failure 400 {object} map[string]string "Validation error or email exists"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req services.RegisterInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	result, err := h.auth.Register(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, result)
}

// Login checks the credentials and returns the user with a signed token.
// @Summary Login user
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body services.LoginInput true "Login credentials"
// @Success 200 {object} services.AuthResult
// @Failure 400 {object} map[string]string "Validation error or invalid credentials"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req services.LoginInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	result, err := h.auth.Login(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// VerifyToken reports the user behind the bearer token. Every failure is a
// 401 here, unlike the auth middleware.
// @Summary Verify token
// @Description Resolve the bearer token to its user and admin flag
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} VerifyResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /auth/verify-token [get]
func (h *AuthHandler) VerifyToken(c echo.Context) error {
	user, isAdmin, err := h.auth.VerifyToken(c.Request().Context(), middleware.BearerToken(c))
	if err != nil {
		return respondErrorStatus(c, http.StatusUnauthorized, err)
	}

	return c.JSON(http.StatusOK, VerifyResponse{IsAdmin: isAdmin, User: user})
}
