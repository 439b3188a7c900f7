package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"vitrine/internal/config"
	"vitrine/internal/models"
	"vitrine/internal/utils"
	"vitrine/internal/utils/logger"
)

var authLog = logger.New("AUTH")

type RegisterInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

type AuthService struct {
	users  BaseService[models.User]
	secret string
	ttl    time.Duration
}

func NewAuthService(db *gorm.DB, cfg config.JWTConfig) *AuthService {
	return &AuthService{
		users:  NewBaseService(db, models.User{}),
		secret: cfg.Secret,
		ttl:    cfg.Expiry,
	}
}

// Register creates a user with the default role and signs a token for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}

	if _, err := s.findByEmail(ctx, in.Email); err == nil {
		return nil, Validation("email already in use")
	} else if KindOf(err) != KindNotFound {
		return nil, Internal(err, "failed to look up user")
	}

	user := &models.User{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
		Role:     models.UserRoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, Validation("email already in use")
		}
		return nil, Internal(err, "failed to create user")
	}

	authLog.Info("Registered user %s", user.ID)
	return s.issue(user)
}

// Login never reveals whether the email or the password was wrong.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}

	user, err := s.findByEmail(ctx, in.Email)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, invalidCredentials()
		}
		return nil, Internal(err, "failed to look up user")
	}
	if !user.CheckPassword(in.Password) {
		return nil, invalidCredentials()
	}

	return s.issue(user)
}

// VerifyToken resolves a bearer token to its user and admin flag.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (*models.User, bool, error) {
	if token == "" {
		return nil, false, Unauthorized("no token provided")
	}

	claims, err := utils.ParseJWT(token, s.secret)
	if err != nil {
		return nil, false, InvalidToken(err)
	}

	user, err := s.users.Get(ctx, claims.UserID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, false, Unauthorized("user not found")
		}
		return nil, false, Internal(err, "failed to load user")
	}

	return user, user.IsAdmin(), nil
}

// EnsureAdmin creates the admin account, or promotes an existing user with
// the same email.
func (s *AuthService) EnsureAdmin(ctx context.Context, name, email, password string) error {
	email = normalizeEmail(email)

	user, err := s.findByEmail(ctx, email)
	switch {
	case err == nil:
		if user.IsAdmin() {
			return nil
		}
		if _, err := s.users.Update(ctx, user.ID, map[string]interface{}{"role": models.UserRoleAdmin}); err != nil {
			return authLog.Error("failed to promote admin: %v", err)
		}
		authLog.Success("Promoted %s to admin", email)
		return nil
	case KindOf(err) != KindNotFound:
		return err
	}

	admin := &models.User{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     models.UserRoleAdmin,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return authLog.Error("failed to create admin: %v", err)
	}
	authLog.Success("Created admin account %s", email)
	return nil
}

func (s *AuthService) issue(user *models.User) (*AuthResult, error) {
	token, err := utils.GenerateJWT(user.ID, string(user.Role), s.secret, s.ttl)
	if err != nil {
		return nil, Internal(err, "failed to generate token")
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) findByEmail(ctx context.Context, email string) (*models.User, error) {
	users, _, err := s.users.List(ctx, 1, 1, map[string]interface{}{"email": email})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, NotFound("user not found")
	}
	return &users[0], nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func invalidCredentials() *Error {
	return newError(KindInvalidCredentials, nil, "invalid credentials")
}
