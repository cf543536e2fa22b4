package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/database/models"
)

// Authenticator is the account surface used by handlers: sign-up creates an
// unconfigured organization, login checks credentials and the active flag.
type Authenticator interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResponse, error)
	Login(ctx context.Context, input LoginInput) (*AuthResponse, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TokenService issues and parses session tokens.
type TokenService interface {
	Issue(user *models.User) (string, error)
	Parse(token string) (*Claims, error)
}

var (
	_ Authenticator = (*Service)(nil)
	_ TokenService  = (*JWTService)(nil)
)
