package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"taskmanager/api/internal/models"
	"taskmanager/api/internal/repository"
	"taskmanager/api/internal/security"
)

// Gate authenticates access tokens against live account state. The role and
// active flag are read from the store on every call, never from the token.
type Gate struct {
	users   UserStore
	tokens  *security.TokenIssuer
	timeout time.Duration
	log     zerolog.Logger
}

func NewGate(users UserStore, tokens *security.TokenIssuer, timeout time.Duration, log zerolog.Logger) *Gate {
	return &Gate{users: users, tokens: tokens, timeout: timeout, log: log}
}

func (g *Gate) Authenticate(ctx context.Context, accessToken string) (models.User, error) {
	claims, err := g.tokens.Verify(accessToken, security.TokenKindAccess)
	if err != nil {
		g.log.Debug().Err(err).Msg("access token rejected")
		return models.User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	user, err := g.users.GetByID(ctx, claims.Subject)
	if errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if err != nil {
		return models.User{}, err
	}
	if !user.IsActive {
		return models.User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrAccountDeactivated)
	}
	return user, nil
}

// Authorize succeeds when the user holds one of roles.
func (g *Gate) Authorize(user models.User, roles ...models.UserRole) error {
	for _, role := range roles {
		if user.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %s", ErrForbidden, user.Role)
}
