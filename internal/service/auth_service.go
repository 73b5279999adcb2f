package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"taskmanager/api/internal/config"
	"taskmanager/api/internal/ids"
	"taskmanager/api/internal/models"
	"taskmanager/api/internal/repository"
	"taskmanager/api/internal/security"
)

// AuthService owns the session lifecycle. Each user holds at most one refresh
// token; issuing a new one overwrites the previous digest, which revokes it.
type AuthService struct {
	users  UserStore
	hasher *security.PasswordHasher
	tokens *security.TokenIssuer
	events *EventPublisher
	cfg    *config.AppConfig
	log    zerolog.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

func NewAuthService(
	users UserStore,
	hasher *security.PasswordHasher,
	tokens *security.TokenIssuer,
	events *EventPublisher,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		events: events,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	// Role is accepted from clients but never honoured.
	Role      models.UserRole
	IPAddress string
}

type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
}

type UpdatePasswordInput struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
	IPAddress       string
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type AuthResult struct {
	User   models.User
	Tokens TokenPair
}

// RefreshResult carries a new access token. RefreshToken is set only when
// refresh rotation is enabled.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	email := NormalizeEmail(input.Email)

	ctx, cancel := withTimeout(ctx, s.cfg.Postgres.QueryTimeout)
	defer cancel()

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return AuthResult{}, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return AuthResult{}, err
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	now := s.now().UTC()
	user := models.User{
		ID:        ids.New(),
		Name:      strings.TrimSpace(input.Name),
		Email:     email,
		Role:      models.UserRoleUser,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tokens, refreshHash, err := s.issuePair(user.ID)
	if err != nil {
		return AuthResult{}, err
	}

	err = s.users.Create(ctx, models.Credentials{
		User:             user,
		PasswordHash:     passwordHash,
		RefreshTokenHash: refreshHash,
	})
	if errors.Is(err, repository.ErrEmailTaken) {
		return AuthResult{}, ErrDuplicateEmail
	}
	if err != nil {
		return AuthResult{}, err
	}

	if input.Role != "" && input.Role != models.UserRoleUser {
		s.log.Warn().Str("user_id", user.ID).Str("requested_role", string(input.Role)).Msg("ignored role on registration")
	}
	s.events.Publish(ctx, models.AuditEvent{UserID: user.ID, Type: models.AuditRegistered, IPAddress: input.IPAddress})

	return AuthResult{User: user, Tokens: tokens}, nil
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	email := NormalizeEmail(input.Email)

	ctx, cancel := withTimeout(ctx, s.cfg.Postgres.QueryTimeout)
	defer cancel()

	cred, err := s.users.GetCredentialsByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		// unknown and known emails must cost the same
		_, _ = s.hasher.Verify(input.Password, s.decoyHash())
		s.log.Warn().Msg("login for unknown email")
		return AuthResult{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if err != nil {
		return AuthResult{}, err
	}

	ok, err := s.hasher.Verify(input.Password, cred.PasswordHash)
	if err != nil || !ok {
		s.log.Warn().Err(err).Str("user_id", cred.User.ID).Msg("login password mismatch")
		s.events.Publish(ctx, models.AuditEvent{UserID: cred.User.ID, Type: models.AuditLoginFailed, IPAddress: input.IPAddress})
		return AuthResult{}, ErrInvalidCredentials
	}

	if !cred.User.IsActive {
		s.events.Publish(ctx, models.AuditEvent{UserID: cred.User.ID, Type: models.AuditLoginFailed, Detail: "deactivated", IPAddress: input.IPAddress})
		return AuthResult{}, ErrAccountDeactivated
	}

	tokens, refreshHash, err := s.issuePair(cred.User.ID)
	if err != nil {
		return AuthResult{}, err
	}
	if err := s.users.SetRefreshToken(ctx, cred.User.ID, refreshHash); err != nil {
		return AuthResult{}, fmt.Errorf("persist refresh token: %w", err)
	}

	s.events.Publish(ctx, models.AuditEvent{UserID: cred.User.ID, Type: models.AuditLogin, IPAddress: input.IPAddress})
	return AuthResult{User: cred.User, Tokens: tokens}, nil
}

// Refresh exchanges a refresh token for a new access token. The token must
// verify, belong to an active user, and be the one currently on record.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, ipAddress string) (RefreshResult, error) {
	claims, err := s.tokens.Verify(refreshToken, security.TokenKindRefresh)
	if err != nil {
		return RefreshResult{}, s.rejectRefresh(ctx, "", ipAddress, err)
	}

	ctx, cancel := withTimeout(ctx, s.cfg.Postgres.QueryTimeout)
	defer cancel()

	cred, err := s.users.GetCredentialsByID(ctx, claims.Subject)
	if errors.Is(err, repository.ErrUserNotFound) {
		return RefreshResult{}, s.rejectRefresh(ctx, claims.Subject, ipAddress, err)
	}
	if err != nil {
		return RefreshResult{}, err
	}

	presented := security.HashRefreshToken(refreshToken)
	if cred.RefreshTokenHash == nil || subtle.ConstantTimeCompare(presented, cred.RefreshTokenHash) != 1 {
		return RefreshResult{}, s.rejectRefresh(ctx, claims.Subject, ipAddress, errStoredTokenMismatch)
	}
	if !cred.User.IsActive {
		return RefreshResult{}, s.rejectRefresh(ctx, claims.Subject, ipAddress, ErrAccountDeactivated)
	}

	accessToken, err := s.tokens.IssueAccessToken(cred.User.ID)
	if err != nil {
		return RefreshResult{}, err
	}
	result := RefreshResult{AccessToken: accessToken}

	if !s.cfg.Security.RotateRefreshTokens {
		return result, nil
	}

	nextRefresh, err := s.tokens.IssueRefreshToken(cred.User.ID)
	if err != nil {
		return RefreshResult{}, err
	}
	swapped, err := s.users.SwapRefreshToken(ctx, cred.User.ID, presented, security.HashRefreshToken(nextRefresh))
	if err != nil {
		return RefreshResult{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !swapped {
		// a concurrent login, logout or refresh replaced the token first
		return RefreshResult{}, s.rejectRefresh(ctx, claims.Subject, ipAddress, errStoredTokenMismatch)
	}
	result.RefreshToken = nextRefresh
	return result, nil
}

// Logout clears the stored refresh token. Calling it again is a no-op.
func (s *AuthService) Logout(ctx context.Context, userID string, ipAddress string) error {
	ctx, cancel := withTimeout(ctx, s.cfg.Postgres.QueryTimeout)
	defer cancel()

	if err := s.users.SetRefreshToken(ctx, userID, nil); err != nil {
		return err
	}
	s.events.Publish(ctx, models.AuditEvent{UserID: userID, Type: models.AuditLogout, IPAddress: ipAddress})
	return nil
}

// UpdatePassword replaces the hash and rotates the refresh token in one
// write. A wrong current password changes nothing.
func (s *AuthService) UpdatePassword(ctx context.Context, input UpdatePasswordInput) (TokenPair, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Postgres.QueryTimeout)
	defer cancel()

	cred, err := s.users.GetCredentialsByID(ctx, input.UserID)
	if err != nil {
		return TokenPair{}, err
	}

	ok, err := s.hasher.Verify(input.CurrentPassword, cred.PasswordHash)
	if err != nil || !ok {
		s.log.Warn().Err(err).Str("user_id", input.UserID).Msg("update password with wrong current password")
		return TokenPair{}, ErrInvalidCredentials
	}

	passwordHash, err := s.hasher.Hash(input.NewPassword)
	if err != nil {
		return TokenPair{}, err
	}
	tokens, refreshHash, err := s.issuePair(input.UserID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.users.UpdatePassword(ctx, input.UserID, passwordHash, refreshHash); err != nil {
		return TokenPair{}, fmt.Errorf("persist password: %w", err)
	}

	s.events.Publish(ctx, models.AuditEvent{UserID: input.UserID, Type: models.AuditPasswordChanged, IPAddress: input.IPAddress})
	return tokens, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (models.User, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Postgres.QueryTimeout)
	defer cancel()

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return user, err
}

// UpdateProfile changes name and/or email. Empty fields are left unchanged.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, name string, email string) (models.User, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)

	ctx, cancel := withTimeout(ctx, s.cfg.Postgres.QueryTimeout)
	defer cancel()

	user, err := s.users.UpdateProfile(ctx, userID, name, email)
	switch {
	case errors.Is(err, repository.ErrEmailTaken):
		return models.User{}, ErrDuplicateEmail
	case errors.Is(err, repository.ErrUserNotFound):
		return models.User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return user, err
}

func (s *AuthService) issuePair(userID string) (TokenPair, []byte, error) {
	access, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	refresh, err := s.tokens.IssueRefreshToken(userID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, security.HashRefreshToken(refresh), nil
}

func (s *AuthService) rejectRefresh(ctx context.Context, userID, ipAddress string, cause error) error {
	s.log.Warn().Err(cause).Str("user_id", userID).Msg("refresh rejected")
	if userID != "" {
		s.events.Publish(ctx, models.AuditEvent{UserID: userID, Type: models.AuditRefreshRejected, Detail: cause.Error(), IPAddress: ipAddress})
	}
	return fmt.Errorf("%w: %w", ErrInvalidRefreshToken, cause)
}

func (s *AuthService) decoyHash() []byte {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(ids.New())
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
