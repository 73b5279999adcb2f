package security

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskmanager/api/internal/ids"
)

var (
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrMalformedToken   = errors.New("token malformed")
	ErrWrongTokenKind   = errors.New("token kind mismatch")
)

type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

type Claims struct {
	Kind TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies signed tokens. Access and refresh tokens are
// signed with separate keys and carry their kind as a claim.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (t *TokenIssuer) IssueAccessToken(userID string) (string, error) {
	return t.issue(userID, TokenKindAccess)
}

func (t *TokenIssuer) IssueRefreshToken(userID string) (string, error) {
	return t.issue(userID, TokenKindRefresh)
}

func (t *TokenIssuer) issue(userID string, kind TokenKind) (string, error) {
	secret, ttl := t.keyFor(kind)
	now := t.now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			// jti keeps two tokens minted in the same second distinct
			ID: ids.New(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and kind. The returned error wraps exactly
// one of ErrMalformedToken, ErrInvalidSignature, ErrTokenExpired or
// ErrWrongTokenKind.
func (t *TokenIssuer) Verify(tokenStr string, kind TokenKind) (*Claims, error) {
	secret, _ := t.keyFor(kind)

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, classify(err)
	}

	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: want %s, got %q", ErrWrongTokenKind, kind, claims.Kind)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}
	return claims, nil
}

func (t *TokenIssuer) keyFor(kind TokenKind) ([]byte, time.Duration) {
	if kind == TokenKindRefresh {
		return t.refreshSecret, t.refreshTTL
	}
	return t.accessSecret, t.accessTTL
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

// HashRefreshToken is the digest persisted in place of the raw refresh token.
func HashRefreshToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}
