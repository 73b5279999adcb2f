package service

import (
	"context"
	"errors"
	"time"
)

// Client-facing error kinds. Each groups several internal causes; services
// wrap the cause alongside the kind so handlers can switch on the kind with
// errors.Is while logs keep the detail.
var (
	ErrDuplicateEmail      = errors.New("user with this email already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountDeactivated  = errors.New("account is deactivated, please contact support")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrSelfActionForbidden = errors.New("you cannot perform this action on your own account")
	ErrUnauthenticated     = errors.New("not authorized, invalid or expired token")
	ErrForbidden           = errors.New("you do not have permission to perform this action")
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
)

// errStoredTokenMismatch is the internal cause for a refresh token that
// verifies but is no longer the one on record.
var errStoredTokenMismatch = errors.New("refresh token does not match stored token")

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
