package service

import (
	"context"
	"time"

	"taskmanager/api/internal/models"
)

// UserStore is the credential store. GetCredentials* are the only reads that
// return the password hash and refresh token digest.
type UserStore interface {
	Create(ctx context.Context, cred models.Credentials) error
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetCredentialsByID(ctx context.Context, id string) (models.Credentials, error)
	GetCredentialsByEmail(ctx context.Context, email string) (models.Credentials, error)
	SetRefreshToken(ctx context.Context, id string, tokenHash []byte) error
	SwapRefreshToken(ctx context.Context, id string, oldHash, newHash []byte) (bool, error)
	UpdatePassword(ctx context.Context, id string, passwordHash, refreshHash []byte) error
	UpdateProfile(ctx context.Context, id string, name string, email string) (models.User, error)
	SetActive(ctx context.Context, id string, active bool) error
	SetRole(ctx context.Context, id string, role models.UserRole) (models.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Recent(ctx context.Context, limit int) ([]models.User, error)
	Counts(ctx context.Context) (models.UserCounts, error)
}

type TaskStore interface {
	Create(ctx context.Context, task models.Task) (models.Task, error)
	GetByID(ctx context.Context, userID string, id string) (models.Task, error)
	Update(ctx context.Context, task models.Task) (models.Task, error)
	Delete(ctx context.Context, userID string, id string) error
	List(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error)
	ListForPlanning(ctx context.Context, userID string, openOnly bool) ([]models.Task, error)
	Stats(ctx context.Context, userID string) (models.TaskStats, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}

type AuditStore interface {
	Insert(ctx context.Context, event models.AuditEvent) error
	ListRecent(ctx context.Context, limit int) ([]models.AuditEvent, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
