// Package memstore holds map-backed stores with the same contracts as the
// postgres repositories. Tests and local tooling use them in place of a
// database.
package memstore

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"taskmanager/api/internal/models"
	"taskmanager/api/internal/repository"
)

type Users struct {
	mu    sync.RWMutex
	byID  map[string]*models.Credentials
	tasks *Tasks
	now   func() time.Time
}

// NewUsers returns an empty user store. Deleting a user also deletes their
// tasks from tasks when it is non-nil.
func NewUsers(tasks *Tasks) *Users {
	return &Users{
		byID:  make(map[string]*models.Credentials),
		tasks: tasks,
		now:   time.Now,
	}
}

func (s *Users) Create(ctx context.Context, cred models.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findByEmailLocked(cred.User.Email) != nil {
		return repository.ErrEmailTaken
	}
	if cred.User.CreatedAt.IsZero() {
		cred.User.CreatedAt = s.now()
	}
	cred.User.UpdatedAt = cred.User.CreatedAt
	stored := cloneCredentials(cred)
	s.byID[cred.User.ID] = &stored
	return nil
}

func (s *Users) GetByID(ctx context.Context, id string) (models.User, error) {
	cred, err := s.GetCredentialsByID(ctx, id)
	return cred.User, err
}

func (s *Users) FindByEmail(ctx context.Context, email string) (models.User, error) {
	cred, err := s.GetCredentialsByEmail(ctx, email)
	return cred.User, err
}

func (s *Users) GetCredentialsByID(ctx context.Context, id string) (models.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return models.Credentials{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.byID[id]
	if !ok {
		return models.Credentials{}, repository.ErrUserNotFound
	}
	return cloneCredentials(*cred), nil
}

func (s *Users) GetCredentialsByEmail(ctx context.Context, email string) (models.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return models.Credentials{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred := s.findByEmailLocked(email)
	if cred == nil {
		return models.Credentials{}, repository.ErrUserNotFound
	}
	return cloneCredentials(*cred), nil
}

func (s *Users) SetRefreshToken(ctx context.Context, id string, tokenHash []byte) error {
	return s.mutate(ctx, id, func(cred *models.Credentials) error {
		cred.RefreshTokenHash = cloneBytes(tokenHash)
		return nil
	})
}

func (s *Users) SwapRefreshToken(ctx context.Context, id string, oldHash, newHash []byte) (bool, error) {
	swapped := false
	err := s.mutate(ctx, id, func(cred *models.Credentials) error {
		if !cred.User.IsActive || cred.RefreshTokenHash == nil || !bytes.Equal(cred.RefreshTokenHash, oldHash) {
			return nil
		}
		cred.RefreshTokenHash = cloneBytes(newHash)
		swapped = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

func (s *Users) UpdatePassword(ctx context.Context, id string, passwordHash, refreshHash []byte) error {
	return s.mutate(ctx, id, func(cred *models.Credentials) error {
		cred.PasswordHash = cloneBytes(passwordHash)
		cred.RefreshTokenHash = cloneBytes(refreshHash)
		return nil
	})
}

func (s *Users) UpdateProfile(ctx context.Context, id string, name string, email string) (models.User, error) {
	var user models.User
	err := s.mutate(ctx, id, func(cred *models.Credentials) error {
		if email != "" {
			if other := s.findByEmailLocked(email); other != nil && other.User.ID != id {
				return repository.ErrEmailTaken
			}
			cred.User.Email = email
		}
		if name != "" {
			cred.User.Name = name
		}
		user = cred.User
		return nil
	})
	return user, err
}

func (s *Users) SetActive(ctx context.Context, id string, active bool) error {
	return s.mutate(ctx, id, func(cred *models.Credentials) error {
		cred.User.IsActive = active
		if !active {
			cred.RefreshTokenHash = nil
		}
		return nil
	})
}

func (s *Users) SetRole(ctx context.Context, id string, role models.UserRole) (models.User, error) {
	var user models.User
	err := s.mutate(ctx, id, func(cred *models.Credentials) error {
		cred.User.Role = role
		user = cred.User
		return nil
	})
	return user, err
}

func (s *Users) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(s.byID, id)
	if s.tasks != nil {
		s.tasks.deleteByUser(id)
	}
	return nil
}

func (s *Users) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	search := strings.ToLower(filter.Search)
	var matched []models.User
	for _, cred := range s.byID {
		u := cred.User
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Name), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		matched = append(matched, u)
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)
	return paginate(matched, filter.Offset, filter.Limit), len(matched), nil
}

func (s *Users) Recent(ctx context.Context, limit int) ([]models.User, error) {
	users, _, err := s.List(ctx, models.UserFilter{Limit: limit})
	return users, err
}

func (s *Users) Counts(ctx context.Context) (models.UserCounts, error) {
	if err := ctx.Err(); err != nil {
		return models.UserCounts{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var counts models.UserCounts
	for _, cred := range s.byID {
		counts.Total++
		if cred.User.IsActive {
			counts.Active++
		}
		if cred.User.Role == models.UserRoleAdmin {
			counts.Admins++
		}
	}
	return counts, nil
}

// mutate applies fn to the stored record under the write lock, so each update
// is atomic with respect to every other store call.
func (s *Users) mutate(ctx context.Context, id string, fn func(*models.Credentials) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	if err := fn(cred); err != nil {
		return err
	}
	cred.User.UpdatedAt = s.now()
	return nil
}

func (s *Users) findByEmailLocked(email string) *models.Credentials {
	for _, cred := range s.byID {
		if strings.EqualFold(cred.User.Email, email) {
			return cred
		}
	}
	return nil
}

func sortNewestFirst(users []models.User) {
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID > users[j].ID
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneCredentials(cred models.Credentials) models.Credentials {
	cred.PasswordHash = cloneBytes(cred.PasswordHash)
	cred.RefreshTokenHash = cloneBytes(cred.RefreshTokenHash)
	return cred
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
