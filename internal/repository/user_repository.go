package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskmanager/api/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

const uniqueViolation = "23505"

// userColumns is the default projection. It never includes password_hash or
// refresh_token_hash.
const userColumns = `id, name, email, role, is_active, created_at, updated_at`

const credentialColumns = userColumns + `, password_hash, refresh_token_hash`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, cred models.Credentials) error {
	const query = `
		INSERT INTO users (
			id, name, email, password_hash, role, is_active, refresh_token_hash, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $8
		)
	`

	user := cred.User
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		cred.PasswordHash,
		user.Role,
		user.IsActive,
		cred.RefreshTokenHash,
		user.CreatedAt,
	)
	return mapWriteError(err)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetCredentialsByID(ctx context.Context, id string) (models.Credentials, error) {
	query := `SELECT ` + credentialColumns + ` FROM users WHERE id = $1`
	return scanCredentials(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetCredentialsByEmail(ctx context.Context, email string) (models.Credentials, error) {
	query := `SELECT ` + credentialColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanCredentials(r.pool.QueryRow(ctx, query, email))
}

// SetRefreshToken overwrites the stored refresh token digest. A nil digest
// clears it. The single UPDATE makes concurrent writers last-write-wins.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id string, tokenHash []byte) error {
	const query = `UPDATE users SET refresh_token_hash = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, tokenHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SwapRefreshToken replaces the digest only if it still equals oldHash and the
// account is active. It reports whether the swap happened.
func (r *UserRepository) SwapRefreshToken(ctx context.Context, id string, oldHash, newHash []byte) (bool, error) {
	const query = `
		UPDATE users
		SET refresh_token_hash = $3, updated_at = NOW()
		WHERE id = $1 AND refresh_token_hash = $2 AND is_active
	`
	cmd, err := r.pool.Exec(ctx, query, id, oldHash, newHash)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash, refreshHash []byte) error {
	const query = `
		UPDATE users
		SET password_hash = $2, refresh_token_hash = $3, updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, passwordHash, refreshHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id string, name string, email string) (models.User, error) {
	query := `
		UPDATE users
		SET name = COALESCE(NULLIF($2, ''), name),
		    email = COALESCE(NULLIF($3, ''), email),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	user, err := scanUser(r.pool.QueryRow(ctx, query, id, name, email))
	if err != nil {
		return models.User{}, mapWriteError(err)
	}
	return user, nil
}

// SetActive toggles the account. Deactivation clears the refresh token in the
// same statement so no standing session survives it.
func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `
		UPDATE users
		SET is_active = $2,
		    refresh_token_hash = CASE WHEN $2 THEN refresh_token_hash ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) SetRole(ctx context.Context, id string, role models.UserRole) (models.User, error) {
	query := `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, query, id, role))
}

// Delete removes the user and every task they own in one transaction.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM tasks WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("delete tasks: %w", err)
		}
		cmd, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Role != "" {
		args = append(args, filter.Role)
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", len(args), len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		userColumns, clause, len(args)-1, len(args))

	users, err := r.queryUsers(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepository) Recent(ctx context.Context, limit int) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1`
	return r.queryUsers(ctx, query, limit)
}

func (r *UserRepository) Counts(ctx context.Context) (models.UserCounts, error) {
	const query = `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_active),
		       COUNT(*) FILTER (WHERE role = 'admin')
		FROM users
	`
	var counts models.UserCounts
	err := r.pool.QueryRow(ctx, query).Scan(&counts.Total, &counts.Active, &counts.Admins)
	return counts, err
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func scanCredentials(row pgx.Row) (models.Credentials, error) {
	var cred models.Credentials
	user := &cred.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
		&cred.PasswordHash,
		&cred.RefreshTokenHash,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Credentials{}, ErrUserNotFound
		}
		return models.Credentials{}, err
	}
	return cred, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
