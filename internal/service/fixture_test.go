package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"taskmanager/api/internal/config"
	"taskmanager/api/internal/models"
	"taskmanager/api/internal/repository/memstore"
	"taskmanager/api/internal/security"
)

// cheap argon2 settings keep the suite fast
var testArgon2 = security.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

type fixture struct {
	cfg    *config.AppConfig
	users  *memstore.Users
	tasks  *memstore.Tasks
	audit  *memstore.Audit
	tokens *security.TokenIssuer
	auth   *AuthService
	gate   *Gate
	admin  *AdminService
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Security: config.SecurityConfig{
			JWTAccessSecret:  "access-secret-for-tests",
			JWTRefreshSecret: "refresh-secret-for-tests",
			JWTAccessTTL:     15 * time.Minute,
			JWTRefreshTTL:    24 * time.Hour,
		},
		Postgres: config.PostgresConfig{QueryTimeout: 2 * time.Second},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, testConfig(), nil)
}

// newFixtureWith lets a test substitute the user store, e.g. with one that
// fails writes.
func newFixtureWith(t *testing.T, cfg *config.AppConfig, users UserStore) *fixture {
	t.Helper()
	tasks := memstore.NewTasks()
	mem := memstore.NewUsers(tasks)
	if users == nil {
		users = mem
	}
	audit := memstore.NewAudit()
	tokens := security.NewTokenIssuer(
		cfg.Security.JWTAccessSecret,
		cfg.Security.JWTRefreshSecret,
		cfg.Security.JWTAccessTTL,
		cfg.Security.JWTRefreshTTL,
	)
	log := zerolog.Nop()

	return &fixture{
		cfg:    cfg,
		users:  mem,
		tasks:  tasks,
		audit:  audit,
		tokens: tokens,
		auth:   NewAuthService(users, security.NewPasswordHasher(testArgon2), tokens, nil, cfg, log),
		gate:   NewGate(users, tokens, cfg.Postgres.QueryTimeout, log),
		admin:  NewAdminService(users, tasks, audit, nil, nil, cfg.Postgres.QueryTimeout, log),
	}
}

func (f *fixture) register(t *testing.T, name, email, password string) AuthResult {
	t.Helper()
	res, err := f.auth.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: password})
	require.NoError(t, err)
	return res
}

func (f *fixture) makeAdmin(t *testing.T, id string) {
	t.Helper()
	_, err := f.users.SetRole(context.Background(), id, models.UserRoleAdmin)
	require.NoError(t, err)
}
