package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskmanager/api/internal/models"
)

func TestAdminCannotTargetSelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "Admin", "admin@example.com", "secret1")
	f.makeAdmin(t, admin.User.ID)

	assert.ErrorIs(t, f.admin.Deactivate(ctx, admin.User.ID, admin.User.ID), ErrSelfActionForbidden)
	assert.ErrorIs(t, f.admin.DeleteUser(ctx, admin.User.ID, admin.User.ID), ErrSelfActionForbidden)

	user, err := f.users.GetByID(ctx, admin.User.ID)
	require.NoError(t, err)
	assert.True(t, user.IsActive)
}

func TestNonAdminIsForbidden(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "Alice", "alice@example.com", "secret1")

	user, err := f.gate.Authenticate(context.Background(), res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.ErrorIs(t, f.gate.Authorize(user, models.UserRoleAdmin), ErrForbidden)
}

func TestAdminUnknownUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.admin.Deactivate(ctx, "admin", "ghost"), ErrNotFound)
	assert.ErrorIs(t, f.admin.Activate(ctx, "admin", "ghost"), ErrNotFound)
	assert.ErrorIs(t, f.admin.DeleteUser(ctx, "admin", "ghost"), ErrNotFound)
	_, err := f.admin.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.admin.ChangeRole(ctx, "admin", "ghost", models.UserRoleAdmin)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdminChangeRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.register(t, "Alice", "alice@example.com", "secret1")

	_, err := f.admin.ChangeRole(ctx, "admin", res.User.ID, "superuser")
	assert.ErrorIs(t, err, ErrInvalidInput)

	user, err := f.admin.ChangeRole(ctx, "admin", res.User.ID, models.UserRoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleAdmin, user.Role)
}

func TestAdminDeleteUserRemovesTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "Admin", "admin@example.com", "secret1")
	user := f.register(t, "Alice", "alice@example.com", "secret1")
	tasks := NewTaskService(f.tasks, time.Second)

	_, err := tasks.Create(ctx, CreateTaskInput{UserID: user.User.ID, Title: "Write report"})
	require.NoError(t, err)

	detail, err := f.admin.GetUser(ctx, user.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.TaskCount)

	require.NoError(t, f.admin.DeleteUser(ctx, admin.User.ID, user.User.ID))

	count, err := f.tasks.CountByUser(ctx, user.User.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = f.auth.Login(ctx, LoginInput{Email: "alice@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAdminStatsSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	admin := NewAdminService(f.users, f.tasks, f.audit, NewStatsCache(client, time.Minute), nil, time.Second, zerolog.Nop())

	a := f.register(t, "Admin", "admin@example.com", "secret1")
	f.makeAdmin(t, a.User.ID)
	b := f.register(t, "Alice", "alice@example.com", "secret1")

	stats, err := admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.UserCounts{Total: 2, Active: 2, Admins: 1}, stats.Users)
	assert.Len(t, stats.RecentUsers, 2)
	assert.True(t, mr.Exists(adminStatsKey))

	// served from the snapshot until something invalidates it
	f.register(t, "Carol", "carol@example.com", "secret1")
	stats, err = admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Users.Total)

	require.NoError(t, admin.Deactivate(ctx, a.User.ID, b.User.ID))
	assert.False(t, mr.Exists(adminStatsKey))

	stats, err = admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.UserCounts{Total: 3, Active: 2, Admins: 1}, stats.Users)
	assert.Equal(t, 0, stats.Tasks.ByStatus[models.TaskStatusPending])
}

func TestAdminStatsWithoutRedis(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Alice", "alice@example.com", "secret1")

	stats, err := f.admin.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Users.Total)
}

func TestAdminPurgeAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, f.audit.Insert(ctx, models.AuditEvent{ID: "old", Type: models.AuditLogin, OccurredAt: now.Add(-100 * 24 * time.Hour)}))
	require.NoError(t, f.audit.Insert(ctx, models.AuditEvent{ID: "new", Type: models.AuditLogin, OccurredAt: now}))

	purged, err := f.admin.PurgeAudit(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	events, err := f.admin.AuditLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "new", events[0].ID)
}
