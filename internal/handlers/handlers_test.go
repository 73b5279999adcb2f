package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskmanager/api/internal/config"
	"taskmanager/api/internal/llm"
	"taskmanager/api/internal/middleware"
	"taskmanager/api/internal/models"
	"taskmanager/api/internal/repository/memstore"
	"taskmanager/api/internal/security"
	"taskmanager/api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine *gin.Engine
	users  *memstore.Users
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []fieldError    `json:"errors"`
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			JWTAccessSecret:  "access-secret-for-tests",
			JWTRefreshSecret: "refresh-secret-for-tests",
			JWTAccessTTL:     15 * time.Minute,
			JWTRefreshTTL:    24 * time.Hour,
		},
		Postgres: config.PostgresConfig{QueryTimeout: 2 * time.Second},
	}
}

func newTestServer(t *testing.T, cfg *config.AppConfig, cache *redis.Client) *testServer {
	t.Helper()
	log := zerolog.Nop()

	tasks := memstore.NewTasks()
	users := memstore.NewUsers(tasks)
	audit := memstore.NewAudit()
	hasher := security.NewPasswordHasher(security.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	tokens := security.NewTokenIssuer(
		cfg.Security.JWTAccessSecret,
		cfg.Security.JWTRefreshSecret,
		cfg.Security.JWTAccessTTL,
		cfg.Security.JWTRefreshTTL,
	)
	timeout := cfg.Postgres.QueryTimeout

	handlerSet := NewHandlerSet(log, cfg, Services{
		Auth:      service.NewAuthService(users, hasher, tokens, nil, cfg, log),
		Gate:      service.NewGate(users, tokens, timeout, log),
		Admin:     service.NewAdminService(users, tasks, audit, nil, nil, timeout, log),
		Tasks:     service.NewTaskService(tasks, timeout),
		Assistant: service.NewAssistantService(tasks, llm.New(config.LLMConfig{}), timeout, log),
		Cache:     cache,
	})

	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.Recovery(log), middleware.BodyLimit(10<<10))
	handlerSet.Register(engine)

	return &testServer{engine: engine, users: users}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func (s *testServer) register(t *testing.T, name, email, password string) authResponse {
	t.Helper()
	rec, resp := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name": name, "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out authResponse
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}

func (s *testServer) admin(t *testing.T) authResponse {
	t.Helper()
	a := s.register(t, "Admin User", "admin@example.com", "secret1")
	_, err := s.users.SetRole(context.Background(), a.User.ID, models.UserRoleAdmin)
	require.NoError(t, err)
	return a
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	rec, resp := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name": "Alice Smith", "email": "Alice@Example.com", "password": "secret1", "role": "admin",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)
	var reg authResponse
	require.NoError(t, json.Unmarshal(resp.Data, &reg))
	assert.Equal(t, "user", reg.User.Role)
	assert.Equal(t, "alice@example.com", reg.User.Email)
	assert.NotEmpty(t, reg.AccessToken)
	assert.NotEmpty(t, reg.RefreshToken)

	rec, resp = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Login successful", resp.Message)

	rec, resp = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "wrong12"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Invalid credentials", resp.Message)

	rec, resp = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "nobody@example.com", "password": "wrong12"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", resp.Message)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	cases := []struct {
		name  string
		body  gin.H
		field string
	}{
		{"short password", gin.H{"name": "Alice", "email": "a@example.com", "password": "a1"}, "password"},
		{"no digit", gin.H{"name": "Alice", "email": "a@example.com", "password": "secrets"}, "password"},
		{"bad email", gin.H{"name": "Alice", "email": "nope", "password": "secret1"}, "email"},
		{"name with digits", gin.H{"name": "Al1ce", "email": "a@example.com", "password": "secret1"}, "name"},
		{"missing name", gin.H{"email": "a@example.com", "password": "secret1"}, "name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, resp := s.do(t, http.MethodPost, "/api/v1/auth/register", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Validation failed", resp.Message)
			require.NotEmpty(t, resp.Errors)
			assert.Equal(t, tc.field, resp.Errors[0].Field)
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	s.register(t, "Alice", "alice@example.com", "secret1")

	rec, resp := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name": "Other", "email": "ALICE@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User with this email already exists", resp.Message)
}

func TestRefreshAndLogout(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	a := s.register(t, "Alice", "alice@example.com", "secret1")

	rec, resp := s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Refresh token is required", resp.Message)

	rec, resp = s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", "", gin.H{"refreshToken": a.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp = s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", "", gin.H{"refreshToken": a.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var refreshed map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &refreshed))
	assert.NotEmpty(t, refreshed["accessToken"])
	assert.NotContains(t, refreshed, "refreshToken")

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp = s.do(t, http.MethodPost, "/api/v1/auth/logout", a.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logged out successfully", resp.Message)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", "", gin.H{"refreshToken": a.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeAndUpdateProfile(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	a := s.register(t, "Alice", "alice@example.com", "secret1")
	s.register(t, "Bob", "bob@example.com", "secret1")

	rec, _ := s.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp := s.do(t, http.MethodGet, "/api/v1/auth/me", a.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me userResponse
	require.NoError(t, json.Unmarshal(resp.Data, &me))
	assert.Equal(t, "Alice", me.Name)
	assert.True(t, me.IsActive)

	rec, resp = s.do(t, http.MethodPut, "/api/v1/auth/update-profile", a.AccessToken, gin.H{"name": "Alice Cooper"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &me))
	assert.Equal(t, "Alice Cooper", me.Name)
	assert.Equal(t, "alice@example.com", me.Email)

	rec, _ = s.do(t, http.MethodPut, "/api/v1/auth/update-profile", a.AccessToken, gin.H{"email": "bob@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdatePassword(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	a := s.register(t, "Alice", "alice@example.com", "secret1")

	rec, resp := s.do(t, http.MethodPut, "/api/v1/auth/update-password", a.AccessToken, gin.H{
		"currentPassword": "wrong12", "newPassword": "better2",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Current password is incorrect", resp.Message)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", "", gin.H{"refreshToken": a.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp = s.do(t, http.MethodPut, "/api/v1/auth/update-password", a.AccessToken, gin.H{
		"currentPassword": "secret1", "newPassword": "better2",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var tokens map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &tokens))
	assert.NotEmpty(t, tokens["refreshToken"])

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", "", gin.H{"refreshToken": a.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "better2"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTaskEndpoints(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	a := s.register(t, "Alice", "alice@example.com", "secret1")
	b := s.register(t, "Bob", "bob@example.com", "secret1")

	rec, _ := s.do(t, http.MethodGet, "/api/v1/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var created taskResponse
	for i, title := range []string{"Write report", "Email client", "Plan sprint"} {
		body := gin.H{"title": title, "dueDate": "2030-01-0" + string(rune('1'+i))}
		if i == 0 {
			body["priority"] = "high"
			body["tags"] = []string{"work"}
		}
		rec, resp := s.do(t, http.MethodPost, "/api/v1/tasks", a.AccessToken, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		if i == 0 {
			require.NoError(t, json.Unmarshal(resp.Data, &created))
		}
	}
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, []string{"work"}, created.Tags)
	require.NotNil(t, created.DueDate)

	rec, resp := s.do(t, http.MethodGet, "/api/v1/tasks?limit=2&page=2&sortBy=title&order=asc", a.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Tasks      []taskResponse `json:"tasks"`
		Pagination pagination     `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, pagination{Page: 2, Limit: 2, Total: 3, Pages: 2}, page.Pagination)
	require.Len(t, page.Tasks, 1)
	assert.Equal(t, "Write report", page.Tasks[0].Title)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/tasks?limit=101", a.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/api/v1/tasks?status=archived", a.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/api/v1/tasks/" + created.ID
	rec, _ = s.do(t, http.MethodGet, path, b.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = s.do(t, http.MethodPut, path, b.AccessToken, gin.H{"title": "mine now"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/api/v1/tasks/not-an-id", a.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = s.do(t, http.MethodPut, path, a.AccessToken, gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated taskResponse
	require.NoError(t, json.Unmarshal(resp.Data, &updated))
	assert.Equal(t, "completed", updated.Status)
	assert.Equal(t, "Write report", updated.Title)
	assert.NotNil(t, updated.DueDate)

	rec, resp = s.do(t, http.MethodPut, path, a.AccessToken, gin.H{"dueDate": nil})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated = taskResponse{}
	require.NoError(t, json.Unmarshal(resp.Data, &updated))
	assert.Nil(t, updated.DueDate)
	assert.Equal(t, "completed", updated.Status)

	rec, resp = s.do(t, http.MethodGet, "/api/v1/tasks/stats", a.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats taskStatsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[models.TaskStatusCompleted])
	assert.Equal(t, 2, stats.ByStatus[models.TaskStatusPending])
	assert.Equal(t, 0, stats.ByStatus[models.TaskStatusInProgress])

	rec, _ = s.do(t, http.MethodDelete, path, a.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.do(t, http.MethodDelete, path, a.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	admin := s.admin(t)
	alice := s.register(t, "Alice", "alice@example.com", "secret1")

	rec, resp := s.do(t, http.MethodGet, "/api/v1/admin/users", alice.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, resp.Success)

	rec, resp = s.do(t, http.MethodGet, "/api/v1/admin/users?search=alice", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Users      []userResponse `json:"users"`
		Pagination pagination     `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list.Users, 1)
	assert.Equal(t, alice.User.ID, list.Users[0].ID)

	rec, resp = s.do(t, http.MethodGet, "/api/v1/admin/stats", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats adminStatsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, 2, stats.Users.Total)
	assert.Equal(t, 1, stats.Users.Admins)

	self := "/api/v1/admin/users/" + admin.User.ID
	rec, resp = s.do(t, http.MethodPut, self+"/deactivate", admin.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Cannot deactivate your own account", resp.Message)
	rec, _ = s.do(t, http.MethodDelete, self, admin.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	target := "/api/v1/admin/users/" + alice.User.ID
	rec, resp = s.do(t, http.MethodPut, target+"/role", admin.AccessToken, gin.H{"role": "superuser"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid role", resp.Message)

	rec, _ = s.do(t, http.MethodPut, target+"/deactivate", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Account is deactivated. Please contact support.", resp.Message)
	rec, _ = s.do(t, http.MethodGet, "/api/v1/auth/me", alice.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", "", gin.H{"refreshToken": alice.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(t, http.MethodPut, target+"/activate", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp = s.do(t, http.MethodGet, target, admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail userDetailResponse
	require.NoError(t, json.Unmarshal(resp.Data, &detail))
	assert.True(t, detail.IsActive)
	assert.Zero(t, detail.TaskCount)

	rec, _ = s.do(t, http.MethodDelete, target, admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, resp = s.do(t, http.MethodGet, target, admin.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", resp.Message)
}

func TestAssistantWithoutAPIKey(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	a := s.register(t, "Alice", "alice@example.com", "secret1")

	rec, resp := s.do(t, http.MethodPost, "/api/v1/ai/analyze", a.AccessToken, gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Message, "not configured")

	// no open tasks means no model call, so this works without a key
	rec, resp = s.do(t, http.MethodGet, "/api/v1/ai/schedule", a.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var schedule map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &schedule))
	assert.EqualValues(t, 8, schedule["workHours"])
	assert.EqualValues(t, 0, schedule["totalTasks"])

	rec, _ = s.do(t, http.MethodGet, "/api/v1/ai/schedule?startTime=9am", a.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndNotFound(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := newTestServer(t, testConfig(), client)

	rec, resp := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(resp.Data, &health))
	assert.Equal(t, "not_configured", health.Database)
	assert.Equal(t, "ok", health.Cache)
	assert.Equal(t, "test", health.Environment)

	rec, resp = s.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Route /api/v1/nope not found", resp.Message)
}

func TestAuthRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{
		Enabled:       true,
		GeneralMax:    100,
		GeneralWindow: 15 * time.Minute,
		AuthMax:       2,
		AuthWindow:    time.Minute,
	}
	s := newTestServer(t, cfg, client)

	body := gin.H{"email": "nobody@example.com", "password": "secret1"}
	for i := 0; i < 2; i++ {
		rec, _ := s.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec, resp := s.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.False(t, resp.Success)

	// the general limiter is separate from the auth limiter
	rec, _ = s.do(t, http.MethodGet, "/api/v1/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOversizedChunkedBody(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	payload := `{"name":"` + strings.Repeat("a", 20<<10) + `","email":"big@example.com","password":"secret1"}`

	for _, path := range []string{"/api/v1/auth/register", "/api/v1/auth/refresh-token"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(payload))
		req.ContentLength = -1
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		s.engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, path)
		assert.JSONEq(t, `{"success":false,"message":"Request body too large"}`, rec.Body.String(), path)
	}
}
