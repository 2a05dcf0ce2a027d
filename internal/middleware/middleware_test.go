package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/ieltsmock-backend/internal/broker"
	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuth() *service.AuthService {
	return service.NewAuthService(&config.Config{
		JWTSecret:     "middleware-secret",
		JWTExpiry:     time.Hour,
		RefreshExpiry: 24 * time.Hour,
		BcryptCost:    4,
	}, broker.NewLocal())
}

func serve(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func ok(c *gin.Context) { c.Status(http.StatusNoContent) }

func TestTokenTypeGuards(t *testing.T) {
	auth := newAuth()
	r := gin.New()
	r.GET("/admin", RequireAdminJWT(auth), ok)
	r.GET("/candidate", RequireCandidateJWT(auth), ok)

	admin, err := auth.IssueAdminTokens(1, model.AdminRoleAdmin)
	require.NoError(t, err)
	candidate, err := auth.IssueCandidateTokens(uuid.New(), "ABCD1234")
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, serve(r, "/admin", admin.AccessToken).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, "/admin", candidate.AccessToken).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "/candidate", candidate.AccessToken).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/admin", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/admin", "garbage").Code)

	// Refresh tokens are not accepted as bearer tokens.
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/admin", admin.RefreshToken).Code)

	// EventSource and WebSocket clients pass the token as a query parameter.
	assert.Equal(t, http.StatusNoContent, serve(r, "/candidate?token="+candidate.AccessToken, "").Code)
}

func TestSingleDeviceSession(t *testing.T) {
	auth := newAuth()
	r := gin.New()
	r.GET("/student", RequireStudentJWT(auth), CheckSingleDeviceSession(auth), ok)

	ctx := context.Background()
	first, err := auth.IssueStudentTokens(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, serve(r, "/student", first.AccessToken).Code)

	second, err := auth.IssueStudentTokens(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/student", first.AccessToken).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "/student", second.AccessToken).Code)
}

func TestRequireRole(t *testing.T) {
	auth := newAuth()
	r := gin.New()
	r.GET("/owner", RequireAdminJWT(auth), RequireRole(model.AdminRoleOwner), ok)

	owner, err := auth.IssueAdminTokens(1, model.AdminRoleOwner)
	require.NoError(t, err)
	admin, err := auth.IssueAdminTokens(2, model.AdminRoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, serve(r, "/owner", owner.AccessToken).Code)
	w := serve(r, "/owner", admin.AccessToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "OWNER_ACCESS_ONLY")
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("1.2.3.4"))
	assert.True(t, rl.allow("1.2.3.4"))
	assert.False(t, rl.allow("1.2.3.4"))
	assert.True(t, rl.allow("5.6.7.8"))

	now = now.Add(time.Minute)
	assert.True(t, rl.allow("1.2.3.4"))

	now = now.Add(10 * time.Minute)
	rl.evict(3 * time.Minute)
	rl.mu.Lock()
	assert.Empty(t, rl.buckets)
	rl.mu.Unlock()
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	r := gin.New()
	r.GET("/access", rl.Middleware(), ok)

	assert.Equal(t, http.StatusNoContent, serve(r, "/access", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "/access", "").Code)
}

func TestRequestIDPropagates(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))

	w = serve(r, "/", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
