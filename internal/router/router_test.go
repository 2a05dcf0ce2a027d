package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/broker"
	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/handler"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
	"github.com/stemsi/ieltsmock-backend/internal/repository/memory"
	"github.com/stemsi/ieltsmock-backend/internal/service"
	"github.com/stemsi/ieltsmock-backend/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

type app struct {
	router *gin.Engine
	store  *repository.Store
	admins *service.AdminService
}

func newApp(t *testing.T) *app {
	t.Helper()

	cfg := &config.Config{
		GinMode:           gin.TestMode,
		JWTSecret:         "router-secret",
		JWTExpiry:         time.Hour,
		RefreshExpiry:     24 * time.Hour,
		BcryptCost:        4,
		UploadDir:         t.TempDir(),
		MaxUploadBytes:    1 << 20,
		TestKeyLength:     8,
		QueueStaleAfter:   10 * time.Minute,
		QueuePollInterval: 10 * time.Millisecond,
		QueueMaxPolls:     3,
		PreparationWindow: time.Minute,
		AutoSubmitDelay:   10 * time.Millisecond,
		ContentCacheTTL:   time.Minute,
	}
	store := memory.NewStore()
	b := broker.NewLocal()
	log := zerolog.Nop()

	auth := service.NewAuthService(cfg, b)
	monitor := service.NewMonitorService(store, b, log)
	keys := service.NewTestKeyService(cfg, store.Keys, store.Tests, log)
	attempts := service.NewAttemptService(cfg, store, keys, service.NewVariantSelector(store.MocTests), b, monitor, log)
	queue := service.NewQueueService(cfg, store, monitor, log)
	tests := service.NewTestService(store, monitor, log)
	mocs := service.NewMocService(store, tests, log)
	admins := service.NewAdminService(store.Admins, auth, log)
	students := service.NewStudentService(store.Students, store.Attempts, auth, log)
	media := service.NewMediaService(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := SetupRouter(ctx, auth, &Handlers{
		Auth:          handler.NewAuthHandler(auth, students, admins),
		Attempt:       handler.NewAttemptHandler(attempts, auth, media),
		StudentPortal: handler.NewStudentPortalHandler(queue, students),
		Test:          handler.NewTestHandler(tests),
		TestKey:       handler.NewTestKeyHandler(keys),
		Moc:           handler.NewMocHandler(mocs),
		Report:        handler.NewReportHandler(service.NewReportService(store.Attempts), admins, queue),
		Media:         handler.NewMediaHandler(media),
		Monitor:       handler.NewMonitorHandler(monitor, log),
		AdminUser:     handler.NewAdminUserHandler(admins),
		WS:            handler.NewWSHandler(attempts, cfg, log),
	}, cfg, log)

	return &app{router: r, store: store, admins: admins}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func (a *app) do(t *testing.T, method, path, token string, body any) (int, envelope) {
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
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func (a *app) login(t *testing.T, email string, role model.AdminRole) string {
	t.Helper()
	_, err := a.admins.CreateAccount(context.Background(), email, "Admin", "secret123", role)
	require.NoError(t, err)

	status, env := a.do(t, http.MethodPost, "/api/v1/auth/admin/login", "", gin.H{"email": email, "password": "secret123"})
	require.Equal(t, http.StatusOK, status)
	return decodeData[service.AdminLoginResult](t, env).AccessToken
}

// activeTestKey creates and starts a test, returning its id and one key.
func (a *app) activeTestKey(t *testing.T, token string) (string, string) {
	t.Helper()
	status, env := a.do(t, http.MethodPost, "/api/v1/admin/tests", token, gin.H{
		"title":      "Academic Mock 1",
		"reading":    gin.H{"passages": []string{"p1"}},
		"answer_key": gin.H{"reading": gin.H{"1": "B"}},
	})
	require.Equal(t, http.StatusCreated, status)
	test := decodeData[model.Test](t, env)

	status, _ = a.do(t, http.MethodPost, "/api/v1/admin/tests/"+test.ID.String()+"/start-mock", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = a.do(t, http.MethodPost, "/api/v1/admin/tests/"+test.ID.String()+"/generate-code", token, nil)
	require.Equal(t, http.StatusCreated, status)
	return test.ID.String(), decodeData[model.TestKey](t, env).Key
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	status, env := a.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(env.Data))
}

func TestAttemptFlowOverHTTP(t *testing.T) {
	a := newApp(t)
	admin := a.login(t, "admin@example.com", model.AdminRoleAdmin)
	_, key := a.activeTestKey(t, admin)

	status, env := a.do(t, http.MethodPost, "/api/v1/exam/access", "", gin.H{"test_key": strings.ToLower(key), "full_name": " Alice "})
	require.Equal(t, http.StatusCreated, status)
	access := decodeData[handler.AccessResponse](t, env)
	assert.Equal(t, service.AccessCreated, access.Outcome)
	assert.Equal(t, "Alice", access.Attempt.StudentName)
	assert.Equal(t, model.DefaultTestDuration*60, access.Remaining)
	token := access.AccessToken

	status, env = a.do(t, http.MethodPost, "/api/v1/exam/access", "", gin.H{"test_key": key, "full_name": "Alice"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, service.AccessResumed, decodeData[handler.AccessResponse](t, env).Outcome)

	status, env = a.do(t, http.MethodPost, "/api/v1/exam/access", "", gin.H{"test_key": key, "full_name": "Bob"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	status, env = a.do(t, http.MethodGet, "/api/v1/exam/content", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, string(env.Data), "answer_key")
	assert.Contains(t, string(env.Data), "p1")

	status, _ = a.do(t, http.MethodPut, "/api/v1/exam/answers/reading", token, gin.H{"answers": gin.H{"1": "B"}})
	require.Equal(t, http.StatusOK, status)
	status, env = a.do(t, http.MethodPut, "/api/v1/exam/answers/speaking", token, gin.H{"answers": gin.H{"1": "B"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Error.Fields, "section")

	status, env = a.do(t, http.MethodGet, "/api/v1/exam/attempt", token, nil)
	require.Equal(t, http.StatusOK, status)
	state := decodeData[handler.AttemptState](t, env)
	assert.Equal(t, model.AttemptStatusInProgress, state.Status)
	assert.Equal(t, "B", state.Attempt.Answers.Reading["1"])

	status, env = a.do(t, http.MethodPost, "/api/v1/exam/submit", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, decodeData[service.SubmitResult](t, env).AlreadySubmitted)

	status, env = a.do(t, http.MethodPost, "/api/v1/exam/submit", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decodeData[service.SubmitResult](t, env).AlreadySubmitted)

	status, env = a.do(t, http.MethodPut, "/api/v1/exam/answers/reading", token, gin.H{"answers": gin.H{"2": "A"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "ALREADY_SUBMITTED", env.Error.Code)

	status, env = a.do(t, http.MethodPost, "/api/v1/exam/access", "", gin.H{"test_key": key, "full_name": "Alice"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "ALREADY_SUBMITTED", env.Error.Code)

	status, env = a.do(t, http.MethodGet, "/api/v1/admin/results", admin, nil)
	require.Equal(t, http.StatusOK, status)
	results := decodeData[[]model.AttemptResult](t, env)
	require.Len(t, results, 1)
	assert.Equal(t, "Academic Mock 1", results[0].TestTitle)
}

func TestStudentExamPaths(t *testing.T) {
	a := newApp(t)
	admin := a.login(t, "admin@example.com", model.AdminRoleAdmin)
	_, key := a.activeTestKey(t, admin)

	status, env := a.do(t, http.MethodPost, "/api/v1/student/access", "", gin.H{"test_key": key, "full_name": "Alice"})
	require.Equal(t, http.StatusCreated, status)
	access := decodeData[handler.AccessResponse](t, env)
	token := access.AccessToken
	require.NotEmpty(t, token)
	require.NotEmpty(t, access.RefreshToken)

	status, env = a.do(t, http.MethodGet, "/api/v1/student/test", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, string(env.Data), "answer_key")

	status, _ = a.do(t, http.MethodPost, "/api/v1/student/answers/reading", token, gin.H{"answers": gin.H{"1": "B"}})
	require.Equal(t, http.StatusOK, status)

	status, env = a.do(t, http.MethodPost, "/api/v1/student/highlights", token, gin.H{
		"highlights": []gin.H{{"text": "river bank", "start": 3, "end": 13, "color": "yellow"}},
	})
	require.Equal(t, http.StatusOK, status)
	saved := decodeData[struct {
		Highlights []model.Highlight `json:"highlights"`
	}](t, env)
	require.Len(t, saved.Highlights, 1)
	assert.Equal(t, "river bank", saved.Highlights[0].Text)

	status, env = a.do(t, http.MethodPost, "/api/v1/student/submit", token, nil)
	require.Equal(t, http.StatusOK, status)
	sealed := decodeData[service.SubmitResult](t, env)
	assert.True(t, sealed.Attempt.IsSubmitted)
	assert.Equal(t, "B", sealed.Attempt.Answers.Reading["1"])

	// A candidate token is not a student portal token.
	status, env = a.do(t, http.MethodGet, "/api/v1/student/queue-status", token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.NotNil(t, env.Error)
}

func TestAccessErrors(t *testing.T) {
	a := newApp(t)
	admin := a.login(t, "admin@example.com", model.AdminRoleAdmin)
	_, key := a.activeTestKey(t, admin)

	status, env := a.do(t, http.MethodPost, "/api/v1/exam/access", "", gin.H{"test_key": "ZZZZ9999", "full_name": "Alice"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = a.do(t, http.MethodPost, "/api/v1/exam/access", "", gin.H{"test_key": "bad key!", "full_name": "Alice"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Error.Fields, "test_key")

	status, _ = a.do(t, http.MethodPost, "/api/v1/admin/test-keys/"+key+"/deactivate", admin, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = a.do(t, http.MethodPost, "/api/v1/exam/access", "", gin.H{"test_key": key, "full_name": "Alice"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INACTIVE", env.Error.Code)

	status, _ = a.do(t, http.MethodGet, "/api/v1/exam/content", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = a.do(t, http.MethodGet, "/api/v1/exam/content", admin, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestStudentQueueFlow(t *testing.T) {
	a := newApp(t)
	admin := a.login(t, "admin@example.com", model.AdminRoleAdmin)
	_, key := a.activeTestKey(t, admin)

	status, env := a.do(t, http.MethodPost, "/api/v1/auth/student/register", "", gin.H{
		"email": "stu@example.com", "full_name": "Siti", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, status)
	token := decodeData[service.StudentLoginResult](t, env).AccessToken

	status, env = a.do(t, http.MethodGet, "/api/v1/student/queue-status", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, model.QueueStatusNone, decodeData[model.QueueStatusView](t, env).Status)

	status, _ = a.do(t, http.MethodPost, "/api/v1/student/enter-test-code", token, gin.H{"test_code": key})
	require.Equal(t, http.StatusCreated, status)

	status, env = a.do(t, http.MethodGet, "/api/v1/student/queue-status?wait=true", token, nil)
	require.Equal(t, http.StatusOK, status)
	view := decodeData[model.QueueStatusView](t, env)
	assert.Equal(t, model.QueueStatusPreparation, view.Status)
	assert.Equal(t, key, view.VariantCode)
	require.NotNil(t, view.PreparationTimeRemaining)
	assert.Equal(t, 10, view.Poll.IntervalMS)

	status, env = a.do(t, http.MethodPost, "/api/v1/student/start-test", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, model.QueueStatusStarted, decodeData[model.QueueStatusView](t, env).Status)

	status, env = a.do(t, http.MethodGet, "/api/v1/student/test-status/"+key, token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"is_active":true}`, string(env.Data))

	// A second login replaces the first session.
	status, env = a.do(t, http.MethodPost, "/api/v1/auth/student/login", "", gin.H{"email": "stu@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, status)
	fresh := decodeData[service.StudentLoginResult](t, env)

	status, env = a.do(t, http.MethodGet, "/api/v1/student/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "SESSION_INVALIDATED", env.Error.Code)
	status, _ = a.do(t, http.MethodGet, "/api/v1/student/profile", fresh.AccessToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, env = a.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": fresh.RefreshToken})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, decodeData[service.TokenPair](t, env).AccessToken)
}

func TestOwnerRoutes(t *testing.T) {
	a := newApp(t)
	owner := a.login(t, "owner@example.com", model.AdminRoleOwner)
	admin := a.login(t, "admin@example.com", model.AdminRoleAdmin)

	status, env := a.do(t, http.MethodGet, "/api/v1/owner/admins", admin, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "OWNER_ACCESS_ONLY", env.Error.Code)

	status, env = a.do(t, http.MethodPost, "/api/v1/owner/admins", owner, gin.H{
		"email": "new@example.com", "name": "New Admin", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, status)
	created := decodeData[model.Admin](t, env)
	assert.Equal(t, model.AdminRoleAdmin, created.Role)

	status, _ = a.do(t, http.MethodPut, "/api/v1/owner/admins/"+strconv.Itoa(created.ID)+"/active", owner, gin.H{"is_active": false})
	require.Equal(t, http.StatusOK, status)

	status, _ = a.do(t, http.MethodPost, "/api/v1/auth/admin/login", "", gin.H{"email": "new@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusForbidden, status)

	status, env = a.do(t, http.MethodGet, "/api/v1/owner/stats", owner, nil)
	require.Equal(t, http.StatusOK, status)
	stats := decodeData[model.SystemStats](t, env)
	assert.Equal(t, 2, stats.TotalAdmins)
	assert.Equal(t, 1, stats.ActiveAdmins)

	// The owner may use the admin surface too.
	status, _ = a.do(t, http.MethodGet, "/api/v1/admin/tests", owner, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAdminOwnership(t *testing.T) {
	a := newApp(t)
	alice := a.login(t, "alice@example.com", model.AdminRoleAdmin)
	bob := a.login(t, "bob@example.com", model.AdminRoleAdmin)
	testID, _ := a.activeTestKey(t, alice)

	status, _ := a.do(t, http.MethodPost, "/api/v1/admin/tests/"+testID+"/generate-code", bob, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = a.do(t, http.MethodGet, "/api/v1/admin/tests/not-a-uuid", alice, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestExamStreamOverWebSocket(t *testing.T) {
	a := newApp(t)
	admin := a.login(t, "admin@example.com", model.AdminRoleAdmin)
	_, key := a.activeTestKey(t, admin)

	status, env := a.do(t, http.MethodPost, "/api/v1/exam/access", "", gin.H{"test_key": key, "full_name": "Alice"})
	require.Equal(t, http.StatusCreated, status)
	token := decodeData[handler.AccessResponse](t, env).AccessToken

	srv := httptest.NewServer(a.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/exam/stream?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	ready := readEvent(t, conn, "ready")
	assert.Equal(t, true, ready["blocked"])

	send(t, conn, "autosave", gin.H{"section": "reading", "answers": gin.H{"1": "B"}})
	assert.Equal(t, "BLOCKED", readEvent(t, conn, "error")["code"])

	send(t, conn, "fullscreen_enter", nil)
	readEvent(t, conn, "unblocked")

	send(t, conn, "autosave", gin.H{"section": "reading", "answers": gin.H{"1": "B"}})
	assert.Equal(t, "reading", readEvent(t, conn, "saved")["section"])

	send(t, conn, "blur", nil)
	readEvent(t, conn, "blocked")

	// Submitting is allowed while locked.
	send(t, conn, "submit", nil)
	assert.Equal(t, false, readEvent(t, conn, "submitted")["already_submitted"])

	send(t, conn, "submit", nil)
	assert.Equal(t, true, readEvent(t, conn, "submitted")["already_submitted"])

	attempts, err := a.store.Attempts.ListByTest(context.Background(), decodeData[handler.AccessResponse](t, env).Attempt.TestID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].IsSubmitted)
	assert.Equal(t, "B", attempts[0].Answers.Reading["1"])
}

func send(t *testing.T, conn *websocket.Conn, action string, data any) {
	t.Helper()
	msg := gin.H{"action": action}
	if data != nil {
		msg["data"] = data
	}
	require.NoError(t, conn.WriteJSON(msg))
}

// readEvent skips tick and unrelated events until want arrives.
func readEvent(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg struct {
			Event string         `json:"event"`
			Data  map[string]any `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Event == want {
			return msg.Data
		}
		if msg.Event == "error" {
			t.Fatalf("unexpected error event while waiting for %s: %v", want, msg.Data)
		}
	}
}
