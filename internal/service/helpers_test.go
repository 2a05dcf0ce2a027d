package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/broker"
	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
	"github.com/stemsi/ieltsmock-backend/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	ctx    context.Context
	cfg    *config.Config
	store  *repository.Store
	broker *broker.Local
	clock  *fakeClock

	auth     *AuthService
	keys     *TestKeyService
	variants *VariantSelector
	monitor  *MonitorService
	attempts *AttemptService
	queue    *QueueService
	tests    *TestService
	mocs     *MocService
	admins   *AdminService
	students *StudentService
	reports  *ReportService
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:          "test-secret",
		JWTExpiry:          time.Hour,
		RefreshExpiry:      24 * time.Hour,
		BcryptCost:         bcrypt.MinCost,
		TestKeyLength:      8,
		QueueStaleAfter:    10 * time.Minute,
		QueueSweepInterval: time.Minute,
		QueuePollInterval:  2 * time.Second,
		QueueMaxPolls:      30,
		PreparationWindow:  60 * time.Second,
		AutoSubmitDelay:    time.Second,
		ContentCacheTTL:    30 * time.Minute,
		MaxUploadBytes:     1 << 20,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testConfig()
	store := memory.NewStore()
	b := broker.NewLocal()
	clk := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	log := zerolog.Nop()

	env := &testEnv{ctx: context.Background(), cfg: cfg, store: store, broker: b, clock: clk}

	env.auth = NewAuthService(cfg, b)
	env.auth.now = clk.Now
	env.monitor = NewMonitorService(store, b, log)
	env.monitor.now = clk.Now
	env.keys = NewTestKeyService(cfg, store.Keys, store.Tests, log)
	env.keys.now = clk.Now
	env.variants = NewVariantSelector(store.MocTests)
	env.attempts = NewAttemptService(cfg, store, env.keys, env.variants, b, env.monitor, log)
	env.attempts.now = clk.Now
	env.queue = NewQueueService(cfg, store, env.monitor, log)
	env.queue.now = clk.Now
	env.tests = NewTestService(store, env.monitor, log)
	env.tests.now = clk.Now
	env.mocs = NewMocService(store, env.tests, log)
	env.admins = NewAdminService(store.Admins, env.auth, log)
	env.students = NewStudentService(store.Students, store.Attempts, env.auth, log)
	env.reports = NewReportService(store.Attempts)
	return env
}

func (e *testEnv) admin(t *testing.T, email string) *model.Admin {
	t.Helper()
	a, err := e.admins.CreateAccount(e.ctx, email, "Admin "+email, "secret123", model.AdminRoleAdmin)
	require.NoError(t, err)
	return a
}

func (e *testEnv) variant(t *testing.T, adminID int, active bool, reading string) *model.MocTest {
	t.Helper()
	req := &model.CreateMocTestRequest{Title: "Variant", IsActive: active}
	if reading != "" {
		req.ParsedContent.Reading = json.RawMessage(reading)
	}
	m, err := e.mocs.Create(e.ctx, adminID, req)
	require.NoError(t, err)
	return m
}

func (e *testEnv) test(t *testing.T, adminID int, active bool, mocIDs ...uuid.UUID) *model.Test {
	t.Helper()
	test, err := e.tests.Create(e.ctx, adminID, &model.CreateTestRequest{
		Title:     "Academic Mock 1",
		Reading:   json.RawMessage(`{"passages":["base reading"]}`),
		Listening: json.RawMessage(`{"parts":["base listening"]}`),
		Writing:   json.RawMessage(`{"tasks":["base writing"]}`),
		AnswerKey: model.AnswerKey{
			model.SectionReading: {"1": "B", "2": "true"},
		},
		MocIDs: mocIDs,
	})
	require.NoError(t, err)
	if active {
		test, err = e.tests.StartMock(e.ctx, test.ID, adminID)
		require.NoError(t, err)
	}
	return test
}

func (e *testEnv) key(t *testing.T, testID uuid.UUID, adminID int) string {
	t.Helper()
	k, err := e.keys.Generate(e.ctx, testID, adminID)
	require.NoError(t, err)
	return k.Key
}

// access opens an attempt for a fresh active test and returns it.
func (e *testEnv) access(t *testing.T, name string) *model.Attempt {
	t.Helper()
	adm := e.admin(t, uuid.NewString()+"@example.com")
	test := e.test(t, adm.ID, true)
	res, err := e.attempts.Access(e.ctx, e.key(t, test.ID, adm.ID), name)
	require.NoError(t, err)
	return res.Attempt
}
