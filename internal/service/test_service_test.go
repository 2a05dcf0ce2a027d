package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTestDefaults(t *testing.T) {
	env := newTestEnv(t)
	adm := env.admin(t, "a@example.com")

	test, err := env.tests.Create(env.ctx, adm.ID, &model.CreateTestRequest{Title: "Bare"})
	require.NoError(t, err)
	assert.Equal(t, "academic", test.Type)
	assert.Equal(t, model.DefaultTestDuration, test.Duration)
	assert.NotNil(t, test.MocIDs)
	assert.False(t, test.IsActive)
}

func TestCreateTestValidatesVariants(t *testing.T) {
	env := newTestEnv(t)
	owner := env.admin(t, "a@example.com")
	other := env.admin(t, "b@example.com")
	foreign := env.variant(t, other.ID, true, "")

	_, err := env.tests.Create(env.ctx, owner.ID, &model.CreateTestRequest{Title: "T", MocIDs: []uuid.UUID{foreign.ID}})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, apperr.FieldsOf(err), "moc_ids")

	_, err = env.tests.Create(env.ctx, owner.ID, &model.CreateTestRequest{Title: "T", MocIDs: []uuid.UUID{uuid.New()}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUpdateAndDeleteTest(t *testing.T) {
	env := newTestEnv(t)
	owner := env.admin(t, "a@example.com")
	other := env.admin(t, "b@example.com")
	test := env.test(t, owner.ID, false)

	title := "Renamed"
	duration := 60
	updated, err := env.tests.Update(env.ctx, test.ID, owner.ID, &model.UpdateTestRequest{
		Title:    &title,
		Duration: &duration,
		Writing:  json.RawMessage(`{"tasks":["new"]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, 60, updated.Duration)
	assert.JSONEq(t, `{"passages":["base reading"]}`, string(updated.Reading))
	assert.JSONEq(t, `{"tasks":["new"]}`, string(updated.Writing))

	_, err = env.tests.Get(env.ctx, test.ID, other.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, env.tests.Delete(env.ctx, test.ID, other.ID), apperr.ErrNotFound)

	require.NoError(t, env.tests.Delete(env.ctx, test.ID, owner.ID))
	_, err = env.tests.Get(env.ctx, test.ID, owner.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListTestsPaginates(t *testing.T) {
	env := newTestEnv(t)
	adm := env.admin(t, "a@example.com")
	for range 5 {
		env.test(t, adm.ID, false)
	}
	env.test(t, env.admin(t, "b@example.com").ID, false)

	page, total, err := env.tests.List(env.ctx, adm.ID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)
}

func TestStartStopMock(t *testing.T) {
	env := newTestEnv(t)
	adm := env.admin(t, "a@example.com")
	test := env.test(t, adm.ID, false)
	code := env.key(t, test.ID, adm.ID)

	_, err := env.queue.Join(env.ctx, 1, code)
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	started, err := env.tests.StartMock(env.ctx, test.ID, adm.ID)
	require.NoError(t, err)
	assert.True(t, started.IsActive)
	require.NotNil(t, started.StartedAt)

	entries, err := env.store.Queue.ListByTest(env.ctx, test.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.QueueStatusPreparation, entries[0].Status)

	res, err := env.attempts.Access(env.ctx, code, "Alice")
	require.NoError(t, err)

	stopped, err := env.tests.StopMock(env.ctx, test.ID, adm.ID)
	require.NoError(t, err)
	assert.False(t, stopped.IsActive)
	assert.NotNil(t, stopped.EndedAt)

	// Open attempts survive a stop and can still submit.
	_, err = env.attempts.Submit(env.ctx, res.Attempt.ID)
	require.NoError(t, err)
}

func TestMocSession(t *testing.T) {
	env := newTestEnv(t)
	adm := env.admin(t, "a@example.com")
	m := env.variant(t, adm.ID, true, `{"passages":["moc"]}`)

	test, err := env.mocs.Start(env.ctx, adm.ID, &model.StartMocRequest{Title: "Saturday MOC", MocIDs: []uuid.UUID{m.ID}})
	require.NoError(t, err)
	assert.True(t, test.IsActive)
	assert.Equal(t, "moc", test.Type)
	assert.Equal(t, []uuid.UUID{m.ID}, test.MocIDs)

	res, err := env.attempts.Access(env.ctx, env.key(t, test.ID, adm.ID), "Dewi")
	require.NoError(t, err)
	require.NotNil(t, res.Attempt.AssignedMocID)
	assert.Equal(t, m.ID, *res.Attempt.AssignedMocID)

	list, err := env.mocs.List(env.ctx, adm.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = env.mocs.Get(env.ctx, m.ID, adm.ID+100)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReports(t *testing.T) {
	env := newTestEnv(t)
	adm := env.admin(t, "a@example.com")
	other := env.admin(t, "b@example.com")
	t1 := env.test(t, adm.ID, true)
	t2 := env.test(t, adm.ID, true)
	foreign := env.test(t, other.ID, true)

	a1, err := env.attempts.Access(env.ctx, env.key(t, t1.ID, adm.ID), "Alice")
	require.NoError(t, err)
	_, err = env.attempts.Submit(env.ctx, a1.Attempt.ID)
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	_, err = env.attempts.Access(env.ctx, env.key(t, t2.ID, adm.ID), "Alice")
	require.NoError(t, err)
	_, err = env.attempts.Access(env.ctx, env.key(t, foreign.ID, other.ID), "Bob")
	require.NoError(t, err)

	all, err := env.reports.Results(env.ctx, adm.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := env.reports.Results(env.ctx, adm.ID, &t1.ID)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.True(t, one[0].IsSubmitted)
	assert.Equal(t, "Academic Mock 1", one[0].TestTitle)

	students, err := env.reports.Students(env.ctx, adm.ID)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "Alice", students[0].Name)
	assert.Equal(t, 2, students[0].TotalAttempts)
	assert.Equal(t, 1, students[0].CompletedAttempts)
}

func TestMonitorSnapshot(t *testing.T) {
	env := newTestEnv(t)
	adm := env.admin(t, "a@example.com")
	other := env.admin(t, "b@example.com")
	test := env.test(t, adm.ID, true)

	res, err := env.attempts.Access(env.ctx, env.key(t, test.ID, adm.ID), "Alice")
	require.NoError(t, err)
	require.NoError(t, env.store.Violations.Insert(env.ctx, &model.Violation{
		AttemptID: res.Attempt.ID, TestID: test.ID, Kind: model.ViolationTabHidden, RecordedAt: env.clock.Now(),
	}))
	_, err = env.queue.Join(env.ctx, 9, env.key(t, test.ID, adm.ID))
	require.NoError(t, err)

	snap, err := env.monitor.Snapshot(env.ctx, test.ID, adm.ID)
	require.NoError(t, err)
	assert.Equal(t, test.ID, snap.Test.ID)
	assert.Len(t, snap.Attempts, 1)
	assert.Len(t, snap.Queue, 1)
	assert.Equal(t, 1, snap.ViolationCount[res.Attempt.ID])
	assert.Equal(t, 1, snap.TotalViolation)

	_, err = env.monitor.Snapshot(env.ctx, test.ID, other.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
