package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminLogin(t *testing.T) {
	env := newTestEnv(t)
	adm := env.admin(t, "a@example.com")

	res, err := env.admins.Login(env.ctx, " a@example.com ", "secret123")
	require.NoError(t, err)
	assert.Equal(t, adm.ID, res.Admin.ID)
	assert.NotEmpty(t, res.AccessToken)

	_, err = env.admins.Login(env.ctx, "a@example.com", "wrong-pass")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	_, err = env.admins.Login(env.ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	require.NoError(t, env.admins.SetActive(env.ctx, adm.ID, false))
	_, err = env.admins.Login(env.ctx, "a@example.com", "secret123")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestOwnerManagesAdmins(t *testing.T) {
	env := newTestEnv(t)
	owner, err := env.admins.CreateAccount(env.ctx, "owner@example.com", "Owner", "secret123", model.AdminRoleOwner)
	require.NoError(t, err)

	adm, err := env.admins.CreateAdmin(env.ctx, &model.CreateAdminRequest{
		Email: "a@example.com", Name: "Ayu", Password: "secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, model.AdminRoleAdmin, adm.Role)

	_, err = env.admins.CreateAdmin(env.ctx, &model.CreateAdminRequest{
		Email: "A@example.com", Name: "Dup", Password: "secret123",
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	admins, err := env.admins.ListAdmins(env.ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, adm.ID, admins[0].ID)

	assert.ErrorIs(t, env.admins.SetActive(env.ctx, owner.ID, false), apperr.ErrForbidden)
	assert.ErrorIs(t, env.admins.Delete(env.ctx, owner.ID), apperr.ErrForbidden)

	require.NoError(t, env.admins.ResetPassword(env.ctx, adm.ID, "new-secret"))
	_, err = env.admins.Login(env.ctx, "a@example.com", "new-secret")
	require.NoError(t, err)

	require.NoError(t, env.admins.Delete(env.ctx, adm.ID))
	_, err = env.admins.GetByID(env.ctx, adm.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSystemStats(t *testing.T) {
	env := newTestEnv(t)
	adm := env.admin(t, "a@example.com")
	idle := env.admin(t, "b@example.com")
	require.NoError(t, env.admins.SetActive(env.ctx, idle.ID, false))

	test := env.test(t, adm.ID, true)
	key := env.key(t, test.ID, adm.ID)
	env.key(t, test.ID, adm.ID)
	res, err := env.attempts.Access(env.ctx, key, "Alice")
	require.NoError(t, err)
	_, err = env.attempts.Submit(env.ctx, res.Attempt.ID)
	require.NoError(t, err)

	stats, err := env.admins.SystemStats(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, &model.SystemStats{
		TotalAdmins:       2,
		ActiveAdmins:      1,
		TotalTests:        1,
		TotalKeys:         2,
		TotalAttempts:     1,
		CompletedAttempts: 1,
	}, stats)

	mine, err := env.admins.StatsFor(env.ctx, idle.ID)
	require.NoError(t, err)
	assert.Zero(t, mine.TotalTests)
}

func TestStudentAccount(t *testing.T) {
	env := newTestEnv(t)

	reg, err := env.students.Register(env.ctx, &model.StudentRegisterRequest{
		Email: "budi@example.com", FullName: " Budi ", Password: "secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, "Budi", reg.Student.FullName)
	assert.NotEmpty(t, reg.RefreshToken)

	_, err = env.students.Register(env.ctx, &model.StudentRegisterRequest{
		Email: "budi@example.com", FullName: "Other", Password: "secret123",
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = env.students.Login(env.ctx, "budi@example.com", "nope-nope")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	login, err := env.students.Login(env.ctx, "budi@example.com", "secret123")
	require.NoError(t, err)
	claims, err := env.auth.ValidateAccessToken(login.AccessToken)
	require.NoError(t, err)
	assert.NoError(t, env.auth.ValidateStudentSession(env.ctx, reg.Student.ID, claims.SessionID))

	updated, err := env.students.UpdateProfile(env.ctx, reg.Student.ID, "Budi Santoso")
	require.NoError(t, err)
	assert.Equal(t, "Budi Santoso", updated.FullName)

	_, err = env.students.UpdateProfile(env.ctx, reg.Student.ID, "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = env.students.Profile(env.ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStudentStats(t *testing.T) {
	env := newTestEnv(t)
	reg, err := env.students.Register(env.ctx, &model.StudentRegisterRequest{
		Email: "c@example.com", FullName: "Citra", Password: "secret123",
	})
	require.NoError(t, err)

	empty, err := env.students.Stats(env.ctx, reg.Student.ID)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalAttempts)
	assert.Nil(t, empty.AverageBand)

	scores := map[uuid.UUID]*model.Scores{}
	for _, band := range []float64{6.5, 7.0, 7.5} {
		a := env.access(t, "Citra")
		_, err := env.attempts.Submit(env.ctx, a.ID)
		require.NoError(t, err)
		b := band
		scores[a.ID] = &model.Scores{Overall: &b}
	}
	env.access(t, "Citra")
	require.NoError(t, env.store.Attempts.SaveScores(env.ctx, scores))

	stats, err := env.students.Stats(env.ctx, reg.Student.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalAttempts)
	assert.Equal(t, 3, stats.CompletedAttempts)
	require.NotNil(t, stats.AverageBand)
	assert.InDelta(t, 7.0, *stats.AverageBand, 1e-9)
	require.NotNil(t, stats.BestBand)
	assert.InDelta(t, 7.5, *stats.BestBand, 1e-9)
}
