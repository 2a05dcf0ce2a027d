package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminTokenRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	pair, err := env.auth.IssueAdminTokens(7, model.AdminRoleOwner)
	require.NoError(t, err)
	assert.Equal(t, 3600, pair.ExpiresIn)

	claims, err := env.auth.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeAdmin, claims.TokenType)
	assert.Equal(t, 7, claims.UserID)
	assert.Equal(t, model.AdminRoleOwner, claims.Role)

	_, err = env.auth.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrWrongTokenUse)

	_, err = env.auth.Refresh(env.ctx, pair.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}

func TestTokenExpiry(t *testing.T) {
	env := newTestEnv(t)

	pair, err := env.auth.IssueAdminTokens(1, model.AdminRoleAdmin)
	require.NoError(t, err)

	env.clock.Advance(61 * time.Minute)
	_, err = env.auth.ValidateAccessToken(pair.AccessToken)
	assert.Error(t, err)

	refreshed, err := env.auth.Refresh(env.ctx, pair.RefreshToken)
	require.NoError(t, err)
	claims, err := env.auth.ValidateAccessToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, 1, claims.UserID)
	assert.Equal(t, model.AdminRoleAdmin, claims.Role)
}

func TestTokenRejectsForeignSecret(t *testing.T) {
	env := newTestEnv(t)
	pair, err := env.auth.IssueAdminTokens(1, model.AdminRoleAdmin)
	require.NoError(t, err)

	otherCfg := testConfig()
	otherCfg.JWTSecret = "another-secret"
	other := NewAuthService(otherCfg, env.broker)
	other.now = env.clock.Now

	_, err = other.ValidateToken(pair.AccessToken)
	assert.Error(t, err)
}

func TestStudentLatestLoginWins(t *testing.T) {
	env := newTestEnv(t)

	first, err := env.auth.IssueStudentTokens(env.ctx, 3)
	require.NoError(t, err)
	firstClaims, err := env.auth.ValidateAccessToken(first.AccessToken)
	require.NoError(t, err)
	require.NoError(t, env.auth.ValidateStudentSession(env.ctx, 3, firstClaims.SessionID))

	second, err := env.auth.IssueStudentTokens(env.ctx, 3)
	require.NoError(t, err)
	secondClaims, err := env.auth.ValidateAccessToken(second.AccessToken)
	require.NoError(t, err)

	assert.ErrorIs(t, env.auth.ValidateStudentSession(env.ctx, 3, firstClaims.SessionID), ErrSessionInvalidated)
	assert.NoError(t, env.auth.ValidateStudentSession(env.ctx, 3, secondClaims.SessionID))

	_, err = env.auth.Refresh(env.ctx, first.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	refreshed, err := env.auth.Refresh(env.ctx, second.RefreshToken)
	require.NoError(t, err)
	claims, err := env.auth.ValidateAccessToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, secondClaims.SessionID, claims.SessionID)

	require.NoError(t, env.auth.ResetStudentSession(env.ctx, 3))
	assert.ErrorIs(t, env.auth.ValidateStudentSession(env.ctx, 3, secondClaims.SessionID), ErrNoSession)
}

func TestCandidateTokens(t *testing.T) {
	env := newTestEnv(t)
	attemptID := uuid.New()

	pair, err := env.auth.IssueCandidateTokens(attemptID, "ABCD1234")
	require.NoError(t, err)

	refreshed, err := env.auth.Refresh(env.ctx, pair.RefreshToken)
	require.NoError(t, err)
	claims, err := env.auth.ValidateAccessToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeCandidate, claims.TokenType)
	assert.Equal(t, attemptID.String(), claims.AttemptID)
	assert.Equal(t, "ABCD1234", claims.TestKey)
	assert.Zero(t, claims.UserID)
}

func TestPasswordHashing(t *testing.T) {
	env := newTestEnv(t)
	hash, err := env.auth.HashPassword("secret123")
	require.NoError(t, err)
	assert.NoError(t, env.auth.CheckPassword(hash, "secret123"))
	assert.ErrorIs(t, env.auth.CheckPassword(hash, "wrong"), apperr.ErrInvalidCredentials)
}
