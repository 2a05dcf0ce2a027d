package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrCode
	}{
		{"credentials", apperr.InvalidCredentials("bad password"), http.StatusUnauthorized, ErrInvalidCredentials},
		{"not found", fmt.Errorf("get: %w", apperr.NotFound("test key not found")), http.StatusNotFound, ErrNotFound},
		{"conflict", apperr.Conflict("key used"), http.StatusBadRequest, ErrConflict},
		{"already submitted", apperr.AlreadySubmitted("sealed"), http.StatusBadRequest, ErrAlreadySubmitted},
		{"inactive", apperr.Inactive("test inactive"), http.StatusBadRequest, ErrInactive},
		{"validation", apperr.Validation(nil), http.StatusBadRequest, ErrValidation},
		{"forbidden", apperr.Forbidden("not owner"), http.StatusForbidden, ErrForbidden},
		{"unknown", errors.New("db down"), http.StatusInternalServerError, ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestFailErrWritesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(ContextKeyRequestID, "req-1")

	FailErr(c, apperr.Validation(map[string]string{"full_name": "full_name is a required field"}))

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrValidation, body.Error.Code)
	assert.Equal(t, "full_name is a required field", body.Error.Fields["full_name"])
	assert.Equal(t, "req-1", body.Metadata.RequestID)
}

func TestFailErrHidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	FailErr(c, errors.New("pq: connection refused"))

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, GetMessage(ErrInternal), body.Error.Message)
	assert.Len(t, c.Errors, 1)
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 21)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 0, NewPagination(1, 0, 5).TotalPages)
}
