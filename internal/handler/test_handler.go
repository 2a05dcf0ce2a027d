package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/response"
	"github.com/stemsi/ieltsmock-backend/internal/service"
	"github.com/stemsi/ieltsmock-backend/internal/validator"
)

// TestHandler handles admin test authoring and the mock-session controls.
type TestHandler struct {
	testService *service.TestService
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(testService *service.TestService) *TestHandler {
	return &TestHandler{testService: testService}
}

// ListTests godoc
// GET /api/v1/admin/tests?page=&per_page=
func (h *TestHandler) ListTests(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	tests, total, err := h.testService.List(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	if tests == nil {
		tests = []model.Test{}
	}
	response.SuccessWithPagination(c, http.StatusOK, tests, response.NewPagination(page, perPage, total))
}

// CreateTest godoc
// POST /api/v1/admin/tests
func (h *TestHandler) CreateTest(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	var req model.CreateTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.testService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusCreated, test)
}

// GetTest godoc
// GET /api/v1/admin/tests/:id
func (h *TestHandler) GetTest(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	test, err := h.testService.Get(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, test)
}

// UpdateTest godoc
// PUT /api/v1/admin/tests/:id
func (h *TestHandler) UpdateTest(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.UpdateTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.testService.Update(c.Request.Context(), id, claims.UserID, &req)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, test)
}

// DeleteTest godoc
// DELETE /api/v1/admin/tests/:id
func (h *TestHandler) DeleteTest(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.testService.Delete(c.Request.Context(), id, claims.UserID); err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// StartMock godoc
// POST /api/v1/admin/tests/:id/start-mock
// Activates the test; waiting students move to preparation on their next poll.
func (h *TestHandler) StartMock(c *gin.Context) {
	h.toggle(c, h.testService.StartMock)
}

// StopMock godoc
// POST /api/v1/admin/tests/:id/stop-mock
func (h *TestHandler) StopMock(c *gin.Context) {
	h.toggle(c, h.testService.StopMock)
}

func (h *TestHandler) toggle(c *gin.Context, fn func(ctx context.Context, id uuid.UUID, adminID int) (*model.Test, error)) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	test, err := fn(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, test)
}
