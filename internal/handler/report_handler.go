package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/response"
	"github.com/stemsi/ieltsmock-backend/internal/service"
	"github.com/stemsi/ieltsmock-backend/internal/validator"
)

// ReportHandler handles admin reporting and queue moderation.
type ReportHandler struct {
	reportService *service.ReportService
	adminService  *service.AdminService
	queueService  *service.QueueService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(
	reportService *service.ReportService,
	adminService *service.AdminService,
	queueService *service.QueueService,
) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		adminService:  adminService,
		queueService:  queueService,
	}
}

// ListResults godoc
// GET /api/v1/admin/results[?test_id=]
func (h *ReportHandler) ListResults(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	var testID *uuid.UUID
	if raw := c.Query("test_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		testID = &id
	}

	results, err := h.reportService.Results(c.Request.Context(), claims.UserID, testID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	if results == nil {
		results = []model.AttemptResult{}
	}
	response.Success(c, http.StatusOK, results)
}

// ListStudents godoc
// GET /api/v1/admin/students
// Aggregates attempts by candidate name.
func (h *ReportHandler) ListStudents(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	students, err := h.reportService.Students(c.Request.Context(), claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	if students == nil {
		students = []model.StudentSummary{}
	}
	response.Success(c, http.StatusOK, students)
}

// GetStats godoc
// GET /api/v1/admin/stats
func (h *ReportHandler) GetStats(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	stats, err := h.adminService.StatsFor(c.Request.Context(), claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// TransitionQueue godoc
// PUT /api/v1/admin/queue/:id/status
// Moves a queue entry of one of the admin's tests to another status.
func (h *ReportHandler) TransitionQueue(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.TransitionQueueRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	entry, err := h.queueService.Transition(c.Request.Context(), id, req.Status, claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, entry)
}
