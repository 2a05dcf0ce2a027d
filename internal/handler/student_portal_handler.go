package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/response"
	"github.com/stemsi/ieltsmock-backend/internal/service"
	"github.com/stemsi/ieltsmock-backend/internal/session"
	"github.com/stemsi/ieltsmock-backend/internal/validator"
)

// longPollBudget caps how long a ?wait=true status request is held open.
const longPollBudget = 25 * time.Second

// StudentPortalHandler handles registered-student endpoints: the waiting
// queue, profile and attempt history.
type StudentPortalHandler struct {
	queueService   *service.QueueService
	studentService *service.StudentService
	poller         *session.QueuePoller
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(queueService *service.QueueService, studentService *service.StudentService) *StudentPortalHandler {
	policy := queueService.Policy()
	if policy.IntervalMS > 0 {
		policy.MaxPolls = min(policy.MaxPolls, int(longPollBudget/time.Millisecond)/policy.IntervalMS+1)
	}
	return &StudentPortalHandler{
		queueService:   queueService,
		studentService: studentService,
		poller:         session.NewQueuePoller(queueService, policy),
	}
}

// EnterTestCode godoc
// POST /api/v1/student/enter-test-code
// Joins the waiting queue for the test behind a code, replacing any
// earlier entry.
func (h *StudentPortalHandler) EnterTestCode(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	var req model.EnterTestCodeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	entry, err := h.queueService.Join(c.Request.Context(), claims.UserID, req.TestCode)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"entry": entry, "poll": h.queueService.Policy()})
}

// QueueStatus godoc
// GET /api/v1/student/queue-status[?wait=true]
// Reports the queue state. With wait=true the request is held until the
// test starts or the poll budget runs out.
func (h *StudentPortalHandler) QueueStatus(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if c.Query("wait") != "true" {
		view, err := h.queueService.PollStatus(ctx, claims.UserID)
		if err != nil {
			response.FailErr(c, err)
			return
		}
		response.Success(c, http.StatusOK, view)
		return
	}

	view, err := h.poller.Wait(ctx, claims.UserID)
	switch {
	case err == nil, errors.Is(err, session.ErrNotStarted), errors.Is(err, session.ErrNotQueued):
		response.Success(c, http.StatusOK, view)
	case errors.Is(err, ctx.Err()):
		// Client went away.
	default:
		response.FailErr(c, err)
	}
}

// LeaveQueue godoc
// POST /api/v1/student/leave-queue
func (h *StudentPortalHandler) LeaveQueue(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	entry, err := h.queueService.Leave(c.Request.Context(), claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"entry": entry})
}

// StartTest godoc
// POST /api/v1/student/start-test
// Starts the test before the preparation window ends.
func (h *StudentPortalHandler) StartTest(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	view, err := h.queueService.StartTest(c.Request.Context(), claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// TestStatus godoc
// GET /api/v1/student/test-status/:code
func (h *StudentPortalHandler) TestStatus(c *gin.Context) {
	active, err := h.queueService.CheckTestStatus(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"is_active": active})
}

// GetProfile godoc
// GET /api/v1/student/profile
func (h *StudentPortalHandler) GetProfile(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	student, err := h.studentService.Profile(c.Request.Context(), claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"student": student})
}

// UpdateProfile godoc
// PUT /api/v1/student/profile
func (h *StudentPortalHandler) UpdateProfile(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	var req model.UpdateProfileRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student, err := h.studentService.UpdateProfile(c.Request.Context(), claims.UserID, req.FullName)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"student": student})
}

// ListAttempts godoc
// GET /api/v1/student/attempts
func (h *StudentPortalHandler) ListAttempts(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	attempts, err := h.studentService.Attempts(c.Request.Context(), claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	if attempts == nil {
		attempts = []model.AttemptResult{}
	}
	response.Success(c, http.StatusOK, attempts)
}

// GetStats godoc
// GET /api/v1/student/stats
func (h *StudentPortalHandler) GetStats(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	stats, err := h.studentService.Stats(c.Request.Context(), claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}
