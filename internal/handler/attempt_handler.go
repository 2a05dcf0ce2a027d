package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/response"
	"github.com/stemsi/ieltsmock-backend/internal/service"
	"github.com/stemsi/ieltsmock-backend/internal/validator"
)

// AttemptHandler serves the exam itself: test-key access, content,
// autosave and submission. Every route except Access is bound to the
// attempt in the candidate token.
type AttemptHandler struct {
	attemptService *service.AttemptService
	authService    *service.AuthService
	mediaService   *service.MediaService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(
	attemptService *service.AttemptService,
	authService *service.AuthService,
	mediaService *service.MediaService,
) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		authService:    authService,
		mediaService:   mediaService,
	}
}

// AccessResponse is returned by Access.
type AccessResponse struct {
	Outcome   service.AccessOutcome `json:"outcome"`
	Attempt   *model.Attempt        `json:"attempt"`
	Remaining int                   `json:"remaining"`
	*service.TokenPair
}

// AttemptState is the resume view of an attempt.
type AttemptState struct {
	Attempt   *model.Attempt      `json:"attempt"`
	Status    model.AttemptStatus `json:"status"`
	Remaining int                 `json:"remaining"`
}

// Access godoc
// POST /api/v1/exam/access
// Consumes a test key for a name and returns the bound attempt with a
// candidate token. Re-entering with the same key and name resumes.
func (h *AttemptHandler) Access(c *gin.Context) {
	var req model.AccessRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctx := c.Request.Context()
	res, err := h.attemptService.Access(ctx, req.TestKey, req.FullName)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	remaining, err := h.attemptService.Remaining(ctx, res.Attempt.ID)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	pair, err := h.authService.IssueCandidateTokens(res.Attempt.ID, res.Attempt.TestKey)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	status := http.StatusOK
	if res.Outcome == service.AccessCreated {
		status = http.StatusCreated
	}
	response.Success(c, status, AccessResponse{
		Outcome:   res.Outcome,
		Attempt:   res.Attempt,
		Remaining: remaining,
		TokenPair: pair,
	})
}

// GetAttempt godoc
// GET /api/v1/exam/attempt
// Returns saved answers, highlights and the remaining time for resume.
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	id, ok := candidateAttempt(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	a, err := h.attemptService.Get(ctx, id)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	remaining, err := h.attemptService.Remaining(ctx, id)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, AttemptState{Attempt: a, Status: a.Status(), Remaining: remaining})
}

// GetContent godoc
// GET /api/v1/exam/content
// Returns the test content with the assigned variant applied. Answer keys
// are never included.
func (h *AttemptHandler) GetContent(c *gin.Context) {
	id, ok := candidateAttempt(c)
	if !ok {
		return
	}

	content, err := h.attemptService.GetTestContent(c.Request.Context(), id)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, content)
}

// SaveSection godoc
// PUT /api/v1/exam/answers/:section
// Merges a partial answer map into one section.
func (h *AttemptHandler) SaveSection(c *gin.Context) {
	id, ok := candidateAttempt(c)
	if !ok {
		return
	}

	section := model.Section(c.Param("section"))
	if !section.Valid() {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"section": "section must be one of reading, listening, writing"})
		return
	}

	var req model.SaveSectionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	a, err := h.attemptService.SaveSection(c.Request.Context(), id, section, req.Answers)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"last_saved": a.LastSaved, "answers": a.Answers.Section(section)})
}

// SaveHighlights godoc
// PUT /api/v1/exam/highlights
func (h *AttemptHandler) SaveHighlights(c *gin.Context) {
	id, ok := candidateAttempt(c)
	if !ok {
		return
	}

	var req model.SaveHighlightsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	a, err := h.attemptService.SaveHighlights(c.Request.Context(), id, req.Highlights)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"last_saved": a.LastSaved, "highlights": a.Highlights})
}

// UploadRecording godoc
// POST /api/v1/exam/recordings
// Stores a speaking recording and attaches its URL to the attempt.
func (h *AttemptHandler) UploadRecording(c *gin.Context) {
	id, ok := candidateAttempt(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	url, err := h.mediaService.SaveUpload(service.MediaAudio, file, header)
	if err != nil {
		failUpload(c, err)
		return
	}

	a, err := h.attemptService.AddRecording(c.Request.Context(), id, url)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"url": url, "recordings": a.Recordings})
}

// Submit godoc
// POST /api/v1/exam/submit
// Seals the attempt. Repeating the call returns the sealed attempt with
// already_submitted set.
func (h *AttemptHandler) Submit(c *gin.Context) {
	id, ok := candidateAttempt(c)
	if !ok {
		return
	}

	res, err := h.attemptService.Submit(c.Request.Context(), id)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func failUpload(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnsupportedFileType):
		response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
	case errors.Is(err, service.ErrFileTooLarge):
		response.Fail(c, http.StatusBadRequest, response.ErrFileTooLarge)
	default:
		response.FailErr(c, err)
	}
}
