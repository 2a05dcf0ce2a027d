package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/response"
	"github.com/stemsi/ieltsmock-backend/internal/service"
	"github.com/stemsi/ieltsmock-backend/internal/validator"
)

// MocHandler handles content variants and MOC sessions.
type MocHandler struct {
	mocService *service.MocService
}

// NewMocHandler creates a new MocHandler.
func NewMocHandler(mocService *service.MocService) *MocHandler {
	return &MocHandler{mocService: mocService}
}

// ListMocs godoc
// GET /api/v1/admin/moc-tests
func (h *MocHandler) ListMocs(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	mocs, err := h.mocService.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	if mocs == nil {
		mocs = []model.MocTest{}
	}
	response.Success(c, http.StatusOK, mocs)
}

// CreateMoc godoc
// POST /api/v1/admin/moc-tests
func (h *MocHandler) CreateMoc(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	var req model.CreateMocTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	moc, err := h.mocService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusCreated, moc)
}

// GetMoc godoc
// GET /api/v1/admin/moc-tests/:id
func (h *MocHandler) GetMoc(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	moc, err := h.mocService.Get(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, moc)
}

// UpdateMoc godoc
// PUT /api/v1/admin/moc-tests/:id
func (h *MocHandler) UpdateMoc(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.CreateMocTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	moc, err := h.mocService.Update(c.Request.Context(), id, claims.UserID, &req)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, moc)
}

// DeleteMoc godoc
// DELETE /api/v1/admin/moc-tests/:id
func (h *MocHandler) DeleteMoc(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.mocService.Delete(c.Request.Context(), id, claims.UserID); err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// StartMocSession godoc
// POST /api/v1/admin/moc-tests/start
// Creates an active test whose attempts draw from the given variants.
func (h *MocHandler) StartMocSession(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	var req model.StartMocRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.mocService.Start(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusCreated, test)
}
