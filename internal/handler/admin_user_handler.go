package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/response"
	"github.com/stemsi/ieltsmock-backend/internal/service"
	"github.com/stemsi/ieltsmock-backend/internal/validator"
)

// AdminUserHandler handles the owner's management of admin accounts.
type AdminUserHandler struct {
	adminService *service.AdminService
}

// NewAdminUserHandler creates a new AdminUserHandler.
func NewAdminUserHandler(adminService *service.AdminService) *AdminUserHandler {
	return &AdminUserHandler{adminService: adminService}
}

// ListAdmins godoc
// GET /api/v1/owner/admins
func (h *AdminUserHandler) ListAdmins(c *gin.Context) {
	admins, err := h.adminService.ListAdmins(c.Request.Context())
	if err != nil {
		response.FailErr(c, err)
		return
	}
	if admins == nil {
		admins = []model.Admin{}
	}
	response.Success(c, http.StatusOK, admins)
}

// CreateAdmin godoc
// POST /api/v1/owner/admins
func (h *AdminUserHandler) CreateAdmin(c *gin.Context) {
	var req model.CreateAdminRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	admin, err := h.adminService.CreateAdmin(c.Request.Context(), &req)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusCreated, admin)
}

// SetActive godoc
// PUT /api/v1/owner/admins/:id/active
func (h *AdminUserHandler) SetActive(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	var req model.SetActiveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.adminService.SetActive(c.Request.Context(), id, *req.IsActive); err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"is_active": *req.IsActive})
}

// ResetPassword godoc
// PUT /api/v1/owner/admins/:id/password
func (h *AdminUserHandler) ResetPassword(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	var req model.ResetPasswordRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.adminService.ResetPassword(c.Request.Context(), id, req.Password); err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// DeleteAdmin godoc
// DELETE /api/v1/owner/admins/:id
func (h *AdminUserHandler) DeleteAdmin(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	if err := h.adminService.Delete(c.Request.Context(), id); err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// AdminStats godoc
// GET /api/v1/owner/admins/stats
func (h *AdminUserHandler) AdminStats(c *gin.Context) {
	stats, err := h.adminService.Stats(c.Request.Context())
	if err != nil {
		response.FailErr(c, err)
		return
	}
	if stats == nil {
		stats = []model.AdminStats{}
	}
	response.Success(c, http.StatusOK, stats)
}

// SystemStats godoc
// GET /api/v1/owner/stats
func (h *AdminUserHandler) SystemStats(c *gin.Context) {
	stats, err := h.adminService.SystemStats(c.Request.Context())
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}
