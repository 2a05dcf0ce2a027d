package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/response"
	"github.com/stemsi/ieltsmock-backend/internal/service"
	"github.com/stemsi/ieltsmock-backend/internal/validator"
)

// AuthHandler handles authentication endpoints for admins and registered
// students.
type AuthHandler struct {
	authService    *service.AuthService
	studentService *service.StudentService
	adminService   *service.AdminService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	authService *service.AuthService,
	studentService *service.StudentService,
	adminService *service.AdminService,
) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		studentService: studentService,
		adminService:   adminService,
	}
}

// RefreshRequest carries a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// AdminLogin godoc
// POST /api/v1/auth/admin/login
// Validates email + password for an admin or the owner and returns a token pair.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.AdminLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.adminService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// GetAdminProfile godoc
// GET /api/v1/auth/admin/me
func (h *AuthHandler) GetAdminProfile(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	admin, err := h.adminService.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"admin": admin})
}

// StudentRegister godoc
// POST /api/v1/auth/student/register
// Creates a student account and logs it in.
func (h *AuthHandler) StudentRegister(c *gin.Context) {
	var req model.StudentRegisterRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.studentService.Register(c.Request.Context(), &req)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

// StudentLogin godoc
// POST /api/v1/auth/student/login
// Validates email + password. A new login replaces any previous session.
func (h *AuthHandler) StudentLogin(c *gin.Context) {
	var req model.StudentLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.studentService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// StudentLogout godoc
// POST /api/v1/auth/student/logout
func (h *AuthHandler) StudentLogout(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	if err := h.authService.ResetStudentSession(c.Request.Context(), claims.UserID); err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// Refresh godoc
// POST /api/v1/auth/refresh
// Exchanges a refresh token of any principal for a new pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, pair)
}
