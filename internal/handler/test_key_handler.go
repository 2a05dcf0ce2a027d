package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/response"
	"github.com/stemsi/ieltsmock-backend/internal/service"
	"github.com/stemsi/ieltsmock-backend/internal/validator"
)

// TestKeyHandler handles issuing and revoking test keys.
type TestKeyHandler struct {
	keyService *service.TestKeyService
}

// NewTestKeyHandler creates a new TestKeyHandler.
func NewTestKeyHandler(keyService *service.TestKeyService) *TestKeyHandler {
	return &TestKeyHandler{keyService: keyService}
}

// GenerateKey godoc
// POST /api/v1/admin/tests/:id/generate-code
func (h *TestKeyHandler) GenerateKey(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	testID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	key, err := h.keyService.Generate(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusCreated, key)
}

// GenerateBatch godoc
// POST /api/v1/admin/tests/:id/generate-codes
func (h *TestKeyHandler) GenerateBatch(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	testID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.GenerateKeysRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	keys, err := h.keyService.GenerateBatch(c.Request.Context(), testID, claims.UserID, req.Count)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusCreated, keys)
}

// ListKeys godoc
// GET /api/v1/admin/test-keys
func (h *TestKeyHandler) ListKeys(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	keys, err := h.keyService.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	if keys == nil {
		keys = []model.TestKeyListItem{}
	}
	response.Success(c, http.StatusOK, keys)
}

// DeactivateKey godoc
// POST /api/v1/admin/test-keys/:key/deactivate
func (h *TestKeyHandler) DeactivateKey(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	key, err := h.keyService.Deactivate(c.Request.Context(), c.Param("key"), claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, key)
}

// RegenerateKey godoc
// POST /api/v1/admin/test-keys/:key/regenerate
// Deactivates an unused key and issues a replacement for the same test.
func (h *TestKeyHandler) RegenerateKey(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	key, err := h.keyService.Regenerate(c.Request.Context(), c.Param("key"), claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, http.StatusCreated, key)
}
