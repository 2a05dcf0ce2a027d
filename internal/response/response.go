package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
)

// ContextKeyRequestID is the Gin context key for the request ID.
const ContextKeyRequestID = "request_id"

// Response is the standardized API response envelope.
type Response struct {
	Data       interface{} `json:"data"`
	Error      *ErrorBody  `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Metadata   Metadata    `json:"metadata"`
}

// ErrorBody represents a structured error response.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Pagination holds pagination information.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// NewPagination derives TotalPages from the item count.
func NewPagination(page, perPage, total int) *Pagination {
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return &Pagination{Page: page, PerPage: perPage, TotalItems: total, TotalPages: pages}
}

// Metadata includes request tracing and timing.
type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// ────────────────────────────────────────────────────────────────────────────
// Helper builders
// ────────────────────────────────────────────────────────────────────────────

// Success sends a successful JSON response with the given status code and data.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Data:     data,
		Metadata: buildMetadata(c),
	})
}

// SuccessWithPagination sends a successful response with pagination metadata.
func SuccessWithPagination(c *gin.Context, statusCode int, data interface{}, pagination *Pagination) {
	c.JSON(statusCode, Response{
		Data:       data,
		Pagination: pagination,
		Metadata:   buildMetadata(c),
	})
}

// Fail sends an error response with an error code and no field-level details.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, Response{
		Error:    &ErrorBody{Code: code, Message: GetMessage(code)},
		Metadata: buildMetadata(c),
	})
}

// FailWithFields sends an error response with field-level validation details.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	c.JSON(statusCode, Response{
		Error:    &ErrorBody{Code: code, Message: GetMessage(code), Fields: fields},
		Metadata: buildMetadata(c),
	})
}

// AbortFail aborts the middleware chain and sends an error response.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, Response{
		Error:    &ErrorBody{Code: code, Message: GetMessage(code)},
		Metadata: buildMetadata(c),
	})
}

// FailErr maps a domain error to its status code and error code. Unclassified
// errors become 500 and are attached to the gin context for the request logger.
func FailErr(c *gin.Context, err error) {
	status, code := Classify(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		Fail(c, status, code)
		return
	}

	body := &ErrorBody{Code: code, Message: apperr.MessageOf(err), Fields: apperr.FieldsOf(err)}
	if code == ErrValidation && len(body.Fields) > 0 {
		body.Message = GetMessage(code)
	}
	c.JSON(status, Response{Error: body, Metadata: buildMetadata(c)})
}

// Classify returns the HTTP status and error code for a domain error.
func Classify(err error) (int, ErrCode) {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidCredentials:
		return http.StatusUnauthorized, ErrInvalidCredentials
	case apperr.KindNotFound:
		return http.StatusNotFound, ErrNotFound
	case apperr.KindConflict:
		return http.StatusBadRequest, ErrConflict
	case apperr.KindAlreadySubmitted:
		return http.StatusBadRequest, ErrAlreadySubmitted
	case apperr.KindInactive:
		return http.StatusBadRequest, ErrInactive
	case apperr.KindValidation:
		return http.StatusBadRequest, ErrValidation
	case apperr.KindForbidden:
		return http.StatusForbidden, ErrForbidden
	default:
		return http.StatusInternalServerError, ErrInternal
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

func buildMetadata(c *gin.Context) Metadata {
	reqID, _ := c.Get(ContextKeyRequestID)
	id, ok := reqID.(string)
	if !ok || id == "" {
		id = uuid.New().String()
	}
	return Metadata{
		RequestID: id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
