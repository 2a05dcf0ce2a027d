package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/response"
)

// RequireRole checks that the admin JWT carries one of roles.
func RequireRole(roles ...model.AdminRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if slices.Contains(roles, claims.Role) {
			c.Next()
			return
		}

		code := response.ErrForbidden
		if len(roles) == 1 && roles[0] == model.AdminRoleOwner {
			code = response.ErrOwnerAccessOnly
		}
		response.AbortFail(c, http.StatusForbidden, code)
	}
}
