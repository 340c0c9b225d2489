package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/tenant"
)

// TokenValidator resolves a bearer token to the caller's tenant scope.
type TokenValidator interface {
	ValidateToken(tokenString string) (tenant.Scope, error)
}

// Auth middleware validates JWT tokens and puts the caller's scope in context.
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		scope, err := validator.ValidateToken(parts[1])
		if err != nil || !scope.Valid() {
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Request = c.Request.WithContext(tenant.WithScope(c.Request.Context(), scope))
		c.Set("user_id", scope.UserID)
		c.Set("scope", scope.Key())

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
