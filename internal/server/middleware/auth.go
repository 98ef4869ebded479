package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"notifyhub/backend/internal/security"
)

const bearerPrefix = "bearer "

// ErrUnauthorized is the single client-facing message for missing, invalid and expired credentials.
const ErrUnauthorized = "unauthorized"

// Auth returns a gin middleware that requires a valid Bearer access token and stores the identity
// on the request context. Expired and invalid tokens get the same 401 body.
func Auth(tokens *security.TokenProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized})
			return
		}
		claims, err := tokens.ValidateAccess(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized})
			return
		}
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), claims.UserID(), claims.Username))
		c.Set("user_id", claims.UserID())
		c.Next()
	}
}

// ExtractBearer returns the token from an Authorization header value, or "" if missing or malformed.
// The scheme is matched case-insensitively.
func ExtractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
