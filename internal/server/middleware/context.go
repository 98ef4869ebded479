package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
)

type contextKey struct{ name string }

var (
	userIDKey   = contextKey{"user_id"}
	usernameKey = contextKey{"username"}
)

// WithIdentity returns a context carrying the authenticated user id and username.
func WithIdentity(ctx context.Context, userID, username string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, usernameKey, username)
	return ctx
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok && v != ""
}

// GetUsername returns the username from context and true if set; otherwise "", false.
func GetUsername(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(usernameKey).(string)
	return v, ok
}

// UserID returns the authenticated user id for a gin request, or "".
func UserID(c *gin.Context) string {
	id, _ := GetUserID(c.Request.Context())
	return id
}
