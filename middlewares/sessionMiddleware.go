package middlewares

import (
	"context"
	"net/http"

	"github.com/AngeKano/repfi/utils"
	"github.com/gin-gonic/gin"
)

// SessionFetcher decodes the value stored under key. A missing key is (false, nil).
type SessionFetcher func(ctx context.Context, key string, dest interface{}) (bool, error)

func sessionKey(token string) string {
	return "Session:" + token
}

// SessionMiddleware resolves the "token" header against the session store and puts the caller
// in the request context.
func SessionMiddleware(fetch SessionFetcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}

		var caller utils.Caller
		exists, err := fetch(c.Request.Context(), sessionKey(token), &caller)
		if err != nil || !exists || caller.UserId == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetCallerInContext(ctx, caller)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
