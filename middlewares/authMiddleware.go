package middlewares

import (
	"net/http"
	"strings"

	"github.com/AngeKano/repfi/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware accepts a Bearer JWT as an alternative to the session token.
// Requests without an Authorization header pass through untouched.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" {
			c.Next()
			return
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		validate, err := utils.JwtValidate(strings.TrimSpace(auth[len(bearer):]))
		if err != nil || !validate.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		customClaim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok || customClaim.UserId == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := utils.SetCallerInContext(c.Request.Context(), customClaim.Caller())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
