package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/scholarmark/scholarmark-api/internal/admission"
	"github.com/scholarmark/scholarmark-api/internal/service"
)

const principalKey = "principal"

// Auth validates the bearer token and resolves the admission principal
// (tier + quota override) before any handler runs, so the admission path
// never does account I/O itself. A failed resolution rejects the request:
// guessing a tier could under- or over-grant quota.
func Auth(authService *service.AuthService, accounts *service.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or invalid authorization header",
			})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")

		claims, err := authService.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
			})
			c.Abort()
			return
		}

		userID, err := authService.UserIDFromClaims(claims)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
			})
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		principal, err := accounts.ResolvePrincipal(ctx, userID)
		if err != nil {
			// Fail closed. The raw lookup error stays in the logs.
			requestID := c.GetString("request_id")
			log.Printf("[%s] ERROR: entitlement resolution failed for user %s: %v", requestID, userID, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Service temporarily unavailable, please try again later",
			})
			c.Abort()
			return
		}

		c.Set(principalKey, principal)
		c.Set("user_id", userID)

		c.Next()
	}
}

// PrincipalFrom pulls the resolved principal out of the gin context.
func PrincipalFrom(c *gin.Context) (admission.Principal, bool) {
	value, exists := c.Get(principalKey)
	if !exists {
		return admission.Principal{}, false
	}

	principal, ok := value.(admission.Principal)
	return principal, ok
}
