package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/scholarmark/scholarmark-api/internal/admission"
	"github.com/scholarmark/scholarmark-api/internal/tierpolicy"
)

// Admit gates one chargeable operation: entitlement first (403, nothing
// charged), then concurrency ceiling, then the atomic quota check that
// records usage on success (429 on rejection). Quota and entitlement
// rejections are expected outcomes and are not logged as errors.
func Admit(controller *admission.Controller, operation string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			c.Abort()
			return
		}

		// Feature gate before any quota arithmetic: a denied tier is
		// never charged for the attempt
		if err := controller.CheckEntitlement(principal, operation); err != nil {
			var notEntitled *admission.FeatureNotEntitledError
			if errors.As(err, &notEntitled) {
				c.JSON(http.StatusForbidden, gin.H{
					"error":         "Upgrade required",
					"reason":        "feature_not_entitled",
					"operation":     operation,
					"current_tier":  string(notEntitled.Tier),
					"required_tier": string(notEntitled.RequiredTier),
				})
				c.Abort()
				return
			}
		}

		limit := tierpolicy.ConcurrencyLimitFor(principal.Tier)
		if !controller.Inflight().Acquire(principal.UserID, limit) {
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":  "Too many concurrent requests",
				"reason": "concurrency_limit",
				"limit":  limit,
			})
			c.Abort()
			return
		}
		defer controller.Inflight().Release(principal.UserID)

		admitted, err := controller.CheckAndRecord(principal, operation)
		if err != nil {
			var quotaErr *admission.QuotaExceededError
			if errors.As(err, &quotaErr) {
				retryAfter := int64(quotaErr.RetryAfter.Seconds())
				if retryAfter < 0 {
					retryAfter = 0
				}

				c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", quotaErr.Limit))
				c.Header("X-RateLimit-Remaining", "0")
				c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
				c.JSON(http.StatusTooManyRequests, gin.H{
					"error":            "Rate limit exceeded",
					"reason":           "quota_exceeded",
					"operation":        operation,
					"used":             quotaErr.Used,
					"limit":            quotaErr.Limit,
					"reset_in_seconds": retryAfter,
					"retryable":        quotaErr.RetryAfter > 0,
				})
				c.Abort()
				return
			}

			// CheckAndRecord only returns typed rejections; anything else
			// would be a bug surfaced by Recovery
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Admission check failed",
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", admitted.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", admitted.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", int64(admitted.ResetIn.Seconds())))
		c.Header("X-RateLimit-Tier", string(principal.Tier))

		c.Set("admission", admitted)

		c.Next()
	}
}
