package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/scholarmark/scholarmark-api/internal/admission"
	"github.com/scholarmark/scholarmark-api/internal/middleware"
	"github.com/scholarmark/scholarmark-api/internal/service"
	"github.com/scholarmark/scholarmark-api/internal/tierpolicy"
)

type SubscriptionHandler struct {
	service    *service.SubscriptionService
	controller *admission.Controller
}

func NewSubscriptionHandler(service *service.SubscriptionService, controller *admission.Controller) *SubscriptionHandler {
	return &SubscriptionHandler{
		service:    service,
		controller: controller,
	}
}

// Handles GET /api/v1/subscription/info
func (h *SubscriptionHandler) GetInfo(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	ctx := c.Request.Context()
	info, err := h.service.GetInfo(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, info)
}

type updateSubscriptionRequest struct {
	SubscriptionTier string `json:"subscription_tier" binding:"required"`
	CustomQuota      *int64 `json:"custom_quota,omitempty"`
}

// Handles PUT /api/v1/subscription/update
func (h *SubscriptionHandler) Update(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var req updateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	info, err := h.service.UpdateTier(ctx, userID, req.SubscriptionTier, req.CustomQuota)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, info)
}

// Handles GET /api/v1/subscription/usage
func (h *SubscriptionHandler) GetUsage(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	from, to, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	summary, err := h.service.GetUsageSummary(ctx, userID, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Handles GET /api/v1/subscription/usage/records
func (h *SubscriptionHandler) GetUsageRecords(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	from, to, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	ctx := c.Request.Context()
	records, err := h.service.GetRecords(ctx, userID, from, to, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"limit":   limit,
		"offset":  offset,
	})
}

// Handles GET /api/v1/subscription/upgrades
func (h *SubscriptionHandler) GetUpgrades(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	ctx := c.Request.Context()
	upgrades, err := h.service.GetUpgradeOptions(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, upgrades)
}

// Handles GET /api/v1/subscription/features
func (h *SubscriptionHandler) GetFeatures(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscription_tier": string(principal.Tier),
		"features":          tierpolicy.Features(principal.Tier),
	})
}

// Handles GET /api/v1/subscription/tiers - public plan comparison
func (h *SubscriptionHandler) GetTiers(c *gin.Context) {
	c.JSON(http.StatusOK, tierpolicy.Catalog())
}

// Handles GET /api/v1/ai/rate-limit-info - non-mutating quota status
func (h *SubscriptionHandler) GetRateLimitInfo(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	operation := c.Query("operation")
	if operation == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operation query parameter is required"})
		return
	}

	c.JSON(http.StatusOK, h.controller.GetStatus(principal, operation))
}

// Parses 'from' and 'to' query parameters, defaulting to the last 30 days
func parseTimeRange(c *gin.Context) (time.Time, time.Time, error) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)

	if fromStr := c.Query("from"); fromStr != "" {
		parsedFrom, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			// Try Unix timestamp
			if timestamp, err := strconv.ParseInt(fromStr, 10, 64); err == nil {
				parsedFrom = time.Unix(timestamp, 0)
			} else {
				return time.Time{}, time.Time{}, err
			}
		}
		from = parsedFrom
	}

	if toStr := c.Query("to"); toStr != "" {
		parsedTo, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			// Try Unix timestamp
			if timestamp, err := strconv.ParseInt(toStr, 10, 64); err == nil {
				parsedTo = time.Unix(timestamp, 0)
			} else {
				return time.Time{}, time.Time{}, err
			}
		}
		to = parsedTo
	}

	return from, to, nil
}
