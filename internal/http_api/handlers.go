package http_api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crumbhq/sera/internal/models"
)

// Identity headers the bakery frontend sends on every lock mutation.
const (
	headerUserID    = "X-User-Id"
	headerSessionID = "X-Session-Id"
)

// Context keys the identity middleware fills in for handlers.
const (
	ctxUserID    = "userID"
	ctxSessionID = "sessionID"
)

// AcquireRequest represents the JSON body for claiming an edit lock
type AcquireRequest struct {
	ResourceKind string `json:"resource_kind" binding:"required,oneof=customer_order internal_order"`
	TTLSeconds   int64  `json:"ttl_seconds" binding:"omitempty,min=1"` // Optional, defaults to the configured lifetime
}

// RenewRequest represents the JSON body for a lock heartbeat
type RenewRequest struct {
	TTLSeconds int64 `json:"ttl_seconds" binding:"omitempty,min=1"` // Optional, defaults to the configured lifetime
}

// identityRequired rejects lock mutations that do not say who is editing.
// Both headers must be present: conflict attribution needs the user, and
// ownership checks need the session.
func (s *HTTPServer) identityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(headerUserID))
		sessionID := strings.TrimSpace(c.GetHeader(headerSessionID))
		if userID == "" || sessionID == "" {
			s.logger.Debug("Request without identity headers", "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "X-User-Id and X-Session-Id headers are required",
			})
			return
		}

		c.Set(ctxUserID, userID)
		c.Set(ctxSessionID, sessionID)
		c.Next()
	}
}

// acquire is a handler for the POST /locks/:resource_id/acquire endpoint.
func (s *HTTPServer) acquire(c *gin.Context) {
	var req AcquireRequest

	// Parse and validate JSON request body
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}

	grant, err := s.coordinator.Acquire(
		c.Request.Context(),
		models.ResourceKind(req.ResourceKind),
		c.Param("resource_id"),
		c.GetString(ctxUserID),
		c.GetString(ctxSessionID),
		time.Duration(req.TTLSeconds)*time.Second,
	)
	if err != nil {
		s.renderLockError(c, err, http.StatusConflict)
		return
	}

	c.JSON(http.StatusOK, grant)
}

// renew is a handler for the POST /locks/:resource_id/renew endpoint.
// The body is optional; an empty heartbeat extends by the default lifetime.
func (s *HTTPServer) renew(c *gin.Context) {
	var req RenewRequest

	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.logger.Debug("Invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body: " + err.Error(),
			})
			return
		}
	}

	grant, err := s.coordinator.Renew(
		c.Request.Context(),
		c.Param("resource_id"),
		c.GetString(ctxSessionID),
		time.Duration(req.TTLSeconds)*time.Second,
	)
	if err != nil {
		s.renderLockError(c, err, http.StatusConflict)
		return
	}

	c.JSON(http.StatusOK, grant)
}

// release is a handler for the DELETE /locks/:resource_id endpoint.
func (s *HTTPServer) release(c *gin.Context) {
	err := s.coordinator.Release(
		c.Request.Context(),
		c.Param("resource_id"),
		c.GetString(ctxSessionID),
	)
	if err != nil {
		s.renderLockError(c, err, http.StatusNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"released": true})
}

// inspect is a handler for the GET /locks/:resource_id endpoint.
// It reports who is editing the order, for display only; holding a lock is
// proven by acquire and renew, never by reading.
func (s *HTTPServer) inspect(c *gin.Context) {
	status, err := s.coordinator.Inspect(c.Request.Context(), c.Param("resource_id"))
	if err != nil {
		s.renderLockError(c, err, http.StatusNotFound)
		return
	}

	c.JSON(http.StatusOK, status)
}

// health is a handler for the /healthz endpoint.
func (s *HTTPServer) health(c *gin.Context) {
	if err := s.coordinator.Ping(c.Request.Context()); err != nil {
		s.logger.Error("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// renderLockError maps coordinator errors onto HTTP statuses. notHeldStatus
// differs per endpoint: a heartbeat on a lost lock is a conflict the editor
// must react to, a release of a lost lock just finds nothing there.
func (s *HTTPServer) renderLockError(c *gin.Context, err error, notHeldStatus int) {
	var conflict *models.ConflictError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":          "resource is currently being edited",
			"holder_user_id": conflict.HolderUserID,
			"expires_at":     conflict.ExpiresAt,
		})
	case errors.Is(err, models.ErrNotHeld):
		c.JSON(notHeldStatus, gin.H{"error": "lock not held; acquire it first"})
	case errors.Is(err, models.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrUnavailable):
		s.logger.Error("Lock storage unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "lock storage unavailable"})
	default:
		s.logger.Error("Unexpected lock error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
