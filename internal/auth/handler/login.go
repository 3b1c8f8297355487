package handler

import (
	"context"
	"net/http"

	"crm-gateway/internal/logger"
	"crm-gateway/internal/session"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Email    string `json:"email" form:"email" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// Login authenticates against the local identity store and starts a
// session.
func (h *Handler) Login(c *gin.Context) {
	if h.passwords == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "password login is not enabled"})
		return
	}

	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	identity, err := h.passwords.Authenticate(ctx, req.Email, req.Password)
	cancel()

	if err != nil {
		logger.Warn("password login rejected", map[string]any{
			"event": "login_failed",
			"ip":    c.ClientIP(),
		})
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	sess, err := session.Start(*identity, h.lifetime, h.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return
	}

	if !h.persistSession(c, sess) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "logged_in",
		"redirect": h.routes.Dashboard,
	})
}
