package handler

import (
	"context"
	"errors"
	"net/http"

	"crm-gateway/internal/middleware"
	"crm-gateway/internal/profile"

	"github.com/gin-gonic/gin"
)

// ProfileActions are the self-service profile operations.
type ProfileActions interface {
	UpdateInfo(ctx context.Context, identityID, name, mobileNumber string) error
	UpdateAvatar(ctx context.Context, identityID, avatarURL string) error
	ChangePassword(ctx context.Context, identityID, newPassword, confirmPassword string) error
}

// Dashboard serves the protected tree. Every route expects the gate to
// have put the verified profile on the request; nothing client-supplied
// is used to decide who the caller is.
type Dashboard struct {
	provisioner Provisioner
	profiles    ProfileActions
}

func NewDashboard(provisioner Provisioner, profiles ProfileActions) *Dashboard {
	return &Dashboard{provisioner: provisioner, profiles: profiles}
}

// RegisterRoutes mounts the dashboard on a group already guarded by the
// gate.
func (d *Dashboard) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("", d.view)
	g.GET("/profile", d.view)
	g.POST("/profile", d.updateInfo)
	g.POST("/profile/avatar", d.updateAvatar)
	g.POST("/profile/password", d.changePassword)

	g.GET("/users/password-preview", d.passwordPreview)
	g.POST("/users", d.provision)
}

func currentProfile(c *gin.Context) (*profile.Profile, bool) {
	p, ok := middleware.ProfileFromGin(c)
	if !ok {
		// mounted without the gate
		c.AbortWithStatus(http.StatusInternalServerError)
		return nil, false
	}
	return p, true
}

func (d *Dashboard) view(c *gin.Context) {
	p, ok := currentProfile(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile": p,
		"isAdmin": p.Role == profile.RoleAdmin,
	})
}

type updateInfoRequest struct {
	Name         string `json:"name" form:"name"`
	MobileNumber string `json:"mobileNumber" form:"mobileNumber"`
}

func (d *Dashboard) updateInfo(c *gin.Context) {
	p, ok := currentProfile(c)
	if !ok {
		return
	}

	var req updateInfoRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := d.profiles.UpdateInfo(c.Request.Context(), p.ID, req.Name, req.MobileNumber)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully"})
	case errors.Is(err, profile.ErrDuplicateContact):
		c.JSON(http.StatusConflict, gin.H{"error": "Mobile number already in use"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
	}
}

type updateAvatarRequest struct {
	AvatarURL string `json:"avatarUrl" form:"avatarUrl" binding:"required"`
}

func (d *Dashboard) updateAvatar(c *gin.Context) {
	p, ok := currentProfile(c)
	if !ok {
		return
	}

	var req updateAvatarRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatarUrl is required"})
		return
	}

	if err := d.profiles.UpdateAvatar(c.Request.Context(), p.ID, req.AvatarURL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update avatar"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Avatar updated successfully"})
}

type changePasswordRequest struct {
	NewPassword     string `json:"newPassword" form:"newPassword"`
	ConfirmPassword string `json:"confirmPassword" form:"confirmPassword"`
}

func (d *Dashboard) changePassword(c *gin.Context) {
	p, ok := currentProfile(c)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := d.profiles.ChangePassword(c.Request.Context(), p.ID, req.NewPassword, req.ConfirmPassword)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
	case errors.Is(err, profile.ErrPasswordMismatch), errors.Is(err, profile.ErrPasswordTooShort):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
	}
}
