package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"crm-gateway/internal/middleware"
	"crm-gateway/internal/profile"
	"crm-gateway/internal/provisioning"

	"github.com/gin-gonic/gin"
)

// Provisioner creates CRM members.
type Provisioner interface {
	Provision(ctx context.Context, req provisioning.Request) (string, error)
}

type provisionRequest struct {
	Name         string `json:"name" form:"name"`
	Email        string `json:"email" form:"email"`
	MobileNumber string `json:"mobileNumber" form:"mobileNumber"`
	Phone        string `json:"phone" form:"phone"`
	Role         string `json:"role" form:"role"`
}

func (r provisionRequest) mobile() string {
	if m := strings.TrimSpace(r.MobileNumber); m != "" {
		return m
	}
	return strings.TrimSpace(r.Phone)
}

// requireAdmin re-checks the gate-verified profile. The admin routes are
// registered under fixed paths while the gate's admin prefixes are
// configurable.
func requireAdmin(c *gin.Context) bool {
	p, ok := middleware.ProfileFromGin(c)
	if !ok || p.Role != profile.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return false
	}
	return true
}

// provision creates a member from the admin user form.
func (d *Dashboard) provision(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}

	var req provisionRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	role := profile.RoleUser
	if strings.TrimSpace(req.Role) != "" {
		parsed, err := profile.ParseRole(req.Role)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "role must be admin or user"})
			return
		}
		role = parsed
	}

	id, err := d.provisioner.Provision(c.Request.Context(), provisioning.Request{
		Name:         req.Name,
		Email:        req.Email,
		MobileNumber: req.mobile(),
		Role:         role,
	})
	if err != nil {
		status, body := provisionFailure(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      id,
		"message": "User created successfully",
	})
}

func provisionFailure(err error) (int, gin.H) {
	var perr *provisioning.Error
	reason := err.Error()
	if errors.As(err, &perr) && perr.Cause != nil {
		reason = perr.Cause.Error()
	}

	switch {
	case errors.Is(err, provisioning.ErrInvalidRequest):
		return http.StatusBadRequest, gin.H{"error": "All fields are required", "reason": reason}
	case errors.Is(err, provisioning.ErrIdentityCreationFailed):
		return http.StatusUnprocessableEntity, gin.H{"error": reason}
	case errors.Is(err, provisioning.ErrDuplicateContact):
		return http.StatusConflict, gin.H{"error": "Email or mobile number already exists"}
	case errors.Is(err, provisioning.ErrCompensationFailed):
		return http.StatusInternalServerError, gin.H{"error": "Failed to create user; manual cleanup required"}
	default:
		return http.StatusInternalServerError, gin.H{"error": "Failed to save user profile"}
	}
}

// passwordPreview shows the admin the initial password a member will get.
func (d *Dashboard) passwordPreview(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}

	req := provisionRequest{
		Name:         c.Query("name"),
		MobileNumber: c.Query("mobileNumber"),
		Phone:        c.Query("phone"),
	}
	c.JSON(http.StatusOK, gin.H{
		"password": provisioning.DerivePassword(req.Name, req.mobile()),
	})
}
