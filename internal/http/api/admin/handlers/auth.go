package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/config"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/api/admin/permissions"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/security"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthHandler handles admin authentication endpoints.
type AuthHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg}
}

// loginRequest defines the request body for admin login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code"` // TOTP code, required once MFA is enabled.
}

// Login authenticates an admin and issues a JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	username := strings.TrimSpace(body.Username)
	password := strings.TrimSpace(body.Password)
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	var admin models.Admin
	if errFind := h.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&admin).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !security.CheckPassword(admin.Password, password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !admin.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin account is disabled"})
		return
	}

	if strings.TrimSpace(admin.TOTPSecret) != "" {
		code := strings.TrimSpace(body.Code)
		if code == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "mfa required", "mfa_required": true})
			return
		}
		if !security.ValidateTOTP(code, admin.TOTPSecret) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
			return
		}
	}

	now := time.Now().UTC()
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", admin.ID).
		Update("last_login_at", now).Error; errUpdate != nil {
		log.WithError(errUpdate).Warn("admin login: record last login")
	}
	h.respondWithAdminToken(c, admin)
}

// respondWithAdminToken generates a JWT and responds with admin info.
func (h *AuthHandler) respondWithAdminToken(c *gin.Context, admin models.Admin) {
	token, errToken := security.GenerateAdminToken(h.jwtCfg.Secret, admin.ID, admin.Username, h.jwtCfg.AdminExpiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"admin": gin.H{
			"id":             admin.ID,
			"username":       admin.Username,
			"permissions":    permissions.ParsePermissions(admin.Permissions),
			"is_super_admin": admin.IsSuperAdmin,
			"totp_enabled":   strings.TrimSpace(admin.TOTPSecret) != "",
		},
	})
}
