package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// MFAHandler handles TOTP enrollment for admins.
type MFAHandler struct {
	db      *gorm.DB
	pending *security.PendingSecrets
}

// NewMFAHandler constructs an MFAHandler.
func NewMFAHandler(db *gorm.DB, pending *security.PendingSecrets) *MFAHandler {
	if pending == nil {
		pending = security.NewPendingSecrets()
	}
	return &MFAHandler{db: db, pending: pending}
}

// Status returns MFA enablement status for the admin.
func (h *MFAHandler) Status(c *gin.Context) {
	admin, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"totp_enabled": strings.TrimSpace(admin.TOTPSecret) != ""})
}

// PrepareTOTP generates a new TOTP secret and QR code.
func (h *MFAHandler) PrepareTOTP(c *gin.Context) {
	admin, ok := h.loadAdmin(c)
	if !ok {
		return
	}

	enrollment, errEnroll := security.NewTOTPEnrollment(admin.Username)
	if errEnroll != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate totp secret failed"})
		return
	}
	h.pending.Set(admin.ID, enrollment.Secret)
	c.JSON(http.StatusOK, gin.H{
		"secret":      enrollment.Secret,
		"otpauth_url": enrollment.OTPAuthURL,
		"qr_image":    enrollment.QRImage,
	})
}

// totpConfirmRequest defines the request body for confirming TOTP.
type totpConfirmRequest struct {
	Code string `json:"code"`
}

// ConfirmTOTP validates the pending secret and enables TOTP for the admin.
func (h *MFAHandler) ConfirmTOTP(c *gin.Context) {
	adminID, ok := readAdminIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
		return
	}
	var body totpConfirmRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	code := strings.TrimSpace(body.Code)
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	secret, ok := h.pending.Get(adminID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totp setup expired"})
		return
	}
	if !security.ValidateTOTP(code, secret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", adminID).
		Updates(map[string]any{"totp_secret": secret, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	h.pending.Delete(adminID)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// totpDisableRequest defines the request body for disabling TOTP.
type totpDisableRequest struct {
	Code string `json:"code"`
}

// DisableTOTP removes the admin's TOTP secret after checking a current code.
func (h *MFAHandler) DisableTOTP(c *gin.Context) {
	admin, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	if strings.TrimSpace(admin.TOTPSecret) == "" {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	var body totpDisableRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if !security.ValidateTOTP(body.Code, admin.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", admin.ID).
		Updates(map[string]any{"totp_secret": "", "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	h.pending.Delete(admin.ID)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *MFAHandler) loadAdmin(c *gin.Context) (models.Admin, bool) {
	adminID, ok := readAdminIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
		return models.Admin{}, false
	}
	var admin models.Admin
	if errFind := h.db.WithContext(c.Request.Context()).
		Select("id", "username", "totp_secret").
		First(&admin, adminID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return models.Admin{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return models.Admin{}, false
	}
	return admin, true
}
