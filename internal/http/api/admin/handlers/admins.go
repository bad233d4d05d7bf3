package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	dbutil "github.com/IlyaStepanov1104/Backgammon-sub000/internal/db"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/api/admin/permissions"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/apiutil"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AdminHandler manages admin account endpoints.
type AdminHandler struct {
	db *gorm.DB
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{db: db}
}

// createAdminRequest defines the request body for admin creation.
type createAdminRequest struct {
	Username     string   `json:"username"`
	Password     string   `json:"password"`
	Permissions  []string `json:"permissions"`
	IsSuperAdmin bool     `json:"is_super_admin"`
}

// Create creates a new admin account.
func (h *AdminHandler) Create(c *gin.Context) {
	var body createAdminRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}
	password := strings.TrimSpace(body.Password)
	if password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing password"})
		return
	}
	if errPolicy := security.ValidateAdminPassword(password); errPolicy != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errPolicy.Error()})
		return
	}

	permissionsJSON, ok := marshalAdminPermissions(c, body.Permissions)
	if !ok {
		return
	}

	var existing int64
	if errCount := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("username = ?", username).Count(&existing).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if existing > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
		return
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	admin := models.Admin{
		Username:     username,
		Password:     hash,
		Active:       true,
		IsSuperAdmin: body.IsSuperAdmin,
		Permissions:  permissionsJSON,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&admin).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create admin failed"})
		return
	}
	c.JSON(http.StatusCreated, formatAdmin(admin))
}

// List returns all admin accounts with an optional username filter.
func (h *AdminHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.Admin{})
	if usernameQ := strings.TrimSpace(c.Query("username")); usernameQ != "" {
		q = dbutil.WhereContains(q, "username", usernameQ)
	}

	var rows []models.Admin
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list admins failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, formatAdmin(row))
	}
	c.JSON(http.StatusOK, gin.H{"admins": out})
}

// Get returns a single admin account by ID.
func (h *AdminHandler) Get(c *gin.Context) {
	id, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var admin models.Admin
	if errFind := h.db.WithContext(c.Request.Context()).First(&admin, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatAdmin(admin))
}

// updateAdminRequest defines the request body for admin updates.
type updateAdminRequest struct {
	Password     *string   `json:"password"`
	Permissions  *[]string `json:"permissions"`
	IsSuperAdmin *bool     `json:"is_super_admin"`
	Active       *bool     `json:"active"`
}

// Update modifies admin account fields.
func (h *AdminHandler) Update(c *gin.Context) {
	id, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var body updateAdminRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	selfID, _ := readAdminIDFromContext(c)
	if selfID == id && ((body.Active != nil && !*body.Active) || (body.IsSuperAdmin != nil && !*body.IsSuperAdmin)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot demote or disable yourself"})
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if body.Password != nil {
		password := strings.TrimSpace(*body.Password)
		if password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "password cannot be empty"})
			return
		}
		if errPolicy := security.ValidateAdminPassword(password); errPolicy != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errPolicy.Error()})
			return
		}
		hash, errHash := security.HashPassword(password)
		if errHash != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
			return
		}
		updates["password"] = hash
	}
	if body.Permissions != nil {
		permissionsJSON, okPermissions := marshalAdminPermissions(c, *body.Permissions)
		if !okPermissions {
			return
		}
		updates["permissions"] = permissionsJSON
	}
	if body.IsSuperAdmin != nil {
		updates["is_super_admin"] = *body.IsSuperAdmin
	}
	if body.Active != nil {
		updates["active"] = *body.Active
	}

	res := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes an admin account.
func (h *AdminHandler) Delete(c *gin.Context) {
	id, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	if selfID, _ := readAdminIDFromContext(c); selfID == id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete yourself"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Delete(&models.Admin{}, id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// marshalAdminPermissions validates keys and encodes them, answering 400 on bad input.
func marshalAdminPermissions(c *gin.Context, keys []string) (datatypes.JSON, bool) {
	normalized := permissions.NormalizePermissions(keys)
	if errValidate := permissions.ValidatePermissions(normalized); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid permissions"})
		return nil, false
	}
	raw, errMarshal := permissions.MarshalPermissions(normalized)
	if errMarshal != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "marshal permissions failed"})
		return nil, false
	}
	return datatypes.JSON(raw), true
}

func formatAdmin(admin models.Admin) gin.H {
	return gin.H{
		"id":             admin.ID,
		"username":       admin.Username,
		"active":         admin.Active,
		"is_super_admin": admin.IsSuperAdmin,
		"permissions":    permissions.ParsePermissions(admin.Permissions),
		"totp_enabled":   strings.TrimSpace(admin.TOTPSecret) != "",
		"last_login_at":  admin.LastLoginAt,
		"created_at":     admin.CreatedAt,
		"updated_at":     admin.UpdatedAt,
	}
}
