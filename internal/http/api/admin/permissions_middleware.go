package admin

import (
	"net/http"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/api/admin/permissions"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Context keys shared by the admin auth and permission middlewares.
const (
	ctxAdminID          = "adminID"
	ctxAdminPermissions = "adminPermissions"
	ctxAdminIsSuper     = "adminIsSuperAdmin"
)

// adminGrants is what the permission gate needs to know about the caller.
type adminGrants struct {
	permissions []string
	super       bool
}

// adminPermissionMiddleware gates admin routes by "METHOD /full/path" keys.
// Routes missing from the catalogue are denied, super admins included.
func adminPermissionMiddleware(db *gorm.DB) gin.HandlerFunc {
	catalogue := permissions.DefinitionMap()

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		key := permissions.Key(c.Request.Method, c.FullPath())
		if _, known := catalogue[key]; !known {
			denyPermission(c)
			return
		}

		grants, okGrants := grantsFromContext(c)
		if !okGrants {
			loaded, errLoad := loadAdminGrants(c, db)
			if errLoad != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
				return
			}
			grants = loaded
			c.Set(ctxAdminPermissions, grants.permissions)
			c.Set(ctxAdminIsSuper, grants.super)
		}

		if !grants.super && !permissions.HasPermission(grants.permissions, key) {
			denyPermission(c)
			return
		}
		c.Next()
	}
}

func denyPermission(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
}

// grantsFromContext reads grants stored by adminAuthMiddleware.
func grantsFromContext(c *gin.Context) (adminGrants, bool) {
	rawPermissions, okPermissions := c.Get(ctxAdminPermissions)
	rawSuper, okSuper := c.Get(ctxAdminIsSuper)
	if !okPermissions || !okSuper {
		return adminGrants{}, false
	}
	list, okList := rawPermissions.([]string)
	super, okFlag := rawSuper.(bool)
	return adminGrants{permissions: list, super: super}, okList && okFlag
}

// loadAdminGrants fetches grants for the admin id in context.
func loadAdminGrants(c *gin.Context, db *gorm.DB) (adminGrants, error) {
	adminID, _ := c.Get(ctxAdminID)
	id, ok := adminID.(uint64)
	if !ok || id == 0 {
		return adminGrants{}, gorm.ErrRecordNotFound
	}
	var admin models.Admin
	if errFind := db.WithContext(c.Request.Context()).
		Select("id", "permissions", "is_super_admin").
		First(&admin, id).Error; errFind != nil {
		return adminGrants{}, errFind
	}
	return adminGrants{permissions: parseAdminPermissions(admin), super: admin.IsSuperAdmin}, nil
}

// parseAdminPermissions decodes the stored permission list of an admin.
func parseAdminPermissions(admin models.Admin) []string {
	return permissions.ParsePermissions(admin.Permissions)
}
