package handlers

import (
	"net/http"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/api/admin/permissions"
	"github.com/gin-gonic/gin"
)

// PermissionHandler lists the gated admin routes for the permission editor.
type PermissionHandler struct{}

// NewPermissionHandler constructs a PermissionHandler.
func NewPermissionHandler() *PermissionHandler {
	return &PermissionHandler{}
}

// List returns the permission catalogue grouped by admin section.
// Each entry carries whether the calling admin holds it.
func (h *PermissionHandler) List(c *gin.Context) {
	held, _ := c.Get("adminPermissions")
	heldList, _ := held.([]string)
	super, _ := c.Get("adminIsSuperAdmin")
	isSuper, _ := super.(bool)

	sections := make([]gin.H, 0)
	index := make(map[string]int)
	for _, def := range permissions.Definitions() {
		pos, ok := index[def.Module]
		if !ok {
			pos = len(sections)
			index[def.Module] = pos
			sections = append(sections, gin.H{"module": def.Module, "permissions": []gin.H{}})
		}
		entries := sections[pos]["permissions"].([]gin.H)
		sections[pos]["permissions"] = append(entries, gin.H{
			"key":     def.Key,
			"method":  def.Method,
			"path":    def.Path,
			"label":   def.Label,
			"granted": isSuper || permissions.HasPermission(heldList, def.Key),
		})
	}
	c.JSON(http.StatusOK, gin.H{"modules": sections, "is_super_admin": isSuper})
}
