package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// readAdminIDFromContext extracts the authenticated admin ID from gin context.
func readAdminIDFromContext(c *gin.Context) (uint64, bool) {
	value, exists := c.Get("adminID")
	if !exists {
		return 0, false
	}
	adminID, ok := value.(uint64)
	return adminID, ok && adminID > 0
}

// listQuery holds the paging parameters shared by admin listings.
type listQuery struct {
	Offset int    `form:"offset"`
	Limit  int    `form:"limit"`
	Query  string `form:"q"`
	Active string `form:"active"`
}

// parseUintQuery reads an optional positive integer query value.
func parseUintQuery(c *gin.Context, name string) (uint64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, true
	}
	value, errParse := strconv.ParseUint(raw, 10, 64)
	if errParse != nil || value == 0 {
		return 0, false
	}
	return value, true
}
