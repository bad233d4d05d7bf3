package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ctxUserID holds the users.id stored by the mini-app auth middleware.
const ctxUserID = "userID"

// requirePlayer returns the authenticated player's user id.
// It writes a 401 and returns false when the request carries none.
func requirePlayer(c *gin.Context) (uint64, bool) {
	value, _ := c.Get(ctxUserID)
	if userID, ok := value.(uint64); ok && userID > 0 {
		return userID, true
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	return 0, false
}
