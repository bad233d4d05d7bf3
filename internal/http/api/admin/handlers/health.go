package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// healthPingTimeout bounds the database ping of a health probe.
const healthPingTimeout = 2 * time.Second

// HealthHandler answers liveness probes for the card platform.
type HealthHandler struct {
	db  *gorm.DB
	now func() time.Time
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db, now: time.Now}
}

// Healthz reports whether the card database answers within healthPingTimeout.
func (h *HealthHandler) Healthz(c *gin.Context) {
	status := http.StatusOK
	database := "ok"
	if errPing := h.pingDatabase(c.Request.Context()); errPing != nil {
		status = http.StatusServiceUnavailable
		database = "unavailable"
	}
	c.JSON(status, gin.H{
		"ok":       status == http.StatusOK,
		"database": database,
		"time":     h.now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) pingDatabase(ctx context.Context) error {
	sqlDB, errDB := h.db.DB()
	if errDB != nil {
		return errDB
	}
	pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}
