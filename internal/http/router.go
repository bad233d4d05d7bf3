// Package http assembles the gin engine serving the admin, mini-app and webhook APIs.
package http

import (
	"net/http"
	"strings"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/api/admin"
	adminhandlers "github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/api/admin/handlers"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/api/front"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/api/webhook"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/apiutil"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RouterDeps groups the route dependencies of every API surface.
type RouterDeps struct {
	DB      *gorm.DB
	Admin   admin.Deps
	Front   front.Deps
	Webhook webhook.Deps
}

// NewRouter builds the engine with recovery, tracing and request logging.
func NewRouter(deps RouterDeps) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), apiutil.TraceIDMiddleware(), apiutil.RequestLogger())

	if deps.DB != nil {
		engine.GET("/healthz", adminhandlers.NewHealthHandler(deps.DB).Healthz)
	}
	admin.RegisterAdminRoutes(engine, deps.Admin)
	front.RegisterFrontRoutes(engine, deps.Front)
	webhook.RegisterWebhookRoutes(engine, deps.Webhook)

	engine.NoRoute(func(c *gin.Context) {
		if isAPIRoute(c.Request.URL.Path) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found", "trace_id": apiutil.TraceID(c)})
			return
		}
		c.Status(http.StatusNotFound)
	})
	return engine
}

// isAPIRoute reports whether a path targets API endpoints.
func isAPIRoute(requestPath string) bool {
	if requestPath == "/healthz" || strings.HasPrefix(requestPath, "/healthz/") {
		return true
	}
	return requestPath == "/v0" || strings.HasPrefix(requestPath, "/v0/")
}
