// Package admin mounts the operator API under /v0/admin.
package admin

import (
	"net/http"
	"strings"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/catalog"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/config"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/entitlement"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/api/admin/handlers"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/promo"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/purchase"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/security"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/settings"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps are the services behind the admin API.
type Deps struct {
	DB          *gorm.DB
	JWT         config.JWTConfig
	Catalog     *catalog.Service
	Promo       *promo.Service
	Entitlement *entitlement.Service
	Purchases   *purchase.Service
	Settings    *settings.Store
}

// RegisterAdminRoutes registers the login route and the authenticated admin routes.
func RegisterAdminRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	admin := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT)
	admin.POST("/login", authHandler.Login)

	authed := admin.Group("")
	authed.Use(adminAuthMiddleware(deps.DB, deps.JWT))

	// MFA routes manage the caller's own account and skip the permission check.
	mfaHandler := handlers.NewMFAHandler(deps.DB, security.NewPendingSecrets())
	authed.GET("/mfa/status", mfaHandler.Status)
	authed.POST("/mfa/totp/prepare", mfaHandler.PrepareTOTP)
	authed.POST("/mfa/totp/confirm", mfaHandler.ConfirmTOTP)
	authed.POST("/mfa/totp/disable", mfaHandler.DisableTOTP)

	gated := authed.Group("")
	gated.Use(adminPermissionMiddleware(deps.DB))

	gated.GET("/permissions", handlers.NewPermissionHandler().List)

	adminHandler := handlers.NewAdminHandler(deps.DB)
	gated.GET("/admins", adminHandler.List)
	gated.POST("/admins", adminHandler.Create)
	gated.GET("/admins/:id", adminHandler.Get)
	gated.PUT("/admins/:id", adminHandler.Update)
	gated.DELETE("/admins/:id", adminHandler.Delete)

	cardHandler := handlers.NewCardHandler(deps.Catalog)
	gated.GET("/cards", cardHandler.List)
	gated.POST("/cards", cardHandler.Create)
	gated.GET("/cards/:id", cardHandler.Get)
	gated.PUT("/cards/:id", cardHandler.Update)
	gated.DELETE("/cards/:id", cardHandler.Delete)

	promoHandler := handlers.NewPromoCodeHandler(deps.Promo)
	gated.GET("/promo-codes", promoHandler.List)
	gated.POST("/promo-codes", promoHandler.Create)
	gated.POST("/promo-codes/generate", promoHandler.Generate)
	gated.GET("/promo-codes/:id", promoHandler.Get)
	gated.PUT("/promo-codes/:id", promoHandler.Update)
	gated.DELETE("/promo-codes/:id", promoHandler.Delete)

	packageHandler := handlers.NewPackageHandler(deps.Catalog)
	gated.GET("/packages", packageHandler.List)
	gated.POST("/packages", packageHandler.Create)
	gated.GET("/packages/:id", packageHandler.Get)
	gated.PUT("/packages/:id", packageHandler.Update)
	gated.DELETE("/packages/:id", packageHandler.Delete)

	userHandler := handlers.NewUserHandler(deps.DB, deps.Entitlement)
	gated.GET("/users", userHandler.List)
	gated.GET("/users/:id/access", userHandler.ListAccess)
	gated.POST("/users/:id/access", userHandler.GrantAccess)
	gated.DELETE("/users/:id/access", userHandler.RevokeAccess)
	gated.DELETE("/users/:id/access/:card_id", userHandler.RevokeAccess)

	purchaseHandler := handlers.NewPurchaseHandler(deps.Purchases)
	gated.GET("/purchases", purchaseHandler.List)

	settingHandler := handlers.NewSettingHandler(deps.Settings)
	gated.GET("/settings", settingHandler.List)
	gated.PUT("/settings/:key", settingHandler.Update)
}

// adminAuthMiddleware validates admin JWTs and loads the admin into context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).
			Select("id", "active", "permissions", "is_super_admin").
			First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin account is disabled"})
			return
		}

		c.Set(ctxAdminID, admin.ID)
		c.Set(ctxAdminPermissions, parseAdminPermissions(admin))
		c.Set(ctxAdminIsSuper, admin.IsSuperAdmin)
		c.Next()
	}
}
