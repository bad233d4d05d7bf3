// Package front mounts the mini-app API under /v0/front.
package front

import (
	"net/http"
	"strings"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/catalog"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/config"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/entitlement"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/api/front/handlers"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/promo"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/purchase"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps are the services behind the mini-app API.
type Deps struct {
	DB          *gorm.DB
	JWT         config.JWTConfig
	Telegram    config.TelegramConfig
	Catalog     *catalog.Service
	Entitlement *entitlement.Service
	Promo       *promo.Service
	Purchases   *purchase.Service
}

// RegisterFrontRoutes registers the Telegram login route and the authenticated user routes.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	front := r.Group("/v0/front")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT, deps.Telegram)
	front.POST("/auth/telegram", authHandler.Telegram)

	authed := front.Group("")
	authed.Use(userAuthMiddleware(deps.DB, deps.JWT))

	cardHandler := handlers.NewCardHandler(deps.Entitlement)
	authed.GET("/cards", cardHandler.List)
	authed.GET("/cards/:id", cardHandler.Get)
	authed.POST("/cards/:id/favorite", cardHandler.AddFavorite)
	authed.DELETE("/cards/:id/favorite", cardHandler.RemoveFavorite)
	authed.POST("/cards/:id/responses", cardHandler.Respond)

	promoHandler := handlers.NewPromoHandler(deps.Promo)
	authed.POST("/promo/validate", promoHandler.Validate)
	authed.POST("/promo/redeem", promoHandler.Redeem)

	packageHandler := handlers.NewPackageHandler(deps.Catalog)
	authed.GET("/packages", packageHandler.List)

	purchaseHandler := handlers.NewPurchaseHandler(deps.Purchases)
	authed.POST("/purchases", purchaseHandler.Create)
	authed.GET("/purchases", purchaseHandler.List)
}

// userAuthMiddleware validates user JWTs and loads the user into context.
func userAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
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

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if user.TelegramID != claims.TelegramID {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", user.ID)
		c.Next()
	}
}
