package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/config"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/apiutil"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/security"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/users"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AuthHandler exchanges Telegram mini-app init data for a user token.
type AuthHandler struct {
	db       *gorm.DB
	jwtCfg   config.JWTConfig
	botToken string
	maxAge   time.Duration
	now      func() time.Time
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig, tgCfg config.TelegramConfig) *AuthHandler {
	return &AuthHandler{
		db:       db,
		jwtCfg:   jwtCfg,
		botToken: tgCfg.Token,
		maxAge:   tgCfg.InitDataMaxAge,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// telegramAuthRequest carries the raw Telegram.WebApp.initData string.
type telegramAuthRequest struct {
	InitData string `json:"init_data"`
}

// Telegram validates init data, upserts the user and issues a JWT.
func (h *AuthHandler) Telegram(c *gin.Context) {
	var body telegramAuthRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.InitData) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing init_data"})
		return
	}
	if h.botToken == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "telegram login is not configured"})
		return
	}

	data, errValidate := security.ValidateWebAppInitData(body.InitData, h.botToken, h.maxAge, h.now())
	if errValidate != nil {
		if errors.Is(errValidate, security.ErrInitDataExpired) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "init data expired"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid init data"})
		return
	}

	user, errUpsert := users.Upsert(c.Request.Context(), h.db, users.Profile{
		TelegramID: data.User.ID,
		Username:   data.User.Username,
		FirstName:  data.User.FirstName,
		LastName:   data.User.LastName,
	})
	if errUpsert != nil {
		apiutil.HandleServiceError(c, errUpsert)
		return
	}

	token, errToken := security.GenerateToken(h.jwtCfg.Secret, user.ID, user.TelegramID, user.Username, h.jwtCfg.UserExpiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":           user.ID,
			"telegram_id":  user.TelegramID,
			"username":     user.Username,
			"display_name": user.DisplayName(),
		},
	})
}
