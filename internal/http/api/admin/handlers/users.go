package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/catalog"
	dbutil "github.com/IlyaStepanov1104/Backgammon-sub000/internal/db"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/entitlement"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/apiutil"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// UserHandler handles admin user and access endpoints.
type UserHandler struct {
	db          *gorm.DB
	entitlement *entitlement.Service
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB, svc *entitlement.Service) *UserHandler {
	return &UserHandler{db: db, entitlement: svc}
}

// accessCountRow is one row of the per-user access count query.
type accessCountRow struct {
	UserID uint64 `gorm:"column:user_id"`
	Total  int64  `gorm:"column:total"`
}

// List returns users with their active card counts.
func (h *UserHandler) List(c *gin.Context) {
	var q listQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Limit <= 0 || q.Limit > catalog.MaxListLimit {
		q.Limit = catalog.DefaultListLimit
	}

	ctx := c.Request.Context()
	base := h.db.WithContext(ctx).Model(&models.User{})
	if term := strings.TrimSpace(q.Query); term != "" {
		if telegramID, errParse := strconv.ParseInt(term, 10, 64); errParse == nil {
			base = base.Where("telegram_id = ?", telegramID)
		} else {
			base = dbutil.WhereContains(base, "username", strings.TrimPrefix(term, "@"))
		}
	}

	var total int64
	if errCount := base.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count users failed"})
		return
	}
	var users []models.User
	if errFind := base.Order("id DESC").Offset(q.Offset).Limit(q.Limit).Find(&users).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}

	counts := make(map[uint64]int64, len(users))
	if len(users) > 0 {
		ids := make([]uint64, 0, len(users))
		for _, u := range users {
			ids = append(ids, u.ID)
		}
		var rows []accessCountRow
		if errCounts := h.db.WithContext(ctx).Model(&models.CardAccess{}).
			Select("user_id, COUNT(*) AS total").
			Where("user_id IN ?", ids).
			Where("active = ? AND (expires_at IS NULL OR expires_at > ?)", true, time.Now().UTC()).
			Group("user_id").
			Scan(&rows).Error; errCounts != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "count access failed"})
			return
		}
		for _, row := range rows {
			counts[row.UserID] = row.Total
		}
	}

	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, gin.H{
			"id":           u.ID,
			"telegram_id":  u.TelegramID,
			"username":     u.Username,
			"first_name":   u.FirstName,
			"last_name":    u.LastName,
			"active_cards": counts[u.ID],
			"created_at":   u.CreatedAt,
			"updated_at":   u.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": out, "total": total, "offset": q.Offset, "limit": q.Limit})
}

// ListAccess returns every access row of a user, including revoked and expired ones.
func (h *UserHandler) ListAccess(c *gin.Context) {
	userID, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	rows, errList := h.entitlement.ListUserAccess(c.Request.Context(), userID)
	if errList != nil {
		apiutil.HandleServiceError(c, errList)
		return
	}
	now := time.Now().UTC()
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		title := ""
		if row.Card != nil {
			title = row.Card.Title
		}
		out = append(out, gin.H{
			"card_id":    row.CardID,
			"card_title": title,
			"active":     row.Active,
			"accessible": row.Accessible(now),
			"expires_at": row.ExpiresAt,
			"granted_at": row.GrantedAt,
			"source":     row.Source,
			"source_ref": row.SourceRef,
		})
	}
	c.JSON(http.StatusOK, gin.H{"access": out})
}

// grantAccessRequest is the body of a manual grant.
type grantAccessRequest struct {
	CardIDs   []uint64   `json:"card_ids"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// GrantAccess grants cards to a user by hand.
func (h *UserHandler) GrantAccess(c *gin.Context) {
	userID, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var body grantAccessRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	granted, errGrant := h.entitlement.AdminGrant(c.Request.Context(), userID, body.CardIDs, body.ExpiresAt)
	if errGrant != nil {
		apiutil.HandleServiceError(c, errGrant)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "cards_granted": granted})
}

// RevokeAccess revokes one card, or all cards when no card is given.
// purge=1 on the all-cards route deletes the rows instead of deactivating them.
func (h *UserHandler) RevokeAccess(c *gin.Context) {
	userID, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var cardID *uint64
	if c.Param("card_id") != "" {
		id, okCard := apiutil.ParseIDParam(c, "card_id")
		if !okCard {
			return
		}
		cardID = &id
	}
	purge, okPurge := apiutil.ParseOptionalBool(c.Query("purge"))
	if !okPurge {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid purge"})
		return
	}
	revoked, errRevoke := h.entitlement.RevokeAccess(c.Request.Context(), userID, cardID, purge != nil && *purge)
	if errRevoke != nil {
		apiutil.HandleServiceError(c, errRevoke)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "revoked": revoked})
}
