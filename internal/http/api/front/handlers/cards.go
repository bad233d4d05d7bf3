package handlers

import (
	"net/http"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/entitlement"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/apiutil"
	"github.com/gin-gonic/gin"
)

// CardHandler serves the cards a user may view.
type CardHandler struct {
	entitlement *entitlement.Service
}

// NewCardHandler constructs a CardHandler.
func NewCardHandler(svc *entitlement.Service) *CardHandler {
	return &CardHandler{entitlement: svc}
}

// cardListQuery filters the accessible card listing.
type cardListQuery struct {
	Solved    string `form:"solved"`
	Favorites string `form:"favorites"`
	Offset    int    `form:"offset"`
	Limit     int    `form:"limit"`
}

// List returns the user's accessible cards, newest grant first.
func (h *CardHandler) List(c *gin.Context) {
	userID, okPlayer := requirePlayer(c)
	if !okPlayer {
		return
	}
	var q cardListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	solved, okSolved := apiutil.ParseOptionalBool(q.Solved)
	favorites, okFavorites := apiutil.ParseOptionalBool(q.Favorites)
	if !okSolved || !okFavorites {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter"})
		return
	}

	page, errList := h.entitlement.ListAccessibleCards(c.Request.Context(), userID, entitlement.Filter{
		Solved:        solved,
		FavoritesOnly: favorites != nil && *favorites,
		Offset:        q.Offset,
		Limit:         q.Limit,
	})
	if errList != nil {
		apiutil.HandleServiceError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(page.Items))
	for _, item := range page.Items {
		out = append(out, formatAccessibleCard(item))
	}
	c.JSON(http.StatusOK, gin.H{
		"cards":  out,
		"total":  page.Total,
		"offset": page.Offset,
		"limit":  page.Limit,
	})
}

// Get returns one accessible card.
func (h *CardHandler) Get(c *gin.Context) {
	userID, okPlayer := requirePlayer(c)
	if !okPlayer {
		return
	}
	cardID, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	item, errGet := h.entitlement.GetAccessibleCard(c.Request.Context(), userID, cardID)
	if errGet != nil {
		apiutil.HandleServiceError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, formatAccessibleCard(item))
}

// AddFavorite marks a card as favorite.
func (h *CardHandler) AddFavorite(c *gin.Context) {
	h.setFavorite(c, true)
}

// RemoveFavorite clears the favorite mark.
func (h *CardHandler) RemoveFavorite(c *gin.Context) {
	h.setFavorite(c, false)
}

func (h *CardHandler) setFavorite(c *gin.Context, favorite bool) {
	userID, okPlayer := requirePlayer(c)
	if !okPlayer {
		return
	}
	cardID, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	if errSet := h.entitlement.SetFavorite(c.Request.Context(), userID, cardID, favorite); errSet != nil {
		apiutil.HandleServiceError(c, errSet)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "is_favorite": favorite})
}

// responseRequest is a user's answer to a card.
type responseRequest struct {
	Answer string `json:"answer"`
}

// Respond records an answer and reports whether it was correct.
func (h *CardHandler) Respond(c *gin.Context) {
	userID, okPlayer := requirePlayer(c)
	if !okPlayer {
		return
	}
	cardID, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var body responseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	resp, errRecord := h.entitlement.RecordResponse(c.Request.Context(), userID, cardID, body.Answer)
	if errRecord != nil {
		apiutil.HandleServiceError(c, errRecord)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         resp.ID,
		"card_id":    resp.CardID,
		"is_correct": resp.IsCorrect,
		"created_at": resp.CreatedAt,
	})
}

// formatAccessibleCard renders a card without its answer.
func formatAccessibleCard(item entitlement.AccessibleCard) gin.H {
	return gin.H{
		"id":          item.Card.ID,
		"title":       item.Card.Title,
		"description": item.Card.Description,
		"image_url":   item.Card.ImageURL,
		"difficulty":  item.Card.Difficulty,
		"tags":        item.Card.Tags,
		"granted_at":  item.GrantedAt,
		"expires_at":  item.ExpiresAt,
		"source":      item.Source,
		"is_favorite": item.IsFavorite,
		"solved":      item.Solved,
	}
}
