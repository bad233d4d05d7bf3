package handlers

import (
	"net/http"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/apiutil"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/promo"
	"github.com/gin-gonic/gin"
)

// PromoHandler validates and redeems promo codes for the current user.
type PromoHandler struct {
	promo *promo.Service
}

// NewPromoHandler constructs a PromoHandler.
func NewPromoHandler(svc *promo.Service) *PromoHandler {
	return &PromoHandler{promo: svc}
}

// promoCodeRequest carries the code typed by the user.
type promoCodeRequest struct {
	Code string `json:"code"`
}

// Validate reports whether a code can be redeemed without consuming it.
func (h *PromoHandler) Validate(c *gin.Context) {
	userID, okPlayer := requirePlayer(c)
	if !okPlayer {
		return
	}
	var body promoCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	result, errValidate := h.promo.Validate(c.Request.Context(), body.Code, userID)
	if errValidate != nil {
		apiutil.HandleServiceError(c, errValidate)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":          true,
		"code":           result.PromoCode.Code,
		"cards":          len(result.CardIDs),
		"remaining_uses": result.RemainingUses,
		"expires_at":     result.PromoCode.ExpiresAt,
	})
}

// Redeem grants the code's cards to the current user.
func (h *PromoHandler) Redeem(c *gin.Context) {
	userID, okPlayer := requirePlayer(c)
	if !okPlayer {
		return
	}
	var body promoCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	result, errRedeem := h.promo.Redeem(c.Request.Context(), body.Code, userID)
	if errRedeem != nil {
		apiutil.HandleServiceError(c, errRedeem)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":             true,
		"code":           result.Code,
		"cards_granted":  result.CardsGranted,
		"remaining_uses": result.RemainingUses,
		"access_until":   result.ExpiresAt,
	})
}
