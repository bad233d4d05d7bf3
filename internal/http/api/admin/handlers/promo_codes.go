package handlers

import (
	"net/http"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/apiutil"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/promo"
	"github.com/gin-gonic/gin"
)

// PromoCodeHandler handles admin promo code endpoints.
type PromoCodeHandler struct {
	promo *promo.Service
}

// NewPromoCodeHandler constructs a PromoCodeHandler.
func NewPromoCodeHandler(svc *promo.Service) *PromoCodeHandler {
	return &PromoCodeHandler{promo: svc}
}

// promoCodeRequest is the body of promo code create and update.
type promoCodeRequest struct {
	Code         *string    `json:"code"`
	Description  *string    `json:"description"`
	MaxUses      *int       `json:"max_uses"`
	ExpiresAt    *time.Time `json:"expires_at"`
	ClearExpires bool       `json:"clear_expires"` // Removes the expiry on update.
	AccessDays   *int       `json:"access_days"`
	Active       *bool      `json:"active"`
	CardIDs      *[]uint64  `json:"card_ids"`
}

func (r promoCodeRequest) input() promo.CodeInput {
	return promo.CodeInput{
		Code:         r.Code,
		Description:  r.Description,
		MaxUses:      r.MaxUses,
		ExpiresAt:    r.ExpiresAt,
		ClearExpires: r.ClearExpires,
		AccessDays:   r.AccessDays,
		Active:       r.Active,
		CardIDs:      r.CardIDs,
	}
}

// generatePromoCodesRequest is the body of batch code generation.
type generatePromoCodesRequest struct {
	promoCodeRequest
	Count  int    `json:"count"`
	Prefix string `json:"prefix"`
	Length int    `json:"length"`
}

// List returns promo codes with paging and filters.
func (h *PromoCodeHandler) List(c *gin.Context) {
	var q listQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	active, ok := apiutil.ParseOptionalBool(q.Active)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid active"})
		return
	}
	codes, total, errList := h.promo.List(c.Request.Context(), promo.ListOptions{
		Code:   q.Query,
		Active: active,
		Offset: q.Offset,
		Limit:  q.Limit,
	})
	if errList != nil {
		apiutil.HandleServiceError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(codes))
	for i := range codes {
		out = append(out, formatPromoCode(codes[i]))
	}
	c.JSON(http.StatusOK, gin.H{"promo_codes": out, "total": total})
}

// Create stores one promo code.
func (h *PromoCodeHandler) Create(c *gin.Context) {
	var body promoCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	created, errCreate := h.promo.Create(c.Request.Context(), body.input())
	if errCreate != nil {
		apiutil.HandleServiceError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, formatPromoCode(created))
}

// Generate creates a batch of random codes sharing the same settings.
func (h *PromoCodeHandler) Generate(c *gin.Context) {
	var body generatePromoCodesRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	template := body.input()
	template.Code = nil
	codes, errGen := h.promo.Generate(c.Request.Context(), promo.GenerateInput{
		Count:    body.Count,
		Prefix:   body.Prefix,
		Length:   body.Length,
		Template: template,
	})
	if errGen != nil {
		apiutil.HandleServiceError(c, errGen)
		return
	}
	out := make([]gin.H, 0, len(codes))
	for i := range codes {
		out = append(out, formatPromoCode(codes[i]))
	}
	c.JSON(http.StatusCreated, gin.H{"promo_codes": out})
}

// Get returns a single promo code.
func (h *PromoCodeHandler) Get(c *gin.Context) {
	id, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	code, errGet := h.promo.Get(c.Request.Context(), id)
	if errGet != nil {
		apiutil.HandleServiceError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, formatPromoCode(code))
}

// Update changes the provided promo code fields.
func (h *PromoCodeHandler) Update(c *gin.Context) {
	id, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var body promoCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	updated, errUpdate := h.promo.Update(c.Request.Context(), id, body.input())
	if errUpdate != nil {
		apiutil.HandleServiceError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, formatPromoCode(updated))
}

// Delete removes a code that was never redeemed.
func (h *PromoCodeHandler) Delete(c *gin.Context) {
	id, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	if errDelete := h.promo.Delete(c.Request.Context(), id); errDelete != nil {
		apiutil.HandleServiceError(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}

func formatPromoCode(code models.PromoCode) gin.H {
	return gin.H{
		"id":             code.ID,
		"code":           code.Code,
		"description":    code.Description,
		"max_uses":       code.MaxUses,
		"current_uses":   code.CurrentUses,
		"remaining_uses": code.RemainingUses(),
		"expires_at":     code.ExpiresAt,
		"access_days":    code.AccessDays,
		"active":         code.Active,
		"card_ids":       cardIDList(code.Cards),
		"created_at":     code.CreatedAt,
		"updated_at":     code.UpdatedAt,
	}
}
