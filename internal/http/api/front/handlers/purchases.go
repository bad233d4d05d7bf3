package handlers

import (
	"net/http"
	"strings"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/apiutil"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/payment"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/purchase"
	"github.com/gin-gonic/gin"
)

// PurchaseHandler starts and lists the current user's purchases.
type PurchaseHandler struct {
	purchases *purchase.Service
}

// NewPurchaseHandler constructs a PurchaseHandler.
func NewPurchaseHandler(svc *purchase.Service) *PurchaseHandler {
	return &PurchaseHandler{purchases: svc}
}

// createPurchaseRequest selects the package to buy.
type createPurchaseRequest struct {
	PackageID uint64 `json:"package_id"`
	ReturnURL string `json:"return_url"`
}

// Create initiates a purchase through the redirect gateway.
// Telegram invoices live in the bot chat, so the mini-app always uses the redirect flow.
func (h *PurchaseHandler) Create(c *gin.Context) {
	userID, okPlayer := requirePlayer(c)
	if !okPlayer {
		return
	}
	var body createPurchaseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.PackageID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing package_id"})
		return
	}
	if _, ok := h.purchases.Gateway(payment.ProviderYooKassa); !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "online payments are not available, buy from the bot chat"})
		return
	}

	initiated, errInit := h.purchases.Initiate(c.Request.Context(), userID, body.PackageID, purchase.InitiateOptions{
		Provider:  payment.ProviderYooKassa,
		ReturnURL: strings.TrimSpace(body.ReturnURL),
	})
	if errInit != nil {
		apiutil.HandleServiceError(c, errInit)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"purchase_id": initiated.Purchase.ID,
		"payment_id":  initiated.PaymentID,
		"payment_url": initiated.PaymentURL,
		"amount":      initiated.Purchase.Amount,
		"currency":    initiated.Purchase.Currency,
	})
}

// List returns the current user's purchases.
func (h *PurchaseHandler) List(c *gin.Context) {
	userID, okPlayer := requirePlayer(c)
	if !okPlayer {
		return
	}
	rows, errList := h.purchases.ListForUser(c.Request.Context(), userID)
	if errList != nil {
		apiutil.HandleServiceError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		item := gin.H{
			"id":             row.ID,
			"package_id":     row.PackageID,
			"amount":         row.Amount,
			"amount_display": payment.FormatAmount(row.Amount),
			"currency":       row.Currency,
			"status":         row.Status,
			"failure_reason": row.FailureReason,
			"created_at":     row.CreatedAt,
		}
		if row.Package != nil {
			item["package_name"] = row.Package.Name
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"purchases": out})
}
