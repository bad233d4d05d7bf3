package handlers

import (
	"net/http"
	"strings"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/apiutil"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/payment"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/purchase"
	"github.com/gin-gonic/gin"
)

// PurchaseHandler handles admin purchase endpoints.
type PurchaseHandler struct {
	purchases *purchase.Service
}

// NewPurchaseHandler constructs a PurchaseHandler.
func NewPurchaseHandler(svc *purchase.Service) *PurchaseHandler {
	return &PurchaseHandler{purchases: svc}
}

// List returns purchases filtered by status and user.
func (h *PurchaseHandler) List(c *gin.Context) {
	var q listQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	switch status {
	case "", models.PurchaseStatusPending, models.PurchaseStatusSucceeded, models.PurchaseStatusFailed, models.PurchaseStatusCompleted:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	userID, ok := parseUintQuery(c, "user_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	rows, total, errList := h.purchases.List(c.Request.Context(), purchase.ListFilter{
		Status: status,
		UserID: userID,
		Offset: q.Offset,
		Limit:  q.Limit,
	})
	if errList != nil {
		apiutil.HandleServiceError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		item := gin.H{
			"id":             row.ID,
			"user_id":        row.UserID,
			"package_id":     row.PackageID,
			"amount":         row.Amount,
			"amount_display": payment.FormatAmount(row.Amount),
			"currency":       row.Currency,
			"provider":       row.Provider,
			"payment_id":     row.PaymentID,
			"status":         row.Status,
			"failure_reason": row.FailureReason,
			"confirmed_at":   row.ConfirmedAt,
			"created_at":     row.CreatedAt,
			"updated_at":     row.UpdatedAt,
		}
		if row.Package != nil {
			item["package_name"] = row.Package.Name
		}
		if row.User != nil {
			item["telegram_id"] = row.User.TelegramID
			item["username"] = row.User.Username
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"purchases": out, "total": total})
}
