package handlers

import (
	"net/http"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/catalog"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/apiutil"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/payment"
	"github.com/gin-gonic/gin"
)

// PackageHandler lists packages the user can buy.
type PackageHandler struct {
	catalog *catalog.Service
}

// NewPackageHandler constructs a PackageHandler.
func NewPackageHandler(svc *catalog.Service) *PackageHandler {
	return &PackageHandler{catalog: svc}
}

// List returns purchasable packages, cheapest first.
func (h *PackageHandler) List(c *gin.Context) {
	pkgs, errList := h.catalog.ListPurchasable(c.Request.Context())
	if errList != nil {
		apiutil.HandleServiceError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(pkgs))
	for _, pkg := range pkgs {
		out = append(out, gin.H{
			"id":           pkg.ID,
			"name":         pkg.Name,
			"description":  pkg.Description,
			"price":        pkg.Price,
			"price_amount": payment.FormatAmount(pkg.Price),
			"currency":     pkg.Currency,
			"access_days":  pkg.AccessDays,
			"cards":        len(pkg.Cards),
			"expires_at":   pkg.ExpiresAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"packages": out})
}
