package handlers

import (
	"net/http"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/catalog"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/apiutil"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/payment"
	"github.com/gin-gonic/gin"
)

// PackageHandler handles admin package endpoints.
type PackageHandler struct {
	catalog *catalog.Service
}

// NewPackageHandler constructs a PackageHandler.
func NewPackageHandler(svc *catalog.Service) *PackageHandler {
	return &PackageHandler{catalog: svc}
}

// packageRequest is the body of package create and update.
type packageRequest struct {
	Name         *string    `json:"name"`
	Description  *string    `json:"description"`
	Price        *int64     `json:"price"` // Minor currency units.
	Currency     *string    `json:"currency"`
	ExpiresAt    *time.Time `json:"expires_at"`
	ClearExpires bool       `json:"clear_expires"`
	AccessDays   *int       `json:"access_days"`
	Active       *bool      `json:"active"`
	CardIDs      *[]uint64  `json:"card_ids"`
}

func (r packageRequest) input() catalog.PackageInput {
	return catalog.PackageInput{
		Name:         r.Name,
		Description:  r.Description,
		Price:        r.Price,
		Currency:     r.Currency,
		ExpiresAt:    r.ExpiresAt,
		ClearExpires: r.ClearExpires,
		AccessDays:   r.AccessDays,
		Active:       r.Active,
		CardIDs:      r.CardIDs,
	}
}

// List returns packages with paging and filters.
func (h *PackageHandler) List(c *gin.Context) {
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
	pkgs, total, errList := h.catalog.ListPackages(c.Request.Context(), catalog.ListOptions{
		Query:  q.Query,
		Active: active,
		Offset: q.Offset,
		Limit:  q.Limit,
	})
	if errList != nil {
		apiutil.HandleServiceError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(pkgs))
	for i := range pkgs {
		out = append(out, formatPackage(pkgs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"packages": out, "total": total})
}

// Create stores a new package.
func (h *PackageHandler) Create(c *gin.Context) {
	var body packageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	pkg, errCreate := h.catalog.CreatePackage(c.Request.Context(), body.input())
	if errCreate != nil {
		apiutil.HandleServiceError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, formatPackage(pkg))
}

// Get returns a single package.
func (h *PackageHandler) Get(c *gin.Context) {
	id, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	pkg, errGet := h.catalog.GetPackage(c.Request.Context(), id)
	if errGet != nil {
		apiutil.HandleServiceError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, formatPackage(pkg))
}

// Update changes the provided package fields.
func (h *PackageHandler) Update(c *gin.Context) {
	id, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var body packageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	pkg, errUpdate := h.catalog.UpdatePackage(c.Request.Context(), id, body.input())
	if errUpdate != nil {
		apiutil.HandleServiceError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, formatPackage(pkg))
}

// Delete removes a package that was never purchased.
func (h *PackageHandler) Delete(c *gin.Context) {
	id, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	if errDelete := h.catalog.DeletePackage(c.Request.Context(), id); errDelete != nil {
		apiutil.HandleServiceError(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}

func formatPackage(pkg models.Package) gin.H {
	return gin.H{
		"id":           pkg.ID,
		"name":         pkg.Name,
		"description":  pkg.Description,
		"price":        pkg.Price,
		"price_amount": payment.FormatAmount(pkg.Price),
		"currency":     pkg.Currency,
		"expires_at":   pkg.ExpiresAt,
		"access_days":  pkg.AccessDays,
		"active":       pkg.Active,
		"card_ids":     cardIDList(pkg.Cards),
		"created_at":   pkg.CreatedAt,
		"updated_at":   pkg.UpdatedAt,
	}
}
