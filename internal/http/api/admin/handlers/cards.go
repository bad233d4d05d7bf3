package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/catalog"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/apiutil"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// CardHandler handles admin card endpoints.
type CardHandler struct {
	catalog *catalog.Service
}

// NewCardHandler constructs a CardHandler.
func NewCardHandler(svc *catalog.Service) *CardHandler {
	return &CardHandler{catalog: svc}
}

// cardJSONRequest is the JSON body of card create and update.
type cardJSONRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Answer      *string  `json:"answer"`
	ImageURL    *string  `json:"image_url"`
	Difficulty  *string  `json:"difficulty"`
	Tags        []string `json:"tags"`
	Active      *bool    `json:"active"`
}

// cardFormRequest is the multipart or urlencoded body of card create and update.
// Tags may repeat or hold one comma separated value.
type cardFormRequest struct {
	Title       *string  `form:"title"`
	Description *string  `form:"description"`
	Answer      *string  `form:"answer"`
	ImageURL    *string  `form:"image_url"`
	Difficulty  *string  `form:"difficulty"`
	Tags        []string `form:"tags"`
	Active      *bool    `form:"active"`
}

func (r cardJSONRequest) input() catalog.CardInput {
	return catalog.CardInput{
		Title:       r.Title,
		Description: r.Description,
		Answer:      r.Answer,
		ImageURL:    r.ImageURL,
		Difficulty:  r.Difficulty,
		Tags:        r.Tags,
		Active:      r.Active,
	}
}

func (r cardFormRequest) input() catalog.CardInput {
	var tags []string
	if r.Tags != nil {
		tags = []string{}
		for _, raw := range r.Tags {
			for _, tag := range strings.Split(raw, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					tags = append(tags, tag)
				}
			}
		}
	}
	return catalog.CardInput{
		Title:       r.Title,
		Description: r.Description,
		Answer:      r.Answer,
		ImageURL:    r.ImageURL,
		Difficulty:  r.Difficulty,
		Tags:        tags,
		Active:      r.Active,
	}
}

// bindCardInput decodes either request variant depending on the content type.
func bindCardInput(c *gin.Context) (catalog.CardInput, bool) {
	switch c.ContentType() {
	case binding.MIMEMultipartPOSTForm, binding.MIMEPOSTForm:
		var form cardFormRequest
		if errBind := c.ShouldBindWith(&form, binding.Form); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
			return catalog.CardInput{}, false
		}
		return form.input(), true
	default:
		var body cardJSONRequest
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return catalog.CardInput{}, false
		}
		return body.input(), true
	}
}

// List returns cards with paging and filters.
func (h *CardHandler) List(c *gin.Context) {
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
	cards, total, errList := h.catalog.ListCards(c.Request.Context(), catalog.ListOptions{
		Query:  q.Query,
		Active: active,
		Offset: q.Offset,
		Limit:  q.Limit,
	})
	if errList != nil {
		apiutil.HandleServiceError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(cards))
	for i := range cards {
		out = append(out, formatCard(cards[i]))
	}
	c.JSON(http.StatusOK, gin.H{"cards": out, "total": total})
}

// Create stores a new card.
func (h *CardHandler) Create(c *gin.Context) {
	in, ok := bindCardInput(c)
	if !ok {
		return
	}
	card, errCreate := h.catalog.CreateCard(c.Request.Context(), in)
	if errCreate != nil {
		apiutil.HandleServiceError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, formatCard(card))
}

// Get returns a single card.
func (h *CardHandler) Get(c *gin.Context) {
	id, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	card, errGet := h.catalog.GetCard(c.Request.Context(), id)
	if errGet != nil {
		apiutil.HandleServiceError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, formatCard(card))
}

// Update changes the provided card fields.
func (h *CardHandler) Update(c *gin.Context) {
	id, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	in, ok := bindCardInput(c)
	if !ok {
		return
	}
	card, errUpdate := h.catalog.UpdateCard(c.Request.Context(), id, in)
	if errUpdate != nil {
		apiutil.HandleServiceError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, formatCard(card))
}

// Delete removes a card together with its grants.
func (h *CardHandler) Delete(c *gin.Context) {
	id, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	if errDelete := h.catalog.DeleteCard(c.Request.Context(), id); errDelete != nil {
		apiutil.HandleServiceError(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}

func formatCard(card models.Card) gin.H {
	return gin.H{
		"id":          card.ID,
		"title":       card.Title,
		"description": card.Description,
		"answer":      card.Answer,
		"image_url":   card.ImageURL,
		"difficulty":  card.Difficulty,
		"tags":        parseTags(card.Tags),
		"active":      card.Active,
		"created_at":  card.CreatedAt,
		"updated_at":  card.UpdatedAt,
	}
}

func parseTags(raw []byte) []string {
	tags := []string{}
	if len(raw) == 0 {
		return tags
	}
	if errUnmarshal := json.Unmarshal(raw, &tags); errUnmarshal != nil {
		return []string{}
	}
	return tags
}

func cardIDList(cards []models.Card) []uint64 {
	ids := make([]uint64, 0, len(cards))
	for _, card := range cards {
		ids = append(ids, card.ID)
	}
	return ids
}
