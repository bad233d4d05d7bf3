package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/settings"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// SettingHandler exposes runtime settings.
type SettingHandler struct {
	store *settings.Store
}

// NewSettingHandler constructs a SettingHandler.
func NewSettingHandler(store *settings.Store) *SettingHandler {
	return &SettingHandler{store: store}
}

// List returns every known setting with its stored value, null when unset.
func (h *SettingHandler) List(c *gin.Context) {
	values := h.store.Values()
	out := make([]gin.H, 0, len(settings.KnownKeys))
	for _, key := range settings.KnownKeys {
		var value any
		if raw, ok := values[key]; ok {
			value = json.RawMessage(raw)
		}
		out = append(out, gin.H{"key": key, "value": value})
	}
	c.JSON(http.StatusOK, gin.H{"settings": out, "updated_at": h.store.UpdatedAt()})
}

// updateSettingRequest is the body of a setting write.
type updateSettingRequest struct {
	Value json.RawMessage `json:"value"`
}

// Update stores one setting and refreshes the in-memory snapshot.
func (h *SettingHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if !settings.IsKnownKey(key) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown setting"})
		return
	}
	var body updateSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || len(body.Value) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errValidate := settings.ValidateValue(key, body.Value); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}
	if errSet := h.store.Set(c.Request.Context(), key, body.Value); errSet != nil {
		log.WithError(errSet).WithField("key", key).Error("settings: update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": body.Value})
}
